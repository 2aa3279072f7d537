package routes

import (
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cppla/microblog/config"
	"github.com/cppla/microblog/controllers"
	"github.com/cppla/microblog/middleware"
	"github.com/cppla/microblog/services"
	"github.com/cppla/microblog/session"
	"github.com/cppla/microblog/utils"
)

// Capability is the access level a route demands.
type Capability int

const (
	CapPublic Capability = iota
	CapAuthenticated
	CapAdmin
)

// Route is one row of the route table.
type Route struct {
	Method      string
	Path        string
	Handler     gin.HandlerFunc
	Capability  Capability
	RateLimited bool
}

// Deps are the collaborators the handlers are built from.
type Deps struct {
	Config    config.AppConfig
	Services  *services.Services
	Sessions  *session.Manager
	Tokens    *utils.TokenIssuer
	Blacklist *utils.TokenBlacklist
	Templates *template.Template
}

// Table lists every page of the site. Ownership of posts is checked by the services,
// not here.
func Table(auth *controllers.AuthController, posts *controllers.PostController, users *controllers.UserController) []Route {
	return []Route{
		{Method: http.MethodGet, Path: "/", Handler: posts.Home},
		{Method: http.MethodGet, Path: "/register", Handler: auth.RegisterPage},
		{Method: http.MethodPost, Path: "/register", Handler: auth.Register, RateLimited: true},
		{Method: http.MethodGet, Path: "/login", Handler: auth.LoginPage},
		{Method: http.MethodPost, Path: "/login", Handler: auth.Login, RateLimited: true},
		{Method: http.MethodGet, Path: "/logout", Handler: auth.Logout, Capability: CapAuthenticated},
		{Method: http.MethodGet, Path: "/post/new", Handler: posts.NewPostPage, Capability: CapAuthenticated},
		{Method: http.MethodPost, Path: "/post/new", Handler: posts.CreatePost, Capability: CapAuthenticated},
		{Method: http.MethodGet, Path: "/post/:id", Handler: posts.PostDetail},
		{Method: http.MethodGet, Path: "/users", Handler: users.ListUsers, Capability: CapAdmin},
		{Method: http.MethodPost, Path: "/post/:id/comment", Handler: posts.AddComment, Capability: CapAuthenticated},
		{Method: http.MethodPost, Path: "/post/:id/like", Handler: posts.ToggleLike, Capability: CapAuthenticated},
		{Method: http.MethodGet, Path: "/user/:username", Handler: posts.UserProfile},
		{Method: http.MethodGet, Path: "/post/:id/edit", Handler: posts.EditPostPage, Capability: CapAuthenticated},
		{Method: http.MethodPost, Path: "/post/:id/edit", Handler: posts.EditPost, Capability: CapAuthenticated},
		{Method: http.MethodPost, Path: "/post/:id/delete", Handler: posts.DeletePost, Capability: CapAuthenticated},
		{Method: http.MethodGet, Path: "/health", Handler: users.Health},
	}
}

// SetupRouter wires middlewares, controllers and the route table into a gin engine.
func SetupRouter(deps Deps) *gin.Engine {
	cfg := deps.Config
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())

	// access log goes to its own rolling file; the app logger is the fallback
	accessLog := utils.Logger
	if cfg.GinPath != "" {
		if gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress); err == nil {
			accessLog = gl
		} else {
			utils.Sugar.Warnf("gin access log disabled: %v", err)
		}
	}
	r.Use(ginzap.GinzapWithConfig(accessLog, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/health"},
		Context: func(c *gin.Context) []zapcore.Field {
			return []zapcore.Field{zap.String("request_id", c.GetString(middleware.ContextRequestIDKey))}
		},
	}))
	r.Use(ginzap.RecoveryWithZap(accessLog, false))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", middleware.CSRFHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		// credentials cannot be combined with a wildcard origin
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.SetHTMLTemplate(deps.Templates)

	r.Use(middleware.LoadIdentity(deps.Tokens, deps.Blacklist, deps.Services.Auth, cfg.CookieSecure))

	authController := controllers.NewAuthController(deps.Services.Auth, deps.Sessions, deps.Tokens, deps.Blacklist, cfg.CookieSecure)
	postController := controllers.NewPostController(deps.Services, deps.Sessions)
	userController := controllers.NewUserController(deps.Services.Users, deps.Sessions)

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)
	requireAuth := middleware.RequireAuth(deps.Sessions)
	requireAdmin := middleware.RequireAdmin(deps.Sessions)
	csrf := middleware.CSRF(deps.Sessions, cfg.CSRFEnabled)

	for _, route := range Table(authController, postController, userController) {
		var chain []gin.HandlerFunc
		if route.RateLimited {
			chain = append(chain, limiter.Middleware())
		}
		switch route.Capability {
		case CapAuthenticated:
			chain = append(chain, requireAuth)
		case CapAdmin:
			chain = append(chain, requireAuth, requireAdmin)
		}
		// anonymous visitors are sent to the login page before their token is checked
		chain = append(chain, csrf, route.Handler)
		r.Handle(route.Method, route.Path, chain...)
	}

	r.NoRoute(userController.NotFound)

	return r
}
