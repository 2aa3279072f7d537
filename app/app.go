// Package app is the composition root: it owns every long-lived collaborator and
// hands them to the router explicitly.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/cppla/microblog/config"
	"github.com/cppla/microblog/events"
	"github.com/cppla/microblog/repository"
	"github.com/cppla/microblog/routes"
	"github.com/cppla/microblog/services"
	"github.com/cppla/microblog/session"
	"github.com/cppla/microblog/templates"
	"github.com/cppla/microblog/utils"
)

// App holds the application context shared by all requests.
type App struct {
	Config    config.AppConfig
	DB        *gorm.DB
	Redis     *redis.Client
	Sessions  *session.Manager
	Tokens    *utils.TokenIssuer
	Blacklist *utils.TokenBlacklist
	Events    events.Publisher
	Services  *services.Services
	Engine    *gin.Engine
}

// Option customises New.
type Option func(*App)

// WithPublisher replaces the publisher chosen from configuration.
func WithPublisher(p events.Publisher) Option {
	return func(a *App) { a.Events = p }
}

// New builds the application on an open, migrated database.
func New(cfg config.AppConfig, db *gorm.DB, opts ...Option) (*App, error) {
	a := &App{Config: cfg, DB: db}
	for _, opt := range opts {
		opt(a)
	}

	if a.Events == nil {
		a.Events = events.Nop{}
		if cfg.AMQPURL != "" {
			pub, err := events.NewAMQP(cfg.AMQPURL, cfg.AMQPQueue)
			if err != nil {
				utils.Sugar.Warnf("activity events disabled: %v", err)
			} else {
				a.Events = pub
			}
		}
	}

	tmpl, err := templates.Load()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	a.Redis = utils.NewRedis(cfg)
	a.Blacklist = utils.NewTokenBlacklist(a.Redis)
	a.Tokens = utils.NewTokenIssuer(cfg.SecretKey, time.Duration(max(cfg.SessionLifetimeHours, 1))*time.Hour)
	a.Sessions = session.New(cfg)
	a.Services = services.New(repository.NewStore(db), a.Events, cfg.AdminUsernames)
	a.Engine = routes.SetupRouter(routes.Deps{
		Config:    cfg,
		Services:  a.Services,
		Sessions:  a.Sessions,
		Tokens:    a.Tokens,
		Blacklist: a.Blacklist,
		Templates: tmpl,
	})
	return a, nil
}

// Handler is the root HTTP handler: the gin engine behind the session middleware.
func (a *App) Handler() http.Handler {
	return a.Sessions.LoadAndSave(a.Engine)
}

// PromoteAdmins applies the configured admin list to existing accounts.
func (a *App) PromoteAdmins(ctx context.Context) (int64, error) {
	return a.Services.Auth.PromoteAdmins(ctx)
}

// Close releases the broker, Redis and database connections.
func (a *App) Close() error {
	var errs []error
	if a.Events != nil {
		errs = append(errs, a.Events.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
