// Package session keeps per-browser state that is not identity: flash messages
// and the CSRF token. Identity lives in the signed token cookie.
package session

import (
	"context"
	"encoding/gob"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/google/uuid"

	"github.com/cppla/microblog/config"
)

const (
	flashesKey = "_flashes"
	csrfKey    = "_csrf_token"
)

// Flash categories understood by the layout template.
const (
	CategorySuccess = "success"
	CategoryInfo    = "info"
	CategoryDanger  = "danger"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Category string
	Message  string
}

func init() {
	gob.Register([]Flash{})
}

// Manager wraps an scs session manager.
type Manager struct {
	scs *scs.SessionManager
}

// New builds a Manager with cookie settings from cfg.
func New(cfg config.AppConfig) *Manager {
	sm := scs.New()
	sm.Lifetime = time.Duration(max(cfg.SessionLifetimeHours, 1)) * time.Hour
	sm.Cookie.Name = "blog_session"
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = cfg.CookieSecure
	return &Manager{scs: sm}
}

// LoadAndSave wraps next so handlers can read and write session data.
func (m *Manager) LoadAndSave(next http.Handler) http.Handler {
	return m.scs.LoadAndSave(next)
}

// AddFlash queues a message for the next page render.
func (m *Manager) AddFlash(ctx context.Context, category, message string) {
	flashes, _ := m.scs.Get(ctx, flashesKey).([]Flash)
	m.scs.Put(ctx, flashesKey, append(flashes, Flash{Category: category, Message: message}))
}

// PopFlashes returns and clears the queued messages.
func (m *Manager) PopFlashes(ctx context.Context) []Flash {
	flashes, _ := m.scs.Pop(ctx, flashesKey).([]Flash)
	return flashes
}

// CSRFToken returns the session's CSRF token, creating one on first use.
func (m *Manager) CSRFToken(ctx context.Context) string {
	token := m.scs.GetString(ctx, csrfKey)
	if token == "" {
		token = uuid.NewString()
		m.scs.Put(ctx, csrfKey, token)
	}
	return token
}

// RenewToken rotates the session ID. Called on login and logout.
func (m *Manager) RenewToken(ctx context.Context) error {
	return m.scs.RenewToken(ctx)
}
