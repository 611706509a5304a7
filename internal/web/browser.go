package web

import (
	"context"
	"net/http"

	"github.com/gorilla/sessions"

	"github.com/vbonduro/fotovendas/internal/domain"
	"github.com/vbonduro/fotovendas/internal/guard"
	"github.com/vbonduro/fotovendas/internal/identity"
	"github.com/vbonduro/fotovendas/internal/session"
)

const (
	cookieName      = "fotovendas"
	cookieBrowserID = "browser_id"
	cookieAccess    = "access_token"
	cookieRefresh   = "refresh_token"
)

// CookieStore is the subset of sessions.Store the server needs.
type CookieStore interface {
	Get(r *http.Request, name string) (*sessions.Session, error)
	New(r *http.Request, name string) (*sessions.Session, error)
	Save(r *http.Request, w http.ResponseWriter, s *sessions.Session) error
}

// NewCookieStore returns a signed cookie store for the browser cookie.
func NewCookieStore(secret string, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   30 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

type browserKey struct{}

func browserFrom(ctx context.Context) *session.Browser {
	b, _ := ctx.Value(browserKey{}).(*session.Browser)
	return b
}

// currentUser returns the signed-in user. Handlers behind a protected
// route always have one.
func currentUser(r *http.Request) *domain.User {
	b := browserFrom(r.Context())
	if b == nil {
		return nil
	}
	return b.Session.State().User
}

// withBrowser attaches the browser's server-side state to the request. The
// browser id and provider tokens travel in a signed cookie.
func (s *Server) withBrowser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := s.cookies.Get(r, cookieName)
		if err != nil {
			s.logger.Debug("discarding unreadable session cookie", "error", err)
		}
		id, _ := cookie.Values[cookieBrowserID].(string)
		access, _ := cookie.Values[cookieAccess].(string)
		refresh, _ := cookie.Values[cookieRefresh].(string)

		b := s.registry.Open(r.Context(), id, access, refresh)
		if b.Session.Wait(s.bootstrapWait) {
			if err := b.Session.EnsureFresh(r.Context()); err != nil {
				s.logger.Warn("failed to refresh session", "error", err)
			}
		}
		s.saveCookie(w, r, b)

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), browserKey{}, b)))
	})
}

// saveCookie writes the browser id and current tokens back to the cookie
// when they changed. It must run before the response body is written.
func (s *Server) saveCookie(w http.ResponseWriter, r *http.Request, b *session.Browser) {
	cookie, _ := s.cookies.Get(r, cookieName)
	access, refresh := b.Session.Tokens()
	if cookie.Values[cookieBrowserID] == b.ID &&
		cookie.Values[cookieAccess] == access &&
		cookie.Values[cookieRefresh] == refresh {
		return
	}
	cookie.Values[cookieBrowserID] = b.ID
	cookie.Values[cookieAccess] = access
	cookie.Values[cookieRefresh] = refresh
	if err := s.cookies.Save(r, w, cookie); err != nil {
		s.logger.Error("failed to save session cookie", "error", err)
	}
}

// clearCookie expires the browser cookie.
func (s *Server) clearCookie(w http.ResponseWriter, r *http.Request) {
	cookie, _ := s.cookies.Get(r, cookieName)
	cookie.Values = map[any]any{}
	cookie.Options.MaxAge = -1
	if err := s.cookies.Save(r, w, cookie); err != nil {
		s.logger.Error("failed to clear session cookie", "error", err)
	}
}

// guarded applies the route guard's decision for access before calling h.
// Rendered requests carry the user's access token for the data backends.
func (s *Server) guarded(access guard.Access, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b := browserFrom(r.Context())
		d := guard.Decide(b.Session.State(), access)
		switch d.Action {
		case guard.Placeholder:
			s.renderLoading(w, r)
		case guard.Redirect:
			s.redirect(w, r, d.Location)
		default:
			ctx := identity.WithAccessToken(r.Context(), b.Session.AccessToken())
			h(w, r.WithContext(ctx))
		}
	})
}

// renderLoading shows the placeholder page while the session is still being
// restored. The page reloads itself; htmx requests ask for a full refresh.
func (s *Server) renderLoading(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	if isHTMX(r) {
		w.Header().Set("HX-Refresh", "true")
		w.WriteHeader(http.StatusOK)
		return
	}
	if err := s.renderPage(w, http.StatusOK, nil, "loading.html"); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}
