package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vbonduro/fotovendas/internal/domain"
)

var (
	// ErrInvalidCredentials carries the provider's wire message so callers
	// can match it the same way for every backend.
	ErrInvalidCredentials = errors.New("Invalid login credentials")
	ErrNoSession          = errors.New("no active session")
	ErrUserExists         = errors.New("User already registered")
	ErrInvalidResetToken  = errors.New("Reset link is invalid or has expired")
)

type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         *domain.User
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

type EventKind string

const (
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	EventUserUpdated    EventKind = "USER_UPDATED"
)

// Event is an auth state change. Session is nil for EventSignedOut, which
// instead names the revoked AccessToken.
type Event struct {
	Kind        EventKind
	UserID      string
	AccessToken string
	Session     *Session
}

// Provider is the identity service the session store talks to.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password, fullName string) (*domain.User, error)
	SignOut(ctx context.Context, accessToken string) error
	ResetPassword(ctx context.Context, email string) error
	GetSession(ctx context.Context, accessToken string) (*Session, error)
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	Subscribe(fn func(Event)) (unsubscribe func())
}

// ResetCompleter is implemented by providers that finish the password reset
// flow in this process rather than on a hosted page.
type ResetCompleter interface {
	CompleteReset(ctx context.Context, token, newPassword string) error
}

// Broadcaster fans auth events out to subscribers, synchronously and in
// subscription order. The zero value is ready to use.
type Broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   []subscriber
}

type subscriber struct {
	id int
	fn func(Event)
}

func (b *Broadcaster) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Emit delivers ev to every current subscriber. Subscribers may unsubscribe
// from inside their callback.
func (b *Broadcaster) Emit(ev Event) {
	b.mu.Lock()
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(ev)
	}
}

type accessTokenKey struct{}

// WithAccessToken attaches the signed-in user's access token to ctx. Data
// backends that call the hosted platform read it back with AccessToken.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey{}, token)
}

func AccessToken(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenKey{}).(string)
	return token
}
