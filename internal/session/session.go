// Package session keeps the signed-in identity of each browser talking to
// the server and tells interested parties whenever it changes.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vbonduro/fotovendas/internal/domain"
	"github.com/vbonduro/fotovendas/internal/identity"
)

// refreshMargin is how close to expiry an access token may get before
// EnsureFresh trades it in.
const refreshMargin = time.Minute

// State is what the route guard and the layout read.
type State struct {
	User    *domain.User
	Loading bool
}

func (s State) Authenticated() bool {
	return !s.Loading && s.User != nil
}

type subscriber struct {
	id int
	fn func(State)
}

// Store holds one browser's session. It starts in the loading state and
// resolves once the provider has answered the initial identity lookup.
//
// Every change is delivered to subscribers synchronously, in subscription
// order, before the mutating call returns. Subscribers must not call back
// into the store.
type Store struct {
	provider identity.Provider
	logger   *slog.Logger
	now      func() time.Time

	// notifyMu serialises mutate-then-broadcast so subscribers observe
	// changes in the order they happened.
	notifyMu sync.Mutex

	mu           sync.Mutex
	user         *domain.User
	loading      bool
	accessToken  string
	refreshToken string
	expiresAt    time.Time
	nextID       int
	subs         []subscriber
	started      bool
	unsubscribe  func()

	// refreshes collapses concurrent EnsureFresh calls for the same
	// refresh token into one provider round trip.
	refreshes singleflight.Group

	done     chan struct{}
	doneOnce sync.Once
}

func New(provider identity.Provider, logger *slog.Logger) *Store {
	return &Store{
		provider: provider,
		logger:   logger,
		now:      time.Now,
		loading:  true,
		done:     make(chan struct{}),
	}
}

// Start listens for provider events and resolves the identity behind the
// given tokens in the background. An expired access token is refreshed when
// a refresh token is present. Start only has an effect the first time.
func (s *Store) Start(ctx context.Context, accessToken, refreshToken string) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.accessToken = accessToken
	s.refreshToken = refreshToken
	s.mu.Unlock()

	unsubscribe := s.provider.Subscribe(s.handleEvent)
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	if accessToken == "" && refreshToken == "" {
		s.resolve(nil)
		return
	}

	ctx = context.WithoutCancel(ctx)
	go func() {
		session, err := s.bootstrap(ctx, accessToken, refreshToken)
		if err != nil && !errors.Is(err, identity.ErrNoSession) {
			s.logger.Error("failed to restore session", "error", err)
		}
		s.resolve(session)
	}()
}

func (s *Store) bootstrap(ctx context.Context, accessToken, refreshToken string) (*identity.Session, error) {
	if accessToken != "" {
		session, err := s.provider.GetSession(ctx, accessToken)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, identity.ErrNoSession) {
			return nil, err
		}
	}
	if refreshToken == "" {
		return nil, identity.ErrNoSession
	}
	return s.provider.Refresh(ctx, refreshToken)
}

// resolve ends the loading state with session, which may be nil.
func (s *Store) resolve(session *identity.Session) {
	s.update(func() bool {
		s.loading = false
		if session != nil {
			s.apply(session)
		} else {
			s.clear()
		}
		return true
	})
	s.doneOnce.Do(func() { close(s.done) })
}

// Wait blocks until the initial lookup resolves or timeout elapses. It
// reports whether the store is resolved.
func (s *Store) Wait(timeout time.Duration) bool {
	select {
	case <-s.done:
		return true
	default:
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-s.done:
		return true
	case <-t.C:
		return false
	}
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{User: s.user, Loading: s.loading}
}

// Tokens returns the current access and refresh tokens.
func (s *Store) Tokens() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken, s.refreshToken
}

func (s *Store) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken
}

// Subscribe registers fn for every later state change. The returned func
// removes it and is safe to call more than once.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// SignIn authenticates with the provider and makes the result the current
// session. It never redirects; that is left to the caller.
func (s *Store) SignIn(ctx context.Context, email, password string) error {
	session, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	s.update(func() bool {
		s.loading = false
		s.apply(session)
		return true
	})
	s.doneOnce.Do(func() { close(s.done) })
	return nil
}

// SignUp creates an account. The new account can sign in right away; the
// current session is left alone.
func (s *Store) SignUp(ctx context.Context, email, password, fullName string) error {
	_, err := s.provider.SignUp(ctx, email, password, fullName)
	return err
}

// SignOut revokes the session with the provider and clears it locally. The
// local session is cleared even when the provider call fails.
func (s *Store) SignOut(ctx context.Context) error {
	token := s.AccessToken()
	var err error
	if token != "" {
		err = s.provider.SignOut(ctx, token)
	}
	s.update(func() bool {
		changed := s.user != nil || s.accessToken != "" || s.refreshToken != ""
		s.clear()
		return changed
	})
	if err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	return nil
}

// ResetPassword starts the provider's reset flow for email. The local
// session is not touched.
func (s *Store) ResetPassword(ctx context.Context, email string) error {
	return s.provider.ResetPassword(ctx, email)
}

// EnsureFresh refreshes the access token when it is about to expire. A
// refresh token the provider no longer accepts ends the session.
func (s *Store) EnsureFresh(ctx context.Context) error {
	s.mu.Lock()
	refreshToken := s.refreshToken
	due := s.user != nil && refreshToken != "" && !s.expiresAt.IsZero() &&
		s.now().Add(refreshMargin).After(s.expiresAt)
	s.mu.Unlock()
	if !due {
		return nil
	}

	v, err, _ := s.refreshes.Do(refreshToken, func() (any, error) {
		return s.provider.Refresh(ctx, refreshToken)
	})
	if errors.Is(err, identity.ErrNoSession) {
		s.update(func() bool {
			// A concurrent refresh may already have rotated the token.
			if s.refreshToken != refreshToken {
				return false
			}
			s.clear()
			return true
		})
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to refresh session: %w", err)
	}
	session := v.(*identity.Session)
	s.update(func() bool {
		// Another request may have signed out or refreshed in the meantime.
		if s.refreshToken != refreshToken {
			return false
		}
		s.apply(session)
		return true
	})
	return nil
}

// Close stops listening to the provider and drops every subscriber.
func (s *Store) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.subs = nil
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (s *Store) handleEvent(ev identity.Event) {
	switch ev.Kind {
	case identity.EventSignedOut:
		s.update(func() bool {
			if ev.AccessToken == "" || ev.AccessToken != s.accessToken {
				return false
			}
			s.clear()
			return true
		})
	case identity.EventTokenRefreshed:
		if ev.Session == nil {
			return
		}
		s.update(func() bool {
			if ev.AccessToken == "" || ev.AccessToken != s.accessToken {
				return false
			}
			s.apply(ev.Session)
			return true
		})
	case identity.EventUserUpdated:
		s.mu.Lock()
		mine := s.user != nil && s.user.ID == ev.UserID
		s.mu.Unlock()
		if mine {
			go s.revalidate()
		}
	}
	// Sign-ins belong to whichever browser asked for them.
}

// revalidate reloads the session after the provider reported a change to
// the account. Revoked tokens end the session.
func (s *Store) revalidate() {
	token := s.AccessToken()
	if token == "" {
		return
	}
	session, err := s.provider.GetSession(context.Background(), token)
	switch {
	case errors.Is(err, identity.ErrNoSession):
		s.update(func() bool {
			if s.accessToken != token {
				return false
			}
			s.clear()
			return true
		})
	case err != nil:
		s.logger.Warn("failed to revalidate session", "error", err)
	default:
		s.update(func() bool {
			if s.accessToken != token {
				return false
			}
			s.apply(session)
			return true
		})
	}
}

// update runs fn under the state lock and, if fn reports a change,
// broadcasts the resulting state.
func (s *Store) update(fn func() bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if !fn() {
		s.mu.Unlock()
		return
	}
	state := State{User: s.user, Loading: s.loading}
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(state)
	}
}

func (s *Store) apply(session *identity.Session) {
	s.user = session.User
	s.accessToken = session.AccessToken
	s.refreshToken = session.RefreshToken
	s.expiresAt = session.ExpiresAt
}

func (s *Store) clear() {
	s.user = nil
	s.accessToken = ""
	s.refreshToken = ""
	s.expiresAt = time.Time{}
}
