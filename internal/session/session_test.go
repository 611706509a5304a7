package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/fotovendas/internal/domain"
	"github.com/vbonduro/fotovendas/internal/identity"
)

var ana = &domain.User{ID: "u-1", Email: "ana@example.com", FullName: "Ana"}

// fakeProvider keeps sessions in maps. When gate is set, GetSession blocks
// until it is closed; refreshGate does the same for Refresh. beforeRefresh
// runs at the start of every Refresh call.
type fakeProvider struct {
	identity.Broadcaster

	mu         sync.Mutex
	byAccess   map[string]*identity.Session
	byRefresh  map[string]*identity.Session
	gate       chan struct{}
	signOutErr error
	seq        int
	resets     []string

	refreshGate   chan struct{}
	beforeRefresh func()
	refreshCalls  int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		byAccess:  make(map[string]*identity.Session),
		byRefresh: make(map[string]*identity.Session),
	}
}

func (p *fakeProvider) issue(user *domain.User, ttl time.Duration) *identity.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	s := &identity.Session{
		AccessToken:  "access-" + string(rune('a'+p.seq)),
		RefreshToken: "refresh-" + string(rune('a'+p.seq)),
		ExpiresAt:    time.Now().Add(ttl),
		User:         user,
	}
	p.byAccess[s.AccessToken] = s
	p.byRefresh[s.RefreshToken] = s
	return s
}

func (p *fakeProvider) SignIn(_ context.Context, email, password string) (*identity.Session, error) {
	if email != ana.Email || password != "segredo" {
		return nil, identity.ErrInvalidCredentials
	}
	s := p.issue(ana, time.Hour)
	p.Emit(identity.Event{Kind: identity.EventSignedIn, UserID: ana.ID, AccessToken: s.AccessToken, Session: s})
	return s, nil
}

func (p *fakeProvider) SignUp(_ context.Context, email, _, fullName string) (*domain.User, error) {
	return &domain.User{ID: "u-new", Email: email, FullName: fullName}, nil
}

func (p *fakeProvider) SignOut(_ context.Context, token string) error {
	if p.signOutErr != nil {
		return p.signOutErr
	}
	p.mu.Lock()
	s, ok := p.byAccess[token]
	delete(p.byAccess, token)
	p.mu.Unlock()
	if ok {
		p.Emit(identity.Event{Kind: identity.EventSignedOut, UserID: s.User.ID, AccessToken: token})
	}
	return nil
}

func (p *fakeProvider) ResetPassword(_ context.Context, email string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets = append(p.resets, email)
	return nil
}

func (p *fakeProvider) GetSession(_ context.Context, token string) (*identity.Session, error) {
	if p.gate != nil {
		<-p.gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.byAccess[token]
	if !ok || s.Expired(time.Now()) {
		return nil, identity.ErrNoSession
	}
	return s, nil
}

func (p *fakeProvider) Refresh(_ context.Context, refreshToken string) (*identity.Session, error) {
	p.mu.Lock()
	p.refreshCalls++
	hook := p.beforeRefresh
	p.beforeRefresh = nil
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
	if p.refreshGate != nil {
		<-p.refreshGate
	}

	p.mu.Lock()
	old, ok := p.byRefresh[refreshToken]
	if ok {
		delete(p.byRefresh, refreshToken)
		delete(p.byAccess, old.AccessToken)
	}
	p.mu.Unlock()
	if !ok {
		return nil, identity.ErrNoSession
	}
	s := p.issue(old.User, time.Hour)
	p.Emit(identity.Event{Kind: identity.EventTokenRefreshed, UserID: old.User.ID, AccessToken: old.AccessToken, Session: s})
	return s, nil
}

func (p *fakeProvider) revoke(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.byAccess, token)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func started(t *testing.T, p *fakeProvider, access, refresh string) *Store {
	t.Helper()
	s := New(p, testLogger())
	s.Start(context.Background(), access, refresh)
	require.True(t, s.Wait(time.Second))
	t.Cleanup(s.Close)
	return s
}

func TestStartWithoutTokensResolvesUnauthenticated(t *testing.T) {
	s := started(t, newFakeProvider(), "", "")

	st := s.State()
	assert.False(t, st.Loading)
	assert.Nil(t, st.User)
	assert.False(t, st.Authenticated())
}

func TestLoadingUntilLookupResolves(t *testing.T) {
	p := newFakeProvider()
	sess := p.issue(ana, time.Hour)
	p.gate = make(chan struct{})

	s := New(p, testLogger())
	t.Cleanup(s.Close)

	var states []State
	var mu sync.Mutex
	s.Subscribe(func(st State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, st)
	})

	s.Start(context.Background(), sess.AccessToken, sess.RefreshToken)
	assert.True(t, s.State().Loading)
	assert.False(t, s.Wait(20*time.Millisecond))

	close(p.gate)
	require.True(t, s.Wait(time.Second))

	st := s.State()
	assert.False(t, st.Loading)
	assert.Equal(t, ana.ID, st.User.ID)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, states, 1)
	assert.True(t, states[0].Authenticated())
}

func TestStartRefreshesExpiredToken(t *testing.T) {
	p := newFakeProvider()
	sess := p.issue(ana, -time.Minute)

	s := started(t, p, sess.AccessToken, sess.RefreshToken)

	assert.True(t, s.State().Authenticated())
	access, refresh := s.Tokens()
	assert.NotEqual(t, sess.AccessToken, access)
	assert.NotEqual(t, sess.RefreshToken, refresh)
}

func TestStartWithRevokedTokensResolvesUnauthenticated(t *testing.T) {
	s := started(t, newFakeProvider(), "gone", "also-gone")

	assert.False(t, s.State().Authenticated())
	access, refresh := s.Tokens()
	assert.Empty(t, access)
	assert.Empty(t, refresh)
}

func TestSignInBroadcastsInSubscriptionOrder(t *testing.T) {
	s := started(t, newFakeProvider(), "", "")

	var order []string
	s.Subscribe(func(State) { order = append(order, "first") })
	s.Subscribe(func(State) { order = append(order, "second") })
	unsubscribe := s.Subscribe(func(State) { order = append(order, "third") })
	unsubscribe()
	unsubscribe()

	require.NoError(t, s.SignIn(context.Background(), ana.Email, "segredo"))

	// Delivered before SignIn returned.
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, ana.ID, s.State().User.ID)
}

func TestSignInInvalidCredentialsLeavesState(t *testing.T) {
	s := started(t, newFakeProvider(), "", "")

	called := false
	s.Subscribe(func(State) { called = true })

	err := s.SignIn(context.Background(), ana.Email, "errada")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
	assert.False(t, called)
	assert.Nil(t, s.State().User)
}

func TestSignOutClearsAndBroadcastsOnce(t *testing.T) {
	p := newFakeProvider()
	s := started(t, p, "", "")
	require.NoError(t, s.SignIn(context.Background(), ana.Email, "segredo"))

	var states []State
	s.Subscribe(func(st State) { states = append(states, st) })

	require.NoError(t, s.SignOut(context.Background()))

	assert.Nil(t, s.State().User)
	require.Len(t, states, 1)
	assert.False(t, states[0].Authenticated())
}

func TestSignOutClearsEvenWhenProviderFails(t *testing.T) {
	p := newFakeProvider()
	s := started(t, p, "", "")
	require.NoError(t, s.SignIn(context.Background(), ana.Email, "segredo"))

	p.signOutErr = errors.New("network down")
	err := s.SignOut(context.Background())

	assert.Error(t, err)
	assert.Nil(t, s.State().User)
	assert.Empty(t, s.AccessToken())
}

func TestSignUpAndResetLeaveSessionAlone(t *testing.T) {
	p := newFakeProvider()
	s := started(t, p, "", "")

	called := false
	s.Subscribe(func(State) { called = true })

	require.NoError(t, s.SignUp(context.Background(), "bia@example.com", "segredo", "Bia"))
	require.NoError(t, s.ResetPassword(context.Background(), "bia@example.com"))

	assert.False(t, called)
	assert.Nil(t, s.State().User)
	assert.Equal(t, []string{"bia@example.com"}, p.resets)
}

func TestSignedOutEventFromAnotherStore(t *testing.T) {
	p := newFakeProvider()
	sess := p.issue(ana, time.Hour)

	a := started(t, p, sess.AccessToken, sess.RefreshToken)
	b := started(t, p, "", "")
	require.NoError(t, b.SignIn(context.Background(), ana.Email, "segredo"))

	// Revoking a's token through the provider clears a only.
	require.NoError(t, p.SignOut(context.Background(), sess.AccessToken))

	assert.False(t, a.State().Authenticated())
	assert.True(t, b.State().Authenticated())
}

func TestUserUpdatedRevalidates(t *testing.T) {
	p := newFakeProvider()
	sess := p.issue(ana, time.Hour)
	s := started(t, p, sess.AccessToken, sess.RefreshToken)

	cleared := make(chan struct{})
	s.Subscribe(func(st State) {
		if st.User == nil {
			close(cleared)
		}
	})

	p.revoke(sess.AccessToken)
	p.Emit(identity.Event{Kind: identity.EventUserUpdated, UserID: ana.ID})

	select {
	case <-cleared:
	case <-time.After(time.Second):
		t.Fatal("session was not cleared after the account changed")
	}
}

func TestEnsureFreshRefreshesNearExpiry(t *testing.T) {
	p := newFakeProvider()
	sess := p.issue(ana, time.Hour)
	s := started(t, p, sess.AccessToken, sess.RefreshToken)

	require.NoError(t, s.EnsureFresh(context.Background()))
	assert.Equal(t, sess.AccessToken, s.AccessToken())

	s.now = func() time.Time { return time.Now().Add(time.Hour) }
	require.NoError(t, s.EnsureFresh(context.Background()))
	assert.NotEqual(t, sess.AccessToken, s.AccessToken())
	assert.True(t, s.State().Authenticated())
}

func TestEnsureFreshEndsRejectedSession(t *testing.T) {
	p := newFakeProvider()
	sess := p.issue(ana, time.Hour)
	s := started(t, p, sess.AccessToken, sess.RefreshToken)

	p.mu.Lock()
	delete(p.byRefresh, sess.RefreshToken)
	p.mu.Unlock()

	s.now = func() time.Time { return time.Now().Add(time.Hour) }
	require.NoError(t, s.EnsureFresh(context.Background()))
	assert.False(t, s.State().Authenticated())
}

func TestEnsureFreshConcurrentCallsKeepSession(t *testing.T) {
	p := newFakeProvider()
	sess := p.issue(ana, time.Hour)
	s := started(t, p, sess.AccessToken, sess.RefreshToken)
	s.now = func() time.Time { return time.Now().Add(time.Hour) }

	p.refreshGate = make(chan struct{})
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.EnsureFresh(context.Background())
		}()
	}
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.refreshCalls > 0
	}, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(p.refreshGate)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.True(t, s.State().Authenticated())
	assert.NotEqual(t, sess.AccessToken, s.AccessToken())
	assert.NotEmpty(t, s.AccessToken())
}

func TestEnsureFreshStaleRejectionKeepsRotatedSession(t *testing.T) {
	p := newFakeProvider()
	sess := p.issue(ana, time.Hour)
	s := started(t, p, sess.AccessToken, sess.RefreshToken)
	s.now = func() time.Time { return time.Now().Add(time.Hour) }

	// Another request rotates the token while this refresh is in flight, so
	// the provider rejects the stale refresh token.
	var rotated *identity.Session
	p.beforeRefresh = func() {
		var err error
		rotated, err = p.Refresh(context.Background(), sess.RefreshToken)
		require.NoError(t, err)
	}

	var broadcasts []State
	unsubscribe := s.Subscribe(func(st State) { broadcasts = append(broadcasts, st) })
	defer unsubscribe()

	require.NoError(t, s.EnsureFresh(context.Background()))
	require.NotNil(t, rotated)
	assert.True(t, s.State().Authenticated())
	assert.Equal(t, rotated.AccessToken, s.AccessToken())
	for _, st := range broadcasts {
		assert.True(t, st.Authenticated())
	}
}

func TestCloseStopsProviderEvents(t *testing.T) {
	p := newFakeProvider()
	sess := p.issue(ana, time.Hour)
	s := started(t, p, sess.AccessToken, sess.RefreshToken)

	s.Close()
	require.NoError(t, p.SignOut(context.Background(), sess.AccessToken))

	assert.True(t, s.State().Authenticated())
}
