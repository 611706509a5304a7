package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/vbonduro/fotovendas/internal/domain"
	"github.com/vbonduro/fotovendas/internal/identity"
)

type userPayload struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"created_at"`
	UserMetadata struct {
		FullName string `json:"full_name"`
	} `json:"user_metadata"`
}

func (u *userPayload) toDomain() *domain.User {
	return &domain.User{ID: u.ID, Email: u.Email, FullName: u.UserMetadata.FullName, CreatedAt: u.CreatedAt}
}

type tokenPayload struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int          `json:"expires_in"`
	User         *userPayload `json:"user"`
}

// Auth is an identity.Provider backed by the platform's auth service.
type Auth struct {
	identity.Broadcaster
	client *Client
	now    func() time.Time
}

func NewAuth(client *Client) *Auth {
	return &Auth{client: client, now: time.Now}
}

func (a *Auth) toSession(t *tokenPayload) *identity.Session {
	s := &identity.Session{AccessToken: t.AccessToken, RefreshToken: t.RefreshToken}
	if t.ExpiresIn > 0 {
		s.ExpiresAt = a.now().Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	if t.User != nil {
		s.User = t.User.toDomain()
	}
	return s
}

func (a *Auth) token(ctx context.Context, grantType string, body any) (*identity.Session, error) {
	var out tokenPayload
	_, err := a.client.do(ctx, call{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {grantType}},
		body:   body,
		token:  a.client.anonKey,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, fmt.Errorf("token response carries no user")
	}
	return a.toSession(&out), nil
}

func (a *Auth) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	session, err := a.token(ctx, "password", map[string]string{"email": email, "password": password})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Message == identity.ErrInvalidCredentials.Error() {
			return nil, identity.ErrInvalidCredentials
		}
		return nil, err
	}
	a.Emit(identity.Event{Kind: identity.EventSignedIn, UserID: session.User.ID, AccessToken: session.AccessToken, Session: session})
	return session, nil
}

func (a *Auth) SignUp(ctx context.Context, email, password, fullName string) (*domain.User, error) {
	// The answer is either a bare user or a session wrapping one, depending
	// on whether the project auto-confirms accounts.
	var out struct {
		userPayload
		User *userPayload `json:"user"`
	}
	_, err := a.client.do(ctx, call{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		body: map[string]any{
			"email":    email,
			"password": password,
			"data":     map[string]string{"full_name": fullName},
		},
		token: a.client.anonKey,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.User != nil {
		return out.User.toDomain(), nil
	}
	return out.userPayload.toDomain(), nil
}

func (a *Auth) SignOut(ctx context.Context, accessToken string) error {
	var userID string
	if s, err := a.GetSession(ctx, accessToken); err == nil {
		userID = s.User.ID
	}
	_, err := a.client.do(ctx, call{method: http.MethodPost, path: "/auth/v1/logout", token: accessToken}, nil)
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
			return err
		}
	}
	a.Emit(identity.Event{Kind: identity.EventSignedOut, UserID: userID, AccessToken: accessToken})
	return nil
}

func (a *Auth) ResetPassword(ctx context.Context, email string) error {
	_, err := a.client.do(ctx, call{
		method: http.MethodPost,
		path:   "/auth/v1/recover",
		body:   map[string]string{"email": email},
		token:  a.client.anonKey,
	}, nil)
	return err
}

// GetSession resolves the user behind an access token. The returned session
// carries only the access token; the caller keeps the refresh token.
func (a *Auth) GetSession(ctx context.Context, accessToken string) (*identity.Session, error) {
	var out userPayload
	_, err := a.client.do(ctx, call{method: http.MethodGet, path: "/auth/v1/user", token: accessToken}, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
			return nil, identity.ErrNoSession
		}
		return nil, err
	}
	return &identity.Session{AccessToken: accessToken, User: out.toDomain()}, nil
}

func (a *Auth) Refresh(ctx context.Context, refreshToken string) (*identity.Session, error) {
	session, err := a.token(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
			return nil, identity.ErrNoSession
		}
		return nil, err
	}
	a.Emit(identity.Event{Kind: identity.EventTokenRefreshed, UserID: session.User.ID, AccessToken: session.AccessToken, Session: session})
	return session, nil
}
