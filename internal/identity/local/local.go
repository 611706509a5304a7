package local

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/vbonduro/fotovendas/internal/domain"
	"github.com/vbonduro/fotovendas/internal/identity"
	"github.com/vbonduro/fotovendas/internal/mailer"
)

const (
	accessTokenTTL = time.Hour
	resetTokenTTL  = time.Hour
	timeLayout     = "2006-01-02 15:04:05"
)

// Provider is an identity provider backed by the application's own SQLite
// database. Accounts are usable immediately after sign-up.
type Provider struct {
	identity.Broadcaster
	db      *sql.DB
	mailer  mailer.Mailer
	baseURL string
	logger  *slog.Logger
	now     func() time.Time
}

func New(db *sql.DB, m mailer.Mailer, baseURL string, logger *slog.Logger) *Provider {
	return &Provider{
		db:      db,
		mailer:  m,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		now:     time.Now,
	}
}

type userRow struct {
	user         *domain.User
	passwordHash string
}

func (p *Provider) findUserByEmail(ctx context.Context, email string) (*userRow, error) {
	u := &domain.User{}
	row := &userRow{user: u}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, password_hash, created_at FROM users WHERE email = ?
	`, strings.TrimSpace(email)).Scan(&u.ID, &u.Email, &u.FullName, &row.passwordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return row, nil
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	row, err := p.findUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, identity.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(row.passwordHash), []byte(password)); err != nil {
		return nil, identity.ErrInvalidCredentials
	}

	session, err := p.createSession(ctx, row.user)
	if err != nil {
		return nil, err
	}
	p.logger.Info("user signed in", "user_id", row.user.ID)
	p.Emit(identity.Event{Kind: identity.EventSignedIn, UserID: row.user.ID, AccessToken: session.AccessToken, Session: session})
	return session, nil
}

func (p *Provider) SignUp(ctx context.Context, email, password, fullName string) (*domain.User, error) {
	email = strings.TrimSpace(email)
	existing, err := p.findUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, identity.ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{ID: uuid.NewString(), Email: email, FullName: strings.TrimSpace(fullName), CreatedAt: p.now().UTC()}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO users (id, email, full_name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)
	`, user.ID, user.Email, user.FullName, string(hash), user.CreatedAt.Format(timeLayout))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, identity.ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	p.logger.Info("user signed up", "user_id", user.ID)
	return user, nil
}

func (p *Provider) SignOut(ctx context.Context, accessToken string) error {
	var userID string
	err := p.db.QueryRowContext(ctx, `SELECT user_id FROM auth_sessions WHERE access_token = ?`, accessToken).Scan(&userID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE access_token = ?`, accessToken); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	p.Emit(identity.Event{Kind: identity.EventSignedOut, UserID: userID, AccessToken: accessToken})
	return nil
}

// ResetPassword mails a reset link when the address belongs to an account.
// Unknown addresses succeed silently.
func (p *Provider) ResetPassword(ctx context.Context, email string) error {
	row, err := p.findUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if row == nil {
		p.logger.Info("password reset requested for unknown email")
		return nil
	}

	token, err := newToken()
	if err != nil {
		return err
	}
	expires := p.now().Add(resetTokenTTL).UTC()
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at) VALUES (?, ?, ?)
	`, token, row.user.ID, expires.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to create password reset: %w", err)
	}

	link := p.baseURL + "/reset-password?token=" + url.QueryEscape(token)
	msg := mailer.Message{
		To:      row.user.Email,
		Subject: "FotoVendas - Redefinição de senha",
		Text:    "Para redefinir sua senha, acesse o link abaixo. Ele expira em 1 hora.\n\n" + link + "\n",
	}
	if err := p.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send reset mail: %w", err)
	}
	return nil
}

// CompleteReset sets a new password using a mailed reset token and revokes
// every session of the account.
func (p *Provider) CompleteReset(ctx context.Context, token, newPassword string) error {
	var (
		userID  string
		expires time.Time
	)
	err := p.db.QueryRowContext(ctx, `SELECT user_id, expires_at FROM password_resets WHERE token = ?`, token).Scan(&userID, &expires)
	if err == sql.ErrNoRows {
		return identity.ErrInvalidResetToken
	}
	if err != nil {
		return fmt.Errorf("failed to get password reset: %w", err)
	}
	if !p.now().Before(expires) {
		return identity.ErrInvalidResetToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, string(hash), userID); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM password_resets WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete password resets: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM auth_sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit password reset: %w", err)
	}

	p.logger.Info("password reset completed", "user_id", userID)
	p.Emit(identity.Event{Kind: identity.EventUserUpdated, UserID: userID})
	return nil
}

// GetSession resolves an access token. Unknown and expired tokens yield
// identity.ErrNoSession.
func (p *Provider) GetSession(ctx context.Context, accessToken string) (*identity.Session, error) {
	session, err := p.lookup(ctx, `s.access_token = ?`, accessToken)
	if err != nil {
		return nil, err
	}
	if session.Expired(p.now()) {
		return nil, identity.ErrNoSession
	}
	return session, nil
}

// Refresh trades a refresh token for a new session. The old session is revoked.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*identity.Session, error) {
	old, err := p.lookup(ctx, `s.refresh_token = ?`, refreshToken)
	if err != nil {
		return nil, err
	}
	if _, err := p.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE access_token = ?`, old.AccessToken); err != nil {
		return nil, fmt.Errorf("failed to revoke session: %w", err)
	}

	session, err := p.createSession(ctx, old.User)
	if err != nil {
		return nil, err
	}
	p.Emit(identity.Event{Kind: identity.EventTokenRefreshed, UserID: old.User.ID, AccessToken: old.AccessToken, Session: session})
	return session, nil
}

func (p *Provider) lookup(ctx context.Context, where string, arg string) (*identity.Session, error) {
	u := &domain.User{}
	session := &identity.Session{User: u}
	err := p.db.QueryRowContext(ctx, `
		SELECT s.access_token, s.refresh_token, s.expires_at, u.id, u.email, u.full_name, u.created_at
		FROM auth_sessions s JOIN users u ON u.id = s.user_id
		WHERE `+where, arg).Scan(&session.AccessToken, &session.RefreshToken, &session.ExpiresAt,
		&u.ID, &u.Email, &u.FullName, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func (p *Provider) createSession(ctx context.Context, user *domain.User) (*identity.Session, error) {
	access, err := newToken()
	if err != nil {
		return nil, err
	}
	refresh, err := newToken()
	if err != nil {
		return nil, err
	}
	// Stored at second precision, so the returned expiry matches what GetSession reads back.
	expires := p.now().Add(accessTokenTTL).UTC().Truncate(time.Second)

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO auth_sessions (access_token, refresh_token, user_id, expires_at) VALUES (?, ?, ?, ?)
	`, access, refresh, user.ID, expires.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &identity.Session{AccessToken: access, RefreshToken: refresh, ExpiresAt: expires, User: user}, nil
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
