package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vbonduro/fotovendas/internal/domain"
)

type ClientStore struct {
	db *sql.DB
}

func NewClientStore(db *sql.DB) *ClientStore {
	return &ClientStore{db: db}
}

const clientColumns = `id, user_id, name, email, phone, created_at`

func scanClient(row interface{ Scan(...any) error }) (*domain.Client, error) {
	c := &domain.Client{}
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ClientStore) Create(ctx context.Context, ownerID string, in domain.ClientInput) (*domain.Client, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, user_id, name, email, phone) VALUES (?, ?, ?, ?, ?)
	`, id, ownerID, in.Name, in.Email, in.Phone)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return s.GetByID(ctx, ownerID, id)
}

func (s *ClientStore) GetByID(ctx context.Context, ownerID, id string) (*domain.Client, error) {
	c, err := scanClient(s.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE id = ? AND user_id = ?`, id, ownerID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return c, nil
}

// List returns the owner's clients, newest first. A non-empty nameQuery keeps
// only clients whose name contains it, ignoring case.
func (s *ClientStore) List(ctx context.Context, ownerID, nameQuery string) ([]*domain.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE user_id = ?`
	args := []any{ownerID}
	if nameQuery != "" {
		query += ` AND unicode_lower(name) LIKE unicode_lower(?) ESCAPE '\'`
		args = append(args, likePattern(nameQuery))
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	return s.query(ctx, query, args...)
}

// Recent returns the owner's most recently created clients.
func (s *ClientStore) Recent(ctx context.Context, ownerID string, limit int) ([]*domain.Client, error) {
	return s.query(ctx, `
		SELECT `+clientColumns+` FROM clients WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, ownerID, limit)
}

// SearchByName returns up to limit clients whose name contains q, ordered by name.
func (s *ClientStore) SearchByName(ctx context.Context, ownerID, q string, limit int) ([]*domain.Client, error) {
	return s.query(ctx, `
		SELECT `+clientColumns+` FROM clients WHERE user_id = ? AND unicode_lower(name) LIKE unicode_lower(?) ESCAPE '\'
		ORDER BY name COLLATE NOCASE ASC LIMIT ?
	`, ownerID, likePattern(q), limit)
}

func (s *ClientStore) Update(ctx context.Context, ownerID, id string, in domain.ClientInput) (*domain.Client, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE clients SET name = ?, email = ?, phone = ? WHERE id = ? AND user_id = ?
	`, in.Name, in.Email, in.Phone, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to update client: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, ownerID, id)
}

func (s *ClientStore) Delete(ctx context.Context, ownerID, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM clients WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	return requireAffected(result)
}

func (s *ClientStore) Count(ctx context.Context, ownerID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clients WHERE user_id = ?`, ownerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count clients: %w", err)
	}
	return n, nil
}

func (s *ClientStore) query(ctx context.Context, query string, args ...any) ([]*domain.Client, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []*domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clients: %w", err)
	}
	return clients, nil
}

// likePattern wraps q for a substring LIKE match, escaping LIKE wildcards.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
