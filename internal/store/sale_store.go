package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/vbonduro/fotovendas/internal/domain"
)

type SaleStore struct {
	db *sql.DB
}

func NewSaleStore(db *sql.DB) *SaleStore {
	return &SaleStore{db: db}
}

const saleSelect = `
	SELECT s.id, s.user_id, s.client_id, COALESCE(c.name, ''), s.sale_date,
	       s.instagram, s.notes, s.is_completed, s.created_at
	FROM sales s LEFT JOIN clients c ON c.id = s.client_id`

func scanSale(row interface{ Scan(...any) error }) (*domain.Sale, error) {
	sale := &domain.Sale{}
	err := row.Scan(&sale.ID, &sale.OwnerID, &sale.ClientID, &sale.ClientName, &sale.SaleDate,
		&sale.Instagram, &sale.Notes, &sale.IsCompleted, &sale.CreatedAt)
	if err != nil {
		return nil, err
	}
	return sale, nil
}

func (s *SaleStore) Create(ctx context.Context, ownerID string, in domain.SaleInput) (*domain.Sale, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sales (id, user_id, client_id, sale_date, instagram, notes, is_completed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, ownerID, in.ClientID, in.SaleDate.Format(domain.DateLayout), in.Instagram, in.Notes, in.IsCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to create sale: %w", err)
	}
	return s.GetByID(ctx, ownerID, id)
}

func (s *SaleStore) GetByID(ctx context.Context, ownerID, id string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, saleSelect+` WHERE s.id = ? AND s.user_id = ?`, id, ownerID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sale: %w", err)
	}
	return sale, nil
}

// List applies the completion and date-range parts of f and orders by sale
// date, newest first. The search term is left to the caller.
func (s *SaleStore) List(ctx context.Context, ownerID string, f domain.SaleFilter) ([]*domain.Sale, error) {
	query := saleSelect + ` WHERE s.user_id = ?`
	args := []any{ownerID}
	if f.Completed != nil {
		query += ` AND s.is_completed = ?`
		args = append(args, *f.Completed)
	}
	if f.HasDateRange() {
		query += ` AND s.sale_date >= ? AND s.sale_date <= ?`
		args = append(args, f.From.Format(domain.DateLayout), f.To.Format(domain.DateLayout))
	}
	query += ` ORDER BY s.sale_date DESC, s.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	defer rows.Close()

	var sales []*domain.Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sales: %w", err)
	}
	return sales, nil
}

// Update rewrites the editable fields of a sale. The client is not changed.
func (s *SaleStore) Update(ctx context.Context, ownerID, id string, in domain.SaleInput) (*domain.Sale, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sales SET sale_date = ?, instagram = ?, notes = ?, is_completed = ?
		WHERE id = ? AND user_id = ?
	`, in.SaleDate.Format(domain.DateLayout), in.Instagram, in.Notes, in.IsCompleted, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to update sale: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, ownerID, id)
}

// Delete removes the sale; its photo rows go with it.
func (s *SaleStore) Delete(ctx context.Context, ownerID, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete sale: %w", err)
	}
	return requireAffected(result)
}

// Count returns the number of the owner's sales, optionally restricted by completion.
func (s *SaleStore) Count(ctx context.Context, ownerID string, completed *bool) (int, error) {
	query := `SELECT COUNT(*) FROM sales WHERE user_id = ?`
	args := []any{ownerID}
	if completed != nil {
		query += ` AND is_completed = ?`
		args = append(args, *completed)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sales: %w", err)
	}
	return n, nil
}
