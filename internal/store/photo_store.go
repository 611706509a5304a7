package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/vbonduro/fotovendas/internal/domain"
)

// PhotoStore keeps the sale_photos rows. The image bytes live in object storage.
type PhotoStore struct {
	db *sql.DB
}

func NewPhotoStore(db *sql.DB) *PhotoStore {
	return &PhotoStore{db: db}
}

func (s *PhotoStore) Create(ctx context.Context, ownerID, saleID, storagePath string) (*domain.SalePhoto, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sale_photos (id, user_id, sale_id, storage_path) VALUES (?, ?, ?, ?)
	`, id, ownerID, saleID, storagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create photo: %w", err)
	}
	return s.GetByID(ctx, ownerID, id)
}

func (s *PhotoStore) GetByID(ctx context.Context, ownerID, id string) (*domain.SalePhoto, error) {
	p := &domain.SalePhoto{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, sale_id, storage_path, created_at FROM sale_photos WHERE id = ? AND user_id = ?
	`, id, ownerID).Scan(&p.ID, &p.OwnerID, &p.SaleID, &p.StoragePath, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get photo: %w", err)
	}
	return p, nil
}

// ListBySale returns a sale's photos in upload order.
func (s *PhotoStore) ListBySale(ctx context.Context, ownerID, saleID string) ([]*domain.SalePhoto, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, sale_id, storage_path, created_at FROM sale_photos
		WHERE sale_id = ? AND user_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, saleID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	defer rows.Close()

	var photos []*domain.SalePhoto
	for rows.Next() {
		p := &domain.SalePhoto{}
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.SaleID, &p.StoragePath, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		photos = append(photos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating photos: %w", err)
	}
	return photos, nil
}

func (s *PhotoStore) Delete(ctx context.Context, ownerID, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sale_photos WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete photo: %w", err)
	}
	return requireAffected(result)
}
