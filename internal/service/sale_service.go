package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/vbonduro/fotovendas/internal/domain"
	"github.com/vbonduro/fotovendas/internal/photostore"
	"github.com/vbonduro/fotovendas/internal/upload"
)

// ErrNoImages is returned, before anything is written, when a new sale has
// no photos attached.
var ErrNoImages = errors.New("sale has no images")

// ErrClientNotFound means the chosen client does not belong to the owner.
var ErrClientNotFound = errors.New("client not found")

// saleRepository is implemented by store.SaleStore and platform.Sales.
type saleRepository interface {
	Create(ctx context.Context, ownerID string, in domain.SaleInput) (*domain.Sale, error)
	GetByID(ctx context.Context, ownerID, id string) (*domain.Sale, error)
	List(ctx context.Context, ownerID string, f domain.SaleFilter) ([]*domain.Sale, error)
	Update(ctx context.Context, ownerID, id string, in domain.SaleInput) (*domain.Sale, error)
	Delete(ctx context.Context, ownerID, id string) error
	Count(ctx context.Context, ownerID string, completed *bool) (int, error)
}

// photoRepository is implemented by store.PhotoStore and platform.Photos.
type photoRepository interface {
	Create(ctx context.Context, ownerID, saleID, storagePath string) (*domain.SalePhoto, error)
	GetByID(ctx context.Context, ownerID, id string) (*domain.SalePhoto, error)
	ListBySale(ctx context.Context, ownerID, saleID string) ([]*domain.SalePhoto, error)
	Delete(ctx context.Context, ownerID, id string) error
}

type clientLookup interface {
	GetByID(ctx context.Context, ownerID, id string) (*domain.Client, error)
}

// Progress receives the percentage of photos stored so far.
type Progress func(percent int)

// UploadError reports a photo sequence that stopped part way. The sale and
// the first Stored photos are kept.
type UploadError struct {
	SaleID string
	Stored int
	Total  int
	Err    error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("stored %d of %d photos for sale %s: %v", e.Stored, e.Total, e.SaleID, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

type SaleService struct {
	sales     saleRepository
	photos    photoRepository
	clients   clientLookup
	storage   photostore.PhotoStore
	pool      pond.Pool
	urlExpiry time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewSaleService(
	sales saleRepository,
	photos photoRepository,
	clients clientLookup,
	storage photostore.PhotoStore,
	pool pond.Pool,
	urlExpiry time.Duration,
	logger *slog.Logger,
) *SaleService {
	return &SaleService{
		sales:     sales,
		photos:    photos,
		clients:   clients,
		storage:   storage,
		pool:      pool,
		urlExpiry: urlExpiry,
		logger:    logger,
		now:       time.Now,
	}
}

// ListSales applies the completion and date filters in the backend, then
// keeps the sales whose client name or instagram handle contains the search
// term, ignoring case.
func (s *SaleService) ListSales(ctx context.Context, ownerID string, f domain.SaleFilter) ([]*domain.Sale, error) {
	sales, err := s.sales.List(ctx, ownerID, f)
	if err != nil {
		return nil, err
	}
	term := strings.ToLower(strings.TrimSpace(f.Search))
	if term == "" {
		return sales, nil
	}
	matched := make([]*domain.Sale, 0, len(sales))
	for _, sale := range sales {
		if strings.Contains(strings.ToLower(sale.ClientName), term) ||
			strings.Contains(strings.ToLower(sale.Instagram), term) {
			matched = append(matched, sale)
		}
	}
	return matched, nil
}

// CreateSale inserts the sale, then stores each image and its photo row one
// after the other. Nothing is written when images is empty. A failure
// while storing photos keeps the sale and the photos stored before it and
// is reported as an *UploadError alongside the sale.
func (s *SaleService) CreateSale(ctx context.Context, ownerID string, in domain.SaleInput, images []*upload.Image, progress Progress) (*domain.Sale, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}

	client, err := s.clients.GetByID(ctx, ownerID, in.ClientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	if client == nil {
		return nil, ErrClientNotFound
	}

	sale, err := s.sales.Create(ctx, ownerID, in)
	if err != nil {
		return nil, err
	}
	s.logger.Info("sale created", "owner_id", ownerID, "sale_id", sale.ID, "photos", len(images))

	if err := s.storePhotos(ctx, ownerID, sale.ID, images, progress); err != nil {
		return sale, err
	}
	return sale, nil
}

// UpdateSale rewrites the sale's fields and then stores any newly attached
// images the same way CreateSale does.
func (s *SaleService) UpdateSale(ctx context.Context, ownerID, id string, in domain.SaleInput, images []*upload.Image, progress Progress) (*domain.Sale, error) {
	sale, err := s.sales.Update(ctx, ownerID, id, in)
	if err != nil {
		return nil, err
	}
	s.logger.Info("sale updated", "owner_id", ownerID, "sale_id", id, "new_photos", len(images))

	if len(images) == 0 {
		return sale, nil
	}
	if err := s.storePhotos(ctx, ownerID, id, images, progress); err != nil {
		return sale, err
	}
	return sale, nil
}

func (s *SaleService) storePhotos(ctx context.Context, ownerID, saleID string, images []*upload.Image, progress Progress) error {
	total := len(images)
	for i, img := range images {
		path := photostore.ObjectPath(ownerID, saleID, img.FileName, img.MimeType, s.now())

		if err := s.storage.Upload(ctx, path, img.MimeType, bytes.NewReader(img.Data)); err != nil {
			s.logger.Error("failed to upload photo", "owner_id", ownerID, "sale_id", saleID, "index", i, "error", err)
			return &UploadError{SaleID: saleID, Stored: i, Total: total, Err: err}
		}
		if _, err := s.photos.Create(ctx, ownerID, saleID, path); err != nil {
			s.logger.Error("failed to create photo record", "owner_id", ownerID, "sale_id", saleID, "path", path, "error", err)
			return &UploadError{SaleID: saleID, Stored: i, Total: total, Err: err}
		}

		if progress != nil {
			progress(percent(i+1, total))
		}
	}
	s.logger.Info("photos stored", "owner_id", ownerID, "sale_id", saleID, "count", total)
	return nil
}

func percent(done, total int) int {
	return (done*200 + total) / (2 * total)
}

// PhotoView is a stored photo with a time-limited URL to display it.
type PhotoView struct {
	*domain.SalePhoto
	URL string
}

type SaleDetail struct {
	Sale   *domain.Sale
	Photos []*PhotoView
}

// GetSale loads a sale with its photos. Photo URLs are signed concurrently;
// a photo whose URL cannot be signed is returned without one.
func (s *SaleService) GetSale(ctx context.Context, ownerID, id string) (*SaleDetail, error) {
	sale, err := s.sales.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get sale: %w", err)
	}
	if sale == nil {
		return nil, domain.ErrNotFound
	}

	photos, err := s.photos.ListBySale(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	views := make([]*PhotoView, len(photos))
	tasks := make([]pond.Task, 0, len(photos))
	for i, p := range photos {
		views[i] = &PhotoView{SalePhoto: p}
		tasks = append(tasks, s.pool.Submit(func() {
			url, err := s.storage.SignedURL(ctx, p.StoragePath, s.urlExpiry)
			if err != nil {
				s.logger.Warn("failed to sign photo url", "sale_id", id, "photo_id", p.ID, "error", err)
				return
			}
			views[i].URL = url
		}))
	}
	for _, t := range tasks {
		if err := t.Wait(); err != nil {
			return nil, fmt.Errorf("failed to sign photo urls: %w", err)
		}
	}

	return &SaleDetail{Sale: sale, Photos: views}, nil
}

// DeletePhoto removes the stored object first. The photo row is only
// deleted once the object is gone.
func (s *SaleService) DeletePhoto(ctx context.Context, ownerID, saleID, photoID string) error {
	photo, err := s.photos.GetByID(ctx, ownerID, photoID)
	if err != nil {
		return fmt.Errorf("failed to get photo: %w", err)
	}
	if photo == nil || photo.SaleID != saleID {
		return domain.ErrNotFound
	}

	if err := s.storage.Remove(ctx, photo.StoragePath); err != nil {
		s.logger.Error("failed to remove photo object", "owner_id", ownerID, "sale_id", saleID, "path", photo.StoragePath, "error", err)
		return fmt.Errorf("failed to remove photo object: %w", err)
	}
	if err := s.photos.Delete(ctx, ownerID, photoID); err != nil {
		return err
	}
	s.logger.Info("photo deleted", "owner_id", ownerID, "sale_id", saleID, "photo_id", photoID)
	return nil
}

// DeleteSale removes every photo object, deleting each photo row as its
// object goes, and then the sale. The first storage failure stops the loop
// and leaves the sale in place so the delete can be retried.
func (s *SaleService) DeleteSale(ctx context.Context, ownerID, id string) error {
	photos, err := s.photos.ListBySale(ctx, ownerID, id)
	if err != nil {
		return err
	}

	for _, p := range photos {
		if err := s.storage.Remove(ctx, p.StoragePath); err != nil {
			s.logger.Error("failed to remove photo object", "owner_id", ownerID, "sale_id", id, "path", p.StoragePath, "error", err)
			return fmt.Errorf("failed to remove photo object: %w", err)
		}
		if err := s.photos.Delete(ctx, ownerID, p.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}

	if err := s.sales.Delete(ctx, ownerID, id); err != nil {
		return err
	}
	s.logger.Info("sale deleted", "owner_id", ownerID, "sale_id", id, "photos", len(photos))
	return nil
}
