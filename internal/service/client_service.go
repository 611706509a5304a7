package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vbonduro/fotovendas/internal/domain"
)

// pickerLimit bounds the client picker on the new-sale form.
const pickerLimit = 10

// clientRepository is implemented by store.ClientStore and platform.Clients.
type clientRepository interface {
	Create(ctx context.Context, ownerID string, in domain.ClientInput) (*domain.Client, error)
	GetByID(ctx context.Context, ownerID, id string) (*domain.Client, error)
	List(ctx context.Context, ownerID, nameQuery string) ([]*domain.Client, error)
	Recent(ctx context.Context, ownerID string, limit int) ([]*domain.Client, error)
	SearchByName(ctx context.Context, ownerID, q string, limit int) ([]*domain.Client, error)
	Update(ctx context.Context, ownerID, id string, in domain.ClientInput) (*domain.Client, error)
	Delete(ctx context.Context, ownerID, id string) error
	Count(ctx context.Context, ownerID string) (int, error)
}

type ClientService struct {
	clients clientRepository
	logger  *slog.Logger
}

func NewClientService(clients clientRepository, logger *slog.Logger) *ClientService {
	return &ClientService{clients: clients, logger: logger}
}

func (s *ClientService) CreateClient(ctx context.Context, ownerID string, in domain.ClientInput) (*domain.Client, error) {
	c, err := s.clients.Create(ctx, ownerID, in)
	if err != nil {
		return nil, err
	}
	s.logger.Info("client created", "owner_id", ownerID, "client_id", c.ID)
	return c, nil
}

func (s *ClientService) GetClient(ctx context.Context, ownerID, id string) (*domain.Client, error) {
	c, err := s.clients.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	if c == nil {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

// ListClients returns the owner's clients, newest first, optionally
// narrowed to names containing nameQuery.
func (s *ClientService) ListClients(ctx context.Context, ownerID, nameQuery string) ([]*domain.Client, error) {
	return s.clients.List(ctx, ownerID, strings.TrimSpace(nameQuery))
}

// PickClients feeds the client picker: the most recent clients when q is
// empty, otherwise the name matches in alphabetical order.
func (s *ClientService) PickClients(ctx context.Context, ownerID, q string) ([]*domain.Client, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return s.clients.Recent(ctx, ownerID, pickerLimit)
	}
	return s.clients.SearchByName(ctx, ownerID, q, pickerLimit)
}

func (s *ClientService) UpdateClient(ctx context.Context, ownerID, id string, in domain.ClientInput) (*domain.Client, error) {
	c, err := s.clients.Update(ctx, ownerID, id, in)
	if err != nil {
		return nil, err
	}
	s.logger.Info("client updated", "owner_id", ownerID, "client_id", id)
	return c, nil
}

// DeleteClient removes a client. Clients that still have sales cannot be
// removed; the backend refuses and the error is returned.
func (s *ClientService) DeleteClient(ctx context.Context, ownerID, id string) error {
	if err := s.clients.Delete(ctx, ownerID, id); err != nil {
		return err
	}
	s.logger.Info("client deleted", "owner_id", ownerID, "client_id", id)
	return nil
}
