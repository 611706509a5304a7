package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/vbonduro/fotovendas/internal/domain"
)

type clientCounter interface {
	Count(ctx context.Context, ownerID string) (int, error)
}

type saleCounter interface {
	Count(ctx context.Context, ownerID string, completed *bool) (int, error)
}

type DashboardService struct {
	clients clientCounter
	sales   saleCounter
}

func NewDashboardService(clients clientCounter, sales saleCounter) *DashboardService {
	return &DashboardService{clients: clients, sales: sales}
}

// Counts issues the three count queries concurrently.
func (s *DashboardService) Counts(ctx context.Context, ownerID string) (domain.SaleCounts, error) {
	var counts domain.SaleCounts
	completed := true

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.clients.Count(ctx, ownerID)
		counts.Clients = n
		return err
	})
	g.Go(func() error {
		n, err := s.sales.Count(ctx, ownerID, nil)
		counts.Sales = n
		return err
	})
	g.Go(func() error {
		n, err := s.sales.Count(ctx, ownerID, &completed)
		counts.Completed = n
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.SaleCounts{}, err
	}
	return counts, nil
}
