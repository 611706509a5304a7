package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/fotovendas/internal/domain"
)

func date(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func boolPtr(b bool) *bool { return &b }

func timePtr(t time.Time) *time.Time { return &t }

type saleFixture struct {
	clients *ClientStore
	sales   *SaleStore
	photos  *PhotoStore
	client  *domain.Client
}

func newSaleFixture(t *testing.T) *saleFixture {
	t.Helper()
	d := openTestDB(t)
	f := &saleFixture{
		clients: NewClientStore(d),
		sales:   NewSaleStore(d),
		photos:  NewPhotoStore(d),
	}
	c, err := f.clients.Create(context.Background(), "owner-1", domain.ClientInput{Name: "Ana"})
	require.NoError(t, err)
	f.client = c
	return f
}

func (f *saleFixture) create(t *testing.T, day string, completed bool) *domain.Sale {
	t.Helper()
	s, err := f.sales.Create(context.Background(), "owner-1", domain.SaleInput{
		ClientID:    f.client.ID,
		SaleDate:    date(day),
		IsCompleted: completed,
	})
	require.NoError(t, err)
	return s
}

func saleDates(sales []*domain.Sale) []string {
	out := make([]string, 0, len(sales))
	for _, s := range sales {
		out = append(out, s.SaleDate.Format(domain.DateLayout))
	}
	return out
}

func TestSaleStoreCreate(t *testing.T) {
	f := newSaleFixture(t)

	s, err := f.sales.Create(context.Background(), "owner-1", domain.SaleInput{
		ClientID:  f.client.ID,
		SaleDate:  date("2024-05-10"),
		Instagram: "@ana",
		Notes:     "ensaio",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "Ana", s.ClientName)
	assert.Equal(t, "2024-05-10", s.SaleDate.Format(domain.DateLayout))
	assert.Equal(t, "@ana", s.Instagram)
	assert.False(t, s.IsCompleted)
}

func TestSaleStoreList_OrderAndOwner(t *testing.T) {
	f := newSaleFixture(t)
	f.create(t, "2024-01-10", false)
	f.create(t, "2024-03-01", true)
	f.create(t, "2024-02-15", false)

	sales, err := f.sales.List(context.Background(), "owner-1", domain.SaleFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-01", "2024-02-15", "2024-01-10"}, saleDates(sales))

	other, err := f.sales.List(context.Background(), "owner-2", domain.SaleFilter{})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSaleStoreList_CompletionFilter(t *testing.T) {
	f := newSaleFixture(t)
	f.create(t, "2024-01-10", false)
	f.create(t, "2024-03-01", true)

	done, err := f.sales.List(context.Background(), "owner-1", domain.SaleFilter{Completed: boolPtr(true)})
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.True(t, done[0].IsCompleted)

	open, err := f.sales.List(context.Background(), "owner-1", domain.SaleFilter{Completed: boolPtr(false)})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.False(t, open[0].IsCompleted)
}

func TestSaleStoreList_DateRangeNeedsBothBounds(t *testing.T) {
	f := newSaleFixture(t)
	f.create(t, "2024-01-10", false)
	f.create(t, "2024-02-15", false)
	f.create(t, "2024-03-01", false)

	ranged, err := f.sales.List(context.Background(), "owner-1", domain.SaleFilter{
		From: timePtr(date("2024-02-01")),
		To:   timePtr(date("2024-03-01")),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-01", "2024-02-15"}, saleDates(ranged))

	onlyFrom, err := f.sales.List(context.Background(), "owner-1", domain.SaleFilter{
		From: timePtr(date("2024-02-01")),
	})
	require.NoError(t, err)
	assert.Len(t, onlyFrom, 3)
}

func TestSaleStoreUpdate(t *testing.T) {
	f := newSaleFixture(t)
	s := f.create(t, "2024-01-10", false)

	updated, err := f.sales.Update(context.Background(), "owner-1", s.ID, domain.SaleInput{
		SaleDate:    date("2024-01-11"),
		Instagram:   "@nova",
		Notes:       "entregue",
		IsCompleted: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-11", updated.SaleDate.Format(domain.DateLayout))
	assert.Equal(t, "@nova", updated.Instagram)
	assert.True(t, updated.IsCompleted)
	assert.Equal(t, f.client.ID, updated.ClientID)

	_, err = f.sales.Update(context.Background(), "owner-2", s.ID, domain.SaleInput{SaleDate: date("2024-01-11")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSaleStoreDeleteCascadesPhotos(t *testing.T) {
	f := newSaleFixture(t)
	ctx := context.Background()
	s := f.create(t, "2024-01-10", false)

	for _, p := range []string{"owner-1/a.jpg", "owner-1/b.jpg"} {
		_, err := f.photos.Create(ctx, "owner-1", s.ID, p)
		require.NoError(t, err)
	}

	require.NoError(t, f.sales.Delete(ctx, "owner-1", s.ID))

	photos, err := f.photos.ListBySale(ctx, "owner-1", s.ID)
	require.NoError(t, err)
	assert.Empty(t, photos)
}

func TestSaleStoreCount(t *testing.T) {
	f := newSaleFixture(t)
	f.create(t, "2024-01-10", false)
	f.create(t, "2024-01-11", true)
	f.create(t, "2024-01-12", true)

	total, err := f.sales.Count(context.Background(), "owner-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	completed, err := f.sales.Count(context.Background(), "owner-1", boolPtr(true))
	require.NoError(t, err)
	assert.Equal(t, 2, completed)
}

func TestClientWithSalesCannotBeDeleted(t *testing.T) {
	f := newSaleFixture(t)
	f.create(t, "2024-01-10", false)

	assert.Error(t, f.clients.Delete(context.Background(), "owner-1", f.client.ID))
}
