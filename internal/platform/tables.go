package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vbonduro/fotovendas/internal/domain"
)

type clientRow struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Email     *string   `json:"email"`
	Phone     *string   `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *clientRow) toDomain() *domain.Client {
	return &domain.Client{ID: r.ID, OwnerID: r.UserID, Name: r.Name, Email: deref(r.Email), Phone: deref(r.Phone), CreatedAt: r.CreatedAt}
}

type saleRow struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ClientID    string    `json:"client_id"`
	SaleDate    string    `json:"sale_date"`
	Instagram   *string   `json:"instagram"`
	Notes       *string   `json:"notes"`
	IsCompleted bool      `json:"is_completed"`
	CreatedAt   time.Time `json:"created_at"`
	Clients     *struct {
		Name string `json:"name"`
	} `json:"clients"`
}

func (r *saleRow) toDomain() (*domain.Sale, error) {
	date, err := time.Parse(domain.DateLayout, r.SaleDate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sale date %q: %w", r.SaleDate, err)
	}
	s := &domain.Sale{
		ID: r.ID, OwnerID: r.UserID, ClientID: r.ClientID, SaleDate: date,
		Instagram: deref(r.Instagram), Notes: deref(r.Notes), IsCompleted: r.IsCompleted, CreatedAt: r.CreatedAt,
	}
	if r.Clients != nil {
		s.ClientName = r.Clients.Name
	}
	return s, nil
}

type photoRow struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	SaleID      string    `json:"sale_id"`
	StoragePath string    `json:"storage_path"`
	CreatedAt   time.Time `json:"created_at"`
}

func (r *photoRow) toDomain() *domain.SalePhoto {
	return &domain.SalePhoto{ID: r.ID, OwnerID: r.UserID, SaleID: r.SaleID, StoragePath: r.StoragePath, CreatedAt: r.CreatedAt}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func ownerQuery(ownerID string) url.Values {
	return url.Values{"select": {"*"}, "user_id": {"eq." + ownerID}}
}

func byID(ownerID, id string) url.Values {
	q := ownerQuery(ownerID)
	q.Set("id", "eq."+id)
	return q
}

func ilike(q string) string {
	return "ilike.%" + q + "%"
}

var returnRepresentation = map[string]string{"Prefer": "return=representation"}

func (c *Client) count(ctx context.Context, table string, q url.Values) (int, error) {
	q.Set("select", "id")
	header, err := c.do(ctx, call{
		method:  http.MethodHead,
		path:    "/rest/v1/" + table,
		query:   q,
		headers: map[string]string{"Prefer": "count=exact"},
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return parseContentRange(header.Get("Content-Range"))
}

// parseContentRange reads the total from a "0-9/42" or "*/0" header.
func parseContentRange(v string) (int, error) {
	idx := strings.LastIndexByte(v, '/')
	if idx < 0 {
		return 0, fmt.Errorf("missing count in content range %q", v)
	}
	n, err := strconv.Atoi(v[idx+1:])
	if err != nil {
		return 0, fmt.Errorf("invalid count in content range %q: %w", v, err)
	}
	return n, nil
}

// Clients reads and writes the clients table.
type Clients struct {
	client *Client
}

func NewClients(c *Client) *Clients {
	return &Clients{client: c}
}

func (s *Clients) list(ctx context.Context, q url.Values) ([]*domain.Client, error) {
	var rows []clientRow
	if _, err := s.client.do(ctx, call{method: http.MethodGet, path: "/rest/v1/clients", query: q}, &rows); err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	clients := make([]*domain.Client, 0, len(rows))
	for i := range rows {
		clients = append(clients, rows[i].toDomain())
	}
	return clients, nil
}

func (s *Clients) one(ctx context.Context, method string, q url.Values, body any) (*domain.Client, error) {
	var rows []clientRow
	_, err := s.client.do(ctx, call{method: method, path: "/rest/v1/clients", query: q, body: body, headers: returnRepresentation}, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return rows[0].toDomain(), nil
}

func (s *Clients) Create(ctx context.Context, ownerID string, in domain.ClientInput) (*domain.Client, error) {
	c, err := s.one(ctx, http.MethodPost, url.Values{"select": {"*"}}, map[string]any{
		"user_id": ownerID, "name": in.Name, "email": nullable(in.Email), "phone": nullable(in.Phone),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return c, nil
}

func (s *Clients) GetByID(ctx context.Context, ownerID, id string) (*domain.Client, error) {
	clients, err := s.list(ctx, byID(ownerID, id))
	if err != nil || len(clients) == 0 {
		return nil, err
	}
	return clients[0], nil
}

func (s *Clients) List(ctx context.Context, ownerID, nameQuery string) ([]*domain.Client, error) {
	q := ownerQuery(ownerID)
	if nameQuery != "" {
		q.Set("name", ilike(nameQuery))
	}
	q.Set("order", "created_at.desc")
	return s.list(ctx, q)
}

func (s *Clients) Recent(ctx context.Context, ownerID string, limit int) ([]*domain.Client, error) {
	q := ownerQuery(ownerID)
	q.Set("order", "created_at.desc")
	q.Set("limit", strconv.Itoa(limit))
	return s.list(ctx, q)
}

func (s *Clients) SearchByName(ctx context.Context, ownerID, nameQuery string, limit int) ([]*domain.Client, error) {
	q := ownerQuery(ownerID)
	q.Set("name", ilike(nameQuery))
	q.Set("order", "name.asc")
	q.Set("limit", strconv.Itoa(limit))
	return s.list(ctx, q)
}

func (s *Clients) Update(ctx context.Context, ownerID, id string, in domain.ClientInput) (*domain.Client, error) {
	c, err := s.one(ctx, http.MethodPatch, byID(ownerID, id), map[string]any{
		"name": in.Name, "email": nullable(in.Email), "phone": nullable(in.Phone),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update client: %w", err)
	}
	return c, nil
}

func (s *Clients) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := s.one(ctx, http.MethodDelete, byID(ownerID, id), nil); err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	return nil
}

func (s *Clients) Count(ctx context.Context, ownerID string) (int, error) {
	return s.client.count(ctx, "clients", url.Values{"user_id": {"eq." + ownerID}})
}

// Sales reads and writes the sales table, embedding the client's name.
type Sales struct {
	client *Client
}

func NewSales(c *Client) *Sales {
	return &Sales{client: c}
}

const saleSelect = "*,clients(name)"

func (s *Sales) rows(ctx context.Context, method string, q url.Values, body any) ([]*domain.Sale, error) {
	var rows []saleRow
	cl := call{method: method, path: "/rest/v1/sales", query: q, body: body}
	if method != http.MethodGet {
		cl.headers = returnRepresentation
	}
	if _, err := s.client.do(ctx, cl, &rows); err != nil {
		return nil, err
	}
	sales := make([]*domain.Sale, 0, len(rows))
	for i := range rows {
		sale, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, nil
}

func (s *Sales) Create(ctx context.Context, ownerID string, in domain.SaleInput) (*domain.Sale, error) {
	sales, err := s.rows(ctx, http.MethodPost, url.Values{"select": {saleSelect}}, map[string]any{
		"user_id":      ownerID,
		"client_id":    in.ClientID,
		"sale_date":    in.SaleDate.Format(domain.DateLayout),
		"instagram":    nullable(in.Instagram),
		"notes":        nullable(in.Notes),
		"is_completed": in.IsCompleted,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sale: %w", err)
	}
	if len(sales) == 0 {
		return nil, fmt.Errorf("failed to create sale: no row returned")
	}
	return sales[0], nil
}

func (s *Sales) GetByID(ctx context.Context, ownerID, id string) (*domain.Sale, error) {
	q := byID(ownerID, id)
	q.Set("select", saleSelect)
	sales, err := s.rows(ctx, http.MethodGet, q, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get sale: %w", err)
	}
	if len(sales) == 0 {
		return nil, nil
	}
	return sales[0], nil
}

func (s *Sales) List(ctx context.Context, ownerID string, f domain.SaleFilter) ([]*domain.Sale, error) {
	q := ownerQuery(ownerID)
	q.Set("select", saleSelect)
	if f.Completed != nil {
		q.Set("is_completed", "eq."+strconv.FormatBool(*f.Completed))
	}
	if f.HasDateRange() {
		q.Add("sale_date", "gte."+f.From.Format(domain.DateLayout))
		q.Add("sale_date", "lte."+f.To.Format(domain.DateLayout))
	}
	q.Set("order", "sale_date.desc")
	sales, err := s.rows(ctx, http.MethodGet, q, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	return sales, nil
}

func (s *Sales) Update(ctx context.Context, ownerID, id string, in domain.SaleInput) (*domain.Sale, error) {
	q := byID(ownerID, id)
	q.Set("select", saleSelect)
	sales, err := s.rows(ctx, http.MethodPatch, q, map[string]any{
		"sale_date":    in.SaleDate.Format(domain.DateLayout),
		"instagram":    nullable(in.Instagram),
		"notes":        nullable(in.Notes),
		"is_completed": in.IsCompleted,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update sale: %w", err)
	}
	if len(sales) == 0 {
		return nil, domain.ErrNotFound
	}
	return sales[0], nil
}

func (s *Sales) Delete(ctx context.Context, ownerID, id string) error {
	sales, err := s.rows(ctx, http.MethodDelete, byID(ownerID, id), nil)
	if err != nil {
		return fmt.Errorf("failed to delete sale: %w", err)
	}
	if len(sales) == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Sales) Count(ctx context.Context, ownerID string, completed *bool) (int, error) {
	q := url.Values{"user_id": {"eq." + ownerID}}
	if completed != nil {
		q.Set("is_completed", "eq."+strconv.FormatBool(*completed))
	}
	return s.client.count(ctx, "sales", q)
}

// Photos reads and writes the sale_photos table.
type Photos struct {
	client *Client
}

func NewPhotos(c *Client) *Photos {
	return &Photos{client: c}
}

func (s *Photos) rows(ctx context.Context, method string, q url.Values, body any) ([]*domain.SalePhoto, error) {
	var rows []photoRow
	cl := call{method: method, path: "/rest/v1/sale_photos", query: q, body: body}
	if method != http.MethodGet {
		cl.headers = returnRepresentation
	}
	if _, err := s.client.do(ctx, cl, &rows); err != nil {
		return nil, err
	}
	photos := make([]*domain.SalePhoto, 0, len(rows))
	for i := range rows {
		photos = append(photos, rows[i].toDomain())
	}
	return photos, nil
}

func (s *Photos) Create(ctx context.Context, ownerID, saleID, storagePath string) (*domain.SalePhoto, error) {
	photos, err := s.rows(ctx, http.MethodPost, url.Values{"select": {"*"}}, map[string]string{
		"user_id": ownerID, "sale_id": saleID, "storage_path": storagePath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create photo: %w", err)
	}
	if len(photos) == 0 {
		return nil, fmt.Errorf("failed to create photo: no row returned")
	}
	return photos[0], nil
}

func (s *Photos) GetByID(ctx context.Context, ownerID, id string) (*domain.SalePhoto, error) {
	photos, err := s.rows(ctx, http.MethodGet, byID(ownerID, id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get photo: %w", err)
	}
	if len(photos) == 0 {
		return nil, nil
	}
	return photos[0], nil
}

func (s *Photos) ListBySale(ctx context.Context, ownerID, saleID string) ([]*domain.SalePhoto, error) {
	q := ownerQuery(ownerID)
	q.Set("sale_id", "eq."+saleID)
	q.Set("order", "created_at.asc")
	photos, err := s.rows(ctx, http.MethodGet, q, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	return photos, nil
}

func (s *Photos) Delete(ctx context.Context, ownerID, id string) error {
	photos, err := s.rows(ctx, http.MethodDelete, byID(ownerID, id), nil)
	if err != nil {
		return fmt.Errorf("failed to delete photo: %w", err)
	}
	if len(photos) == 0 {
		return domain.ErrNotFound
	}
	return nil
}
