package domain

import (
	"errors"
	"time"
)

// DateLayout is the wire and storage format of a sale date.
const DateLayout = "2006-01-02"

var ErrNotFound = errors.New("record not found")

type User struct {
	ID        string
	Email     string
	FullName  string
	CreatedAt time.Time
}

// DisplayName falls back to the email when no full name was given at sign-up.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Email
}

type Client struct {
	ID        string
	OwnerID   string
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
}

type Sale struct {
	ID          string
	OwnerID     string
	ClientID    string
	ClientName  string
	SaleDate    time.Time
	Instagram   string
	Notes       string
	IsCompleted bool
	CreatedAt   time.Time
}

type SalePhoto struct {
	ID          string
	OwnerID     string
	SaleID      string
	StoragePath string
	CreatedAt   time.Time
}

// ClientInput carries the editable fields of a client.
type ClientInput struct {
	Name  string
	Email string
	Phone string
}

// SaleInput carries the editable fields of a sale.
type SaleInput struct {
	ClientID    string
	SaleDate    time.Time
	Instagram   string
	Notes       string
	IsCompleted bool
}

// SaleFilter narrows a sales listing. Completed is nil for "any". The date
// range is only applied when both bounds are set. Search is matched in memory
// against the client name and the instagram handle.
type SaleFilter struct {
	Completed *bool
	From      *time.Time
	To        *time.Time
	Search    string
}

// HasDateRange reports whether the filter carries a complete date range.
func (f SaleFilter) HasDateRange() bool {
	return f.From != nil && f.To != nil
}

// SaleCounts is the dashboard snapshot.
type SaleCounts struct {
	Clients   int
	Sales     int
	Completed int
}

func (c SaleCounts) Pending() int {
	return c.Sales - c.Completed
}
