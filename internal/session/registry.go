package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vbonduro/fotovendas/internal/identity"
	"github.com/vbonduro/fotovendas/internal/menu"
	"github.com/vbonduro/fotovendas/internal/upload"
)

// maxTrays is how many forms of one browser may have images staged at once.
const maxTrays = 8

var ErrTooManyTrays = errors.New("too many upload trays")

// Browser is everything the server keeps for one browser between requests.
type Browser struct {
	ID      string
	Session *Store
	Menu    *menu.Store

	mu       sync.Mutex
	trays    map[string]*upload.Tray
	lastSeen time.Time
}

// Tray returns the upload tray of the form identified by key, creating it on
// first use. Creating more than maxTrays trays fails with ErrTooManyTrays.
func (b *Browser) Tray(key string) (*upload.Tray, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.trays[key]
	if !ok {
		if len(b.trays) >= maxTrays {
			return nil, ErrTooManyTrays
		}
		t = upload.NewTray()
		b.trays[key] = t
	}
	return t, nil
}

// LookupTray returns the tray of key without creating it.
func (b *Browser) LookupTray(key string) (*upload.Tray, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.trays[key]
	return t, ok
}

// StagedImages returns the images staged for key, if any.
func (b *Browser) StagedImages(key string) []*upload.Image {
	t, ok := b.LookupTray(key)
	if !ok {
		return nil
	}
	return t.Images()
}

// ReleaseTray drops the tray of key and every image staged in it.
func (b *Browser) ReleaseTray(key string) {
	b.mu.Lock()
	t, ok := b.trays[key]
	delete(b.trays, key)
	b.mu.Unlock()
	if ok {
		t.Release()
	}
}

func (b *Browser) releaseTrays() {
	b.mu.Lock()
	trays := b.trays
	b.trays = make(map[string]*upload.Tray)
	b.mu.Unlock()
	for _, t := range trays {
		t.Release()
	}
}

func (b *Browser) dispose() {
	b.releaseTrays()
	b.Menu.Close()
	b.Session.Close()
}

// Registry owns the per-browser state of the process. It is created at
// startup and closed at shutdown.
type Registry struct {
	provider identity.Provider
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	browsers map[string]*Browser
}

func NewRegistry(provider identity.Provider, logger *slog.Logger) *Registry {
	return &Registry{
		provider: provider,
		logger:   logger,
		now:      time.Now,
		browsers: make(map[string]*Browser),
	}
}

// Get returns the browser with id and marks it as recently seen.
func (r *Registry) Get(id string) (*Browser, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.browsers[id]
	if ok {
		b.mu.Lock()
		b.lastSeen = r.now()
		b.mu.Unlock()
	}
	return b, ok
}

// Open returns the browser registered under id. Unknown or empty ids get a
// new browser whose session starts from the given tokens, so a browser
// keeps its sign-in across server restarts.
func (r *Registry) Open(ctx context.Context, id, accessToken, refreshToken string) *Browser {
	if id != "" {
		if b, ok := r.Get(id); ok {
			return b
		}
	} else {
		id = uuid.NewString()
	}

	b := &Browser{
		ID:       id,
		Session:  New(r.provider, r.logger),
		Menu:     &menu.Store{},
		trays:    make(map[string]*upload.Tray),
		lastSeen: r.now(),
	}

	r.mu.Lock()
	if existing, ok := r.browsers[id]; ok {
		r.mu.Unlock()
		return existing
	}
	r.browsers[id] = b
	r.mu.Unlock()

	b.Session.Start(ctx, accessToken, refreshToken)
	return b
}

// Remove disposes the browser with id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	b, ok := r.browsers[id]
	delete(r.browsers, id)
	r.mu.Unlock()
	if ok {
		b.dispose()
	}
}

// Sweep disposes browsers that have not been seen for maxIdle and returns
// how many were removed.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	var stale []*Browser
	for id, b := range r.browsers {
		b.mu.Lock()
		idle := b.lastSeen.Before(cutoff)
		b.mu.Unlock()
		if idle {
			stale = append(stale, b)
			delete(r.browsers, id)
		}
	}
	r.mu.Unlock()

	for _, b := range stale {
		b.dispose()
	}
	if len(stale) > 0 {
		r.logger.Debug("swept idle browsers", "count", len(stale))
	}
	return len(stale)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.browsers)
}

// Close disposes every browser.
func (r *Registry) Close() {
	r.mu.Lock()
	browsers := r.browsers
	r.browsers = make(map[string]*Browser)
	r.mu.Unlock()

	for _, b := range browsers {
		b.dispose()
	}
	r.logger.Info("session registry closed", "browsers", len(browsers))
}
