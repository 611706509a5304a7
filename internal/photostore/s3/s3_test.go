package s3

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type request struct {
	method string
	path   string
	body   string
	ctype  string
}

type fakeS3 struct {
	mu       sync.Mutex
	requests []request
	status   int
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, request{method: r.Method, path: r.URL.Path, body: string(body), ctype: r.Header.Get("Content-Type")})
	status := f.status
	f.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if r.Method == http.MethodDelete {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func newTestStore(t *testing.T, handler http.Handler) *S3PhotoStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store, err := NewS3PhotoStore(context.Background(), Config{
		Endpoint:        srv.URL,
		Region:          "us-east-1",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		Bucket:          "sale-photos",
	})
	require.NoError(t, err)
	return store
}

func TestS3PhotoStoreUpload(t *testing.T) {
	fake := &fakeS3{}
	store := newTestStore(t, fake)

	err := store.Upload(context.Background(), "owner/sale/1-a.jpg", "image/jpeg", strings.NewReader("jpeg bytes"))
	require.NoError(t, err)

	require.Len(t, fake.requests, 1)
	assert.Equal(t, http.MethodPut, fake.requests[0].method)
	assert.Equal(t, "/sale-photos/owner/sale/1-a.jpg", fake.requests[0].path)
	assert.Equal(t, "image/jpeg", fake.requests[0].ctype)
	assert.Contains(t, fake.requests[0].body, "jpeg bytes")
}

func TestS3PhotoStoreRemove(t *testing.T) {
	fake := &fakeS3{}
	store := newTestStore(t, fake)

	require.NoError(t, store.Remove(context.Background(), "a/1.jpg", "a/2.jpg"))

	require.Len(t, fake.requests, 2)
	assert.Equal(t, http.MethodDelete, fake.requests[0].method)
	assert.Equal(t, "/sale-photos/a/1.jpg", fake.requests[0].path)
	assert.Equal(t, "/sale-photos/a/2.jpg", fake.requests[1].path)
}

func TestS3PhotoStoreRemoveError(t *testing.T) {
	fake := &fakeS3{status: http.StatusForbidden}
	store := newTestStore(t, fake)

	assert.Error(t, store.Remove(context.Background(), "a/1.jpg"))
}

func TestS3PhotoStoreSignedURL(t *testing.T) {
	store := newTestStore(t, &fakeS3{})

	raw, err := store.SignedURL(context.Background(), "owner/sale/1-a.jpg", time.Hour)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/sale-photos/owner/sale/1-a.jpg", u.Path)
	assert.Equal(t, "3600", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}
