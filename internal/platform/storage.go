package platform

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Storage is a photostore.PhotoStore over the platform's object storage.
type Storage struct {
	client *Client
	bucket string
}

func NewStorage(c *Client, bucket string) *Storage {
	return &Storage{client: c, bucket: bucket}
}

func (s *Storage) objectPath(prefix, key string) string {
	return "/storage/v1/" + prefix + "/" + s.bucket + "/" + strings.TrimLeft(key, "/")
}

func (s *Storage) Upload(ctx context.Context, key, mimeType string, r io.Reader) error {
	_, err := s.client.do(ctx, call{
		method:  http.MethodPost,
		path:    s.objectPath("object", key),
		raw:     r,
		headers: map[string]string{"Content-Type": mimeType, "x-upsert": "false"},
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

func (s *Storage) Remove(ctx context.Context, keys ...string) error {
	_, err := s.client.do(ctx, call{
		method: http.MethodDelete,
		path:   "/storage/v1/object/" + s.bucket,
		body:   map[string][]string{"prefixes": keys},
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to remove objects: %w", err)
	}
	return nil
}

func (s *Storage) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	var out struct {
		SignedURL string `json:"signedURL"`
	}
	_, err := s.client.do(ctx, call{
		method: http.MethodPost,
		path:   s.objectPath("object/sign", key),
		body:   map[string]int{"expiresIn": int(expiry.Seconds())},
	}, &out)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", key, err)
	}
	if out.SignedURL == "" {
		return "", fmt.Errorf("failed to sign %s: empty url", key)
	}
	return s.client.baseURL + "/storage/v1" + out.SignedURL, nil
}
