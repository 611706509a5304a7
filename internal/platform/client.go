package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/vbonduro/fotovendas/internal/identity"
)

// APIError is a non-2xx answer from the platform. Message is the
// human-readable text the platform returned.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client speaks the platform's REST dialect: GoTrue-style auth under
// /auth/v1, PostgREST-style tables under /rest/v1 and object storage under
// /storage/v1.
type Client struct {
	baseURL string
	anonKey string
	client  *http.Client
}

func NewClient(baseURL, anonKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		client:  &http.Client{},
	}
}

type call struct {
	method  string
	path    string
	query   url.Values
	body    any
	raw     io.Reader
	token   string
	headers map[string]string
}

// bearer picks the signed-in user's token from ctx, falling back to the
// public key for anonymous calls.
func (c *Client) bearer(ctx context.Context) string {
	if token := identity.AccessToken(ctx); token != "" {
		return token
	}
	return c.anonKey
}

// do performs the call and decodes a JSON answer into out when out is not nil.
func (c *Client) do(ctx context.Context, cl call, out any) (http.Header, error) {
	target := c.baseURL + cl.path
	if len(cl.query) > 0 {
		target += "?" + cl.query.Encode()
	}

	var body io.Reader = cl.raw
	if cl.body != nil {
		payload, err := json.Marshal(cl.body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	token := cl.token
	if token == "" {
		token = c.bearer(ctx)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range cl.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call platform: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("failed to close platform response body", "error", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(resp.Body)
		return resp.Header, &APIError{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, errBody)}
	}

	if out != nil && resp.StatusCode != http.StatusNoContent && cl.method != http.MethodHead {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.Header, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.Header, nil
}

// errorMessage extracts the text of an error body. The auth, table and
// storage services each use different field names.
func errorMessage(status int, body []byte) string {
	var fields struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
	}
	if err := json.Unmarshal(body, &fields); err == nil {
		for _, m := range []string{fields.Msg, fields.ErrorDescription, fields.Message, fields.Error} {
			if m != "" {
				return m
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return fmt.Sprintf("platform returned status %d", status)
}
