package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendGridMailerSend(t *testing.T) {
	var body map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	m := NewSendGridMailer("sg-key", "FotoVendas", "no-reply@example.com")
	m.client.BaseURL = srv.URL + "/v3/mail/send"

	err := m.Send(context.Background(), Message{To: "ana@example.com", Subject: "Redefinir senha", Text: "link"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sg-key", auth)
	assert.Equal(t, "Redefinir senha", body["subject"])
	from := body["from"].(map[string]any)
	assert.Equal(t, "no-reply@example.com", from["email"])
	to := body["personalizations"].([]any)[0].(map[string]any)["to"].([]any)[0].(map[string]any)
	assert.Equal(t, "ana@example.com", to["email"])
}

func TestSendGridMailerNon2XX(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[{"message":"bad key"}]}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	m := NewSendGridMailer("sg-key", "FotoVendas", "no-reply@example.com")
	m.client.BaseURL = srv.URL + "/v3/mail/send"

	err := m.Send(context.Background(), Message{To: "ana@example.com", Subject: "x", Text: "y"})
	assert.ErrorContains(t, err, "401")
}

func TestLogMailer(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMailer(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, m.Send(context.Background(), Message{To: "ana@example.com", Subject: "s", Text: "t"}))
	assert.Contains(t, buf.String(), "ana@example.com")
}
