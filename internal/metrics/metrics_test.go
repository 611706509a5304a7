package metrics

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

func countFor(t *testing.T, route, status string) int64 {
	t.Helper()
	rows, err := view.RetrieveData(RequestCountView.Name)
	require.NoError(t, err)
	for _, row := range rows {
		var gotRoute, gotStatus string
		for _, tg := range row.Tags {
			switch tg.Key {
			case keyRoute:
				gotRoute = tg.Value
			case keyStatus:
				gotStatus = tg.Value
			}
		}
		if gotRoute == route && gotStatus == status {
			return row.Data.(*view.CountData).Value
		}
	}
	return 0
}

func TestWrapCountsByPatternAndStatus(t *testing.T) {
	require.NoError(t, Register())
	require.NoError(t, Register())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /sales/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "missing" {
			http.NotFound(w, r)
		}
	})
	h := Wrap(mux)

	before := countFor(t, "GET /sales/{id}", "200")
	for _, path := range []string{"/sales/1", "/sales/2", "/sales/missing"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, before+2, countFor(t, "GET /sales/{id}", "200"))
	assert.GreaterOrEqual(t, countFor(t, "GET /sales/{id}", "404"), int64(1))
}

func TestLogExporter(t *testing.T) {
	var buf bytes.Buffer
	e := NewLogExporter(slog.New(slog.NewJSONHandler(&buf, nil)))

	e.ExportView(&view.Data{
		View:  RequestCountView,
		Start: time.Now(),
		End:   time.Now(),
		Rows: []*view.Row{{
			Tags: []tag.Tag{{Key: keyRoute, Value: "GET /"}, {Key: keyStatus, Value: "200"}},
			Data: &view.CountData{Value: 3},
		}},
	})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "fotovendas/requests", line["view"])
	assert.Equal(t, "GET /", line["route"])
	assert.Equal(t, float64(3), line["count"])
}
