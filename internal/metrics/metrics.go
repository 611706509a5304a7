// Package metrics counts served requests with OpenCensus and periodically
// writes the aggregates to the log.
package metrics

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	keyRoute  = tag.MustNewKey("route")
	keyStatus = tag.MustNewKey("status")

	requestCount   = stats.Int64("fotovendas/requests", "Requests handled", stats.UnitDimensionless)
	requestLatency = stats.Float64("fotovendas/request_latency", "Request latency", stats.UnitMilliseconds)

	RequestCountView = &view.View{
		Name:        "fotovendas/requests",
		Description: "Counter of requests that have been handled",
		TagKeys:     []tag.Key{keyRoute, keyStatus},
		Measure:     requestCount,
		Aggregation: view.Count(),
	}
	RequestLatencyView = &view.View{
		Name:        "fotovendas/request_latency",
		Description: "Latency distribution of handled requests",
		TagKeys:     []tag.Key{keyRoute},
		Measure:     requestLatency,
		Aggregation: view.Distribution(5, 25, 100, 250, 1000, 5000),
	}
)

// Register registers the request views. Calling it again is harmless.
func Register() error {
	return view.Register(RequestCountView, RequestLatencyView)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Wrap records one measurement per request, tagged with the ServeMux
// pattern that served it.
func Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		_ = stats.RecordWithTags(r.Context(),
			[]tag.Mutator{
				tag.Upsert(keyRoute, route),
				tag.Upsert(keyStatus, strconv.Itoa(rec.status)),
			},
			requestCount.M(1),
			requestLatency.M(float64(time.Since(start))/float64(time.Millisecond)),
		)
	})
}

// LogExporter writes every exported row as a structured log line.
type LogExporter struct {
	logger *slog.Logger
}

func NewLogExporter(logger *slog.Logger) *LogExporter {
	return &LogExporter{logger: logger}
}

func (e *LogExporter) ExportView(vd *view.Data) {
	for _, row := range vd.Rows {
		attrs := []any{"view", vd.View.Name}
		for _, t := range row.Tags {
			attrs = append(attrs, t.Key.Name(), t.Value)
		}
		switch data := row.Data.(type) {
		case *view.CountData:
			attrs = append(attrs, "count", data.Value)
		case *view.DistributionData:
			attrs = append(attrs, "count", data.Count, "mean_ms", data.Mean, "max_ms", data.Max)
		}
		e.logger.Info("metrics", attrs...)
	}
}
