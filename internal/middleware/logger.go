package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"tasvir/internal/metrics"
)

// quietRoutes are polled by orchestrators and logged at debug level.
var quietRoutes = map[string]bool{
	"/v1/healthz": true,
	"/v1/readyz":  true,
	"/metrics":    true,
}

// requestRecord carries what inner middleware learns about the caller back
// out to the access log, which only sees the outer request.
type requestRecord struct {
	userID  string
	country string
}

type recordKey struct{}

func recordFrom(ctx context.Context) *requestRecord {
	rec, _ := ctx.Value(recordKey{}).(*requestRecord)
	return rec
}

// Logger writes one access line per request and observes its latency under
// the chi route pattern, so ids in paths stay out of metric labels.
func Logger(l zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &requestRecord{}
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), recordKey{}, rec)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			route := routePattern(r)
			metrics.HTTPRequestDuration.WithLabelValues(route, r.Method, statusClass(status)).Observe(elapsed.Seconds())

			accessEvent(l, route, status).
				Str("method", r.Method).
				Str("route", route).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", elapsed).
				Str("request_id", RequestIDFromContext(r.Context())).
				Str("user_id", rec.userID).
				Str("country", rec.country).
				Msg("http request")
		})
	}
}

func accessEvent(l zerolog.Logger, route string, status int) *zerolog.Event {
	switch {
	case status >= http.StatusInternalServerError:
		return l.Error()
	case status >= http.StatusBadRequest:
		return l.Warn()
	case quietRoutes[route]:
		return l.Debug()
	default:
		return l.Info()
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}
