package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

const HeaderRequestID = "X-Request-ID"

// Callers behind some gateways only send a correlation id.
const headerCorrelationID = "X-Correlation-ID"

var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

type requestIDKey struct{}

// RequestID adopts a well-formed id from the caller or mints a time-ordered
// one, and echoes it in the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := incomingRequestID(r)
		if rid == "" {
			rid = newRequestID()
		}
		w.Header().Set(HeaderRequestID, rid)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, rid)))
	})
}

func RequestIDFromContext(ctx context.Context) string {
	rid, _ := ctx.Value(requestIDKey{}).(string)
	return rid
}

func incomingRequestID(r *http.Request) string {
	for _, h := range []string{HeaderRequestID, headerCorrelationID} {
		if v := r.Header.Get(h); requestIDPattern.MatchString(v) {
			return v
		}
	}
	return ""
}

func newRequestID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
