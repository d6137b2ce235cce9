package middleware

import (
	"context"
	"log/slog"
	"net/http"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// RequestIDHandler decorates log records with the chi request id carried by ctx.
type RequestIDHandler struct {
	slog.Handler
}

// NewRequestIDHandler wraps next.
func NewRequestIDHandler(next slog.Handler) *RequestIDHandler {
	return &RequestIDHandler{Handler: next}
}

// Handle adds request_id when the record was logged with a request context.
func (h *RequestIDHandler) Handle(ctx context.Context, rec slog.Record) error {
	if id := chiMiddleware.GetReqID(ctx); id != "" {
		rec.AddAttrs(slog.String("request_id", id))
	}
	return h.Handler.Handle(ctx, rec)
}

func (h *RequestIDHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RequestIDHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *RequestIDHandler) WithGroup(name string) slog.Handler {
	return &RequestIDHandler{Handler: h.Handler.WithGroup(name)}
}

const redacted = "REDACTED"

// RedactQuery masks the named query parameters in r.RequestURI for the
// handlers that follow, so request logs never carry them. r.URL is left
// intact for authentication.
func RedactQuery(params ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.RawQuery == "" {
				next.ServeHTTP(w, r)
				return
			}
			q := r.URL.Query()
			masked := false
			for _, p := range params {
				if q.Has(p) {
					q.Set(p, redacted)
					masked = true
				}
			}
			if !masked {
				next.ServeHTTP(w, r)
				return
			}
			r2 := r.WithContext(r.Context())
			r2.RequestURI = r.URL.EscapedPath() + "?" + q.Encode()
			next.ServeHTTP(w, r2)
		})
	}
}
