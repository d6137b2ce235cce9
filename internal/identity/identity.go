// Package identity provides bearer-token identity primitives and the HTTP
// middleware that attaches the authenticated user to the request context.
package identity

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/cognivyu/cognivyu/internal/domain"
)

type contextKey int

const (
	userKey contextKey = iota
)

// UserLookup resolves the username carried by an access token.
type UserLookup interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

// UserFromContext returns the authenticated user, or nil.
func UserFromContext(ctx context.Context) *domain.User {
	if v, ok := ctx.Value(userKey).(*domain.User); ok {
		return v
	}
	return nil
}

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) int64 {
	if u := UserFromContext(ctx); u != nil {
		return u.ID
	}
	return 0
}

// UsernameFromContext extracts the username from the request context.
func UsernameFromContext(ctx context.Context) string {
	if u := UserFromContext(ctx); u != nil {
		return u.Username
	}
	return ""
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// TokenQueryParam carries the access token for browser WebSocket clients,
// which cannot set an Authorization header.
const TokenQueryParam = "token"

// TokenFromRequest reads a bearer token from the Authorization header. When
// allowQuery is set and no header is present, the token query parameter is used.
func TokenFromRequest(r *http.Request, allowQuery bool) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if allowQuery {
		return r.URL.Query().Get(TokenQueryParam)
	}
	return ""
}

// Option configures Middleware.
type Option func(*options)

type options struct {
	allowQueryToken bool
}

// WithQueryToken accepts the token query parameter. Use it only on the WebSocket route.
func WithQueryToken() Option {
	return func(o *options) { o.allowQueryToken = true }
}

// Middleware authenticates requests with a bearer access token.
func Middleware(issuer *Issuer, users UserLookup, opts ...Option) func(http.Handler) http.Handler {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r, o.allowQueryToken)
			if token == "" {
				unauthorized(w)
				return
			}

			username, err := issuer.ParseAccessToken(token)
			if err != nil {
				unauthorized(w)
				return
			}

			user, err := users.GetUserByUsername(r.Context(), username)
			if err != nil {
				http.Error(w, `{"error":"failed to load user"}`, http.StatusInternalServerError)
				return
			}
			if user == nil {
				http.Error(w, `{"error":"user not found"}`, http.StatusNotFound)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
}

// IPFromRequest returns a normalized remote IP for rate limiting and tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
