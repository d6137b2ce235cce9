package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewRequestIDHandler(slog.NewJSONHandler(&buf, nil))).With("component", "test")

	ctx := context.WithValue(context.Background(), chiMiddleware.RequestIDKey, "req-42")
	logger.InfoContext(ctx, "hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "req-42", rec["request_id"])
	assert.Equal(t, "test", rec["component"])

	buf.Reset()
	logger.Info("no context")
	rec = nil
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	_, ok := rec["request_id"]
	assert.False(t, ok)
}

func TestRedactQuery(t *testing.T) {
	var gotURI, gotToken string
	h := RedactQuery("token", "code")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURI = r.RequestURI
		gotToken = r.URL.Query().Get("token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/ws/chat?token=secret.jwt.value&session_id=tab-1", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.False(t, strings.Contains(gotURI, "secret.jwt.value"), gotURI)
	assert.Contains(t, gotURI, "token=REDACTED")
	assert.Contains(t, gotURI, "session_id=tab-1")
	assert.Equal(t, "secret.jwt.value", gotToken)

	req = httptest.NewRequest(http.MethodGet, "/conversations?page=2", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "/conversations?page=2", gotURI)
}

func TestRedactQuery_Logger(t *testing.T) {
	var buf bytes.Buffer
	logger := chiMiddleware.RequestLogger(&chiMiddleware.DefaultLogFormatter{
		Logger:  log.New(&buf, "", 0),
		NoColor: true,
	})
	h := RedactQuery("token")(logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/verify?token=abc.def.ghi", nil))

	assert.NotContains(t, buf.String(), "abc.def.ghi")
	assert.Contains(t, buf.String(), "/verify?token=REDACTED")
}
