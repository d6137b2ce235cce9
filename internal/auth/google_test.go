package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestNewGoogleProvider_Disabled(t *testing.T) {
	assert.Nil(t, NewGoogleProvider("", "", ""))
}

func TestGoogleProvider_AuthCodeURL(t *testing.T) {
	g := NewGoogleProvider("client", "secret", "http://localhost:8000/auth/google/callback")
	require.NotNil(t, g)

	raw := g.AuthCodeURL("state123", oauth2.GenerateVerifier())
	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "state123", q.Get("state"))
	assert.Equal(t, "client", q.Get("client_id"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.Contains(t, q.Get("scope"), "email")
}

func TestGoogleProvider_UserInfo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		assert.Equal(t, "the-verifier", r.PostForm.Get("code_verifier"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"email":"alice@gmail.com","email_verified":true,"name":"Alice"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := NewGoogleProvider("client", "secret", "http://localhost/cb")
	g.config.Endpoint = oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"}
	g.userInfoURL = srv.URL + "/userinfo"

	info, err := g.UserInfo(context.Background(), "the-code", "the-verifier")
	require.NoError(t, err)
	assert.Equal(t, "alice@gmail.com", info.Email)
	assert.Equal(t, "Alice", info.Name)
	assert.True(t, info.EmailVerified)
}

func TestGoogleProvider_UserInfoFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","token_type":"Bearer"}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := NewGoogleProvider("client", "secret", "http://localhost/cb")
	g.config.Endpoint = oauth2.Endpoint{TokenURL: srv.URL + "/token"}
	g.userInfoURL = srv.URL + "/userinfo"

	_, err := g.UserInfo(context.Background(), "c", "v")
	assert.Error(t, err)
}
