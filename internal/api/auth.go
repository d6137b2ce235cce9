package api

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"

	"github.com/cognivyu/cognivyu/internal/auth"
	"github.com/cognivyu/cognivyu/internal/domain"
	"github.com/cognivyu/cognivyu/internal/identity"
)

const (
	oauthStateCookie    = "cognivyu_oauth_state"
	oauthVerifierCookie = "cognivyu_oauth_verifier"
	oauthCookiePath     = "/auth/google"
	oauthCookieMaxAge   = 10 * time.Minute

	chatPagePath = "/static/chatbot.html"
)

// Accounts is the account service used by AuthHandler.
type Accounts interface {
	Register(ctx context.Context, in auth.RegisterInput) (*domain.User, error)
	Verify(ctx context.Context, token string) (auth.VerifyOutcome, error)
	Login(ctx context.Context, username, password string) (string, error)
	GoogleSignIn(ctx context.Context, info *auth.GoogleUserInfo) (string, error)
}

// GoogleOAuth runs the Google authorization code flow.
type GoogleOAuth interface {
	AuthCodeURL(state, verifier string) string
	UserInfo(ctx context.Context, code, verifier string) (*auth.GoogleUserInfo, error)
}

// AuthHandler handles registration, verification, login and profile endpoints.
type AuthHandler struct {
	accounts      Accounts
	google        GoogleOAuth
	secureCookies bool
}

// NewAuthHandler creates an auth handler. google may be nil to disable Google sign-in.
func NewAuthHandler(accounts Accounts, google GoogleOAuth, secureCookies bool) *AuthHandler {
	return &AuthHandler{accounts: accounts, google: google, secureCookies: secureCookies}
}

// RegisterRoutes registers the public auth routes.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/register", h.Register)
	r.Get("/verify", h.Verify)
	r.Post("/login", h.Login)
	r.Get("/login/google", h.GoogleLogin)
	r.Get("/auth/google/callback", h.GoogleCallback)
}

// Register creates an account and queues the verification email.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	_, err := h.accounts.Register(r.Context(), in)
	switch {
	case err == nil:
		JSON(w, http.StatusOK, map[string]string{"msg": "Registration successful! Check your email to verify."})
	case errors.Is(err, auth.ErrUsernameTaken):
		Error(w, http.StatusBadRequest, "Username already taken")
	case errors.Is(err, auth.ErrEmailTaken):
		Error(w, http.StatusBadRequest, "Email already registered")
	case errors.Is(err, auth.ErrInvalidInput):
		Error(w, http.StatusBadRequest, "invalid registration data")
	default:
		slog.ErrorContext(r.Context(), "Registration failed", "error", err)
		Error(w, http.StatusInternalServerError, "registration failed")
	}
}

// Verify confirms an email address from the link in the verification email.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		HTML(w, http.StatusBadRequest, "<h3>Invalid token </h3>")
		return
	}

	outcome, err := h.accounts.Verify(r.Context(), token)
	switch {
	case err == nil && outcome == auth.AlreadyVerified:
		HTML(w, http.StatusOK, "<h3>User already verified</h3>")
	case err == nil:
		HTML(w, http.StatusOK, "<h3>Email verified successfully </h3>")
	case errors.Is(err, identity.ErrExpiredToken):
		HTML(w, http.StatusBadRequest, "<h3>Verification link expired </h3>")
	case errors.Is(err, identity.ErrInvalidToken):
		HTML(w, http.StatusBadRequest, "<h3>Invalid token </h3>")
	case errors.Is(err, auth.ErrUserNotFound):
		HTML(w, http.StatusNotFound, "<h3>User not found</h3>")
	default:
		slog.ErrorContext(r.Context(), "Verification failed", "error", err)
		HTML(w, http.StatusInternalServerError, "<h3>Verification failed</h3>")
	}
}

// Login exchanges form credentials for a bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		Error(w, http.StatusBadRequest, "invalid form")
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		Error(w, http.StatusBadRequest, "Invalid username or password")
		return
	}

	token, err := h.accounts.Login(r.Context(), username, password)
	switch {
	case err == nil:
		JSON(w, http.StatusOK, map[string]string{"access_token": token, "token_type": "bearer"})
	case errors.Is(err, auth.ErrInvalidCredentials):
		Error(w, http.StatusBadRequest, "Invalid username or password")
	case errors.Is(err, auth.ErrEmailNotVerified):
		Error(w, http.StatusBadRequest, "Email not verified. Please check your inbox for a verification link.")
	default:
		slog.ErrorContext(r.Context(), "Login failed", "error", err)
		Error(w, http.StatusInternalServerError, "login failed")
	}
}

// GoogleLogin redirects to the Google consent screen.
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		Error(w, http.StatusNotFound, "google login is not configured")
		return
	}

	state := oauth2.GenerateVerifier()
	verifier := oauth2.GenerateVerifier()
	h.setOAuthCookie(w, oauthStateCookie, state, oauthCookieMaxAge)
	h.setOAuthCookie(w, oauthVerifierCookie, verifier, oauthCookieMaxAge)

	http.Redirect(w, r, h.google.AuthCodeURL(state, verifier), http.StatusFound)
}

var googleSuccessTmpl = template.Must(template.New("google").Parse(`<html>
    <head>
        <title>Authentication Successful</title>
    </head>
    <body>
        <h1>Login successful! Redirecting...</h1>
        <script>
            localStorage.setItem('accessToken', {{.Token}});
            window.location.href = {{.Redirect}};
        </script>
    </body>
</html>
`))

// GoogleCallback completes Google sign-in and hands the token to the chat page.
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		Error(w, http.StatusNotFound, "google login is not configured")
		return
	}

	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		Error(w, http.StatusBadRequest, "invalid oauth state")
		return
	}
	verifierCookie, err := r.Cookie(oauthVerifierCookie)
	if err != nil || verifierCookie.Value == "" {
		Error(w, http.StatusBadRequest, "missing oauth verifier")
		return
	}
	h.setOAuthCookie(w, oauthStateCookie, "", -1)
	h.setOAuthCookie(w, oauthVerifierCookie, "", -1)

	code := r.URL.Query().Get("code")
	if code == "" {
		Error(w, http.StatusBadRequest, "missing authorization code")
		return
	}

	info, err := h.google.UserInfo(r.Context(), code, verifierCookie.Value)
	if err != nil {
		slog.WarnContext(r.Context(), "Google token exchange failed", "error", err)
		Error(w, http.StatusBadGateway, "google sign-in failed")
		return
	}

	token, err := h.accounts.GoogleSignIn(r.Context(), info)
	switch {
	case errors.Is(err, auth.ErrEmailNotVerified):
		Error(w, http.StatusForbidden, "google account email is not verified")
		return
	case errors.Is(err, auth.ErrAccountPending):
		Error(w, http.StatusForbidden, "an account with this email is awaiting verification")
		return
	case err != nil:
		slog.ErrorContext(r.Context(), "Google sign-in failed", "email", info.Email, "error", err)
		Error(w, http.StatusInternalServerError, "google sign-in failed")
		return
	}

	var buf bytes.Buffer
	if err := googleSuccessTmpl.Execute(&buf, struct{ Token, Redirect string }{token, chatPagePath}); err != nil {
		Error(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	HTML(w, http.StatusOK, buf.String())
}

func (h *AuthHandler) setOAuthCookie(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     oauthCookiePath,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secureCookies,
	}
	if maxAge < 0 {
		c.MaxAge = -1
	} else {
		c.MaxAge = int(maxAge.Seconds())
		c.Expires = time.Now().Add(maxAge)
	}
	http.SetCookie(w, c)
}

// Me returns the authenticated user's profile.
func Me(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	if user == nil {
		Error(w, http.StatusUnauthorized, "invalid token")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
	})
}
