package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/cognivyu/cognivyu/internal/domain"
	"github.com/cognivyu/cognivyu/internal/store"
)

// GoogleUserInfoURL is the OpenID userinfo endpoint.
const GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// GoogleUserInfo is the subset of userinfo claims used for sign-in.
type GoogleUserInfo struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// GoogleProvider runs the authorization code flow with PKCE.
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

// NewGoogleProvider returns nil when clientID is empty.
func NewGoogleProvider(clientID, clientSecret, redirectURL string) *GoogleProvider {
	if clientID == "" {
		return nil
	}
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: GoogleUserInfoURL,
	}
}

// AuthCodeURL returns the consent URL for state and a PKCE verifier.
func (g *GoogleProvider) AuthCodeURL(state, verifier string) string {
	return g.config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// UserInfo exchanges the code and fetches the user's profile.
func (g *GoogleProvider) UserInfo(ctx context.Context, code, verifier string) (*GoogleUserInfo, error) {
	tok, err := g.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	client := g.config.Client(ctx, tok)
	client.Timeout = 15 * time.Second
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create userinfo request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo request failed with status %d", resp.StatusCode)
	}

	var info GoogleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if info.Email == "" {
		return nil, errors.New("userinfo has no email")
	}
	return &info, nil
}

// GoogleSignIn returns an access token for the Google account, creating a
// verified local user on first sign-in. Google must vouch for the email, and an
// existing account is only linked once its own email was verified.
func (s *Service) GoogleSignIn(ctx context.Context, info *GoogleUserInfo) (string, error) {
	if !info.EmailVerified {
		return "", ErrEmailNotVerified
	}
	user, err := s.users.GetUserByEmail(ctx, info.Email)
	if err != nil {
		return "", fmt.Errorf("lookup email: %w", err)
	}
	if user != nil && !user.IsVerified {
		return "", ErrAccountPending
	}
	if user == nil {
		user, err = s.createGoogleUser(ctx, info)
		if err != nil {
			return "", err
		}
	}
	return s.issuer.IssueAccessToken(user.Username)
}

func (s *Service) createGoogleUser(ctx context.Context, info *GoogleUserInfo) (*domain.User, error) {
	base := strings.TrimSpace(info.Name)
	if base == "" {
		base, _, _ = strings.Cut(info.Email, "@")
	}

	username := base
	for attempt := 0; attempt < 3; attempt++ {
		existing, err := s.users.GetUserByUsername(ctx, username)
		if err != nil {
			return nil, fmt.Errorf("lookup username: %w", err)
		}
		if existing == nil {
			user := &domain.User{
				Username:   username,
				Email:      info.Email,
				IsVerified: true,
				CreatedAt:  time.Now(),
			}
			err := s.users.CreateUser(ctx, user)
			if err == nil {
				return user, nil
			}
			if !errors.Is(err, store.ErrConflict) {
				return nil, fmt.Errorf("create user: %w", err)
			}
		}
		username = base + "-" + uuid.NewString()[:8]
	}
	return nil, ErrUsernameTaken
}
