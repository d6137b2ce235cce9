package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VerificationTTL is the lifetime of an email verification token.
const VerificationTTL = time.Hour

// Audiences keep access and verification tokens from standing in for each other.
const (
	accessAudience       = "cognivyu:access"
	verificationAudience = "cognivyu:verify"
)

var (
	// ErrInvalidToken is returned for malformed, forged or unexpected tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned for well-formed tokens past their expiry.
	ErrExpiredToken = errors.New("token expired")
)

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an issuer. Access tokens live for ttl.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

type verificationClaims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// IssueAccessToken returns a bearer token whose subject is the username.
func (i *Issuer) IssueAccessToken(username string) (string, error) {
	now := i.now()
	claims := jwt.RegisteredClaims{
		Subject:  username,
		Audience: jwt.ClaimStrings{accessAudience},
		IssuedAt: jwt.NewNumericDate(now),
	}
	if i.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	}
	return i.sign(claims)
}

// ParseAccessToken returns the username carried by token.
func (i *Issuer) ParseAccessToken(token string) (string, error) {
	var claims jwt.RegisteredClaims
	if err := i.parse(token, &claims, accessAudience); err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// IssueVerificationToken returns a short-lived token naming the user to verify.
func (i *Issuer) IssueVerificationToken(userID int64) (string, error) {
	now := i.now()
	return i.sign(verificationClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{verificationAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(VerificationTTL)),
		},
	})
}

// ParseVerificationToken returns the user id carried by a verification token.
func (i *Issuer) ParseVerificationToken(token string) (int64, error) {
	var claims verificationClaims
	if err := i.parse(token, &claims, verificationAudience); err != nil {
		return 0, err
	}
	if claims.UserID == 0 {
		return 0, ErrInvalidToken
	}
	return claims.UserID, nil
}

func (i *Issuer) sign(claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (i *Issuer) parse(token string, claims jwt.Claims, audience string) error {
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithAudience(audience),
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpiredToken
	default:
		return ErrInvalidToken
	}
}
