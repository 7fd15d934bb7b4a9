package dash

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenAudience = "dashview"
	// TokenHeader carries the session token on callback requests.
	TokenHeader = "X-Dash-Token"
	// TokenQueryParam carries the session token when opening the websocket.
	TokenQueryParam = "token"
)

var ErrInvalidToken = errors.New("invalid session token")

// TokenIssuer signs and verifies the per-run page session token. The token is
// embedded in the page shell, so only pages served by this server can invoke
// callbacks; other local origins cannot read it.
type TokenIssuer struct {
	secret  []byte
	subject string
	expiry  time.Duration
}

// NewTokenIssuer creates a TokenIssuer with a fresh random secret.
// subject identifies the run, expiry bounds the lifetime of issued tokens.
func NewTokenIssuer(subject string, expiry time.Duration) (*TokenIssuer, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate token secret: %w", err)
	}
	return &TokenIssuer{secret: secret, subject: subject, expiry: expiry}, nil
}

// Issue creates a signed token.
func (ti *TokenIssuer) Issue() (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   ti.subject,
		Audience:  jwt.ClaimStrings{tokenAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ti.expiry)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return tokenString, nil
}

// Verify checks signature, audience, subject and expiry of tokenString.
func (ti *TokenIssuer) Verify(tokenString string) error {
	if tokenString == "" {
		return ErrInvalidToken
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return ti.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(tokenAudience),
		jwt.WithSubject(ti.subject),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}

// tokenFromRequest reads the token from the header, a bearer Authorization, or the query string.
func tokenFromRequest(r *http.Request) string {
	if token := r.Header.Get(TokenHeader); token != "" {
		return token
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get(TokenQueryParam)
}

// RequireToken rejects requests without a valid session token.
func (ti *TokenIssuer) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := ti.Verify(tokenFromRequest(r)); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
