package dash

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer("run-a", time.Minute)
	if err != nil {
		t.Fatalf("NewTokenIssuer failed: %v", err)
	}
	token, err := issuer.Issue()
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if err := issuer.Verify(token); err != nil {
		t.Errorf("Verify rejected a fresh token: %v", err)
	}
}

func TestTokenRejected(t *testing.T) {
	issuer, _ := NewTokenIssuer("run-a", time.Minute)
	other, _ := NewTokenIssuer("run-a", time.Minute)
	otherRun, _ := NewTokenIssuer("run-b", time.Minute)
	expired, _ := NewTokenIssuer("run-a", -time.Minute)
	expired.secret = issuer.secret
	otherRun.secret = issuer.secret

	foreign, _ := other.Issue()
	wrongSubject, _ := otherRun.Issue()
	stale, _ := expired.Issue()

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"other secret", foreign},
		{"other run", wrongSubject},
		{"expired", stale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := issuer.Verify(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestRequireToken(t *testing.T) {
	issuer, _ := NewTokenIssuer("run-a", time.Minute)
	token, _ := issuer.Issue()
	handler := issuer.RequireToken(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"none", func(r *http.Request) {}, http.StatusUnauthorized},
		{"header", func(r *http.Request) { r.Header.Set(TokenHeader, token) }, http.StatusNoContent},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusNoContent},
		{"query", func(r *http.Request) {
			q := r.URL.Query()
			q.Set(TokenQueryParam, token)
			r.URL.RawQuery = q.Encode()
		}, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, rec.Code)
			}
		})
	}
}
