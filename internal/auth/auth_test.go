package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/medmentor/backend/internal/models"
)

var testSecret = []byte("test-secret")

func TestIssueAndParseToken(t *testing.T) {
	tok, err := IssueToken(testSecret, "u-42", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	p, err := ParseToken(testSecret, tok.Token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if p.UserID != "u-42" {
		t.Errorf("UserID = %q, want u-42", p.UserID)
	}
	if !p.ExpiresAt.Equal(tok.ExpiresAt.Truncate(time.Second)) {
		t.Errorf("ExpiresAt = %v, want %v", p.ExpiresAt, tok.ExpiresAt.Truncate(time.Second))
	}
}

func TestParseTokenRejects(t *testing.T) {
	expired, _ := IssueToken(testSecret, "u1", -time.Minute)
	otherKey, _ := IssueToken([]byte("other"), "u1", time.Hour)

	tests := []struct {
		name string
		raw  string
	}{
		{"garbage", "not-a-token"},
		{"expired", expired.Token},
		{"wrong key", otherKey.Token},
	}
	for _, tt := range tests {
		if _, err := ParseToken(testSecret, tt.raw); err != ErrInvalidToken {
			t.Errorf("%s: ParseToken error = %v, want ErrInvalidToken", tt.name, err)
		}
	}

	if _, err := IssueToken(testSecret, "", time.Hour); err == nil {
		t.Error("IssueToken with empty user id succeeded")
	}
}

func TestMiddleware(t *testing.T) {
	tok, _ := IssueToken(testSecret, "u-7", time.Hour)

	var seen string
	h := Middleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserID(r.Context())
		GetCurrentUser(w, r)
	}))

	tests := []struct {
		header string
		want   int
	}{
		{"", http.StatusUnauthorized},
		{"Token " + tok.Token, http.StatusUnauthorized},
		{"Bearer nope", http.StatusUnauthorized},
		{"Bearer " + tok.Token, http.StatusOK},
	}

	for _, tt := range tests {
		seen = ""
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != tt.want {
			t.Errorf("Authorization %q: status = %d, want %d", tt.header, rec.Code, tt.want)
		}
		if tt.want == http.StatusOK {
			if seen != "u-7" {
				t.Errorf("UserID in handler = %q, want u-7", seen)
			}
			var p models.Principal
			if err := json.NewDecoder(rec.Body).Decode(&p); err != nil || p.UserID != "u-7" {
				t.Errorf("body = %+v, %v; want user u-7", p, err)
			}
		}
	}
}
