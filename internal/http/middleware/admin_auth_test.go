package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func serveAdmin(t *testing.T, secret, authHeader string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	called := false
	AdminJWT(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		claims, ok := AdminClaimsFromContext(r.Context())
		if !ok || claims.Subject != "ops" {
			t.Errorf("expected admin claims in context, got %#v %v", claims, ok)
		}
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)
	return rec, called
}

func TestAdminJWT(t *testing.T) {
	valid := signedAdminToken(t, "secret", jwt.SigningMethodHS256, time.Now().Add(5*time.Minute))

	tests := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{"missing secret", "", "Bearer " + valid, http.StatusUnauthorized},
		{"missing header", "secret", "", http.StatusUnauthorized},
		{"not bearer", "secret", "Basic abc", http.StatusUnauthorized},
		{"wrong secret", "secret", "Bearer " + signedAdminToken(t, "wrong", jwt.SigningMethodHS256, time.Now().Add(time.Minute)), http.StatusUnauthorized},
		{"expired", "secret", "Bearer " + signedAdminToken(t, "secret", jwt.SigningMethodHS256, time.Now().Add(-time.Minute)), http.StatusUnauthorized},
		{"no expiry", "secret", "Bearer " + signedAdminToken(t, "secret", jwt.SigningMethodHS256, time.Time{}), http.StatusUnauthorized},
		{"valid", "secret", "Bearer " + valid, http.StatusOK},
		{"lowercase scheme", "secret", "bearer " + valid, http.StatusOK},
		{"hs512", "secret", "Bearer " + signedAdminToken(t, "secret", jwt.SigningMethodHS512, time.Now().Add(time.Minute)), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, called := serveAdmin(t, tt.secret, tt.header)
			if rec.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, rec.Code)
			}
			if called != (tt.want == http.StatusOK) {
				t.Fatalf("handler called = %v for status %d", called, rec.Code)
			}
			if tt.want == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Fatalf("expected WWW-Authenticate header")
			}
		})
	}
}

func signedAdminToken(t *testing.T, secret string, method jwt.SigningMethod, expires time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: "ops"}
	if !expires.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(expires)
	}
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
