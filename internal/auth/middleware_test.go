package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/toolate/internal/tenant"
)

const secret = "test-secret"

func mint(t *testing.T, key string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func serve(token string) (*httptest.ResponseRecorder, *http.Request) {
	var seen *http.Request
	h := NewJWTMiddleware(secret).Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/init", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func TestAuthenticateValidToken(t *testing.T) {
	id := uuid.New()
	token := mint(t, secret, jwt.MapClaims{
		"sub":   id.String(),
		"email": "Owner@Example.com",
		"role":  "authenticated",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	rec, req := serve(token)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	user := tenant.UserFromContext(req.Context())
	if user == nil || user.ID != id || user.Email != "owner@example.com" {
		t.Fatalf("user = %+v", user)
	}
	var claims map[string]any
	if err := json.Unmarshal(tenant.ClaimsFromContext(req.Context()), &claims); err != nil {
		t.Fatalf("claims not JSON: %v", err)
	}
	if claims["sub"] != id.String() {
		t.Fatalf("claims sub = %v", claims["sub"])
	}
}

func TestAuthenticateRejects(t *testing.T) {
	valid := jwt.MapClaims{"sub": uuid.NewString(), "exp": time.Now().Add(time.Hour).Unix()}
	tests := map[string]string{
		"missing":      "",
		"wrong secret": mint(t, "other", valid),
		"expired":      mint(t, secret, jwt.MapClaims{"sub": uuid.NewString(), "exp": time.Now().Add(-time.Hour).Unix()}),
		"no exp":       mint(t, secret, jwt.MapClaims{"sub": uuid.NewString()}),
		"bad subject":  mint(t, secret, jwt.MapClaims{"sub": "anon", "exp": time.Now().Add(time.Hour).Unix()}),
		"service role": mint(t, secret, jwt.MapClaims{"sub": uuid.NewString(), "role": "service_role", "exp": time.Now().Add(time.Hour).Unix()}),
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			rec, req := serve(token)
			if rec.Code != http.StatusUnauthorized || req != nil {
				t.Fatalf("status = %d, handler reached = %v", rec.Code, req != nil)
			}
			var body map[string]string
			_ = json.NewDecoder(rec.Body).Decode(&body)
			if body["error"] != "You must be logged in" {
				t.Fatalf("body = %v", body)
			}
		})
	}
}
