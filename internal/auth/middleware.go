package auth

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/toolate/internal/models"
	"github.com/nikhilbhutani/toolate/internal/tenant"
)

const unauthenticatedMessage = "You must be logged in"

// Claims is the subset of a Supabase access token the console reads.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type JWTMiddleware struct {
	secret []byte
	parser *jwt.Parser
}

func NewJWTMiddleware(secret string) *JWTMiddleware {
	return &JWTMiddleware{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Authenticate verifies the bearer token and stores the caller and the raw
// claims in the request context.
func (m *JWTMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractBearerToken(r)
		if tokenStr == "" {
			writeError(w, http.StatusUnauthorized, unauthenticatedMessage)
			return
		}

		user, raw, err := m.verify(tokenStr)
		if err != nil {
			writeError(w, http.StatusUnauthorized, unauthenticatedMessage)
			return
		}

		ctx := tenant.WithUser(r.Context(), user)
		ctx = tenant.WithClaims(ctx, raw)
		ctx = tenant.WithClientIP(ctx, clientIP(r))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *JWTMiddleware) verify(tokenStr string) (*models.User, []byte, error) {
	mapClaims := jwt.MapClaims{}
	token, err := m.parser.ParseWithClaims(tokenStr, mapClaims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, nil, fmt.Errorf("parse token: %w", err)
	}

	raw, err := json.Marshal(mapClaims)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal claims: %w", err)
	}
	var claims Claims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, nil, fmt.Errorf("decode claims: %w", err)
	}
	if claims.Role != "" && claims.Role != "authenticated" {
		return nil, nil, fmt.Errorf("unexpected token role %q", claims.Role)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid subject: %w", err)
	}
	return &models.User{ID: userID, Email: strings.ToLower(claims.Email)}, raw, nil
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
