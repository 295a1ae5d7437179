package tenant

import (
	"context"

	"github.com/nikhilbhutani/toolate/internal/models"
)

type contextKey string

const (
	userKey     contextKey = "user"
	claimsKey   contextKey = "claims"
	clientIPKey contextKey = "client_ip"
)

func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func UserFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}

// WithClaims stores the caller's verified JWT claims as raw JSON. Stores
// replay them into Postgres so row-level policies evaluate as the caller.
func WithClaims(ctx context.Context, claims []byte) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func ClaimsFromContext(ctx context.Context) []byte {
	c, _ := ctx.Value(claimsKey).([]byte)
	return c
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}
