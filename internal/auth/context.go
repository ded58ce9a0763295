package auth

import (
	"context"
	"strconv"

	"warranty/internal/models"
)

type ctxKey string

const userKey ctxKey = "userClaims"

// Claims is the verified identity attached to an authenticated request.
type Claims struct {
	Subject string
	Role    models.Role
	JWTID   string
}

// UserID parses Subject; zero means anonymous or malformed.
func (c Claims) UserID() int64 {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func WithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, userKey, c)
}

func FromContext(ctx context.Context) Claims {
	if v, ok := ctx.Value(userKey).(Claims); ok {
		return v
	}
	return Claims{}
}

func UserID(ctx context.Context) int64 {
	return FromContext(ctx).UserID()
}
