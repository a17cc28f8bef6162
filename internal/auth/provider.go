package auth

import (
	"context"

	"github.com/yourname/focustracker/internal"
)

type Provider interface {
	ValidateToken(ctx context.Context, token string) (*internal.User, error)
}
