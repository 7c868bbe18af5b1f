package requestdata

import (
	"context"

	"github.com/google/uuid"
)

var principalKey = struct{}{}

// Principal is the authenticated caller as resolved by the auth middleware.
// Identity issuance lives outside this service; we only consume the claims.
type Principal struct {
	UserID uuid.UUID
	Roles  []string
}

func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func GetPrincipal(ctx context.Context) *Principal {
	val := ctx.Value(principalKey)
	if p, ok := val.(*Principal); ok {
		return p
	}
	return nil
}
