// Package auth holds API key identities for the operator surface: refund
// moderation and escrow release are key-gated, buyer endpoints are not.
package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrKeyNotFound is returned when no API key matches the presented hash.
var ErrKeyNotFound = errors.New("api key not found")

// Scopes understood by the operator surface.
const (
	ScopeRefundsModerate = "refunds:moderate"
	ScopeEscrowRelease   = "escrow:release"
)

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key carries the given scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
