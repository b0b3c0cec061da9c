package secrets

import "context"

// Provider reads a JSON object secret as a flat string map.
type Provider interface {
	GetSecret(ctx context.Context, key string) (map[string]string, error)
}
