package secrets

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	pkgsecrets "github.com/slotclaim/slotclaim/pkg/secrets"
)

// AWSResolver turns a named secret into a typed value and keeps it for the
// cache TTL, so repeated profile loads do not hit Secrets Manager.
type AWSResolver[T any] struct {
	logger   *zap.Logger
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[T]
}

func NewAWSResolver[T any](logger *zap.Logger, provider pkgsecrets.Provider, cache *pkgsecrets.Cache[T]) *AWSResolver[T] {
	return &AWSResolver[T]{
		logger:   logger,
		provider: provider,
		cache:    cache,
	}
}

// Resolve returns the value for name. parse validates the raw secret; values it
// rejects are not cached.
func (r *AWSResolver[T]) Resolve(ctx context.Context, name string, parse func(map[string]string) (T, error)) (T, error) {
	v, hit, err := r.cache.GetOrLoad(name, func() (T, error) {
		var zero T
		raw, err := r.provider.GetSecret(ctx, name)
		if err != nil {
			r.logger.Warn("secrets.fetch_failed", zap.String("name", name), zap.Error(err))
			return zero, fmt.Errorf("resolve secret %q: %w", name, err)
		}
		v, err := parse(raw)
		if err != nil {
			return zero, fmt.Errorf("parse secret %q: %w", name, err)
		}
		return v, nil
	})
	if err == nil && !hit {
		r.logger.Info("secrets.resolved", zap.String("name", name))
	}
	return v, err
}

// Invalidate forces the next Resolve of name to refetch.
func (r *AWSResolver[T]) Invalidate(name string) {
	r.cache.Bust(name)
}
