package secrets

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	pkgsecrets "github.com/slotclaim/slotclaim/pkg/secrets"
)

// --- Mock Provider ---

type mockProvider struct {
	secrets map[string]map[string]string
	err     error
	calls   int
}

func (m *mockProvider) GetSecret(_ context.Context, key string) (map[string]string, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if v, ok := m.secrets[key]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("secret not found: %s", key)
}

func parseEmail(m map[string]string) (string, error) {
	if m["email"] == "" {
		return "", errors.New("missing email")
	}
	return m["email"], nil
}

// --- Tests ---

func TestAWSResolver_CacheMissThenHit(t *testing.T) {
	mock := &mockProvider{secrets: map[string]map[string]string{
		"slotclaim/profile": {"email": "me@example.com"},
	}}
	r := NewAWSResolver(zap.NewNop(), mock, pkgsecrets.NewCache[string](time.Minute))

	v, err := r.Resolve(context.Background(), "slotclaim/profile", parseEmail)
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", v)

	v, err = r.Resolve(context.Background(), "slotclaim/profile", parseEmail)
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", v)
	assert.Equal(t, 1, mock.calls, "second resolve served from cache")
}

func TestAWSResolver_Invalidate(t *testing.T) {
	mock := &mockProvider{secrets: map[string]map[string]string{
		"p": {"email": "me@example.com"},
	}}
	r := NewAWSResolver(zap.NewNop(), mock, pkgsecrets.NewCache[string](time.Minute))

	_, err := r.Resolve(context.Background(), "p", parseEmail)
	require.NoError(t, err)
	r.Invalidate("p")
	_, err = r.Resolve(context.Background(), "p", parseEmail)
	require.NoError(t, err)
	assert.Equal(t, 2, mock.calls)
}

func TestAWSResolver_ProviderError(t *testing.T) {
	mock := &mockProvider{err: errors.New("access denied")}
	r := NewAWSResolver(zap.NewNop(), mock, pkgsecrets.NewCache[string](time.Minute))

	_, err := r.Resolve(context.Background(), "p", parseEmail)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestAWSResolver_ParseErrorNotCached(t *testing.T) {
	mock := &mockProvider{secrets: map[string]map[string]string{"p": {}}}
	cache := pkgsecrets.NewCache[string](time.Minute)
	r := NewAWSResolver(zap.NewNop(), mock, cache)

	_, err := r.Resolve(context.Background(), "p", parseEmail)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing email")
	assert.Equal(t, 0, cache.Len())
}
