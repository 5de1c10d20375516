package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleettrack/internal/domain"
)

type fakeSource struct {
	tokens map[string]string
	calls  int
}

func (f *fakeSource) GetToken(_ context.Context, token string) (string, error) {
	f.calls++
	return f.tokens[token], nil
}

func TestValidateStaticToken(t *testing.T) {
	v := NewValidator([]string{"static-1", ""}, nil, time.Minute)

	identity, err := v.Validate(context.Background(), "static-1")
	require.NoError(t, err)
	assert.Equal(t, "operator", identity)
}

func TestValidateEmptyToken(t *testing.T) {
	v := NewValidator(nil, nil, time.Minute)
	_, err := v.Validate(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestValidateUnknownTokenNoSource(t *testing.T) {
	v := NewValidator([]string{"static-1"}, nil, time.Minute)
	_, err := v.Validate(context.Background(), "whatever")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestValidateSourceLookupAndCache(t *testing.T) {
	src := &fakeSource{tokens: map[string]string{"tok-1": "dispatch_desk"}}
	v := NewValidator(nil, src, time.Minute)

	identity, err := v.Validate(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "dispatch_desk", identity)
	assert.Equal(t, 1, src.calls)

	// Second lookup is served from the cache.
	identity, err = v.Validate(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "dispatch_desk", identity)
	assert.Equal(t, 1, src.calls)
}

func TestValidateCacheExpiry(t *testing.T) {
	src := &fakeSource{tokens: map[string]string{"tok-1": "dispatch_desk"}}
	v := NewValidator(nil, src, -time.Second)

	_, err := v.Validate(context.Background(), "tok-1")
	require.NoError(t, err)

	// Entry was stored already expired, so the source is hit again.
	_, err = v.Validate(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestValidateSourceMiss(t *testing.T) {
	src := &fakeSource{tokens: map[string]string{}}
	v := NewValidator(nil, src, time.Minute)

	_, err := v.Validate(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
