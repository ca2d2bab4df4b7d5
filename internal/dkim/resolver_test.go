package dkim

import (
	"context"
	"crypto/rsa"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-transport-circuit/internal/testutil"
)

type failingResolver struct{ err error }

func (f failingResolver) LookupKey(context.Context, string, string) (*rsa.PublicKey, error) {
	return nil, f.err
}

func TestStaticResolver(t *testing.T) {
	r := StaticResolver(testutil.Records(t))

	key, err := r.LookupKey(context.Background(), "EXAMPLE.com", testutil.Selector)
	require.NoError(t, err)
	assert.Equal(t, testutil.Key(t).PublicKey.N, key.N)

	_, err = r.LookupKey(context.Background(), testutil.Domain, "missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.True(t, IsKeyNotFound(err))
}

func TestChainResolver(t *testing.T) {
	ctx := context.Background()
	static := StaticResolver(testutil.Records(t))

	t.Run("falls through not found", func(t *testing.T) {
		chain := ChainResolver{StaticResolver{}, static}
		key, err := chain.LookupKey(ctx, testutil.Domain, testutil.Selector)
		require.NoError(t, err)
		assert.Equal(t, testutil.Key(t).PublicKey.E, key.E)
	})

	t.Run("stops on other errors", func(t *testing.T) {
		boom := errors.New("resolver down")
		chain := ChainResolver{failingResolver{boom}, static}
		_, err := chain.LookupKey(ctx, testutil.Domain, testutil.Selector)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := ChainResolver{}.LookupKey(ctx, testutil.Domain, testutil.Selector)
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})
}
