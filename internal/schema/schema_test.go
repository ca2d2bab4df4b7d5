package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaddedLen(t *testing.T) {
	t.Parallel()

	tests := []struct{ n, want int }{
		{0, 64},
		{1, 64},
		{55, 64},
		{56, 128},
		{MAX_HEADER_BYTES, MAX_HEADER_PADDED_BYTES},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PaddedLen(tt.n), "PaddedLen(%d)", tt.n)
	}
}

func TestCapacities(t *testing.T) {
	t.Parallel()

	assert.GreaterOrEqual(t, RSA_LIMBS*RSA_LIMB_BITS, RSA_MAX_BITS)
	assert.GreaterOrEqual(t, EMAIL_ADDR_FIELDS*31, MAX_EMAIL_ADDR_BYTES)
	for name := range ArrayLengths {
		assert.Contains(t, PrivateSignals, name)
	}
}
