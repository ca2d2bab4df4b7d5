package signals

import (
	"encoding/json"
	"errors"
	"math/big"
	"reflect"
	"strings"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-transport-circuit/internal/commitment"
	"account-transport-circuit/internal/errs"
	"account-transport-circuit/internal/field"
	"account-transport-circuit/internal/schema"
	"account-transport-circuit/internal/witness"
)

func syntheticWitness() *witness.FieldWitness {
	w := &witness.FieldWitness{
		HeaderPadded:    make([]byte, schema.MAX_HEADER_PADDED_BYTES),
		HeaderLen:       3,
		HeaderPaddedLen: 64,
		BodyPadded:      make([]byte, schema.MAX_BODY_PADDED_BYTES),
		BodyLen:         2,
		BodyPaddedLen:   64,
		Pubkey:          make([]fr.Element, schema.RSA_LIMBS),
		Signature:       make([]fr.Element, schema.RSA_LIMBS),
		SenderEmail:     make([]fr.Element, schema.EMAIL_ADDR_FIELDS),
		AccountCode:     field.FromUint64(7),
		SenderEmailIdx:  1,
		DomainIdx:       2,
	}
	copy(w.HeaderPadded, "abc")
	w.HeaderPadded[3] = schema.PADDING_SENTINEL
	return w
}

func syntheticCommitments() *commitment.Commitments {
	var top fr.Element
	top.SetOne()
	top.Neg(&top) // r-1
	return &commitment.Commitments{
		Identity:       field.FromUint64(1),
		OldRelayerHash: field.FromUint64(2),
		NewRelayerHash: field.FromUint64(3),
		PubkeyHash:     top,
		NewRelayerRand: field.FromUint64(5),
	}
}

func TestJSONOrderFollowsSchema(t *testing.T) {
	t.Parallel()

	var names []string
	typ := reflect.TypeOf(CircuitInputSet{})
	for i := 0; i < typ.NumField(); i++ {
		names = append(names, typ.Field(i).Tag.Get("json"))
	}
	want := append(append([]string{}, schema.PublicSignals...), schema.PrivateSignals...)
	assert.Equal(t, want, names)
}

func TestAssemble(t *testing.T) {
	t.Parallel()

	set, err := Assemble(syntheticWitness(), syntheticCommitments())
	require.NoError(t, err)

	assert.Len(t, set.InPadded, schema.MAX_HEADER_PADDED_BYTES)
	assert.Equal(t, "97", set.InPadded[0])
	assert.Equal(t, "128", set.InPadded[3])
	assert.Equal(t, "3", set.HeaderLen)
	assert.Equal(t, "7", set.AccountCode)
	assert.Equal(t, []string{"1", "2", "3", "0", set.PubkeyHash}, set.PublicSignals())
	assert.False(t, strings.HasPrefix(set.PubkeyHash, "-"), "values are unsigned decimals")

	out, err := json.Marshal(set)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), `{"identity_commitment":"1","old_relayer_hash":"2"`))
	assert.True(t, strings.HasSuffix(string(out), `"old_relayer_rand":"0","new_relayer_rand":"5"}`))

	a, err := set.Assignment()
	require.NoError(t, err)
	assert.Equal(t, 0, a.InPadded[0].(*big.Int).Cmp(big.NewInt(97)))
}

func TestValidateRejectsWrongLength(t *testing.T) {
	t.Parallel()

	set, err := Assemble(syntheticWitness(), syntheticCommitments())
	require.NoError(t, err)
	set.Pubkey = set.Pubkey[:schema.RSA_LIMBS-1]

	err = set.Validate()
	var mismatch *errs.SchemaMismatchError
	require.True(t, errors.As(err, &mismatch), "got %v", err)
	assert.Equal(t, "pubkey", mismatch.Signal)
}

func TestValidateRejectsNonFieldValues(t *testing.T) {
	t.Parallel()

	tests := map[string]func(s *CircuitInputSet){
		"negative":    func(s *CircuitInputSet) { s.BodyLen = "-1" },
		"hex":         func(s *CircuitInputSet) { s.HeaderLen = "0x10" },
		"modulus":     func(s *CircuitInputSet) { s.AccountCode = fr.Modulus().String() },
		"array entry": func(s *CircuitInputSet) { s.SenderEmail[4] = "abc" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			set, err := Assemble(syntheticWitness(), syntheticCommitments())
			require.NoError(t, err)
			mutate(set)

			err = set.Validate()
			var mismatch *errs.SchemaMismatchError
			assert.True(t, errors.As(err, &mismatch), "got %v", err)
		})
	}
}
