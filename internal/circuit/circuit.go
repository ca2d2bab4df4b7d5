// circuit.go
// account-transport circuit definition
package circuit

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
	"github.com/consensys/gnark/std/hash/sha2"
	"github.com/consensys/gnark/std/math/cmp"
	"github.com/consensys/gnark/std/math/uints"

	"account-transport-circuit/internal/commitment"
	"account-transport-circuit/internal/schema"
)

const (
	SHA_BLOCK_BYTES   = 64
	SHA_LENGTH_BYTES  = 8 // big-endian bit length closing the last block
	DIGEST_HALF_BYTES = 16
	PACKED_FIELD_BITS = 8 * 31
	AT_SIGN           = int('@')
)

// AccountTransportCircuit binds a DKIM-signed account email to a relayer
// rotation. Field tags are the signal names of the input file.
type AccountTransportCircuit struct {
	// Public inputs
	IdentityCommitment frontend.Variable `gnark:"identity_commitment,public"`
	OldRelayerHash     frontend.Variable `gnark:"old_relayer_hash,public"`
	NewRelayerHash     frontend.Variable `gnark:"new_relayer_hash,public"`
	NewRelayerRandHash frontend.Variable `gnark:"new_relayer_rand_hash,public"`
	PubkeyHash         frontend.Variable `gnark:"pubkey_hash,public"`
	// Signed header, SHA-256 padded
	InPadded         [schema.MAX_HEADER_PADDED_BYTES]frontend.Variable `gnark:"in_padded"`
	InLenPaddedBytes frontend.Variable                                 `gnark:"in_len_padded_bytes"`
	HeaderLen        frontend.Variable                                 `gnark:"header_len"`
	// Canonical body, SHA-256 padded
	BodyPadded         [schema.MAX_BODY_PADDED_BYTES]frontend.Variable `gnark:"body_padded"`
	BodyLenPaddedBytes frontend.Variable                               `gnark:"body_len_padded_bytes"`
	BodyLen            frontend.Variable                               `gnark:"body_len"`
	BodyHash           [schema.BODY_HASH_FIELDS]frontend.Variable      `gnark:"body_hash"`
	// RSA key and signature limbs
	Pubkey    [schema.RSA_LIMBS]frontend.Variable `gnark:"pubkey"`
	Signature [schema.RSA_LIMBS]frontend.Variable `gnark:"signature"`
	// Sender and hints
	SenderEmail    [schema.EMAIL_ADDR_FIELDS]frontend.Variable `gnark:"sender_email"`
	SenderEmailIdx frontend.Variable                           `gnark:"sender_email_idx"`
	DomainIdx      frontend.Variable                           `gnark:"domain_idx"`
	CodeIdx        frontend.Variable                           `gnark:"code_idx"`
	TimestampIdx   frontend.Variable                           `gnark:"timestamp_idx"`
	// Openings
	AccountCode    frontend.Variable `gnark:"account_code"`
	OldRelayerRand frontend.Variable `gnark:"old_relayer_rand"`
	NewRelayerRand frontend.Variable `gnark:"new_relayer_rand"`
}

// --- Helper Primitives ---
func isZero(api frontend.API, v frontend.Variable) frontend.Variable { return api.IsZero(v) }
func eq(api frontend.API, a, b frontend.Variable) frontend.Variable {
	return isZero(api, api.Sub(a, b))
}
func assertTrue(api frontend.API, v frontend.Variable) { api.AssertIsEqual(v, 1) }

// byteAt selects data[idx]. idx must be checked against the length by the caller.
func byteAt(api frontend.API, data []frontend.Variable, idx frontend.Variable) frontend.Variable {
	var out frontend.Variable = 0
	for i := range data {
		out = api.Add(out, api.Mul(eq(api, idx, i), data[i]))
	}
	return out
}

// unpack splits packed elements back into their little-endian bytes.
func unpack(api frontend.API, packed []frontend.Variable) []frontend.Variable {
	out := make([]frontend.Variable, 0, len(packed)*PACKED_FIELD_BITS/8)
	for _, p := range packed {
		bits := api.ToBinary(p, PACKED_FIELD_BITS)
		for j := 0; j < PACKED_FIELD_BITS/8; j++ {
			out = append(out, api.FromBinary(bits[j*8:(j+1)*8]...))
		}
	}
	return out
}

// checkSHAPadding asserts data[:paddedLen] is msgLen message bytes, the 0x80
// sentinel, zeros and the 64-bit big-endian bit length, and that every byte
// after paddedLen is zero.
func checkSHAPadding(api frontend.API, data []frontend.Variable, msgLen, paddedLen frontend.Variable, maxLen int) {
	blocks := len(data) / SHA_BLOCK_BYTES

	assertTrue(api, cmp.IsLessOrEqual(api, msgLen, maxLen))
	assertTrue(api, cmp.IsLessOrEqual(api, api.Add(msgLen, 9), paddedLen))
	assertTrue(api, cmp.IsLess(api, paddedLen, api.Add(msgLen, 9+SHA_BLOCK_BYTES)))

	isEnd := make([]frontend.Variable, blocks)
	var ends frontend.Variable = 0
	var lenField frontend.Variable = 0
	for k := 0; k < blocks; k++ {
		isEnd[k] = eq(api, paddedLen, (k+1)*SHA_BLOCK_BYTES)
		ends = api.Add(ends, isEnd[k])
		var be frontend.Variable = 0
		for j := (k+1)*SHA_BLOCK_BYTES - SHA_LENGTH_BYTES; j < (k+1)*SHA_BLOCK_BYTES; j++ {
			be = api.Add(api.Mul(be, 256), data[j])
		}
		lenField = api.Add(lenField, api.Mul(isEnd[k], be))
	}
	api.AssertIsEqual(ends, 1)
	api.AssertIsEqual(lenField, api.Mul(msgLen, 8))

	active := frontend.Variable(1)
	var after frontend.Variable = 0
	for k := 0; k < blocks; k++ {
		for i := k * SHA_BLOCK_BYTES; i < (k+1)*SHA_BLOCK_BYTES; i++ {
			isAt := eq(api, i, msgLen)
			api.AssertIsEqual(api.Mul(isAt, api.Sub(data[i], schema.PADDING_SENTINEL)), 0)

			var lenPos frontend.Variable = 0
			if i%SHA_BLOCK_BYTES >= SHA_BLOCK_BYTES-SHA_LENGTH_BYTES {
				lenPos = isEnd[k]
			}
			mustBeZero := api.Add(api.Sub(1, active), api.Mul(active, api.Mul(after, api.Sub(1, lenPos))))
			api.AssertIsEqual(api.Mul(mustBeZero, data[i]), 0)

			after = api.Add(after, isAt)
		}
		active = api.Sub(active, isEnd[k])
	}
}

// -----------------------------------------------------------------------------
//
//	Main Circuit Logic
//
// -----------------------------------------------------------------------------
func (c *AccountTransportCircuit) Define(api frontend.API) error {
	uapi, err := uints.New[uints.U32](api)
	if err != nil {
		return err
	}

	// --- 1. Byte ranges & SHA-256 padding ---
	for i := range c.InPadded {
		uapi.ByteValueOf(c.InPadded[i])
	}
	checkSHAPadding(api, c.InPadded[:], c.HeaderLen, c.InLenPaddedBytes, schema.MAX_HEADER_BYTES)

	bodyBytes := make([]uints.U8, schema.MAX_BODY_BYTES)
	for i := range c.BodyPadded {
		b := uapi.ByteValueOf(c.BodyPadded[i])
		if i < schema.MAX_BODY_BYTES {
			bodyBytes[i] = b
		}
	}
	checkSHAPadding(api, c.BodyPadded[:], c.BodyLen, c.BodyLenPaddedBytes, schema.MAX_BODY_BYTES)

	// --- 2. Body hash ---
	hasher, err := sha2.New(api)
	if err != nil {
		return err
	}
	hasher.Write(bodyBytes)
	digest := hasher.FixedLengthSum(c.BodyLen)
	var hi, lo frontend.Variable = 0, 0
	for i := 0; i < DIGEST_HALF_BYTES; i++ {
		hi = api.Add(api.Mul(hi, 256), digest[i].Val)
		lo = api.Add(api.Mul(lo, 256), digest[DIGEST_HALF_BYTES+i].Val)
	}
	api.AssertIsEqual(hi, c.BodyHash[0])
	api.AssertIsEqual(lo, c.BodyHash[1])

	// --- 3. RSA limbs ---
	for i := 0; i < schema.RSA_LIMBS; i++ {
		api.ToBinary(c.Pubkey[i], schema.RSA_LIMB_BITS)
		api.ToBinary(c.Signature[i], schema.RSA_LIMB_BITS)
	}

	// --- 4. Sender and index hints ---
	addr := unpack(api, c.SenderEmail[:])
	assertTrue(api, cmp.IsLess(api, c.SenderEmailIdx, c.HeaderLen))
	api.AssertIsEqual(byteAt(api, c.InPadded[:], c.SenderEmailIdx), addr[0])
	domainAt := api.Sub(c.DomainIdx, 1)
	assertTrue(api, cmp.IsLess(api, domainAt, schema.MAX_EMAIL_ADDR_BYTES))
	api.AssertIsEqual(byteAt(api, addr[:schema.MAX_EMAIL_ADDR_BYTES], domainAt), AT_SIGN)
	assertTrue(api, cmp.IsLessOrEqual(api, c.CodeIdx, c.HeaderLen))
	assertTrue(api, cmp.IsLessOrEqual(api, c.TimestampIdx, c.HeaderLen))

	// --- 5. Commitments ---
	hash := func(inputs ...frontend.Variable) (frontend.Variable, error) {
		h, err := mimc.NewMiMC(api)
		if err != nil {
			return nil, err
		}
		h.Write(inputs...)
		return h.Sum(), nil
	}

	identity, err := hash(append([]frontend.Variable{commitment.IdentityTag(), c.AccountCode}, c.SenderEmail[:]...)...)
	if err != nil {
		return err
	}
	api.AssertIsEqual(identity, c.IdentityCommitment)

	oldHash, err := hash(commitment.RelayerTag(), identity, c.OldRelayerRand)
	if err != nil {
		return err
	}
	api.AssertIsEqual(oldHash, c.OldRelayerHash)

	newHash, err := hash(commitment.RelayerTag(), identity, c.NewRelayerRand)
	if err != nil {
		return err
	}
	api.AssertIsEqual(newHash, c.NewRelayerHash)

	randHash, err := hash(commitment.RandTag(), c.NewRelayerRand)
	if err != nil {
		return err
	}
	api.AssertIsEqual(randHash, c.NewRelayerRandHash)

	pubkeyHash, err := hash(append([]frontend.Variable{commitment.PubkeyTag()}, c.Pubkey[:]...)...)
	if err != nil {
		return err
	}
	api.AssertIsEqual(pubkeyHash, c.PubkeyHash)

	return nil
}
