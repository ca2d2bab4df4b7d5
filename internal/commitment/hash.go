// Package commitment computes the account and relayer commitments of the
// transport statement. All hashing is MiMC over the BN254 scalar field so the
// values are the ones the circuit recomputes with std/hash/mimc.
package commitment

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"
)

// Domain tags separating the four commitments.
var (
	identityTag = domainTag("account-transport/identity/v1")
	relayerTag  = domainTag("account-transport/relayer/v1")
	randTag     = domainTag("account-transport/relayer-rand/v1")
	pubkeyTag   = domainTag("account-transport/pubkey/v1")
)

func domainTag(label string) fr.Element {
	var e fr.Element
	e.SetBytes(eth_crypto.Keccak256([]byte(label)))
	return e
}

// IdentityTag, RelayerTag, RandTag and PubkeyTag expose the tags as big
// integers for circuit constants.
func IdentityTag() *big.Int { return identityTag.BigInt(new(big.Int)) }
func RelayerTag() *big.Int  { return relayerTag.BigInt(new(big.Int)) }
func RandTag() *big.Int     { return randTag.BigInt(new(big.Int)) }
func PubkeyTag() *big.Int   { return pubkeyTag.BigInt(new(big.Int)) }

// Hash is MiMC over the canonical encodings of inputs.
func Hash(inputs ...fr.Element) fr.Element {
	h := mimc.NewMiMC()
	for i := range inputs {
		b := inputs[i].Bytes()
		// canonical encodings are always below the modulus, Write cannot fail
		_, _ = h.Write(b[:])
	}
	var out fr.Element
	out.SetBytes(h.Sum(nil))
	return out
}

// Identity commits to the account: its code and packed sender address.
func Identity(accountCode fr.Element, senderEmail []fr.Element) fr.Element {
	in := make([]fr.Element, 0, 2+len(senderEmail))
	in = append(in, identityTag, accountCode)
	in = append(in, senderEmail...)
	return Hash(in...)
}

// RelayerHash binds an identity to one relayer's randomness.
func RelayerHash(identity, relayerRand fr.Element) fr.Element {
	return Hash(relayerTag, identity, relayerRand)
}

// RandHash is the public fingerprint of a relayer randomness.
func RandHash(relayerRand fr.Element) fr.Element {
	return Hash(randTag, relayerRand)
}

// PubkeyHash commits to the DKIM key limbs.
func PubkeyHash(limbs []fr.Element) fr.Element {
	in := make([]fr.Element, 0, 1+len(limbs))
	in = append(in, pubkeyTag)
	in = append(in, limbs...)
	return Hash(in...)
}
