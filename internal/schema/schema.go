// Package schema pins the shape of the account-transport circuit inputs:
// array capacities, limb layout and signal names. The extractor, the
// assembler and the circuit all read these numbers from here so they cannot
// drift apart.
package schema

// -----------------------------------------------------------------------------
//
//	Static Parameters
//
// -----------------------------------------------------------------------------
const (
	// === message limits =======================================================
	MAX_HEADER_BYTES        = 1024 // canonical signed header, before SHA-256 padding
	MAX_HEADER_PADDED_BYTES = MAX_HEADER_BYTES + 64
	MAX_BODY_BYTES          = 1024 // canonical body, before SHA-256 padding
	MAX_BODY_PADDED_BYTES   = MAX_BODY_BYTES + 64

	// === RSA witness ==========================================================
	RSA_LIMB_BITS = 121
	RSA_LIMBS     = 17 // 17*121 = 2057 >= 2048
	RSA_MAX_BITS  = 2048

	// === packed values ========================================================
	MAX_EMAIL_ADDR_BYTES = 256
	EMAIL_ADDR_FIELDS    = 9 // ceil(256/31)
	BODY_HASH_FIELDS     = 2 // 128-bit halves of the SHA-256 digest
)

// SHA-256 padding sentinel: the first byte after the message.
const PADDING_SENTINEL = 0x80

// Public signal names, in circuit order.
var PublicSignals = []string{
	"identity_commitment",
	"old_relayer_hash",
	"new_relayer_hash",
	"new_relayer_rand_hash",
	"pubkey_hash",
}

// Private signal names, in circuit order.
var PrivateSignals = []string{
	"in_padded",
	"in_len_padded_bytes",
	"header_len",
	"body_padded",
	"body_len_padded_bytes",
	"body_len",
	"body_hash",
	"pubkey",
	"signature",
	"sender_email",
	"sender_email_idx",
	"domain_idx",
	"code_idx",
	"timestamp_idx",
	"account_code",
	"old_relayer_rand",
	"new_relayer_rand",
}

// ArrayLengths gives the fixed length of every array-valued signal.
var ArrayLengths = map[string]int{
	"in_padded":    MAX_HEADER_PADDED_BYTES,
	"body_padded":  MAX_BODY_PADDED_BYTES,
	"body_hash":    BODY_HASH_FIELDS,
	"pubkey":       RSA_LIMBS,
	"signature":    RSA_LIMBS,
	"sender_email": EMAIL_ADDR_FIELDS,
}

// PaddedLen returns the SHA-256 padded length of an n-byte message.
func PaddedLen(n int) int {
	return (n + 9 + 63) / 64 * 64
}
