// Package signals assembles the ordered public and private inputs of the
// account-transport circuit.
package signals

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/frontend"

	"account-transport-circuit/internal/circuit"
	"account-transport-circuit/internal/commitment"
	"account-transport-circuit/internal/errs"
	"account-transport-circuit/internal/field"
	"account-transport-circuit/internal/schema"
	"account-transport-circuit/internal/witness"
)

// CircuitInputSet is the input file of the circuit. Field order is the
// signal order; every value is a decimal string.
type CircuitInputSet struct {
	// Public
	IdentityCommitment string `json:"identity_commitment"`
	OldRelayerHash     string `json:"old_relayer_hash"`
	NewRelayerHash     string `json:"new_relayer_hash"`
	NewRelayerRandHash string `json:"new_relayer_rand_hash"`
	PubkeyHash         string `json:"pubkey_hash"`

	// Private
	InPadded           []string `json:"in_padded"`
	InLenPaddedBytes   string   `json:"in_len_padded_bytes"`
	HeaderLen          string   `json:"header_len"`
	BodyPadded         []string `json:"body_padded"`
	BodyLenPaddedBytes string   `json:"body_len_padded_bytes"`
	BodyLen            string   `json:"body_len"`
	BodyHash           []string `json:"body_hash"`
	Pubkey             []string `json:"pubkey"`
	Signature          []string `json:"signature"`
	SenderEmail        []string `json:"sender_email"`
	SenderEmailIdx     string   `json:"sender_email_idx"`
	DomainIdx          string   `json:"domain_idx"`
	CodeIdx            string   `json:"code_idx"`
	TimestampIdx       string   `json:"timestamp_idx"`
	AccountCode        string   `json:"account_code"`
	OldRelayerRand     string   `json:"old_relayer_rand"`
	NewRelayerRand     string   `json:"new_relayer_rand"`
}

// Assemble lays w and c out in signal order and checks the result loads as a
// witness of circuit.AccountTransportCircuit.
func Assemble(w *witness.FieldWitness, c *commitment.Commitments) (*CircuitInputSet, error) {
	set := &CircuitInputSet{
		IdentityCommitment: field.Decimal(c.Identity),
		OldRelayerHash:     field.Decimal(c.OldRelayerHash),
		NewRelayerHash:     field.Decimal(c.NewRelayerHash),
		NewRelayerRandHash: field.Decimal(c.NewRelayerRandHash),
		PubkeyHash:         field.Decimal(c.PubkeyHash),

		InPadded:           decimalBytes(w.HeaderPadded),
		InLenPaddedBytes:   decimalInt(w.HeaderPaddedLen),
		HeaderLen:          decimalInt(w.HeaderLen),
		BodyPadded:         decimalBytes(w.BodyPadded),
		BodyLenPaddedBytes: decimalInt(w.BodyPaddedLen),
		BodyLen:            decimalInt(w.BodyLen),
		BodyHash:           decimals(w.BodyHash[:]),
		Pubkey:             decimals(w.Pubkey),
		Signature:          decimals(w.Signature),
		SenderEmail:        decimals(w.SenderEmail),
		SenderEmailIdx:     decimalInt(w.SenderEmailIdx),
		DomainIdx:          decimalInt(w.DomainIdx),
		CodeIdx:            decimalInt(w.CodeIdx),
		TimestampIdx:       decimalInt(w.TimestampIdx),
		AccountCode:        field.Decimal(w.AccountCode),
		OldRelayerRand:     field.Decimal(c.OldRelayerRand),
		NewRelayerRand:     field.Decimal(c.NewRelayerRand),
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// Validate checks array lengths, that every value is a canonical field
// element, and that the set loads as a full circuit witness.
func (s *CircuitInputSet) Validate() error {
	arrays := map[string][]string{
		"in_padded":    s.InPadded,
		"body_padded":  s.BodyPadded,
		"body_hash":    s.BodyHash,
		"pubkey":       s.Pubkey,
		"signature":    s.Signature,
		"sender_email": s.SenderEmail,
	}
	for name, want := range schema.ArrayLengths {
		if got := len(arrays[name]); got != want {
			return &errs.SchemaMismatchError{Signal: name, Reason: fmt.Sprintf("length %d, want %d", got, want)}
		}
	}

	assignment, err := s.Assignment()
	if err != nil {
		return err
	}
	if _, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField()); err != nil {
		return &errs.SchemaMismatchError{Signal: "*", Reason: "not a circuit witness", Err: err}
	}
	return nil
}

// Assignment converts the set into a circuit assignment.
func (s *CircuitInputSet) Assignment() (*circuit.AccountTransportCircuit, error) {
	var a circuit.AccountTransportCircuit
	p := parser{}

	a.IdentityCommitment = p.scalar("identity_commitment", s.IdentityCommitment)
	a.OldRelayerHash = p.scalar("old_relayer_hash", s.OldRelayerHash)
	a.NewRelayerHash = p.scalar("new_relayer_hash", s.NewRelayerHash)
	a.NewRelayerRandHash = p.scalar("new_relayer_rand_hash", s.NewRelayerRandHash)
	a.PubkeyHash = p.scalar("pubkey_hash", s.PubkeyHash)

	p.array("in_padded", s.InPadded, a.InPadded[:])
	a.InLenPaddedBytes = p.scalar("in_len_padded_bytes", s.InLenPaddedBytes)
	a.HeaderLen = p.scalar("header_len", s.HeaderLen)
	p.array("body_padded", s.BodyPadded, a.BodyPadded[:])
	a.BodyLenPaddedBytes = p.scalar("body_len_padded_bytes", s.BodyLenPaddedBytes)
	a.BodyLen = p.scalar("body_len", s.BodyLen)
	p.array("body_hash", s.BodyHash, a.BodyHash[:])
	p.array("pubkey", s.Pubkey, a.Pubkey[:])
	p.array("signature", s.Signature, a.Signature[:])
	p.array("sender_email", s.SenderEmail, a.SenderEmail[:])
	a.SenderEmailIdx = p.scalar("sender_email_idx", s.SenderEmailIdx)
	a.DomainIdx = p.scalar("domain_idx", s.DomainIdx)
	a.CodeIdx = p.scalar("code_idx", s.CodeIdx)
	a.TimestampIdx = p.scalar("timestamp_idx", s.TimestampIdx)
	a.AccountCode = p.scalar("account_code", s.AccountCode)
	a.OldRelayerRand = p.scalar("old_relayer_rand", s.OldRelayerRand)
	a.NewRelayerRand = p.scalar("new_relayer_rand", s.NewRelayerRand)

	if p.err != nil {
		return nil, p.err
	}
	return &a, nil
}

// PublicSignals returns the public values in circuit order.
func (s *CircuitInputSet) PublicSignals() []string {
	return []string{
		s.IdentityCommitment,
		s.OldRelayerHash,
		s.NewRelayerHash,
		s.NewRelayerRandHash,
		s.PubkeyHash,
	}
}

// parser keeps the first failure so Assignment reads as a flat list.
type parser struct {
	err error
}

func (p *parser) scalar(name, v string) frontend.Variable {
	if p.err != nil {
		return nil
	}
	n, ok := new(big.Int).SetString(v, 10)
	if !ok {
		p.err = &errs.SchemaMismatchError{Signal: name, Reason: fmt.Sprintf("%q is not a decimal integer", v)}
		return nil
	}
	if _, err := field.FromBig(n); err != nil {
		p.err = &errs.SchemaMismatchError{Signal: name, Reason: "not a field element", Err: err}
		return nil
	}
	return n
}

func (p *parser) array(name string, values []string, dst []frontend.Variable) {
	if p.err != nil {
		return
	}
	if len(values) != len(dst) {
		p.err = &errs.SchemaMismatchError{Signal: name, Reason: fmt.Sprintf("length %d, want %d", len(values), len(dst))}
		return
	}
	for i, v := range values {
		dst[i] = p.scalar(fmt.Sprintf("%s[%d]", name, i), v)
	}
}

func decimals(es []fr.Element) []string {
	out := make([]string, len(es))
	for i := range es {
		out[i] = field.Decimal(es[i])
	}
	return out
}

func decimalBytes(b []byte) []string {
	out := make([]string, len(b))
	for i, c := range b {
		out[i] = decimalInt(int(c))
	}
	return out
}

func decimalInt(v int) string {
	return strconv.Itoa(v)
}
