// Package witness reduces a verified email to the field elements and index
// hints the account-transport circuit consumes.
package witness

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
	"mime"
	"net/mail"
	"regexp"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"account-transport-circuit/internal/dkim"
	"account-transport-circuit/internal/email"
	"account-transport-circuit/internal/errs"
	"account-transport-circuit/internal/field"
	"account-transport-circuit/internal/schema"
)

// FieldWitness is everything the circuit needs to re-check the email.
type FieldWitness struct {
	// HeaderPadded is the SHA-256 padded signed header, zero-filled to
	// MAX_HEADER_PADDED_BYTES.
	HeaderPadded    []byte
	HeaderLen       int
	HeaderPaddedLen int

	BodyPadded    []byte
	BodyLen       int
	BodyPaddedLen int
	// BodyHash holds the high and low 128 bits of the body digest.
	BodyHash [schema.BODY_HASH_FIELDS]fr.Element

	Pubkey    []fr.Element
	Signature []fr.Element

	SenderAddress string
	SenderEmail   []fr.Element
	AccountCode   fr.Element

	// Index hints into HeaderPadded. DomainIdx is relative to the address.
	SenderEmailIdx int
	DomainIdx      int
	CodeIdx        int
	TimestampIdx   int
}

var (
	codePattern      = regexp.MustCompile(`(?i)code 0x([0-9a-f]+)`)
	timestampPattern = regexp.MustCompile(`(?:^|[;\s:])t\s*=\s*([0-9]+)`)
)

// Extract builds the witness for a verified message. Values that exceed a
// circuit capacity fail with InputTooLargeError; nothing is truncated.
func Extract(v *dkim.Verification, msg *email.ParsedEmail) (*FieldWitness, error) {
	w := &FieldWitness{}

	var err error
	if w.HeaderPadded, w.HeaderPaddedLen, err = pad("signed header", "in_padded", v.SignedHeader, schema.MAX_HEADER_BYTES, schema.MAX_HEADER_PADDED_BYTES); err != nil {
		return nil, err
	}
	w.HeaderLen = len(v.SignedHeader)
	if w.BodyPadded, w.BodyPaddedLen, err = pad("canonical body", "body_padded", v.CanonicalBody, schema.MAX_BODY_BYTES, schema.MAX_BODY_PADDED_BYTES); err != nil {
		return nil, err
	}
	w.BodyLen = len(v.CanonicalBody)
	w.BodyHash[0], w.BodyHash[1] = field.SplitDigest(v.BodyHash)

	if bits := v.PublicKey.N.BitLen(); bits > schema.RSA_MAX_BITS {
		return nil, &errs.InputTooLargeError{What: "RSA modulus", Size: (bits + 7) / 8, Limit: schema.RSA_MAX_BITS / 8}
	}
	if w.Pubkey, err = field.SplitLimbs(v.PublicKey.N, schema.RSA_LIMB_BITS, schema.RSA_LIMBS); err != nil {
		return nil, err
	}
	sig := new(big.Int).SetBytes(v.Signature.Data)
	if sig.Cmp(v.PublicKey.N) >= 0 {
		return nil, &errs.SignatureInvalidError{Reason: "signature is not below the modulus"}
	}
	if w.Signature, err = field.SplitLimbs(sig, schema.RSA_LIMB_BITS, schema.RSA_LIMBS); err != nil {
		return nil, err
	}

	w.SenderAddress = msg.From
	if len(msg.From) > schema.MAX_EMAIL_ADDR_BYTES {
		return nil, &errs.InputTooLargeError{What: "sender address", Size: len(msg.From), Limit: schema.MAX_EMAIL_ADDR_BYTES}
	}
	if w.SenderEmail, err = field.PackBytes([]byte(msg.From), schema.EMAIL_ADDR_FIELDS); err != nil {
		return nil, err
	}

	if err := w.locateSender(v.SignedHeader); err != nil {
		return nil, err
	}
	if err := w.readAccountCode(msg.Subject, v.SignedHeader); err != nil {
		return nil, err
	}
	if v.Signature.Timestamp >= 0 {
		w.TimestampIdx = timestampIndex(v.SignedHeader)
	}
	return w, nil
}

// locateSender checks the signed From field names exactly the decoded sender
// and points SenderEmailIdx at the addr-spec inside it.
func (w *FieldWitness) locateSender(header []byte) error {
	start, end, ok := fieldSpan(header, "from")
	if !ok {
		return &errs.MalformedEmailError{Reason: "From is not part of the signed header"}
	}
	span := header[start:end]
	colon := bytes.IndexByte(span, ':')

	signed, err := addressParser.Parse(strings.ReplaceAll(string(span[colon+1:]), "\r\n", ""))
	if err != nil {
		return &errs.MalformedEmailError{Reason: "unparseable signed From field", Err: err}
	}
	if !strings.EqualFold(signed.Address, w.SenderAddress) {
		return &errs.MalformedEmailError{Reason: fmt.Sprintf("sender %q is not the signed From address %q", w.SenderAddress, signed.Address)}
	}

	i := indexAddrSpec(span, w.SenderAddress, colon+1)
	if i < 0 {
		return &errs.MalformedEmailError{Reason: "sender address not found in signed From field"}
	}
	w.SenderEmailIdx = start + i
	w.DomainIdx = strings.LastIndexByte(w.SenderAddress, '@') + 1
	return nil
}

// addressParser only needs the addr-spec, so display names in unknown
// charsets are left undecoded instead of failing.
var addressParser = mail.AddressParser{WordDecoder: &mime.WordDecoder{
	CharsetReader: func(_ string, r io.Reader) (io.Reader, error) { return r, nil },
}}

// indexAddrSpec returns the first occurrence of addr in field at or after
// from that stands alone: preceded by '<', whitespace or the colon and
// followed by '>', whitespace or the end of the field. ASCII case is ignored
// and no bytes are rewritten, so the index is valid in field.
func indexAddrSpec(field []byte, addr string, from int) int {
	for i := from; i+len(addr) <= len(field); i++ {
		if !equalFoldASCII(field[i:i+len(addr)], addr) {
			continue
		}
		if i > 0 && !addrEdge(field[i-1], '<') && field[i-1] != ':' {
			continue
		}
		if j := i + len(addr); j < len(field) && !addrEdge(field[j], '>') {
			continue
		}
		return i
	}
	return -1
}

func addrEdge(c, bracket byte) bool {
	return c == bracket || c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func equalFoldASCII(b []byte, s string) bool {
	for i := range b {
		if lowerASCII(b[i]) != lowerASCII(s[i]) {
			return false
		}
	}
	return true
}

func lowerASCII(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}

func (w *FieldWitness) readAccountCode(subject string, header []byte) error {
	m := codePattern.FindStringSubmatch(subject)
	if m == nil {
		return nil
	}
	code, err := field.Parse("0x" + m[1])
	if err != nil {
		return &errs.MalformedEmailError{Reason: "account code is not a field element", Err: err}
	}
	w.AccountCode = code

	start, end, ok := fieldSpan(header, "subject")
	if !ok {
		return &errs.MalformedEmailError{Reason: "account code is not covered by the signature"}
	}
	loc := codePattern.FindSubmatchIndex(header[start:end])
	if loc == nil {
		return &errs.MalformedEmailError{Reason: "account code not found in signed Subject field"}
	}
	w.CodeIdx = start + loc[2]
	return nil
}

// timestampIndex points at the digits of t= in the DKIM-Signature field,
// the last field of the signed header.
func timestampIndex(header []byte) int {
	start, end, ok := fieldSpan(header, "dkim-signature")
	if !ok {
		return 0
	}
	colon := bytes.IndexByte(header[start:end], ':')
	loc := timestampPattern.FindSubmatchIndex(header[start+colon : end])
	if loc == nil {
		return 0
	}
	return start + colon + loc[2]
}

// fieldSpan finds the last field called name in a canonical header block,
// continuation lines included.
func fieldSpan(header []byte, name string) (start, end int, ok bool) {
	pos := 0
	for pos < len(header) {
		next := bytes.Index(header[pos:], []byte("\r\n"))
		lineEnd := len(header)
		if next >= 0 {
			lineEnd = pos + next
		}
		line := header[pos:lineEnd]
		if len(line) > 0 && line[0] != ' ' && line[0] != '\t' {
			if ok && end == 0 {
				end = pos - 2
			}
			if n, _, found := bytes.Cut(line, []byte(":")); found && strings.EqualFold(strings.TrimRight(string(n), " \t"), name) {
				start, end, ok = pos, 0, true
			}
		}
		if next < 0 {
			break
		}
		pos = lineEnd + 2
	}
	if ok && end == 0 {
		end = len(header)
	}
	return start, end, ok
}

// pad applies SHA-256 padding and zero-fills to capacity. signal names the
// circuit input the result feeds.
func pad(what, signal string, data []byte, maxLen, capacity int) ([]byte, int, error) {
	if len(data) > maxLen {
		return nil, 0, &errs.InputTooLargeError{What: what, Size: len(data), Limit: maxLen}
	}
	paddedLen := schema.PaddedLen(len(data))
	if paddedLen > capacity {
		return nil, 0, &errs.SchemaMismatchError{Signal: signal, Reason: fmt.Sprintf("padded %s is %d bytes, capacity %d", what, paddedLen, capacity)}
	}
	out := make([]byte, capacity)
	copy(out, data)
	out[len(data)] = schema.PADDING_SENTINEL
	binary.BigEndian.PutUint64(out[paddedLen-8:paddedLen], uint64(len(data))*8)
	return out, paddedLen, nil
}
