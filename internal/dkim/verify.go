package dkim

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"account-transport-circuit/internal/email"
	"account-transport-circuit/internal/errs"
)

// Verification is a checked signature together with the bytes it covers.
type Verification struct {
	Signature *Signature
	PublicKey *rsa.PublicKey

	// SignedHeader is the canonical header data hashed by the signer: the
	// h= fields followed by the DKIM-Signature field with b= emptied.
	SignedHeader []byte
	// CanonicalBody is the canonical body, cut to l= when present.
	CanonicalBody []byte
	BodyHash      [sha256.Size]byte
}

// Verifier checks DKIM signatures with keys from a KeyResolver.
type Verifier struct {
	resolver KeyResolver
}

// NewVerifier creates a Verifier.
func NewVerifier(resolver KeyResolver) *Verifier {
	return &Verifier{resolver: resolver}
}

// Verify returns the first DKIM-Signature of msg that verifies. When none
// does, the error of the first signature is returned.
func (v *Verifier) Verify(ctx context.Context, msg *email.ParsedEmail) (*Verification, error) {
	fields := msg.Signatures()
	if len(fields) == 0 {
		return nil, &errs.MalformedEmailError{Reason: "missing DKIM-Signature header"}
	}

	var firstErr error
	for _, field := range fields {
		res, err := v.verifyOne(ctx, msg, field)
		if err == nil {
			return res, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

func (v *Verifier) verifyOne(ctx context.Context, msg *email.ParsedEmail, field email.Header) (*Verification, error) {
	sig, err := ParseSignature(field)
	if err != nil {
		return nil, err
	}
	if sig.Algorithm != "rsa-sha256" {
		return nil, &errs.SignatureInvalidError{Reason: fmt.Sprintf("unsupported algorithm %q", sig.Algorithm)}
	}

	body := canonicalBody(msg.Body, sig.BodyCanon)
	if sig.BodyLength >= 0 {
		if sig.BodyLength > int64(len(body)) {
			return nil, &errs.SignatureInvalidError{Reason: "l= is longer than the body"}
		}
		body = body[:sig.BodyLength]
	}
	bodyHash := sha256.Sum256(body)
	if !bytes.Equal(bodyHash[:], sig.BodyHash) {
		return nil, &errs.SignatureInvalidError{Reason: "body hash mismatch"}
	}

	key, err := v.resolver.LookupKey(ctx, sig.Domain, sig.Selector)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &errs.SignatureInvalidError{Reason: "key lookup failed", Err: err}
	}

	signed := SignedHeaderData(msg, sig)
	digest := sha256.Sum256(signed)
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sig.Data); err != nil {
		return nil, &errs.SignatureInvalidError{Reason: "header signature mismatch", Err: err}
	}

	return &Verification{
		Signature:     sig,
		PublicKey:     key,
		SignedHeader:  signed,
		CanonicalBody: body,
		BodyHash:      bodyHash,
	}, nil
}

// SignedHeaderData rebuilds the header bytes covered by sig. Fields named in
// h= are taken bottom-up, so a repeated name consumes the next instance above
// the one used before; names with no instance left contribute nothing.
func SignedHeaderData(msg *email.ParsedEmail, sig *Signature) []byte {
	used := make(map[string]int)
	var buf bytes.Buffer
	for _, key := range sig.HeaderKeys {
		name := strings.ToLower(key)
		instances := msg.Lookup(name)
		n := used[name]
		if n >= len(instances) {
			continue
		}
		used[name] = n + 1
		field := instances[len(instances)-1-n]
		buf.Write(canonicalHeader(field.Raw, sig.HeaderCanon))
	}

	self := canonicalHeader(withoutSignatureData(sig.Field.Raw), sig.HeaderCanon)
	buf.Write(bytes.TrimSuffix(self, crlf))
	return buf.Bytes()
}

// IsKeyNotFound reports whether err came from a missing key record.
func IsKeyNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}
