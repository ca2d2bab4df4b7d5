// Package dkim verifies the DKIM-Signature of a parsed email and exposes the
// exact canonical bytes the signature covers.
package dkim

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"account-transport-circuit/internal/email"
	"account-transport-circuit/internal/errs"
)

// Canonicalization algorithms (RFC 6376 section 3.4).
const (
	Simple  = "simple"
	Relaxed = "relaxed"
)

// Signature holds the tags of one DKIM-Signature header field.
type Signature struct {
	Version     string
	Algorithm   string
	Domain      string
	Selector    string
	Identity    string
	HeaderKeys  []string
	HeaderCanon string
	BodyCanon   string
	BodyHash    []byte
	Data        []byte
	// BodyLength is the l= tag, -1 when absent.
	BodyLength int64
	// Timestamp and Expiration are the t= and x= tags, -1 when absent.
	Timestamp  int64
	Expiration int64

	Field email.Header
}

// ParseSignature reads the tag-list of a DKIM-Signature field.
func ParseSignature(field email.Header) (*Signature, error) {
	tags, err := parseTagList(field.Value())
	if err != nil {
		return nil, err
	}

	malformed := func(format string, args ...any) error {
		return &errs.MalformedEmailError{Reason: "DKIM-Signature: " + fmt.Sprintf(format, args...)}
	}

	for _, required := range []string{"v", "a", "b", "bh", "d", "h", "s"} {
		if _, ok := tags[required]; !ok {
			return nil, malformed("missing %s= tag", required)
		}
	}

	sig := &Signature{
		Version:     tags["v"],
		Algorithm:   strings.ToLower(tags["a"]),
		Domain:      strings.ToLower(tags["d"]),
		Selector:    tags["s"],
		Identity:    tags["i"],
		HeaderCanon: Simple,
		BodyCanon:   Simple,
		BodyLength:  -1,
		Timestamp:   -1,
		Expiration:  -1,
		Field:       field,
	}
	if sig.Version != "1" {
		return nil, malformed("unsupported version %q", sig.Version)
	}

	for _, k := range strings.Split(tags["h"], ":") {
		if k = strings.TrimSpace(k); k != "" {
			sig.HeaderKeys = append(sig.HeaderKeys, k)
		}
	}
	signsFrom := false
	for _, k := range sig.HeaderKeys {
		if strings.EqualFold(k, "from") {
			signsFrom = true
		}
	}
	if !signsFrom {
		return nil, malformed("h= does not cover From")
	}

	if c, ok := tags["c"]; ok {
		hc, bc, found := strings.Cut(strings.ToLower(c), "/")
		sig.HeaderCanon = hc
		if found {
			sig.BodyCanon = bc
		}
		for _, v := range []string{sig.HeaderCanon, sig.BodyCanon} {
			if v != Simple && v != Relaxed {
				return nil, malformed("unknown canonicalization %q", v)
			}
		}
	}

	if sig.BodyHash, err = base64.StdEncoding.DecodeString(tags["bh"]); err != nil {
		return nil, malformed("bh= is not base64: %v", err)
	}
	if sig.Data, err = base64.StdEncoding.DecodeString(tags["b"]); err != nil {
		return nil, malformed("b= is not base64: %v", err)
	}

	for tag, dst := range map[string]*int64{"l": &sig.BodyLength, "t": &sig.Timestamp, "x": &sig.Expiration} {
		v, ok := tags[tag]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return nil, malformed("%s= is not a non-negative integer", tag)
		}
		*dst = n
	}

	return sig, nil
}

// parseTagList splits "k=v; k=v" pairs. Whitespace around names and values is
// dropped; inside b= and bh= all whitespace is dropped.
func parseTagList(value []byte) (map[string]string, error) {
	tags := make(map[string]string)
	for _, part := range bytes.Split(value, []byte(";")) {
		part = bytes.TrimSpace(part)
		if len(part) == 0 {
			continue
		}
		name, val, ok := bytes.Cut(part, []byte("="))
		if !ok {
			return nil, &errs.MalformedEmailError{Reason: fmt.Sprintf("DKIM-Signature: tag without value %q", part)}
		}
		key := string(bytes.TrimSpace(name))
		if _, dup := tags[key]; dup {
			return nil, &errs.MalformedEmailError{Reason: fmt.Sprintf("DKIM-Signature: duplicate %s= tag", key)}
		}
		v := string(bytes.TrimSpace(val))
		if key == "b" || key == "bh" {
			v = stripWhitespace(v)
		} else {
			v = strings.Join(strings.Fields(v), "")
		}
		tags[key] = v
	}
	return tags, nil
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
}

// withoutSignatureData returns the raw field with the b= value removed,
// keeping every other byte, as the signer hashed it.
func withoutSignatureData(raw []byte) []byte {
	colon := bytes.IndexByte(raw, ':')
	out := make([]byte, 0, len(raw))
	out = append(out, raw[:colon+1]...)

	parts := bytes.Split(raw[colon+1:], []byte(";"))
	for i, part := range parts {
		if i > 0 {
			out = append(out, ';')
		}
		name, _, ok := bytes.Cut(part, []byte("="))
		if ok && string(bytes.TrimSpace(name)) == "b" {
			out = append(out, part[:len(name)+1]...)
			continue
		}
		out = append(out, part...)
	}
	return out
}
