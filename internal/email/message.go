// Package email defines the parsed form of a signed email artifact.
package email

import (
	"bytes"
	"strings"
)

// Header is one header field exactly as it appears in the artifact.
type Header struct {
	// Name is the field name without the colon, case preserved.
	Name string
	// Raw is the full field including folding, without the final CRLF.
	Raw []byte
	// Offset is where Raw starts in ParsedEmail.Raw.
	Offset int
}

// Value returns everything after the first colon.
func (h Header) Value() []byte {
	i := bytes.IndexByte(h.Raw, ':')
	return h.Raw[i+1:]
}

// ParsedEmail is a decoded email. Headers and Body are sub-slices of Raw so a
// signature can be re-checked over the exact bytes it covers.
type ParsedEmail struct {
	// Raw is the artifact after line endings were normalized to CRLF.
	Raw        []byte
	Headers    []Header
	Body       []byte
	BodyOffset int

	// From is the sender address of the From header.
	From string
	// Subject is the decoded Subject header.
	Subject   string
	MessageID string
}

// Lookup returns all fields named name, top to bottom.
func (p *ParsedEmail) Lookup(name string) []Header {
	var out []Header
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			out = append(out, h)
		}
	}
	return out
}

// Signatures returns the DKIM-Signature fields.
func (p *ParsedEmail) Signatures() []Header {
	return p.Lookup("DKIM-Signature")
}
