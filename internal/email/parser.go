package email

import (
	"bytes"
	"fmt"

	"github.com/jhillyerd/enmime"

	"account-transport-circuit/internal/errs"
)

var crlf = []byte("\r\n")

// Parse splits a raw RFC 5322 message into its header fields and body and
// decodes the sender address and subject. Bare LF line endings are turned
// into CRLF first; offsets refer to the normalized bytes.
func Parse(raw []byte) (*ParsedEmail, error) {
	norm := normalizeLineEndings(raw)

	sep := bytes.Index(norm, []byte("\r\n\r\n"))
	if sep < 0 {
		return nil, &errs.MalformedEmailError{Reason: "no header/body separator"}
	}

	headers, err := splitHeaders(norm[:sep+2])
	if err != nil {
		return nil, err
	}

	result := &ParsedEmail{
		Raw:        norm,
		Headers:    headers,
		Body:       norm[sep+4:],
		BodyOffset: sep + 4,
	}

	switch n := len(result.Lookup("From")); {
	case n == 0:
		return nil, &errs.MalformedEmailError{Reason: "missing From header"}
	case n > 1:
		return nil, &errs.MalformedEmailError{Reason: fmt.Sprintf("%d From headers, want one", n)}
	}
	if len(result.Signatures()) == 0 {
		return nil, &errs.MalformedEmailError{Reason: "missing DKIM-Signature header"}
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(norm))
	if err != nil {
		return nil, &errs.MalformedEmailError{Reason: "failed to read MIME envelope", Err: err}
	}
	from, err := env.AddressList("From")
	if err != nil || len(from) == 0 {
		return nil, &errs.MalformedEmailError{Reason: "unparseable From address", Err: err}
	}

	result.From = from[0].Address
	result.Subject = env.GetHeader("Subject")
	result.MessageID = env.GetHeader("Message-ID")

	return result, nil
}

// splitHeaders walks the header block line by line. A line starting with
// whitespace continues the previous field.
func splitHeaders(block []byte) ([]Header, error) {
	var headers []Header
	pos := 0
	for pos < len(block) {
		end := bytes.Index(block[pos:], crlf)
		if end < 0 {
			end = len(block) - pos
		}
		line := block[pos : pos+end]

		if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') {
			if len(headers) == 0 {
				return nil, &errs.MalformedEmailError{Reason: "continuation line before first header"}
			}
			last := &headers[len(headers)-1]
			last.Raw = block[last.Offset : pos+end]
		} else {
			colon := bytes.IndexByte(line, ':')
			if colon <= 0 {
				return nil, &errs.MalformedEmailError{Reason: fmt.Sprintf("header line without field name at offset %d", pos)}
			}
			headers = append(headers, Header{
				Name:   string(bytes.TrimRight(line[:colon], " \t")),
				Raw:    line,
				Offset: pos,
			})
		}
		pos += end + len(crlf)
	}
	return headers, nil
}

func normalizeLineEndings(raw []byte) []byte {
	bare := false
	for i, c := range raw {
		if c == '\n' && (i == 0 || raw[i-1] != '\r') {
			bare = true
			break
		}
	}
	if !bare {
		return raw
	}
	out := make([]byte, 0, len(raw)+bytes.Count(raw, []byte("\n")))
	for i, c := range raw {
		if c == '\n' && (i == 0 || raw[i-1] != '\r') {
			out = append(out, '\r')
		}
		out = append(out, c)
	}
	return out
}
