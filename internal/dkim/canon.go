package dkim

import (
	"bytes"
	"strings"
)

var crlf = []byte("\r\n")

// canonicalHeader returns the field in the given canonicalization, ending
// with CRLF.
func canonicalHeader(raw []byte, canon string) []byte {
	if canon == Simple {
		out := make([]byte, 0, len(raw)+2)
		out = append(out, raw...)
		return append(out, crlf...)
	}

	name, value, _ := bytes.Cut(raw, []byte(":"))
	k := strings.ToLower(strings.TrimRight(string(name), " \t"))

	unfolded := bytes.ReplaceAll(value, crlf, nil)
	v := compressWSP(unfolded)
	v = bytes.Trim(v, " ")

	out := make([]byte, 0, len(k)+len(v)+3)
	out = append(out, k...)
	out = append(out, ':')
	out = append(out, v...)
	return append(out, crlf...)
}

// canonicalBody returns the body in the given canonicalization.
func canonicalBody(body []byte, canon string) []byte {
	if canon == Relaxed {
		lines := bytes.Split(body, crlf)
		var buf bytes.Buffer
		for i, line := range lines {
			line = bytes.TrimRight(compressWSP(line), " ")
			buf.Write(line)
			if i < len(lines)-1 {
				buf.Write(crlf)
			}
		}
		body = buf.Bytes()
	}

	for bytes.HasSuffix(body, crlf) {
		body = body[:len(body)-len(crlf)]
	}

	if len(body) == 0 {
		if canon == Simple {
			return append([]byte(nil), crlf...)
		}
		return []byte{}
	}
	out := make([]byte, 0, len(body)+2)
	out = append(out, body...)
	return append(out, crlf...)
}

// compressWSP replaces every run of spaces and tabs with a single space.
func compressWSP(b []byte) []byte {
	out := make([]byte, 0, len(b))
	inRun := false
	for _, c := range b {
		if c == ' ' || c == '\t' {
			if !inRun {
				out = append(out, ' ')
			}
			inRun = true
			continue
		}
		inRun = false
		out = append(out, c)
	}
	return out
}
