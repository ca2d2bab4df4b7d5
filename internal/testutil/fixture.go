// Package testutil builds DKIM-signed email fixtures for tests.
package testutil

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"strings"
	"sync"
	"testing"

	msgdkim "github.com/emersion/go-msgauth/dkim"
)

const (
	Domain   = "example.com"
	Selector = "sel1"
)

var (
	keyOnce sync.Once
	key     *rsa.PrivateKey
	keyErr  error
)

// Key returns a 2048-bit signing key shared by every test in the binary.
func Key(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		key, keyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	if keyErr != nil {
		t.Fatalf("failed to generate key: %v", keyErr)
	}
	return key
}

// Record is the DNS TXT record publishing pub.
func Record(t testing.TB, pub *rsa.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}
	return "v=DKIM1; k=rsa; p=" + base64.StdEncoding.EncodeToString(der)
}

// Records maps <selector>._domainkey.<domain> to the fixture key record.
func Records(t testing.TB) map[string]string {
	t.Helper()
	return map[string]string{
		Selector + "._domainkey." + Domain: Record(t, &Key(t).PublicKey),
	}
}

// LookupTXT answers DNS queries for the fixture key, for go-msgauth.
func LookupTXT(t testing.TB) func(string) ([]string, error) {
	records := Records(t)
	return func(name string) ([]string, error) {
		if rec, ok := records[strings.TrimSuffix(name, ".")]; ok {
			return []string{rec}, nil
		}
		return nil, &notFoundError{name: name}
	}
}

type notFoundError struct{ name string }

func (e *notFoundError) Error() string { return "no such record: " + e.name }

// Message joins header lines and a body into a CRLF message.
func Message(from, subject, body string) []byte {
	var buf bytes.Buffer
	buf.WriteString("From: " + from + "\r\n")
	buf.WriteString("To: relayer@" + Domain + "\r\n")
	buf.WriteString("Subject: " + subject + "\r\n")
	buf.WriteString("Message-ID: <fixture@" + Domain + ">\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(body)
	return buf.Bytes()
}

// SignOptions tweaks Sign. Zero values give relaxed/relaxed over From,
// Subject and Message-ID.
type SignOptions struct {
	HeaderKeys []string
	Simple     bool
	Key        *rsa.PrivateKey
}

// Sign prepends a DKIM-Signature for msg.
func Sign(t testing.TB, msg []byte, opts SignOptions) []byte {
	t.Helper()
	signer := opts.Key
	if signer == nil {
		signer = Key(t)
	}
	keys := opts.HeaderKeys
	if keys == nil {
		keys = []string{"From", "Subject", "Message-ID"}
	}
	canon := msgdkim.Canonicalization(msgdkim.CanonicalizationRelaxed)
	if opts.Simple {
		canon = msgdkim.CanonicalizationSimple
	}

	var out bytes.Buffer
	err := msgdkim.Sign(&out, bytes.NewReader(msg), &msgdkim.SignOptions{
		Domain:                 Domain,
		Selector:               Selector,
		Signer:                 signer,
		Hash:                   crypto.SHA256,
		HeaderCanonicalization: canon,
		BodyCanonicalization:   canon,
		HeaderKeys:             keys,
	})
	if err != nil {
		t.Fatalf("failed to sign fixture: %v", err)
	}
	return out.Bytes()
}

// SignedMessage is Sign(Message(from, subject, body)) with default options.
func SignedMessage(t testing.TB, from, subject, body string) []byte {
	t.Helper()
	return Sign(t, Message(from, subject, body), SignOptions{})
}
