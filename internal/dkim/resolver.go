package dkim

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrKeyNotFound is returned when no key record exists for a selector.
var ErrKeyNotFound = errors.New("dkim key not found")

// KeyResolver finds the public key published for a signing domain.
type KeyResolver interface {
	LookupKey(ctx context.Context, domain, selector string) (*rsa.PublicKey, error)
}

// RecordName is the DNS name of a DKIM key record.
func RecordName(domain, selector string) string {
	return selector + "._domainkey." + domain
}

// DNSResolver reads key records from DNS TXT records.
type DNSResolver struct {
	Resolver *net.Resolver
	Timeout  time.Duration
}

// LookupKey queries <selector>._domainkey.<domain>.
func (d *DNSResolver) LookupKey(ctx context.Context, domain, selector string) (*rsa.PublicKey, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	r := d.Resolver
	if r == nil {
		r = net.DefaultResolver
	}

	name := RecordName(domain, selector)
	records, err := r.LookupTXT(ctx, name)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, name)
		}
		return nil, fmt.Errorf("failed to look up %s: %w", name, err)
	}
	return firstKey(name, records)
}

// StaticResolver serves key records from memory, keyed by RecordName.
type StaticResolver map[string]string

// LookupKey returns the configured record for the selector.
func (s StaticResolver) LookupKey(_ context.Context, domain, selector string) (*rsa.PublicKey, error) {
	name := RecordName(strings.ToLower(domain), selector)
	record, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, name)
	}
	return ParseKeyRecord(record)
}

// ChainResolver asks each resolver in turn and moves on only when a key is
// not found. Other failures stop the chain.
type ChainResolver []KeyResolver

// LookupKey implements KeyResolver.
func (c ChainResolver) LookupKey(ctx context.Context, domain, selector string) (*rsa.PublicKey, error) {
	err := fmt.Errorf("%w: %s", ErrKeyNotFound, RecordName(domain, selector))
	for _, r := range c {
		var key *rsa.PublicKey
		key, err = r.LookupKey(ctx, domain, selector)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, ErrKeyNotFound) {
			return nil, err
		}
	}
	return nil, err
}

func firstKey(name string, records []string) (*rsa.PublicKey, error) {
	var lastErr error = fmt.Errorf("%w: %s", ErrKeyNotFound, name)
	for _, rec := range records {
		key, err := ParseKeyRecord(rec)
		if err == nil {
			return key, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// ParseKeyRecord parses "v=DKIM1; k=rsa; p=<base64>".
func ParseKeyRecord(record string) (*rsa.PublicKey, error) {
	tags := make(map[string]string)
	for _, part := range strings.Split(record, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		tags[strings.TrimSpace(k)] = stripWhitespace(v)
	}

	if v, ok := tags["v"]; ok && v != "DKIM1" {
		return nil, fmt.Errorf("unsupported key record version %q", v)
	}
	if k, ok := tags["k"]; ok && !strings.EqualFold(k, "rsa") {
		return nil, fmt.Errorf("unsupported key type %q", k)
	}
	p, ok := tags["p"]
	if !ok {
		return nil, errors.New("key record has no p= tag")
	}
	if p == "" {
		return nil, errors.New("key has been revoked")
	}

	der, err := base64.StdEncoding.DecodeString(p)
	if err != nil {
		return nil, fmt.Errorf("p= is not base64: %w", err)
	}
	if pub, err := x509.ParsePKIXPublicKey(der); err == nil {
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("key is %T, not RSA", pub)
		}
		return rsaPub, nil
	}
	pub, err := x509.ParsePKCS1PublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return pub, nil
}
