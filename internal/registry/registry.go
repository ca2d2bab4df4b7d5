// Package registry holds the relayer bindings committed for each account
// before a rotation: the old relayer randomness an old_relayer_hash must be
// recomputed from.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"gopkg.in/yaml.v3"

	"account-transport-circuit/internal/field"
)

// ErrNotFound is returned when an account has no binding.
var ErrNotFound = errors.New("no relayer binding")

// Binding is the relayer randomness committed for one account.
type Binding struct {
	Email       string
	RelayerRand fr.Element
}

// Store looks up bindings by sender address.
type Store interface {
	Lookup(ctx context.Context, email string) (Binding, error)
}

// MemoryStore is a read-only Store backed by a map.
type MemoryStore struct {
	bindings map[string]Binding
}

// NewMemoryStore indexes bindings by lower-cased address. A later binding
// for the same address replaces an earlier one.
func NewMemoryStore(bindings ...Binding) *MemoryStore {
	m := &MemoryStore{bindings: make(map[string]Binding, len(bindings))}
	for _, b := range bindings {
		m.bindings[normalize(b.Email)] = b
	}
	return m
}

// Lookup implements Store.
func (m *MemoryStore) Lookup(ctx context.Context, email string) (Binding, error) {
	if err := ctx.Err(); err != nil {
		return Binding{}, err
	}
	b, ok := m.bindings[normalize(email)]
	if !ok {
		return Binding{}, fmt.Errorf("%w for %s", ErrNotFound, email)
	}
	return b, nil
}

// Len returns the number of accounts with a binding.
func (m *MemoryStore) Len() int {
	return len(m.bindings)
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type fileFormat struct {
	Bindings []struct {
		Email       string `yaml:"email"`
		RelayerRand string `yaml:"relayer_rand"`
	} `yaml:"bindings"`
}

// LoadFile reads bindings from a YAML file.
func LoadFile(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bindings file: %w", err)
	}
	return Parse(data)
}

// Parse reads bindings from YAML.
func Parse(data []byte) (*MemoryStore, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse bindings: %w", err)
	}

	bindings := make([]Binding, 0, len(f.Bindings))
	for i, entry := range f.Bindings {
		if strings.TrimSpace(entry.Email) == "" {
			return nil, fmt.Errorf("binding %d: missing email", i)
		}
		r, err := field.Parse(entry.RelayerRand)
		if err != nil {
			return nil, fmt.Errorf("binding %d (%s): relayer_rand: %w", i, entry.Email, err)
		}
		bindings = append(bindings, Binding{Email: entry.Email, RelayerRand: r})
	}
	return NewMemoryStore(bindings...), nil
}
