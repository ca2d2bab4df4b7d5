package transport

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"account-transport-circuit/internal/commitment"
	"account-transport-circuit/internal/dkim"
	"account-transport-circuit/internal/email"
	"account-transport-circuit/internal/errs"
	"account-transport-circuit/internal/field"
	"account-transport-circuit/internal/registry"
	"account-transport-circuit/internal/schema"
	"account-transport-circuit/internal/signals"
	"account-transport-circuit/internal/testutil"
)

var (
	oldRand = field.FromUint64(0x1111)
	newRand = field.FromUint64(0x2222)
)

type memSource map[string][]byte

func (m memSource) Read(_ context.Context, path string) ([]byte, error) {
	data, ok := m[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

type memSink struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (m *memSink) Write(_ context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = make(map[string][]byte)
	}
	m.files[path] = data
	return nil
}

func newGenerator(t *testing.T, logger *zap.Logger) *Generator {
	t.Helper()
	store := registry.NewMemoryStore(
		registry.Binding{Email: "alice@example.com", RelayerRand: oldRand},
		registry.Binding{Email: "bob@example.com", RelayerRand: oldRand},
	)
	return NewGenerator(dkim.StaticResolver(testutil.Records(t)), store, logger, Limits{MaxEmailBytes: 1 << 20, BatchWorkers: 2})
}

// identityOf recomputes the identity commitment the same way the
// pipeline does.
func identityOf(t *testing.T, addr string, code uint64) fr.Element {
	t.Helper()
	packed, err := field.PackBytes([]byte(addr), schema.EMAIL_ADDR_FIELDS)
	require.NoError(t, err)
	return commitment.Identity(field.FromUint64(code), packed)
}

func aliceEmail(t *testing.T) []byte {
	return testutil.SignedMessage(t, "alice@example.com", "Code 0x99", "transport my account\r\n")
}

func TestGenerateAliceScenario(t *testing.T) {
	g := newGenerator(t, nil)
	id := identityOf(t, "alice@example.com", 0x99)
	oldHash := commitment.RelayerHash(id, oldRand)

	set, err := g.Generate(context.Background(), aliceEmail(t), commitment.RelayerRotation{OldRelayerHash: oldHash, NewRelayerRand: newRand})
	require.NoError(t, err)

	assert.Equal(t, field.Decimal(id), set.IdentityCommitment)
	assert.Equal(t, field.Decimal(oldHash), set.OldRelayerHash)
	assert.Equal(t, field.Decimal(commitment.RelayerHash(id, newRand)), set.NewRelayerHash)
	assert.Equal(t, field.Decimal(commitment.RandHash(newRand)), set.NewRelayerRandHash)
	assert.Equal(t, field.Decimal(newRand), set.NewRelayerRand)
}

func TestRunWritesIndentedJSON(t *testing.T) {
	g := newGenerator(t, nil)
	oldHash := commitment.RelayerHash(identityOf(t, "alice@example.com", 0x99), oldRand)
	src := memSource{"alice.eml": aliceEmail(t)}
	sink := &memSink{}

	opts := Options{
		EmailFile:      "alice.eml",
		OldRelayerHash: "0x" + oldHash.Text(16),
		NewRelayerRand: "8738", // 0x2222
		InputFile:      "out/input.json",
	}
	require.NoError(t, g.Run(context.Background(), opts, src, sink))

	data := sink.files["out/input.json"]
	require.NotEmpty(t, data)
	assert.True(t, strings.HasPrefix(string(data), "{\n  \"identity_commitment\": \""))

	var set signals.CircuitInputSet
	require.NoError(t, json.Unmarshal(data, &set))
	assert.Equal(t, field.Decimal(oldHash), set.OldRelayerHash)
	assert.Len(t, set.InPadded, schema.MAX_HEADER_PADDED_BYTES)
	require.NoError(t, set.Validate())
}

func TestRunIsIdempotent(t *testing.T) {
	g := newGenerator(t, nil)
	oldHash := commitment.RelayerHash(identityOf(t, "alice@example.com", 0x99), oldRand)
	src := memSource{"alice.eml": aliceEmail(t)}
	opts := Options{EmailFile: "alice.eml", OldRelayerHash: field.Decimal(oldHash), NewRelayerRand: "0x2222", InputFile: "a.json"}

	first, second := &memSink{}, &memSink{}
	require.NoError(t, g.Run(context.Background(), opts, src, first))
	require.NoError(t, g.Run(context.Background(), opts, src, second))
	assert.Equal(t, first.files["a.json"], second.files["a.json"])
}

func TestRunRotationMismatchWritesNothing(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	g := newGenerator(t, zap.New(core))
	src := memSource{"alice.eml": aliceEmail(t)}
	sink := &memSink{}

	opts := Options{EmailFile: "alice.eml", OldRelayerHash: "0x5eed5eed", NewRelayerRand: "0x2222", InputFile: "a.json"}
	err := g.Run(context.Background(), opts, src, sink)

	var mismatch *errs.RotationMismatchError
	require.True(t, errors.As(err, &mismatch), "got %v", err)
	assert.Empty(t, sink.files)
	assert.Zero(t, logs.FilterMessage("input file written").Len())
}

func TestRunRejectsBadOptions(t *testing.T) {
	g := newGenerator(t, nil)
	valid := Options{EmailFile: "a.eml", OldRelayerHash: "1", NewRelayerRand: "2", InputFile: "a.json"}

	tests := []struct {
		name   string
		mutate func(o *Options)
		target error
	}{
		{"missing email", func(o *Options) { o.EmailFile = "" }, ErrInvalidOptions},
		{"not json", func(o *Options) { o.InputFile = "a.txt" }, ErrInvalidOptions},
		{"missing rand", func(o *Options) { o.NewRelayerRand = " " }, ErrInvalidOptions},
		{"rand over modulus", func(o *Options) { o.NewRelayerRand = fr.Modulus().String() }, field.ErrInvalidElement},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := valid
			tt.mutate(&opts)
			sink := &memSink{}
			err := g.Run(context.Background(), opts, memSource{}, sink)
			assert.ErrorIs(t, err, tt.target)
			assert.Empty(t, sink.files)
		})
	}
}

func TestRunRejectsUnusableOldHash(t *testing.T) {
	g := newGenerator(t, nil)
	src := memSource{"alice.eml": aliceEmail(t)}
	over := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(12345))

	for _, hash := range []string{"not-a-hash", "0xnothex", fr.Modulus().String(), "0x" + over.Text(16)} {
		t.Run(hash, func(t *testing.T) {
			sink := &memSink{}
			opts := Options{EmailFile: "alice.eml", OldRelayerHash: hash, NewRelayerRand: "0x2222", InputFile: "a.json"}
			err := g.Run(context.Background(), opts, src, sink)

			var mismatch *errs.RotationMismatchError
			require.True(t, errors.As(err, &mismatch), "got %v", err)
			assert.ErrorIs(t, err, field.ErrInvalidElement)
			assert.Empty(t, sink.files)
		})
	}
}

func TestRunRejectsEveryFlippedBit(t *testing.T) {
	g := newGenerator(t, nil)
	src := memSource{"alice.eml": aliceEmail(t)}
	good := commitment.RelayerHash(identityOf(t, "alice@example.com", 0x99), oldRand)
	goodBytes := good.Bytes()

	for bit := 0; bit < 256; bit++ {
		b := goodBytes
		b[31-bit/8] ^= 1 << (bit % 8)
		opts := Options{EmailFile: "alice.eml", OldRelayerHash: "0x" + hex.EncodeToString(b[:]), NewRelayerRand: "0x2222", InputFile: "a.json"}

		sink := &memSink{}
		err := g.Run(context.Background(), opts, src, sink)
		var mismatch *errs.RotationMismatchError
		require.True(t, errors.As(err, &mismatch), "bit %d: got %v", bit, err)
		require.Empty(t, sink.files, "bit %d", bit)
	}
}

func TestGenerateFailures(t *testing.T) {
	g := newGenerator(t, nil)
	raw := aliceEmail(t)

	t.Run("too large", func(t *testing.T) {
		small := NewGenerator(dkim.StaticResolver{}, registry.NewMemoryStore(), nil, Limits{MaxEmailBytes: 16})
		_, err := small.Generate(context.Background(), raw, commitment.RelayerRotation{})
		var tooLarge *errs.InputTooLargeError
		assert.True(t, errors.As(err, &tooLarge), "got %v", err)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := g.Generate(context.Background(), []byte("not an email"), commitment.RelayerRotation{})
		var malformed *errs.MalformedEmailError
		assert.True(t, errors.As(err, &malformed), "got %v", err)
	})

	t.Run("tampered", func(t *testing.T) {
		tampered := []byte(strings.Replace(string(raw), "transport my account", "transport my wallet!", 1))
		_, err := g.Generate(context.Background(), tampered, commitment.RelayerRotation{})
		var invalid *errs.SignatureInvalidError
		assert.True(t, errors.As(err, &invalid), "got %v", err)
	})

	t.Run("prepended from", func(t *testing.T) {
		spoofed := append([]byte("From: ice@example.com\r\n"), raw...)
		spoofing := NewGenerator(dkim.StaticResolver(testutil.Records(t)), registry.NewMemoryStore(
			registry.Binding{Email: "ice@example.com", RelayerRand: oldRand},
		), nil, Limits{})
		rot := commitment.RelayerRotation{
			OldRelayerHash: commitment.RelayerHash(identityOf(t, "ice@example.com", 0x99), oldRand),
			NewRelayerRand: newRand,
		}
		set, err := spoofing.Generate(context.Background(), spoofed, rot)
		assert.Nil(t, set)
		var malformed *errs.MalformedEmailError
		assert.True(t, errors.As(err, &malformed), "got %v", err)
	})

	t.Run("unknown account", func(t *testing.T) {
		carol := testutil.SignedMessage(t, "carol@example.com", "Code 0x1", "hi\r\n")
		_, err := g.Generate(context.Background(), carol, commitment.RelayerRotation{})
		var mismatch *errs.RotationMismatchError
		assert.True(t, errors.As(err, &mismatch), "got %v", err)
	})
}

func TestGenerateBatchKeepsOrder(t *testing.T) {
	g := newGenerator(t, nil)
	jobs := make([]Job, 0, 4)
	for i, addr := range []string{"alice@example.com", "bob@example.com", "alice@example.com", "bob@example.com"} {
		code := uint64(i + 1)
		raw := testutil.SignedMessage(t, addr, "Code 0x"+field.Decimal(field.FromUint64(code)), "batch\r\n")
		jobs = append(jobs, Job{
			Raw: raw,
			Rotation: commitment.RelayerRotation{
				OldRelayerHash: commitment.RelayerHash(identityOf(t, addr, code), oldRand),
				NewRelayerRand: newRand,
			},
		})
	}

	results, err := g.GenerateBatch(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, results, len(jobs))
	for i, set := range results {
		assert.Equal(t, field.Decimal(jobs[i].Rotation.OldRelayerHash), set.OldRelayerHash, "job %d", i)
	}
}

func TestGenerateBatchFailsFast(t *testing.T) {
	g := newGenerator(t, nil)
	good := Job{
		Raw: aliceEmail(t),
		Rotation: commitment.RelayerRotation{
			OldRelayerHash: commitment.RelayerHash(identityOf(t, "alice@example.com", 0x99), oldRand),
			NewRelayerRand: newRand,
		},
	}
	bad := Job{Raw: aliceEmail(t), Rotation: commitment.RelayerRotation{NewRelayerRand: newRand}}

	results, err := g.GenerateBatch(context.Background(), []Job{good, bad, good})
	assert.Nil(t, results)
	var mismatch *errs.RotationMismatchError
	require.True(t, errors.As(err, &mismatch), "got %v", err)
	assert.Contains(t, err.Error(), "job 1")
}

func TestSignedHeaderRoundTrip(t *testing.T) {
	raw := aliceEmail(t)
	msg, err := email.Parse(raw)
	require.NoError(t, err)
	v, err := dkim.NewVerifier(dkim.StaticResolver(testutil.Records(t))).Verify(context.Background(), msg)
	require.NoError(t, err)

	// re-parse the normalized bytes and rebuild the covered header data
	again, err := email.Parse(msg.Raw)
	require.NoError(t, err)
	assert.Equal(t, v.SignedHeader, dkim.SignedHeaderData(again, v.Signature))
}

func TestFileSourceAndSink(t *testing.T) {
	dir := t.TempDir()
	emlPath := filepath.Join(dir, "alice.eml")
	require.NoError(t, os.WriteFile(emlPath, aliceEmail(t), 0o600))

	data, err := FileSource{MaxBytes: 1 << 20}.Read(context.Background(), emlPath)
	require.NoError(t, err)
	assert.Equal(t, aliceEmail(t)[:20], data[:20])

	_, err = FileSource{MaxBytes: 10}.Read(context.Background(), emlPath)
	var tooLarge *errs.InputTooLargeError
	assert.True(t, errors.As(err, &tooLarge), "got %v", err)

	out := filepath.Join(dir, "input.json")
	require.NoError(t, FileSink{}.Write(context.Background(), out, []byte("{}")))
	written, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(written))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}
