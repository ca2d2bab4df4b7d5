package commitment

import (
	"context"
	"errors"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"account-transport-circuit/internal/errs"
	"account-transport-circuit/internal/field"
	"account-transport-circuit/internal/registry"
	"account-transport-circuit/internal/witness"
)

// RelayerRotation carries the caller-supplied rotation parameters.
type RelayerRotation struct {
	OldRelayerHash fr.Element
	NewRelayerRand fr.Element
}

// Commitments are the public commitments of one transport plus the
// randomness openings they were computed from.
type Commitments struct {
	Identity           fr.Element
	OldRelayerHash     fr.Element
	NewRelayerHash     fr.Element
	NewRelayerRandHash fr.Element
	PubkeyHash         fr.Element

	OldRelayerRand fr.Element
	NewRelayerRand fr.Element
}

// Engine computes commitments against previously committed bindings.
type Engine struct {
	store registry.Store
}

// NewEngine creates an Engine reading bindings from store.
func NewEngine(store registry.Store) *Engine {
	return &Engine{store: store}
}

// Commit derives the identity commitment from w, checks that
// rot.OldRelayerHash opens to the binding recorded for the sender and
// commits to the new relayer randomness.
func (e *Engine) Commit(ctx context.Context, w *witness.FieldWitness, rot RelayerRotation) (*Commitments, error) {
	id := Identity(w.AccountCode, w.SenderEmail)

	binding, err := e.store.Lookup(ctx, w.SenderAddress)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, &errs.RotationMismatchError{Reason: "no previous relayer binding for sender", Err: err}
		}
		return nil, err
	}

	if !field.Equal(RelayerHash(id, binding.RelayerRand), rot.OldRelayerHash) {
		return nil, &errs.RotationMismatchError{Reason: "old relayer hash does not match the committed binding"}
	}

	return &Commitments{
		Identity:           id,
		OldRelayerHash:     rot.OldRelayerHash,
		NewRelayerHash:     RelayerHash(id, rot.NewRelayerRand),
		NewRelayerRandHash: RandHash(rot.NewRelayerRand),
		PubkeyHash:         PubkeyHash(w.Pubkey),
		OldRelayerRand:     binding.RelayerRand,
		NewRelayerRand:     rot.NewRelayerRand,
	}, nil
}
