// Package transport runs the input generation pipeline: read a signed email,
// verify it, reduce it to circuit signals and write the input file.
package transport

import (
	"errors"
	"fmt"
	"strings"

	"account-transport-circuit/internal/commitment"
	"account-transport-circuit/internal/errs"
	"account-transport-circuit/internal/field"
)

// ErrInvalidOptions is wrapped by every option validation failure.
var ErrInvalidOptions = errors.New("invalid options")

// Options are the command line inputs of one run.
type Options struct {
	EmailFile      string
	OldRelayerHash string
	NewRelayerRand string
	InputFile      string
	Silent         bool
}

// Validate checks that every required option is present and that the output
// is a .json file.
func (o Options) Validate() error {
	required := []struct{ name, value string }{
		{"email-file", o.EmailFile},
		{"old-relayer-hash", o.OldRelayerHash},
		{"new-relayer-rand", o.NewRelayerRand},
		{"input-file", o.InputFile},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%w: --%s is required", ErrInvalidOptions, r.name)
		}
	}
	if !strings.HasSuffix(o.InputFile, ".json") {
		return fmt.Errorf("%w: --input-file %q must end in .json", ErrInvalidOptions, o.InputFile)
	}
	return nil
}

// Rotation parses the relayer parameters. An old relayer hash that is not a
// field element cannot match any committed binding and is reported as a
// RotationMismatchError.
func (o Options) Rotation() (commitment.RelayerRotation, error) {
	oldHash, err := field.Parse(o.OldRelayerHash)
	if err != nil {
		return commitment.RelayerRotation{}, &errs.RotationMismatchError{Reason: "old relayer hash is not a field element", Err: err}
	}
	newRand, err := field.Parse(o.NewRelayerRand)
	if err != nil {
		return commitment.RelayerRotation{}, fmt.Errorf("--new-relayer-rand: %w", err)
	}
	return commitment.RelayerRotation{OldRelayerHash: oldHash, NewRelayerRand: newRand}, nil
}
