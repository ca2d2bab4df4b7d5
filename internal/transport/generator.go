package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"account-transport-circuit/internal/commitment"
	"account-transport-circuit/internal/dkim"
	"account-transport-circuit/internal/email"
	"account-transport-circuit/internal/errs"
	"account-transport-circuit/internal/registry"
	"account-transport-circuit/internal/signals"
	"account-transport-circuit/internal/witness"
)

// Limits bound the work of one Generator.
type Limits struct {
	// MaxEmailBytes rejects larger artifacts; zero means no limit.
	MaxEmailBytes int64
	// BatchWorkers caps GenerateBatch parallelism; zero means unbounded.
	BatchWorkers int
}

// Generator turns signed emails into circuit inputs. It holds no per-run
// state and is safe for concurrent use.
type Generator struct {
	verifier *dkim.Verifier
	engine   *commitment.Engine
	logger   *zap.Logger
	limits   Limits
}

// NewGenerator wires the pipeline stages.
func NewGenerator(resolver dkim.KeyResolver, store registry.Store, logger *zap.Logger, limits Limits) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		verifier: dkim.NewVerifier(resolver),
		engine:   commitment.NewEngine(store),
		logger:   logger,
		limits:   limits,
	}
}

// Generate runs decode, verify, extract, commit and assemble on raw. The
// first failing stage aborts the run.
func (g *Generator) Generate(ctx context.Context, raw []byte, rot commitment.RelayerRotation) (*signals.CircuitInputSet, error) {
	if g.limits.MaxEmailBytes > 0 && int64(len(raw)) > g.limits.MaxEmailBytes {
		return nil, &errs.InputTooLargeError{What: "email", Size: len(raw), Limit: int(g.limits.MaxEmailBytes)}
	}

	msg, err := email.Parse(raw)
	if err != nil {
		return nil, err
	}
	log := g.logger.With(zap.String("message_id", msg.MessageID))

	v, err := g.verifier.Verify(ctx, msg)
	if err != nil {
		return nil, err
	}
	log.Debug("signature verified",
		zap.String("domain", v.Signature.Domain),
		zap.String("selector", v.Signature.Selector),
		zap.Int("key_bits", v.PublicKey.N.BitLen()),
	)

	w, err := witness.Extract(v, msg)
	if err != nil {
		return nil, err
	}
	log.Debug("witness extracted",
		zap.Int("header_len", w.HeaderLen),
		zap.Int("body_len", w.BodyLen),
	)

	c, err := g.engine.Commit(ctx, w, rot)
	if err != nil {
		return nil, err
	}

	set, err := signals.Assemble(w, c)
	if err != nil {
		return nil, err
	}
	log.Info("circuit input generated", zap.String("identity_commitment", set.IdentityCommitment))
	return set, nil
}

// Job is one independent generation request.
type Job struct {
	Raw      []byte
	Rotation commitment.RelayerRotation
}

// GenerateBatch runs jobs in parallel. Results keep job order; the first
// failure cancels the remaining jobs and is returned.
func (g *Generator) GenerateBatch(ctx context.Context, jobs []Job) ([]*signals.CircuitInputSet, error) {
	results := make([]*signals.CircuitInputSet, len(jobs))

	eg, ctx := errgroup.WithContext(ctx)
	if g.limits.BatchWorkers > 0 {
		eg.SetLimit(g.limits.BatchWorkers)
	}
	for i, job := range jobs {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			set, err := g.Generate(ctx, job.Raw, job.Rotation)
			if err != nil {
				return fmt.Errorf("job %d: %w", i, err)
			}
			results[i] = set
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Run validates opts, reads the email from src, generates and writes the
// indented JSON input file to sink. Nothing is written on failure.
func (g *Generator) Run(ctx context.Context, opts Options, src Source, sink Sink) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	rot, err := opts.Rotation()
	if err != nil {
		return err
	}

	raw, err := src.Read(ctx, opts.EmailFile)
	if err != nil {
		return err
	}
	set, err := g.Generate(ctx, raw, rot)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode input file: %w", err)
	}
	if err := sink.Write(ctx, opts.InputFile, data); err != nil {
		return err
	}
	g.logger.Info("input file written", zap.String("path", opts.InputFile), zap.Int("bytes", len(data)))
	return nil
}
