// Command gen-transport-input turns a DKIM-signed email into the input file
// of the account transport circuit.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"account-transport-circuit/internal/config"
	"account-transport-circuit/internal/dkim"
	"account-transport-circuit/internal/logger"
	"account-transport-circuit/internal/registry"
	"account-transport-circuit/internal/transport"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return err
	}

	log := logger.NewSilent()
	if !opts.Silent {
		if log, err = logger.New(cfg.Logging.Level); err != nil {
			fmt.Fprintf(stderr, "failed to create logger: %v\n", err)
			return err
		}
	}
	defer func() { _ = log.Sync() }()

	// --silent only mutes progress logs; failures are always reported
	fail := func(msg string, err error, fields ...zap.Field) error {
		log.Error(msg, append(fields, zap.Error(err))...)
		if opts.Silent {
			fmt.Fprintf(stderr, "%s: %v\n", msg, err)
		}
		return err
	}

	store, err := loadStore(cfg)
	if err != nil {
		return fail("failed to load relayer bindings", err)
	}

	gen := transport.NewGenerator(newResolver(cfg), store, log, transport.Limits{
		MaxEmailBytes: cfg.Limits.MaxEmailBytes,
		BatchWorkers:  cfg.Limits.BatchWorkers,
	})
	src := transport.FileSource{MaxBytes: cfg.Limits.MaxEmailBytes}
	if err := gen.Run(ctx, opts, src, transport.FileSink{}); err != nil {
		return fail("failed to generate input", err, zap.String("email_file", opts.EmailFile))
	}
	return nil
}

func parseFlags(args []string, stderr io.Writer) (transport.Options, error) {
	var opts transport.Options
	fs := flag.NewFlagSet("gen-transport-input", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.EmailFile, "email-file", "", "path to the signed .eml file")
	fs.StringVar(&opts.OldRelayerHash, "old-relayer-hash", "", "relayer hash currently bound to the account (hex or decimal)")
	fs.StringVar(&opts.NewRelayerRand, "new-relayer-rand", "", "random value of the new relayer (hex or decimal)")
	fs.StringVar(&opts.InputFile, "input-file", "", "where to write the circuit input, must end in .json")
	fs.BoolVar(&opts.Silent, "silent", false, "disable logging")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if err := opts.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		fs.Usage()
		return opts, err
	}
	return opts, nil
}

// newResolver prefers pinned keys and falls back to DNS unless offline.
func newResolver(cfg *config.Config) dkim.KeyResolver {
	static := dkim.StaticResolver(cfg.DKIM.Keys)
	if cfg.DKIM.Offline {
		return static
	}
	dns := &dkim.DNSResolver{Timeout: cfg.DKIM.LookupTimeout}
	if len(static) == 0 {
		return dns
	}
	return dkim.ChainResolver{static, dns}
}

func loadStore(cfg *config.Config) (registry.Store, error) {
	if cfg.Registry.File == "" {
		return registry.NewMemoryStore(), nil
	}
	return registry.LoadFile(cfg.Registry.File)
}
