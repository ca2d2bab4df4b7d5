package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"account-transport-circuit/internal/errs"
)

// Source reads email artifacts.
type Source interface {
	Read(ctx context.Context, path string) ([]byte, error)
}

// Sink persists generated input files.
type Sink interface {
	Write(ctx context.Context, path string, data []byte) error
}

// FileSource reads artifacts from the local filesystem.
type FileSource struct {
	// MaxBytes rejects larger files; zero means no limit.
	MaxBytes int64
}

// Read returns the file content, failing with InputTooLargeError past MaxBytes.
func (s FileSource) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open email file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if s.MaxBytes > 0 {
		r = io.LimitReader(f, s.MaxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read email file: %w", err)
	}
	if s.MaxBytes > 0 && int64(len(data)) > s.MaxBytes {
		return nil, &errs.InputTooLargeError{What: "email file", Size: len(data), Limit: int(s.MaxBytes)}
	}
	return data, nil
}

// FileSink writes next to the destination and renames into place, so a
// reader never sees a partial file.
type FileSink struct{}

// Write implements Sink.
func (FileSink) Write(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write input file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write input file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to set input file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move input file into place: %w", err)
	}
	return nil
}
