// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package concat joins downloaded segment files into one output and runs the
// external decryptor on CENC content.
package concat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ManuGH/xstream/internal/config"
	"github.com/ManuGH/xstream/internal/keys"
	"github.com/ManuGH/xstream/internal/log"
	"github.com/ManuGH/xstream/internal/metrics"
)

// DefaultBatchSize bounds the inputs of one concat invocation.
const DefaultBatchSize = 500

var (
	// ErrNoInputs is returned for an empty job.
	ErrNoInputs = errors.New("concat: no input files")
	// ErrNoDecryptor is returned when keys are present but no decryptor is configured.
	ErrNoDecryptor = errors.New("concat: content keys given but no decryptor configured")
)

// Concatenator joins files, given relative to dir, into output.
type Concatenator interface {
	Name() string
	Concat(ctx context.Context, dir string, files []string, output string) error
}

// Decryptor decrypts input with the given keys and returns the path of the
// decrypted file.
type Decryptor interface {
	Decrypt(ctx context.Context, input string, keys []keys.ContentKey) (string, error)
}

// Job describes the segments of one stream.
type Job struct {
	// Dir holds the inputs; Files are relative to it and in playback order.
	Dir    string
	Files  []string
	Output string
	// Raw forces byte concatenation.
	Raw  bool
	Keys []keys.ContentKey
}

// Result describes the produced file.
type Result struct {
	Output    string
	Strategy  string
	Decrypted bool
}

// Options configure a Pipeline.
type Options struct {
	// Muxer is the demuxer-level strategy, nil means byte concatenation only.
	Muxer     Concatenator
	Decryptor Decryptor
	// AutoDelete removes the encrypted output after a successful decrypt.
	AutoDelete bool
	BatchSize  int
}

// Pipeline picks a strategy per job, batches large inputs and decrypts.
type Pipeline struct {
	muxer      Concatenator
	binary     Concatenator
	decryptor  Decryptor
	autoDelete bool
	batch      int
}

// New returns a Pipeline.
func New(opts Options) *Pipeline {
	if opts.BatchSize < 2 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Pipeline{
		muxer:      opts.Muxer,
		binary:     Binary{},
		decryptor:  opts.Decryptor,
		autoDelete: opts.AutoDelete,
		batch:      opts.BatchSize,
	}
}

// FromConfig resolves the external tools the configuration needs. Missing
// binaries are reported before any download starts.
func FromConfig(cfg config.AppConfig) (*Pipeline, error) {
	opts := Options{AutoDelete: cfg.Keys.AutoDelete}
	if !cfg.Download.RawConcat {
		bin, err := LookPath(cfg.BinariesDir, "ffmpeg")
		if err != nil {
			return nil, err
		}
		opts.Muxer = FFmpeg{Bin: bin}
	}
	if len(cfg.Keys.ContentKeys) > 0 {
		bin, err := LookPath(cfg.BinariesDir, cfg.Keys.DecryptBinary)
		if err != nil {
			return nil, err
		}
		opts.Decryptor = MP4Decrypt{Bin: bin}
	}
	return New(opts), nil
}

// Merge concatenates job and decrypts the result when keys are present.
// Ciphertext must stay byte exact until decrypted, so keys force byte
// concatenation.
func (p *Pipeline) Merge(ctx context.Context, job Job) (Result, error) {
	logger := log.WithComponentFromContext(ctx, "concat")
	if len(job.Files) == 0 {
		return Result{}, ErrNoInputs
	}
	if len(job.Keys) > 0 && p.decryptor == nil {
		return Result{}, ErrNoDecryptor
	}

	strategy := p.muxer
	if strategy == nil || job.Raw || len(job.Keys) > 0 {
		strategy = p.binary
	}

	start := time.Now()
	err := p.concat(ctx, strategy, job.Dir, job.Files, job.Output, 0)
	metrics.ObserveConcat(strategy.Name(), err == nil, time.Since(start))
	if err != nil {
		return Result{}, err
	}
	res := Result{Output: job.Output, Strategy: strategy.Name()}
	logger.Info().
		Str(log.FieldEvent, "stream.concat_done").
		Str("strategy", res.Strategy).
		Int("files", len(job.Files)).
		Str(log.FieldPath, job.Output).
		Msg("segments concatenated")

	if len(job.Keys) == 0 {
		return res, nil
	}
	decrypted, err := p.decryptor.Decrypt(ctx, job.Output, job.Keys)
	metrics.IncDecrypt(err == nil)
	if err != nil {
		return res, fmt.Errorf("decrypt %s: %w", job.Output, err)
	}
	if p.autoDelete {
		if err := os.Remove(job.Output); err != nil {
			logger.Warn().Err(err).Str(log.FieldPath, job.Output).Msg("failed to remove encrypted output")
		}
	}
	res.Output = decrypted
	res.Decrypted = true
	return res, nil
}

// concat joins files, splitting them into batches written to temporary part
// files next to the inputs when there are too many for one invocation.
func (p *Pipeline) concat(ctx context.Context, c Concatenator, dir string, files []string, output string, level int) error {
	if len(files) <= p.batch {
		return c.Concat(ctx, dir, files, output)
	}

	ext := filepath.Ext(output)
	var parts []string
	defer func() {
		for _, part := range parts {
			_ = os.Remove(filepath.Join(dir, part))
		}
	}()
	for start := 0; start < len(files); start += p.batch {
		end := min(start+p.batch, len(files))
		part := fmt.Sprintf("_part%d_%04d%s", level, len(parts), ext)
		parts = append(parts, part)
		if err := c.Concat(ctx, dir, files[start:end], filepath.Join(dir, part)); err != nil {
			return fmt.Errorf("concat batch %d: %w", len(parts)-1, err)
		}
	}
	return p.concat(ctx, c, dir, parts, output, level+1)
}
