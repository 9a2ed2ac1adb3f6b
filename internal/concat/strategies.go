// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package concat

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/xstream/internal/keys"
	"github.com/ManuGH/xstream/internal/log"
)

// Binary appends the raw bytes of every input.
type Binary struct{}

func (Binary) Name() string { return "binary" }

func (Binary) Concat(ctx context.Context, dir string, files []string, output string) error {
	pendingFile, err := renameio.NewPendingFile(output, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending output: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			logger := log.FromContext(ctx)
			logger.Debug().Err(err).Msg("cleanup pending output")
		}
	}()

	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := appendFile(pendingFile, filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return pendingFile.CloseAtomicallyReplace()
}

func appendFile(dst io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(dst, f)
	return err
}

// FFmpeg re-stitches the container with the concat protocol and stream copy.
type FFmpeg struct {
	Bin string
}

func (FFmpeg) Name() string { return "ffmpeg" }

// Concat runs in dir so that inputs stay relative and the command line short.
func (f FFmpeg) Concat(ctx context.Context, dir string, files []string, output string) error {
	abs, err := filepath.Abs(output)
	if err != nil {
		return err
	}
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", "concat:" + strings.Join(files, "|"),
		"-c", "copy",
		abs,
	}
	return run(ctx, f.Bin, dir, args...)
}

// MP4Decrypt shells out to Bento4's mp4decrypt.
type MP4Decrypt struct {
	Bin string
}

// Decrypt writes "<stem>_decrypted<ext>" next to input.
func (m MP4Decrypt) Decrypt(ctx context.Context, input string, contentKeys []keys.ContentKey) (string, error) {
	ext := filepath.Ext(input)
	output := strings.TrimSuffix(input, ext) + "_decrypted" + ext

	args := make([]string, 0, 2*len(contentKeys)+2)
	for _, k := range contentKeys {
		args = append(args, "--key", k.String())
	}
	args = append(args, filepath.Base(input), filepath.Base(output))
	if err := run(ctx, m.Bin, filepath.Dir(input), args...); err != nil {
		return "", err
	}
	return output, nil
}
