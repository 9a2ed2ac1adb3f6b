// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package concat

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/ManuGH/xstream/internal/log"
	"github.com/ManuGH/xstream/internal/procgroup"
)

// ErrBinaryNotFound is returned when an external tool cannot be located.
var ErrBinaryNotFound = errors.New("concat: binary not found")

const (
	stderrTail     = 20
	terminateGrace = 5 * time.Second
)

// ProcessError carries the tail of a failed tool's stderr.
type ProcessError struct {
	Binary string
	Err    error
	Stderr []string
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("concat: %s: %v", filepath.Base(e.Binary), e.Err)
	if len(e.Stderr) > 0 {
		msg += ": " + strings.Join(e.Stderr, " | ")
	}
	return msg
}

func (e *ProcessError) Unwrap() error { return e.Err }

// LookPath resolves name in binariesDir first, then in PATH.
func LookPath(binariesDir, name string) (string, error) {
	if filepath.IsAbs(name) || strings.ContainsRune(name, filepath.Separator) {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("%w: %s", ErrBinaryNotFound, name)
	}
	if binariesDir != "" {
		candidate := filepath.Join(binariesDir, name)
		if runtime.GOOS == "windows" && filepath.Ext(candidate) == "" {
			candidate += ".exe"
		}
		if p, err := exec.LookPath(candidate); err == nil {
			return p, nil
		}
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrBinaryNotFound, name)
	}
	return p, nil
}

// run executes bin in dir inside its own process group. Cancelling ctx
// terminates the whole group.
func run(ctx context.Context, bin, dir string, args ...string) error {
	logger := log.WithComponentFromContext(ctx, "concat")
	cmd := exec.Command(bin, args...) // #nosec G204
	cmd.Dir = dir
	procgroup.Set(cmd)
	ring := NewLineRing(stderrTail)
	cmd.Stderr = ring

	logger.Debug().Str("command", cmd.String()).Str(log.FieldPath, dir).Msg("starting external tool")
	if err := cmd.Start(); err != nil {
		return &ProcessError{Binary: bin, Err: err}
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	select {
	case err := <-waitCh:
		if err != nil {
			return &ProcessError{Binary: bin, Err: err, Stderr: ring.LastN(stderrTail)}
		}
		return nil
	case <-ctx.Done():
		if err := procgroup.Terminate(cmd, waitCh, terminateGrace); err != nil {
			logger.Debug().Err(err).Msg("external tool terminated")
		}
		return ctx.Err()
	}
}
