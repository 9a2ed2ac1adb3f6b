// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup isolates external tools in their own process group so
// that cancellation reaps the whole tree.
package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/xstream/internal/metrics"
)

// ErrKillFailed is returned when a process survives SIGKILL.
var ErrKillFailed = errors.New("procgroup: kill failed")

// Terminate stops a process group started with Set. It sends SIGTERM, waits
// up to grace for waitCh, then sends SIGKILL and drains waitCh. It returns the
// error received from waitCh and is safe to call with a nil command.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	metrics.IncProcTerminate("SIGTERM", signalResult(Kill(cmd, syscall.SIGTERM)))
	select {
	case err := <-waitCh:
		return err
	case <-time.After(grace):
	}

	metrics.IncProcTerminate("SIGKILL", signalResult(Kill(cmd, syscall.SIGKILL)))
	select {
	case err := <-waitCh:
		return err
	case <-time.After(grace):
		return ErrKillFailed
	}
}

func signalResult(err error) string {
	switch {
	case err == nil:
		return "sent"
	case errors.Is(err, syscall.ESRCH):
		return "esrch"
	}
	return "error"
}
