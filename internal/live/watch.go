// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package live

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ManuGH/xstream/internal/log"
)

// watchLocal signals wake whenever the local manifest at uri is written.
// Remote manifests yield a nil channel and are polled. The returned done
// channel closes once the watcher has stopped.
func watchLocal(ctx context.Context, uri string, logger zerolog.Logger) (<-chan struct{}, <-chan struct{}, error) {
	if strings.Contains(uri, "://") {
		return nil, nil, nil
	}
	path, err := filepath.Abs(uri)
	if err != nil {
		return nil, nil, err
	}
	if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
		return nil, nil, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("create watcher: %w", err)
	}
	// editors and packagers often replace the file, so watch its directory
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, nil, fmt.Errorf("watch manifest: %w", err)
	}

	wake := make(chan struct{}, 1)
	done := make(chan struct{})
	logger.Debug().Str(log.FieldPath, path).Msg("watching live manifest")

	go func() {
		defer close(done)
		defer func() { _ = watcher.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Msg("manifest watcher error")
			}
		}
	}()
	return wake, done, nil
}
