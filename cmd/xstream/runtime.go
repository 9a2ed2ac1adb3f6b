// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/ManuGH/xstream/internal/config"
	"github.com/ManuGH/xstream/internal/extractor"
	"github.com/ManuGH/xstream/internal/keys"
	"github.com/ManuGH/xstream/internal/log"
	"github.com/ManuGH/xstream/internal/manifest"
	"github.com/ManuGH/xstream/internal/manifest/dash"
	"github.com/ManuGH/xstream/internal/manifest/hls"
	"github.com/ManuGH/xstream/internal/platform/httpx"
)

// runtime holds what list and download share.
type runtime struct {
	cfg         config.AppConfig
	client      *http.Client
	extractor   *extractor.Extractor
	overrideKey []byte
	overrideIV  []byte
}

func newRuntime(cfg config.AppConfig) (*runtime, error) {
	client, err := httpx.New(httpx.Options{
		Timeout:      cfg.Network.Timeout(),
		Headers:      cfg.Network.Headers,
		Proxy:        cfg.Network.Proxy,
		LimitPerHost: cfg.Network.LimitPerHost,
		Tracing:      cfg.Telemetry.Enabled,
	})
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, client: client}
	if cfg.Keys.AESKey != "" {
		rt.overrideKey, rt.overrideIV, err = keys.ParseAESKey(cfg.Keys.AESKey, cfg.Keys.AESIV)
	} else {
		rt.overrideIV, err = keys.ParseIV(cfg.Keys.AESIV)
	}
	if err != nil {
		return nil, err
	}

	opts := extractor.Options{
		HLS: hls.Options{
			DontSplitDiscontinuity: cfg.Parse.DontSplitDiscontinuity,
			AdKeywords:             cfg.Parse.AdKeywords,
		},
		DASH:    dash.Options{ServiceLocation: cfg.Parse.ServiceLocation},
		BaseURL: cfg.Parse.BaseURL,
		Timeout: cfg.Network.Timeout(),
	}
	if cfg.Parse.DumpManifest {
		opts.DumpDir = cfg.SaveDir
	}
	rt.extractor = extractor.New(client, keys.NewResolver(client, rt.overrideKey), opts)
	return rt, nil
}

// FetchMetadata fetches uri and applies the key overrides. The live
// recorder reloads through it so refreshed segments get the same keys.
func (rt *runtime) FetchMetadata(ctx context.Context, uri string) ([]*manifest.Stream, error) {
	streams, err := rt.extractor.FetchMetadata(ctx, uri)
	if n := keys.ApplyOverride(streams, rt.overrideKey, rt.overrideIV); n > 0 {
		logger := log.FromContext(ctx)
		logger.Debug().Int("keys", n).Msg("applied AES key override")
	}
	return streams, err
}

// streams is FetchMetadata for a one-off fetch. A live DASH timeline that
// has nothing published yet still yields its streams.
func (rt *runtime) streams(ctx context.Context, uri string) ([]*manifest.Stream, error) {
	streams, err := rt.FetchMetadata(ctx, uri)
	var notYet *dash.NotYetAvailableError
	if errors.As(err, &notYet) {
		logger := log.FromContext(ctx)
		logger.Warn().Err(err).Msg("live manifest has segments pending")
		err = nil
	}
	if err != nil {
		return nil, err
	}
	return streams, nil
}
