// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package extractor fetches manifests from the network, FTP or disk, detects
// their format and turns them into streams, following HLS child playlists.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/xstream/internal/log"
	"github.com/ManuGH/xstream/internal/manifest"
	"github.com/ManuGH/xstream/internal/manifest/dash"
	"github.com/ManuGH/xstream/internal/manifest/hls"
	"github.com/ManuGH/xstream/internal/manifest/mss"
	"github.com/ManuGH/xstream/internal/metrics"
	"github.com/ManuGH/xstream/internal/telemetry"
)

const (
	defaultMaxDepth         = 3
	defaultChildConcurrency = 4
)

// ErrMalformed wraps parser errors for content that was recognized but could
// not be parsed.
var ErrMalformed = errors.New("extractor: malformed manifest")

// Options configure an Extractor.
type Options struct {
	HLS  hls.Options
	DASH dash.Options
	// BaseURL replaces the base directory of local manifest files.
	BaseURL string
	// DumpDir receives a copy of every fetched manifest when non-empty.
	DumpDir string
	// MaxDepth bounds recursion into HLS child playlists.
	MaxDepth int
	// ChildConcurrency bounds parallel child playlist fetches.
	ChildConcurrency int
	// Timeout applies to FTP connections; HTTP uses the client timeout.
	Timeout time.Duration
}

// Extractor resolves a URI into streams.
type Extractor struct {
	client  *http.Client
	keys    hls.KeyFetcher
	opts    Options
	timeout time.Duration
	tracer  trace.Tracer
}

// New returns an Extractor. keys resolves HLS key URIs after each manifest
// level has been parsed.
func New(client *http.Client, keys hls.KeyFetcher, opts Options) *Extractor {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = defaultMaxDepth
	}
	if opts.ChildConcurrency <= 0 {
		opts.ChildConcurrency = defaultChildConcurrency
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Extractor{
		client:  client,
		keys:    keys,
		opts:    opts,
		timeout: timeout,
		tracer:  telemetry.Tracer("xstream/extractor"),
	}
}

// FetchMetadata returns the streams of uri with indices 0..n-1. Unrecognized
// content yields no streams and no error. For live DASH manifests streams may
// be returned together with a *dash.NotYetAvailableError.
func (e *Extractor) FetchMetadata(ctx context.Context, uri string) ([]*manifest.Stream, error) {
	streams, err := e.fetch(ctx, uri, manifest.NameFromURL(uri), 0)
	manifest.Reindex(streams)
	metrics.ObserveManifestStreams(len(streams))
	return streams, err
}

func (e *Extractor) fetch(ctx context.Context, uri, name string, depth int) (streams []*manifest.Stream, err error) {
	ctx, span := e.tracer.Start(ctx, "extractor.fetch", trace.WithAttributes(telemetry.ManifestAttributes(uri, "", depth)...))
	defer func() {
		span.SetAttributes(attribute.Int(telemetry.ManifestStreamsKey, len(streams)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	scheme, localPath, err := location(uri)
	if err != nil {
		return nil, err
	}
	switch scheme {
	case "http":
		content, final, err := e.fetchHTTP(ctx, uri)
		if err != nil {
			return nil, err
		}
		return e.parse(ctx, content, final, name, false, depth)
	case "ftp":
		content, err := e.fetchFTP(ctx, uri)
		if err != nil {
			return nil, err
		}
		return e.parse(ctx, content, uri, name, false, depth)
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return e.fetchDir(ctx, localPath, depth)
	}
	content, err := readLocal(localPath)
	if err != nil {
		return nil, err
	}
	return e.parse(ctx, content, localPath, name, true, depth)
}

// fetchDir parses every regular file of dir independently and concatenates
// the results. Files that fail to parse are logged and skipped.
func (e *Extractor) fetchDir(ctx context.Context, dir string, depth int) ([]*manifest.Stream, error) {
	logger := log.WithComponentFromContext(ctx, "extractor")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []*manifest.Stream
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		content, err := readLocal(path)
		if err != nil {
			logger.Warn().Err(err).Str(log.FieldPath, path).Msg("skipping unreadable manifest")
			continue
		}
		streams, err := e.parse(ctx, content, path, manifest.NameFromURL(path), true, depth)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logger.Warn().Err(err).Str(log.FieldPath, path).Msg("skipping manifest")
			continue
		}
		out = append(out, streams...)
	}
	return out, nil
}

func (e *Extractor) parse(ctx context.Context, content, loc, name string, local bool, depth int) (streams []*manifest.Stream, err error) {
	logger := log.WithComponentFromContext(ctx, "extractor")
	kind := Sniff(content)
	defer func() {
		if kind != KindUnknown {
			metrics.IncManifestFetch(string(kind), err == nil)
		}
	}()
	trace.SpanFromContext(ctx).SetAttributes(attribute.String(telemetry.ManifestKindKey, string(kind)))
	e.dump(ctx, kind, loc, content)

	base := manifest.NewBaseURI(loc, name)
	if local && e.opts.BaseURL != "" {
		base = base.WithBaseURL(e.opts.BaseURL)
	}

	switch kind {
	case KindHLS:
		return e.parseHLS(ctx, content, base, depth)
	case KindDASH:
		streams, err = dash.Parse(content, base, e.opts.DASH)
		var notYet *dash.NotYetAvailableError
		if errors.As(err, &notYet) {
			return streams, err
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return streams, nil
	case KindMSS:
		streams, err = mss.Parse(content, base)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return streams, nil
	}
	logger.Warn().Str(log.FieldURL, loc).Msg("unrecognized manifest content")
	return nil, nil
}

func (e *Extractor) parseHLS(ctx context.Context, content string, base manifest.BaseURI, depth int) ([]*manifest.Stream, error) {
	logger := log.WithComponentFromContext(ctx, "extractor")
	res, err := hls.Parse(content, base, e.opts.HLS)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if !res.IsMaster {
		if err := hls.ResolveKeys(ctx, res.Streams, e.keys); err != nil {
			return nil, fmt.Errorf("resolve keys: %w", err)
		}
		return res.Streams, nil
	}

	if depth+1 > e.opts.MaxDepth {
		logger.Warn().Str(log.FieldURL, base.HomeURL).Int("depth", depth).Msg("child playlists beyond depth limit dropped")
		return nil, nil
	}

	results := make([][]*manifest.Stream, len(res.Streams))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.ChildConcurrency)
	for i, parent := range res.Streams {
		if parent.ChildURL == "" {
			results[i] = []*manifest.Stream{parent}
			continue
		}
		g.Go(func() error {
			children, err := e.fetch(gctx, parent.ChildURL, base.Name, depth+1)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				logger.Warn().Err(err).Str(log.FieldURL, parent.ChildURL).Msg("child playlist skipped")
				return nil
			}
			if len(children) == 1 {
				backfill(children[0], parent)
			}
			results[i] = children
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []*manifest.Stream
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// backfill copies the attributes a master playlist declares for a variant
// onto the stream parsed from the variant's media playlist.
func backfill(child, parent *manifest.Stream) {
	if child.Codec == "" {
		child.Codec = parent.Codec
	}
	if child.Resolution == "" {
		child.Resolution = parent.Resolution
	}
	if child.Bandwidth == 0 {
		child.Bandwidth = parent.Bandwidth
	}
	if child.Lang == "" {
		child.Lang = parent.Lang
	}
	if child.FPS == 0 {
		child.FPS = parent.FPS
	}
	if child.GroupID == "" {
		child.GroupID = parent.GroupID
	}
	if child.Role == "" {
		child.Role = parent.Role
	}
	if child.Type == manifest.TypeUnknown {
		child.Type = parent.Type
	}
}

// dump stores a copy of the raw manifest. Failures are logged only.
func (e *Extractor) dump(ctx context.Context, kind Kind, loc, content string) {
	if e.opts.DumpDir == "" {
		return
	}
	logger := log.WithComponentFromContext(ctx, "extractor")
	name := manifest.SanitizeName(strings.ReplaceAll(strings.Trim(manifest.URLPath(loc), "/"), "/", "_"))
	name = strings.TrimSuffix(name, filepath.Ext(name)) + kind.Extension()
	if err := os.MkdirAll(e.opts.DumpDir, 0o755); err != nil {
		logger.Warn().Err(err).Str(log.FieldPath, e.opts.DumpDir).Msg("manifest dump failed")
		return
	}
	path := filepath.Join(e.opts.DumpDir, name)
	if err := renameio.WriteFile(path, []byte(content), 0o644); err != nil {
		logger.Warn().Err(err).Str(log.FieldPath, path).Msg("manifest dump failed")
		return
	}
	logger.Debug().Str(log.FieldPath, path).Msg("manifest dumped")
}
