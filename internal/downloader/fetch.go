// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/xstream/internal/keys"
	"github.com/ManuGH/xstream/internal/log"
	"github.com/ManuGH/xstream/internal/manifest"
	"github.com/ManuGH/xstream/internal/metrics"
)

// StatusError reports an unexpected segment response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("downloader: GET %s: status %d", e.URL, e.Code)
}

func (s *Session) fetchSegment(ctx context.Context, seg *manifest.Segment) (Outcome, error) {
	metrics.SegmentsInFlight.Inc()
	start := time.Now()
	out, err := s.fetchOnce(ctx, seg)
	metrics.SegmentsInFlight.Dec()
	metrics.ObserveSegment(string(out), time.Since(start))
	return out, err
}

func (s *Session) fetchOnce(ctx context.Context, seg *manifest.Segment) (Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, seg.URL, nil)
	if err != nil {
		return OutcomeFatal, err
	}
	if seg.ByteRange != nil {
		req.Header.Set("Range", seg.ByteRange.Header())
	}

	resp, err := s.d.client.Do(req)
	if err != nil {
		return classifyErr(ctx, err), err
	}
	defer resp.Body.Close()

	switch out := classifyStatus(resp.StatusCode, s.d.retry); out {
	case OutcomeOK:
	case OutcomeMissing:
		return s.missing(seg, resp.StatusCode), &StatusError{URL: seg.URL, Code: resp.StatusCode}
	default:
		return out, &StatusError{URL: seg.URL, Code: resp.StatusCode}
	}

	expected := declared(seg)
	var grown int64
	if expected == 0 && resp.ContentLength > 0 {
		expected, grown = resp.ContentLength, resp.ContentLength
		s.tracker.Grow(grown)
	}

	body := &countingReader{r: resp.Body, t: s.tracker}
	if err := s.write(ctx, seg, body); err != nil {
		s.tracker.AddBytes(-body.n)
		s.tracker.Grow(-grown)
		return classifyErr(ctx, err), err
	}

	if body.n != expected {
		s.tracker.Grow(body.n - expected)
	}
	if !seg.IsInit() {
		s.tracker.Complete()
	}
	metrics.AddDownloadBytes(body.n)
	return OutcomeOK, nil
}

// missing applies the 403/404 budget. The segment is retried until its
// budget is spent, then permanently left out of concat.
func (s *Session) missing(seg *manifest.Segment, code int) Outcome {
	seg.MaxRetry404--
	if seg.MaxRetry404 > 0 {
		return OutcomeRetry
	}
	seg.SkipConcat = true
	if !seg.IsInit() {
		s.tracker.Skip()
	}
	s.logger.Warn().
		Str(log.FieldEvent, "segment.skipped").
		Str(log.FieldSegment, seg.Name).
		Int(log.FieldStatus, code).
		Msg("segment permanently unavailable, excluded from concat")
	return OutcomeSkipped
}

// write stores the segment atomically. AES-128 segments are decrypted first so
// that only plaintext ever reaches the segment file.
func (s *Session) write(ctx context.Context, seg *manifest.Segment, body io.Reader) error {
	path := s.path(seg)
	if seg.Key.SegmentDecryptable() {
		data, err := io.ReadAll(body)
		if err != nil {
			return err
		}
		plain, err := keys.DecryptAES128CBC(data, seg.Key.Key, segmentIV(seg.Key))
		if err != nil {
			return fmt.Errorf("decrypt %s: %w", seg.Name, err)
		}
		return renameio.WriteFile(path, plain, 0o644)
	}

	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending segment: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			logger := log.FromContext(ctx)
			logger.Debug().Err(err).Msg("cleanup pending segment")
		}
	}()
	if _, err := io.Copy(pendingFile, body); err != nil {
		return err
	}
	return pendingFile.CloseAtomicallyReplace()
}

func segmentIV(k *manifest.EncryptionKey) []byte {
	if len(k.IV) == 16 {
		return k.IV
	}
	return make([]byte, 16)
}

type countingReader struct {
	r io.Reader
	t *Tracker
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.n += int64(n)
		c.t.AddBytes(int64(n))
	}
	return n, err
}
