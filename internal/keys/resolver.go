// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package keys

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/ManuGH/xstream/internal/log"
	"golang.org/x/sync/singleflight"
)

// ErrUnsupportedKeyURI is returned for key URIs that are neither http(s) nor data.
var ErrUnsupportedKeyURI = errors.New("keys: unsupported key uri")

const maxKeyBody = 4 << 10

// StatusError reports a non-200 key response.
type StatusError struct {
	URI  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("keys: GET %s: status %d", e.URI, e.Code)
}

// Resolver fetches HLS key material. Each URI is fetched at most once; concurrent
// callers for the same URI share one request.
type Resolver struct {
	client   *http.Client
	override []byte

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string][]byte
}

// NewResolver returns a resolver using client. A non-empty override key is
// returned for every URI without any network access.
func NewResolver(client *http.Client, override []byte) *Resolver {
	return &Resolver{client: client, override: override, cache: make(map[string][]byte)}
}

// FetchKey returns the 16 byte key for uri.
func (r *Resolver) FetchKey(ctx context.Context, uri string) ([]byte, error) {
	if len(r.override) > 0 {
		return clone(r.override), nil
	}

	r.mu.RLock()
	cached, ok := r.cache[uri]
	r.mu.RUnlock()
	if ok {
		return clone(cached), nil
	}

	v, err, _ := r.group.Do(uri, func() (any, error) {
		r.mu.RLock()
		cached, ok := r.cache[uri]
		r.mu.RUnlock()
		if ok {
			return cached, nil
		}
		raw, err := r.load(ctx, uri)
		if err != nil {
			return nil, err
		}
		key, err := normalizeKey(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", uri, err)
		}
		r.mu.Lock()
		r.cache[uri] = key
		r.mu.Unlock()
		logger := log.FromContext(ctx)
		logger.Debug().Str(log.FieldComponent, "keys").Str(log.FieldURL, uri).Msg("key resolved")
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	return clone(v.([]byte)), nil
}

func (r *Resolver) load(ctx context.Context, uri string) ([]byte, error) {
	switch {
	case strings.HasPrefix(uri, "data:"):
		return decodeDataURI(uri)
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return nil, err
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, &StatusError{URI: uri, Code: resp.StatusCode}
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxKeyBody))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKeyURI, uri)
	}
}

// decodeDataURI handles "data:[<mediatype>][;base64],<data>".
func decodeDataURI(uri string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("%w: malformed data uri", ErrUnsupportedKeyURI)
	}
	if strings.HasSuffix(meta, ";base64") {
		return base64.StdEncoding.DecodeString(payload)
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
