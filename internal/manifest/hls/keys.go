// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/xstream/internal/manifest"
)

// KeyFetcher loads raw key material for a key URI.
type KeyFetcher interface {
	FetchKey(ctx context.Context, uri string) ([]byte, error)
}

// ResolveKeys runs after every stream of one manifest level has been parsed.
// Each stream's playlist-scoped key is fetched once and propagated to every
// segment that has no key of its own. Segment-scoped keys are fetched too; the
// fetcher is expected to cache by URI.
func ResolveKeys(ctx context.Context, streams []*manifest.Stream, fetcher KeyFetcher) error {
	var errs []error
	fetched := make(map[*manifest.EncryptionKey]bool)

	fetch := func(k *manifest.EncryptionKey) bool {
		if done, ok := fetched[k]; ok {
			return done
		}
		raw, err := fetcher.FetchKey(ctx, k.URI)
		if err != nil {
			errs = append(errs, fmt.Errorf("fetch key %s: %w", k.URI, err))
			fetched[k] = false
			return false
		}
		k.Key = raw
		fetched[k] = true
		return true
	}

	for _, st := range streams {
		if st.ChildURL != "" {
			continue
		}
		var top *manifest.EncryptionKey
		for _, k := range st.Keys {
			if !k.Fetchable() {
				continue
			}
			if fetch(k) && top == nil {
				top = k
			}
		}
		if top == nil {
			top = unfetchedAES(st.Keys)
		}
		for _, seg := range st.Segments {
			if seg.Key == nil {
				if top != nil {
					seg.Key = top
				}
				continue
			}
			if seg.Key.Fetchable() {
				fetch(seg.Key)
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

// unfetchedAES returns an AES-128 key whose URI the resolver cannot load,
// such as skd: or a local path. Segments still carry it so an override key
// can reach them.
func unfetchedAES(keys []*manifest.EncryptionKey) *manifest.EncryptionKey {
	for _, k := range keys {
		if k.Method == manifest.MethodAES128 && !k.Fetchable() {
			return k
		}
	}
	return nil
}
