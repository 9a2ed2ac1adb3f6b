// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package downloader

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/xstream/internal/log"
	"github.com/ManuGH/xstream/internal/manifest"
)

// CheckpointFile is the per-stream metadata dump written before fetching.
const CheckpointFile = "raw.json"

// Checkpoint is the on-disk description of a stream download. Segment files
// present in the same directory are the source of truth for resume; the
// checkpoint is informational and allows offline re-processing.
type Checkpoint struct {
	Name       string              `json:"name"`
	SKey       string              `json:"skey"`
	SavePath   string              `json:"save_path"`
	CreatedAt  time.Time           `json:"created_at"`
	HomeURL    string              `json:"home_url"`
	Type       string              `json:"type,omitempty"`
	Codec      string              `json:"codec,omitempty"`
	Resolution string              `json:"resolution,omitempty"`
	Lang       string              `json:"lang,omitempty"`
	Bandwidth  int64               `json:"bandwidth,omitempty"`
	Live       bool                `json:"live,omitempty"`
	Keys       []CheckpointKey     `json:"keys,omitempty"`
	Segments   []CheckpointSegment `json:"segments"`
}

// CheckpointKey is the key material of a stream.
type CheckpointKey struct {
	Method   string `json:"method"`
	URI      string `json:"uri,omitempty"`
	Key      string `json:"key,omitempty"`
	IV       string `json:"iv,omitempty"`
	KeyID    string `json:"kid,omitempty"`
	SchemeID string `json:"scheme_id_uri,omitempty"`
	PSSH     string `json:"pssh,omitempty"`
}

// CheckpointSegment is one segment entry in manifest order.
type CheckpointSegment struct {
	Name      string              `json:"name"`
	Index     int                 `json:"index"`
	URL       string              `json:"url"`
	Size      int64               `json:"size,omitempty"`
	Duration  float64             `json:"duration,omitempty"`
	ByteRange *manifest.ByteRange `json:"byte_range,omitempty"`
	Skip      bool                `json:"skip,omitempty"`
}

func newCheckpoint(st *manifest.Stream, dir string, now time.Time) Checkpoint {
	cp := Checkpoint{
		Name:       st.Name,
		SKey:       st.SKey,
		SavePath:   dir,
		CreatedAt:  now.UTC(),
		HomeURL:    st.HomeURL,
		Type:       string(st.Type),
		Codec:      st.Codec,
		Resolution: st.Resolution,
		Lang:       st.Lang,
		Bandwidth:  st.Bandwidth,
		Live:       st.IsLive,
		Segments:   make([]CheckpointSegment, 0, len(st.Segments)),
	}
	seen := make(map[*manifest.EncryptionKey]bool)
	addKey := func(k *manifest.EncryptionKey) {
		if k == nil || seen[k] {
			return
		}
		seen[k] = true
		cp.Keys = append(cp.Keys, CheckpointKey{
			Method:   string(k.Method),
			URI:      k.URI,
			Key:      hex.EncodeToString(k.Key),
			IV:       hex.EncodeToString(k.IV),
			KeyID:    hex.EncodeToString(k.KeyID),
			SchemeID: k.SchemeIDURI,
			PSSH:     k.PSSH,
		})
	}
	for _, k := range st.Keys {
		addKey(k)
	}
	for _, seg := range st.Segments {
		addKey(seg.Key)
		cp.Segments = append(cp.Segments, CheckpointSegment{
			Name:      seg.Name,
			Index:     seg.Index,
			URL:       seg.URL,
			Size:      seg.Filesize,
			Duration:  seg.Duration,
			ByteRange: seg.ByteRange,
			Skip:      seg.SkipConcat,
		})
	}
	return cp
}

// writeCheckpoint atomically replaces dir/raw.json.
func writeCheckpoint(ctx context.Context, dir string, cp Checkpoint) error {
	logger := log.FromContext(ctx)
	path := filepath.Join(dir, CheckpointFile)

	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending checkpoint: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending checkpoint")
		}
	}()

	enc := json.NewEncoder(pendingFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cp); err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// ReadCheckpoint loads dir/raw.json.
func ReadCheckpoint(dir string) (Checkpoint, error) {
	var cp Checkpoint
	data, err := os.ReadFile(filepath.Join(dir, CheckpointFile))
	if err != nil {
		return cp, err
	}
	if err := json.Unmarshal(data, &cp); err != nil {
		return cp, fmt.Errorf("decode checkpoint: %w", err)
	}
	return cp, nil
}
