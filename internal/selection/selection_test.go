// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package selection

import (
	"testing"

	"github.com/ManuGH/xstream/internal/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catalog() []*manifest.Stream {
	mk := func(i int, t manifest.StreamType, bw int64, res, lang string) *manifest.Stream {
		return &manifest.Stream{Index: i, Type: t, Bandwidth: bw, Resolution: res, Lang: lang}
	}
	return []*manifest.Stream{
		mk(0, manifest.TypeVideo, 800_000, "640x360", ""),
		mk(1, manifest.TypeVideo, 5_000_000, "1920x1080", ""),
		mk(2, manifest.TypeVideo, 2_500_000, "1280x720", ""),
		mk(3, manifest.TypeAudio, 128_000, "", "en"),
		mk(4, manifest.TypeAudio, 192_000, "", "de"),
		mk(5, manifest.TypeSubtitle, 0, "", "en-US"),
		mk(6, manifest.TypeSubtitle, 0, "", "fr"),
	}
}

func indices(choices []Choice) []int {
	out := make([]int, 0, len(choices))
	for _, ch := range choices {
		out = append(out, ch.Stream.Index)
	}
	return out
}

func TestSelect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		c       Criteria
		want    []int
		reasons []Reason
	}{
		{
			name:    "auto picks best video and best audio",
			want:    []int{1, 4},
			reasons: []Reason{ReasonBestVideo, ReasonBestAudio},
		},
		{
			name:    "preferred language narrows audio and adds subtitles",
			c:       Criteria{Lang: "en"},
			want:    []int{1, 3, 5},
			reasons: []Reason{ReasonBestVideo, ReasonLanguageMatch, ReasonSubtitleLang},
		},
		{
			name:    "resolution by height",
			c:       Criteria{Resolution: "720p"},
			want:    []int{2, 4},
			reasons: []Reason{ReasonResolutionMatch, ReasonBestAudio},
		},
		{
			name:    "resolution by dimensions",
			c:       Criteria{Resolution: "640x360"},
			want:    []int{0, 4},
			reasons: []Reason{ReasonResolutionMatch, ReasonBestAudio},
		},
		{
			name:    "unknown resolution falls back to best",
			c:       Criteria{Resolution: "2160"},
			want:    []int{1, 4},
			reasons: []Reason{ReasonBestVideo, ReasonBestAudio},
		},
		{
			name:    "all of a type",
			c:       Criteria{Types: []manifest.StreamType{manifest.TypeSubtitle}},
			want:    []int{5, 6},
			reasons: []Reason{ReasonTypeMatch, ReasonTypeMatch},
		},
		{
			name:    "explicit indices win",
			c:       Criteria{Indices: "6,0-1", Lang: "de"},
			want:    []int{6, 0, 1},
			reasons: []Reason{ReasonExplicitIndex, ReasonExplicitIndex, ReasonExplicitIndex},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Select(catalog(), tt.c)
			require.NoError(t, err)
			assert.Equal(t, tt.want, indices(got))
			for i, ch := range got {
				assert.Equal(t, tt.reasons[i], ch.Reason, "choice %d", i)
			}
		})
	}
}

func TestSelect_MuxedVideoOnly(t *testing.T) {
	t.Parallel()

	streams := []*manifest.Stream{
		{Index: 0, Type: manifest.TypeVideo, Bandwidth: 1000},
		{Index: 1, Type: manifest.TypeVideo, Bandwidth: 1000, Resolution: "1280x720"},
	}
	got, err := Select(streams, Criteria{})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, indices(got), "equal bandwidth is broken by height")
	assert.Len(t, Streams(got), 1)
}

func TestSelect_Errors(t *testing.T) {
	t.Parallel()

	_, err := Select(catalog(), Criteria{Indices: "9"})
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = Select(catalog(), Criteria{Indices: "x"})
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = Select(catalog(), Criteria{Types: []manifest.StreamType{manifest.TypeText}})
	assert.ErrorIs(t, err, ErrNothingSelected)

	_, err = Select(nil, Criteria{})
	assert.ErrorIs(t, err, ErrNothingSelected)
}
