// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ManuGH/xstream/internal/manifest"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = manifest.NewBaseURI("https://cdn.example.com/show/index.m3u8?token=t", "show")

func mustParse(t *testing.T, content string, opts Options) *Result {
	t.Helper()
	res, err := Parse(content, base, opts)
	require.NoError(t, err)
	return res
}

func urls(st *manifest.Stream) []string {
	out := make([]string, 0, len(st.Segments))
	for _, s := range st.Segments {
		out = append(out, s.URL)
	}
	return out
}

func TestParse_MediaPlaylistNumbering(t *testing.T) {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:6\n")
	const n = 12
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "#EXTINF:6.0,\nseg%d.ts\n", i)
	}
	b.WriteString("#EXT-X-ENDLIST\n")

	res := mustParse(t, b.String(), Options{})
	require.Len(t, res.Streams, 1)
	st := res.Streams[0]

	assert.False(t, res.IsMaster)
	assert.False(t, res.IsLive)
	assert.Equal(t, 6*time.Second, res.TargetDuration)
	require.Len(t, st.Segments, n)
	for i, seg := range st.Segments {
		assert.Equal(t, i, seg.Index)
		assert.Equal(t, fmt.Sprintf("%04d.ts", i), seg.Name)
		assert.Equal(t, fmt.Sprintf("https://cdn.example.com/show/seg%d.ts", i), seg.URL)
	}
	assert.InDelta(t, 72.0, st.Duration, 1e-9)
	assert.Equal(t, "/show/index.m3u8", st.SKey)
}

func TestParse_MasterPlaylist(t *testing.T) {
	content := `#EXTM3U
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aac",LANGUAGE="eng",NAME="English",URI="audio/en.m3u8"
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aac",LANGUAGE="de",NAME="Deutsch"
#EXT-X-STREAM-INF:BANDWIDTH=2000000,RESOLUTION=1280x720,CODECS="avc1.4d401f,mp4a.40.2",AUDIO="aac"
v720/index.m3u8?sig=1
#EXT-X-STREAM-INF:BANDWIDTH=5000000,AVERAGE-BANDWIDTH=4500000,RESOLUTION=1920x1080,CODECS="hvc1.2.4.L120,mp4a.40.2"
v1080/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2100000,RESOLUTION=1280x720
v720/index.m3u8?sig=2
#EXT-X-I-FRAME-STREAM-INF:BANDWIDTH=300000,URI="iframe/index.m3u8"
`
	res := mustParse(t, content, Options{})
	assert.True(t, res.IsMaster)
	require.Len(t, res.Streams, 4, "duplicate variant path is removed")

	audio := res.Streams[0]
	assert.Equal(t, manifest.TypeAudio, audio.Type)
	assert.Equal(t, "en", audio.Lang)
	assert.Equal(t, "https://cdn.example.com/show/audio/en.m3u8", audio.ChildURL)

	v720 := res.Streams[1]
	assert.Equal(t, manifest.TypeVideo, v720.Type)
	assert.Equal(t, "1280x720", v720.Resolution)
	assert.Equal(t, "H264+AAC", v720.Codec)
	assert.Equal(t, int64(2000000), v720.Bandwidth)
	assert.Equal(t, "/show/v720/index.m3u8", v720.SKey)

	v1080 := res.Streams[2]
	assert.Equal(t, int64(4500000), v1080.Bandwidth, "average bandwidth preferred")
	assert.Equal(t, "H265+AAC", v1080.Codec)

	assert.Equal(t, "iframe", res.Streams[3].Role)
	for i, st := range res.Streams {
		assert.Equal(t, i, st.Index)
		assert.Empty(t, st.Segments)
	}
}

func TestParse_PlaylistScopedKey(t *testing.T) {
	content := `#EXTM3U
#EXT-X-TARGETDURATION:4
#EXT-X-KEY:METHOD=AES-128,URI="key.bin"
#EXTINF:4,
a.ts
#EXTINF:4,
b.ts
#EXT-X-ENDLIST`
	res := mustParse(t, content, Options{})
	st := res.Streams[0]

	require.Len(t, st.Keys, 1)
	k := st.Keys[0]
	assert.Equal(t, manifest.MethodAES128, k.Method)
	assert.Equal(t, "https://cdn.example.com/show/key.bin", k.URI)
	assert.Equal(t, make([]byte, 16), k.IV, "missing IV defaults to zero")
	for _, seg := range st.Segments {
		assert.Nil(t, seg.Key, "playlist key is propagated later")
	}

	fetcher := &fakeFetcher{keys: map[string][]byte{k.URI: []byte("0123456789abcdef")}}
	require.NoError(t, ResolveKeys(context.Background(), res.Streams, fetcher))
	for _, seg := range st.Segments {
		require.NotNil(t, seg.Key)
		assert.Equal(t, []byte("0123456789abcdef"), seg.Key.Key)
	}
	assert.Equal(t, 1, fetcher.calls[k.URI], "key fetched once")
}

func TestParse_SegmentScopedKeyRotation(t *testing.T) {
	content := `#EXTM3U
#EXTINF:4,
clear.ts
#EXT-X-KEY:METHOD=AES-128,URI="k1",IV=0x1
#EXTINF:4,
enc1.ts
#EXTINF:4,
enc2.ts
#EXT-X-KEY:METHOD=AES-128,URI="k2",IV=0x00000000000000000000000000000002
#EXTINF:4,
enc3.ts
#EXT-X-KEY:METHOD=NONE
#EXTINF:4,
clear2.ts
#EXT-X-ENDLIST`
	res := mustParse(t, content, Options{})
	st := res.Streams[0]
	require.Len(t, st.Segments, 5)
	assert.Empty(t, st.Keys)

	assert.Nil(t, st.Segments[0].Key)
	assert.Equal(t, "https://cdn.example.com/show/k1", st.Segments[1].Key.URI)
	assert.Same(t, st.Segments[1].Key, st.Segments[2].Key)
	assert.Equal(t, byte(1), st.Segments[1].Key.IV[15])
	assert.Equal(t, "https://cdn.example.com/show/k2", st.Segments[3].Key.URI)
	assert.Equal(t, manifest.MethodNone, st.Segments[4].Key.Method)

	fetcher := &fakeFetcher{keys: map[string][]byte{
		"https://cdn.example.com/show/k1": make([]byte, 16),
		"https://cdn.example.com/show/k2": make([]byte, 16),
	}}
	require.NoError(t, ResolveKeys(context.Background(), res.Streams, fetcher))
	assert.Equal(t, 1, fetcher.calls["https://cdn.example.com/show/k1"])
	assert.Nil(t, st.Segments[0].Key, "no playlist key to propagate")
}

func TestParse_DiscontinuityMergedForMediaPlaylist(t *testing.T) {
	content := `#EXTM3U
#EXT-X-KEY:METHOD=AES-128,URI="k"
#EXTINF:4,
a.ts
#EXT-X-DISCONTINUITY
#EXTINF:4,
b.ts
#EXT-X-DISCONTINUITY
#EXTINF:4,
c.ts
#EXT-X-ENDLIST`
	res := mustParse(t, content, Options{})
	require.Len(t, res.Streams, 1)
	st := res.Streams[0]
	assert.Equal(t, []string{
		"https://cdn.example.com/show/a.ts",
		"https://cdn.example.com/show/b.ts",
		"https://cdn.example.com/show/c.ts",
	}, urls(st))
	require.Len(t, st.Keys, 1, "inherited key is not duplicated by the merge")
	assert.Equal(t, []int{0, 1, 2}, []int{st.Segments[0].Index, st.Segments[1].Index, st.Segments[2].Index})
}

func TestParse_KeyAfterDiscontinuityReplacesInherited(t *testing.T) {
	content := `#EXTM3U
#EXT-X-KEY:METHOD=AES-128,URI="k1"
#EXTINF:4,
seg0.ts
#EXT-X-DISCONTINUITY
#EXT-X-KEY:METHOD=AES-128,URI="k2"
#EXTINF:4,
seg1.ts
#EXT-X-DISCONTINUITY
#EXT-X-KEY:METHOD=NONE
#EXTINF:4,
ad0.ts
#EXT-X-DISCONTINUITY
#EXTINF:4,
ad1.ts
#EXT-X-ENDLIST`
	res := mustParse(t, content, Options{})
	require.Len(t, res.Streams, 1)
	st := res.Streams[0]
	require.Len(t, st.Segments, 4)

	fetcher := &fakeFetcher{keys: map[string][]byte{
		"https://cdn.example.com/show/k1": []byte("1111111111111111"),
		"https://cdn.example.com/show/k2": []byte("2222222222222222"),
	}}
	require.NoError(t, ResolveKeys(context.Background(), res.Streams, fetcher))

	type keyView struct{ Method, URI string }
	var got []keyView
	for _, seg := range st.Segments {
		require.NotNil(t, seg.Key, seg.URL)
		got = append(got, keyView{string(seg.Key.Method), seg.Key.URI})
	}
	want := []keyView{
		{"AES-128", "https://cdn.example.com/show/k1"},
		{"AES-128", "https://cdn.example.com/show/k2"},
		{"NONE", ""},
		{"NONE", ""},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("segment keys mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []byte("2222222222222222"), st.Segments[1].Key.Key)
	assert.False(t, st.Segments[2].Key.SegmentDecryptable())
	assert.Equal(t, 1, fetcher.calls["https://cdn.example.com/show/k1"])
	assert.Equal(t, 1, fetcher.calls["https://cdn.example.com/show/k2"])
}

func TestParse_AdKeywordsDropped(t *testing.T) {
	content := `#EXTM3U
#EXTINF:4,
a.ts
#EXTINF:15,
https://ads.example.net/adbreak/1.ts
#EXTINF:4,
b.ts
#EXT-X-ENDLIST`
	res := mustParse(t, content, Options{AdKeywords: []string{"/adbreak/"}})
	st := res.Streams[0]
	require.Len(t, st.Segments, 2)
	assert.InDelta(t, 8.0, st.Duration, 1e-9)
	assert.Equal(t, "0001.ts", st.Segments[1].Name)
}

func TestParse_ByteRangeAndMap(t *testing.T) {
	content := `#EXTM3U
#EXT-X-MAP:URI="main.mp4",BYTERANGE="720@0"
#EXTINF:4,
#EXT-X-BYTERANGE:1000@720
main.mp4
#EXTINF:4,
#EXT-X-BYTERANGE:2000
main.mp4
#EXT-X-ENDLIST`
	res := mustParse(t, content, Options{})
	st := res.Streams[0]
	require.Len(t, st.Segments, 3)
	assert.True(t, st.HasMapSegment)
	assert.Equal(t, ".mp4", st.Extension)

	init := st.Segments[0]
	assert.True(t, init.IsInit())
	assert.Equal(t, manifest.SegmentMap, init.Type)
	assert.Equal(t, "init.mp4", init.Name)
	assert.Equal(t, manifest.MethodNone, init.Key.Method)

	want := []manifest.ByteRange{{Length: 720, Offset: 0}, {Length: 1000, Offset: 720}, {Length: 2000, Offset: 1720}}
	got := []manifest.ByteRange{*st.Segments[0].ByteRange, *st.Segments[1].ByteRange, *st.Segments[2].ByteRange}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("byte ranges mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, st.TotalCount())
}

func TestParse_LiveAndPrivInf(t *testing.T) {
	content := `#EXTM3U
#EXT-X-TARGETDURATION:2
#EXT-X-MEDIA-SEQUENCE:100
#EXT-X-PROGRAM-DATE-TIME:2025-01-02T03:04:05.000Z
#EXT-X-PRIVINF:FILESIZE=4242
#EXTINF:2,
100.ts
#EXTINF:2,
101.ts
#EXTINF:2,`
	res := mustParse(t, content, Options{})
	assert.True(t, res.IsLive)
	assert.Equal(t, int64(100), res.MediaSequence)
	assert.Equal(t, 2025, res.ProgramDateTime.Year())

	st := res.Streams[0]
	assert.True(t, st.IsLive)
	assert.Equal(t, 2*time.Second, st.RefreshInterval)
	require.Len(t, st.Segments, 2, "trailing EXTINF without URL is trimmed")
	assert.Equal(t, int64(4242), st.Segments[0].Filesize)
}

func TestParse_DontSplitDiscontinuity(t *testing.T) {
	content := "#EXTM3U\n#EXTINF:1,\na.ts\n#EXT-X-DISCONTINUITY\n#EXTINF:1,\nb.ts\n#EXT-X-ENDLIST\n"
	res := mustParse(t, content, Options{DontSplitDiscontinuity: true})
	require.Len(t, res.Streams, 1)
	assert.Len(t, res.Streams[0].Segments, 2)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse("<MPD></MPD>", base, Options{})
	assert.ErrorIs(t, err, ErrNotPlaylist)

	_, err = Parse("#EXTM3U\n#EXTINF:abc,\na.ts\n", base, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestResolveKeys_SkipsSampleAESAndReportsErrors(t *testing.T) {
	content := `#EXTM3U
#EXT-X-KEY:METHOD=SAMPLE-AES,URI="skd://asset",KEYFORMAT="com.apple.streamingkeydelivery"
#EXTINF:4,
a.ts
#EXT-X-ENDLIST`
	res := mustParse(t, content, Options{})
	fetcher := &fakeFetcher{}
	require.NoError(t, ResolveKeys(context.Background(), res.Streams, fetcher))
	assert.Empty(t, fetcher.calls)

	broken := mustParse(t, "#EXTM3U\n#EXT-X-KEY:METHOD=AES-128,URI=\"missing\"\n#EXTINF:1,\na.ts\n", Options{})
	err := ResolveKeys(context.Background(), broken.Streams, fetcher)
	require.Error(t, err)
	assert.Nil(t, broken.Streams[0].Segments[0].Key)
}

func TestResolveKeys_PropagatesUnfetchableAESKey(t *testing.T) {
	res := mustParse(t, "#EXTM3U\n#EXT-X-KEY:METHOD=AES-128,URI=\"skd://asset\"\n#EXTINF:2,\na.ts\n#EXTINF:2,\nb.ts\n", Options{})
	fetcher := &fakeFetcher{}
	require.NoError(t, ResolveKeys(context.Background(), res.Streams, fetcher))
	assert.Empty(t, fetcher.calls)

	st := res.Streams[0]
	require.Len(t, st.Keys, 1)
	for _, seg := range st.Segments {
		assert.Same(t, st.Keys[0], seg.Key, "override keys reach segments through the stream key")
	}
}

type fakeFetcher struct {
	keys  map[string][]byte
	calls map[string]int
}

func (f *fakeFetcher) FetchKey(_ context.Context, uri string) ([]byte, error) {
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[uri]++
	k, ok := f.keys[uri]
	if !ok {
		return nil, errors.New("not found")
	}
	return k, nil
}
