// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dash

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"PT0S", 0},
		{"PT2S", 2 * time.Second},
		{"PT1.5S", 1500 * time.Millisecond},
		{"PT1H2M3S", time.Hour + 2*time.Minute + 3*time.Second},
		{"P1DT2H", 26 * time.Hour},
		{"P1W", 7 * 24 * time.Hour},
		{"-PT30S", -30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDuration_Invalid(t *testing.T) {
	for _, in := range []string{"P", "PT", "1H", "PTXS", "P1DT"} {
		_, err := ParseDuration(in)
		assert.Error(t, err, in)
	}
}

func TestParseDateTime(t *testing.T) {
	got, err := ParseDateTime("2024-01-01T00:00:10Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 10, 0, time.UTC), got)

	got, err = ParseDateTime("2024-01-01T01:00:00+01:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), got)

	got, err = ParseDateTime("2024-01-01T00:00:00")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, got.Location())

	zero, err := ParseDateTime("")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	_, err = ParseDateTime("yesterday")
	assert.Error(t, err)
}
