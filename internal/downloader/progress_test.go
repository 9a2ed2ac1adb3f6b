// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package downloader

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func trackerWithClock(c *fakeClock, total int) *Tracker {
	tr := NewTracker("v1", total, 0)
	tr.now = c.now
	tr.lastAt = c.now()
	return tr
}

func TestTracker_SpeedSampledAfterInterval(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	tr := trackerWithClock(clock, 10)

	tr.AddBytes(1000)
	clock.advance(100 * time.Millisecond)
	assert.Zero(t, tr.Snapshot().Speed, "window shorter than the sample interval")

	clock.advance(400 * time.Millisecond)
	assert.InDelta(t, 2000, tr.Snapshot().Speed, 0.001)

	// no new bytes: the next window reports zero, never negative
	clock.advance(time.Second)
	assert.Zero(t, tr.Snapshot().Speed)
}

func TestTracker_ResumedBytesAreNotThroughput(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	tr := trackerWithClock(clock, 2)

	tr.Resume(5000, 0, true)
	clock.advance(time.Second)
	snap := tr.Snapshot()
	assert.Zero(t, snap.Speed)
	assert.Equal(t, int64(5000), snap.Bytes)
	assert.Equal(t, int64(5000), snap.TotalBytes)
	assert.Equal(t, 1, snap.Done)
}

func TestTracker_SkipShrinksTotal(t *testing.T) {
	tr := NewTracker("a1", 4, 0)
	tr.Complete()
	tr.Skip()
	snap := tr.Snapshot()
	assert.Equal(t, 3, snap.Total)
	assert.Equal(t, 1, snap.Skipped)
	assert.InDelta(t, 33.333, snap.Percent(), 0.01)

	assert.Zero(t, Snapshot{}.Percent())
}

func TestTracker_TotalBytesNeverBelowBytes(t *testing.T) {
	tr := NewTracker("v1", 1, 10)
	tr.AddBytes(25)
	snap := tr.Snapshot()
	assert.Equal(t, int64(25), snap.TotalBytes)
}

func TestTracker_ConcurrentUpdates(t *testing.T) {
	tr := NewTracker("v1", 100, 0)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Grow(10)
			tr.AddBytes(10)
			tr.Complete()
			_ = tr.Snapshot()
		}()
	}
	wg.Wait()
	snap := tr.Snapshot()
	assert.Equal(t, 100, snap.Done)
	assert.Equal(t, int64(1000), snap.Bytes)
	assert.Equal(t, int64(1000), snap.TotalBytes)
	assert.InDelta(t, 100, snap.Percent(), 0.001)
}

func TestTracker_Extend(t *testing.T) {
	tr := NewTracker("v1", 2, 100)
	tr.Extend(3, 50)
	snap := tr.Snapshot()
	assert.Equal(t, 5, snap.Total)
	assert.Equal(t, int64(150), snap.TotalBytes)
}

func TestBoard_ProgressSortedBySKey(t *testing.T) {
	b := NewBoard()
	b.put(NewTracker("v2", 1, 0))
	b.put(NewTracker("a1", 1, 0))
	b.put(NewTracker("v1", 1, 0))

	got := b.Progress()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a1", "v1", "v2"}, []string{got[0].SKey, got[1].SKey, got[2].SKey})

	b.remove("v1")
	assert.Len(t, b.Progress(), 2)
}
