// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package progress

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, Record{Downloaded: 5, Total: 0}.Percent())
	assert.Equal(t, 10, Record{Downloaded: 10, Total: 100}.Percent())
	assert.Equal(t, 33, Record{Downloaded: 1, Total: 3}.Percent())
	assert.Equal(t, 67, Record{Downloaded: 2, Total: 3}.Percent())
	assert.Equal(t, 100, Record{Downloaded: 100, Total: 100}.Percent())

	for total := int64(1); total <= 200; total++ {
		for downloaded := int64(0); downloaded <= total; downloaded++ {
			want := int(math.Round(100 * float64(downloaded) / float64(total)))
			require.Equal(t, want, Record{Downloaded: downloaded, Total: total}.Percent(), "%d/%d", downloaded, total)
		}
	}
}

func TestDecode(t *testing.T) {
	r, err := Decode([]byte(`{"status":"running","downloaded":10,"total":100,"eta":"00:02:00"}`))
	require.NoError(t, err)
	assert.Equal(t, Record{Status: StatusRunning, Downloaded: 10, Total: 100, ETA: "00:02:00"}, r)

	r, err = Decode([]byte(`{"status":"idle","downloaded":0,"total":0,"eta":null}`))
	require.NoError(t, err)
	assert.Empty(t, r.ETA)

	for _, bad := range []string{
		`{"status":"exploded"}`,
		`{"status":"running","downloaded":11,"total":10}`,
		`{"status":"running","downloaded":-1}`,
		`not json`,
	} {
		_, err := Decode([]byte(bad))
		assert.Error(t, err, bad)
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusIdle, StatusRunning))
	assert.True(t, CanTransition(StatusRunning, StatusPaused))
	assert.True(t, CanTransition(StatusPaused, StatusRunning))

	assert.False(t, CanTransition(StatusIdle, StatusPaused))
	assert.False(t, CanTransition(StatusRunning, StatusRunning))
	for _, to := range []Status{StatusIdle, StatusRunning, StatusPaused, StatusDone} {
		assert.False(t, CanTransition(StatusDone, to), "done -> %s", to)
	}
}

func TestStore_ApplyIsWholesaleAndLastWriteWins(t *testing.T) {
	s := NewStore()
	assert.Equal(t, Idle(), s.Snapshot().Record)

	s.Apply(Record{Status: StatusRunning, Downloaded: 10, Total: 100, ETA: "00:02:00"})
	snap := s.Apply(Record{Status: StatusPaused, Downloaded: 12, Total: 100})

	assert.Equal(t, Record{Status: StatusPaused, Downloaded: 12, Total: 100}, snap.Record)
	assert.Equal(t, uint64(2), snap.Revision)
}

func TestStore_TransitionKeepsCounts(t *testing.T) {
	s := NewStore()
	s.Apply(Record{Status: StatusRunning, Downloaded: 3, Total: 9, ETA: "00:00:10"})

	snap, ok := s.Transition(StatusPaused)
	require.True(t, ok)
	assert.Equal(t, Record{Status: StatusPaused, Downloaded: 3, Total: 9, ETA: "00:00:10"}, snap.Record)

	// a push overrides the optimistic value
	s.Apply(Record{Status: StatusRunning, Downloaded: 4, Total: 9})
	assert.Equal(t, StatusRunning, s.Snapshot().Status)
}

func TestStore_TransitionNeverLeavesDone(t *testing.T) {
	s := NewStore()
	s.Apply(Record{Status: StatusDone, Downloaded: 9, Total: 9})
	snap, ok := s.Transition(StatusRunning)
	assert.False(t, ok)
	assert.Equal(t, StatusDone, snap.Status)
	assert.Equal(t, uint64(1), snap.Revision)
}

func TestStore_WatchDeliversLatest(t *testing.T) {
	s := NewStore()
	ch, stop := s.Watch()

	s.Apply(Record{Status: StatusRunning, Downloaded: 1, Total: 3})
	s.Apply(Record{Status: StatusRunning, Downloaded: 2, Total: 3})

	got := <-ch
	assert.Equal(t, int64(2), got.Downloaded)
	assert.Equal(t, uint64(2), got.Revision)

	stop()
	stop()
	s.Apply(Record{Status: StatusDone, Downloaded: 3, Total: 3})
	select {
	case <-ch:
		t.Fatal("stopped watcher must not receive")
	default:
	}
}
