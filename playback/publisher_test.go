package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestWins(t *testing.T) {
	p := NewPublisher()
	assert.Equal(t, Snapshot{}, p.Latest())

	for i := 0; i < 5; i++ {
		p.Publish(Snapshot{Step: i, Position: float64(i) / 8, Tick: int64(i), Playing: true})
	}
	got := p.Latest()
	assert.Equal(t, 4, got.Step)
	assert.Equal(t, 0.5, got.Position)

	// five publishes, one pending signal
	<-p.Updates()
	select {
	case <-p.Updates():
		t.Fatal("signals should collapse")
	default:
	}
}

func TestPublishDoesNotBlockWithoutReaders(t *testing.T) {
	p := NewPublisher()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			p.Publish(Snapshot{Tick: int64(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}
	assert.Equal(t, int64(9999), p.Latest().Tick)
}

func TestReset(t *testing.T) {
	p := NewPublisher()
	p.Publish(Snapshot{Step: 3, Playing: true})
	p.Reset()
	assert.Equal(t, Snapshot{}, p.Latest())
}

func TestEarlySnapshotWaitsForItsTime(t *testing.T) {
	p := NewPublisher()
	base := time.Now().Add(-time.Second)
	p.Publish(Snapshot{Step: 1, At: base, Playing: true})

	due := time.Now().Add(time.Hour)
	p.Publish(Snapshot{Step: 2, At: due, Playing: true})

	assert.Equal(t, 1, p.Latest().Step)
	assert.Equal(t, 1, p.LatestAt(due.Add(-time.Millisecond)).Step)
	assert.Equal(t, 2, p.LatestAt(due).Step)

	p.Reset()
	assert.Equal(t, Snapshot{}, p.LatestAt(due))
	assert.Equal(t, Snapshot{}, p.Latest())
}

func TestWatchSkipsUnchanged(t *testing.T) {
	p := NewPublisher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var seen []Snapshot
	go p.Watch(ctx, 200, func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(seen)
	}

	require.Eventually(t, func() bool { return count() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, count())

	p.Publish(Snapshot{Step: 2, Playing: true})
	require.Eventually(t, func() bool { return count() == 2 }, time.Second, time.Millisecond)

	mu.Lock()
	assert.Equal(t, 2, seen[1].Step)
	mu.Unlock()
}
