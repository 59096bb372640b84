package playback

import (
	"context"
	"sync/atomic"
	"time"
)

// Snapshot is the playhead as of one tick. Values are never modified after
// publishing.
type Snapshot struct {
	Step     int
	Position float64 // Step / steps, in [0, 1)
	Tick     int64
	At       time.Time
	Playing  bool
}

// DefaultFPS is the UI refresh rate used when Watch gets fps <= 0
const DefaultFPS = 60

// Publisher hands the latest snapshot from the audio side to the UI side.
// Publish never blocks; readers only ever see the newest value that is due.
type Publisher struct {
	latest  atomic.Pointer[entry]
	updates chan struct{}
}

// entry is a published snapshot plus the one shown until it is due
type entry struct {
	snap Snapshot
	prev *entry
}

func (e *entry) at(now time.Time) *Snapshot {
	if e.prev == nil || !now.Before(e.snap.At) {
		return &e.snap
	}
	return &e.prev.snap
}

func NewPublisher() *Publisher {
	p := &Publisher{updates: make(chan struct{}, 1)}
	p.latest.Store(&entry{})
	return p
}

// Publish replaces the current snapshot. Ticks are released ahead of their
// time, so a snapshot with a future At only becomes visible once At passes.
func (p *Publisher) Publish(s Snapshot) {
	shown := p.latest.Load().at(time.Now())
	p.latest.Store(&entry{snap: s, prev: &entry{snap: *shown}})
	select {
	case p.updates <- struct{}{}:
	default:
	}
}

// Reset parks the playhead at step 0, not playing
func (p *Publisher) Reset() {
	p.latest.Store(&entry{})
	select {
	case p.updates <- struct{}{}:
	default:
	}
}

// Latest returns the newest snapshot whose time has come
func (p *Publisher) Latest() Snapshot {
	return p.LatestAt(time.Now())
}

// LatestAt is Latest as seen at now
func (p *Publisher) LatestAt(now time.Time) Snapshot {
	return *p.latest.Load().at(now)
}

// Updates signals that a new snapshot is available. Several publishes may
// collapse into one signal.
func (p *Publisher) Updates() <-chan struct{} {
	return p.updates
}

// Watch calls fn at most fps times per second, only when the snapshot
// changed since the previous call. It returns when ctx is done.
func (p *Publisher) Watch(ctx context.Context, fps int, fn func(Snapshot)) {
	if fps <= 0 {
		fps = DefaultFPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	var last *Snapshot
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur := p.latest.Load().at(time.Now())
			if cur == last {
				continue
			}
			last = cur
			fn(*cur)
		}
	}
}
