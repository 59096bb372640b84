package pattern

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// SubscriptionID identifies a Subscribe call
type SubscriptionID = uuid.UUID

// Store owns the current pattern. Readers load the snapshot pointer without
// locking; writers are serialized and publish a whole new pattern.
type Store struct {
	current atomic.Pointer[Pattern]

	mu    sync.Mutex // serializes writers
	subs  map[SubscriptionID]chan *Pattern
	subMu sync.Mutex
}

// NewStore creates a store holding an empty pattern
func NewStore(mode Mode, steps, voices int) (*Store, error) {
	p, err := New(mode, steps, voices)
	if err != nil {
		return nil, err
	}
	s := &Store{subs: make(map[SubscriptionID]chan *Pattern)}
	s.current.Store(p)
	return s, nil
}

// Snapshot returns the current pattern. The same pointer is returned until
// the next successful mutation.
func (s *Store) Snapshot() *Pattern {
	return s.current.Load()
}

// Toggle flips a drum cell
func (s *Store) Toggle(voice, step int) error {
	return s.update(func(p *Pattern) (*Pattern, error) {
		return p.withToggle(voice, step)
	})
}

// ToggleNote adds a note at (step, pitch), or removes the one already there
func (s *Store) ToggleNote(step, pitch, duration int) error {
	return s.update(func(p *Pattern) (*Pattern, error) {
		return p.withNoteToggle(step, pitch, duration)
	})
}

// ClearRow turns off every cell of one voice (drum) or pitch (melodic)
func (s *Store) ClearRow(voice int) error {
	return s.update(func(p *Pattern) (*Pattern, error) {
		return p.withClearRow(voice)
	})
}

// Clear empties the pattern, keeping its size
func (s *Store) Clear() {
	s.update(func(p *Pattern) (*Pattern, error) {
		n, err := New(p.mode, p.steps, p.voices)
		if err != nil {
			return nil, err
		}
		n.version = p.version + 1
		return n, nil
	})
}

// Resize derives a new pattern, keeping cells valid in both sizes
func (s *Store) Resize(steps, voices int) error {
	return s.update(func(p *Pattern) (*Pattern, error) {
		return p.resized(steps, voices)
	})
}

func (s *Store) update(fn func(*Pattern) (*Pattern, error)) error {
	s.mu.Lock()
	next, err := fn(s.current.Load())
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.current.Store(next)
	// notify under the writer lock so subscribers see patterns in store order
	s.notify(next)
	s.mu.Unlock()
	return nil
}

// Subscribe returns a channel that receives the newest pattern after each
// mutation. Slow readers only see the latest one.
func (s *Store) Subscribe() (SubscriptionID, <-chan *Pattern) {
	id := uuid.New()
	ch := make(chan *Pattern, 1)
	s.subMu.Lock()
	s.subs[id] = ch
	s.subMu.Unlock()
	return id, ch
}

// Unsubscribe closes and removes a subscription
func (s *Store) Unsubscribe(id SubscriptionID) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *Store) notify(p *Pattern) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		// drop the stale value so the channel always holds the newest
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- p:
		default:
		}
	}
}
