package observable

import "sync"

// Observable is the read side of a State.
type Observable[T any] interface {
	Value() T
	// Subscribe returns a channel that always holds the most recent value
	// not yet received. It starts with the current value. Call cancel to
	// stop receiving; the channel is then closed.
	Subscribe() (<-chan T, func())
}

// State is a concurrency-safe value cell with latest-value subscriptions.
type State[T any] struct {
	mu   sync.RWMutex
	v    T
	subs map[int]chan T
	next int
}

func NewState[T any](initial T) *State[T] {
	return &State[T]{v: initial, subs: map[int]chan T{}}
}

func (s *State[T]) Value() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v
}

// Set stores v and notifies subscribers. Slow subscribers skip intermediate values.
func (s *State[T]) Set(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v = v
	for _, ch := range s.subs {
		offer(ch, v)
	}
}

func (s *State[T]) Subscribe() (<-chan T, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	ch := make(chan T, 1)
	ch <- s.v
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			close(ch)
			s.mu.Unlock()
		})
	}
	return ch, cancel
}

// offer replaces any unread value in ch with v. Callers hold s.mu, so
// there is exactly one sender per channel at a time.
func offer[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
