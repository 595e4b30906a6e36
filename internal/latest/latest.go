package latest

import "sync"

// Slot is a single-slot overwrite buffer. Put never blocks and replaces
// whatever is currently held, read or not; readers always observe the most
// recent value. Backlog is shed: a real-time consumer wants the freshest
// item, not every item.
type Slot[T any] struct {
	mu  sync.Mutex
	val T
	set bool
}

// NewSlot returns an empty slot.
func NewSlot[T any]() *Slot[T] {
	return &Slot[T]{}
}

// Put stores v, overwriting any held value. It reports whether an unread
// value was replaced, so producers can count shed items.
func (s *Slot[T]) Put(v T) (replaced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced = s.set
	s.val = v
	s.set = true
	return replaced
}

// TryTake removes and returns the held value. The second result is false if
// the slot is empty. It never blocks.
func (s *Slot[T]) TryTake() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.set {
		var zero T
		return zero, false
	}
	v := s.val
	var zero T
	s.val = zero
	s.set = false
	return v, true
}

// Peek returns the held value without removing it. Used by fan-out readers
// (the stream responder) that must not starve the consuming reader.
func (s *Slot[T]) Peek() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.set {
		var zero T
		return zero, false
	}
	return s.val, true
}
