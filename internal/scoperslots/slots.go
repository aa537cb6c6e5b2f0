package scoperslots

import (
	"fmt"

	"fortio.org/safecast"
)

// Handle identifies a value pushed into a Slots. It remains valid until it's
// passed to Take, and is never invalidated by other pushes or takes.
type Handle uint32

// Slots is a growable store of values addressed by handle. It behaves like a
// stack when values are taken in reverse push order, but tolerates takes in
// any order: taken slots are marked dead, and storage is reclaimed whenever the
// dead slots form a contiguous suffix of the store. Live values never move.
//
//	|x|x|x|?|?|?|?|
//	 0     ^       len
//	       firstUnknown
//
// Slots below firstUnknown are known to be live. Slots at or above it are a mix
// of live and dead, and deadCount says how many are dead. With no dead slots,
// firstUnknown is len.
//
// Slots is not safe for concurrent use.
type Slots[T any] struct {
	data         []slot[T]
	firstUnknown int
	deadCount    int
}

type slot[T any] struct {
	val  T
	live bool
}

// releaseCap is the backing capacity above which an emptied store drops its
// backing array instead of keeping it for reuse.
const releaseCap = 1024

// Push stores val and returns its handle.
func (s *Slots[T]) Push(val T) Handle {
	idx, err := safecast.Conv[uint32](len(s.data))
	if err != nil {
		panic(fmt.Sprintf("scoperslots: too many slots: %v", err))
	}
	s.data = append(s.data, slot[T]{val: val, live: true})
	if s.deadCount == 0 {
		s.firstUnknown = len(s.data)
	}
	return Handle(idx)
}

// Take removes and returns the value identified by h. Taking a handle that
// was never pushed, or taking the same handle twice, panics.
func (s *Slots[T]) Take(h Handle) T {
	idx := s.check(h)

	val := s.data[idx].val
	s.data[idx] = slot[T]{}
	s.deadCount++

	if idx < s.firstUnknown {
		s.firstUnknown = idx
	}

	switch {
	case s.firstUnknown+s.deadCount == len(s.data):
		// Everything from firstUnknown up is dead.
		s.truncate(s.firstUnknown)
		s.deadCount = 0

	case idx == len(s.data)-1:
		// Walk back over the dead tail, which can't extend below firstUnknown.
		n := idx
		for n > s.firstUnknown && !s.data[n-1].live {
			n--
		}
		s.deadCount -= len(s.data) - n
		s.truncate(n)
	}

	if s.deadCount == 0 {
		s.firstUnknown = len(s.data)
	}

	return val
}

// Get returns the value identified by h without removing it.
func (s *Slots[T]) Get(h Handle) T {
	return s.data[s.check(h)].val
}

// Set replaces the value identified by h.
func (s *Slots[T]) Set(h Handle, val T) {
	s.data[s.check(h)].val = val
}

// Filled returns the number of live values.
func (s *Slots[T]) Filled() int {
	return len(s.data) - s.deadCount
}

// Len returns the number of slots currently backed by storage, live or dead.
func (s *Slots[T]) Len() int {
	return len(s.data)
}

// IsEmpty returns true when no storage is in use.
func (s *Slots[T]) IsEmpty() bool {
	return len(s.data) == 0
}

func (s *Slots[T]) check(h Handle) int {
	idx := int(h)
	if idx >= len(s.data) {
		panic(fmt.Sprintf("scoperslots: handle %d out of range (len %d)", idx, len(s.data)))
	}
	if !s.data[idx].live {
		panic(fmt.Sprintf("scoperslots: handle %d already taken", idx))
	}
	return idx
}

func (s *Slots[T]) truncate(n int) {
	if n == 0 && cap(s.data) > releaseCap {
		s.data = nil
	} else {
		clear(s.data[n:])
		s.data = s.data[:n]
	}
	if s.firstUnknown > n {
		s.firstUnknown = n
	}
}
