package scoperdebug

import "sync/atomic"

// BufferCounters track operations on a single record buffer.
type BufferCounters struct {
	Pushed  atomic.Uint64
	Flushed atomic.Uint64
	Flushes atomic.Uint64
}

// Values returns the current values of the counters.
func (bc *BufferCounters) Values() (pushed, flushed, flushes uint64) {
	var (
		p = bc.Pushed.Load()
		f = bc.Flushed.Load()
		n = bc.Flushes.Load()
	)
	return p, f, n
}
