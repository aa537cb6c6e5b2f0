package scoper

import (
	"github.com/peterbourgon/scoper/internal/scoperbuf"
	"github.com/peterbourgon/scoper/internal/scoperdebug"
)

// Buffers hold finished records until they're flushed, with one independently
// locked buffer per record kind. Any number of goroutines may push
// concurrently; pushes of different kinds never contend.
type Buffers struct {
	scopes   *scoperbuf.Buffer[ScopeRecord]
	counters *scoperbuf.Buffer[CounterRecord]
	instants *scoperbuf.Buffer[InstantRecord]

	scopeStats   scoperdebug.BufferCounters
	counterStats scoperdebug.BufferCounters
	instantStats scoperdebug.BufferCounters
}

// NewBuffers returns an empty set of buffers.
func NewBuffers() *Buffers {
	return &Buffers{
		scopes:   scoperbuf.NewBuffer[ScopeRecord](0),
		counters: scoperbuf.NewBuffer[CounterRecord](0),
		instants: scoperbuf.NewBuffer[InstantRecord](0),
	}
}

// PushScope appends a scope record.
func (b *Buffers) PushScope(r ScopeRecord) {
	b.scopes.Push(r)
	b.scopeStats.Pushed.Add(1)
}

// PushCounter appends a counter record.
func (b *Buffers) PushCounter(r CounterRecord) {
	b.counters.Push(r)
	b.counterStats.Pushed.Add(1)
}

// PushInstant appends an instant record.
func (b *Buffers) PushInstant(r InstantRecord) {
	b.instants.Push(r)
	b.instantStats.Pushed.Add(1)
}

// Push appends a record of any kind to the matching buffer.
func (b *Buffers) Push(r Record) {
	switch r := r.(type) {
	case ScopeRecord:
		b.PushScope(r)
	case CounterRecord:
		b.PushCounter(r)
	case InstantRecord:
		b.PushInstant(r)
	}
}

// Flush drains every buffer, and returns their previous contents. Each buffer
// is swapped under its own lock; a record pushed concurrently with Flush is
// either in the returned batch or in the next one, never both.
func (b *Buffers) Flush() Batch {
	batch := Batch{
		Scopes:   b.scopes.Drain(),
		Counters: b.counters.Drain(),
		Instants: b.instants.Drain(),
	}

	b.scopeStats.Flushed.Add(uint64(len(batch.Scopes)))
	b.scopeStats.Flushes.Add(1)
	b.counterStats.Flushed.Add(uint64(len(batch.Counters)))
	b.counterStats.Flushes.Add(1)
	b.instantStats.Flushed.Add(uint64(len(batch.Instants)))
	b.instantStats.Flushes.Add(1)

	return batch
}

// BufferStats describes a single buffer.
type BufferStats struct {
	Pending int    // records currently buffered
	Pushed  uint64 // records pushed, ever
	Flushed uint64 // records returned by Flush, ever
	Flushes uint64 // calls to Flush, ever
}

func bufferStats[T any](buf *scoperbuf.Buffer[T], bc *scoperdebug.BufferCounters) BufferStats {
	pushed, flushed, flushes := bc.Values()
	return BufferStats{
		Pending: buf.Len(),
		Pushed:  pushed,
		Flushed: flushed,
		Flushes: flushes,
	}
}

// Stats returns statistics for each buffer.
func (b *Buffers) Stats() (scopes, counters, instants BufferStats) {
	return bufferStats(b.scopes, &b.scopeStats),
		bufferStats(b.counters, &b.counterStats),
		bufferStats(b.instants, &b.instantStats)
}

//
//
//

// Batch is the result of a flush: every record drained from the buffers,
// grouped by kind, each group in push order.
type Batch struct {
	Scopes   []ScopeRecord
	Counters []CounterRecord
	Instants []InstantRecord
}

// Len returns the total number of records in the batch.
func (b Batch) Len() int {
	return len(b.Scopes) + len(b.Counters) + len(b.Instants)
}

// Records returns every record in the batch, scopes first, then counters,
// then instants.
func (b Batch) Records() []Record {
	records := make([]Record, 0, b.Len())
	for _, r := range b.Scopes {
		records = append(records, r)
	}
	for _, r := range b.Counters {
		records = append(records, r)
	}
	for _, r := range b.Instants {
		records = append(records, r)
	}
	return records
}
