package scoper

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/peterbourgon/scoper/internal/scoperslots"
	"github.com/peterbourgon/scoper/internal/scoperutil"
)

// Recorder captures scopes, counters, and instants from any number of
// goroutines into its Buffers. Open scopes are tracked per goroutine, in an
// arena which only that goroutine touches. An arena is attached when its
// goroutine opens a scope, and detached when the goroutine has no more open
// scopes, so goroutines which exit don't leave arenas behind. Detached arenas
// are recycled with their storage.
//
// Most programs use the Default recorder via the package-level functions.
type Recorder struct {
	buffers *Buffers
	arenas  sync.Map // goroutine ID -> *arena
	active  atomic.Int64
}

type arena = scoperslots.Slots[time.Time]

var arenaPool = sync.Pool{New: func() any { return &arena{} }}

// NewRecorder returns a new, empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		buffers: NewBuffers(),
	}
}

var defaultRecorder = sync.OnceValue(NewRecorder)

// Default returns the process-wide recorder. It's created on first use, and
// lives until the process exits. Its buffers are emptied only by Flush.
func Default() *Recorder {
	return defaultRecorder()
}

// ScopeHandle identifies an open scope. It's only valid on the goroutine that
// opened it, and only until it's closed.
type ScopeHandle struct {
	goroutine uint64
	slot      scoperslots.Handle
}

// OpenScope starts a scope on the calling goroutine, and returns a handle
// which must be passed to CloseScope, on the same goroutine, exactly once.
// Scopes may be closed in any order.
func (r *Recorder) OpenScope() ScopeHandle {
	gid := scoperutil.GoroutineID()
	a := r.arena(gid)
	return ScopeHandle{
		goroutine: gid,
		slot:      a.Push(time.Now()),
	}
}

// CloseScope ends the scope identified by h, and records it with the given
// info. It returns the duration of the scope. Closing a scope twice, or from
// a goroutine other than the one which opened it, panics.
func (r *Recorder) CloseScope(h ScopeHandle, info *TraceInfo) time.Duration {
	end := time.Now()

	gid := scoperutil.GoroutineID()
	if gid != h.goroutine {
		panic(fmt.Sprintf("scoper: scope opened on goroutine %d closed on goroutine %d", h.goroutine, gid))
	}

	v, ok := r.arenas.Load(gid)
	if !ok {
		panic(fmt.Sprintf("scoper: no open scopes on goroutine %d", gid))
	}
	a := v.(*arena)

	start := a.Take(h.slot)
	if a.IsEmpty() {
		r.arenas.Delete(gid)
		r.active.Add(-1)
		arenaPool.Put(a)
	}

	r.buffers.PushScope(ScopeRecord{
		Base:  Base{ThreadID: gid, Timestamp: end, Info: info},
		Start: start,
	})

	return end.Sub(start)
}

// RecordValue records a counter sample.
func (r *Recorder) RecordValue(info *TraceInfo, v Value) {
	now := time.Now()
	r.buffers.PushCounter(CounterRecord{
		Base:  Base{ThreadID: scoperutil.GoroutineID(), Timestamp: now, Info: info},
		Value: v,
	})
}

// RecordInstant records an instant marker.
func (r *Recorder) RecordInstant(info *TraceInfo, size InstantScopeSize) {
	now := time.Now()
	r.buffers.PushInstant(InstantRecord{
		Base: Base{ThreadID: scoperutil.GoroutineID(), Timestamp: now, Info: info},
		Size: size,
	})
}

// Start opens a scope and returns it. Callers typically defer its End.
//
//	defer rec.Start(info).End()
func (r *Recorder) Start(info *TraceInfo) *Scope {
	return &Scope{
		recorder: r,
		info:     info,
		handle:   r.OpenScope(),
	}
}

// Flush drains the recorder's buffers. Scopes which are still open aren't
// included; they'll be in a later flush once they're closed.
func (r *Recorder) Flush() Batch {
	return r.buffers.Flush()
}

// Stats describes the state of a recorder.
type Stats struct {
	Scopes   BufferStats
	Counters BufferStats
	Instants BufferStats

	// ActiveGoroutines is the number of goroutines with at least one open
	// scope.
	ActiveGoroutines int64
}

// Stats returns current statistics for the recorder.
func (r *Recorder) Stats() Stats {
	scopes, counters, instants := r.buffers.Stats()
	return Stats{
		Scopes:           scopes,
		Counters:         counters,
		Instants:         instants,
		ActiveGoroutines: r.active.Load(),
	}
}

func (r *Recorder) arena(gid uint64) *arena {
	if v, ok := r.arenas.Load(gid); ok {
		return v.(*arena)
	}
	// Only this goroutine stores under gid, so there's no race to lose.
	a := arenaPool.Get().(*arena)
	r.arenas.Store(gid, a)
	r.active.Add(1)
	return a
}

//
//
//

// OpenScope calls OpenScope on the Default recorder.
func OpenScope() ScopeHandle { return Default().OpenScope() }

// CloseScope calls CloseScope on the Default recorder.
func CloseScope(h ScopeHandle, info *TraceInfo) time.Duration { return Default().CloseScope(h, info) }

// RecordValue calls RecordValue on the Default recorder.
func RecordValue(info *TraceInfo, v Value) { Default().RecordValue(info, v) }

// RecordInstant calls RecordInstant on the Default recorder.
func RecordInstant(info *TraceInfo, size InstantScopeSize) { Default().RecordInstant(info, size) }

// Start calls Start on the Default recorder.
//
//	defer scoper.Start(info).End()
func Start(info *TraceInfo) *Scope { return Default().Start(info) }

// ThreadID returns the thread ID under which records from the calling
// goroutine appear, for use with Session.NameThread.
func ThreadID() uint64 { return scoperutil.GoroutineID() }
