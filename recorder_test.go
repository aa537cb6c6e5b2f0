package scoper_test

import (
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/peterbourgon/scoper"
)

func TestRecorderScope(t *testing.T) {
	t.Parallel()

	var (
		rec  = scoper.NewRecorder()
		info = &scoper.TraceInfo{Name: "sleep", Header: "main"}
	)

	before := time.Now()
	s := rec.Start(info)
	time.Sleep(5 * time.Millisecond)
	took := s.End()
	after := time.Now()

	if took < 5*time.Millisecond || took > after.Sub(before) {
		t.Errorf("End: unexpected duration %s", took)
	}

	batch := rec.Flush()
	assertEqual(t, batch.Len(), 1)

	r := batch.Scopes[0]
	assertEqual(t, r.Info, info)
	assertEqual(t, r.Duration(), took)
	if r.Start.Before(before) || r.End().After(after) || r.End().Before(r.Start) {
		t.Errorf("scope %s..%s outside %s..%s", r.Start, r.End(), before, after)
	}
	if r.ThreadID == 0 {
		t.Errorf("scope has no thread ID")
	}

	assertEqual(t, rec.Stats().ActiveGoroutines, int64(0))
}

func TestRecorderNestedScopes(t *testing.T) {
	t.Parallel()

	var (
		rec   = scoper.NewRecorder()
		outer = &scoper.TraceInfo{Name: "outer", Header: "main"}
		inner = &scoper.TraceInfo{Name: "inner", Header: "main"}
	)

	func() {
		defer rec.Start(outer).End()
		for i := 0; i < 3; i++ {
			func() {
				defer rec.Start(inner).End()
				time.Sleep(time.Millisecond)
			}()
		}
	}()

	batch := rec.Flush()
	assertEqual(t, len(batch.Scopes), 4)

	var (
		names []string
		o     = batch.Scopes[3]
	)
	for _, r := range batch.Scopes {
		names = append(names, r.Info.Name)
		if r.Start.Before(o.Start) || r.End().After(o.End()) {
			t.Errorf("%s not enclosed by outer", r.Info.Name)
		}
	}
	assertEqual(t, names, []string{"inner", "inner", "inner", "outer"})
}

func TestRecorderOutOfOrderClose(t *testing.T) {
	t.Parallel()

	var (
		rec = scoper.NewRecorder()
		a   = &scoper.TraceInfo{Name: "a", Header: "main"}
		b   = &scoper.TraceInfo{Name: "b", Header: "main"}
		c   = &scoper.TraceInfo{Name: "c", Header: "main"}
	)

	ha := rec.OpenScope()
	hb := rec.OpenScope()
	hc := rec.OpenScope()

	rec.CloseScope(ha, a)
	assertEqual(t, rec.Stats().ActiveGoroutines, int64(1))
	rec.CloseScope(hc, c)
	rec.CloseScope(hb, b)
	assertEqual(t, rec.Stats().ActiveGoroutines, int64(0))

	batch := rec.Flush()
	var names []string
	for _, r := range batch.Scopes {
		names = append(names, r.Info.Name)
	}
	assertEqual(t, names, []string{"a", "c", "b"})

	// The arena was detached, and reattaching it works from scratch.
	h := rec.OpenScope()
	rec.CloseScope(h, a)
	assertEqual(t, len(rec.Flush().Scopes), 1)
}

func TestRecorderMisuse(t *testing.T) {
	t.Parallel()

	info := &scoper.TraceInfo{Name: "x", Header: "main"}

	t.Run("double end", func(t *testing.T) {
		rec := scoper.NewRecorder()
		s := rec.Start(info)
		s.End()
		assertPanics(t, func() { s.End() })
		assertEqual(t, len(rec.Flush().Scopes), 1)
	})

	t.Run("double close", func(t *testing.T) {
		rec := scoper.NewRecorder()
		keep := rec.OpenScope()
		h := rec.OpenScope()
		rec.CloseScope(h, info)
		assertPanics(t, func() { rec.CloseScope(h, info) })
		rec.CloseScope(keep, info)
	})

	t.Run("close without open", func(t *testing.T) {
		var (
			owner = scoper.NewRecorder()
			other = scoper.NewRecorder()
			h     = owner.OpenScope()
		)

		// No arena for this goroutine at all.
		assertPanicsWith(t, "no open scopes", func() { other.CloseScope(h, info) })

		// An arena that's been emptied and detached.
		other.CloseScope(other.OpenScope(), info)
		assertPanicsWith(t, "no open scopes", func() { other.CloseScope(h, info) })
		assertEqual(t, other.Stats().ActiveGoroutines, int64(0))

		// The zero handle belongs to no goroutine.
		assertPanicsWith(t, "closed on goroutine", func() { other.CloseScope(scoper.ScopeHandle{}, info) })

		// None of that disturbed the owner.
		owner.CloseScope(h, info)
		assertEqual(t, len(owner.Flush().Scopes), 1)
		assertEqual(t, len(other.Flush().Scopes), 1)
	})

	t.Run("wrong goroutine", func(t *testing.T) {
		rec := scoper.NewRecorder()
		h := rec.OpenScope()

		panicked := make(chan bool)
		go func() {
			defer func() { panicked <- recover() != nil }()
			rec.CloseScope(h, info)
		}()
		assertEqual(t, <-panicked, true)

		// Still open, and still closable by its owner.
		assertEqual(t, rec.Stats().ActiveGoroutines, int64(1))
		rec.CloseScope(h, info)
		assertEqual(t, rec.Stats().ActiveGoroutines, int64(0))
	})
}

func TestRecorderCountersAndInstants(t *testing.T) {
	t.Parallel()

	var (
		rec   = scoper.NewRecorder()
		value = &scoper.TraceInfo{Name: "v", Header: "main"}
		mark  = &scoper.TraceInfo{Name: "m", Header: "main"}
	)

	before := time.Now()
	rec.RecordValue(value, scoper.Float(0.8))
	rec.RecordValue(value, scoper.ValueOf(3))
	rec.RecordInstant(mark, scoper.InstantProcess)
	after := time.Now()

	batch := rec.Flush()
	assertEqual(t, len(batch.Counters), 2)
	assertEqual(t, len(batch.Instants), 1)

	f, _ := batch.Counters[0].Value.Float64()
	assertEqual(t, f, 0.8)
	i, _ := batch.Counters[1].Value.Int64()
	assertEqual(t, i, int64(3))
	assertEqual(t, batch.Instants[0].Size, scoper.InstantProcess)

	for _, r := range batch.Records() {
		ts := r.Core().Timestamp
		if ts.Before(before) || ts.After(after) {
			t.Errorf("%s timestamp %s outside %s..%s", r.Kind(), ts, before, after)
		}
	}
}

func TestRecorderFlush(t *testing.T) {
	t.Parallel()

	var (
		rec  = scoper.NewRecorder()
		info = &scoper.TraceInfo{Name: "x", Header: "main"}
	)

	open := rec.Start(info)
	rec.Start(info).End()
	rec.RecordValue(info, scoper.Uint(1))
	rec.RecordInstant(info, scoper.InstantThread)

	pending := rec.Stats()
	assertEqual(t, pending.Scopes, scoper.BufferStats{Pending: 1, Pushed: 1})
	assertEqual(t, pending.Counters, scoper.BufferStats{Pending: 1, Pushed: 1})
	assertEqual(t, pending.Instants, scoper.BufferStats{Pending: 1, Pushed: 1})
	assertEqual(t, pending.ActiveGoroutines, int64(1))

	first := rec.Flush()
	assertEqual(t, first.Len(), 3)
	assertEqual(t, rec.Flush().Len(), 0)

	// Open scopes aren't flushed until they're closed.
	open.End()
	assertEqual(t, len(rec.Flush().Scopes), 1)

	stats := rec.Stats()
	assertEqual(t, stats.Scopes, scoper.BufferStats{Pending: 0, Pushed: 2, Flushed: 2, Flushes: 3})
	assertEqual(t, stats.Counters, scoper.BufferStats{Pending: 0, Pushed: 1, Flushed: 1, Flushes: 3})
	assertEqual(t, stats.Instants, scoper.BufferStats{Pending: 0, Pushed: 1, Flushed: 1, Flushes: 3})
}

func TestRecorderConcurrent(t *testing.T) {
	t.Parallel()

	const (
		goroutines = 32
		iterations = 600 // a multiple of 3
	)

	var (
		rec     = scoper.NewRecorder()
		scope   = &scoper.TraceInfo{Name: "scope", Header: "main"}
		counter = &scoper.TraceInfo{Name: "counter", Header: "main"}
		instant = &scoper.TraceInfo{Name: "instant", Header: "main"}
	)

	var (
		mtx     sync.Mutex
		flushed []scoper.Batch
		done    = make(chan struct{})
		stopped = make(chan struct{})
	)

	// Flush concurrently with recording, to check nothing is lost or duplicated.
	go func() {
		defer close(stopped)
		for {
			select {
			case <-done:
				return
			case <-time.After(time.Millisecond):
				b := rec.Flush()
				mtx.Lock()
				flushed = append(flushed, b)
				mtx.Unlock()
			}
		}
	}()

	var g errgroup.Group
	for w := 0; w < goroutines; w++ {
		g.Go(func() error {
			outer := rec.Start(scope)
			for i := 0; i < iterations; i++ {
				switch i % 3 {
				case 0:
					rec.Start(scope).End()
				case 1:
					rec.RecordValue(counter, scoper.ValueOf(i))
				case 2:
					rec.RecordInstant(instant, scoper.InstantThread)
				}
			}
			outer.End()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	close(done)
	<-stopped

	flushed = append(flushed, rec.Flush())

	var (
		scopes, counters, instants int
		threads                    = map[uint64]bool{}
	)
	for _, b := range flushed {
		scopes += len(b.Scopes)
		counters += len(b.Counters)
		instants += len(b.Instants)
		for _, r := range b.Scopes {
			threads[r.ThreadID] = true
			if r.End().Before(r.Start) {
				t.Errorf("scope ends before it starts")
			}
		}
	}

	var (
		wantScopes   = goroutines * (iterations/3 + 1) // plus outer
		wantCounters = goroutines * iterations / 3
		wantInstants = goroutines * iterations / 3
	)
	assertEqual(t, scopes, wantScopes)
	assertEqual(t, counters, wantCounters)
	assertEqual(t, instants, wantInstants)
	assertEqual(t, len(threads), goroutines)

	stats := rec.Stats()
	assertEqual(t, stats.ActiveGoroutines, int64(0))
	assertEqual(t, stats.Scopes.Pending, 0)
	assertEqual(t, stats.Scopes.Pushed, uint64(wantScopes))
	assertEqual(t, stats.Scopes.Flushed, uint64(wantScopes))
}

func TestPackageLevelFunctions(t *testing.T) {
	// Uses the Default recorder, which other tests leave alone.
	info := &scoper.TraceInfo{Name: "default", Header: "main"}

	scoper.Default().Flush()

	scoper.Start(info).End()
	h := scoper.OpenScope()
	scoper.CloseScope(h, info)
	scoper.RecordValue(info, scoper.Int(1))
	scoper.RecordInstant(info, scoper.InstantGlobal)

	if scoper.Default() != scoper.Default() {
		t.Fatalf("Default returned different recorders")
	}

	batch := scoper.Default().Flush()
	assertEqual(t, len(batch.Scopes), 2)
	assertEqual(t, len(batch.Counters), 1)
	assertEqual(t, len(batch.Instants), 1)
}

func TestThreadID(t *testing.T) {
	t.Parallel()

	rec := scoper.NewRecorder()
	rec.RecordInstant(&scoper.TraceInfo{Name: "here"}, scoper.InstantThread)
	assertEqual(t, rec.Flush().Instants[0].ThreadID, scoper.ThreadID())

	other := make(chan uint64)
	go func() { other <- scoper.ThreadID() }()
	if id := <-other; id == scoper.ThreadID() {
		t.Errorf("goroutines share thread ID %d", id)
	}
}

func BenchmarkRecorderScope(b *testing.B) {
	var (
		rec  = scoper.NewRecorder()
		info = &scoper.TraceInfo{Name: "bench", Header: "main"}
	)

	b.Run("top level", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			rec.Start(info).End()
			if i%4096 == 0 {
				rec.Flush()
			}
		}
	})

	b.Run("nested", func(b *testing.B) {
		outer := rec.Start(info)
		defer outer.End()

		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			rec.Start(info).End()
			if i%4096 == 0 {
				rec.Flush()
			}
		}
	})

	b.Run("parallel", func(b *testing.B) {
		b.ReportAllocs()
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				rec.Start(info).End()
			}
		})
		rec.Flush()
	})
}

func BenchmarkRecorderValue(b *testing.B) {
	var (
		rec  = scoper.NewRecorder()
		info = &scoper.TraceInfo{Name: "bench", Header: "main"}
	)

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		rec.RecordValue(info, scoper.Int(int64(i)))
		if i%4096 == 0 {
			rec.Flush()
		}
	}
}
