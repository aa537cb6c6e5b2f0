// Package scoper records what a program spends its time on, from any number of
// goroutines, and writes the result as a trace file which can be opened in
// chrome://tracing, https://ui.perfetto.dev, or any other viewer that reads the
// Trace Event Format.
//
// The basic idea is to describe each interesting call site once, with a
// [TraceInfo], and then record against it as often as the program likes.
// Scopes are timed intervals, opened and closed on the same goroutine.
//
//	var parseInfo = scoper.NewTraceInfo("compiler", "parse")
//
//	func parse(src []byte) {
//		defer scoper.Start(parseInfo).End()
//		...
//	}
//
// Counters are numeric samples, and instants are zero-duration markers.
//
//	scoper.RecordValue(queueInfo, scoper.ValueOf(len(queue)))
//	scoper.RecordInstant(flushInfo, scoper.InstantProcess)
//
// Recording is cheap and never blocks on anything other than a short append
// under a per-kind lock. Finished records accumulate in memory until a
// [Session] drains them. A session establishes the time origin of the trace,
// collects labels and metadata, and writes the document when it's finished.
//
//	sess := scoper.NewSession(scoper.SessionConfig{Path: "out/trace"})
//	defer sess.Finish()
//
// Failing to write the trace is logged, but doesn't fail the program.
//
// Scopes are tracked per goroutine, and "thread" IDs in the trace are goroutine
// IDs. A scope must be closed by the goroutine which opened it, exactly once;
// violations panic. Scopes needn't be closed in the reverse order they were
// opened.
package scoper
