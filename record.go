package scoper

import "time"

// Kind identifies the type of a record, and maps to a trace event phase.
type Kind uint8

const (
	// KindScope is a timed interval, rendered as a complete event.
	KindScope Kind = iota + 1
	// KindCounter is a numeric sample.
	KindCounter
	// KindInstant is a zero-duration marker.
	KindInstant
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindScope:
		return "scope"
	case KindCounter:
		return "counter"
	case KindInstant:
		return "instant"
	default:
		return "unknown"
	}
}

// Phase returns the trace event phase code for the kind.
func (k Kind) Phase() string {
	switch k {
	case KindScope:
		return PhaseComplete
	case KindCounter:
		return PhaseCounter
	case KindInstant:
		return PhaseInstant
	default:
		return ""
	}
}

// Trace event phase codes.
const (
	PhaseComplete = "X"
	PhaseCounter  = "C"
	PhaseInstant  = "i"
	PhaseMetadata = "M"
)

// InstantScopeSize describes how broadly an instant is drawn by the viewer.
type InstantScopeSize uint8

const (
	// InstantThread draws the instant on its thread only.
	InstantThread InstantScopeSize = iota
	// InstantProcess draws the instant across its process (header).
	InstantProcess
	// InstantGlobal draws the instant across the whole trace.
	InstantGlobal
)

// Code returns the one-character scope code used in trace events.
func (s InstantScopeSize) Code() string {
	switch s {
	case InstantProcess:
		return "p"
	case InstantGlobal:
		return "g"
	default:
		return "t"
	}
}

// String implements fmt.Stringer.
func (s InstantScopeSize) String() string {
	switch s {
	case InstantThread:
		return "thread"
	case InstantProcess:
		return "process"
	case InstantGlobal:
		return "global"
	default:
		return "unknown"
	}
}

//
//
//

// Base is the metadata common to every record.
type Base struct {
	ThreadID  uint64     // goroutine which produced the record
	Timestamp time.Time  // end for scopes, emission time otherwise
	Info      *TraceInfo // shared, never copied
}

// Record is implemented by ScopeRecord, CounterRecord, and InstantRecord, and
// by nothing else.
type Record interface {
	Kind() Kind
	Core() Base
}

// ScopeRecord is a closed scope. Its Base timestamp is the end of the scope.
type ScopeRecord struct {
	Base
	Start time.Time
}

// Kind implements Record.
func (ScopeRecord) Kind() Kind { return KindScope }

// Core implements Record.
func (r ScopeRecord) Core() Base { return r.Base }

// End returns the time the scope was closed.
func (r ScopeRecord) End() time.Time { return r.Timestamp }

// Duration returns the length of the scope.
func (r ScopeRecord) Duration() time.Duration { return r.Timestamp.Sub(r.Start) }

// CounterRecord is a numeric sample.
type CounterRecord struct {
	Base
	Value Value
}

// Kind implements Record.
func (CounterRecord) Kind() Kind { return KindCounter }

// Core implements Record.
func (r CounterRecord) Core() Base { return r.Base }

// InstantRecord is a zero-duration marker.
type InstantRecord struct {
	Base
	Size InstantScopeSize
}

// Kind implements Record.
func (InstantRecord) Kind() Kind { return KindInstant }

// Core implements Record.
func (r InstantRecord) Core() Base { return r.Base }

//
//
//

// MetaKind identifies the type of a MetaRecord.
type MetaKind uint8

const (
	// MetaProcessName renames a header in the viewer.
	MetaProcessName MetaKind = iota + 1
	// MetaThreadName gives a thread ID a display name.
	MetaThreadName
)

// String returns the metadata event name for the kind.
func (k MetaKind) String() string {
	switch k {
	case MetaProcessName:
		return "process_name"
	case MetaThreadName:
		return "thread_name"
	default:
		return "unknown"
	}
}

// MetaRecord labels a header or a thread. Meta records belong to a session,
// not to a thread.
type MetaRecord struct {
	Kind     MetaKind
	Header   string
	ThreadID uint64 // only for MetaThreadName
	Name     string
}
