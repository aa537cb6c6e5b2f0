package scoper

import (
	"fmt"
	"time"
)

// Scope is an open scope, returned by Start. It must be ended exactly once, by
// the goroutine which started it.
type Scope struct {
	recorder *Recorder
	info     *TraceInfo
	handle   ScopeHandle
	ended    bool
}

// End closes the scope and records it, returning its duration. Calling End
// more than once, or from another goroutine, panics.
func (s *Scope) End() time.Duration {
	if s.ended {
		panic(fmt.Sprintf("scoper: scope %q ended twice", s.info.orEmpty().Name))
	}
	s.ended = true
	return s.recorder.CloseScope(s.handle, s.info)
}
