package scoperutil

import (
	"runtime"

	"github.com/petermattis/goid"
)

// GoroutineID returns the ID of the calling goroutine, or 0 if it can't be
// determined. IDs are unique for the life of the process.
//
// On supported platforms the ID is read directly from the runtime, without
// allocating. Elsewhere goid falls back to parsing a stack trace, which is
// orders of magnitude slower.
func GoroutineID() uint64 {
	id := goid.Get()
	if id <= 0 {
		return stackGoroutineID()
	}
	return uint64(id)
}

// stackGoroutineID derives the goroutine ID from the first line of the stack
// trace, which is "goroutine 123 [running]:".
func stackGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return parseGoroutineID(buf[:n])
}

func parseGoroutineID(buf []byte) uint64 {
	const prefix = "goroutine "
	if len(buf) < len(prefix) || string(buf[:len(prefix)]) != prefix {
		return 0
	}

	var id uint64
	for _, c := range buf[len(prefix):] {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}
