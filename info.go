package scoper

import (
	"runtime"
	"strings"
)

// TraceInfo describes a single call site which produces scopes, counters, or
// instants. It's typically allocated once, as a package-level variable, and
// shared by every record that the call site produces. A TraceInfo must not be
// modified once it has been used to record anything.
type TraceInfo struct {
	// Name of the scope, counter, or instant. For counters, the name is also
	// the key of the value in the event args.
	Name string

	// Category is a comma-separated list of tags, used by viewers for
	// filtering.
	Category string

	// Header groups events in the viewer, and is rendered as the process ID.
	Header string

	// Args is a JSON object, already rendered, attached to every event. It may
	// be empty. Text which isn't a JSON object is kept under the "args" key.
	Args string
}

// NewTraceInfo returns a TraceInfo with the given header and name, and a
// category derived from the caller's package path, e.g. a call from package
// github.com/foo/bar gets category "github.com,foo,bar".
func NewTraceInfo(header, name string) *TraceInfo {
	return &TraceInfo{
		Name:     name,
		Category: callerCategory(2),
		Header:   header,
	}
}

var emptyInfo TraceInfo

func (ti *TraceInfo) orEmpty() *TraceInfo {
	if ti == nil {
		return &emptyInfo
	}
	return ti
}

func callerCategory(skip int) string {
	pc, _, _, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return ""
	}
	return strings.ReplaceAll(pkgPath(fn.Name()), "/", ",")
}

// pkgPath returns the package path from a fully qualified function name like
// "github.com/foo/bar.(*T).Method" or "main.main".
func pkgPath(funcName string) string {
	const pathSep = "/"
	prefix, name := "", funcName
	if i := strings.LastIndex(funcName, pathSep); i != -1 {
		prefix, name = funcName[:i+len(pathSep)], funcName[i+len(pathSep):]
	}
	const pkgSep = "."
	if i := strings.Index(name, pkgSep); i != -1 {
		name = name[:i]
	}
	return prefix + name
}
