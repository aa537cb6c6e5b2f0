package scoper

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
	"github.com/oklog/ulid/v2"

	"github.com/peterbourgon/scoper/internal/scoperutil"
)

// SessionConfig defines the configuration of a session.
type SessionConfig struct {
	// Path is where Finish writes the trace. Its extension is always replaced
	// with ".json". The default is "trace.json".
	Path string

	// Recorder whose records the session drains. The default is Default().
	Recorder *Recorder

	// Logger receives session lifecycle logs, including the error if the
	// trace can't be written. The default logs info and above to stderr.
	Logger log.Logger

	// SortEvents sorts events by start time in the written document.
	SortEvents bool
}

func (cfg *SessionConfig) sanitize() {
	if cfg.Path == "" {
		cfg.Path = "trace.json"
	}
	cfg.Path = normalizePath(cfg.Path)
	if cfg.Recorder == nil {
		cfg.Recorder = Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = level.NewFilter(log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr)), level.AllowInfo())
	}
}

// normalizePath replaces the extension of the final path element with ".json",
// or adds it if there's none. A leading dot doesn't start an extension.
func normalizePath(path string) string {
	dir, base := filepath.Split(path)
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return dir + base + ".json"
}

// Session is a single recording run. It owns the time origin of the trace, and
// collects session-level metadata; when it's finished, it drains its recorder
// and writes everything as one trace document.
//
// A session is meant to be owned by one goroutine, usually the one which
// orchestrates the work being traced. Callers which label a session from
// several goroutines must serialize those calls themselves.
type Session struct {
	id         ulid.ULID
	path       string
	recorder   *Recorder
	logger     log.Logger
	sortEvents bool

	start    time.Time
	metadata map[string]json.RawMessage
	meta     []MetaRecord
	finished bool
}

// NewSession starts a session with the given configuration. The time origin
// of the trace is the moment NewSession is called.
func NewSession(cfg SessionConfig) *Session {
	cfg.sanitize()

	s := &Session{
		id:         ulid.Make(),
		path:       cfg.Path,
		recorder:   cfg.Recorder,
		sortEvents: cfg.SortEvents,
		start:      time.Now(),
		metadata:   map[string]json.RawMessage{},
	}
	s.logger = log.With(cfg.Logger, "session", s.id.String())

	level.Debug(s.logger).Log("msg", "session started", "path", s.path)

	return s
}

// ID returns the unique ID of the session.
func (s *Session) ID() string {
	return s.id.String()
}

// Path returns the normalized path that Finish writes to.
func (s *Session) Path() string {
	return s.path
}

// Start returns the time origin of the trace.
func (s *Session) Start() time.Time {
	return s.start
}

// SetReferenceTime moves the time origin of the trace to now. It's useful
// after setup work that shouldn't count, like starting worker goroutines.
// Records from before the new origin get negative timestamps.
func (s *Session) SetReferenceTime() {
	s.start = time.Now()
}

// AddMetadata sets a top-level field of the trace document to the JSON
// encoding of value, and returns the previous encoding under that name, if
// any. A name equal to "traceEvents" or "displayTimeUnit" replaces that field.
// If value can't be encoded, the metadata is unchanged and an error is
// returned.
func (s *Session) AddMetadata(name string, value any) (json.RawMessage, error) {
	data, err := jsonAPI.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode metadata %q: %w", name, err)
	}

	prev := s.metadata[name]
	s.metadata[name] = data
	return prev, nil
}

// NameThread gives a thread ID a display name, within the given header.
func (s *Session) NameThread(threadID uint64, header, name string) {
	s.meta = append(s.meta, MetaRecord{
		Kind:     MetaThreadName,
		Header:   header,
		ThreadID: threadID,
		Name:     name,
	})
}

// FinalHeader renames a header in the viewer.
func (s *Session) FinalHeader(oldHeader, newHeader string) {
	s.meta = append(s.meta, MetaRecord{
		Kind:   MetaProcessName,
		Header: oldHeader,
		Name:   newHeader,
	})
}

// Document drains the recorder and renders everything recorded so far as a
// trace document. Records returned by one call won't be returned by the next.
func (s *Session) Document() Document {
	return Format(s.recorder.Flush(), FormatOptions{
		Start:    s.start,
		Metadata: s.metadata,
		Meta:     s.meta,
		Sort:     s.sortEvents,
	})
}

// WriteTo writes the trace document to w. It drains the recorder, like
// Document.
func (s *Session) WriteTo(w io.Writer) (int64, error) {
	_, n, err := s.write(w)
	return n, err
}

// WriteFile writes the trace document to the given path, after normalizing
// its extension to ".json". It drains the recorder, like Document.
func (s *Session) WriteFile(path string) error {
	_, _, err := s.writeFile(normalizePath(path))
	return err
}

// Finish writes the trace document to the session path. A failure is logged
// and otherwise ignored, because losing a trace shouldn't fail the program
// which produced it. Only the first call has any effect.
//
//	sess := scoper.NewSession(scoper.SessionConfig{Path: "out/trace"})
//	defer sess.Finish()
func (s *Session) Finish() {
	if s.finished {
		level.Debug(s.logger).Log("msg", "session already finished")
		return
	}
	s.finished = true

	events, n, err := s.writeFile(s.path)
	if err != nil {
		level.Error(s.logger).Log("msg", "failed to write trace", "path", s.path, "err", err)
		return
	}

	level.Info(s.logger).Log(
		"msg", "trace written",
		"path", s.path,
		"events", events,
		"size", scoperutil.HumanizeBytes(n),
		"took", scoperutil.HumanizeDuration(time.Since(s.start)),
	)
}

// Finished returns true once Finish has been called.
func (s *Session) Finished() bool {
	return s.finished
}

func (s *Session) write(w io.Writer) (events int, n int64, err error) {
	doc := s.Document()

	data, err := jsonAPI.Marshal(doc)
	if err != nil {
		return 0, 0, fmt.Errorf("encode trace: %w", err)
	}

	written, err := w.Write(data)
	if err != nil {
		return 0, int64(written), fmt.Errorf("write trace: %w", err)
	}

	return len(doc.TraceEvents), int64(written), nil
}

func (s *Session) writeFile(path string) (events int, n int64, err error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, 0, fmt.Errorf("create trace file: %w", err)
	}

	var result *multierror.Error

	events, n, err = s.write(f)
	if err != nil {
		result = multierror.Append(result, err)
	}
	if err := f.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close trace file: %w", err))
	}

	if result != nil {
		result.ErrorFormat = scoperutil.JoinErrors
	}

	return events, n, result.ErrorOrNil()
}
