package scoper

import (
	"encoding/json"
	"maps"
	"sort"
	"strings"
	"time"
)

// DisplayTimeUnit is the displayTimeUnit of every document.
const DisplayTimeUnit = "ms"

// MetadataCategory is the category of metadata events.
const MetadataCategory = "__metadata"

// Event is a single entry in a trace document, in the Trace Event Format
// understood by chrome://tracing, Perfetto, and speedscope. Timestamps and
// durations are microseconds.
type Event struct {
	Name      string         `json:"name"`
	Category  string         `json:"cat"`
	Phase     string         `json:"ph"`
	ProcessID string         `json:"pid"`
	ThreadID  uint64         `json:"tid"`
	Timestamp int64          `json:"ts"`
	Duration  *int64         `json:"dur,omitempty"` // scopes only
	Scope     string         `json:"s,omitempty"`   // instants only
	Args      map[string]any `json:"args"`
}

func (ev Event) end() int64 {
	if ev.Duration == nil {
		return ev.Timestamp
	}
	return ev.Timestamp + *ev.Duration
}

// Document is a complete trace. Metadata is merged into the top level of the
// encoded object; a metadata key equal to "traceEvents" or "displayTimeUnit"
// replaces that field.
type Document struct {
	TraceEvents     []Event
	DisplayTimeUnit string
	Metadata        map[string]json.RawMessage
}

// MarshalJSON implements json.Marshaler.
func (d Document) MarshalJSON() ([]byte, error) {
	events := d.TraceEvents
	if events == nil {
		events = []Event{}
	}

	obj := make(map[string]any, 2+len(d.Metadata))
	obj["traceEvents"] = events
	obj["displayTimeUnit"] = d.DisplayTimeUnit
	for k, v := range d.Metadata {
		obj[k] = v
	}

	return jsonAPI.Marshal(obj)
}

// FormatOptions are the session-level inputs to Format.
type FormatOptions struct {
	// Start is the time origin. Event timestamps are relative to it, and may
	// be negative for records which precede it.
	Start time.Time

	// Metadata is merged into the top level of the document.
	Metadata map[string]json.RawMessage

	// Meta records are rendered first, in order.
	Meta []MetaRecord

	// Sort orders the record events by start time, and then by descending end
	// time, so enclosing scopes precede the scopes they enclose. Viewers don't
	// need it, but load sorted traces faster.
	Sort bool
}

// Format renders a batch of records as a trace document. It doesn't modify its
// inputs, and its output depends only on them.
func Format(b Batch, opts FormatOptions) Document {
	var (
		f      = formatter{zero: opts.Start, args: map[*TraceInfo]map[string]any{}}
		events = make([]Event, 0, len(opts.Meta)+b.Len())
	)

	for _, m := range opts.Meta {
		events = append(events, formatMeta(m))
	}

	var (
		offset  = len(events)
		records = b.Records()
	)
	for _, r := range records {
		events = append(events, f.format(r))
	}

	if opts.Sort {
		tail := events[offset:]
		sort.SliceStable(tail, func(i, j int) bool {
			if tail[i].Timestamp != tail[j].Timestamp {
				return tail[i].Timestamp < tail[j].Timestamp
			}
			return tail[i].end() > tail[j].end()
		})
	}

	var metadata map[string]json.RawMessage
	if len(opts.Metadata) > 0 {
		metadata = maps.Clone(opts.Metadata)
	}

	return Document{
		TraceEvents:     events,
		DisplayTimeUnit: DisplayTimeUnit,
		Metadata:        metadata,
	}
}

type formatter struct {
	zero time.Time
	args map[*TraceInfo]map[string]any // parsed TraceInfo.Args, by info
}

func (f *formatter) micros(t time.Time) int64 {
	return t.Sub(f.zero).Microseconds()
}

func (f *formatter) format(r Record) Event {
	var (
		base = r.Core()
		info = base.Info.orEmpty()
	)

	ev := Event{
		Name:      info.Name,
		Category:  info.Category,
		Phase:     r.Kind().Phase(),
		ProcessID: info.Header,
		ThreadID:  base.ThreadID,
		Timestamp: f.micros(base.Timestamp),
	}

	switch r := r.(type) {
	case ScopeRecord:
		// Both ends are offsets from zero, so truncation can't make the
		// duration disagree with the rendered timestamps.
		start := f.micros(r.Start)
		dur := ev.Timestamp - start
		if dur < 0 {
			dur = 0
		}
		ev.Timestamp = start
		ev.Duration = &dur
		ev.Args = f.infoArgs(info)

	case CounterRecord:
		args := map[string]any{info.Name: r.Value.jsonValue()}
		for k, v := range f.infoArgs(info) {
			if _, ok := args[k]; !ok {
				args[k] = v
			}
		}
		ev.Args = args

	case InstantRecord:
		ev.Scope = r.Size.Code()
		ev.Args = f.infoArgs(info)
	}

	return ev
}

// infoArgs returns a fresh copy of the parsed args of the info.
func (f *formatter) infoArgs(info *TraceInfo) map[string]any {
	parsed, ok := f.args[info]
	if !ok {
		parsed = parseArgs(info.Args)
		f.args[info] = parsed
	}
	return maps.Clone(parsed)
}

func parseArgs(s string) map[string]any {
	if strings.TrimSpace(s) == "" {
		return map[string]any{}
	}

	var v any
	if err := jsonAPI.UnmarshalFromString(s, &v); err != nil {
		return map[string]any{"args": s}
	}

	switch x := v.(type) {
	case map[string]any:
		return x
	case nil:
		return map[string]any{}
	default:
		return map[string]any{"args": x}
	}
}

func formatMeta(m MetaRecord) Event {
	return Event{
		Name:      m.Kind.String(),
		Category:  MetadataCategory,
		Phase:     PhaseMetadata,
		ProcessID: m.Header,
		ThreadID:  m.ThreadID,
		Timestamp: 0,
		Args:      map[string]any{"name": m.Name},
	}
}
