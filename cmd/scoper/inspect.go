package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/go-kit/log/level"
	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzip"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
	"golang.org/x/sync/errgroup"

	"github.com/peterbourgon/scoper"
	"github.com/peterbourgon/scoper/internal/scoperutil"
)

type inspectConfig struct {
	*rootConfig

	top int
}

func (cfg *inspectConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{ShortName: 't', LongName: "top" /* */, Value: ffval.NewValueDefault(&cfg.top, 10) /* */, Usage: "number of scope names to show, 0 for all" /* */, Placeholder: "N"})
}

func (cfg *inspectConfig) Exec(ctx context.Context, args []string) error {
	if len(args) <= 0 {
		return fmt.Errorf("at least one trace file is required")
	}

	var stdinArgs int
	for _, path := range args {
		if path == "-" {
			stdinArgs++
		}
	}
	if stdinArgs > 1 {
		return fmt.Errorf("stdin (-) can be given at most once, have %d", stdinArgs)
	}

	// Files are read concurrently, and summarized in argument order.
	summaries := make([]*summary, len(args))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range args {
		g.Go(func() error {
			doc, err := cfg.readDocument(ctx, path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			summaries[i] = summarize(path, doc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, s := range summaries {
		s.write(cfg.stdout, cfg.top)
	}

	return nil
}

type traceDocument struct {
	TraceEvents     []scoper.Event `json:"traceEvents"`
	DisplayTimeUnit string         `json:"displayTimeUnit"`
}

func (cfg *inspectConfig) readDocument(ctx context.Context, path string) (*traceDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var r io.Reader
	if path == "-" {
		r = cfg.stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		level.Debug(cfg.logger).Log("path", path, "compression", "gzip")
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		defer zr.Close()
		r = zr
	} else {
		r = br
	}

	var doc traceDocument
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode trace: %w", err)
	}

	level.Debug(cfg.logger).Log("path", path, "events", len(doc.TraceEvents))

	return &doc, nil
}

//
//
//

type summary struct {
	path   string
	unit   string
	phases map[string]int
	scopes map[string]*scopeSummary
	span   int64 // µs from the first event start to the last event end
}

type scopeSummary struct {
	name  string
	count int
	total time.Duration
	max   time.Duration
}

func summarize(path string, doc *traceDocument) *summary {
	s := &summary{
		path:   path,
		unit:   doc.DisplayTimeUnit,
		phases: map[string]int{},
		scopes: map[string]*scopeSummary{},
	}

	var (
		first, last int64
		seen        bool
	)
	for _, ev := range doc.TraceEvents {
		s.phases[ev.Phase]++

		if ev.Phase == scoper.PhaseMetadata {
			continue
		}

		end := ev.Timestamp
		if ev.Duration != nil {
			end += *ev.Duration
		}
		if !seen || ev.Timestamp < first {
			first = ev.Timestamp
		}
		if !seen || end > last {
			last = end
		}
		seen = true

		if ev.Phase != scoper.PhaseComplete || ev.Duration == nil {
			continue
		}

		ss, ok := s.scopes[ev.Name]
		if !ok {
			ss = &scopeSummary{name: ev.Name}
			s.scopes[ev.Name] = ss
		}
		d := time.Duration(*ev.Duration) * time.Microsecond
		ss.count++
		ss.total += d
		if d > ss.max {
			ss.max = d
		}
	}
	s.span = last - first

	return s
}

func (s *summary) write(w io.Writer, top int) {
	fmt.Fprintf(w, "%s\n", s.path)
	fmt.Fprintf(w, "  display unit %q, span %s\n", s.unit, scoperutil.HumanizeMicros(s.span))

	phases := make([]string, 0, len(s.phases))
	for ph := range s.phases {
		phases = append(phases, ph)
	}
	sort.Strings(phases)

	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintf(tw, "  PHASE\tEVENTS\n")
	for _, ph := range phases {
		fmt.Fprintf(tw, "  %s\t%d\n", ph, s.phases[ph])
	}
	tw.Flush()

	scopes := make([]*scopeSummary, 0, len(s.scopes))
	for _, ss := range s.scopes {
		scopes = append(scopes, ss)
	}
	sort.Slice(scopes, func(i, j int) bool {
		if scopes[i].total != scopes[j].total {
			return scopes[i].total > scopes[j].total
		}
		return scopes[i].name < scopes[j].name
	})
	if top > 0 && len(scopes) > top {
		scopes = scopes[:top]
	}
	if len(scopes) <= 0 {
		return
	}

	tw = tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintf(tw, "  SCOPE\tCOUNT\tTOTAL\tMEAN\tMAX\n")
	for _, ss := range scopes {
		mean := ss.total / time.Duration(ss.count)
		fmt.Fprintf(tw, "  %s\t%d\t%s\t%s\t%s\n",
			ss.name,
			ss.count,
			scoperutil.HumanizeDuration(ss.total),
			scoperutil.HumanizeDuration(mean),
			scoperutil.HumanizeDuration(ss.max),
		)
	}
	tw.Flush()
}
