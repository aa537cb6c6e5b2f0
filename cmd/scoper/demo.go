package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"syscall"
	"time"

	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
	"github.com/klauspost/compress/gzip"
	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"golang.org/x/sync/errgroup"

	"github.com/peterbourgon/scoper"
	"github.com/peterbourgon/scoper/internal/scoperutil"
	"github.com/peterbourgon/scoper/scoperprom"
)

type demoConfig struct {
	*rootConfig

	out        string
	workers    int
	iterations int
	work       time.Duration
	gzip       bool
	sort       bool
	metrics    bool
}

func (cfg *demoConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{ShortName: 'o', LongName: "out" /*        */, Value: ffval.NewValueDefault(&cfg.out, "results/simple_example.json") /* */, Usage: "trace file path, or - for stdout" /*        */, Placeholder: "PATH"})
	fs.AddFlag(ff.FlagConfig{ShortName: 'w', LongName: "workers" /*    */, Value: ffval.NewValueDefault(&cfg.workers, 4) /*                             */, Usage: "worker goroutines, in addition to main" /*  */, Placeholder: "N"})
	fs.AddFlag(ff.FlagConfig{ShortName: 'n', LongName: "iterations" /* */, Value: ffval.NewValueDefault(&cfg.iterations, 6) /*                          */, Usage: "iterations per goroutine" /*                */, Placeholder: "N"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "work" /*       */, Value: ffval.NewValueDefault(&cfg.work, 5*time.Millisecond) /*              */, Usage: "unit of simulated work" /*                  */, Placeholder: "DURATION"})
	fs.AddFlag(ff.FlagConfig{ShortName: 'z', LongName: "gzip" /*       */, Value: ffval.NewValue(&cfg.gzip) /*                                          */, Usage: "gzip the trace, adding .gz to the path" /*  */, NoDefault: true})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "sort" /*       */, Value: ffval.NewValue(&cfg.sort) /*                                          */, Usage: "sort events by start time" /*               */, NoDefault: true})
	fs.AddFlag(ff.FlagConfig{ShortName: 'm', LongName: "metrics" /*    */, Value: ffval.NewValue(&cfg.metrics) /*                                       */, Usage: "print recorder metrics to stderr when done" /* */, NoDefault: true})
}

var (
	mainInfo       = scoper.NewTraceInfo("main", "main")
	someWorkInfo   = scoper.NewTraceInfo("main", "do_some_work")
	otherInfo      = scoper.NewTraceInfo("main", "other_work")
	workerInfo     = scoper.NewTraceInfo("workers", "worker")
	stepInfo       = &scoper.TraceInfo{Name: "step", Category: "demo", Header: "workers", Args: `{"unit":"work"}`}
	progressInfo   = &scoper.TraceInfo{Name: "progress", Category: "demo", Header: "workers"}
	goroutinesInfo = &scoper.TraceInfo{Name: "goroutines", Category: "demo", Header: "main"}
	iterInfo       = &scoper.TraceInfo{Name: "iteration", Category: "demo", Header: "main"}
	doneInfo       = &scoper.TraceInfo{Name: "done", Category: "demo", Header: "main"}
)

func (cfg *demoConfig) Exec(ctx context.Context, args []string) error {
	if cfg.workers < 0 || cfg.iterations < 0 {
		return fmt.Errorf("workers and iterations must be non-negative")
	}

	var (
		rec    = scoper.Default()
		logger = cfg.logger
	)

	var registry *prometheus.Registry
	if cfg.metrics {
		registry = prometheus.NewRegistry()
		if err := registry.Register(scoperprom.NewCollector(rec, nil)); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	sessionPath := cfg.out
	if sessionPath == "-" {
		sessionPath = ""
	}
	sess := scoper.NewSession(scoper.SessionConfig{
		Path:       sessionPath,
		Recorder:   rec,
		Logger:     logger,
		SortEvents: cfg.sort,
	})

	// Drop anything recorded before the session, e.g. by an earlier run in
	// the same process.
	rec.Flush()

	for name, value := range map[string]any{
		"session":    sess.ID(),
		"workers":    cfg.workers,
		"iterations": cfg.iterations,
		"goVersion":  runtime.Version(),
	} {
		if _, err := sess.AddMetadata(name, value); err != nil {
			return err
		}
	}

	level.Debug(logger).Log("msg", "starting demo", "workers", cfg.workers, "iterations", cfg.iterations, "work", cfg.work)

	var g run.Group

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			defer cancel()
			return cfg.runWorkload(ctx, sess)
		}, func(error) {
			cancel()
		})
	}

	{
		g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))
	}

	runErr := g.Run()

	// The trace is written even if the workload was interrupted.
	if err := cfg.writeTrace(sess); err != nil {
		return err
	}

	if registry != nil {
		if err := writeMetrics(cfg.stderr, registry); err != nil {
			return err
		}
	}

	return runErr
}

func (cfg *demoConfig) runWorkload(ctx context.Context, sess *scoper.Session) error {
	defer scoper.Start(mainInfo).End()

	sess.NameThread(scoper.ThreadID(), "main", "main")
	sess.FinalHeader("main", "Main Thread")
	sess.FinalHeader("workers", "Workers")

	g, ctx := errgroup.WithContext(ctx)

	for w := 0; w < cfg.workers; w++ {
		// Session calls must be serialized, so workers report their thread
		// IDs back rather than naming themselves.
		ready := make(chan uint64, 1)
		g.Go(func() error {
			ready <- scoper.ThreadID()
			return cfg.runWorker(ctx)
		})
		sess.NameThread(<-ready, "workers", fmt.Sprintf("worker %d", w))
	}

	scoper.RecordValue(goroutinesInfo, scoper.ValueOf(runtime.NumGoroutine()))

	err := cfg.runMain(ctx)
	if werr := g.Wait(); err == nil {
		err = werr
	}

	scoper.RecordInstant(doneInfo, scoper.InstantGlobal)
	return err
}

func (cfg *demoConfig) runMain(ctx context.Context) error {
	for i := 0; i < cfg.iterations; i++ {
		scoper.RecordInstant(iterInfo, scoper.InstantThread)
		if err := doSomeWork(ctx, 6*cfg.work); err != nil {
			return err
		}
		if err := otherWork(ctx, cfg.work); err != nil {
			return err
		}
	}
	return nil
}

func (cfg *demoConfig) runWorker(ctx context.Context) error {
	defer scoper.Start(workerInfo).End()

	for i := 0; i < cfg.iterations; i++ {
		if err := step(ctx, cfg.work); err != nil {
			return err
		}
		scoper.RecordValue(progressInfo, scoper.Float(float64(i+1)/float64(cfg.iterations)))
	}
	return nil
}

func doSomeWork(ctx context.Context, d time.Duration) error {
	defer scoper.Start(someWorkInfo).End()
	return contextSleep(ctx, d)
}

func otherWork(ctx context.Context, d time.Duration) error {
	defer scoper.Start(otherInfo).End()
	return contextSleep(ctx, d)
}

func step(ctx context.Context, d time.Duration) error {
	defer scoper.Start(stepInfo).End()
	return contextSleep(ctx, d)
}

func contextSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

//
//
//

func (cfg *demoConfig) writeTrace(sess *scoper.Session) error {
	switch {
	case cfg.out == "-" && cfg.gzip:
		return writeGzip(cfg.stdout, sess)

	case cfg.out == "-":
		_, err := sess.WriteTo(cfg.stdout)
		return err

	case cfg.gzip:
		return writeGzipFile(sess.Path()+".gz", sess)

	default:
		sess.Finish()
		return nil
	}
}

func writeGzip(w io.Writer, sess *scoper.Session) error {
	zw := gzip.NewWriter(w)

	var result *multierror.Error
	if _, err := sess.WriteTo(zw); err != nil {
		result = multierror.Append(result, err)
	}
	if err := zw.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close gzip stream: %w", err))
	}
	if result != nil {
		result.ErrorFormat = scoperutil.JoinErrors
	}
	return result.ErrorOrNil()
}

func writeGzipFile(path string, sess *scoper.Session) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trace file: %w", err)
	}

	var result *multierror.Error
	if err := writeGzip(f, sess); err != nil {
		result = multierror.Append(result, err)
	}
	if err := f.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close trace file: %w", err))
	}
	if result != nil {
		result.ErrorFormat = scoperutil.JoinErrors
	}
	return result.ErrorOrNil()
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode metrics: %w", err)
		}
	}
	return nil
}
