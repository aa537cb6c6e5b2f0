// scoper is a CLI tool for producing and inspecting scoper trace files.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
)

func main() {
	var (
		ctx    = context.Background()
		stdin  = os.Stdin
		stdout = os.Stdout
		stderr = os.Stderr
		args   = os.Args[1:]
	)
	err := exec(ctx, stdin, stdout, stderr, args)
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.As(err, &(run.SignalError{})):
		os.Exit(0)
	case err != nil:
		fmt.Fprintf(stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func exec(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) (err error) {
	rootConfig := &rootConfig{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}

	rootFlags := ff.NewFlagSet("scoper")
	rootConfig.register(rootFlags)

	rootCommand := &ff.Command{
		Name:      "scoper",
		ShortHelp: "produce and inspect scoper trace files",
		Flags:     rootFlags,
	}

	// Config for `scoper demo`.
	demoConfig := &demoConfig{rootConfig: rootConfig}
	demoFlags := ff.NewFlagSet("demo").SetParent(rootFlags)
	demoConfig.register(demoFlags)
	demoCommand := &ff.Command{
		Name:      "demo",
		ShortHelp: "record a sample workload and write its trace",
		LongHelp:  "Run a small multi-goroutine workload under a session, and write the trace document.",
		Flags:     demoFlags,
		Exec:      demoConfig.Exec,
	}
	rootCommand.Subcommands = append(rootCommand.Subcommands, demoCommand)

	// Config for `scoper inspect`.
	inspectConfig := &inspectConfig{rootConfig: rootConfig}
	inspectFlags := ff.NewFlagSet("inspect").SetParent(rootFlags)
	inspectConfig.register(inspectFlags)
	inspectCommand := &ff.Command{
		Name:      "inspect",
		ShortHelp: "summarize one or more trace files",
		LongHelp:  "Read trace documents, plain or gzipped, and print event counts and the heaviest scopes. Use - for stdin.",
		Flags:     inspectFlags,
		Exec:      inspectConfig.Exec,
	}
	rootCommand.Subcommands = append(rootCommand.Subcommands, inspectCommand)

	// Print help when appropriate.
	showHelp := true
	defer func() {
		errHelp := errors.Is(err, ff.ErrHelp) || errors.Is(err, ff.ErrNoExec)
		if showHelp || errHelp {
			fmt.Fprintf(stderr, "\n%s\n", ffhelp.Command(rootCommand))
		}
		if errHelp {
			err = nil
		}
	}()

	// Initial parsing.
	if err := rootCommand.Parse(args,
		ff.WithEnvVarPrefix("SCOPER"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(parseTOML),
	); err != nil {
		return err
	}

	// Validation and set-up.
	{
		var logger log.Logger
		switch rootConfig.logLevel {
		case "n", "none":
			logger = log.NewNopLogger()
		case "i", "info":
			logger = level.NewFilter(log.NewLogfmtLogger(log.NewSyncWriter(stderr)), level.AllowInfo())
		case "d", "debug":
			logger = level.NewFilter(log.NewLogfmtLogger(log.NewSyncWriter(stderr)), level.AllowDebug())
		default:
			return fmt.Errorf("invalid log level %q", rootConfig.logLevel)
		}
		rootConfig.logger = logger
	}

	// Run errors shouldn't show help by default.
	showHelp = false

	// Run the selected command.
	return rootCommand.Run(ctx)
}
