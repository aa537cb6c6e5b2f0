package main

import (
	"io"

	"github.com/go-kit/log"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
)

type rootConfig struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	logLevel   string
	configFile string

	logger log.Logger
}

func (cfg *rootConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{ShortName: 'l', LongName: "log" /*    */, Value: ffval.NewEnum(&cfg.logLevel, "info", "i", "debug", "d", "none", "n") /* */, Usage: "log level: i/info, d/debug, n/none" /* */, Placeholder: "LEVEL"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "config" /* */, Value: ffval.NewValue(&cfg.configFile) /*                                      */, Usage: "TOML config file" /*                   */, Placeholder: "FILE", NoDefault: true})
}
