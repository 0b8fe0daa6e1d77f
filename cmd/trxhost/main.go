// Command trxhost is a reference baseband host for the trx driver: it
// negotiates sample rates, lists backends and streams a test cell through
// any registered backend.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rjboer/GoTRX/internal/config"
	"github.com/rjboer/GoTRX/internal/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	logFile    string

	cfg     config.Config
	log     logging.Logger
	logSink io.Closer
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "trxhost",
		Short:         "Reference host for the trx transceiver driver",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logSink != nil {
				return opts.logSink.Close()
			}
			return nil
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&opts.logFormat, "log-format", "", "log format (text, json)")
	pf.StringVar(&opts.logFile, "log-file", "", "write logs to a rotated file instead of stderr")

	cmd.AddCommand(newNegotiateCmd(opts), newRunCmd(opts), newBackendsCmd(), newDiscoverCmd())
	return cmd
}

// setup loads the configuration and builds the process logger. Flags take
// precedence over the file's log section.
func (o *rootOptions) setup(stderr io.Writer) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	if o.logFile != "" {
		cfg.Log.File = o.logFile
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(cfg.Log.Format)
	if err != nil {
		return err
	}
	out := stderr
	if cfg.Log.File != "" {
		sink := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     28,
		}
		o.logSink = sink
		out = sink
	}
	o.cfg = cfg
	o.log = logging.New(level, format, out)
	logging.SetDefault(o.log)
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "trxhost:", err)
		os.Exit(1)
	}
}
