// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package democut defines the logic for the "democut" command-line tool.
//
// democut cuts captures by time, by chat line, by multi-frag or by match,
// writes analysis reports, and time shifts captures. Multi-file commands
// process their inputs with a bounded pool of workers; the failure of one file
// is reported and does not affect the others.
package democut

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/danjacques/godemocut/batch"
	"github.com/danjacques/godemocut/cache"
	"github.com/danjacques/godemocut/capture"
	"github.com/danjacques/godemocut/config"
	"github.com/danjacques/godemocut/errcode"
	"github.com/danjacques/godemocut/replay"
	"github.com/danjacques/godemocut/support/logging"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Main is the main entry point.
func Main() {
	if err := NewCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

// app is the state shared by every command of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	v          *viper.Viper
	configPath string
	metrics    string

	cfg     *config.Config
	logger  *logrus.Entry
	closers []io.Closer
	reg     *prometheus.Registry
}

// NewCommand returns the root democut command. Reports are printed to
// stdout; logs and progress go to stderr.
func NewCommand(stdout, stderr io.Writer) *cobra.Command {
	a := app{
		stdout: stdout,
		stderr: stderr,
		v:      config.New(),
	}

	root := &cobra.Command{
		Use:   "democut",
		Short: "Cut, analyze and time shift game captures",
		Long: `democut re-encodes time ranges of game captures into new, independently
playable captures. Ranges are given explicitly, or found by analyzing the
captures for chat lines, multi-frags or matches.

Settings are read from an optional YAML configuration file, from DEMOCUT_*
environment variables, and from flags, in increasing order of precedence.`,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.setup() },
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "Path to a YAML configuration file.")
	pf.StringVar(&a.metrics, "metrics-file", "", "If set, write Prometheus metrics to this textfile on exit.")
	pf.IntP("threads", "j", 0, "Number of files processed concurrently (1-16).")
	pf.Int("batch-size", 0, "Maximum number of files per batch.")
	pf.StringP("output", "o", "", "Output folder. By default, outputs are written alongside their input.")
	pf.Var(new(capture.CompressionFlag), "compression", "Output compression: one of "+capture.CompressionFlagValues()+".")
	pf.BoolP("recursive", "r", false, "Search input folders recursively.")
	pf.String("cache-dir", "", "If set, cache resolved cut sections in this folder.")
	pf.String("log-level", "", "Log level: debug, info, warn or error.")
	pf.String("log-format", "", "Log format: text or json.")
	pf.String("log-file", "", "If set, also log to this file.")
	a.bindFlags(pf, map[string]string{
		"max_thread_count":   "threads",
		"batch_size":         "batch-size",
		"output_folder":      "output",
		"output_compression": "compression",
		"recursive_search":   "recursive",
		"cache_dir":          "cache-dir",
		"log.level":          "log-level",
		"log.format":         "log-format",
		"log.file":           "log-file",
	})

	root.AddCommand(
		a.cutTimeCommand(),
		a.cutChatCommand(),
		a.cutFragCommand(),
		a.cutMatchCommand(),
		a.analyzeCommand(),
		a.timeShiftCommand(),
	)

	// Tear down after every command, including failed ones. cobra skips
	// post-run hooks when RunE fails.
	for _, cmd := range root.Commands() {
		run := cmd.RunE
		cmd.RunE = func(cmd *cobra.Command, args []string) (err error) {
			defer func() {
				if terr := a.teardown(); err == nil {
					err = terr
				}
			}()
			return run(cmd, args)
		}
	}
	return root
}

func (a *app) setup() error {
	if a.configPath != "" {
		if err := config.ReadFile(a.v, a.configPath); err != nil {
			return err
		}
	}
	cfg, err := config.Decode(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, closer, err := logging.New(cfg.Log, a.stderr)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, closer)
	a.logger = logger.WithField("run", uuid.New().String())

	a.reg = prometheus.NewRegistry()
	replay.RegisterMonitoring(a.reg)
	return nil
}

func (a *app) teardown() error {
	var err error
	if a.metrics != "" && a.reg != nil {
		if err = prometheus.WriteToTextfile(a.metrics, a.reg); err != nil {
			err = errors.Wrap(err, "writing metrics")
		}
	}

	// Close in reverse order; the logger goes last.
	for i := len(a.closers) - 1; i >= 0; i-- {
		if cerr := a.closers[i].Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	a.closers = nil
	return err
}

// output returns the configured output settings.
func (a *app) output() replay.Output {
	comp, _ := a.cfg.Compression()
	return replay.Output{
		Folder:      a.cfg.OutputFolder,
		Compression: comp,
	}
}

// openCache opens the section cache, if one is configured.
func (a *app) openCache() (*cache.Store, error) {
	if a.cfg.CacheDir == "" {
		return nil, nil
	}
	store, err := cache.Open(a.cfg.CacheDir, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store)
	return store, nil
}

// run runs job on every capture found in paths, and reports the outcome.
func (a *app) run(job replay.Job, paths []string) error {
	files, err := findFiles(paths, a.cfg.RecursiveSearch)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no capture files found")
	}
	a.logger.Infof("Running %s on %d file(s).", job.Name(), len(files))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	r := batch.Runner{
		Threads:   a.cfg.MaxThreadCount,
		BatchSize: a.cfg.BatchSize,
		Observer:  &consoleObserver{w: a.stderr, logger: a.logger},
		Logger:    a.logger,
		WithFile:  func(path string) logging.L { return a.logger.WithField("file", path) },
	}
	res, err := r.Run(ctx, files, replay.FileFunc(job))
	if err != nil {
		return err
	}
	a.report(files, res)
	return nil
}

// report prints the outcome of a batch: each failed file with its error, and
// the overall throughput.
func (a *app) report(files []string, res *batch.Result) {
	for i, c := range res.Codes {
		if c == errcode.None {
			continue
		}
		fmt.Fprintf(a.stdout, "%s: %s", files[i], c)
		if err := res.Errors[i]; err != nil && c != errcode.Skipped {
			fmt.Fprintf(a.stdout, " (%s)", err)
		}
		fmt.Fprintln(a.stdout)
	}

	secs := res.Duration.Seconds()
	var rate uint64
	if secs > 0 {
		rate = uint64(float64(res.BytesRead) / secs)
	}
	fmt.Fprintf(a.stdout, "Processed %d file(s), %d failed: %s in %s (%s/s).\n",
		len(files), res.Failed(), humanize.Bytes(uint64(res.BytesRead)), res.Duration, humanize.Bytes(rate))
}

// consoleObserver prints batch progress.
type consoleObserver struct {
	w      io.Writer
	logger logging.L
}

var _ batch.Observer = (*consoleObserver)(nil)

func (o *consoleObserver) Progress(completed, total int) {
	fmt.Fprintf(o.w, "[%d/%d] %.0f%%\n", completed, total, 100*float64(completed)/float64(total))
}

func (o *consoleObserver) Message(msg string) { o.logger.Info(msg) }
