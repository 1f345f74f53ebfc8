package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/pavanmanishd/arena/v2"
	"github.com/pavanmanishd/arena/v2/vmem"
)

// statCommand is the kingpin command running the workload.
type statCommand struct {
	configFile string
	subsystem  string
	debug      string
	failAfter  int
	logLevel   string
	workload   workload

	out io.Writer
}

// Register is used to register the command to a parent command.
func (c *statCommand) Register(app *kingpin.Application) {
	app.Flag("config.file", "YAML arena configuration. Defaults to a growing arena.").ExistingFileVar(&c.configFile)
	app.Flag("subsystem", "Memory subsystem to reserve blocks from.").Default("os").EnumVar(&c.subsystem, "os", "heap")
	app.Flag("debug", "Override the configured debug strategy.").EnumVar(&c.debug, "none", "logging", "overflow_guard", "underflow_guard")
	app.Flag("fail-after", "Fail every reservation after this many. Negative never fails.").Default("-1").IntVar(&c.failAfter)
	app.Flag("log.level", "Only log messages with the given severity or above. One of: debug, info, warn, error.").Default("info").EnumVar(&c.logLevel, "debug", "info", "warn", "error")
	app.Flag("iterations", "Number of temp-memory scopes to run.").Default("100").IntVar(&c.workload.Iterations)
	app.Flag("pushes", "Pushes per scope.").Default("64").IntVar(&c.workload.Pushes)
	app.Flag("push-size", "Size of every push.").Default("1KiB").BytesVar(&c.workload.PushSize)
	app.Flag("align", "Alignment of every push.").Default("8").IntVar(&c.workload.Align)
	app.Flag("scratch", "Also build a buffer of pushes*push-size bytes through the ping-pong scratch pair.").BoolVar(&c.workload.Scratch)
	app.Action(c.run)
}

func (c *statCommand) run(_ *kingpin.ParseContext) error {
	logger := level.NewFilter(log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr)), level.Allow(level.ParseDefault(c.logLevel, level.InfoValue())))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	cfg := arena.DefaultConfig()
	if c.configFile != "" {
		var err error
		if cfg, err = arena.LoadConfig(c.configFile); err != nil {
			return err
		}
	}
	if c.debug != "" {
		s, err := arena.ParseStrategy(c.debug)
		if err != nil {
			return err
		}
		cfg.Debug = s
	}

	var sys vmem.Subsystem
	switch c.subsystem {
	case "heap":
		sys = vmem.NewHeap()
	default:
		sys = vmem.NewOS()
	}
	counting := vmem.NewCounting(vmem.NewFailing(sys, c.failAfter))

	reg := prometheus.NewRegistry()
	opts := []arena.Option{
		arena.WithLogger(logger),
		arena.WithInstrumentation(arena.NewInstrumentation(reg)),
	}

	level.Info(logger).Log("msg", "running workload", "backend", cfg.Backend, "debug", cfg.Debug, "iterations", c.workload.Iterations, "pushes", c.workload.Pushes, "push_size", c.workload.PushSize)
	res, runErr := c.workload.run(context.Background(), logger, counting, cfg, opts...)
	if runErr != nil {
		level.Error(logger).Log("msg", "workload failed", "err", runErr)
	}

	out := c.out
	if out == nil {
		out = os.Stdout
	}
	if err := report(out, res, counting, reg); err != nil {
		return errors.Wrap(err, "write report")
	}
	return runErr
}

func report(w io.Writer, res result, sys *vmem.Counting, reg *prometheus.Registry) error {
	fmt.Fprintf(w, "scopes completed:   %s\n", humanize.Comma(int64(res.Scopes)))
	fmt.Fprintf(w, "pushes:             %s\n", humanize.Comma(int64(res.Pushes)))
	fmt.Fprintf(w, "bytes pushed:       %s\n", humanize.IBytes(res.BytesPushed))
	fmt.Fprintf(w, "peak in use:        %s\n", humanize.IBytes(uint64(res.Peak.SizeInUse)))
	fmt.Fprintf(w, "peak capacity:      %s in %d blocks\n", humanize.IBytes(uint64(res.Peak.Capacity)), res.Peak.NumBlocks)
	fmt.Fprintf(w, "peak utilization:   %.2f%%\n", res.Peak.Utilization*100)
	if res.PingPongBytes > 0 {
		fmt.Fprintf(w, "ping-pong buffer:   %s\n", humanize.IBytes(uint64(res.PingPongBytes)))
	}
	fmt.Fprintf(w, "reservations:       %s (%s released, %s live)\n",
		humanize.Comma(sys.Reserves()), humanize.Comma(sys.Releases()), humanize.IBytes(uint64(sys.LiveBytes())))
	fmt.Fprintf(w, "peak reserved:      %s\n", humanize.IBytes(uint64(sys.PeakBytes())))

	mfs, err := reg.Gather()
	if err != nil {
		return err
	}
	sort.Slice(mfs, func(i, j int) bool { return mfs[i].GetName() < mfs[j].GetName() })
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			fmt.Fprintf(w, "%-40s %g\n", mf.GetName(), metricValue(m))
		}
	}
	return nil
}

func metricValue(m *dto.Metric) float64 {
	switch {
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	}
	return 0
}
