package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/clingy"
	"github.com/zeebo/errs/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"loov.dev/tracemodel/config"
	_ "loov.dev/tracemodel/import/etw"
	_ "loov.dev/tracemodel/import/gzip"
	_ "loov.dev/tracemodel/import/jaeger"
	_ "loov.dev/tracemodel/import/linuxperf"
	_ "loov.dev/tracemodel/import/monkit"
	_ "loov.dev/tracemodel/import/tef"
	_ "loov.dev/tracemodel/import/trace2html"
	_ "loov.dev/tracemodel/import/v8log"
	"loov.dev/tracemodel/stats"
	"loov.dev/tracemodel/trace"
)

func main() {
	env := &environment{}
	ok, err := clingy.Environment{
		Name: "tracemodel",
		Args: os.Args[1:],
	}.Run(context.Background(), func(cmds clingy.Commands) {
		env.Setup(cmds)

		cmds.New("summary", "Print the size and bounds of the imported model", &cmdSummary{env: env})
		cmds.New("warnings", "Print the warnings and errors reported while importing", &cmdWarnings{env: env})
		cmds.New("threads", "List processes and their threads", &cmdThreads{env: env})
		cmds.New("counters", "List counters and their series", &cmdCounters{env: env})
		cmds.New("metrics", "Print import metrics in the prometheus text format", &cmdMetrics{env: env})
		cmds.New("pprof", "Convert samples to a pprof profile", &cmdPprof{env: env})
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
	}
	if !ok || err != nil {
		os.Exit(1)
	}
}

// environment holds the global flags shared by all commands.
type environment struct {
	configPath string
	verbose    bool
}

func (env *environment) Setup(flags clingy.Flags) {
	env.configPath = flags.Flag("config", "YAML configuration file", "").(string)
	env.verbose = flags.Flag("verbose", "Log importer progress", false,
		clingy.Short('v'),
		clingy.Transform(strconv.ParseBool), clingy.Boolean,
	).(bool)
}

func (env *environment) config() (config.Config, error) {
	conf := config.Default()
	if env.configPath != "" {
		var err error
		conf, err = config.Load(env.configPath)
		if err != nil {
			return conf, err
		}
	}
	if env.verbose {
		conf.Log.Level = "debug"
		conf.Log.Development = true
	}
	return conf, conf.Validate()
}

// input is a trace file loaded from disk.
type input struct {
	path string
	data []byte
}

// session is the result of importing the input files.
type session struct {
	inputs  []input
	model   *trace.Model
	metrics *stats.Metrics
}

// load reads the files concurrently and imports them into a single model.
func (env *environment) load(ctx context.Context, paths []string) (*session, error) {
	if len(paths) == 0 {
		return nil, errs.Errorf("no trace files specified")
	}

	conf, err := env.config()
	if err != nil {
		return nil, err
	}
	log, err := conf.Log.Logger()
	if err != nil {
		return nil, err
	}
	defer func() { _ = log.Sync() }()

	inputs, err := readInputs(ctx, paths)
	if err != nil {
		return nil, err
	}

	metrics := stats.New(conf.Metrics.Namespace)
	options := conf.Import.Options(log)
	options.Observer = metrics

	traces := make([][]byte, len(inputs))
	for i, in := range inputs {
		traces[i] = in.data
		log.Debug("loaded trace", zap.String("path", in.path), zap.Int("bytes", len(in.data)))
	}

	model, err := trace.Import(ctx, options, traces...)
	if err != nil {
		return nil, errs.Errorf("failed to import %q: %w", paths, err)
	}

	return &session{
		inputs:  inputs,
		model:   model,
		metrics: metrics,
	}, nil
}

func readInputs(ctx context.Context, paths []string) ([]input, error) {
	inputs := make([]input, len(paths))
	group, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		i, path := i, path
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return errs.Errorf("failed to read file %q: %w", path, err)
			}
			inputs[i] = input{path: path, data: data}
			return nil
		})
	}
	return inputs, group.Wait()
}

func (s *session) totalBytes() uint64 {
	var total uint64
	for _, in := range s.inputs {
		total += uint64(len(in.data))
	}
	return total
}

func formatCount(n int) string { return humanize.Comma(int64(n)) }
