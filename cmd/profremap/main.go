package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/yousuf/profremap/internal/config"
	"github.com/yousuf/profremap/internal/cpuprofile"
	"github.com/yousuf/profremap/internal/logger"
	"github.com/yousuf/profremap/internal/pprofexport"
	"github.com/yousuf/profremap/internal/remap"
	"github.com/yousuf/profremap/internal/sourcemap"
	"github.com/yousuf/profremap/internal/stacktrace"
)

type flags struct {
	LogLevel    string `kong:"enum='error,warn,info,debug',help='Log level.',default='info'"`
	LogFormat   string `kong:"enum='logfmt,json',help='Log format.',default='logfmt'"`
	Config      string `kong:"help='YAML file overriding the project layout.',type:'existingfile'"`
	ProjectRoot string `kong:"help='Project root containing the build directory.',default='.',type:'path'"`

	Remap struct {
		Pprof       bool `kong:"help='Also write a gzipped pprof profile next to every output.'"`
		Concurrency int  `kong:"help='Number of profiles remapped in parallel.',default='${default_concurrency}'"`

		Profiles []string `kong:"required,arg,name='profile',help='Profiles to remap.',type:'existingfile'"`
	} `cmd:"" default:"withargs" help:"Remap CPU profiles to original sources."`

	Stack struct {
		Status bool `kong:"help='Print only the frames, each marked mapped or unmapped.'"`

		File string `kong:"arg,optional,name='file',help='File holding the stack trace. Reads stdin when omitted.',type:'existingfile'"`
	} `cmd:"" help:"Remap a JavaScript stack trace to original sources."`
}

func main() {
	flags := flags{}
	kongCtx := kong.Parse(&flags,
		kong.Name("profremap"),
		kong.Description("Rewrites CPU profiles and stack traces of bundled scripts to original source positions."),
		kong.Vars{"default_concurrency": strconv.Itoa(runtime.NumCPU())},
	)

	logger := logger.NewLogger(flags.LogLevel, flags.LogFormat, "profremap")

	layout := config.Default()
	if flags.Config != "" {
		var err error
		layout, err = config.Load(flags.Config)
		if err != nil {
			level.Error(logger).Log("msg", "failed to load config", "err", err)
			os.Exit(1)
		}
	}

	reg := prometheus.NewRegistry()
	remapper := remap.New(logger, reg, layout, sourcemap.NewFileLoader(logger))

	var g run.Group
	ctx, cancel := context.WithCancel(context.Background())
	switch strings.Fields(kongCtx.Command())[0] {
	case "remap":
		g.Add(func() error {
			return remapProfiles(ctx, logger, remapper, layout, flags.ProjectRoot,
				flags.Remap.Profiles, flags.Remap.Pprof, flags.Remap.Concurrency, os.Stdout)
		}, func(error) {
			cancel()
		})
	case "stack":
		g.Add(func() error {
			return remapStack(ctx, remapper, flags.ProjectRoot, flags.Stack.File, flags.Stack.Status, os.Stdin, os.Stdout)
		}, func(error) {
			cancel()
		})
	default:
		level.Error(logger).Log("err", "unknown command", "cmd", kongCtx.Command())
		os.Exit(1)
	}

	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))
	err := g.Run()
	logCacheStats(logger, reg)
	if err != nil {
		level.Error(logger).Log("err", err)
		os.Exit(1)
	}
}

// remapProfiles runs one pass per profile, at most concurrency at a time, and
// prints the output paths in argument order. A failed profile leaves no output behind.
func remapProfiles(
	ctx context.Context,
	logger log.Logger,
	remapper *remap.Remapper,
	layout config.Layout,
	projectRoot string,
	profiles []string,
	pprof bool,
	concurrency int,
	stdout io.Writer,
) error {
	if concurrency < 1 {
		concurrency = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	outputs := make([]string, len(profiles))
	for i, path := range profiles {
		g.Go(func() error {
			output, err := remapProfile(ctx, logger, remapper, layout, projectRoot, path, pprof)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			outputs[i] = output
			return nil
		})
	}
	err := g.Wait()

	for _, output := range outputs {
		if output != "" {
			fmt.Fprintln(stdout, output)
		}
	}
	return err
}

func remapProfile(
	ctx context.Context,
	logger log.Logger,
	remapper *remap.Remapper,
	layout config.Layout,
	projectRoot string,
	path string,
	pprof bool,
) (string, error) {
	start := time.Now()

	p, err := cpuprofile.ReadFile(path)
	if err != nil {
		return "", err
	}

	stats, err := remapper.Remap(ctx, p, projectRoot)
	if err != nil {
		return "", err
	}

	output := cpuprofile.OutputPath(path, layout.ProfileExtension)
	if err := cpuprofile.WriteFile(output, p); err != nil {
		return "", err
	}

	if pprof {
		if err := writePprof(output+".pb.gz", p); err != nil {
			os.Remove(output)
			return "", err
		}
	}

	level.Info(logger).Log(
		"msg", "profile remapped",
		"profile", path,
		"output", output,
		"records", stats.Records,
		"remapped", stats.Remapped,
		"maps", stats.MapsLoaded,
		"duration", time.Since(start),
	)
	return output, nil
}

func writePprof(path string, p *cpuprofile.Profile) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create pprof file: %w", err)
	}

	if err := pprofexport.Write(f, p); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to close pprof file: %w", err)
	}
	return nil
}

// remapStack remaps the stack trace in file, or in stdin when file is empty.
// With status set only the frames are printed, each followed by its mapping status.
func remapStack(ctx context.Context, remapper *remap.Remapper, projectRoot, file string, status bool, stdin io.Reader, stdout io.Writer) error {
	r := stdin
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return fmt.Errorf("failed to open stack trace: %w", err)
		}
		defer f.Close()
		r = f
	}

	trace, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read stack trace: %w", err)
	}

	if status {
		frames, _, err := remapper.RemapFrames(ctx, stacktrace.ParseTrace(string(trace)), projectRoot)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, stacktrace.FormatWithStatus(frames))
		return err
	}

	out, _, err := remapper.RemapStackTrace(ctx, string(trace), projectRoot)
	if err != nil {
		return err
	}

	_, err = io.WriteString(stdout, out)
	return err
}

// logCacheStats logs the source map cache counters gathered during the run.
func logCacheStats(logger log.Logger, reg prometheus.Gatherer) {
	families, err := reg.Gather()
	if err != nil {
		level.Debug(logger).Log("msg", "failed to gather metrics", "err", err)
		return
	}

	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() == nil {
				continue
			}
			keyvals := []interface{}{"msg", "cache stats", "metric", mf.GetName()}
			for _, lp := range m.GetLabel() {
				keyvals = append(keyvals, lp.GetName(), lp.GetValue())
			}
			keyvals = append(keyvals, "value", m.GetCounter().GetValue())
			level.Debug(logger).Log(keyvals...)
		}
	}
}
