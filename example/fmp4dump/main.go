package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"m7s.live/fmp4/pkg"
	"m7s.live/fmp4/pkg/config"
)

type options struct {
	configPath string
	logLevel   string
	json       bool
	samples    bool
	captions   bool
	boxes      bool
	mergeSidx  bool
	emsg       bool
	nals       bool
	printCfg   bool
	parallel   int
}

var opts options

var rootCmd = &cobra.Command{
	Use:           "fmp4dump [flags] <file> [file...]",
	Short:         "Demux fragmented MP4 files and print their tracks, seek map and samples.",
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), args, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "yaml configuration file")
	f.StringVar(&opts.logLevel, "log-level", "", "override the configured log level")
	f.BoolVar(&opts.json, "json", false, "print samples as JSON lines")
	f.BoolVarP(&opts.samples, "samples", "s", false, "print every sample")
	f.BoolVar(&opts.captions, "captions", false, "decode CEA-608/708 captions of video tracks")
	f.BoolVar(&opts.boxes, "boxes", false, "print the box tree before demuxing")
	f.BoolVar(&opts.mergeSidx, "merge-sidx", false, "scan and merge every sidx before demuxing")
	f.BoolVar(&opts.emsg, "emsg", false, "output emsg boxes on a metadata track")
	f.BoolVar(&opts.nals, "nals", false, "list the NAL unit types of H.264/H.265 samples")
	f.BoolVar(&opts.printCfg, "print-config", false, "print the configuration as loaded before demuxing")
	f.IntVarP(&opts.parallel, "parallel", "j", runtime.NumCPU(), "files demuxed concurrently")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newLogger(cfg config.Log, stderr io.Writer) (*slog.Logger, error) {
	level := pkg.ParseLevel(cfg.Level)
	handler := pkg.NewMultiLogHandler(level)
	handler.Add(pkg.NewConsoleHandler(stderr, level, cfg.NoColor))
	if cfg.Path != "" {
		rotate, err := pkg.NewRotateHandler(pkg.RotateOptions{
			Dir:       cfg.Path,
			MaxSize:   cfg.MaxSize,
			MaxFiles:  cfg.MaxFiles,
			Formatter: "2006-01-02T15-04-05",
		}, level)
		if err != nil {
			return nil, fmt.Errorf("log rotate: %w", err)
		}
		handler.Add(rotate)
	}
	return slog.New(handler), nil
}

func run(ctx context.Context, files []string, stdout, stderr io.Writer) error {
	cfg, c, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.printCfg {
		out, err := yaml.Marshal(c.GetMap())
		if err != nil {
			return err
		}
		if _, err = stdout.Write(out); err != nil {
			return err
		}
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	cfg.MergeFragmentedSidx = cfg.MergeFragmentedSidx || opts.mergeSidx
	cfg.EnableEmsgTrack = cfg.EnableEmsgTrack || opts.emsg
	logger, err := newLogger(cfg.Log, stderr)
	if err != nil {
		return err
	}
	logger.Debug("config loaded", "path", opts.configPath, "flags", cfg.Flags())

	if opts.boxes {
		for _, path := range files {
			if err = dumpBoxes(path, stdout); err != nil {
				return err
			}
		}
	}

	results := make([]*result, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.parallel, 1))
	for i, path := range files {
		g.Go(func() error {
			r, err := demuxFile(ctx, path, cfg, logger.With("file", path))
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = r
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return err
	}

	var samples *slog.Logger
	if opts.json {
		samples = slog.New(pkg.NewJSONHandler(stdout, nil))
	}
	for _, r := range results {
		r.print(stdout, samples)
	}
	return nil
}

// dumpBoxes prints the box tree as decoded by mp4ff, independently of the
// demuxer.
func dumpBoxes(path string, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	parsed, err := mp4.DecodeFile(f)
	if err != nil {
		return fmt.Errorf("%s: decode boxes: %w", path, err)
	}
	fmt.Fprintf(w, "== %s\n", path)
	return parsed.Info(w, "", "", "  ")
}
