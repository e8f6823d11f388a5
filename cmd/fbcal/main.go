package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"fbcal/internal/config"
	"fbcal/internal/pipeline"
)

var flags struct {
	configPath string
	cookieFile string
	output     string
	outputDir  string
	events     bool
	jsonOut    bool
	headless   bool
	verbose    bool
	watch      string
}

func main() {
	// .env is optional; it only seeds environment defaults.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		log.WithError(err).Error("run failed")
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fbcal [page|event-url ...]",
		Short: "Scrape event listings from an authenticated browser session into an iCalendar feed",
		Long: `fbcal drives a browser with externally supplied session cookies, walks the
configured event listings, and converts the extracted events into an
RFC 5545 iCalendar document (or a JSON array with --json). With
--directory the events are instead stored as one .ics file per event,
with stable contents across runs while an event is unchanged.

The cookie file is a JSON array; each element is an object whose "name"
property is the cookie's name and whose "value" property is its value.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	f := cmd.Flags()
	f.StringVarP(&flags.configPath, "config", "f", os.Getenv("FBCAL_CONFIG"), "path to the YAML config file")
	f.StringVarP(&flags.cookieFile, "cookies", "c", "", "path to the JSON cookie file (overrides config)")
	f.StringVarP(&flags.output, "out", "o", "", "write to this path instead of stdout")
	f.StringVarP(&flags.outputDir, "directory", "d", "", "store one .ics file per event in this directory")
	f.BoolVarP(&flags.events, "events", "e", false, "treat arguments as event URLs, not listing pages")
	f.BoolVarP(&flags.jsonOut, "json", "j", false, "write a JSON array instead of iCalendar")
	f.BoolVar(&flags.headless, "headless", false, "start the browser in headless mode")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	f.StringVar(&flags.watch, "watch", "", "re-run on this cron schedule instead of exiting")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	log.SetOutput(os.Stderr)
	if flags.verbose {
		log.SetLevel(log.DebugLevel)
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flags.cookieFile != "" {
		cfg.CookieFile = flags.cookieFile
	}
	if cfg.CookieFile == "" {
		cfg.CookieFile = os.Getenv("FBCAL_COOKIES")
	}
	if cfg.CookieFile == "" {
		return fmt.Errorf("no cookie file configured (use --cookies or cookie_file in the config)")
	}
	if flags.output != "" {
		cfg.Output = flags.output
	}
	if flags.outputDir != "" {
		cfg.OutputDir = flags.outputDir
	}
	if cfg.OutputDir != "" && (flags.jsonOut || cfg.Output != "") {
		return fmt.Errorf("--directory cannot be combined with --out or --json")
	}
	if flags.headless {
		cfg.Headless = true
	}
	if flags.watch != "" {
		cfg.WatchCron = flags.watch
	}
	if flags.events && len(args) == 0 {
		return fmt.Errorf("--events requires at least one event URL")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := pipeline.Options{Config: cfg, OutDir: cfg.OutputDir}
	if flags.jsonOut {
		opts.Format = pipeline.FormatJSON
	}
	if flags.events {
		opts.EventURLs = args
	} else {
		opts.Pages = args
	}

	if cfg.WatchCron == "" {
		return runOnce(ctx, cfg, opts)
	}

	// Watch mode: run immediately, then re-scrape on the schedule until
	// interrupted. A failing scheduled run is logged, not fatal.
	c := cron.New()
	if _, err := c.AddFunc(cfg.WatchCron, func() {
		if err := runOnce(ctx, cfg, opts); err != nil {
			log.WithError(err).Error("scheduled run failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid watch schedule %q: %w", cfg.WatchCron, err)
	}

	if err := runOnce(ctx, cfg, opts); err != nil {
		return err
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func runOnce(ctx context.Context, cfg *config.Config, opts pipeline.Options) error {
	closeOut := func() error { return nil }
	if opts.OutDir == "" {
		out, c, err := openOutput(cfg.Output)
		if err != nil {
			return err
		}
		opts.Out = out
		closeOut = c
	}

	sum, runErr := pipeline.Run(ctx, opts)
	closeErr := closeOut()
	if runErr != nil {
		return runErr
	}
	if closeErr != nil {
		return fmt.Errorf("close output: %w", closeErr)
	}

	if sum.Failed > 0 || sum.Stalled > 0 {
		log.WithFields(log.Fields{
			"extracted": sum.Extracted,
			"failed":    sum.Failed,
			"stalled":   sum.Stalled,
		}).Warn("run completed with partial results")
		for _, e := range sum.Errors {
			log.Warn(e)
		}
	}
	return nil
}

func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	fp, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open output %s: %w", path, err)
	}
	return fp, fp.Close, nil
}
