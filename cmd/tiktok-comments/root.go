package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	tiktok "github.com/RavensCloud/tiktok-comments"
	"github.com/RavensCloud/tiktok-comments/internal/export"
)

var errJobsFailed = errors.New("one or more jobs failed")

type flags struct {
	url         string
	input       string
	limit       int
	replies     bool
	replyLimit  int
	proxies     []string
	maxRetries  int
	backoff     time.Duration
	workers     int
	deadline    time.Duration
	format      string
	outputDir   string
	outputFile  string
	cookies     string
	browserSign bool
	metricsFile string
	verbose     int
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "tiktok-comments",
		Short: "Download the comments of TikTok videos",
		Long: `Download the comments (and optionally reply threads) of one TikTok video
given with --url, or of every job in a JSON jobs file given with --input.

Results are written to --output-dir as JSON, CSV or both. A run that is
interrupted or loses its proxies still writes whatever was collected.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.url, "url", "u", "", "video URL or numeric video id")
	fl.StringVarP(&f.input, "input", "i", "", "JSON jobs file")
	fl.IntVarP(&f.limit, "limit", "n", 100, "max top-level comments per video")
	fl.BoolVarP(&f.replies, "replies", "r", false, "expand reply threads")
	fl.IntVar(&f.replyLimit, "reply-limit", 0, "max replies per thread (0 = all)")
	fl.StringArrayVarP(&f.proxies, "proxy", "p", nil, "proxy URL (http/https/socks5), repeatable")
	fl.IntVar(&f.maxRetries, "max-retries", tiktok.DefaultRetryPolicy.MaxRetries, "retries per page")
	fl.DurationVar(&f.backoff, "backoff", tiktok.DefaultRetryPolicy.BaseDelay, "initial retry backoff")
	fl.IntVarP(&f.workers, "workers", "w", 4, "concurrent reply threads (bounded by proxy count)")
	fl.DurationVar(&f.deadline, "deadline", 0, "overall deadline per video (0 = none)")
	fl.StringVarP(&f.format, "format", "f", "json", "export format: json, csv or both")
	fl.StringVarP(&f.outputDir, "output-dir", "o", "data", "output directory")
	fl.StringVar(&f.outputFile, "output-file", "", "output base name for --url (default: video id)")
	fl.StringVar(&f.cookies, "cookies", "", "session cookies JSON file")
	fl.BoolVar(&f.browserSign, "browser-sign", false, "sign API URLs with a headless browser")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus counters to this file on exit")
	fl.CountVarP(&f.verbose, "verbose", "v", "increase log verbosity (-v, -vv)")
	cmd.MarkFlagsMutuallyExclusive("url", "input")
	cmd.MarkFlagsOneRequired("url", "input")

	return cmd
}

func newLogger(verbosity int) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verbosity == 1:
		level = slog.LevelInfo
	case verbosity >= 2:
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func run(cmd *cobra.Command, f *flags) error {
	logger := newLogger(f.verbose)

	format, err := export.ParseFormat(f.format)
	if err != nil {
		return err
	}

	cfg := tiktok.ConfigFromEnv()
	if cmd.Flags().Changed("proxy") {
		cfg.Proxies = f.proxies
	}
	if cmd.Flags().Changed("max-retries") {
		cfg.Retry.MaxRetries = f.maxRetries
	}
	if cmd.Flags().Changed("backoff") {
		cfg.Retry.BaseDelay = f.backoff
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = f.workers
	}
	if f.cookies != "" {
		cfg.CookiesFile = f.cookies
	}

	reg := prometheus.NewRegistry()
	s, err := tiktok.NewFromConfig(cfg, logger, reg)
	if err != nil {
		return err
	}
	defer s.Close()

	if f.metricsFile != "" {
		defer func() {
			if err := prometheus.WriteToTextfile(f.metricsFile, reg); err != nil {
				logger.Error("write metrics", slog.Any("error", err))
			}
		}()
	}

	if f.browserSign {
		if err := s.InitBrowser(); err != nil {
			return fmt.Errorf("init browser: %w", err)
		}
	}

	defaults := jobDefaults{
		limit:   f.limit,
		replies: f.replies,
		format:  format,
	}
	var jobs []job
	if f.input != "" {
		jobs, err = loadJobs(f.input)
		if err != nil {
			return err
		}
	} else {
		jobs = []job{{VideoURL: f.url, OutputFile: f.outputFile}}
	}
	plans, err := planJobs(jobs, defaults, formatOverride(cmd, format))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	failed := 0
	for _, p := range plans {
		if ctx.Err() != nil {
			logger.Warn("interrupted, skipping remaining jobs", slog.Int("job", p.index+1))
			break
		}
		if !runJob(ctx, s, logger, p, f) {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errJobsFailed, failed, len(plans))
	}
	return nil
}

func formatOverride(cmd *cobra.Command, format export.Format) export.Format {
	if cmd.Flags().Changed("format") {
		return format
	}
	return ""
}

// runJob retrieves and exports one video. It reports whether the job
// produced a usable result.
func runJob(ctx context.Context, s *tiktok.Scraper, logger *slog.Logger, p plan, f *flags) bool {
	log := logger.With(slog.Int("job", p.index+1), slog.String("url", p.url))

	videoID, err := s.ResolveVideoID(ctx, p.url)
	if err != nil {
		log.Error("resolve video id", slog.Any("error", err))
		return false
	}

	res, err := s.GetComments(ctx, videoID, tiktok.Options{
		Limit:          p.limit,
		IncludeReplies: p.replies,
		ReplyLimit:     f.replyLimit,
		Deadline:       f.deadline,
	})
	if err != nil {
		log.Error("fetch comments", slog.Any("error", err))
		return false
	}
	if len(res.Comments) == 0 {
		log.Warn("no comments retrieved", slog.String("status", string(res.Status)))
	}

	base := p.outputFile
	if base == "" {
		base = "tiktok_comments_" + videoID
	}
	paths, err := export.Write(f.outputDir, base, p.format, res)
	if err != nil {
		log.Error("export", slog.Any("error", err))
		return false
	}

	fmt.Printf("%s: %s, %d comments, %d replies, %d skipped -> %v\n",
		videoID, res.Status, len(res.Comments), res.ReplyCount(), res.SkippedCount, paths)
	return true
}
