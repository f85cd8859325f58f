package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/heyjunin/m3u8grab/pkg/errors"
	"github.com/heyjunin/m3u8grab/pkg/grabber"
	"github.com/heyjunin/m3u8grab/pkg/logger"
	"github.com/heyjunin/m3u8grab/pkg/progress"
	"github.com/heyjunin/m3u8grab/pkg/tasks"
	"github.com/spf13/cobra"
)

// config holds the flag values shared by the root and batch commands
type config struct {
	// Single download
	url  string
	name string

	// Pipeline options
	concurrency int
	retries     int
	downloadDir string
	outputDir   string
	index       int
	timeout     time.Duration
	userAgent   string

	// Remux options
	ffmpegBinary      string
	ffmpegExtraParams []string
	extension         string

	// Output and logging
	logLevel       string
	pretty         bool
	progressFile   string
	progressFormat string
	quiet          bool

	// Batch
	tasksFile string

	// progressWriter is where bars are drawn; nil means stderr.
	progressWriter io.Writer
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	rootCmd := &cobra.Command{
		Use:   "m3u8grab",
		Short: "m3u8grab - download an HLS playlist into a single video file",
		Long: `m3u8grab fetches every segment of an HLS media playlist concurrently, decrypts
AES-128 segments, and remuxes them into one file with ffmpeg.
Interrupted downloads resume from the segments already on disk.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Configure(logger.Config{
				Level:  logger.LogLevel(cfg.logLevel),
				Pretty: cfg.pretty,
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := runSingle(cmd.Context(), cfg)
			return err
		},
	}

	defaults := grabber.DefaultOptions()

	// Single download flags
	rootCmd.Flags().StringVarP(&cfg.url, "url", "u", "", "Playlist URL (required)")
	rootCmd.Flags().StringVarP(&cfg.name, "name", "n", "", "Output base name, without extension (required)")

	// Pipeline flags
	pf := rootCmd.PersistentFlags()
	pf.IntVarP(&cfg.concurrency, "concurrency", "c", defaults.Concurrency, "Maximum concurrent segment downloads")
	pf.IntVarP(&cfg.retries, "retry", "r", defaults.Retries, "Retries per segment")
	pf.StringVar(&cfg.downloadDir, "download-dir", defaults.DownloadDir, "Base directory for segment files")
	pf.StringVarP(&cfg.outputDir, "output-dir", "o", defaults.OutputDir, "Directory for finished files")
	pf.IntVar(&cfg.index, "index", -1, "Task position; with batch, only the task at this position runs")
	pf.DurationVar(&cfg.timeout, "timeout", defaults.Timeout, "Timeout for a single HTTP request")
	pf.StringVar(&cfg.userAgent, "user-agent", "", "User-Agent header sent with every request")

	// Remux flags
	pf.StringVar(&cfg.ffmpegBinary, "ffmpeg", defaults.FFmpegBinary, "Path to ffmpeg binary")
	pf.StringArrayVar(&cfg.ffmpegExtraParams, "ffmpeg-param", []string{}, "Extra parameters to pass to ffmpeg")
	pf.StringVar(&cfg.extension, "ext", defaults.Extension, "Output container extension")

	// Logging and progress flags
	pf.StringVar(&cfg.logLevel, "log-level", string(logger.InfoLevel), "Log level: debug, info, warn, error")
	pf.BoolVar(&cfg.pretty, "pretty", false, "Human readable logs instead of JSON")
	pf.StringVar(&cfg.progressFile, "progress-file", "", "File overwritten with the current progress")
	pf.StringVar(&cfg.progressFormat, "progress-format", "text", "Progress file format: 'text' or 'json'")
	pf.BoolVarP(&cfg.quiet, "quiet", "q", false, "Do not draw progress bars")

	rootCmd.MarkFlagRequired("url")
	rootCmd.MarkFlagRequired("name")

	rootCmd.AddCommand(newBatchCmd(cfg))
	return rootCmd
}

func newBatchCmd(cfg *config) *cobra.Command {
	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Download every playlist listed in a JSON task file",
		Long: `Runs the tasks of a JSON array of {"name", "url", "output_dir"} records one
after another. Tasks whose output file already exists are skipped. The command
fails only when every attempted task failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := runBatch(cmd.Context(), cfg)
			return err
		},
	}
	batchCmd.Flags().StringVarP(&cfg.tasksFile, "tasks", "f", "", "JSON task list (required)")
	batchCmd.MarkFlagRequired("tasks")
	return batchCmd
}

// options builds grabber options for one download.
func (cfg *config) options(name, url, outputDir string, index int) grabber.Options {
	return grabber.Options{
		URL:               url,
		Name:              name,
		DownloadDir:       cfg.downloadDir,
		OutputDir:         outputDir,
		Extension:         cfg.extension,
		Concurrency:       cfg.concurrency,
		Retries:           cfg.retries,
		Index:             index,
		Timeout:           cfg.timeout,
		UserAgent:         cfg.userAgent,
		FFmpegBinary:      cfg.ffmpegBinary,
		FFmpegExtraParams: cfg.ffmpegExtraParams,
	}
}

func (cfg *config) reporter(description string) progress.Reporter {
	w := cfg.progressWriter
	if cfg.quiet {
		w = io.Discard
	}
	opts := []progress.ReporterOption{progress.WithDescription(description)}
	if w != nil {
		opts = append(opts, progress.WithWriter(w))
	}
	if cfg.progressFile != "" {
		opts = append(opts,
			progress.WithProgressFile(cfg.progressFile),
			progress.WithProgressFileFormat(cfg.progressFormat),
		)
	}
	return progress.NewReporter(opts...)
}

func download(ctx context.Context, cfg *config, opts grabber.Options) (string, error) {
	g, err := grabber.New(opts, cfg.reporter(opts.Name))
	if err != nil {
		return "", err
	}
	out, err := g.Run(ctx)
	if err != nil {
		return "", err
	}
	absPath, _ := filepath.Abs(out)
	logger.Info("Download completed successfully", "main", map[string]interface{}{
		"output_path": absPath,
	})
	return out, nil
}

func runSingle(ctx context.Context, cfg *config) (string, error) {
	return download(ctx, cfg, cfg.options(cfg.name, cfg.url, cfg.outputDir, cfg.index))
}

func runBatch(ctx context.Context, cfg *config) (tasks.Summary, error) {
	list, err := tasks.Load(cfg.tasksFile)
	if err != nil {
		return tasks.Summary{}, err
	}

	if cfg.index >= 0 {
		if cfg.index >= len(list) {
			return tasks.Summary{}, errors.New(errors.ValidationError, "Task index out of range",
				fmt.Sprintf("index %d, %d tasks", cfg.index, len(list)), errors.ErrTaskIndexOutOfRange)
		}
		list = list[cfg.index : cfg.index+1]
	}
	offset := 0
	if cfg.index > 0 {
		offset = cfg.index
	}

	b := &tasks.Batch{
		OutputDir: cfg.outputDir,
		Extension: cfg.extension,
		Logger:    logger.NewLogger(),
		Run: func(ctx context.Context, task tasks.Task, index int, outputDir string) (string, error) {
			return download(ctx, cfg, cfg.options(task.Name, task.URL, outputDir, offset+index))
		},
	}
	return b.Process(ctx, list)
}
