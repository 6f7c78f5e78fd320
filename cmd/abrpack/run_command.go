package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hszk-dev/abrpack/internal/config"
	"github.com/hszk-dev/abrpack/internal/domain/model"
	"github.com/hszk-dev/abrpack/internal/locator"
	"github.com/hszk-dev/abrpack/internal/transcoder"
	"github.com/hszk-dev/abrpack/internal/usecase"
)

type runOptions struct {
	source      string
	owner       string
	name        string
	tiers       []string
	concurrency int
	outputRoot  string
}

func newRunCommand() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Transcode a local source into every requested tier",
		Long: "Probe, encode and thumbnail a staged source video on this machine.\n" +
			"Outputs are written under {output}/videos/{owner}/ and nothing is uploaded.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.source, "source", "", "Path to the staged source video")
	cmd.Flags().StringVar(&opts.owner, "owner", "local", "Owner ID used in output paths")
	cmd.Flags().StringVar(&opts.name, "name", "", "Base name for outputs (default: source file name without extension)")
	cmd.Flags().StringSliceVar(&opts.tiers, "tiers", []string{model.Tier720p.Label, model.Tier1080p.Label}, "Comma-separated tiers to encode")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "Maximum tier encodes in flight (default: PIPELINE_CONCURRENCY)")
	cmd.Flags().StringVar(&opts.outputRoot, "output", "", "Output root directory (default: PIPELINE_OUTPUT_ROOT)")
	_ = cmd.MarkFlagRequired("source")

	return cmd
}

func runPipeline(cmd *cobra.Command, opts runOptions) error {
	tiers, err := model.ParseTiers(opts.tiers)
	if err != nil {
		return err
	}
	if opts.concurrency < 0 {
		return fmt.Errorf("--concurrency must not be negative, got %d", opts.concurrency)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(cfg.Log.NewLogger(cmd.ErrOrStderr()))

	if opts.concurrency > 0 {
		cfg.Pipeline.Concurrency = opts.concurrency
	}
	if opts.outputRoot != "" {
		cfg.Pipeline.OutputRoot = opts.outputRoot
	}
	if opts.name == "" {
		opts.name = defaultBaseName(opts.source)
	}

	ffmpegCfg := transcoder.DefaultFFmpegConfig()
	ffmpegCfg.FFmpegPath = cfg.Pipeline.FFmpegPath
	ffmpegCfg.FFprobePath = cfg.Pipeline.FFprobePath

	pipelineCfg := usecase.DefaultPipelineConfig()
	pipelineCfg.OutputRoot = cfg.Pipeline.OutputRoot
	pipelineCfg.ConcurrencyLimit = cfg.Pipeline.Concurrency
	pipelineCfg.ThumbnailOffsetSeconds = cfg.Pipeline.ThumbnailOffset
	pipelineCfg.AudioBitrateKbps = ffmpegCfg.AudioBitrateKbps

	pipeline := usecase.NewPipeline(
		transcoder.NewFFmpegTranscoder(ffmpegCfg),
		locator.New(cfg.Pipeline.PublicBaseURL),
		pipelineCfg,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source := model.SourceAsset{Path: opts.source, OwnerID: opts.owner, BaseName: opts.name}
	job, runErr := pipeline.Run(ctx, source, tiers)
	if job == nil {
		return runErr
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "output:   %s\n", pipeline.OutputDir(opts.owner))
	fmt.Fprintln(out, renderJob(job))
	return runErr
}

func defaultBaseName(source string) string {
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
