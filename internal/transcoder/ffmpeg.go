package transcoder

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/hszk-dev/abrpack/internal/domain/model"
	"github.com/hszk-dev/abrpack/internal/locator"
)

// FFmpegConfig holds configuration for the FFmpeg transcoder.
type FFmpegConfig struct {
	// FFmpegPath is the path to the ffmpeg binary.
	// If empty, "ffmpeg" will be used (assumes it's in PATH).
	FFmpegPath string

	// FFprobePath is the path to the ffprobe binary.
	FFprobePath string

	// VideoCodec is the video codec to use.
	// Default: libx264
	VideoCodec string

	// VideoPreset controls the encoding speed/quality tradeoff.
	// Default: fast
	VideoPreset string

	// AudioCodec is the audio codec to use.
	// Default: aac
	AudioCodec string

	// AudioBitrateKbps is the fixed audio bitrate for every tier.
	// Default: 128
	AudioBitrateKbps int

	// AudioChannels is the output channel count.
	// Default: 2 (stereo)
	AudioChannels int

	// SegmentDuration is the HLS segment length in seconds. Keyframes are
	// forced at the same interval so every segment starts on a keyframe.
	// Default: 2
	SegmentDuration int

	// HLSPlaylistType sets the playlist type.
	// Use "vod" for Video on Demand (adds EXT-X-ENDLIST tag).
	// Default: vod
	HLSPlaylistType string

	// ThumbnailWidth and ThumbnailHeight are the poster dimensions.
	// The frame is letterboxed to keep its aspect ratio.
	// Default: 320x180
	ThumbnailWidth  int
	ThumbnailHeight int
}

// DefaultFFmpegConfig returns an FFmpegConfig with production-ready defaults.
func DefaultFFmpegConfig() FFmpegConfig {
	return FFmpegConfig{
		FFmpegPath:       "ffmpeg",
		FFprobePath:      "ffprobe",
		VideoCodec:       "libx264",
		VideoPreset:      "fast",
		AudioCodec:       "aac",
		AudioBitrateKbps: 128,
		AudioChannels:    2,
		SegmentDuration:  2,
		HLSPlaylistType:  "vod",
		ThumbnailWidth:   320,
		ThumbnailHeight:  180,
	}
}

// FFmpegTranscoder implements Media using the FFmpeg CLI.
type FFmpegTranscoder struct {
	config FFmpegConfig
}

// Compile-time verification that FFmpegTranscoder implements Media.
var _ Media = (*FFmpegTranscoder)(nil)

// NewFFmpegTranscoder creates a new FFmpeg-based transcoder.
func NewFFmpegTranscoder(cfg FFmpegConfig) *FFmpegTranscoder {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	return &FFmpegTranscoder{
		config: cfg,
	}
}

// Encode starts a single-tier HLS rendition.
func (t *FFmpegTranscoder) Encode(ctx context.Context, req EncodeRequest) *Encoding {
	return StartEncoding(req.Tier, func(report func(int)) (*EncodeResult, error) {
		return t.encode(ctx, req, report)
	})
}

func (t *FFmpegTranscoder) encode(ctx context.Context, req EncodeRequest, report func(int)) (*EncodeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("transcoding cancelled: %w", err)
	}

	if err := t.validateInput(req.SourcePath); err != nil {
		return nil, err
	}

	if err := t.validateOutputDir(req.OutputDir); err != nil {
		return nil, err
	}

	// Files left by an earlier, interrupted run of the same tier would be
	// picked up as segments of this one.
	if err := t.removeRendition(req.OutputDir, req.BaseName, req.Tier); err != nil {
		return nil, fmt.Errorf("remove previous output: %w", err)
	}

	manifestPath := filepath.Join(req.OutputDir, locator.ManifestName(req.BaseName, req.Tier))
	segmentPattern := filepath.Join(req.OutputDir, locator.SegmentPattern(req.BaseName, req.Tier))

	args := t.buildVariantFFmpegArgs(req.SourcePath, manifestPath, segmentPattern, req.Tier)

	cmd := exec.CommandContext(ctx, t.config.FFmpegPath, args...)
	configureProcessGroup(cmd)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("progress pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	parseProgress(stdout, req.DurationSeconds, report)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("transcoding cancelled: %w", ctx.Err())
		}
		return nil, execError(err, stderr.String())
	}

	segments, err := t.collectSegments(req.OutputDir, req.BaseName, req.Tier)
	if err != nil {
		return nil, fmt.Errorf("collect segments: %w", err)
	}

	return &EncodeResult{
		ManifestPath: manifestPath,
		SegmentPaths: segments,
	}, nil
}

// ExtractThumbnail writes one letterboxed poster frame at req.OffsetSeconds.
func (t *FFmpegTranscoder) ExtractThumbnail(ctx context.Context, req ThumbnailRequest) model.Thumbnail {
	thumb := model.Thumbnail{
		Path:          req.OutputPath,
		OffsetSeconds: req.OffsetSeconds,
		Status:        model.OutcomeSucceeded,
	}

	if err := t.extractThumbnail(ctx, req); err != nil {
		thumb.Status = model.OutcomeFailed
		thumb.Err = fmt.Errorf("%w: %w", model.ErrThumbnailFailed, err)
	}
	return thumb
}

func (t *FFmpegTranscoder) extractThumbnail(ctx context.Context, req ThumbnailRequest) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("extraction cancelled: %w", err)
	}

	if err := t.validateInput(req.SourcePath); err != nil {
		return err
	}

	if err := t.validateOutputDir(filepath.Dir(req.OutputPath)); err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, t.config.FFmpegPath, t.buildThumbnailArgs(req)...)
	configureProcessGroup(cmd)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("extraction cancelled: %w", ctx.Err())
		}
		return execError(err, stderr.String())
	}

	// ffmpeg exits 0 without writing a frame when the offset is past the end.
	info, err := os.Stat(req.OutputPath)
	if err != nil {
		return fmt.Errorf("thumbnail not written: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("thumbnail is empty: %s", req.OutputPath)
	}
	return nil
}

// validateInput checks if the input file exists and is readable.
func (t *FFmpegTranscoder) validateInput(inputPath string) error {
	info, err := os.Stat(inputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("input file does not exist: %s", inputPath)
		}
		return fmt.Errorf("failed to access input file: %w", err)
	}

	if info.IsDir() {
		return fmt.Errorf("input path is a directory, expected a file: %s", inputPath)
	}

	return nil
}

// validateOutputDir checks if the output directory exists.
func (t *FFmpegTranscoder) validateOutputDir(outputDir string) error {
	info, err := os.Stat(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("output directory does not exist: %s", outputDir)
		}
		return fmt.Errorf("failed to access output directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("output path is not a directory: %s", outputDir)
	}

	return nil
}

// buildVariantFFmpegArgs constructs FFmpeg arguments for a specific tier.
func (t *FFmpegTranscoder) buildVariantFFmpegArgs(inputPath, manifestPath, segmentPattern string, tier model.Tier) []string {
	// Scale filter: -2 ensures width is divisible by 2 (required by many codecs)
	scaleFilter := fmt.Sprintf("scale=-2:%d", tier.Height)
	segment := strconv.Itoa(t.config.SegmentDuration)
	bitrate := fmt.Sprintf("%dk", tier.VideoBitrateKbps)

	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostats",
		"-progress", "pipe:1",
		"-i", inputPath,
		"-vf", scaleFilter,
		"-c:v", t.config.VideoCodec,
		"-preset", t.config.VideoPreset,
		"-b:v", bitrate,
		"-maxrate", bitrate,
		"-bufsize", fmt.Sprintf("%dk", tier.VideoBitrateKbps*2),
		"-force_key_frames", fmt.Sprintf("expr:gte(t,n_forced*%s)", segment),
		"-sc_threshold", "0",
		"-c:a", t.config.AudioCodec,
		"-b:a", fmt.Sprintf("%dk", t.config.AudioBitrateKbps),
		"-ac", strconv.Itoa(t.config.AudioChannels),
		"-f", "hls",
		"-hls_time", segment,
		"-hls_list_size", "0", // Include all segments in playlist
		"-hls_playlist_type", t.config.HLSPlaylistType,
		"-hls_segment_filename", segmentPattern,
		"-y", // Overwrite output files without asking
		manifestPath,
	}
}

// buildThumbnailArgs constructs FFmpeg arguments for a single poster frame.
func (t *FFmpegTranscoder) buildThumbnailArgs(req ThumbnailRequest) []string {
	w, h := t.config.ThumbnailWidth, t.config.ThumbnailHeight
	filter := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		w, h, w, h,
	)

	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-ss", strconv.Itoa(max(req.OffsetSeconds, 0)),
		"-i", req.SourcePath,
		"-frames:v", "1",
		"-vf", filter,
		"-q:v", "2",
		"-y",
		req.OutputPath,
	}
}

// collectSegments finds the tier's .ts segment files in playback order.
func (t *FFmpegTranscoder) collectSegments(outputDir, baseName string, tier model.Tier) ([]string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	var segments []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if locator.IsSegment(entry.Name(), baseName, tier) {
			segments = append(segments, filepath.Join(outputDir, entry.Name()))
		}
	}

	if len(segments) == 0 {
		return nil, fmt.Errorf("no segments generated in output directory")
	}

	// Indices past 999 outgrow the zero padding, so compare numerically.
	slices.SortFunc(segments, func(a, b string) int {
		ia, _ := locator.SegmentIndex(filepath.Base(a), baseName, tier)
		ib, _ := locator.SegmentIndex(filepath.Base(b), baseName, tier)
		return cmp.Compare(ia, ib)
	})
	return segments, nil
}

// removeRendition deletes the manifest and segments of one tier, if present.
func (t *FFmpegTranscoder) removeRendition(outputDir, baseName string, tier model.Tier) error {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return err
	}

	manifest := locator.ManifestName(baseName, tier)
	var errs []error
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (name != manifest && !locator.IsSegment(name, baseName, tier)) {
			continue
		}
		if err := os.Remove(filepath.Join(outputDir, name)); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// execError attaches the tail of ffmpeg's stderr to a process failure.
func execError(err error, stderr string) error {
	tail := lastLines(stderr, 3)
	if tail == "" {
		return fmt.Errorf("ffmpeg execution failed: %w", err)
	}
	return fmt.Errorf("ffmpeg execution failed: %w: %s", err, tail)
}

func lastLines(s string, n int) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}
