package transcoder

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/hszk-dev/abrpack/internal/domain/model"
)

// Probe runs a single ffprobe JSON call and returns the container duration
// in whole seconds. Any failure degrades to 0 with model.ErrProbeDegraded.
func (t *FFmpegTranscoder) Probe(ctx context.Context, sourcePath string) (int, error) {
	if err := t.validateInput(sourcePath); err != nil {
		return 0, fmt.Errorf("%w: %w", model.ErrProbeDegraded, err)
	}

	cmd := exec.CommandContext(ctx, t.config.FFprobePath, buildProbeArgs(sourcePath)...)
	configureProcessGroup(cmd)

	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("%w: ffprobe %q: %w", model.ErrProbeDegraded, sourcePath, err)
	}

	seconds, err := ParseDuration(out)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", model.ErrProbeDegraded, err)
	}
	return seconds, nil
}

func buildProbeArgs(sourcePath string) []string {
	return []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		sourcePath,
	}
}

type ffprobeOutput struct {
	Format ffprobeFormat `json:"format"`
}

type ffprobeFormat struct {
	Filename string `json:"filename"`
	Duration string `json:"duration"`
}

// ParseDuration extracts format.duration from ffprobe JSON output, rounded down.
// Exported for testing without a real ffprobe binary.
func ParseDuration(data []byte) (int, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return 0, fmt.Errorf("parse ffprobe JSON: %w", err)
	}

	value := strings.TrimSpace(raw.Format.Duration)
	if value == "" || value == "N/A" {
		return 0, fmt.Errorf("ffprobe reported no duration")
	}

	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", value, err)
	}
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return 0, fmt.Errorf("invalid duration %q", value)
	}

	return int(math.Floor(seconds)), nil
}
