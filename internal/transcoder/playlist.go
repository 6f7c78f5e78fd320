package transcoder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hszk-dev/abrpack/internal/domain/model"
)

// WriteMasterPlaylist creates a master .m3u8 referencing every succeeded
// rendition. Tier manifests must live in the same directory as path.
func WriteMasterPlaylist(path string, renditions []model.RenditionOutput, audioBitrateKbps int) error {
	var tiers []model.RenditionOutput
	for _, r := range renditions {
		if r.Succeeded() {
			tiers = append(tiers, r)
		}
	}
	if len(tiers) == 0 {
		return fmt.Errorf("no succeeded renditions to reference")
	}

	var sb strings.Builder
	sb.WriteString("#EXTM3U\n")
	sb.WriteString("#EXT-X-VERSION:3\n\n")

	for _, r := range tiers {
		// Assumes 16:9; the actual width follows the source aspect ratio.
		width := r.Tier.Height * 16 / 9
		// Ensure width is even (codec requirement)
		if width%2 != 0 {
			width++
		}
		bandwidth := (r.Tier.VideoBitrateKbps + audioBitrateKbps) * 1000

		fmt.Fprintf(&sb, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\n", bandwidth, width, r.Tier.Height)
		fmt.Fprintf(&sb, "%s\n\n", filepath.Base(r.ManifestPath))
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("write master playlist: %w", err)
	}

	return nil
}
