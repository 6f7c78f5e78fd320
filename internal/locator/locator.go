// Package locator derives the file names, storage keys and public URLs of
// pipeline outputs. The layout is consumed by the CDN and playback clients,
// so every function here is pure: identical inputs always yield identical outputs.
package locator

import (
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hszk-dev/abrpack/internal/domain/model"
)

// RootPrefix is the top-level key prefix for all delivered videos.
const RootPrefix = "videos"

const (
	manifestExt  = ".m3u8"
	segmentExt   = ".ts"
	thumbnailExt = ".jpg"
)

// Location is the public address of one output file.
type Location struct {
	PublicURL  string
	StorageKey string
}

// Locator maps job outputs onto the content store layout:
//
//	videos/{ownerID}/{baseName}-{tier}.m3u8
//	videos/{ownerID}/{baseName}-{tier}_{NNN}.ts
//	videos/{ownerID}/{baseName}-thumb.jpg
//	videos/{ownerID}/{baseName}-master.m3u8
type Locator struct {
	publicBaseURL string
}

// New creates a Locator that prefixes storage keys with publicBaseURL to
// build public URLs. A trailing slash on publicBaseURL is ignored.
func New(publicBaseURL string) Locator {
	return Locator{publicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

// Rendition returns the manifest location of one tier.
func (l Locator) Rendition(ownerID, baseName string, tier model.Tier) Location {
	return l.locate(ownerID, ManifestName(baseName, tier))
}

// SegmentKeyPrefix returns the storage key prefix shared by a tier's segments.
func (l Locator) SegmentKeyPrefix(ownerID, baseName string, tier model.Tier) string {
	return l.Key(ownerID, SegmentPrefix(baseName, tier))
}

// Thumbnail returns the poster image location.
func (l Locator) Thumbnail(ownerID, baseName string) Location {
	return l.locate(ownerID, ThumbnailName(baseName))
}

// Master returns the master playlist location.
func (l Locator) Master(ownerID, baseName string) Location {
	return l.locate(ownerID, MasterName(baseName))
}

// Key returns the storage key of a file in the owner's directory.
func (l Locator) Key(ownerID, fileName string) string {
	return path.Join(RootPrefix, ownerID, fileName)
}

// URL returns the public URL for a storage key.
func (l Locator) URL(key string) string {
	return l.publicBaseURL + "/" + key
}

func (l Locator) locate(ownerID, fileName string) Location {
	key := l.Key(ownerID, fileName)
	return Location{PublicURL: l.URL(key), StorageKey: key}
}

// OwnerDir returns the local output directory of an owner under root.
func OwnerDir(root, ownerID string) string {
	return filepath.Join(root, RootPrefix, ownerID)
}

// ManifestName returns the tier manifest file name.
func ManifestName(baseName string, tier model.Tier) string {
	return renditionStem(baseName, tier) + manifestExt
}

// SegmentPrefix returns the file name prefix shared by a tier's segments.
func SegmentPrefix(baseName string, tier model.Tier) string {
	return renditionStem(baseName, tier) + "_"
}

// SegmentPattern returns the ffmpeg pattern for a tier's segment files.
// A literal % in the base name is escaped.
func SegmentPattern(baseName string, tier model.Tier) string {
	return strings.ReplaceAll(SegmentPrefix(baseName, tier), "%", "%%") + "%03d" + segmentExt
}

// SegmentName returns the file name of the segment at index.
func SegmentName(baseName string, tier model.Tier, index int) string {
	return SegmentPrefix(baseName, tier) + fmt.Sprintf("%03d", index) + segmentExt
}

// IsSegment reports whether fileName is one of the tier's segments.
func IsSegment(fileName, baseName string, tier model.Tier) bool {
	_, ok := SegmentIndex(fileName, baseName, tier)
	return ok
}

// SegmentIndex parses the index out of a tier segment file name. The part
// between the segment prefix and the extension must be decimal digits only,
// so segments of a base name that extends baseName never match.
func SegmentIndex(fileName, baseName string, tier model.Tier) (int, bool) {
	rest, ok := strings.CutPrefix(fileName, SegmentPrefix(baseName, tier))
	if !ok {
		return 0, false
	}
	digits, ok := strings.CutSuffix(rest, segmentExt)
	if !ok || digits == "" {
		return 0, false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ThumbnailName returns the poster image file name.
func ThumbnailName(baseName string) string {
	return baseName + "-thumb" + thumbnailExt
}

// MasterName returns the master playlist file name.
func MasterName(baseName string) string {
	return baseName + "-master" + manifestExt
}

func renditionStem(baseName string, tier model.Tier) string {
	return baseName + "-" + tier.Label
}
