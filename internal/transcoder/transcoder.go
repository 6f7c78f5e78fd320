package transcoder

import (
	"context"
	"fmt"
	"iter"

	"github.com/hszk-dev/abrpack/internal/domain/model"
)

// EncodeRequest describes one tier's rendition.
type EncodeRequest struct {
	// SourcePath is the absolute path to the source video file.
	SourcePath string
	// OutputDir receives the manifest and segments. It must exist.
	OutputDir string
	// BaseName is the file stem shared by every output of the job.
	BaseName string
	// Tier selects target height and video bitrate.
	Tier model.Tier
	// DurationSeconds scales progress reports. Zero reports only the terminal value.
	DurationSeconds int
}

// ThumbnailRequest describes one poster image.
type ThumbnailRequest struct {
	SourcePath    string
	OutputPath    string
	OffsetSeconds int
}

// EncodeResult lists the files written for a rendition.
type EncodeResult struct {
	// ManifestPath is the path to the tier's .m3u8 playlist.
	ManifestPath string
	// SegmentPaths contains the tier's .ts segments in playback order.
	SegmentPaths []string
}

// Media abstracts the external transform tooling used by the pipeline.
// Implementations must be safe for concurrent use.
type Media interface {
	// Probe returns the source duration in whole seconds, rounded down.
	// On failure it returns 0 and an error wrapping model.ErrProbeDegraded.
	Probe(ctx context.Context, sourcePath string) (int, error)

	// Encode starts a rendition and returns immediately.
	// Cancelling ctx terminates the underlying process.
	Encode(ctx context.Context, req EncodeRequest) *Encoding

	// ExtractThumbnail writes a single poster image.
	// A failed extraction is reported through the returned Status and Err.
	ExtractThumbnail(ctx context.Context, req ThumbnailRequest) model.Thumbnail
}

// EncodeFunc performs a rendition, calling report with percent-complete values.
type EncodeFunc func(report func(percent int)) (*EncodeResult, error)

// Encoding is an in-flight rendition.
type Encoding struct {
	tier model.Tier
	feed *progressFeed
	done chan struct{}
	out  model.RenditionOutput
}

// StartEncoding runs fn in its own goroutine and tracks its progress and outcome.
// A panic in fn fails the tier instead of the process.
func StartEncoding(tier model.Tier, fn EncodeFunc) *Encoding {
	e := &Encoding{
		tier: tier,
		feed: newProgressFeed(),
		done: make(chan struct{}),
	}

	go func() {
		defer close(e.done)

		res, err := e.run(fn)
		if err != nil {
			e.out = model.FailedRendition(tier, err)
			e.feed.finish(false)
			return
		}

		e.out = model.RenditionOutput{
			Tier:         tier,
			Status:       model.OutcomeSucceeded,
			ManifestPath: res.ManifestPath,
			SegmentPaths: res.SegmentPaths,
		}
		e.feed.finish(true)
	}()

	return e
}

func (e *Encoding) run(fn EncodeFunc) (res *EncodeResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("encoder panic: %v", rec)
		}
	}()

	res, err = fn(e.feed.publish)
	if err == nil && res == nil {
		err = fmt.Errorf("encoder returned no result")
	}
	return res, err
}

// Tier returns the tier being encoded.
func (e *Encoding) Tier() model.Tier {
	return e.tier
}

// Progress returns the percent-complete values reported so far followed by
// any later ones. Values never decrease; a successful encode ends with 100.
// Each call starts a fresh iteration from the first value.
func (e *Encoding) Progress() iter.Seq[int] {
	return e.feed.values()
}

// Done is closed once the encode has finished.
func (e *Encoding) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the encode finishes and returns its tagged result.
func (e *Encoding) Wait() model.RenditionOutput {
	<-e.done
	return e.out
}
