package transcoder

import (
	"bufio"
	"io"
	"iter"
	"strconv"
	"strings"
	"sync"
)

// progressFeed is an append-only, replayable record of progress values.
// Publishing never blocks on consumers.
type progressFeed struct {
	mu     sync.Mutex
	cond   *sync.Cond
	points []int
	closed bool
}

func newProgressFeed() *progressFeed {
	f := &progressFeed{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// publish records percent if it advances the feed. Values are clamped to [0, 100].
func (f *progressFeed) publish(percent int) {
	percent = max(0, min(percent, 100))

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	if n := len(f.points); n > 0 && percent <= f.points[n-1] {
		return
	}
	f.points = append(f.points, percent)
	f.cond.Broadcast()
}

// finish closes the feed. A successful feed always ends with 100.
func (f *progressFeed) finish(success bool) {
	if success {
		f.publish(100)
	}

	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.cond.Broadcast()
}

func (f *progressFeed) values() iter.Seq[int] {
	return func(yield func(int) bool) {
		for i := 0; ; i++ {
			f.mu.Lock()
			for i >= len(f.points) && !f.closed {
				f.cond.Wait()
			}
			if i >= len(f.points) {
				f.mu.Unlock()
				return
			}
			v := f.points[i]
			f.mu.Unlock()

			if !yield(v) {
				return
			}
		}
	}
}

// parseProgress reads ffmpeg -progress key=value output until r is exhausted
// and reports percent complete relative to durationSeconds. Values stop at 99;
// the terminal 100 is reported once the process has succeeded.
func parseProgress(r io.Reader, durationSeconds int, report func(int)) {
	scanner := bufio.NewScanner(r)
	totalUs := int64(durationSeconds) * 1_000_000

	for scanner.Scan() {
		if totalUs <= 0 {
			continue
		}
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		// out_time_ms is reported in microseconds as well.
		if key != "out_time_us" && key != "out_time_ms" {
			continue
		}
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			continue
		}
		report(int(min(us*100/totalUs, 99)))
	}
	// Drain so the process never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
}
