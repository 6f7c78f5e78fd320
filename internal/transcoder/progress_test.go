package transcoder

import (
	"slices"
	"strings"
	"testing"
	"time"
)

func TestProgressFeed_MonotonicAndClamped(t *testing.T) {
	feed := newProgressFeed()

	for _, p := range []int{-5, 10, 10, 5, 40, 150} {
		feed.publish(p)
	}
	feed.finish(true)

	got := slices.Collect(feed.values())
	expected := []int{0, 10, 40, 100}
	if !slices.Equal(got, expected) {
		t.Errorf("got %v, expected %v", got, expected)
	}
}

func TestProgressFeed_Replayable(t *testing.T) {
	feed := newProgressFeed()
	feed.publish(25)
	feed.publish(50)
	feed.finish(true)

	first := slices.Collect(feed.values())
	second := slices.Collect(feed.values())

	if !slices.Equal(first, second) {
		t.Errorf("replay mismatch: %v vs %v", first, second)
	}
}

func TestProgressFeed_FailureHasNoTerminalValue(t *testing.T) {
	feed := newProgressFeed()
	feed.publish(30)
	feed.finish(false)
	feed.publish(60)

	got := slices.Collect(feed.values())
	if !slices.Equal(got, []int{30}) {
		t.Errorf("got %v, expected [30]", got)
	}
}

func TestProgressFeed_SuccessAlwaysEndsAt100(t *testing.T) {
	feed := newProgressFeed()
	feed.finish(true)

	got := slices.Collect(feed.values())
	if !slices.Equal(got, []int{100}) {
		t.Errorf("got %v, expected [100]", got)
	}
}

func TestProgressFeed_ConsumerWaitsForProducer(t *testing.T) {
	feed := newProgressFeed()
	received := make(chan []int)

	go func() {
		received <- slices.Collect(feed.values())
	}()

	feed.publish(20)
	feed.publish(70)
	feed.finish(true)

	select {
	case got := <-received:
		if !slices.Equal(got, []int{20, 70, 100}) {
			t.Errorf("got %v, expected [20 70 100]", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not finish")
	}
}

func TestProgressFeed_EarlyBreak(t *testing.T) {
	feed := newProgressFeed()
	feed.publish(10)
	feed.publish(20)

	for p := range feed.values() {
		if p != 10 {
			t.Errorf("got %d, expected 10", p)
		}
		break
	}
}

func TestParseProgress(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		duration int
		expected []int
	}{
		{
			name:     "microsecond keys",
			input:    "frame=1\nout_time_us=2500000\nprogress=continue\nout_time_us=5000000\nprogress=continue\n",
			duration: 10,
			expected: []int{25, 50},
		},
		{
			name:     "out_time_ms carries microseconds",
			input:    "out_time_ms=7500000\n",
			duration: 10,
			expected: []int{75},
		},
		{
			name:     "caps below completion",
			input:    "out_time_us=10000000\nout_time_us=12000000\nprogress=end\n",
			duration: 10,
			expected: []int{99, 99},
		},
		{
			name:     "ignores malformed values",
			input:    "out_time_us=N/A\nout_time_us=-1\nnoise\nout_time_us=1000000\n",
			duration: 4,
			expected: []int{25},
		},
		{
			name:     "unknown duration reports nothing",
			input:    "out_time_us=1000000\n",
			duration: 0,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []int
			parseProgress(strings.NewReader(tt.input), tt.duration, func(p int) {
				got = append(got, p)
			})

			if !slices.Equal(got, tt.expected) {
				t.Errorf("got %v, expected %v", got, tt.expected)
			}
		})
	}
}
