package history

import (
	"math"
	"testing"

	th "github.com/desertthunder/viewsync/internal/testing"
)

func TestPlaybackCompleteSeconds(t *testing.T) {
	tests := []struct {
		name     string
		percent  string
		seconds  float64
		duration float64
		want     float64
	}{
		{name: "percent without sign", percent: "80", duration: 100, want: 20},
		{name: "percent with sign", percent: "80%", duration: 200, want: 40},
		{name: "full percent uses seconds", percent: "100%", seconds: 10, duration: 100, want: 10},
		{name: "larger rule wins", percent: "90", seconds: 30, duration: 100, want: 30},
		{name: "negative seconds", percent: "100", seconds: -15, duration: 100, want: 15},
		{name: "invalid percent", percent: "most", seconds: 10, duration: 100, want: 10},
		{name: "empty percent", percent: "", duration: 100, want: 0},
		{name: "zero percent", percent: "0", seconds: 5, duration: 100, want: 5},
		{name: "percent over 100", percent: "150%", duration: 100, want: 0},
		{name: "negative percent", percent: "-75", duration: 100, want: 25},
		{name: "percent rounded", percent: "79.6", duration: 100, want: 20},
		{name: "unknown duration", percent: "80", seconds: 10, duration: math.NaN(), want: 10},
		{name: "infinite duration", percent: "80", duration: math.Inf(1), want: 0},
		{name: "zero duration", percent: "80", seconds: 10, duration: 0, want: 10},
		{name: "zero duration full percent", percent: "100%", seconds: 10, duration: 0, want: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlaybackCompleteSeconds(tt.percent, tt.seconds, tt.duration); got != tt.want {
				t.Errorf("PlaybackCompleteSeconds(%q, %v, %v) = %v, want %v", tt.percent, tt.seconds, tt.duration, got, tt.want)
			}
		})
	}
}

func TestEngine_IsPlaybackComplete(t *testing.T) {
	tests := []struct {
		name     string
		percent  string
		seconds  float64
		position float64
		duration float64
		want     bool
	}{
		{name: "inside threshold", percent: "80", position: 85, duration: 100, want: true},
		{name: "on threshold", percent: "80", position: 80, duration: 100, want: true},
		{name: "before threshold", percent: "80", position: 50, duration: 100, want: false},
		{name: "zero threshold", percent: "100%", position: 100, duration: 100, want: false},
		{name: "seconds from end", percent: "100%", seconds: 10, position: 91, duration: 100, want: true},
		{name: "zero duration", percent: "100%", seconds: 10, position: 0, duration: 0, want: false},
		{name: "unknown duration", percent: "80", seconds: 10, position: 0, duration: math.NaN(), want: false},
		{name: "negative duration", percent: "80", seconds: 10, position: -20, duration: -10, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.PlaybackCompletePercent = tt.percent
			opts.PlaybackCompleteSeconds = tt.seconds
			e := newTestEngine(t, th.NewFakeRecordClient(), nil, opts)

			if got := e.IsPlaybackComplete(tt.position, tt.duration); got != tt.want {
				t.Errorf("IsPlaybackComplete(%v, %v) = %v, want %v", tt.position, tt.duration, got, tt.want)
			}
		})
	}
}

func TestThresholdCache(t *testing.T) {
	c := newThresholdCache("80", 0)

	v, computed := c.get(100)
	if v != 20 || !computed {
		t.Errorf("first get = %v, %v; want 20, true", v, computed)
	}
	v, computed = c.get(100)
	if v != 20 || computed {
		t.Errorf("second get = %v, %v; want 20, false", v, computed)
	}
}
