package history

import (
	"math"
	"strconv"
	"strings"
	"sync"
)

// PlaybackCompleteSeconds returns how many seconds before the end of a duration-long clip playback counts as
// complete.
//
// percent is a share of the duration ("80" or "80%"); invalid, zero or out-of-range input means 100, which
// disables the percentage rule. seconds is taken as a magnitude. The result is the larger of the two rules. An
// unknown duration contributes nothing to the percentage rule.
func PlaybackCompleteSeconds(percent string, seconds, duration float64) float64 {
	p := parsePercent(percent)
	s := math.Abs(seconds)
	if math.IsNaN(s) || math.IsInf(s, 0) {
		s = 0
	}

	fromPercent := 0.0
	if p != 100 {
		fromPercent = duration - duration*p/100
	}
	if math.IsNaN(fromPercent) || math.IsInf(fromPercent, 0) {
		fromPercent = 0
	}
	return math.Max(s, fromPercent)
}

func parsePercent(v string) float64 {
	v = strings.TrimSuffix(strings.TrimSpace(v), "%")
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 100
	}
	f = math.Min(math.Round(math.Abs(f)), 100)
	if f == 0 {
		return 100
	}
	return f
}

// thresholdCache memoizes [PlaybackCompleteSeconds] per duration for fixed settings.
type thresholdCache struct {
	percent string
	seconds float64

	mu   sync.Mutex
	memo map[float64]float64
}

func newThresholdCache(percent string, seconds float64) *thresholdCache {
	return &thresholdCache{percent: percent, seconds: seconds, memo: make(map[float64]float64)}
}

// get returns the threshold for duration and whether it was computed by this call.
func (c *thresholdCache) get(duration float64) (float64, bool) {
	if math.IsNaN(duration) {
		return PlaybackCompleteSeconds(c.percent, c.seconds, duration), false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.memo[duration]; ok {
		return v, false
	}
	v := PlaybackCompleteSeconds(c.percent, c.seconds, duration)
	c.memo[duration] = v
	return v, true
}

// PlaybackCompleteSeconds returns the engine's completion threshold for a clip of the given duration.
func (e *Engine) PlaybackCompleteSeconds(duration float64) float64 {
	v, computed := e.thresholds.get(duration)
	if computed {
		e.logger.Debug("seconds to end", "duration", duration, "seconds", v)
	}
	return v
}

// IsPlaybackComplete reports whether position is within the completion threshold of the end. Nothing is complete
// while the duration is unknown or not positive.
func (e *Engine) IsPlaybackComplete(position, duration float64) bool {
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return false
	}
	th := e.PlaybackCompleteSeconds(duration)
	return th > 0 && duration-position <= th
}
