package motor

// RateSmoother is a trailing moving average over a fixed window of samples.
//
// The window is allocated once, pre-filled with zeros, and written in place at a
// wrapping cursor. It is owned by the control loop and is not safe for
// concurrent use.
type RateSmoother struct {
	window []float64
	cursor int
	maxRPM float64
}

// NewRateSmoother allocates a window of size samples clamped to [0, maxRPM].
func NewRateSmoother(size int, maxRPM float64) *RateSmoother {
	if size <= 0 {
		size = DefaultSmoothingWindowSize
	}
	return &RateSmoother{
		window: make([]float64, size),
		maxRPM: maxRPM,
	}
}

// Push stores sample, advances the cursor and returns the clamped mean of the
// whole window, including samples from earlier cycles.
func (s *RateSmoother) Push(sample float64) float64 {
	s.window[s.cursor] = sample
	s.cursor = (s.cursor + 1) % len(s.window)

	var sum float64
	for _, v := range s.window {
		sum += v
	}
	return clampRPM(sum/float64(len(s.window)), s.maxRPM)
}

// Size returns the window capacity.
func (s *RateSmoother) Size() int { return len(s.window) }

func clampRPM(v, maxRPM float64) float64 {
	// NaN compares false against both bounds; treat it as no motion.
	if v != v || v < 0 {
		return 0
	}
	if v > maxRPM {
		return maxRPM
	}
	return v
}
