package motor

import (
	"errors"
	"time"
)

// Control defaults
const (
	DefaultDeadZone            = 20   // Raw counts around center treated as "no command"
	DefaultStepsPerRevolution  = 20   // Encoder edges per shaft revolution
	DefaultMaxRPM              = 1000 // Upper clamp for the smoothed rate (RPM)
	DefaultSmoothingWindowSize = 5    // Samples in the moving average
	DefaultReportIntervalMS    = 200  // Minimum time between reports (ms)
)

// Analog input range
const (
	RawMax    = 1023 // Largest raw sample (10-bit converter)
	RawCenter = 512  // Center of the raw range
	rawSpan   = 511  // Nominal |delta| at full deflection

	MagnitudeMax = 255 // Full-scale actuation magnitude
)

// Params is the single set of tuning constants used by the core.
// It is fixed for the lifetime of a ControlCycle.
type Params struct {
	DeadZone            int
	StepsPerRevolution  int
	MaxRPM              float64
	SmoothingWindowSize int
	ReportInterval      time.Duration
}

// DefaultParams returns the stock tuning.
func DefaultParams() Params {
	return Params{
		DeadZone:            DefaultDeadZone,
		StepsPerRevolution:  DefaultStepsPerRevolution,
		MaxRPM:              DefaultMaxRPM,
		SmoothingWindowSize: DefaultSmoothingWindowSize,
		ReportInterval:      DefaultReportIntervalMS * time.Millisecond,
	}
}

// Validate reports the first parameter that would make the core misbehave.
func (p Params) Validate() error {
	if p.DeadZone < 0 || p.DeadZone >= rawSpan {
		return errors.New("dead zone must be between 0 and 510")
	}
	if p.StepsPerRevolution <= 0 {
		return errors.New("steps per revolution must be > 0")
	}
	if p.MaxRPM <= 0 {
		return errors.New("max rpm must be > 0")
	}
	if p.SmoothingWindowSize <= 0 {
		return errors.New("smoothing window size must be > 0")
	}
	if p.ReportInterval < 0 {
		return errors.New("report interval must be >= 0")
	}
	return nil
}
