package motor

import (
	"errors"
	"time"
)

// ============================================================================
// Collaborators
// ============================================================================
// The core only sees narrow interfaces; hardware backends and test fakes
// implement them. Writes are fire-and-forget: a backend that can fail is
// expected to log and carry on.
// ============================================================================

// AnalogInput samples the potentiometer.
type AnalogInput interface {
	ReadRaw() uint16 // 0..1023
}

// Actuator drives the motor bridge.
type Actuator interface {
	SetDirection(forward bool)
	SetMagnitude(magnitude uint8)
}

// RateSource exposes the latest instantaneous rate. *EdgeTimer implements it.
type RateSource interface {
	Rate() float64
}

// Clock provides the time used to gate reporting.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall/monotonic clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ============================================================================
// ControlCycle
// ============================================================================

// StepResult describes one iteration. It is returned by value and not retained.
type StepResult struct {
	Raw      uint16
	Command  ActuationCommand
	Rate     float64 // instantaneous rate snapshot pushed this cycle
	Smoothed float64
	Reported bool
	At       time.Time
}

// ControlCycle runs the fixed five-step loop body:
// sample input, map it, actuate, smooth the rate, maybe report.
//
// A ControlCycle is owned by one goroutine. Only the RateSource it reads from is
// shared with the edge context.
type ControlCycle struct {
	input    AnalogInput
	actuator Actuator
	rate     RateSource
	reporter Reporter
	clock    Clock

	mapper   CommandMapper
	smoother *RateSmoother

	reportInterval time.Duration
	lastReport     time.Time

	last StepResult
}

// CycleDeps bundles the collaborators of a ControlCycle.
type CycleDeps struct {
	Input    AnalogInput
	Actuator Actuator
	Rate     RateSource
	Reporter Reporter // optional
	Clock    Clock    // optional; SystemClock if nil
}

// NewControlCycle builds the cycle and its owned mapper/smoother from p.
// The reporting clock starts at construction time, so the first report is
// emitted one interval after start.
func NewControlCycle(p Params, deps CycleDeps) (*ControlCycle, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if deps.Input == nil {
		return nil, errors.New("control cycle: input is nil")
	}
	if deps.Actuator == nil {
		return nil, errors.New("control cycle: actuator is nil")
	}
	if deps.Rate == nil {
		return nil, errors.New("control cycle: rate source is nil")
	}
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	reporter := deps.Reporter
	if reporter == nil {
		reporter = ReporterFunc(func(Report) {})
	}

	return &ControlCycle{
		input:          deps.Input,
		actuator:       deps.Actuator,
		rate:           deps.Rate,
		reporter:       reporter,
		clock:          clock,
		mapper:         NewCommandMapper(p.DeadZone),
		smoother:       NewRateSmoother(p.SmoothingWindowSize, p.MaxRPM),
		reportInterval: p.ReportInterval,
		lastReport:     clock.Now(),
	}, nil
}

// Step runs one iteration. It never blocks on anything but the collaborators.
func (c *ControlCycle) Step() StepResult {
	// 1. sample
	raw := c.input.ReadRaw()

	// 2. map
	cmd := c.mapper.MapInput(raw)

	// 3. actuate, every cycle
	c.actuator.SetDirection(cmd.Direction == Forward)
	c.actuator.SetMagnitude(cmd.Magnitude)

	// 4. smooth
	rate := c.rate.Rate()
	smoothed := c.smoother.Push(rate)

	// 5. report, rate-limited
	now := c.clock.Now()
	res := StepResult{
		Raw:      raw,
		Command:  cmd,
		Rate:     rate,
		Smoothed: smoothed,
		At:       now,
	}
	if now.Sub(c.lastReport) >= c.reportInterval {
		c.reporter.Report(Report{
			Raw:     raw,
			Command: cmd,
			RPM:     smoothed,
			At:      now,
		})
		c.lastReport = now
		res.Reported = true
	}

	c.last = res
	return res
}

// Last returns the result of the most recent Step (zero value before the first).
func (c *ControlCycle) Last() StepResult { return c.last }

// Stop drives the actuator to {Stopped, 0}. Used on shutdown.
//
// The magnitude goes to zero before the direction pin drops, so a motor
// running forward is never driven in reverse on the way down.
func (c *ControlCycle) Stop() {
	c.actuator.SetMagnitude(0)
	c.actuator.SetDirection(false)
}

// Mapper returns the cycle's command mapper.
func (c *ControlCycle) Mapper() CommandMapper { return c.mapper }
