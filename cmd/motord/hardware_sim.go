package main

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"motorctl/internal/motor"
)

// simIdlePoll is how often a stopped simulated motor checks for a new command.
const simIdlePoll = 10 * time.Millisecond

// simMinEdgeInterval bounds the simulated edge rate.
const simMinEdgeInterval = 20 * time.Microsecond

// simBackend is an in-process motor: a settable potentiometer, an actuator
// that records the command, and an edge generator whose speed follows the
// commanded magnitude. A stopped motor emits no edges, so the last measured
// rate sticks exactly as it does on hardware.
type simBackend struct {
	raw       atomic.Uint32
	magnitude atomic.Uint32
	forward   atomic.Bool

	maxRPM      float64
	stepsPerRev int
	start       time.Time
	logger      *slog.Logger
}

func newSimBackend(cfg SimulatorConfig, stepsPerRev int, logger *slog.Logger) *simBackend {
	b := &simBackend{
		maxRPM:      cfg.MaxRPM,
		stepsPerRev: stepsPerRev,
		start:       time.Now(),
		logger:      logger,
	}
	b.raw.Store(uint32(cfg.InitialRaw))
	logger.Info("sim backend ready", "initial_raw", cfg.InitialRaw, "max_rpm", cfg.MaxRPM)
	return b
}

func (b *simBackend) Name() string             { return BackendSim }
func (b *simBackend) Input() motor.AnalogInput { return b }
func (b *simBackend) Actuator() motor.Actuator { return b }
func (b *simBackend) Close() error             { return nil }

// ReadRaw implements motor.AnalogInput.
func (b *simBackend) ReadRaw() uint16 { return uint16(b.raw.Load()) }

// SetRaw moves the simulated potentiometer.
func (b *simBackend) SetRaw(raw uint16) { b.raw.Store(uint32(raw)) }

// SetDirection implements motor.Actuator.
func (b *simBackend) SetDirection(forward bool) { b.forward.Store(forward) }

// SetMagnitude implements motor.Actuator.
func (b *simBackend) SetMagnitude(magnitude uint8) { b.magnitude.Store(uint32(magnitude)) }

// Magnitude returns the last commanded magnitude.
func (b *simBackend) Magnitude() uint8 { return uint8(b.magnitude.Load()) }

// simEdgeInterval is the time between encoder edges when the motor spins at
// magnitude/255 of maxRPM. Zero means the motor is stopped.
func simEdgeInterval(magnitude uint8, maxRPM float64, stepsPerRev int) time.Duration {
	if magnitude == 0 || maxRPM <= 0 || stepsPerRev <= 0 {
		return 0
	}
	rpm := float64(magnitude) / motor.MagnitudeMax * maxRPM
	edgesPerSec := rpm / 60 * float64(stepsPerRev)
	d := time.Duration(math.Round(float64(time.Second) / edgesPerSec))
	if d < simMinEdgeInterval {
		d = simMinEdgeInterval
	}
	return d
}

// micros returns the monotonic time since the backend started, offset by one
// so the first edge is never at timestamp 0.
func (b *simBackend) micros() uint64 {
	return uint64(time.Since(b.start).Microseconds()) + 1
}

func (b *simBackend) RunEdges(ctx context.Context, onEdge func(uint64)) error {
	timer := time.NewTimer(simIdlePoll)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		d := simEdgeInterval(b.Magnitude(), b.maxRPM, b.stepsPerRev)
		if d == 0 {
			timer.Reset(simIdlePoll)
			continue
		}
		onEdge(b.micros())
		timer.Reset(d)
	}
}
