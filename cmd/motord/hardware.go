package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"motorctl/internal/motor"
)

var errUnknownBackend = errors.New("unknown hardware backend")

// Backend is a set of hardware collaborators for the control core.
type Backend interface {
	Name() string
	Input() motor.AnalogInput
	Actuator() motor.Actuator

	// RunEdges delivers encoder edges to onEdge from its own goroutine until
	// ctx is canceled or the source fails.
	RunEdges(ctx context.Context, onEdge func(nowMicros uint64)) error

	Close() error
}

// openBackend builds the backend named in cfg.Hardware.Backend.
func openBackend(cfg Config, logger *slog.Logger) (Backend, error) {
	switch cfg.Hardware.Backend {
	case BackendRPIO:
		return openRPIOBackend(cfg.Hardware, cfg.Encoder, logger)
	case BackendSim:
		return newSimBackend(cfg.Simulator, cfg.Control.StepsPerRevolution, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownBackend, cfg.Hardware.Backend)
	}
}

// OverrideInput sits in front of a backend input so the IPC surface can pin
// the raw sample. It is written from IPC goroutines and read by the control
// loop, hence the atomic.
type OverrideInput struct {
	base     motor.AnalogInput
	override atomic.Int32 // -1: no override
}

func NewOverrideInput(base motor.AnalogInput) *OverrideInput {
	o := &OverrideInput{base: base}
	o.override.Store(-1)
	return o
}

func (o *OverrideInput) ReadRaw() uint16 {
	if v := o.override.Load(); v >= 0 {
		return uint16(v)
	}
	return o.base.ReadRaw()
}

// Set pins the sample to raw (clamped to the converter range).
func (o *OverrideInput) Set(raw int) {
	if raw < 0 {
		raw = 0
	}
	if raw > motor.RawMax {
		raw = motor.RawMax
	}
	o.override.Store(int32(raw))
}

// Clear returns control to the backend input.
func (o *OverrideInput) Clear() { o.override.Store(-1) }

// Overridden reports whether a pinned value is active.
func (o *OverrideInput) Overridden() bool { return o.override.Load() >= 0 }
