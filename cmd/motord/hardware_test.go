package main

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"motorctl/internal/motor"
)

type constInput uint16

func (c constInput) ReadRaw() uint16 { return uint16(c) }

func TestOverrideInput_SetAndClear(t *testing.T) {
	o := NewOverrideInput(constInput(512))
	if o.Overridden() || o.ReadRaw() != 512 {
		t.Fatalf("expected passthrough 512, got %d (overridden=%v)", o.ReadRaw(), o.Overridden())
	}

	o.Set(900)
	if !o.Overridden() || o.ReadRaw() != 900 {
		t.Errorf("expected override 900, got %d", o.ReadRaw())
	}

	o.Set(0)
	if o.ReadRaw() != 0 {
		t.Errorf("expected override 0, got %d", o.ReadRaw())
	}

	o.Clear()
	if o.Overridden() || o.ReadRaw() != 512 {
		t.Errorf("expected passthrough after clear, got %d", o.ReadRaw())
	}
}

func TestOverrideInput_SetClamps(t *testing.T) {
	o := NewOverrideInput(constInput(512))
	o.Set(5000)
	if o.ReadRaw() != motor.RawMax {
		t.Errorf("expected clamp to %d, got %d", motor.RawMax, o.ReadRaw())
	}
	o.Set(-3)
	if o.ReadRaw() != 0 {
		t.Errorf("expected clamp to 0, got %d", o.ReadRaw())
	}
}

func TestMCP3008Value(t *testing.T) {
	tests := []struct {
		rx   [3]byte
		want uint16
	}{
		{[3]byte{0xff, 0x03, 0xff}, 1023},
		{[3]byte{0x00, 0x02, 0x00}, 512},
		{[3]byte{0x00, 0xfc, 0x00}, 0}, // upper bits of byte 1 are undefined
		{[3]byte{0x00, 0x01, 0x2c}, 300},
	}
	for _, tt := range tests {
		if got := mcp3008Value(tt.rx); got != tt.want {
			t.Errorf("mcp3008Value(%x) = %d, want %d", tt.rx, got, tt.want)
		}
	}
}

func TestSimEdgeInterval(t *testing.T) {
	if d := simEdgeInterval(0, 600, 20); d != 0 {
		t.Errorf("expected stopped motor, got %v", d)
	}
	// Full magnitude at 600 RPM, 20 edges/rev: 200 edges/s -> 5ms.
	if d := simEdgeInterval(255, 600, 20); d != 5*time.Millisecond {
		t.Errorf("expected 5ms, got %v", d)
	}
	// Bounded from below.
	if d := simEdgeInterval(255, 1e9, 1000); d != simMinEdgeInterval {
		t.Errorf("expected floor %v, got %v", simMinEdgeInterval, d)
	}
}

func TestSimBackend_ImplementsCollaborators(t *testing.T) {
	b := newSimBackend(SimulatorConfig{InitialRaw: 700, MaxRPM: 600}, 20, slog.Default())
	if got := b.Input().ReadRaw(); got != 700 {
		t.Errorf("initial raw = %d, want 700", got)
	}
	b.SetRaw(100)
	if got := b.Input().ReadRaw(); got != 100 {
		t.Errorf("raw = %d, want 100", got)
	}
	b.Actuator().SetMagnitude(42)
	b.Actuator().SetDirection(true)
	if b.Magnitude() != 42 || !b.forward.Load() {
		t.Errorf("actuator state not recorded")
	}
}

func TestSimBackend_RunEdges_FollowsMagnitude(t *testing.T) {
	b := newSimBackend(SimulatorConfig{InitialRaw: 512, MaxRPM: 600}, 20, slog.Default())
	timer := motor.NewEdgeTimer(20)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.RunEdges(ctx, timer.OnEdge) }()

	// Stopped: no edges.
	time.Sleep(50 * time.Millisecond)
	if n := timer.Edges(); n != 0 {
		t.Fatalf("expected no edges while stopped, got %d", n)
	}

	b.SetMagnitude(255)
	waitUntil(t, 2*time.Second, func() bool { return timer.Edges() >= 5 }, "simulated edges did not arrive")
	if timer.Rate() <= 0 {
		t.Errorf("expected a positive rate, got %v", timer.Rate())
	}

	// Stop the motor: edges cease and the rate stays where it was.
	b.SetMagnitude(0)
	time.Sleep(30 * time.Millisecond)
	edges := timer.Edges()
	rate := timer.Rate()
	time.Sleep(60 * time.Millisecond)
	if timer.Edges() != edges {
		t.Errorf("edges kept arriving after stop: %d -> %d", edges, timer.Edges())
	}
	if timer.Rate() != rate {
		t.Errorf("rate changed without edges: %v -> %v", rate, timer.Rate())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RunEdges returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("RunEdges did not stop")
	}
}

func TestOpenBackend_Unknown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hardware.Backend = "arduino"
	_, err := openBackend(cfg, slog.Default())
	if !errors.Is(err, errUnknownBackend) {
		t.Errorf("expected errUnknownBackend, got %v", err)
	}
}

func TestOpenBackend_Sim(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hardware.Backend = BackendSim
	b, err := openBackend(cfg, slog.Default())
	if err != nil {
		t.Fatalf("openBackend: %v", err)
	}
	defer b.Close()
	if b.Name() != BackendSim {
		t.Errorf("name = %q, want sim", b.Name())
	}
}
