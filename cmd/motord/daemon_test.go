package main

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"motorctl/internal/motor"
)

type daemonFixture struct {
	sim        *simBackend
	input      *OverrideInput
	timer      *motor.EdgeTimer
	requests   chan StatusRequest
	broadcasts chan Broadcast
	observed   chan motor.StepResult
	cancel     context.CancelFunc
	done       chan struct{}
}

func startDaemon(t *testing.T, updateHz int) *daemonFixture {
	t.Helper()

	sim := newSimBackend(SimulatorConfig{InitialRaw: motor.RawCenter, MaxRPM: 600}, motor.DefaultStepsPerRevolution, slog.Default())
	input := NewOverrideInput(sim.Input())
	timer := motor.NewEdgeTimer(motor.DefaultStepsPerRevolution)

	p := motor.DefaultParams()
	p.ReportInterval = 20 * time.Millisecond

	cycle, err := motor.NewControlCycle(p, motor.CycleDeps{
		Input:    input,
		Actuator: sim.Actuator(),
		Rate:     timer,
	})
	if err != nil {
		t.Fatalf("NewControlCycle: %v", err)
	}

	f := &daemonFixture{
		sim:        sim,
		input:      input,
		timer:      timer,
		requests:   make(chan StatusRequest),
		broadcasts: make(chan Broadcast, 1024),
		observed:   make(chan motor.StepResult, 1),
		done:       make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel

	go func() {
		defer close(f.done)
		runDaemon(ctx, daemonDeps{
			Cycle:      cycle,
			Timer:      timer,
			Input:      input,
			Backend:    sim.Name(),
			Requests:   f.requests,
			Broadcasts: f.broadcasts,
			Observe: func(res motor.StepResult) {
				select {
				case f.observed <- res:
				default:
				}
			},
		}, updateHz, slog.Default())
	}()

	t.Cleanup(f.stop)
	return f
}

func (f *daemonFixture) stop() {
	f.cancel()
	<-f.done
}

func (f *daemonFixture) status(t *testing.T) Status {
	t.Helper()
	s, err := requestStatus(context.Background(), f.requests, time.Second)
	if err != nil {
		t.Fatalf("requestStatus: %v", err)
	}
	return s
}

// nextBroadcast returns the first broadcast of type T within the timeout.
func nextBroadcast[T Broadcast](t *testing.T, ch <-chan Broadcast, timeout time.Duration) T {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case b := <-ch:
			if v, ok := b.(T); ok {
				return v
			}
		case <-deadline:
			var zero T
			t.Fatalf("timeout waiting for %T", zero)
			return zero
		}
	}
}

func TestRunDaemon_StatusReflectsInput(t *testing.T) {
	f := startDaemon(t, 1000)

	f.input.Set(900)
	waitUntil(t, time.Second, func() bool { return f.status(t).Raw == 900 }, "status never saw raw 900")

	s := f.status(t)
	if !s.InputOverridden {
		t.Error("expected input_overridden")
	}
	if s.Command.Direction != motor.Forward || s.Command.Magnitude == 0 {
		t.Errorf("command = %v, want forward with magnitude", s.Command)
	}
	if s.Backend != BackendSim {
		t.Errorf("backend = %q", s.Backend)
	}
	if s.Cycles == 0 {
		t.Error("expected cycles > 0")
	}

	// The actuator saw the command.
	if f.sim.Magnitude() != s.Command.Magnitude || !f.sim.forward.Load() {
		t.Errorf("sim actuator = (%v, %d), want (true, %d)", f.sim.forward.Load(), f.sim.Magnitude(), s.Command.Magnitude)
	}
}

func TestRunDaemon_BroadcastsDirectionChanges(t *testing.T) {
	f := startDaemon(t, 1000)

	f.input.Set(100)
	ev := nextBroadcast[BroadcastDirectionChanged](t, f.broadcasts, time.Second)
	if ev.From != motor.Stopped || ev.To != motor.Reverse {
		t.Errorf("direction change = %v -> %v, want STOP -> REV", ev.From, ev.To)
	}

	f.input.Set(motor.RawCenter)
	ev = nextBroadcast[BroadcastDirectionChanged](t, f.broadcasts, time.Second)
	if ev.From != motor.Reverse || ev.To != motor.Stopped {
		t.Errorf("direction change = %v -> %v, want REV -> STOP", ev.From, ev.To)
	}
}

func TestRunDaemon_TelemetryFollowsReports(t *testing.T) {
	f := startDaemon(t, 1000)

	// 5000us between edges at 20 steps/rev is 600 RPM.
	for i := uint64(1); i <= 2; i++ {
		f.timer.OnEdge(i * 5000)
	}

	waitUntil(t, 2*time.Second, func() bool {
		select {
		case b := <-f.broadcasts:
			tel, ok := b.(BroadcastTelemetry)
			return ok && tel.Status.RateRPM == 600 && tel.Status.SmoothedRPM == 600
		default:
			return false
		}
	}, "no telemetry with a settled 600 RPM")
}

func TestRunDaemon_FreeRunning(t *testing.T) {
	f := startDaemon(t, 0)

	select {
	case <-f.observed:
	case <-time.After(time.Second):
		t.Fatal("free-running loop produced no steps")
	}
	if s := f.status(t); s.Cycles == 0 {
		t.Error("expected cycles > 0")
	}
}

func TestRunDaemon_StopsMotorOnCancel(t *testing.T) {
	f := startDaemon(t, 1000)

	f.input.Set(motor.RawMax)
	waitUntil(t, time.Second, func() bool { return f.sim.Magnitude() == motor.MagnitudeMax }, "motor never reached full magnitude")

	f.stop()

	if f.sim.Magnitude() != 0 || f.sim.forward.Load() {
		t.Errorf("after stop: magnitude=%d forward=%v, want 0/false", f.sim.Magnitude(), f.sim.forward.Load())
	}
}

func TestRequestStatus_TimesOut(t *testing.T) {
	_, err := requestStatus(context.Background(), make(chan StatusRequest), 10*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}
