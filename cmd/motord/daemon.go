package main

import (
	"context"
	"log/slog"
	"time"

	"motorctl/internal/motor"
)

// ============================================================================
// Daemon loop
// ============================================================================
//
// The loop is the only goroutine that touches the ControlCycle. Everything
// else talks to it through channels:
//   - StatusRequest: IPC / websocket ask for a snapshot (reply channel)
//   - Broadcast:     the loop publishes telemetry and direction changes
//
// The edge context never goes through here; it writes straight into the
// EdgeTimer atomics.
// ============================================================================

// Status is a coherent snapshot of the controller, safe to hand to other goroutines.
type Status struct {
	Raw             uint16                 `json:"raw"`
	InputOverridden bool                   `json:"input_overridden"`
	Command         motor.ActuationCommand `json:"command"`
	RateRPM         float64                `json:"rate_rpm"`
	SmoothedRPM     float64                `json:"smoothed_rpm"`
	EncoderEdges    uint64                 `json:"encoder_edges"`
	Cycles          uint64                 `json:"cycles"`
	Backend         string                 `json:"backend"`
	At              time.Time              `json:"at"`
}

// StatusRequest asks the loop for a Status. Reply must be buffered (cap >= 1).
type StatusRequest struct {
	Reply chan<- Status
}

// Broadcast is a marker interface for loop-emitted state changes.
type Broadcast interface {
	broadcastMarker()
}

// BroadcastTelemetry is emitted each time the cycle produced a report.
type BroadcastTelemetry struct {
	Status Status
}

func (BroadcastTelemetry) broadcastMarker() {}

// BroadcastDirectionChanged is emitted when the commanded direction changes.
type BroadcastDirectionChanged struct {
	From motor.Direction
	To   motor.Direction
	At   time.Time
}

func (BroadcastDirectionChanged) broadcastMarker() {}

// daemonDeps are the pieces runDaemon drives.
type daemonDeps struct {
	Cycle   *motor.ControlCycle
	Timer   *motor.EdgeTimer
	Input   *OverrideInput // optional
	Backend string

	Requests   <-chan StatusRequest
	Broadcasts chan<- Broadcast // optional; sends never block

	// Observe is called after every step (metrics). Optional.
	Observe func(motor.StepResult)
}

// runDaemon runs control cycles until ctx is canceled, then drives the motor
// to a stop.
//
// updateHz > 0 paces cycles with a ticker. updateHz == 0 runs them
// back-to-back, checking for cancellation and requests between iterations.
func runDaemon(ctx context.Context, d daemonDeps, updateHz int, logger *slog.Logger) {
	if d.Cycle == nil || d.Timer == nil {
		logger.Error("daemon missing control cycle or edge timer")
		return
	}
	defer d.Cycle.Stop()

	var (
		cycles  uint64
		lastDir = motor.Stopped
	)

	snapshot := func(res motor.StepResult) Status {
		s := Status{
			Raw:          res.Raw,
			Command:      res.Command,
			RateRPM:      res.Rate,
			SmoothedRPM:  res.Smoothed,
			EncoderEdges: d.Timer.Edges(),
			Cycles:       cycles,
			Backend:      d.Backend,
			At:           res.At,
		}
		if d.Input != nil {
			s.InputOverridden = d.Input.Overridden()
		}
		return s
	}

	publish := func(b Broadcast) {
		if d.Broadcasts == nil {
			return
		}
		select {
		case d.Broadcasts <- b:
		default:
			logger.Debug("broadcast queue full, dropping", "type", broadcastType(b))
		}
	}

	step := func() {
		res := d.Cycle.Step()
		cycles++

		if d.Observe != nil {
			d.Observe(res)
		}
		if res.Command.Direction != lastDir {
			logger.Debug("direction changed", "from", lastDir, "to", res.Command.Direction, "raw", res.Raw)
			publish(BroadcastDirectionChanged{From: lastDir, To: res.Command.Direction, At: res.At})
			lastDir = res.Command.Direction
		}
		if res.Reported {
			publish(BroadcastTelemetry{Status: snapshot(res)})
		}
	}

	reply := func(req StatusRequest) {
		select {
		case req.Reply <- snapshot(d.Cycle.Last()):
		default:
			logger.Warn("status reply channel full, dropping")
		}
	}

	logger.Info("control loop starting", "update_hz", updateHz, "backend", d.Backend)

	if updateHz <= 0 {
		for {
			select {
			case <-ctx.Done():
				logger.Info("control loop stopping (context canceled)", "cycles", cycles)
				return
			case req := <-d.Requests:
				reply(req)
			default:
				step()
			}
		}
	}

	ticker := time.NewTicker(time.Second / time.Duration(updateHz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("control loop stopping (context canceled)", "cycles", cycles)
			return
		case req := <-d.Requests:
			reply(req)
		case <-ticker.C:
			step()
		}
	}
}

func broadcastType(b Broadcast) string {
	switch b.(type) {
	case BroadcastTelemetry:
		return "telemetry"
	case BroadcastDirectionChanged:
		return "direction_changed"
	default:
		return "unknown"
	}
}

// requestStatus asks the loop for a snapshot, giving up after timeout or when
// ctx ends.
func requestStatus(ctx context.Context, requests chan<- StatusRequest, timeout time.Duration) (Status, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply := make(chan Status, 1)
	select {
	case requests <- StatusRequest{Reply: reply}:
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}

	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}
