package motor

import (
	"math"
	"sync/atomic"
)

// EdgeTimer turns encoder edge timestamps into an instantaneous RPM estimate.
//
// OnEdge is called from the edge source (one reader goroutine per process) while
// Rate is polled by the control loop. Both the rate and the last timestamp are
// single 64-bit atomics, so a reader never sees a torn value and always sees the
// most recently stored one. Intermediate updates between polls are simply lost.
type EdgeTimer struct {
	stepsPerRev float64

	lastEdgeMicros atomic.Uint64
	rateBits       atomic.Uint64 // math.Float64bits(rpm)
	edges          atomic.Uint64
}

// NewEdgeTimer returns a timer with timestamp 0 and rate 0.
func NewEdgeTimer(stepsPerRevolution int) *EdgeTimer {
	if stepsPerRevolution <= 0 {
		stepsPerRevolution = DefaultStepsPerRevolution
	}
	return &EdgeTimer{stepsPerRev: float64(stepsPerRevolution)}
}

// OnEdge records an edge seen at nowMicros on either encoder channel.
//
// The rate is only updated when time moved forward since the previous edge;
// coincident (or out-of-order) timestamps hold the previous rate. The stored
// timestamp is always replaced.
func (t *EdgeTimer) OnEdge(nowMicros uint64) {
	t.edges.Add(1)
	last := t.lastEdgeMicros.Swap(nowMicros)
	if nowMicros <= last {
		return
	}
	dt := float64(nowMicros - last)
	rpm := (1_000_000 / dt) / t.stepsPerRev * 60
	t.rateBits.Store(math.Float64bits(rpm))
}

// Rate returns the latest instantaneous RPM. It does not decay when edges stop.
func (t *EdgeTimer) Rate() float64 {
	return math.Float64frombits(t.rateBits.Load())
}

// LastEdgeMicros returns the timestamp of the most recent edge (0 if none).
func (t *EdgeTimer) LastEdgeMicros() uint64 {
	return t.lastEdgeMicros.Load()
}

// Edges returns the number of OnEdge calls since construction.
func (t *EdgeTimer) Edges() uint64 {
	return t.edges.Load()
}
