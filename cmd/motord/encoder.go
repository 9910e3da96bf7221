package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
//
// The timeval fields are kernel longs: 24-byte records on 64-bit kernels,
// 16-byte records on 32-bit ones (kernelLong is set per GOARCH).
type inputEvent struct {
	Sec   kernelLong
	Usec  kernelLong
	Type  uint16
	Code  uint16
	Value int32
}

var inputEventSize = binary.Size(inputEvent{})

// edgeFilter decides which input events are encoder edges.
//
// Both encoder channels are usually exposed as two gpio-keys buttons, so every
// press and release is one transition. The rotary-encoder overlay reports
// EV_REL steps instead; any non-zero step counts as one edge. Channel identity
// is deliberately ignored.
type edgeFilter struct {
	codes map[uint16]struct{} // empty: accept every code
}

func newEdgeFilter(codes []uint16) edgeFilter {
	f := edgeFilter{}
	if len(codes) > 0 {
		f.codes = make(map[uint16]struct{}, len(codes))
		for _, c := range codes {
			f.codes[c] = struct{}{}
		}
	}
	return f
}

// edgeMicros returns the event timestamp in microseconds if ev is an edge.
func (f edgeFilter) edgeMicros(ev inputEvent) (uint64, bool) {
	switch ev.Type {
	case EV_KEY:
		if ev.Value != evValuePress && ev.Value != evValueRelease {
			return 0, false // autorepeat is not a transition
		}
	case EV_REL:
		if ev.Value == 0 {
			return 0, false
		}
	default:
		return 0, false
	}
	if f.codes != nil {
		if _, ok := f.codes[ev.Code]; !ok {
			return 0, false
		}
	}
	if ev.Sec < 0 || ev.Usec < 0 {
		return 0, false
	}
	return uint64(ev.Sec)*1_000_000 + uint64(ev.Usec), true
}

// decodeEdges parses every whole input_event in buf and calls onEdge for edges.
// It returns the number of edges delivered.
func decodeEdges(buf []byte, f edgeFilter, onEdge func(uint64)) int {
	n := 0
	reader := bytes.NewReader(nil)
	for len(buf) >= inputEventSize {
		reader.Reset(buf[:inputEventSize])
		buf = buf[inputEventSize:]

		var ev inputEvent
		if err := binary.Read(reader, binary.LittleEndian, &ev); err != nil {
			// Skip malformed events
			continue
		}
		if ts, ok := f.edgeMicros(ev); ok {
			onEdge(ts)
			n++
		}
	}
	return n
}

// readEdges reads input events from r until it fails, delivering edges.
// It is the blocking single-device variant used by tests and by replaying
// recorded event dumps.
func readEdges(r io.Reader, f edgeFilter, onEdge func(uint64)) error {
	buf := make([]byte, inputEventSize)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read input event: %w", err)
		}
		decodeEdges(buf, f, onEdge)
	}
}
