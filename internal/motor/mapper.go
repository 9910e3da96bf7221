package motor

// CommandMapper converts a raw potentiometer sample into an ActuationCommand.
// It is a pure function of its dead zone and the sample.
type CommandMapper struct {
	deadZone int
}

// NewCommandMapper returns a mapper with the given dead zone (raw counts either
// side of center).
func NewCommandMapper(deadZone int) CommandMapper {
	if deadZone < 0 {
		deadZone = 0
	}
	if deadZone >= rawSpan {
		deadZone = rawSpan - 1
	}
	return CommandMapper{deadZone: deadZone}
}

// DeadZone returns the configured dead zone.
func (m CommandMapper) DeadZone() int { return m.deadZone }

// MapInput maps raw (0..1023) to a direction and a 0..255 magnitude.
//
// |raw-512| <= deadZone is Stopped. Beyond that, |delta| in [deadZone, 511] is
// rescaled onto [0, 255]; the extremes (|delta| == 512) are clamped to 255.
// The first step past the dead zone always yields a non-zero magnitude.
func (m CommandMapper) MapInput(raw uint16) ActuationCommand {
	delta := int(raw) - RawCenter
	abs := delta
	if abs < 0 {
		abs = -abs
	}
	if abs <= m.deadZone {
		return ActuationCommand{Direction: Stopped}
	}

	mag := linearMap(abs, m.deadZone, rawSpan, 0, MagnitudeMax)
	if mag > MagnitudeMax {
		mag = MagnitudeMax
	}
	if mag < 0 {
		mag = 0
	}

	dir := Reverse
	if delta > 0 {
		dir = Forward
	}
	return ActuationCommand{Direction: dir, Magnitude: uint8(mag)}
}

// linearMap rescales v from [inLo, inHi] to [outLo, outHi], rounding to the
// nearest integer. Callers pass inHi > inLo and v >= inLo.
func linearMap(v, inLo, inHi, outLo, outHi int) int {
	num := (v - inLo) * (outHi - outLo)
	den := inHi - inLo
	return outLo + (num+den/2)/den
}
