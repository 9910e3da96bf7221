package motor

import "fmt"

// Direction is the commanded rotation direction.
type Direction int

const (
	Stopped Direction = iota
	Forward
	Reverse
)

// String returns the short label used in report lines.
func (d Direction) String() string {
	switch d {
	case Forward:
		return "FWD"
	case Reverse:
		return "REV"
	case Stopped:
		return "STOP"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Sign maps Forward/Stopped/Reverse to +1/0/-1.
func (d Direction) Sign() int {
	switch d {
	case Forward:
		return 1
	case Reverse:
		return -1
	default:
		return 0
	}
}

// ActuationCommand is the per-cycle output of CommandMapper.
type ActuationCommand struct {
	Direction Direction `json:"direction"`
	Magnitude uint8     `json:"magnitude"` // 0 (off) .. 255 (full)
}

func (c ActuationCommand) String() string {
	return fmt.Sprintf("%s/%d", c.Direction, c.Magnitude)
}

// MarshalText lets Direction appear as its label in JSON payloads.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText accepts the labels produced by MarshalText.
func (d *Direction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "FWD":
		*d = Forward
	case "REV":
		*d = Reverse
	case "STOP":
		*d = Stopped
	default:
		return fmt.Errorf("unknown direction %q", string(b))
	}
	return nil
}
