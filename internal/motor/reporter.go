package motor

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Report is the state handed to a Reporter.
type Report struct {
	Raw     uint16
	Command ActuationCommand
	RPM     float64 // smoothed
	At      time.Time
}

// Reporter consumes reports. Implementations must not block the control loop
// for long and do not retry failures.
type Reporter interface {
	Report(r Report)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Report)

func (f ReporterFunc) Report(r Report) { f(r) }

// FormatLine renders r as a single human-readable line without newline.
func FormatLine(r Report) string {
	return fmt.Sprintf("Pot: %d | PWM: %d | Dir: %s | RPM: %.1f",
		r.Raw, r.Command.Magnitude, r.Command.Direction, r.RPM)
}

// LineReporter writes one formatted line per report to w.
type LineReporter struct {
	mu      sync.Mutex
	w       io.Writer
	onError func(error)
}

// NewLineReporter returns a reporter writing to w. onError (optional) is called
// with write failures; nothing is retried.
func NewLineReporter(w io.Writer, onError func(error)) *LineReporter {
	return &LineReporter{w: w, onError: onError}
}

func (l *LineReporter) Report(r Report) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := io.WriteString(l.w, FormatLine(r)+"\n"); err != nil && l.onError != nil {
		l.onError(err)
	}
}

// MultiReporter fans a report out to every non-nil reporter in order.
type MultiReporter []Reporter

func (m MultiReporter) Report(r Report) {
	for _, rep := range m {
		if rep != nil {
			rep.Report(r)
		}
	}
}
