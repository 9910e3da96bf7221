package main

import (
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"go.bug.st/serial"

	"motorctl/internal/motor"
)

// openSerialReporter opens the UART and returns a line reporter on it plus the
// port so the caller can close it on shutdown.
//
// Write failures are logged, never retried: a missing console must not stall
// the control loop.
func openSerialReporter(cfg SerialConfig, logger *slog.Logger) (*motor.LineReporter, io.Closer, error) {
	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.Baud})
	if err != nil {
		return nil, nil, fmt.Errorf("open serial port %s: %w", cfg.Port, err)
	}

	logger.Info("serial reporter ready", "port", cfg.Port, "baud", cfg.Baud)
	return motor.NewLineReporter(port, serialErrorLogger(cfg.Port, logger)), port, nil
}

// serialErrorLogger logs the first failure and then every 50th, so an
// unplugged adapter does not flood the log at the report rate.
func serialErrorLogger(port string, logger *slog.Logger) func(error) {
	var failures atomic.Uint64
	return func(err error) {
		n := failures.Add(1)
		if n == 1 || n%50 == 0 {
			logger.Warn("serial report write failed", "port", port, "failures", n, "error", err)
		}
	}
}
