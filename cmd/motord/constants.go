package main

import "time"

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_SYN = 0x00
	EV_KEY = 0x01
	EV_REL = 0x02
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Daemon defaults
const (
	defaultUpdateHz      = 0 // Control loop frequency (Hz); 0 runs cycles back-to-back
	defaultSocketPath    = "/tmp/motorctl.sock"
	defaultHTTPPort      = 3002
	defaultWSPath        = "/ws/telemetry"
	defaultMetricsPath   = "/metrics"
	defaultEncoderDevice = "/dev/input/event0"
	defaultSerialPort    = "/dev/ttyUSB0"
	defaultSerialBaud    = 115200
	defaultLogLevel      = "info"
	maxUpdateHz          = 100000 // Upper bound accepted for control.update_hz
)

const (
	statusRequestTimeout = 1 * time.Second // Wait for the loop to answer a status request
	httpShutdownTimeout  = 3 * time.Second // Graceful HTTP shutdown budget
	telemetryCoalesce    = 50 * time.Millisecond
)

// Raspberry Pi hardware defaults (BCM numbering)
const (
	defaultPWMPin        = 18      // PWM0 on the 40-pin header
	defaultPWMFreqHz     = 1000    // Motor PWM carrier (Hz)
	defaultDirPin        = 23      // Direction GPIO
	defaultADCChipSelect = 0       // SPI0 CE0
	defaultADCChannel    = 0       // MCP3008 input channel
	defaultADCSpeedHz    = 1000000 // SPI clock (Hz)
)

// Simulator defaults
const (
	defaultSimInitialRaw = 512 // Centered potentiometer
	defaultSimMaxRPM     = 600 // Free-running speed at full magnitude
)
