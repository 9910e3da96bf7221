package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"motorctl/internal/motor"
)

// Config is the top-level YAML configuration for the motord daemon.
//
// Defaults and validation live here so the rest of the code can assume a
// well-formed config. Precedence: DefaultConfig < file < flag overrides.
type Config struct {
	// Control core tuning
	Control ControlConfig `yaml:"control"`

	// Hardware backend selection and pin assignment
	Hardware HardwareConfig `yaml:"hardware"`

	// Encoder edge source (Linux input devices)
	Encoder EncoderConfig `yaml:"encoder"`

	// In-process motor model used by the "sim" backend
	Simulator SimulatorConfig `yaml:"simulator"`

	// Serial line reporter
	Serial SerialConfig `yaml:"serial"`

	// Local control socket
	IPC IPCConfig `yaml:"ipc"`

	// Telemetry websocket + metrics listener
	HTTP HTTPConfig `yaml:"http"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type ControlConfig struct {
	DeadZone            int     `yaml:"dead_zone"`
	StepsPerRevolution  int     `yaml:"steps_per_revolution"`
	MaxRPM              float64 `yaml:"max_rpm"`
	SmoothingWindowSize int     `yaml:"smoothing_window_size"`
	ReportIntervalMS    int     `yaml:"report_interval_ms"`
	UpdateHz            int     `yaml:"update_hz"` // 0 = run cycles back-to-back
}

// Backend names for hardware.backend
const (
	BackendRPIO = "rpio"
	BackendSim  = "sim"
)

type HardwareConfig struct {
	Backend       string `yaml:"backend"`
	PWMPin        int    `yaml:"pwm_pin"`
	PWMFreqHz     int    `yaml:"pwm_freq_hz"`
	DirPin        int    `yaml:"dir_pin"`
	ADCChipSelect int    `yaml:"adc_chip_select"`
	ADCChannel    int    `yaml:"adc_channel"`
	ADCSpeedHz    int    `yaml:"adc_spi_speed_hz"`
}

type EncoderConfig struct {
	Devices []string `yaml:"devices"`
	Codes   []uint16 `yaml:"codes,omitempty"` // empty = every key/rel code counts
}

type SimulatorConfig struct {
	InitialRaw int     `yaml:"initial_raw"`
	MaxRPM     float64 `yaml:"max_rpm"`
}

type SerialConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
	Baud    int    `yaml:"baud"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type HTTPConfig struct {
	Port        int    `yaml:"port"`
	WSPath      string `yaml:"ws_path"`
	MetricsPath string `yaml:"metrics_path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	return Config{
		Control: ControlConfig{
			DeadZone:            motor.DefaultDeadZone,
			StepsPerRevolution:  motor.DefaultStepsPerRevolution,
			MaxRPM:              motor.DefaultMaxRPM,
			SmoothingWindowSize: motor.DefaultSmoothingWindowSize,
			ReportIntervalMS:    motor.DefaultReportIntervalMS,
			UpdateHz:            defaultUpdateHz,
		},
		Hardware: HardwareConfig{
			Backend:       BackendRPIO,
			PWMPin:        defaultPWMPin,
			PWMFreqHz:     defaultPWMFreqHz,
			DirPin:        defaultDirPin,
			ADCChipSelect: defaultADCChipSelect,
			ADCChannel:    defaultADCChannel,
			ADCSpeedHz:    defaultADCSpeedHz,
		},
		Encoder: EncoderConfig{
			Devices: []string{defaultEncoderDevice},
		},
		Simulator: SimulatorConfig{
			InitialRaw: defaultSimInitialRaw,
			MaxRPM:     defaultSimMaxRPM,
		},
		Serial: SerialConfig{
			Enabled: false,
			Port:    defaultSerialPort,
			Baud:    defaultSerialBaud,
		},
		IPC: IPCConfig{
			SocketPath: defaultSocketPath,
		},
		HTTP: HTTPConfig{
			Port:        defaultHTTPPort,
			WSPath:      defaultWSPath,
			MetricsPath: defaultMetricsPath,
		},
		Logging: LoggingConfig{
			Level: defaultLogLevel,
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return parseConfig(b)
}

func parseConfig(b []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document. Decoding into a
	// Node skips the KnownFields check, so any second document is caught.
	var extra yaml.Node
	if err := dec.Decode(&extra); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides carries flag values that were explicitly set on the command line.
// A nil pointer means "not set"; a non-nil pointer is applied even if it is a zero value.
type FlagOverrides struct {
	DeadZone            *int
	StepsPerRevolution  *int
	MaxRPM              *float64
	SmoothingWindowSize *int
	ReportIntervalMS    *int
	UpdateHz            *int

	Backend *string
	PWMPin  *int
	DirPin  *int

	EncoderDevice *string

	SimInitialRaw *int
	SimMaxRPM     *float64

	SerialPort *string
	SerialBaud *int

	IPCSocketPath *string
	HTTPPort      *int

	LogLevel *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}

	if o.DeadZone != nil {
		cfg.Control.DeadZone = *o.DeadZone
	}
	if o.StepsPerRevolution != nil {
		cfg.Control.StepsPerRevolution = *o.StepsPerRevolution
	}
	if o.MaxRPM != nil {
		cfg.Control.MaxRPM = *o.MaxRPM
	}
	if o.SmoothingWindowSize != nil {
		cfg.Control.SmoothingWindowSize = *o.SmoothingWindowSize
	}
	if o.ReportIntervalMS != nil {
		cfg.Control.ReportIntervalMS = *o.ReportIntervalMS
	}
	if o.UpdateHz != nil {
		cfg.Control.UpdateHz = *o.UpdateHz
	}

	if o.Backend != nil {
		cfg.Hardware.Backend = *o.Backend
	}
	if o.PWMPin != nil {
		cfg.Hardware.PWMPin = *o.PWMPin
	}
	if o.DirPin != nil {
		cfg.Hardware.DirPin = *o.DirPin
	}

	if o.EncoderDevice != nil {
		cfg.Encoder.Devices = []string{*o.EncoderDevice}
	}

	if o.SimInitialRaw != nil {
		cfg.Simulator.InitialRaw = *o.SimInitialRaw
	}
	if o.SimMaxRPM != nil {
		cfg.Simulator.MaxRPM = *o.SimMaxRPM
	}

	// Naming a serial port on the command line turns the serial reporter on.
	if o.SerialPort != nil {
		cfg.Serial.Port = *o.SerialPort
		cfg.Serial.Enabled = *o.SerialPort != ""
	}
	if o.SerialBaud != nil {
		cfg.Serial.Baud = *o.SerialBaud
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPPort != nil {
		cfg.HTTP.Port = *o.HTTPPort
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Control
	if c.Control.DeadZone < 0 || c.Control.DeadZone > 510 {
		return errors.New("control.dead_zone must be between 0 and 510")
	}
	if c.Control.StepsPerRevolution <= 0 {
		return errors.New("control.steps_per_revolution must be > 0")
	}
	if c.Control.MaxRPM <= 0 {
		return errors.New("control.max_rpm must be > 0")
	}
	if c.Control.SmoothingWindowSize <= 0 || c.Control.SmoothingWindowSize > 1024 {
		return errors.New("control.smoothing_window_size must be between 1 and 1024")
	}
	if c.Control.ReportIntervalMS < 0 {
		return errors.New("control.report_interval_ms must be >= 0")
	}
	if c.Control.UpdateHz < 0 || c.Control.UpdateHz > maxUpdateHz {
		return fmt.Errorf("control.update_hz must be between 0 and %d", maxUpdateHz)
	}

	// Hardware
	switch c.Hardware.Backend {
	case BackendRPIO:
		if c.Hardware.PWMPin < 0 || c.Hardware.PWMPin > 27 {
			return errors.New("hardware.pwm_pin must be a BCM pin between 0 and 27")
		}
		if c.Hardware.DirPin < 0 || c.Hardware.DirPin > 27 {
			return errors.New("hardware.dir_pin must be a BCM pin between 0 and 27")
		}
		if c.Hardware.PWMPin == c.Hardware.DirPin {
			return errors.New("hardware.pwm_pin and hardware.dir_pin must differ")
		}
		if c.Hardware.PWMFreqHz <= 0 {
			return errors.New("hardware.pwm_freq_hz must be > 0")
		}
		if c.Hardware.ADCChipSelect < 0 || c.Hardware.ADCChipSelect > 1 {
			return errors.New("hardware.adc_chip_select must be 0 or 1")
		}
		if c.Hardware.ADCChannel < 0 || c.Hardware.ADCChannel > 7 {
			return errors.New("hardware.adc_channel must be between 0 and 7")
		}
		if c.Hardware.ADCSpeedHz <= 0 {
			return errors.New("hardware.adc_spi_speed_hz must be > 0")
		}
		if len(c.Encoder.Devices) == 0 {
			return errors.New("encoder.devices must not be empty with the rpio backend")
		}
		for i, dev := range c.Encoder.Devices {
			if dev == "" {
				return fmt.Errorf("encoder.devices[%d] is empty", i)
			}
		}
	case BackendSim:
		if c.Simulator.InitialRaw < 0 || c.Simulator.InitialRaw > motor.RawMax {
			return fmt.Errorf("simulator.initial_raw must be between 0 and %d", motor.RawMax)
		}
		if c.Simulator.MaxRPM <= 0 {
			return errors.New("simulator.max_rpm must be > 0")
		}
	default:
		return fmt.Errorf("hardware.backend must be %q or %q", BackendRPIO, BackendSim)
	}

	// Serial
	if c.Serial.Enabled {
		if c.Serial.Port == "" {
			return errors.New("serial.enabled is true but serial.port is empty")
		}
		if c.Serial.Baud <= 0 {
			return errors.New("serial.baud must be > 0")
		}
	}

	// IPC
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	// HTTP (port 0 disables the listener)
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errors.New("http.port must be between 0 and 65535")
	}
	if c.HTTP.WSPath == "" || c.HTTP.WSPath[0] != '/' {
		return errors.New("http.ws_path must start with /")
	}
	if c.HTTP.MetricsPath == "" || c.HTTP.MetricsPath[0] != '/' {
		return errors.New("http.metrics_path must start with /")
	}
	if c.HTTP.WSPath == c.HTTP.MetricsPath {
		return errors.New("http.ws_path and http.metrics_path must differ")
	}

	// Logging
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// MotorParams converts the control section into core parameters.
func (c *Config) MotorParams() motor.Params {
	return motor.Params{
		DeadZone:            c.Control.DeadZone,
		StepsPerRevolution:  c.Control.StepsPerRevolution,
		MaxRPM:              c.Control.MaxRPM,
		SmoothingWindowSize: c.Control.SmoothingWindowSize,
		ReportInterval:      time.Duration(c.Control.ReportIntervalMS) * time.Millisecond,
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
