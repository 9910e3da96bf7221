package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestDefaultConfig_MotorParamsMatchCore(t *testing.T) {
	cfg := DefaultConfig()
	p := cfg.MotorParams()
	if p.DeadZone != 20 || p.StepsPerRevolution != 20 || p.MaxRPM != 1000 || p.SmoothingWindowSize != 5 {
		t.Errorf("unexpected params %+v", p)
	}
	if p.ReportInterval != 200*time.Millisecond {
		t.Errorf("expected 200ms report interval, got %v", p.ReportInterval)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("params invalid: %v", err)
	}
}

func TestDefaultConfig_FreeRunningLoop(t *testing.T) {
	// The control loop runs cycles back-to-back unless a rate is configured.
	if hz := DefaultConfig().Control.UpdateHz; hz != 0 {
		t.Errorf("default update_hz = %d, want 0", hz)
	}
}

func TestParseConfig_OverridesDefaults(t *testing.T) {
	cfg, err := parseConfig([]byte(`
control:
  dead_zone: 30
  report_interval_ms: 500
hardware:
  backend: sim
simulator:
  max_rpm: 900
serial:
  enabled: true
  port: /dev/ttyACM0
`))
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}
	if cfg.Control.DeadZone != 30 {
		t.Errorf("dead_zone = %d, want 30", cfg.Control.DeadZone)
	}
	if cfg.Control.ReportIntervalMS != 500 {
		t.Errorf("report_interval_ms = %d, want 500", cfg.Control.ReportIntervalMS)
	}
	// Untouched keys keep defaults.
	if cfg.Control.SmoothingWindowSize != 5 {
		t.Errorf("smoothing_window_size = %d, want default 5", cfg.Control.SmoothingWindowSize)
	}
	if cfg.Hardware.Backend != BackendSim || cfg.Simulator.MaxRPM != 900 {
		t.Errorf("unexpected hardware/simulator %+v %+v", cfg.Hardware, cfg.Simulator)
	}
	if !cfg.Serial.Enabled || cfg.Serial.Port != "/dev/ttyACM0" || cfg.Serial.Baud != defaultSerialBaud {
		t.Errorf("unexpected serial %+v", cfg.Serial)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParseConfig_RejectsUnknownField(t *testing.T) {
	_, err := parseConfig([]byte("control:\n  dead_zon: 10\n"))
	if err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestParseConfig_RejectsTrailingDocument(t *testing.T) {
	_, err := parseConfig([]byte("control:\n  dead_zone: 10\n---\ncontrol:\n  dead_zone: 11\n"))
	if err == nil || !strings.Contains(err.Error(), "trailing document") {
		t.Fatalf("expected trailing document error, got %v", err)
	}
}

func TestLoadConfigFile_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "motord.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadConfigFile_Errors(t *testing.T) {
	if _, err := LoadConfigFile(""); err == nil {
		t.Errorf("expected error for empty path")
	}
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("expected error for missing file")
	}
}

func TestFlagOverrides_Apply(t *testing.T) {
	cfg := DefaultConfig()

	dz := 0
	backend := BackendSim
	port := "/dev/ttyS0"
	level := "debug"
	FlagOverrides{
		DeadZone:   &dz,
		Backend:    &backend,
		SerialPort: &port,
		LogLevel:   &level,
	}.Apply(&cfg)

	if cfg.Control.DeadZone != 0 {
		t.Errorf("zero-value override not applied: dead_zone = %d", cfg.Control.DeadZone)
	}
	if cfg.Hardware.Backend != BackendSim {
		t.Errorf("backend = %q, want sim", cfg.Hardware.Backend)
	}
	if !cfg.Serial.Enabled || cfg.Serial.Port != port {
		t.Errorf("serial override not applied: %+v", cfg.Serial)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Logging.Level)
	}
	// Unset overrides leave values alone.
	if cfg.Control.SmoothingWindowSize != 5 {
		t.Errorf("unset override changed smoothing window: %d", cfg.Control.SmoothingWindowSize)
	}

	FlagOverrides{}.Apply(nil) // must not panic
}

func TestConfig_Validate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"dead zone", func(c *Config) { c.Control.DeadZone = 511 }, "control.dead_zone"},
		{"steps", func(c *Config) { c.Control.StepsPerRevolution = 0 }, "control.steps_per_revolution"},
		{"max rpm", func(c *Config) { c.Control.MaxRPM = -1 }, "control.max_rpm"},
		{"window", func(c *Config) { c.Control.SmoothingWindowSize = 0 }, "control.smoothing_window_size"},
		{"report", func(c *Config) { c.Control.ReportIntervalMS = -1 }, "control.report_interval_ms"},
		{"update hz", func(c *Config) { c.Control.UpdateHz = -5 }, "control.update_hz"},
		{"backend", func(c *Config) { c.Hardware.Backend = "arduino" }, "hardware.backend"},
		{"same pins", func(c *Config) { c.Hardware.DirPin = c.Hardware.PWMPin }, "must differ"},
		{"adc channel", func(c *Config) { c.Hardware.ADCChannel = 8 }, "hardware.adc_channel"},
		{"no encoder", func(c *Config) { c.Encoder.Devices = nil }, "encoder.devices"},
		{"empty encoder", func(c *Config) { c.Encoder.Devices = []string{""} }, "encoder.devices[0]"},
		{"sim raw", func(c *Config) { c.Hardware.Backend = BackendSim; c.Simulator.InitialRaw = 2000 }, "simulator.initial_raw"},
		{"serial port", func(c *Config) { c.Serial.Enabled = true; c.Serial.Port = "" }, "serial.port"},
		{"socket", func(c *Config) { c.IPC.SocketPath = "" }, "ipc.socket_path"},
		{"http port", func(c *Config) { c.HTTP.Port = 70000 }, "http.port"},
		{"ws path", func(c *Config) { c.HTTP.WSPath = "ws" }, "http.ws_path"},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandPath("~/motord.yaml"); got != filepath.Join(home, "motord.yaml") {
		t.Errorf("ExpandPath(~/motord.yaml) = %q", got)
	}
	if got := ExpandPath("/etc/motord.yaml"); got != "/etc/motord.yaml" {
		t.Errorf("absolute path changed: %q", got)
	}
	if got := ExpandPath(""); got != "" {
		t.Errorf("empty path changed: %q", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{
		"error":   LogLevelError,
		"WARN":    LogLevelWarn,
		"warning": LogLevelWarn,
		"info":    LogLevelInfo,
		"Debug":   LogLevelDebug,
	} {
		got, err := parseLogLevel(in)
		if err != nil || got != want {
			t.Errorf("parseLogLevel(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := parseLogLevel("trace"); err == nil {
		t.Errorf("expected error for trace")
	}
}
