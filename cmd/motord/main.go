package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"motorctl/internal/motor"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("motord v%s\n", version)
	fmt.Println("Closed-loop DC motor speed/direction controller")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  motord [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Reads a potentiometer, maps it to a PWM magnitude and direction,")
	fmt.Println("  measures shaft speed from encoder edges and prints a status line")
	fmt.Println("  at most every report interval.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        YAML config file (flags override file values)")
	fmt.Println()
	fmt.Println("  -backend string")
	fmt.Printf("        Hardware backend: %s|%s (default %q)\n", BackendRPIO, BackendSim, BackendRPIO)
	fmt.Println()
	fmt.Println("  -dead-zone int")
	fmt.Printf("        Raw counts around center treated as stop (default %d)\n", motor.DefaultDeadZone)
	fmt.Println()
	fmt.Println("  -steps-per-rev int")
	fmt.Printf("        Encoder edges per revolution (default %d)\n", motor.DefaultStepsPerRevolution)
	fmt.Println()
	fmt.Println("  -max-rpm float")
	fmt.Printf("        Upper clamp for the smoothed rate (default %d)\n", motor.DefaultMaxRPM)
	fmt.Println()
	fmt.Println("  -smoothing int")
	fmt.Printf("        Moving-average window size (default %d)\n", motor.DefaultSmoothingWindowSize)
	fmt.Println()
	fmt.Println("  -report-interval-ms int")
	fmt.Printf("        Minimum time between report lines in ms (default %d)\n", motor.DefaultReportIntervalMS)
	fmt.Println()
	fmt.Println("  -update-hz int")
	fmt.Printf("        Control loop frequency in Hz (default %d: no sleep, cycles run back-to-back;\n", defaultUpdateHz)
	fmt.Println("        set e.g. 1000 to pace the loop and free the CPU)")
	fmt.Println()
	fmt.Println("  -pwm-pin int / -dir-pin int")
	fmt.Printf("        BCM pins for the bridge (default %d / %d)\n", defaultPWMPin, defaultDirPin)
	fmt.Println()
	fmt.Println("  -encoder-device string")
	fmt.Printf("        Linux input device delivering encoder edges (default %q)\n", defaultEncoderDevice)
	fmt.Println()
	fmt.Println("  -sim-initial-raw int / -sim-max-rpm float")
	fmt.Printf("        Simulator start position and full-scale speed (default %d / %d)\n", defaultSimInitialRaw, defaultSimMaxRPM)
	fmt.Println()
	fmt.Println("  -serial-port string / -serial-baud int")
	fmt.Printf("        Also write report lines to a UART (default off / %d)\n", defaultSerialBaud)
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultSocketPath)
	fmt.Println()
	fmt.Println("  -http-port int")
	fmt.Printf("        Telemetry websocket + metrics port, 0 disables (default %d)\n", defaultHTTPPort)
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Run on a Raspberry Pi with defaults")
	fmt.Println("  motord")
	fmt.Println()
	fmt.Println("  # Run the in-process simulator, full speed forward")
	fmt.Println("  motord -backend sim -sim-initial-raw 1023")
	fmt.Println()
	fmt.Println("  # Mirror reports to a serial console")
	fmt.Println("  motord -serial-port /dev/ttyAMA0 -serial-baud 9600")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - The rpio backend needs /dev/gpiomem and /dev/mem access (run as root)")
	fmt.Println("  - Encoder devices need read access (add user to 'input' group)")
	fmt.Println()
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath = flag.String("config", "", "YAML config file")

		backend          = flag.String("backend", BackendRPIO, "Hardware backend: rpio|sim")
		deadZone         = flag.Int("dead-zone", motor.DefaultDeadZone, "Raw counts around center treated as stop")
		stepsPerRev      = flag.Int("steps-per-rev", motor.DefaultStepsPerRevolution, "Encoder edges per revolution")
		maxRPM           = flag.Float64("max-rpm", motor.DefaultMaxRPM, "Upper clamp for the smoothed rate")
		smoothing        = flag.Int("smoothing", motor.DefaultSmoothingWindowSize, "Moving-average window size")
		reportIntervalMS = flag.Int("report-interval-ms", motor.DefaultReportIntervalMS, "Minimum time between report lines (ms)")
		updateHz         = flag.Int("update-hz", defaultUpdateHz, "Control loop frequency in Hz (0 = free running)")

		pwmPin        = flag.Int("pwm-pin", defaultPWMPin, "BCM pin for PWM")
		dirPin        = flag.Int("dir-pin", defaultDirPin, "BCM pin for direction")
		encoderDevice = flag.String("encoder-device", defaultEncoderDevice, "Linux input device for encoder edges")

		simInitialRaw = flag.Int("sim-initial-raw", defaultSimInitialRaw, "Simulator initial potentiometer sample")
		simMaxRPM     = flag.Float64("sim-max-rpm", defaultSimMaxRPM, "Simulator speed at full magnitude")

		serialPort = flag.String("serial-port", "", "Serial port for report lines (empty = off)")
		serialBaud = flag.Int("serial-baud", defaultSerialBaud, "Serial baud rate")

		ipcSocketPath = flag.String("ipc-socket", defaultSocketPath, "Unix domain socket path for IPC")
		httpPort      = flag.Int("http-port", defaultHTTPPort, "Telemetry websocket + metrics port (0 = off)")
		logLevelStr   = flag.String("log-level", defaultLogLevel, "Log level: error, warn, info, debug")

		showVersion = flag.Bool("version", false, "Print version and exit")
		showHelp    = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	// Defaults < file < explicitly set flags
	cfg := DefaultConfig()
	if *configPath != "" {
		fileCfg, err := LoadConfigFile(ExpandPath(*configPath))
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = fileCfg
	}

	var o FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			o.Backend = backend
		case "dead-zone":
			o.DeadZone = deadZone
		case "steps-per-rev":
			o.StepsPerRevolution = stepsPerRev
		case "max-rpm":
			o.MaxRPM = maxRPM
		case "smoothing":
			o.SmoothingWindowSize = smoothing
		case "report-interval-ms":
			o.ReportIntervalMS = reportIntervalMS
		case "update-hz":
			o.UpdateHz = updateHz
		case "pwm-pin":
			o.PWMPin = pwmPin
		case "dir-pin":
			o.DirPin = dirPin
		case "encoder-device":
			o.EncoderDevice = encoderDevice
		case "sim-initial-raw":
			o.SimInitialRaw = simInitialRaw
		case "sim-max-rpm":
			o.SimMaxRPM = simMaxRPM
		case "serial-port":
			o.SerialPort = serialPort
		case "serial-baud":
			o.SerialBaud = serialBaud
		case "ipc-socket":
			o.IPCSocketPath = ipcSocketPath
		case "http-port":
			o.HTTPPort = httpPort
		case "log-level":
			o.LogLevel = logLevelStr
		}
	})
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, _ := parseLogLevel(cfg.Logging.Level) // validated above
	logger := setupLogger(logLevel, os.Stdout)

	if err := run(cfg, logger); err != nil {
		logger.Error("motord failed", "error", err)
		os.Exit(1)
	}
}

// run wires the daemon and blocks until a shutdown signal or a fatal
// component error.
func run(cfg Config, logger *slog.Logger) error {
	logger.Debug("starting motord", "version", version)

	hw, err := openBackend(cfg, logger)
	if err != nil {
		return err
	}
	defer hw.Close()

	timer := motor.NewEdgeTimer(cfg.Control.StepsPerRevolution)
	input := NewOverrideInput(hw.Input())

	// Reports always go to stdout; the serial console is optional.
	reporters := motor.MultiReporter{
		motor.NewLineReporter(os.Stdout, func(err error) {
			logger.Warn("stdout report write failed", "error", err)
		}),
	}
	if cfg.Serial.Enabled {
		r, closer, err := openSerialReporter(cfg.Serial, logger)
		if err != nil {
			return err
		}
		defer closer.Close()
		reporters = append(reporters, r)
	}

	cycle, err := motor.NewControlCycle(cfg.MotorParams(), motor.CycleDeps{
		Input:    input,
		Actuator: hw.Actuator(),
		Rate:     timer,
		Reporter: reporters,
	})
	if err != nil {
		return fmt.Errorf("control cycle: %w", err)
	}

	if err := prometheus.Register(newEdgeCounter(timer)); err != nil {
		logger.Warn("failed to register encoder edge collector", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)

	var (
		wg    sync.WaitGroup
		fatal = make(chan error, 4)
	)
	goRun := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && ctx.Err() == nil {
				fatal <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	requests := make(chan StatusRequest)

	// Broadcasts only have a consumer when the HTTP listener runs.
	var broadcasts chan Broadcast
	if cfg.HTTP.Port > 0 {
		broadcasts = make(chan Broadcast, 256)
	}

	// Edge context: writes straight into the timer atomics.
	goRun("encoder", func() error { return hw.RunEdges(ctx, timer.OnEdge) })

	// Control loop: the only owner of the cycle.
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		runDaemon(ctx, daemonDeps{
			Cycle:      cycle,
			Timer:      timer,
			Input:      input,
			Backend:    hw.Name(),
			Requests:   requests,
			Broadcasts: broadcasts,
			Observe:    observeStep,
		}, cfg.Control.UpdateHz, logger)
	}()

	ipc := ipcHandler{input: input, requests: requests, timeout: statusRequestTimeout, logger: logger}
	goRun("ipc", func() error { return runIPCServer(ctx, cfg.IPC.SocketPath, ipc, logger) })

	if cfg.HTTP.Port > 0 {
		ws := NewServer(logger, requests, ServerConfig{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			ws.Hub().Run(ctx)
		}()
		go func() {
			defer wg.Done()
			RunBroadcaster(ctx, ws.Hub(), broadcasts, telemetryCoalesce, logger)
		}()
		goRun("http", func() error { return runHTTPServer(ctx, cfg.HTTP.Port, newHTTPMux(cfg.HTTP, ws), logger) })
	} else {
		logger.Debug("HTTP listener disabled")
	}

	logger.Info("listening",
		"backend", hw.Name(),
		"ipc", cfg.IPC.SocketPath,
		"http_port", cfg.HTTP.Port,
		"update_hz", cfg.Control.UpdateHz,
		"serial", cfg.Serial.Enabled)

	var runErr error
	select {
	case sig := <-sigc:
		logger.Info("shutting down", "signal", sig.String())
	case runErr = <-fatal:
		logger.Error("component stopped", "error", runErr)
	}

	cancel()
	<-loopDone // motor is stopped once the loop returns
	wg.Wait()

	return runErr
}
