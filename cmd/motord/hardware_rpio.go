package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"

	"motorctl/internal/motor"
)

// ============================================================================
// Raspberry Pi backend
// ============================================================================
// - Potentiometer: MCP3008 10-bit ADC on SPI0 (0..1023 maps 1:1 onto raw)
// - Magnitude: hardware PWM pin, duty = magnitude/255
// - Direction: plain GPIO output, high = forward
// - Encoder: both channels exposed through evdev (gpio-keys overlay)
//
// SPI and PWM need /dev/mem, so the daemon must run as root for this backend.
// ============================================================================

type rpioBackend struct {
	adc      *mcp3008
	actuator *rpioActuator

	encoders []*os.File
	filter   edgeFilter
	logger   *slog.Logger

	closeOnce sync.Once
}

func openRPIOBackend(hw HardwareConfig, enc EncoderConfig, logger *slog.Logger) (*rpioBackend, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("rpio open: %w", err)
	}

	if err := rpio.SpiBegin(rpio.Spi0); err != nil {
		rpio.Close()
		return nil, fmt.Errorf("rpio spi begin: %w", err)
	}
	rpio.SpiChipSelect(uint8(hw.ADCChipSelect))
	rpio.SpiSpeed(hw.ADCSpeedHz)

	files, err := openEncoderDevices(enc.Devices, logger)
	if err != nil {
		rpio.SpiEnd(rpio.Spi0)
		rpio.Close()
		return nil, fmt.Errorf("open encoder: %w", err)
	}

	act := newRPIOActuator(rpio.Pin(hw.PWMPin), rpio.Pin(hw.DirPin), hw.PWMFreqHz)

	logger.Info("rpio backend ready",
		"pwm_pin", hw.PWMPin,
		"dir_pin", hw.DirPin,
		"pwm_freq_hz", hw.PWMFreqHz,
		"adc_cs", hw.ADCChipSelect,
		"adc_channel", hw.ADCChannel,
		"encoder_devices", enc.Devices)

	return &rpioBackend{
		adc:      &mcp3008{channel: uint8(hw.ADCChannel)},
		actuator: act,
		encoders: files,
		filter:   newEdgeFilter(enc.Codes),
		logger:   logger,
	}, nil
}

func (b *rpioBackend) Name() string             { return BackendRPIO }
func (b *rpioBackend) Input() motor.AnalogInput { return b.adc }
func (b *rpioBackend) Actuator() motor.Actuator { return b.actuator }

func (b *rpioBackend) RunEdges(ctx context.Context, onEdge func(uint64)) error {
	return runEncoderEpoll(ctx, b.encoders, b.filter, onEdge)
}

// Close stops the motor and releases the peripherals. Safe to call twice.
func (b *rpioBackend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.actuator.SetMagnitude(0)
		b.actuator.SetDirection(false)
		for _, f := range b.encoders {
			f.Close()
		}
		rpio.SpiEnd(rpio.Spi0)
		err = rpio.Close()
	})
	return err
}

// mcp3008 reads one single-ended channel of an MCP3008 over SPI.
type mcp3008 struct {
	channel uint8
	buf     [3]byte
}

// ReadRaw performs one conversion. Only the control loop calls it.
func (m *mcp3008) ReadRaw() uint16 {
	// start bit, then single-ended + channel in the high nibble
	m.buf = [3]byte{0x01, 0x80 | (m.channel&0x07)<<4, 0x00}
	rpio.SpiExchange(m.buf[:])
	return mcp3008Value(m.buf)
}

// mcp3008Value extracts the 10-bit result from a response frame.
func mcp3008Value(rx [3]byte) uint16 {
	return uint16(rx[1]&0x03)<<8 | uint16(rx[2])
}

// rpioActuator drives a hardware PWM pin and a direction pin.
type rpioActuator struct {
	pwm rpio.Pin
	dir rpio.Pin
}

func newRPIOActuator(pwm, dir rpio.Pin, freqHz int) *rpioActuator {
	dir.Output()
	dir.Low()

	pwm.Mode(rpio.Pwm)
	// The PWM clock runs at freq*cycle so one cycle of MagnitudeMax counts
	// lasts 1/freq seconds.
	pwm.Freq(freqHz * motor.MagnitudeMax)
	pwm.DutyCycle(0, motor.MagnitudeMax)

	return &rpioActuator{pwm: pwm, dir: dir}
}

func (a *rpioActuator) SetDirection(forward bool) {
	if forward {
		a.dir.High()
	} else {
		a.dir.Low()
	}
}

func (a *rpioActuator) SetMagnitude(magnitude uint8) {
	a.pwm.DutyCycle(uint32(magnitude), motor.MagnitudeMax)
}
