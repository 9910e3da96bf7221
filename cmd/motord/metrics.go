package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"motorctl/internal/motor"
)

const metricsNamespace = "motorctl"

var (
	// Per-cycle state
	metricInputRaw = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "input_raw",
		Help:      "Last potentiometer sample [0,1023]",
	})

	metricCommandMagnitude = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "command_magnitude",
		Help:      "Commanded PWM magnitude [0,255]",
	})

	metricCommandDirection = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "command_direction",
		Help:      "Commanded direction: 1=forward, 0=stopped, -1=reverse",
	})

	metricRPMInstant = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "rpm_instant",
		Help:      "Instantaneous encoder rate (RPM), held while no edges arrive",
	})

	metricRPMSmoothed = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "rpm_smoothed",
		Help:      "Moving-average encoder rate (RPM), clamped to max_rpm",
	})

	// Counters
	metricCycles = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "cycles_total",
		Help:      "Control cycles executed",
	})

	metricReports = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "reports_total",
		Help:      "Report lines emitted",
	})
)

// observeStep publishes one control cycle.
func observeStep(res motor.StepResult) {
	metricInputRaw.Set(float64(res.Raw))
	metricCommandMagnitude.Set(float64(res.Command.Magnitude))
	metricCommandDirection.Set(float64(res.Command.Direction.Sign()))
	metricRPMInstant.Set(res.Rate)
	metricRPMSmoothed.Set(res.Smoothed)
	metricCycles.Inc()
	if res.Reported {
		metricReports.Inc()
	}
}

// edgeCounter exposes EdgeTimer.Edges as a counter read at scrape time.
type edgeCounter struct {
	desc  *prometheus.Desc
	timer *motor.EdgeTimer
}

func newEdgeCounter(timer *motor.EdgeTimer) *edgeCounter {
	return &edgeCounter{
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "encoder_edges_total"),
			"Encoder edges seen on either channel",
			nil, nil,
		),
		timer: timer,
	}
}

func (c *edgeCounter) Describe(ch chan<- *prometheus.Desc) { ch <- c.desc }

func (c *edgeCounter) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(c.timer.Edges()))
}
