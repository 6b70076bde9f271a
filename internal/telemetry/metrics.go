package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const namespace = "csvtrain"

// Metrics collects one run's training metrics in a private Prometheus
// registry, for the node-exporter textfile collector, and mirrors the
// epoch series to the global OpenTelemetry meter.
type Metrics struct {
	registry *prometheus.Registry

	epochLoss     *prometheus.GaugeVec
	epochs        prometheus.Counter
	rows          *prometheus.GaugeVec
	stageDuration *prometheus.HistogramVec
	testMSE       prometheus.Gauge
	lastSuccess   prometheus.Gauge
	errors        *prometheus.CounterVec

	otelEpochs metric.Int64Counter
	otelLoss   metric.Float64Histogram
	command    attribute.KeyValue
}

// NewMetrics creates the collectors for one subcommand run. Every series
// carries a constant "command" label.
func NewMetrics(command string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := prometheus.Labels{"command": command}

	m := &Metrics{
		registry: reg,
		epochLoss: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "epoch_loss",
			Help:        "Mean squared error of the latest epoch by split",
			ConstLabels: labels,
		}, []string{"split"}),
		epochs: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "epochs_total",
			Help:        "Total number of completed training epochs",
			ConstLabels: labels,
		}),
		rows: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "rows",
			Help:        "Number of rows after each pipeline stage",
			ConstLabels: labels,
		}, []string{"stage"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "stage_duration_seconds",
			Help:        "Duration of pipeline stages in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"stage"}),
		testMSE: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "test_mse",
			Help:        "Mean squared error on the held-out test split",
			ConstLabels: labels,
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_success_timestamp_seconds",
			Help:        "Unix time of the last successful run",
			ConstLabels: labels,
		}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "errors_total",
			Help:        "Total number of errors by pipeline stage",
			ConstLabels: labels,
		}, []string{"stage"}),
		command: attribute.String("command", command),
	}

	meter := otel.Meter(instrumentationName)
	var err error
	if m.otelEpochs, err = meter.Int64Counter("csvtrain.epochs",
		metric.WithDescription("Completed training epochs")); err != nil {
		m.otelEpochs = noop.Int64Counter{}
	}
	if m.otelLoss, err = meter.Float64Histogram("csvtrain.epoch.loss",
		metric.WithDescription("Per-epoch mean squared error")); err != nil {
		m.otelLoss = noop.Float64Histogram{}
	}

	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordEpoch records the losses of one finished epoch.
func (m *Metrics) RecordEpoch(ctx context.Context, loss, valLoss float64, hasVal bool) {
	m.epochs.Inc()
	m.epochLoss.WithLabelValues("train").Set(loss)
	m.otelEpochs.Add(ctx, 1, metric.WithAttributes(m.command))
	m.otelLoss.Record(ctx, loss, metric.WithAttributes(m.command, attribute.String("split", "train")))
	if hasVal {
		m.epochLoss.WithLabelValues("validation").Set(valLoss)
		m.otelLoss.Record(ctx, valLoss, metric.WithAttributes(m.command, attribute.String("split", "validation")))
	}
}

func (m *Metrics) RecordRows(stage string, n int) {
	m.rows.WithLabelValues(stage).Set(float64(n))
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) RecordTestMSE(mse float64) {
	m.testMSE.Set(mse)
}

func (m *Metrics) RecordSuccess() {
	m.lastSuccess.SetToCurrentTime()
}

// RecordError records an error occurrence by stage
func (m *Metrics) RecordError(stage string) {
	m.errors.WithLabelValues(stage).Inc()
}

// WriteTextfile writes every collected series to path in the text
// exposition format. An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
