package processor

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// pipelineMetrics holds the OTEL instruments of one pipeline instance.
// Instrument creation failures are logged and leave the instrument nil;
// recording sites nil-check so metrics can never fail an operation.
type pipelineMetrics struct {
	samplesReceived  metric.Int64Counter
	samplesProcessed metric.Int64Counter
	samplesDropped   metric.Int64Counter
	eventsDetected   metric.Int64Counter
	anomaliesFound   metric.Int64Counter
	processingTime   metric.Float64Histogram
	queueDepth       metric.Int64Gauge
}

func newPipelineMetrics(logger *zap.Logger) *pipelineMetrics {
	meter := otel.Meter("simtel_pipeline")
	m := &pipelineMetrics{}
	var err error

	m.samplesReceived, err = meter.Int64Counter(
		"simtel_samples_received_total",
		metric.WithDescription("Telemetry samples submitted to the pipeline"),
		metric.WithUnit("1"),
	)
	if err != nil {
		logger.Debug("Failed to create samples received counter", zap.Error(err))
		m.samplesReceived = nil
	}

	m.samplesProcessed, err = meter.Int64Counter(
		"simtel_samples_processed_total",
		metric.WithDescription("Telemetry samples written to the ring buffer"),
		metric.WithUnit("1"),
	)
	if err != nil {
		logger.Debug("Failed to create samples processed counter", zap.Error(err))
		m.samplesProcessed = nil
	}

	m.samplesDropped, err = meter.Int64Counter(
		"simtel_samples_dropped_total",
		metric.WithDescription("Telemetry samples rejected by full queues"),
		metric.WithUnit("1"),
	)
	if err != nil {
		logger.Debug("Failed to create samples dropped counter", zap.Error(err))
		m.samplesDropped = nil
	}

	m.eventsDetected, err = meter.Int64Counter(
		"simtel_events_detected_total",
		metric.WithDescription("Flight events produced by detectors"),
		metric.WithUnit("1"),
	)
	if err != nil {
		logger.Debug("Failed to create events detected counter", zap.Error(err))
		m.eventsDetected = nil
	}

	m.anomaliesFound, err = meter.Int64Counter(
		"simtel_anomalies_found_total",
		metric.WithDescription("Anomalies produced by models"),
		metric.WithUnit("1"),
	)
	if err != nil {
		logger.Debug("Failed to create anomalies counter", zap.Error(err))
		m.anomaliesFound = nil
	}

	m.processingTime, err = meter.Float64Histogram(
		"simtel_sample_processing_seconds",
		metric.WithDescription("Queue-to-ring latency per sample"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1),
	)
	if err != nil {
		logger.Debug("Failed to create processing time histogram", zap.Error(err))
		m.processingTime = nil
	}

	m.queueDepth, err = meter.Int64Gauge(
		"simtel_queue_depth",
		metric.WithDescription("Pending samples in the ingress queue"),
		metric.WithUnit("1"),
	)
	if err != nil {
		logger.Debug("Failed to create queue depth gauge", zap.Error(err))
		m.queueDepth = nil
	}

	return m
}
