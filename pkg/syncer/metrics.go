package syncer

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MeterName names the meter the engine records into.
const MeterName = "github.com/papercomputeco/strata/pkg/syncer"

type metrics struct {
	commits     metric.Int64Counter
	noops       metric.Int64Counter
	superseded  metric.Int64Counter
	retries     metric.Int64Counter
	deadLetters metric.Int64Counter
	spilled     metric.Int64Counter
	storedBytes metric.Int64Counter
	latency     metric.Float64Histogram
	ratio       metric.Float64Histogram
}

func newMetrics(meter metric.Meter, logger *slog.Logger) *metrics {
	if meter == nil {
		meter = otel.Meter(MeterName)
	}

	m := &metrics{}
	var err error

	counter := func(name, desc string) metric.Int64Counter {
		c, cerr := meter.Int64Counter(name, metric.WithDescription(desc))
		if cerr != nil {
			logger.Warn("otel counter unavailable", "name", name, "error", cerr)
			return noop.Int64Counter{}
		}
		return c
	}

	m.commits = counter("strata_sync_commits_total", "Durable commits")
	m.noops = counter("strata_sync_noops_total", "Sync tasks already durable")
	m.superseded = counter("strata_sync_superseded_total", "Sync tasks discarded for a newer durable version")
	m.retries = counter("strata_sync_retries_total", "Failed sync attempts that were rescheduled")
	m.deadLetters = counter("strata_sync_deadletters_total", "Sync tasks moved to the dead-letter log")
	m.spilled = counter("strata_sync_spilled_total", "Sync tasks spilled at shutdown")
	m.storedBytes = counter("strata_sync_stored_bytes_total", "Encoded bytes written to the durable tier")

	m.latency, err = meter.Float64Histogram("strata_sync_commit_latency_ms",
		metric.WithUnit("ms"),
		metric.WithDescription("Time from first dirty write to durable commit"),
	)
	if err != nil {
		logger.Warn("otel histogram unavailable", "name", "strata_sync_commit_latency_ms", "error", err)
		m.latency = noop.Float64Histogram{}
	}

	m.ratio, err = meter.Float64Histogram("strata_sync_compression_ratio",
		metric.WithDescription("Raw to stored payload size"),
	)
	if err != nil {
		logger.Warn("otel histogram unavailable", "name", "strata_sync_compression_ratio", "error", err)
		m.ratio = noop.Float64Histogram{}
	}

	return m
}

func nsAttr(ns string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("namespace", ns))
}

func (m *metrics) add(c metric.Int64Counter, ns string, n int64) {
	c.Add(context.Background(), n, nsAttr(ns))
}
