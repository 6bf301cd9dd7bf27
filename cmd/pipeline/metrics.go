package main

import (
	"context"
	"log/slog"

	"github.com/euoc/aws-data-pipeline/internal/config"
	"github.com/euoc/aws-data-pipeline/internal/metrics"
	"github.com/euoc/aws-data-pipeline/internal/metrics/datadog"
	"github.com/euoc/aws-data-pipeline/internal/metrics/prompush"
)

// setupMetrics installs the configured backend and returns its shutdown
// func. A backend that fails to initialize leaves the nop backend in place.
func setupMetrics(ctx context.Context, m config.Metrics, log *slog.Logger) func() {
	switch m.Backend {
	case "pushgateway":
		b, err := prompush.NewBackend(m.Job, m.PushgatewayURL)
		if err != nil {
			log.Warn("metrics: failed to init prom push backend; using nop", "reason", err.Error())
			return func() {}
		}
		log.Debug("metrics enabled", "backend", m.Backend, "url", m.PushgatewayURL, "job", m.Job)
		metrics.SetBackend(b)
		return func() {
			if err := metrics.Flush(); err != nil {
				log.Warn("metrics: flush error", "reason", err.Error())
			}
			metrics.SetBackend(nil)
		}

	case "datadog":
		// Close stops the periodic flush loop and submits what is left.
		tags := datadog.ParseTagsCSV(m.Tags)
		b, err := datadog.NewBackend(ctx, datadog.Options{JobName: m.Job, Tags: tags})
		if err != nil {
			log.Warn("metrics: failed to init datadog backend; using nop", "reason", err.Error())
			return func() {}
		}
		log.Debug("metrics enabled", "backend", m.Backend, "job", m.Job, "tags", tags)
		metrics.SetBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				log.Warn("metrics: datadog close/flush error", "reason", err.Error())
			}
			metrics.SetBackend(nil)
		}

	default:
		log.Debug("metrics disabled", "backend", m.Backend)
		return func() {}
	}
}
