/*
Package monitoring provides metrics collection for a trace pipeline.

# Overview

This package implements Prometheus-based metrics for the buffer and flush
engine, the tracer and the admin server. Every collector is registered on an
explicit registry, so several independent pipelines can live in one process.

# Features

- Ingestion metrics (items pushed per category, pending gauge)
- Flush metrics (batches by status, delivered items, handler latency)
- Saturation fallbacks and drain outcomes
- Tracer calls skipped for lack of an active block
- Admin HTTP request metrics

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetricsWith(reg)

	// Time a handler call
	timer := monitoring.NewTimer(metrics, "blocks")
	err := handler.FlushBlocks(ctx, batch)
	timer.Stop(len(batch), err)

	// JSON view for /stats
	snap := metrics.Snapshot()

A nil *Metrics is accepted everywhere and records nothing.

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
*/
package monitoring
