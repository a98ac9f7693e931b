// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	crmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
)

const (
	namespace = "coingro_controller"

	// PassLabel partitions reconcile metrics by reconcile pass (check_bots,
	// check_strategies, refresh_strategies).
	PassLabel = "pass"
)

var (
	// TicksTotal counts supervisor ticks since process start.
	TicksTotal = registerCounter(prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ticks_total",
		Help:      "Number of reconcile ticks processed",
	}))

	// ReconcileErrors counts reconcile errors broken down by pass.
	ReconcileErrors = registerCounterVec(prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_errors_total",
		Help:      "Number of errors encountered during reconcile passes",
	}, []string{PassLabel}))

	// ReconcileDuration observes the wall-clock duration of reconcile passes.
	ReconcileDuration = registerHistogramVec(prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "reconcile_duration_seconds",
		Help:      "Duration of reconcile passes in seconds",
		Buckets:   []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0},
	}, []string{PassLabel}))

	// ManagedBots reports the number of active bots driven by the controller.
	ManagedBots = registerGauge(prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "managed_bots",
		Help:      "Number of active, non-deleted bots under management",
	}))
)

// Handler exposes the shared registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(crmetrics.Registry, promhttp.HandlerOpts{})
}

func registerCounter(counter prometheus.Counter) prometheus.Counter {
	err := crmetrics.Registry.Register(counter)
	if err != nil {
		if existsErr, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return existsErr.ExistingCollector.(prometheus.Counter)
		}
		panic(fmt.Errorf("failed to register counter: %w", err))
	}
	return counter
}

func registerCounterVec(counter *prometheus.CounterVec) *prometheus.CounterVec {
	err := crmetrics.Registry.Register(counter)
	if err != nil {
		if existsErr, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return existsErr.ExistingCollector.(*prometheus.CounterVec)
		}
		panic(fmt.Errorf("failed to register counter vec: %w", err))
	}
	return counter
}

func registerHistogramVec(histogram *prometheus.HistogramVec) *prometheus.HistogramVec {
	err := crmetrics.Registry.Register(histogram)
	if err != nil {
		if existsErr, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return existsErr.ExistingCollector.(*prometheus.HistogramVec)
		}
		panic(fmt.Errorf("failed to register histogram vec: %w", err))
	}
	return histogram
}

func registerGauge(gauge prometheus.Gauge) prometheus.Gauge {
	err := crmetrics.Registry.Register(gauge)
	if err != nil {
		if existsErr, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return existsErr.ExistingCollector.(prometheus.Gauge)
		}
		panic(fmt.Errorf("failed to register gauge: %w", err))
	}
	return gauge
}
