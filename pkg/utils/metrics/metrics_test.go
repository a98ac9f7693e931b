// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesControllerMetrics(t *testing.T) {
	TicksTotal.Inc()
	ReconcileErrors.WithLabelValues("check_bots").Inc()
	ReconcileDuration.WithLabelValues("check_bots").Observe(0.42)
	ManagedBots.Set(3)

	server := httptest.NewServer(Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	parser := expfmt.NewTextParser(model.UTF8Validation)
	families, err := parser.TextToMetricFamilies(resp.Body)
	require.NoError(t, err)

	for _, name := range []string{
		"coingro_controller_ticks_total",
		"coingro_controller_reconcile_errors_total",
		"coingro_controller_reconcile_duration_seconds",
		"coingro_controller_managed_bots",
	} {
		assert.Contains(t, families, name)
	}

	gauge := families["coingro_controller_managed_bots"]
	require.NotNil(t, gauge)
	require.NotEmpty(t, gauge.GetMetric())
	assert.Equal(t, 3.0, gauge.GetMetric()[0].GetGauge().GetValue())

	errs := families["coingro_controller_reconcile_errors_total"]
	require.NotNil(t, errs)
	require.NotEmpty(t, errs.GetMetric())
	require.NotEmpty(t, errs.GetMetric()[0].GetLabel())
	assert.Equal(t, "pass", errs.GetMetric()[0].GetLabel()[0].GetName())
}
