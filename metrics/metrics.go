/*
 * Copyright 2025 Comcast Cable Communications Management, LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics map[string]*prometheus.GaugeVec

func newRunMetric(metricName string, docString string, labelNames []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: metricName,
			Help: docString,
		},
		labelNames,
	)
}

// Recorder holds the metrics of one bmcconf run in a private registry.
type Recorder struct {
	registry *prometheus.Registry
	metrics  metrics
}

// NewRecorder creates the run metrics and registers them.
func NewRecorder() *Recorder {
	m := metrics{
		"success":  newRunMetric("bmcconf_operation_success", "was the last operation against the target successful 1 = OK, 0 = FAILED", []string{"target", "operation"}),
		"duration": newRunMetric("bmcconf_operation_duration_seconds", "duration of the last operation against the target in seconds", []string{"target", "operation"}),
		"targets":  newRunMetric("bmcconf_targets_total", "number of targets in the last run", []string{"operation"}),
	}

	reg := prometheus.NewRegistry()
	for _, gv := range m {
		reg.MustRegister(gv)
	}

	return &Recorder{registry: reg, metrics: m}
}

// Targets records the number of targets an operation runs against.
func (r *Recorder) Targets(operation string, n int) {
	r.metrics["targets"].WithLabelValues(operation).Set(float64(n))
}

// Observe records the outcome of operation against target.
func (r *Recorder) Observe(target, operation string, d time.Duration, err error) {
	var ok float64
	if err == nil {
		ok = 1
	}
	r.metrics["success"].WithLabelValues(target, operation).Set(ok)
	r.metrics["duration"].WithLabelValues(target, operation).Set(d.Seconds())
}

// WriteTextfile writes the metrics in the text exposition format for the
// node_exporter textfile collector. The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
