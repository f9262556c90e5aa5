// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package trainer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const LabelMetric = "metric"

var (
	BatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "widedeep",
		Subsystem: "trainer",
		Name:      "batches_total",
	})
	SamplesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "widedeep",
		Subsystem: "trainer",
		Name:      "samples_total",
	})
	EpochsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "widedeep",
		Subsystem: "trainer",
		Name:      "epochs_total",
	})
	EpochSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "widedeep",
		Subsystem: "trainer",
		Name:      "epoch_seconds",
	})
	TrainMetricVec = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "widedeep",
		Subsystem: "trainer",
		Name:      "train_metric",
	}, []string{LabelMetric})
	EvalMetricVec = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "widedeep",
		Subsystem: "trainer",
		Name:      "eval_metric",
	}, []string{LabelMetric})
	CheckpointFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "widedeep",
		Subsystem: "trainer",
		Name:      "checkpoint_failures_total",
	})
)

func setMetricVec(vec *prometheus.GaugeVec, values map[string]float32) {
	for name, value := range values {
		vec.WithLabelValues(name).Set(float64(value))
	}
}

// WriteMetrics writes all collectors to a file in the text exposition format.
func WriteMetrics(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
