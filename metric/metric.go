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

package metric

import (
	"sort"

	"github.com/gorse-io/widedeep/config"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"modernc.org/sortutil"
)

// Threshold separates positive predictions from negative ones.
const Threshold = 0.5

// Metric accumulates predictions of a pass.
type Metric interface {
	Name() string
	Update(labels, preds []float32)
	Reset()
	Get() float32
}

// Accuracy is the fraction of rows whose thresholded prediction equals the label.
type Accuracy struct {
	correct int
	total   int
}

func NewAccuracy() *Accuracy {
	return &Accuracy{}
}

func (a *Accuracy) Name() string {
	return config.MetricAccuracy
}

func (a *Accuracy) Update(labels, preds []float32) {
	for i, label := range labels {
		if (preds[i] > Threshold) == (label > Threshold) {
			a.correct++
		}
	}
	a.total += len(labels)
}

func (a *Accuracy) Reset() {
	a.correct, a.total = 0, 0
}

// Get returns zero if nothing has been accumulated.
func (a *Accuracy) Get() float32 {
	if a.total == 0 {
		return 0
	}
	return float32(a.correct) / float32(a.total)
}

// AUC is the area under the ROC curve of accumulated predictions.
type AUC struct {
	pos []float32
	neg []float32
}

func NewAUC() *AUC {
	return &AUC{}
}

func (a *AUC) Name() string {
	return config.MetricAUC
}

func (a *AUC) Update(labels, preds []float32) {
	for i, label := range labels {
		if label > Threshold {
			a.pos = append(a.pos, preds[i])
		} else {
			a.neg = append(a.neg, preds[i])
		}
	}
}

func (a *AUC) Reset() {
	a.pos, a.neg = a.pos[:0], a.neg[:0]
}

// Get returns zero unless both classes have been seen. A negative scored equal to a
// positive counts as half a correctly ordered pair.
func (a *AUC) Get() float32 {
	if len(a.pos) == 0 || len(a.neg) == 0 {
		return 0
	}
	sort.Sort(sortutil.Float32Slice(a.pos))
	sort.Sort(sortutil.Float32Slice(a.neg))
	var sum float64
	var nLess, nEqual int
	for pPos := range a.pos {
		// count negative samples with less prediction than current positive sample
		for nLess < len(a.neg) && a.neg[nLess] < a.pos[pPos] {
			nLess++
		}
		if nEqual < nLess {
			nEqual = nLess
		}
		for nEqual < len(a.neg) && a.neg[nEqual] == a.pos[pPos] {
			nEqual++
		}
		sum += float64(nLess) + 0.5*float64(nEqual-nLess)
	}
	return float32(sum / (float64(len(a.pos)) * float64(len(a.neg))))
}

// Composite groups metrics updated together. Get reports the first one.
type Composite struct {
	metrics []Metric
}

// Create builds a composite of metrics by name.
func Create(names ...string) (*Composite, error) {
	if len(names) == 0 {
		return nil, errors.NotValidf("empty metric list")
	}
	c := &Composite{}
	for _, name := range names {
		switch name {
		case config.MetricAccuracy:
			c.metrics = append(c.metrics, NewAccuracy())
		case config.MetricAUC:
			c.metrics = append(c.metrics, NewAUC())
		default:
			return nil, errors.NotValidf("metric %q", name)
		}
	}
	return c, nil
}

func (c *Composite) Name() string {
	return c.metrics[0].Name()
}

func (c *Composite) Update(labels, preds []float32) {
	for _, m := range c.metrics {
		m.Update(labels, preds)
	}
}

func (c *Composite) Reset() {
	for _, m := range c.metrics {
		m.Reset()
	}
}

func (c *Composite) Get() float32 {
	return c.metrics[0].Get()
}

// Values returns the current value of every metric by name.
func (c *Composite) Values() map[string]float32 {
	values := make(map[string]float32, len(c.metrics))
	for _, m := range c.metrics {
		values[m.Name()] = m.Get()
	}
	return values
}

func (c *Composite) ZapFields() []zap.Field {
	fields := make([]zap.Field, 0, len(c.metrics))
	for _, m := range c.metrics {
		fields = append(fields, zap.Float32(m.Name(), m.Get()))
	}
	return fields
}
