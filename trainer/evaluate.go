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
	"github.com/gorse-io/widedeep/dataset"
	"github.com/gorse-io/widedeep/metric"
	"github.com/gorse-io/widedeep/model"
)

// Evaluate scores a module on every batch of the iterator with forward passes only.
// The iterator is reshuffled and the metric is reset before scoring.
func Evaluate(module model.Module, iter *dataset.BatchIterator, m metric.Metric) (float32, error) {
	iter.Reset()
	m.Reset()
	nbatch := 0
	for batch, ok := iter.Next(); ok; batch, ok = iter.Next() {
		if err := module.Forward(batch); err != nil {
			return 0, &ComputationError{Epoch: -1, Batch: nbatch, Err: err}
		}
		m.Update(batch.Labels, module.Outputs())
		nbatch++
	}
	return m.Get(), nil
}
