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
	"fmt"
	"slices"
	"time"

	"github.com/gorse-io/widedeep/common/log"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"modernc.org/mathutil"
)

// MetricReader reads the running values of training metrics. Reading may sort every
// prediction of the epoch, so callbacks read only when they report.
type MetricReader interface {
	Values() map[string]float32
}

// BatchEndParam is passed to the callback after every training batch.
type BatchEndParam struct {
	Epoch int
	// NBatch is the number of batches finished in the epoch, starting at 1.
	NBatch  int
	Metrics MetricReader
}

type BatchEndCallback func(param BatchEndParam)

// Speedometer logs the training speed and the running metrics every interval batches.
func Speedometer(batchSize, interval int) BatchEndCallback {
	interval = mathutil.Max(interval, 1)
	var (
		tic       time.Time
		started   bool
		lastBatch int
	)
	return func(param BatchEndParam) {
		if param.NBatch < lastBatch {
			started = false
		}
		lastBatch = param.NBatch
		if !started {
			started = true
			tic = time.Now()
			return
		}
		if param.NBatch%interval != 0 {
			return
		}
		speed := float64(interval*batchSize) / time.Since(tic).Seconds()
		fields := []zap.Field{
			zap.Int("epoch", param.Epoch),
			zap.Int("batch", param.NBatch),
			zap.Float64("samples_per_sec", speed),
		}
		if param.Metrics != nil {
			values := param.Metrics.Values()
			names := lo.Keys(values)
			slices.Sort(names)
			for _, name := range names {
				fields = append(fields, zap.Float32(name, values[name]))
			}
		}
		log.Logger().Info(fmt.Sprintf("epoch[%d] batch[%d] speed: %.2f samples/sec", param.Epoch, param.NBatch, speed), fields...)
		tic = time.Now()
	}
}
