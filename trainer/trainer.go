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
	"context"
	"fmt"
	"time"

	"github.com/gorse-io/widedeep/common/log"
	"github.com/gorse-io/widedeep/common/random"
	"github.com/gorse-io/widedeep/config"
	"github.com/gorse-io/widedeep/dataset"
	"github.com/gorse-io/widedeep/metric"
	"github.com/gorse-io/widedeep/model"
	"github.com/gorse-io/widedeep/storage/blob"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

const (
	prefixTrain = "train"
	prefixVal   = "val"
)

var metricTitles = map[string]string{
	config.MetricAccuracy: "accuracy",
	config.MetricAUC:      "auc",
}

// Trainer runs the training pipeline of a wide and deep network: load and persist
// datasets, bind the network, then train, evaluate and checkpoint every epoch.
type Trainer struct {
	Config  *config.RunConfig
	Arch    config.Architecture
	Loader  dataset.Loader
	Builder model.Builder
	Store   blob.Store
	// Callback is invoked after every training batch. It defaults to a Speedometer
	// logging every LogInterval batches.
	Callback BatchEndCallback
}

func (t *Trainer) Run(ctx context.Context) error {
	log.Logger().Info("Training started", t.Config.ZapFields()...)
	start := time.Now()

	train, val, err := t.load()
	if err != nil {
		return err
	}
	if err = t.persist(train, val); err != nil {
		return err
	}
	graph, err := t.Builder.Build(t.Arch)
	if err != nil {
		return errors.Annotate(err, "failed to build network")
	}

	rng := random.New(t.Config.Seed)
	trainIter, err := dataset.NewBatchIterator(train, t.Config.BatchSize, rng)
	if err != nil {
		return errors.Trace(err)
	}
	valIter, err := dataset.NewBatchIterator(val, t.Config.BatchSize, rng)
	if err != nil {
		return errors.Trace(err)
	}
	trainMetric, err := metric.Create(t.Config.Metrics...)
	if err != nil {
		return errors.Trace(err)
	}
	evalMetric, err := metric.Create(t.Config.Metrics...)
	if err != nil {
		return errors.Trace(err)
	}

	module, err := graph.Bind(model.BindOptions{
		BatchSize: t.Config.BatchSize,
		Optimizer: t.Config.Optimizer,
		LR:        t.Config.LR,
		Device:    t.Config.Device(),
		Seed:      t.Config.Seed,
	})
	if err != nil {
		return errors.Annotate(err, "failed to bind network")
	}
	defer module.Close()

	checkpointer := NewCheckpointer(t.Store, t.Config.Checkpoint)
	beginEpoch := 0
	if t.Config.Checkpoint.LoadEpoch >= 0 {
		if err = checkpointer.Load(module, t.Config.Checkpoint.LoadEpoch); err != nil {
			return err
		}
		beginEpoch = t.Config.Checkpoint.LoadEpoch + 1
	}

	callback := t.Callback
	if callback == nil {
		callback = Speedometer(t.Config.BatchSize, t.Config.LogInterval)
	}
	log.Logger().Info("start training",
		zap.Int("n_train", train.Count()),
		zap.Int("n_val", val.Count()),
		zap.Int("train_batches", trainIter.NumBatches()),
		zap.Int("val_batches", valIter.NumBatches()),
		zap.Int("begin_epoch", beginEpoch))

	for epoch := beginEpoch; epoch < t.Config.NumEpoch; epoch++ {
		tic := time.Now()
		trainMetric.Reset()
		nbatch := 0
		for batch, ok := trainIter.Next(); ok; batch, ok = trainIter.Next() {
			if err = ctx.Err(); err != nil {
				return errors.Annotatef(err, "training interrupted at epoch %d batch %d", epoch, nbatch)
			}
			if err = module.ForwardBackward(batch); err != nil {
				return &ComputationError{Epoch: epoch, Batch: nbatch, Err: err}
			}
			if err = module.Update(); err != nil {
				return &ComputationError{Epoch: epoch, Batch: nbatch, Err: err}
			}
			nbatch++
			trainMetric.Update(batch.Labels, module.Outputs())
			BatchesTotal.Inc()
			SamplesTotal.Add(float64(batch.Size()))
			callback(BatchEndParam{Epoch: epoch, NBatch: nbatch, Metrics: trainMetric})
		}
		elapsed := time.Since(tic)
		setMetricVec(TrainMetricVec, trainMetric.Values())
		EpochSeconds.Set(elapsed.Seconds())
		EpochsTotal.Inc()
		log.Logger().Info("finish training epoch",
			append([]zap.Field{zap.Int("epoch", epoch), zap.Int("n_batch", nbatch), zap.Duration("time_cost", elapsed)},
				trainMetric.ZapFields()...)...)

		var score float32
		if score, err = Evaluate(module, valIter, evalMetric); err != nil {
			var computationErr *ComputationError
			if errors.As(err, &computationErr) {
				computationErr.Epoch = epoch
			}
			return err
		}
		setMetricVec(EvalMetricVec, evalMetric.Values())
		log.Logger().Info(fmt.Sprintf("epoch %d, %s = %f", epoch, metricTitles[evalMetric.Name()], score), evalMetric.ZapFields()...)

		if err = checkpointer.Save(module, epoch); err != nil {
			return err
		}
		trainIter.Reset()
	}

	if t.Config.MetricsFile != "" {
		if err = WriteMetrics(t.Config.MetricsFile); err != nil {
			return &ResourceError{Op: "write metrics", Name: t.Config.MetricsFile, Err: err}
		}
	}
	log.Logger().Info("Training completed", zap.Duration("time_cost", time.Since(start)))
	return nil
}

// load reads the training and validation datasets and checks them against the architecture.
func (t *Trainer) load() (train, val *dataset.FeatureBundle, err error) {
	train, err = t.Loader.Load(t.Config.DataDir, t.Arch.TrainFile)
	if err != nil {
		return nil, nil, err
	}
	val, err = t.Loader.Load(t.Config.DataDir, t.Arch.TestFile)
	if err != nil {
		return nil, nil, err
	}
	if err = train.Validate(t.Arch); err != nil {
		return nil, nil, errors.Annotate(err, "invalid training dataset")
	}
	if err = val.Validate(t.Arch); err != nil {
		return nil, nil, errors.Annotate(err, "invalid validation dataset")
	}
	return train, val, nil
}

// persist saves both datasets before training starts.
func (t *Trainer) persist(train, val *dataset.FeatureBundle) error {
	for _, item := range []struct {
		prefix string
		bundle *dataset.FeatureBundle
	}{{prefixVal, val}, {prefixTrain, train}} {
		if err := dataset.SaveBundle(t.Store, item.prefix, item.bundle); err != nil {
			return &ResourceError{Op: "persist", Name: item.prefix, Err: err}
		}
	}
	log.Logger().Info("persist datasets",
		zap.Strings("names", append(dataset.BundleNames(prefixVal), dataset.BundleNames(prefixTrain)...)))
	return nil
}
