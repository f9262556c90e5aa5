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
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/gorse-io/widedeep/common/log"
	"github.com/gorse-io/widedeep/common/random"
	"github.com/gorse-io/widedeep/config"
	"github.com/gorse-io/widedeep/dataset"
	"github.com/gorse-io/widedeep/metric"
	"github.com/gorse-io/widedeep/model"
	"github.com/gorse-io/widedeep/storage/blob"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func testArch() config.Architecture {
	return config.Architecture{
		TrainFile:         "train.csv",
		TestFile:          "eval.csv",
		NumLinearFeatures: 10,
		NumEmbedFeatures:  2,
		NumContFeatures:   1,
		EmbedInputDims:    5,
		HiddenUnits:       []int{4, 8},
	}
}

type mockLoader struct {
	bundles map[string]*dataset.FeatureBundle
	err     error
}

func (l *mockLoader) Load(_, path string) (*dataset.FeatureBundle, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.bundles[path], nil
}

type mockBuilder struct {
	module *mockModule
	opts   []model.BindOptions
}

func (b *mockBuilder) Build(arch config.Architecture) (model.Graph, error) {
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	return &mockGraph{builder: b}, nil
}

type mockGraph struct {
	builder *mockBuilder
}

func (g *mockGraph) InputNames() []string {
	return []string{model.SlotSparse, model.SlotDense}
}

func (g *mockGraph) LabelNames() []string {
	return []string{model.SlotLabel}
}

func (g *mockGraph) Bind(opts model.BindOptions) (model.Module, error) {
	g.builder.opts = append(g.builder.opts, opts)
	return g.builder.module, nil
}

// mockModule predicts labels exactly during the first correctUntil training batches
// and inverts them afterwards.
type mockModule struct {
	correctUntil int
	failAt       int
	batchSizes   []int
	updates      int
	forwards     int
	pending      bool
	outputs      []float32
	loaded       int
	closed       bool
}

func newMockModule() *mockModule {
	return &mockModule{correctUntil: 1 << 30, failAt: -1, loaded: -1}
}

func (m *mockModule) ForwardBackward(batch *dataset.Batch) error {
	if len(m.batchSizes) == m.failAt {
		return errors.New("shape mismatch")
	}
	m.outputs = append(m.outputs[:0], batch.Labels...)
	if len(m.batchSizes) >= m.correctUntil {
		for i := range m.outputs {
			m.outputs[i] = 1 - m.outputs[i]
		}
	}
	m.batchSizes = append(m.batchSizes, batch.Size())
	m.pending = true
	return nil
}

func (m *mockModule) Update() error {
	if !m.pending {
		return errors.New("no gradients to apply")
	}
	m.pending = false
	m.updates++
	return nil
}

func (m *mockModule) Forward(batch *dataset.Batch) error {
	m.forwards++
	m.pending = false
	m.outputs = append(m.outputs[:0], batch.Labels...)
	return nil
}

func (m *mockModule) Outputs() []float32 {
	return m.outputs
}

func (m *mockModule) SaveCheckpoint(w io.Writer, _ bool) error {
	_, err := fmt.Fprint(w, m.updates)
	return err
}

func (m *mockModule) LoadCheckpoint(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.loaded, err = strconv.Atoi(string(data))
	return err
}

func (m *mockModule) Close() error {
	m.closed = true
	return nil
}

// failingStore fails to create artifacts whose names start with prefix.
type failingStore struct {
	blob.Store
	prefix string
}

func (s *failingStore) Create(name string) (io.WriteCloser, error) {
	if strings.HasPrefix(name, s.prefix) {
		return nil, errors.New("disk full")
	}
	return s.Store.Create(name)
}

type TrainerTestSuite struct {
	suite.Suite
	dir     string
	store   blob.Store
	loader  *mockLoader
	module  *mockModule
	builder *mockBuilder
	config  *config.RunConfig
	logs    *observer.ObservedLogs
	logger  *zap.Logger
}

func (s *TrainerTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.store = blob.NewPOSIX(s.dir)
	s.loader = &mockLoader{bundles: map[string]*dataset.FeatureBundle{
		"train.csv": dataset.Synthetic(testArch(), 2000, random.New(1)),
		"eval.csv":  dataset.Synthetic(testArch(), 1000, random.New(2)),
	}}
	s.module = newMockModule()
	s.builder = &mockBuilder{module: s.module}
	s.config = config.GetDefaultConfig()
	s.config.NumEpoch = 2
	s.config.Seed = 1
	core, logs := observer.New(zap.InfoLevel)
	s.logs = logs
	s.logger = log.ReplaceLogger(zap.New(core))
}

func (s *TrainerTestSuite) TearDownTest() {
	log.ReplaceLogger(s.logger)
}

func (s *TrainerTestSuite) newTrainer() *Trainer {
	return &Trainer{
		Config:  s.config,
		Arch:    testArch(),
		Loader:  s.loader,
		Builder: s.builder,
		Store:   s.store,
	}
}

// batchRecord is a BatchEndParam with metric values read inside the callback.
type batchRecord struct {
	Epoch   int
	NBatch  int
	Metrics map[string]float32
}

func recordBatches(records *[]batchRecord) BatchEndCallback {
	return func(param BatchEndParam) {
		*records = append(*records, batchRecord{
			Epoch:   param.Epoch,
			NBatch:  param.NBatch,
			Metrics: param.Metrics.Values(),
		})
	}
}

func (s *TrainerTestSuite) TestRun() {
	var params []batchRecord
	trainer := s.newTrainer()
	trainer.Callback = recordBatches(&params)
	s.module.correctUntil = 2
	s.config.MetricsFile = filepath.Join(s.dir, "metrics.prom")
	s.NoError(trainer.Run(context.Background()))

	// two batches of 1000 rows per epoch
	s.Equal([]int{1000, 1000, 1000, 1000}, s.module.batchSizes)
	s.Equal(4, s.module.updates)
	s.Equal(2, s.module.forwards)
	s.True(s.module.closed)
	s.Equal([]model.BindOptions{{
		BatchSize: 1000,
		Optimizer: config.OptimizerAdam,
		LR:        0.001,
		Device:    config.CPU,
		Seed:      1,
	}}, s.builder.opts)

	// the metric restarts from zero at every epoch
	s.Equal([]batchRecord{
		{Epoch: 0, NBatch: 1, Metrics: map[string]float32{"acc": 1}},
		{Epoch: 0, NBatch: 2, Metrics: map[string]float32{"acc": 1}},
		{Epoch: 1, NBatch: 1, Metrics: map[string]float32{"acc": 0}},
		{Epoch: 1, NBatch: 2, Metrics: map[string]float32{"acc": 0}},
	}, params)

	// one evaluation line per epoch
	evaluations := s.logs.FilterMessageSnippet("accuracy =").All()
	s.Len(evaluations, 2)
	s.Equal("epoch 0, accuracy = 1.000000", evaluations[0].Message)
	s.Equal("epoch 1, accuracy = 1.000000", evaluations[1].Message)
	s.Equal(1, s.logs.FilterMessage("Training started").Len())
	s.Equal(1, s.logs.FilterMessage("Training completed").Len())

	// six persisted objects and one checkpoint per epoch
	names, err := s.store.List()
	s.NoError(err)
	s.Equal([]string{
		"checkpoint-0", "checkpoint-1", "metrics.prom",
		"train_csr.pkl", "train_dns.pkl", "train_label.pkl",
		"val_csr.pkl", "val_dns.pkl", "val_label.pkl",
	}, names)
	r, err := s.store.Open("checkpoint-1")
	s.NoError(err)
	data, err := io.ReadAll(r)
	s.NoError(err)
	s.NoError(r.Close())
	s.Equal("4", string(data))

	// persisted datasets can be loaded back
	val, err := dataset.LoadBundle(s.store, "val")
	s.NoError(err)
	s.Equal(s.loader.bundles["eval.csv"], val)

	metrics, err := os.ReadFile(s.config.MetricsFile)
	s.NoError(err)
	s.Contains(string(metrics), "widedeep_trainer_batches_total")
	s.Contains(string(metrics), "widedeep_trainer_eval_metric{metric=\"acc\"} 1")
}

func (s *TrainerTestSuite) TestLogInterval() {
	s.config.LogInterval = 2
	s.NoError(s.newTrainer().Run(context.Background()))
	// two batches per epoch make one speed line per epoch
	speeds := s.logs.FilterMessageSnippet("speed:").All()
	s.Len(speeds, 2)
	s.True(strings.HasPrefix(speeds[0].Message, "epoch[0] batch[2] speed:"))
	s.True(strings.HasPrefix(speeds[1].Message, "epoch[1] batch[2] speed:"))
	s.Equal(float32(1), speeds[1].ContextMap()["acc"])
}

func (s *TrainerTestSuite) TestRunWideDeep() {
	var params []batchRecord
	trainer := s.newTrainer()
	trainer.Builder = model.NewWideDeepBuilder()
	trainer.Callback = recordBatches(&params)
	s.config.Checkpoint.SaveOptimizerStates = true
	s.NoError(trainer.Run(context.Background()))

	s.Len(params, 4)
	for i, param := range params {
		s.Equal(i/2, param.Epoch)
		s.Equal(i%2+1, param.NBatch)
		s.Contains(param.Metrics, "acc")
	}
	s.Len(s.logs.FilterMessageSnippet("accuracy =").All(), 2)
	s.Equal(2, s.logs.FilterMessage("save checkpoint").Len())

	// every checkpoint restores into a freshly bound network
	graph, err := model.NewWideDeepBuilder().Build(testArch())
	s.NoError(err)
	checkpointer := NewCheckpointer(s.store, s.config.Checkpoint)
	for epoch := 0; epoch < 2; epoch++ {
		module, err := graph.Bind(model.BindOptions{
			BatchSize: s.config.BatchSize,
			Optimizer: s.config.Optimizer,
			LR:        s.config.LR,
			Device:    s.config.Device(),
			Seed:      s.config.Seed,
		})
		s.NoError(err)
		s.NoError(checkpointer.Load(module, epoch))
		s.NoError(module.Close())
	}
}

func (s *TrainerTestSuite) TestDropRemainder() {
	s.loader.bundles["train.csv"] = dataset.Synthetic(testArch(), 1500, random.New(1))
	s.config.NumEpoch = 1
	s.NoError(s.newTrainer().Run(context.Background()))
	s.Equal([]int{1000}, s.module.batchSizes)
}

func (s *TrainerTestSuite) TestMisaligned() {
	bundle := dataset.Synthetic(testArch(), 2000, random.New(1))
	bundle.Labels = bundle.Labels[:1999]
	s.loader.bundles["train.csv"] = bundle
	err := s.newTrainer().Run(context.Background())
	s.True(errors.Is(err, errors.NotValid), err)
	s.Empty(s.builder.opts)
	s.Empty(s.module.batchSizes)
	names, err := s.store.List()
	s.NoError(err)
	s.Empty(names)
}

func (s *TrainerTestSuite) TestFormatError() {
	s.loader.err = &dataset.FormatError{Path: "train.csv", Line: 3, Reason: "bad label"}
	err := s.newTrainer().Run(context.Background())
	var formatErr *dataset.FormatError
	s.True(errors.As(err, &formatErr))
	s.Empty(s.builder.opts)
}

func (s *TrainerTestSuite) TestPersistFailure() {
	trainer := s.newTrainer()
	trainer.Store = &failingStore{Store: s.store, prefix: "val"}
	err := trainer.Run(context.Background())
	var resourceErr *ResourceError
	s.True(errors.As(err, &resourceErr))
	s.Equal("val", resourceErr.Name)
	s.Empty(s.module.batchSizes)
}

func (s *TrainerTestSuite) TestCheckpointFailure() {
	trainer := s.newTrainer()
	trainer.Store = &failingStore{Store: s.store, prefix: "checkpoint"}
	s.NoError(trainer.Run(context.Background()))
	s.Len(s.module.batchSizes, 4)
	s.Equal(2, s.logs.FilterMessage("failed to save checkpoint").Len())
}

func (s *TrainerTestSuite) TestCheckpointFatal() {
	s.config.Checkpoint.Fatal = true
	trainer := s.newTrainer()
	trainer.Store = &failingStore{Store: s.store, prefix: "checkpoint"}
	err := trainer.Run(context.Background())
	var resourceErr *ResourceError
	s.True(errors.As(err, &resourceErr))
	s.Equal("checkpoint-0", resourceErr.Name)
	s.Len(s.module.batchSizes, 2)
}

func (s *TrainerTestSuite) TestComputationError() {
	s.module.failAt = 1
	err := s.newTrainer().Run(context.Background())
	var computationErr *ComputationError
	s.True(errors.As(err, &computationErr))
	s.Equal(0, computationErr.Epoch)
	s.Equal(1, computationErr.Batch)
	s.Zero(s.logs.FilterMessageSnippet("accuracy =").Len())
}

func (s *TrainerTestSuite) TestCanceled() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.newTrainer().Run(ctx)
	s.ErrorIs(err, context.Canceled)
	s.Empty(s.module.batchSizes)
	s.True(s.module.closed)
}

func (s *TrainerTestSuite) TestResume() {
	s.config.NumEpoch = 1
	s.NoError(s.newTrainer().Run(context.Background()))

	s.module = newMockModule()
	s.builder.module = s.module
	s.config.NumEpoch = 2
	s.config.Checkpoint.LoadEpoch = 0
	s.NoError(s.newTrainer().Run(context.Background()))
	s.Equal(2, s.module.loaded)
	s.Len(s.module.batchSizes, 2)
	s.Equal([]string{"epoch 1, accuracy = 1.000000"},
		lastMessages(s.logs.FilterMessageSnippet("accuracy =").All(), 1))
	names, err := s.store.List()
	s.NoError(err)
	s.Contains(names, "checkpoint-1")

	// resuming from a missing checkpoint fails
	s.config.Checkpoint.LoadEpoch = 5
	err = s.newTrainer().Run(context.Background())
	var resourceErr *ResourceError
	s.True(errors.As(err, &resourceErr))
	s.True(errors.Is(err, errors.NotFound))
}

func lastMessages(entries []observer.LoggedEntry, n int) []string {
	var messages []string
	for _, entry := range entries[len(entries)-n:] {
		messages = append(messages, entry.Message)
	}
	return messages
}

func TestTrainer(t *testing.T) {
	suite.Run(t, new(TrainerTestSuite))
}

func TestCheckpointName(t *testing.T) {
	assert.Equal(t, "checkpoint-0", CheckpointName("checkpoint", 0))
	assert.Equal(t, "checkpoint-1", CheckpointName("checkpoint", 1))
	names := make(map[string]struct{})
	for epoch := 0; epoch < 100; epoch++ {
		names[CheckpointName("checkpoint", epoch)] = struct{}{}
	}
	assert.Len(t, names, 100)
}

func TestSpeedometer(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	prev := log.ReplaceLogger(zap.New(core))
	defer log.ReplaceLogger(prev)

	m, err := metric.Create(config.MetricAccuracy)
	require.NoError(t, err)
	m.Update([]float32{1, 0}, []float32{1, 1})
	callback := Speedometer(100, 2)
	for nbatch := 1; nbatch <= 5; nbatch++ {
		callback(BatchEndParam{Epoch: 0, NBatch: nbatch, Metrics: m})
	}
	// batches 2 and 4
	require.Equal(t, 2, logs.Len())
	entry := logs.All()[0]
	assert.True(t, strings.HasPrefix(entry.Message, "epoch[0] batch[2] speed:"))
	assert.Equal(t, float32(0.5), entry.ContextMap()["acc"])

	// the timer restarts with a new epoch
	for nbatch := 1; nbatch <= 2; nbatch++ {
		callback(BatchEndParam{Epoch: 1, NBatch: nbatch})
	}
	require.Equal(t, 3, logs.Len())
	assert.True(t, strings.HasPrefix(logs.All()[2].Message, "epoch[1] batch[2] speed:"))
}

func TestEvaluate(t *testing.T) {
	bundle := dataset.Synthetic(testArch(), 250, random.New(1))
	iter, err := dataset.NewBatchIterator(bundle, 100, random.New(1))
	require.NoError(t, err)
	module := newMockModule()
	m, err := metric.Create(config.MetricAccuracy)
	require.NoError(t, err)
	m.Update([]float32{1}, []float32{0})

	score, err := Evaluate(module, iter, m)
	require.NoError(t, err)
	assert.Equal(t, float32(1), score)
	assert.Equal(t, 2, module.forwards)
	assert.Zero(t, module.updates)
}
