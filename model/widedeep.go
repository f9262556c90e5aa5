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

package model

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/gorse-io/widedeep/common/log"
	"github.com/gorse-io/widedeep/common/parallel"
	"github.com/gorse-io/widedeep/common/random"
	"github.com/gorse-io/widedeep/config"
	"github.com/gorse-io/widedeep/dataset"
	"github.com/juju/errors"
	"github.com/klauspost/cpuid/v2"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

const initStdDev = 0.01

// WideDeepBuilder builds wide and deep networks.
type WideDeepBuilder struct{}

func NewWideDeepBuilder() *WideDeepBuilder {
	return &WideDeepBuilder{}
}

// Build validates an architecture. It allocates nothing.
func (b *WideDeepBuilder) Build(arch config.Architecture) (Graph, error) {
	if err := arch.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &WideDeepGraph{Arch: arch}, nil
}

// WideDeepGraph sums a linear model over sparse features and a multilayer perceptron over
// embeddings and continuous features. The sum is the logit of the click probability.
type WideDeepGraph struct {
	Arch config.Architecture
}

func (g *WideDeepGraph) InputNames() []string {
	return []string{SlotSparse, SlotDense}
}

func (g *WideDeepGraph) LabelNames() []string {
	return []string{SlotLabel}
}

// Bind allocates parameters and compiles the network for a batch size.
func (g *WideDeepGraph) Bind(opts BindOptions) (Module, error) {
	if opts.BatchSize <= 0 {
		return nil, errors.NotValidf("batch size %d", opts.BatchSize)
	}
	sparseRule, err := newRule(opts.Optimizer, opts.LR)
	if err != nil {
		return nil, err
	}
	solver, err := newSolver(opts.Optimizer, opts.LR, opts.BatchSize)
	if err != nil {
		return nil, err
	}
	m := &WideDeep{
		arch:       g.Arch,
		opts:       opts,
		batchSize:  opts.BatchSize,
		jobs:       opts.Jobs,
		sparseRule: sparseRule,
		solver:     solver,
	}
	if m.jobs <= 0 {
		m.jobs = max(cpuid.CPU.LogicalCores, 1)
	}
	m.init(random.New(opts.Seed))
	if err = safely(m.build); err != nil {
		return nil, errors.Annotate(err, "failed to compile network")
	}
	log.Logger().Info("bind wide and deep network",
		zap.String("device", string(opts.Device)),
		zap.String("cpu", cpuid.CPU.BrandName),
		zap.Int("physical_cores", cpuid.CPU.PhysicalCores),
		zap.Bool("avx2", cpuid.CPU.Supports(cpuid.AVX2)),
		zap.Int("batch_size", opts.BatchSize),
		zap.Int("jobs", m.jobs),
		zap.String("optimizer", opts.Optimizer),
		zap.Int("num_params", m.numParams()))
	return m, nil
}

// WideDeep is a bound wide and deep network.
type WideDeep struct {
	arch      config.Architecture
	opts      BindOptions
	batchSize int
	jobs      int

	// sparse parameters
	linear     *table
	embeddings []*table
	sparseRule rule

	// dense parameters
	weights [][]float32
	biases  [][]float32
	solver  gorgonia.Solver

	// gorgonia graph
	g          *gorgonia.ExprGraph
	vm         gorgonia.VM
	wide       *gorgonia.Node
	deep       *gorgonia.Node
	target     *gorgonia.Node
	output     *gorgonia.Node
	cost       *gorgonia.Node
	w          []*gorgonia.Node
	b          []*gorgonia.Node
	learnables []*gorgonia.Node

	// preallocated arrays
	wideData   []float32
	deepData   []float32
	targetData []float32
	outputs    []float32

	pending bool
}

func (m *WideDeep) init(rng random.Generator) {
	m.linear = newTable("linear", m.arch.NumLinearFeatures, 1,
		rng.NormalVector(m.arch.NumLinearFeatures, 0, initStdDev))
	m.embeddings = make([]*table, m.arch.NumEmbedFeatures)
	for i := range m.embeddings {
		m.embeddings[i] = newTable(fmt.Sprintf("embedding%d", i), m.arch.EmbedInputDims, m.arch.EmbedWidth(),
			rng.NormalVector(m.arch.EmbedInputDims*m.arch.EmbedWidth(), 0, initStdDev))
	}
	widths := m.layerWidths()
	for i := 0; i+1 < len(widths); i++ {
		m.weights = append(m.weights, rng.GlorotVector(widths[i], widths[i+1]))
		m.biases = append(m.biases, make([]float32, widths[i+1]))
	}
	m.wideData = make([]float32, m.batchSize)
	m.deepData = make([]float32, m.batchSize*m.arch.DeepInputWidth())
	m.targetData = make([]float32, m.batchSize)
	m.outputs = make([]float32, m.batchSize)
}

// layerWidths returns the widths from the deep input to the output.
func (m *WideDeep) layerWidths() []int {
	widths := []int{m.arch.DeepInputWidth()}
	widths = append(widths, m.arch.HiddenUnits[1:]...)
	return append(widths, 1)
}

func (m *WideDeep) numParams() int {
	n := len(m.linear.data)
	for _, e := range m.embeddings {
		n += len(e.data)
	}
	for i := range m.weights {
		n += len(m.weights[i]) + len(m.biases[i])
	}
	return n
}

func (m *WideDeep) build() error {
	m.g = gorgonia.NewGraph()
	widths := m.layerWidths()

	// input nodes
	m.wide = gorgonia.NewVector(m.g, tensor.Float32,
		gorgonia.WithValue(tensor.New(tensor.WithShape(m.batchSize), tensor.WithBacking(m.wideData))),
		gorgonia.WithName("wide"))
	m.deep = gorgonia.NewMatrix(m.g, tensor.Float32,
		gorgonia.WithValue(tensor.New(tensor.WithShape(m.batchSize, widths[0]), tensor.WithBacking(m.deepData))),
		gorgonia.WithName("deep"))
	m.target = gorgonia.NewVector(m.g, tensor.Float32,
		gorgonia.WithValue(tensor.New(tensor.WithShape(m.batchSize), tensor.WithBacking(m.targetData))),
		gorgonia.WithName(SlotLabel))

	// fully connected layers
	for i := range m.weights {
		m.w = append(m.w, gorgonia.NewMatrix(m.g, tensor.Float32,
			gorgonia.WithValue(tensor.New(tensor.WithShape(widths[i], widths[i+1]), tensor.WithBacking(m.weights[i]))),
			gorgonia.WithName(fmt.Sprintf("w%d", i))))
		m.b = append(m.b, gorgonia.NewMatrix(m.g, tensor.Float32,
			gorgonia.WithValue(tensor.New(tensor.WithShape(1, widths[i+1]), tensor.WithBacking(m.biases[i]))),
			gorgonia.WithName(fmt.Sprintf("b%d", i))))
	}
	m.learnables = append(append([]*gorgonia.Node{}, m.w...), m.b...)

	// deep part
	x := m.deep
	for i := range m.w {
		// [batchSize, widths[i+1]] = [batchSize, widths[i]] * [widths[i], widths[i+1]] + [1, widths[i+1]]
		x = gorgonia.Must(gorgonia.BroadcastAdd(gorgonia.Must(gorgonia.Mul(x, m.w[i])), m.b[i], nil, []byte{0}))
		if i < len(m.w)-1 {
			x = gorgonia.Must(gorgonia.Rectify(x))
		}
	}
	logit := gorgonia.Must(gorgonia.Add(gorgonia.Must(gorgonia.Reshape(x, []int{m.batchSize})), m.wide))
	m.output = gorgonia.Must(gorgonia.Sigmoid(logit))

	// negative log likelihood: softplus(logit) - target * logit
	m.cost = gorgonia.Must(gorgonia.Sum(gorgonia.Must(gorgonia.Sub(
		gorgonia.Must(gorgonia.Softplus(logit)),
		gorgonia.Must(gorgonia.HadamardProd(m.target, logit))))))

	wrts := append([]*gorgonia.Node{m.wide, m.deep}, m.learnables...)
	if _, err := gorgonia.Grad(m.cost, wrts...); err != nil {
		return errors.Trace(err)
	}
	opts := []gorgonia.VMOpt{gorgonia.BindDualValues(wrts...)}
	if m.opts.Device == config.GPU {
		opts = append(opts, gorgonia.UseCudaFor())
	}
	m.vm = gorgonia.NewTapeMachine(m.g, opts...)
	return nil
}

// gather fills input arrays from a batch: the wide input is the dot product of each row's
// sparse entries with the linear weights, and the deep input concatenates the embeddings
// of each embedding index with the continuous features.
func (m *WideDeep) gather(batch *dataset.Batch) error {
	if batch.Size() != m.batchSize {
		return errors.NotValidf("batch of %d rows for network bound to %d", batch.Size(), m.batchSize)
	}
	width := m.arch.EmbedWidth()
	deepWidth := m.arch.DeepInputWidth()
	err := parallel.For(m.batchSize, m.jobs, func(begin, end int) error {
		for i := begin; i < end; i++ {
			indices, values := batch.Sparse.Row(i)
			var sum float32
			for j, index := range indices {
				if index < 0 || int(index) >= m.linear.numRows {
					return errors.NotValidf("sparse index %d", index)
				}
				sum += m.linear.data[index] * values[j]
			}
			m.wideData[i] = sum
			dense := batch.Dense.Row(i)
			x := m.deepData[i*deepWidth : (i+1)*deepWidth]
			for j, e := range m.embeddings {
				index := int(dense[j])
				if index < 0 || index >= e.numRows {
					return errors.NotValidf("embedding index %v", dense[j])
				}
				copy(x[j*width:(j+1)*width], e.row(index))
			}
			copy(x[len(m.embeddings)*width:], dense[len(m.embeddings):])
		}
		return nil
	})
	if err != nil {
		return err
	}
	copy(m.targetData, batch.Labels)
	return nil
}

func (m *WideDeep) run(batch *dataset.Batch) error {
	if err := m.gather(batch); err != nil {
		return err
	}
	return safely(func() error {
		m.vm.Reset()
		if err := gorgonia.Let(m.wide, tensor.New(tensor.WithShape(m.batchSize), tensor.WithBacking(m.wideData))); err != nil {
			return errors.Trace(err)
		}
		if err := gorgonia.Let(m.deep, tensor.New(tensor.WithShape(m.batchSize, m.arch.DeepInputWidth()), tensor.WithBacking(m.deepData))); err != nil {
			return errors.Trace(err)
		}
		if err := gorgonia.Let(m.target, tensor.New(tensor.WithShape(m.batchSize), tensor.WithBacking(m.targetData))); err != nil {
			return errors.Trace(err)
		}
		if err := m.vm.RunAll(); err != nil {
			return errors.Trace(err)
		}
		copy(m.outputs, m.output.Value().Data().([]float32))
		if cost := m.cost.Value().Data().(float32); math32.IsNaN(cost) || math32.IsInf(cost, 0) {
			return errors.Errorf("loss diverged (loss = %v)", cost)
		}
		return nil
	})
}

func (m *WideDeep) ForwardBackward(batch *dataset.Batch) error {
	m.clearGradients()
	if err := m.run(batch); err != nil {
		return err
	}
	// scatter gradients of inputs to touched rows of sparse tables
	wideGrad, err := m.gradient(m.wide)
	if err != nil {
		return err
	}
	deepGrad, err := m.gradient(m.deep)
	if err != nil {
		return err
	}
	width := m.arch.EmbedWidth()
	deepWidth := m.arch.DeepInputWidth()
	for i := 0; i < m.batchSize; i++ {
		indices, values := batch.Sparse.Row(i)
		for j, index := range indices {
			m.linear.accumulate(int(index), wideGrad[i:i+1], values[j])
		}
		dense := batch.Dense.Row(i)
		g := deepGrad[i*deepWidth : (i+1)*deepWidth]
		for j, e := range m.embeddings {
			e.accumulate(int(dense[j]), g[j*width:(j+1)*width], 1)
		}
	}
	m.pending = true
	return nil
}

func (m *WideDeep) gradient(n *gorgonia.Node) ([]float32, error) {
	grad, err := n.Grad()
	if err != nil {
		return nil, errors.Trace(err)
	}
	data, ok := grad.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("unexpected gradient of %s", n.Name())
	}
	return data, nil
}

func (m *WideDeep) Update() error {
	if !m.pending {
		return errors.New("no gradients to apply")
	}
	m.pending = false
	err := safely(func() error {
		return m.solver.Step(gorgonia.NodesToValueGrads(m.learnables))
	})
	if err != nil {
		return errors.Annotate(err, "failed to update dense parameters")
	}
	m.sparseRule.step()
	m.linear.update(m.sparseRule, m.batchSize)
	for _, e := range m.embeddings {
		e.update(m.sparseRule, m.batchSize)
	}
	return nil
}

func (m *WideDeep) Forward(batch *dataset.Batch) error {
	m.clearGradients()
	return m.run(batch)
}

func (m *WideDeep) clearGradients() {
	m.pending = false
	m.linear.clear()
	for _, e := range m.embeddings {
		e.clear()
	}
}

// Outputs returns a copy of the click probabilities of the last batch.
func (m *WideDeep) Outputs() []float32 {
	return append([]float32(nil), m.outputs...)
}

func (m *WideDeep) Close() error {
	if m.vm == nil {
		return nil
	}
	return m.vm.Close()
}

// denseValues returns the current values of dense parameters in the order of learnables.
func (m *WideDeep) denseValues() [][]float32 {
	return lo.Map(m.learnables, func(n *gorgonia.Node, _ int) []float32 {
		return n.Value().Data().([]float32)
	})
}

// safely converts panics of the computation runtime to errors.
func safely(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("computation panicked: %v", r)
		}
	}()
	return f()
}
