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
	"testing"

	"github.com/gorse-io/widedeep/config"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

type valueGrad struct {
	value *tensor.Dense
	grad  *tensor.Dense
}

func (vg valueGrad) Value() gorgonia.Value {
	return vg.value
}

func (vg valueGrad) Grad() (gorgonia.Value, error) {
	return vg.grad, nil
}

func newValueGrad(value, grad []float32) valueGrad {
	return valueGrad{
		value: tensor.New(tensor.WithShape(len(value)), tensor.WithBacking(value)),
		grad:  tensor.New(tensor.WithShape(len(grad)), tensor.WithBacking(grad)),
	}
}

func TestNewRule(t *testing.T) {
	for _, optimizer := range []string{config.OptimizerAdam, config.OptimizerSGD, config.OptimizerFTRL} {
		r, err := newRule(optimizer, 0.1)
		assert.NoError(t, err)
		assert.NotNil(t, r)
		s, err := newSolver(optimizer, 0.1, 10)
		assert.NoError(t, err)
		assert.NotNil(t, s)
	}
	_, err := newRule("adagrad", 0.1)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = newSolver("adagrad", 0.1, 10)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestSGDRule(t *testing.T) {
	r, _ := newRule(config.OptimizerSGD, 0.1)
	w := []float32{1, 2}
	r.step()
	r.apply(w, []float32{1, -1}, nil)
	assert.InDeltaSlice(t, []float32{0.9, 2.1}, w, 1e-6)
	assert.Equal(t, 1, r.clock())
}

func TestAdamRule(t *testing.T) {
	r, _ := newRule(config.OptimizerAdam, 0.1)
	w := []float32{1, 1}
	slots := [][]float32{make([]float32, 2), make([]float32, 2)}
	r.step()
	r.apply(w, []float32{2, -0.5}, slots)
	// the first bias corrected step moves by lr in the opposite direction of the gradient
	assert.InDeltaSlice(t, []float32{0.9, 1.1}, w, 1e-5)
	assert.InDeltaSlice(t, []float32{0.2, -0.05}, slots[0], 1e-6)
	assert.InDeltaSlice(t, []float32{0.004, 0.00025}, slots[1], 1e-6)

	r.setClock(10)
	r.step()
	assert.Equal(t, 11, r.clock())
}

func TestFTRLRule(t *testing.T) {
	r, _ := newRule(config.OptimizerFTRL, 0.1)
	w := []float32{0, 0}
	slots := [][]float32{make([]float32, 2), make([]float32, 2)}
	r.step()
	r.apply(w, []float32{1, 0.005}, slots)
	// z = 1, n = 1, w = (0.01 - 1) / ((1 + 1) / 0.1)
	assert.InDelta(t, -0.0495, w[0], 1e-6)
	// |z| below lambda1 keeps the weight at zero
	assert.Zero(t, w[1])
	assert.InDeltaSlice(t, []float32{1, 0.005}, slots[0], 1e-6)
	assert.InDeltaSlice(t, []float32{1, 0.000025}, slots[1], 1e-8)
}

func TestFTRLSolver(t *testing.T) {
	solver := NewFTRLSolver(0.1, 2)
	vg := newValueGrad([]float32{0, 0}, []float32{2, 0.01})
	require.NoError(t, solver.Step([]gorgonia.ValueGrad{vg}))
	// gradients are rescaled by 1/batch_size before the update
	w := vg.value.Data().([]float32)
	assert.InDelta(t, -0.0495, w[0], 1e-6)
	assert.Zero(t, w[1])

	states := solver.States()
	require.Len(t, states, 1)
	assert.InDeltaSlice(t, []float32{1, 0.005}, states[0][0], 1e-6)

	// parameter count must not change between steps
	assert.Error(t, solver.Step([]gorgonia.ValueGrad{vg, vg}))

	copied := make([][][]float32, len(states))
	for i := range states {
		for _, slot := range states[i] {
			copied[i] = append(copied[i], append([]float32(nil), slot...))
		}
	}
	restored := NewFTRLSolver(0.1, 2)
	restored.SetStates(copied)
	other := newValueGrad(append([]float32(nil), w...), []float32{2, 0.01})
	require.NoError(t, restored.Step([]gorgonia.ValueGrad{other}))
	require.NoError(t, solver.Step([]gorgonia.ValueGrad{newValueGrad(w, []float32{2, 0.01})}))
	assert.InDeltaSlice(t, w, other.value.Data().([]float32), 1e-6)
}

func TestTable(t *testing.T) {
	tab := newTable("embed", 4, 2, []float32{1, 1, 2, 2, 3, 3, 4, 4})
	assert.Equal(t, []float32{3, 3}, tab.row(2))

	tab.accumulate(1, []float32{1, 2}, 1)
	tab.accumulate(1, []float32{1, 2}, 1)
	tab.accumulate(3, []float32{4, 4}, 0.5)
	assert.Equal(t, 2, tab.touched.Cardinality())

	r, _ := newRule(config.OptimizerSGD, 0.5)
	r.step()
	tab.update(r, 2)
	// untouched rows keep their values
	assert.Equal(t, []float32{1, 1}, tab.row(0))
	assert.Equal(t, []float32{3, 3}, tab.row(2))
	assert.InDeltaSlice(t, []float32{1.5, 1}, tab.row(1), 1e-6)
	assert.InDeltaSlice(t, []float32{3.5, 3.5}, tab.row(3), 1e-6)
	// gradients are cleared after the update
	assert.Zero(t, tab.touched.Cardinality())
	assert.Equal(t, make([]float32, 8), tab.grad)
}

func TestTableSlots(t *testing.T) {
	tab := newTable("linear", 3, 1, []float32{0, 0, 0})
	r, _ := newRule(config.OptimizerFTRL, 0.1)
	tab.accumulate(0, []float32{1}, 1)
	r.step()
	tab.update(r, 1)
	require.Len(t, tab.slots, 2)
	assert.InDelta(t, -0.0495, tab.data[0], 1e-6)
	assert.Equal(t, []float32{1, 0, 0}, tab.slots[1])
}
