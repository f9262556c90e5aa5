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
	mapset "github.com/deckarep/golang-set/v2"
)

// table is a parameter matrix updated row by row. Gradients are accumulated
// for touched rows only and applied by the sparse rule.
type table struct {
	name    string
	numRows int
	width   int
	data    []float32
	grad    []float32
	slots   [][]float32
	touched mapset.Set[int]
}

func newTable(name string, numRows, width int, data []float32) *table {
	return &table{
		name:    name,
		numRows: numRows,
		width:   width,
		data:    data,
		grad:    make([]float32, numRows*width),
		touched: mapset.NewThreadUnsafeSet[int](),
	}
}

func (t *table) row(i int) []float32 {
	return t.data[i*t.width : (i+1)*t.width]
}

// accumulate adds scale * g to the gradient of row i.
func (t *table) accumulate(i int, g []float32, scale float32) {
	t.touched.Add(i)
	grad := t.grad[i*t.width : (i+1)*t.width]
	for j := range grad {
		grad[j] += scale * g[j]
	}
}

// clear drops accumulated gradients.
func (t *table) clear() {
	for i := range t.touched.Iter() {
		clear(t.grad[i*t.width : (i+1)*t.width])
	}
	t.touched.Clear()
}

// update applies accumulated gradients of touched rows, rescaled by 1/batchSize.
func (t *table) update(r rule, batchSize int) {
	if n := r.numSlots(); len(t.slots) != n {
		t.slots = make([][]float32, n)
		for k := range t.slots {
			t.slots[k] = make([]float32, t.numRows*t.width)
		}
	}
	scale := 1 / float32(batchSize)
	rowSlots := make([][]float32, len(t.slots))
	for i := range t.touched.Iter() {
		begin, end := i*t.width, (i+1)*t.width
		grad := t.grad[begin:end]
		for j := range grad {
			grad[j] *= scale
		}
		for k := range rowSlots {
			rowSlots[k] = t.slots[k][begin:end]
		}
		r.apply(t.data[begin:end], grad, rowSlots)
	}
	t.clear()
}
