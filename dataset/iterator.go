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

package dataset

import (
	"github.com/gorse-io/widedeep/common/random"
	"github.com/juju/errors"
)

// Batch is a slice of rows copied out of a bundle.
type Batch struct {
	Sparse *CSRMatrix
	Dense  *DenseMatrix
	Labels []float32
}

// Size returns the number of rows.
func (b *Batch) Size() int {
	return len(b.Labels)
}

// BatchIterator yields shuffled batches of a fixed size. Trailing rows that do not fill
// a batch are dropped, so an epoch has floor(rows / batchSize) batches.
type BatchIterator struct {
	bundle    *FeatureBundle
	batchSize int
	rng       random.Generator
	perm      []int
	cursor    int
}

// NewBatchIterator creates an iterator positioned at the first batch of a fresh shuffle.
func NewBatchIterator(bundle *FeatureBundle, batchSize int, rng random.Generator) (*BatchIterator, error) {
	if batchSize <= 0 {
		return nil, errors.NotValidf("batch size %d", batchSize)
	}
	it := &BatchIterator{
		bundle:    bundle,
		batchSize: batchSize,
		rng:       rng,
		perm:      make([]int, bundle.Count()),
	}
	for i := range it.perm {
		it.perm[i] = i
	}
	it.Reset()
	return it, nil
}

// BatchSize returns the number of rows per batch.
func (it *BatchIterator) BatchSize() int {
	return it.batchSize
}

// NumBatches returns the number of batches per pass.
func (it *BatchIterator) NumBatches() int {
	return len(it.perm) / it.batchSize
}

// Reset reshuffles rows and rewinds to the first batch.
func (it *BatchIterator) Reset() {
	it.rng.Shuffle(len(it.perm), func(i, j int) {
		it.perm[i], it.perm[j] = it.perm[j], it.perm[i]
	})
	it.cursor = 0
}

// Next returns the next batch, or false when the pass is exhausted.
func (it *BatchIterator) Next() (*Batch, bool) {
	if it.cursor+it.batchSize > len(it.perm) {
		return nil, false
	}
	rows := it.perm[it.cursor : it.cursor+it.batchSize]
	it.cursor += it.batchSize
	batch := &Batch{
		Sparse: NewCSRMatrix(it.bundle.Sparse.NumCols),
		Dense:  NewDenseMatrix(it.bundle.Dense.NumCols),
		Labels: make([]float32, 0, it.batchSize),
	}
	batch.Dense.Data = make([]float32, 0, it.batchSize*it.bundle.Dense.NumCols)
	for _, row := range rows {
		batch.Sparse.AppendRow(it.bundle.Sparse.Row(row))
		batch.Dense.AppendRow(it.bundle.Dense.Row(row))
		batch.Labels = append(batch.Labels, it.bundle.Labels[row])
	}
	return batch, true
}
