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
	"github.com/gorse-io/widedeep/config"
	"github.com/juju/errors"
)

// CSRMatrix is a sparse matrix in compressed sparse row format. Entries of row i are
// Indices[IndPtr[i]:IndPtr[i+1]] and Values[IndPtr[i]:IndPtr[i+1]].
type CSRMatrix struct {
	NumRows int
	NumCols int
	IndPtr  []int
	Indices []int32
	Values  []float32
}

// NewCSRMatrix creates an empty matrix with numCols columns.
func NewCSRMatrix(numCols int) *CSRMatrix {
	return &CSRMatrix{NumCols: numCols, IndPtr: []int{0}}
}

// AppendRow appends a row.
func (m *CSRMatrix) AppendRow(indices []int32, values []float32) {
	m.Indices = append(m.Indices, indices...)
	m.Values = append(m.Values, values...)
	m.IndPtr = append(m.IndPtr, len(m.Indices))
	m.NumRows++
}

// Row returns the entries of the i-th row.
func (m *CSRMatrix) Row(i int) ([]int32, []float32) {
	begin, end := m.IndPtr[i], m.IndPtr[i+1]
	return m.Indices[begin:end], m.Values[begin:end]
}

// NNZ is the number of stored entries.
func (m *CSRMatrix) NNZ() int {
	return len(m.Indices)
}

// DenseMatrix is a row-major matrix.
type DenseMatrix struct {
	NumRows int
	NumCols int
	Data    []float32
}

func NewDenseMatrix(numCols int) *DenseMatrix {
	return &DenseMatrix{NumCols: numCols}
}

func (m *DenseMatrix) AppendRow(row []float32) {
	m.Data = append(m.Data, row...)
	m.NumRows++
}

func (m *DenseMatrix) Row(i int) []float32 {
	return m.Data[i*m.NumCols : (i+1)*m.NumCols]
}

// FeatureBundle is a labeled dataset. Row i of Sparse, row i of Dense and Labels[i]
// describe the same example.
type FeatureBundle struct {
	Sparse *CSRMatrix
	Dense  *DenseMatrix
	Labels []float32
}

// Count returns the number of examples.
func (b *FeatureBundle) Count() int {
	return len(b.Labels)
}

// Validate checks row alignment and the value domains of a bundle.
func (b *FeatureBundle) Validate(arch config.Architecture) error {
	if b.Sparse == nil || b.Dense == nil {
		return errors.NotValidf("incomplete feature bundle")
	}
	if b.Sparse.NumRows != len(b.Labels) || b.Dense.NumRows != len(b.Labels) {
		return errors.NotValidf("misaligned feature bundle (sparse rows = %d, dense rows = %d, labels = %d)",
			b.Sparse.NumRows, b.Dense.NumRows, len(b.Labels))
	}
	if len(b.Sparse.IndPtr) != b.Sparse.NumRows+1 || len(b.Sparse.Indices) != len(b.Sparse.Values) ||
		b.Sparse.IndPtr[b.Sparse.NumRows] != len(b.Sparse.Indices) {
		return errors.NotValidf("corrupted sparse matrix")
	}
	if len(b.Dense.Data) != b.Dense.NumRows*b.Dense.NumCols {
		return errors.NotValidf("corrupted dense matrix")
	}
	if b.Sparse.NumCols != arch.NumLinearFeatures {
		return errors.NotValidf("sparse matrix with %d columns (expect %d)", b.Sparse.NumCols, arch.NumLinearFeatures)
	}
	if b.Dense.NumCols != arch.NumDenseColumns() {
		return errors.NotValidf("dense matrix with %d columns (expect %d)", b.Dense.NumCols, arch.NumDenseColumns())
	}
	for i, index := range b.Sparse.Indices {
		if index < 0 || int(index) >= arch.NumLinearFeatures {
			return errors.NotValidf("sparse index %d of entry %d", index, i)
		}
	}
	for i := 0; i < b.Dense.NumRows; i++ {
		row := b.Dense.Row(i)
		for j := 0; j < arch.NumEmbedFeatures; j++ {
			if index := row[j]; index < 0 || int(index) >= arch.EmbedInputDims || index != float32(int(index)) {
				return errors.NotValidf("embedding index %v of row %d", index, i)
			}
		}
	}
	for i, label := range b.Labels {
		if label != 0 && label != 1 {
			return errors.NotValidf("label %v of row %d", label, i)
		}
	}
	return nil
}
