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
	"github.com/gorse-io/widedeep/config"
)

// Synthetic generates a random bundle that satisfies an architecture. Each row has
// between one and four sparse entries, and the label depends on the first sparse index
// so that a model can learn it.
func Synthetic(arch config.Architecture, numRows int, rng random.Generator) *FeatureBundle {
	bundle := &FeatureBundle{
		Sparse: NewCSRMatrix(arch.NumLinearFeatures),
		Dense:  NewDenseMatrix(arch.NumDenseColumns()),
		Labels: make([]float32, 0, numRows),
	}
	dense := make([]float32, arch.NumDenseColumns())
	for i := 0; i < numRows; i++ {
		nnz := 1 + rng.Intn(4)
		indices := make([]int32, nnz)
		values := make([]float32, nnz)
		for j := range indices {
			indices[j] = int32(rng.Intn(arch.NumLinearFeatures))
			values[j] = 1
		}
		for j := range dense {
			if j < arch.NumEmbedFeatures {
				dense[j] = float32(rng.Intn(arch.EmbedInputDims))
			} else {
				dense[j] = rng.Float32()
			}
		}
		bundle.Sparse.AppendRow(indices, values)
		bundle.Dense.AppendRow(dense)
		bundle.Labels = append(bundle.Labels, float32(indices[0]%2))
	}
	return bundle
}
