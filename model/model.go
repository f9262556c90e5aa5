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
	"io"

	"github.com/gorse-io/widedeep/config"
	"github.com/gorse-io/widedeep/dataset"
)

// Slot names of the network inputs.
const (
	SlotSparse = "csr_data"
	SlotDense  = "dns_data"
	SlotLabel  = "softmax_label"
)

// Builder constructs the network description of an architecture.
type Builder interface {
	Build(arch config.Architecture) (Graph, error)
}

// Graph is an unbound network. Binding allocates parameters and optimizer state
// for a fixed batch size.
type Graph interface {
	InputNames() []string
	LabelNames() []string
	Bind(opts BindOptions) (Module, error)
}

type BindOptions struct {
	BatchSize int
	Optimizer string
	LR        float64
	Device    config.Device
	Seed      int64
	// Jobs is the number of goroutines gathering inputs. Zero uses all logical cores.
	Jobs int
}

// Module is a bound network with its parameters and optimizer.
type Module interface {
	// ForwardBackward computes outputs and gradients of a batch.
	ForwardBackward(batch *dataset.Batch) error
	// Update applies the gradients of the last ForwardBackward.
	Update() error
	// Forward computes outputs of a batch without changing parameters.
	// Gradients pending from ForwardBackward are discarded.
	Forward(batch *dataset.Batch) error
	// Outputs returns click probabilities of the last batch.
	Outputs() []float32
	SaveCheckpoint(w io.Writer, withOptimizer bool) error
	LoadCheckpoint(r io.Reader) error
	Close() error
}
