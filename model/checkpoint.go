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
	"reflect"

	"github.com/gorse-io/widedeep/common/encoding"
	"github.com/gorse-io/widedeep/common/log"
	"github.com/gorse-io/widedeep/config"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const checkpointMagic = "widedeep/checkpoint/v1"

type checkpointHeader struct {
	Optimizer     string
	WithOptimizer bool
	NumParams     int
}

type optimizerStates struct {
	Clock      int
	Linear     [][]float32
	Embeddings [][][]float32
	Dense      [][][]float32
}

// parameters returns the linear table, the embedding tables and the dense parameters.
func (m *WideDeep) parameters() [][]float32 {
	params := [][]float32{m.linear.data}
	for _, e := range m.embeddings {
		params = append(params, e.data)
	}
	return append(params, m.denseValues()...)
}

// SaveCheckpoint writes parameters and, if requested, optimizer states. Adam and SGD
// states of dense parameters are kept by the solver and not written.
func (m *WideDeep) SaveCheckpoint(w io.Writer, withOptimizer bool) error {
	if err := encoding.WriteString(w, checkpointMagic); err != nil {
		return errors.Trace(err)
	}
	params := m.parameters()
	header := checkpointHeader{Optimizer: m.opts.Optimizer, WithOptimizer: withOptimizer, NumParams: len(params)}
	if err := encoding.WriteGob(w, header); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteGob(w, m.arch); err != nil {
		return errors.Trace(err)
	}
	// write weights
	for _, param := range params {
		if err := encoding.WriteFloat32s(w, param); err != nil {
			return errors.Trace(err)
		}
	}
	if !withOptimizer {
		return nil
	}
	// write optimizer states
	states := optimizerStates{
		Clock:      m.sparseRule.clock(),
		Linear:     m.linear.slots,
		Embeddings: lo.Map(m.embeddings, func(e *table, _ int) [][]float32 { return e.slots }),
	}
	if solver, ok := m.solver.(*FTRLSolver); ok {
		states.Dense = solver.States()
	} else {
		log.Logger().Warn("optimizer states of dense parameters are not saved", zap.String("optimizer", m.opts.Optimizer))
	}
	return errors.Trace(encoding.WriteGob(w, states))
}

// LoadCheckpoint restores a checkpoint written by a network of the same architecture.
// Parameters are left unchanged if the checkpoint is rejected.
func (m *WideDeep) LoadCheckpoint(r io.Reader) error {
	magic, err := encoding.ReadString(r)
	if err != nil {
		return errors.Trace(err)
	}
	if magic != checkpointMagic {
		return errors.NotValidf("checkpoint format %q", magic)
	}
	var header checkpointHeader
	if err = encoding.ReadGob(r, &header); err != nil {
		return errors.Trace(err)
	}
	var arch config.Architecture
	if err = encoding.ReadGob(r, &arch); err != nil {
		return errors.Trace(err)
	}
	params := m.parameters()
	if !reflect.DeepEqual(arch, m.arch) || header.NumParams != len(params) {
		return errors.NotValidf("checkpoint of different architecture")
	}
	// read weights
	values := make([][]float32, len(params))
	for i := range params {
		values[i] = make([]float32, len(params[i]))
		if err = encoding.ReadFloat32s(r, values[i]); err != nil {
			return errors.Annotatef(err, "checkpoint parameter %d", i)
		}
	}
	// read optimizer states
	var states optimizerStates
	applyStates := false
	if header.WithOptimizer {
		if err = encoding.ReadGob(r, &states); err != nil {
			return errors.Trace(err)
		}
		if header.Optimizer != m.opts.Optimizer {
			log.Logger().Warn("ignore optimizer states of another optimizer",
				zap.String("checkpoint", header.Optimizer), zap.String("optimizer", m.opts.Optimizer))
		} else if err = m.checkStates(states); err != nil {
			return err
		} else {
			applyStates = true
		}
	}

	for i := range params {
		copy(params[i], values[i])
	}
	m.clearGradients()
	if !applyStates {
		return nil
	}
	m.sparseRule.setClock(states.Clock)
	m.linear.slots = states.Linear
	for i, e := range m.embeddings {
		e.slots = states.Embeddings[i]
	}
	if solver, ok := m.solver.(*FTRLSolver); ok && states.Dense != nil {
		solver.SetStates(states.Dense)
	}
	return nil
}

// checkStates verifies that sparse optimizer slots fit the tables.
func (m *WideDeep) checkStates(states optimizerStates) error {
	if len(states.Embeddings) != len(m.embeddings) {
		return errors.NotValidf("optimizer states of %d embeddings", len(states.Embeddings))
	}
	tables := append([]*table{m.linear}, m.embeddings...)
	slots := append([][][]float32{states.Linear}, states.Embeddings...)
	for i, t := range tables {
		for _, slot := range slots[i] {
			if len(slot) != len(t.data) {
				return errors.NotValidf("optimizer state of length %d, expected %d", len(slot), len(t.data))
			}
		}
	}
	return nil
}
