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
	"github.com/chewxy/math32"
	"github.com/gorse-io/widedeep/config"
	"github.com/juju/errors"
	"gorgonia.org/gorgonia"
)

const (
	beta1 = 0.9
	beta2 = 0.999
	eps   = 1e-8

	ftrlLambda1 = 0.01
	ftrlBeta    = 1
)

// rule is an element-wise update applied to rows of sparse tables. Gradients are
// rescaled by the caller.
type rule interface {
	numSlots() int
	// step is called once per update before apply.
	step()
	apply(w, g []float32, slots [][]float32)
	// clock is the number of steps taken, restored from checkpoints.
	clock() int
	setClock(t int)
}

func newRule(optimizer string, lr float64) (rule, error) {
	switch optimizer {
	case config.OptimizerSGD:
		return &sgdRule{lr: float32(lr)}, nil
	case config.OptimizerAdam:
		return &adamRule{lr: float32(lr)}, nil
	case config.OptimizerFTRL:
		return &ftrlRule{lr: float32(lr), lambda1: ftrlLambda1, beta: ftrlBeta}, nil
	default:
		return nil, errors.NotValidf("optimizer %q", optimizer)
	}
}

// newSolver creates the solver of dense parameters.
func newSolver(optimizer string, lr float64, batchSize int) (gorgonia.Solver, error) {
	switch optimizer {
	case config.OptimizerSGD:
		return gorgonia.NewVanillaSolver(
			gorgonia.WithLearnRate(lr),
			gorgonia.WithBatchSize(float64(batchSize))), nil
	case config.OptimizerAdam:
		return gorgonia.NewAdamSolver(
			gorgonia.WithLearnRate(lr),
			gorgonia.WithBatchSize(float64(batchSize)),
			gorgonia.WithBeta1(beta1),
			gorgonia.WithBeta2(beta2),
			gorgonia.WithEps(eps)), nil
	case config.OptimizerFTRL:
		return NewFTRLSolver(lr, batchSize), nil
	default:
		return nil, errors.NotValidf("optimizer %q", optimizer)
	}
}

type sgdRule struct {
	lr float32
	t  int
}

func (r *sgdRule) numSlots() int { return 0 }

func (r *sgdRule) step() { r.t++ }

func (r *sgdRule) apply(w, g []float32, _ [][]float32) {
	for i := range w {
		w[i] -= r.lr * g[i]
	}
}

func (r *sgdRule) clock() int { return r.t }

func (r *sgdRule) setClock(t int) { r.t = t }

// adamRule updates touched rows only, like lazy Adam.
type adamRule struct {
	lr float32
	t  int

	correction1 float32
	correction2 float32
}

func (r *adamRule) numSlots() int { return 2 }

func (r *adamRule) step() {
	r.t++
	r.correction1 = 1 - math32.Pow(beta1, float32(r.t))
	r.correction2 = 1 - math32.Pow(beta2, float32(r.t))
}

func (r *adamRule) apply(w, g []float32, slots [][]float32) {
	m, v := slots[0], slots[1]
	for i := range w {
		// m_t = beta_1 * m_{t-1} + (1 - beta_1) * g_t
		m[i] = beta1*m[i] + (1-beta1)*g[i]
		// v_t = beta_2 * v_{t-1} + (1 - beta_2) * g_t^2
		v[i] = beta2*v[i] + (1-beta2)*g[i]*g[i]
		// \theta_t = \theta_{t-1} - \eta * \hat{m}_t / (\sqrt{\hat{v}_t} + \epsilon)
		mHat := m[i] / r.correction1
		vHat := v[i] / r.correction2
		w[i] -= r.lr * mHat / (math32.Sqrt(vHat) + eps)
	}
}

func (r *adamRule) clock() int { return r.t }

func (r *adamRule) setClock(t int) {
	r.t = t
}

// ftrlRule is FTRL-Proximal with L1 regularization. Slots hold z and n.
type ftrlRule struct {
	lr      float32
	lambda1 float32
	beta    float32
	t       int
}

func (r *ftrlRule) numSlots() int { return 2 }

func (r *ftrlRule) step() { r.t++ }

func (r *ftrlRule) apply(w, g []float32, slots [][]float32) {
	z, n := slots[0], slots[1]
	for i := range w {
		nNew := n[i] + g[i]*g[i]
		z[i] += g[i] - (math32.Sqrt(nNew)-math32.Sqrt(n[i]))*w[i]/r.lr
		n[i] = nNew
		if math32.Abs(z[i]) > r.lambda1 {
			w[i] = (math32.Copysign(r.lambda1, z[i]) - z[i]) / ((r.beta + math32.Sqrt(n[i])) / r.lr)
		} else {
			w[i] = 0
		}
	}
}

func (r *ftrlRule) clock() int { return r.t }

func (r *ftrlRule) setClock(t int) { r.t = t }

// FTRLSolver is a gorgonia solver running FTRL-Proximal on dense parameters.
type FTRLSolver struct {
	rule      ftrlRule
	batchSize float32
	slots     [][][]float32
	grad      [][]float32
}

func NewFTRLSolver(lr float64, batchSize int) *FTRLSolver {
	return &FTRLSolver{
		rule:      ftrlRule{lr: float32(lr), lambda1: ftrlLambda1, beta: ftrlBeta},
		batchSize: float32(batchSize),
	}
}

// Step updates every parameter in place.
func (s *FTRLSolver) Step(model []gorgonia.ValueGrad) error {
	if s.slots == nil {
		s.slots = make([][][]float32, len(model))
		s.grad = make([][]float32, len(model))
	}
	if len(model) != len(s.slots) {
		return errors.Errorf("expect %d parameters but got %d", len(s.slots), len(model))
	}
	s.rule.step()
	for i, vg := range model {
		w, ok := vg.Value().Data().([]float32)
		if !ok {
			return errors.Errorf("unsupported parameter type %T", vg.Value().Data())
		}
		grad, err := vg.Grad()
		if err != nil {
			return errors.Trace(err)
		}
		g, ok := grad.Data().([]float32)
		if !ok {
			return errors.Errorf("unsupported gradient type %T", grad.Data())
		}
		if len(s.slots[i]) == 0 {
			s.slots[i] = [][]float32{make([]float32, len(w)), make([]float32, len(w))}
			s.grad[i] = make([]float32, len(w))
		}
		for j := range g {
			s.grad[i][j] = g[j] / s.batchSize
		}
		s.rule.apply(w, s.grad[i], s.slots[i])
	}
	return nil
}

// States returns the z and n accumulators of every parameter.
func (s *FTRLSolver) States() [][][]float32 {
	return s.slots
}

// SetStates restores accumulators saved by States.
func (s *FTRLSolver) SetStates(slots [][][]float32) {
	s.slots = slots
	s.grad = make([][]float32, len(slots))
	for i := range slots {
		if len(slots[i]) > 0 {
			s.grad[i] = make([]float32, len(slots[i][0]))
		}
	}
}
