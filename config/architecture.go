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

package config

import (
	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
)

// Architecture describes the dataset layout and the network shape.
// HiddenUnits[0] is the embedding width and the rest are fully connected widths.
type Architecture struct {
	TrainFile         string `validate:"required"`
	TestFile          string `validate:"required"`
	NumLinearFeatures int    `validate:"gt=0"`
	NumEmbedFeatures  int    `validate:"gte=0"`
	NumContFeatures   int    `validate:"gte=0"`
	EmbedInputDims    int    `validate:"gt=0"`
	HiddenUnits       []int  `validate:"min=2,dive,gt=0"`
}

// Criteo returns the architecture of the feature engineered Criteo dataset.
func Criteo() Architecture {
	return Architecture{
		TrainFile:         "train.csv",
		TestFile:          "eval.csv",
		NumLinearFeatures: 26000,
		NumEmbedFeatures:  26,
		NumContFeatures:   13,
		EmbedInputDims:    1000,
		HiddenUnits:       []int{32, 1024, 512, 256},
	}
}

// EmbedWidth is the output width of every embedding table.
func (a Architecture) EmbedWidth() int {
	return a.HiddenUnits[0]
}

// NumDenseColumns is the column count of the dense matrix.
func (a Architecture) NumDenseColumns() int {
	return a.NumEmbedFeatures + a.NumContFeatures
}

// DeepInputWidth is the width of the concatenated embeddings and continuous features.
func (a Architecture) DeepInputWidth() int {
	return a.NumEmbedFeatures*a.EmbedWidth() + a.NumContFeatures
}

func (a Architecture) Validate() error {
	if err := validator.New().Struct(a); err != nil {
		return errors.NewNotValid(err, "invalid architecture")
	}
	if a.DeepInputWidth() == 0 {
		return errors.NotValidf("architecture without deep input")
	}
	return nil
}
