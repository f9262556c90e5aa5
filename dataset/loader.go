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
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorse-io/widedeep/common/log"
	"github.com/gorse-io/widedeep/config"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Loader reads a labeled dataset file.
type Loader interface {
	Load(dataDir, path string) (*FeatureBundle, error)
}

// CriteoLoader reads the feature engineered Criteo CSV. Each record is
//
//	label, s_1, ..., s_k, e_1, ..., e_m, c_1, ..., c_n
//
// where s_i are sparse tokens "index" or "index:value" (any k >= 0), e_i are embedding
// indices and c_i are continuous values. m and n come from the architecture.
type CriteoLoader struct {
	Arch config.Architecture
}

func NewCriteoLoader(arch config.Architecture) *CriteoLoader {
	return &CriteoLoader{Arch: arch}
}

// Load parses a file. A relative path is resolved against dataDir.
func (l *CriteoLoader) Load(dataDir, path string) (*FeatureBundle, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(dataDir, path)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, &FormatError{Path: path, Reason: err.Error()}
	}
	defer file.Close()
	bundle, err := l.Read(path, file)
	if err != nil {
		return nil, err
	}
	log.Logger().Info("load dataset",
		zap.String("path", path),
		zap.Int("rows", bundle.Count()),
		zap.Int("nnz", bundle.Sparse.NNZ()))
	return bundle, nil
}

// Read parses records from a reader. The path is only used in errors.
func (l *CriteoLoader) Read(path string, r io.Reader) (*FeatureBundle, error) {
	numDense := l.Arch.NumDenseColumns()
	bundle := &FeatureBundle{
		Sparse: NewCSRMatrix(l.Arch.NumLinearFeatures),
		Dense:  NewDenseMatrix(numDense),
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true
	reader.TrimLeadingSpace = true
	var (
		indices []int32
		values  []float32
		dense   = make([]float32, numDense)
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return nil, &FormatError{Path: path, Line: parseErr.Line, Reason: parseErr.Err.Error()}
			}
			return nil, errors.Trace(err)
		}
		line, _ := reader.FieldPos(0)
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		if len(record) < 1+numDense {
			return nil, &FormatError{Path: path, Line: line,
				Reason: fmt.Sprintf("expect at least %d columns but got %d", 1+numDense, len(record))}
		}
		// label
		label, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 32)
		if err != nil {
			return nil, &FormatError{Path: path, Line: line, Reason: fmt.Sprintf("invalid label %q", record[0])}
		}
		// sparse features
		numSparse := len(record) - 1 - numDense
		indices, values = indices[:0], values[:0]
		for _, token := range record[1 : 1+numSparse] {
			index, value, err := parseSparseToken(strings.TrimSpace(token))
			if err != nil {
				return nil, &FormatError{Path: path, Line: line, Reason: err.Error()}
			}
			indices = append(indices, index)
			values = append(values, value)
		}
		// embedding indices and continuous features
		for j, token := range record[1+numSparse:] {
			token = strings.TrimSpace(token)
			if j < l.Arch.NumEmbedFeatures {
				index, err := strconv.ParseInt(token, 10, 32)
				if err != nil {
					return nil, &FormatError{Path: path, Line: line, Reason: fmt.Sprintf("invalid embedding index %q", token)}
				}
				dense[j] = float32(index)
			} else {
				value, err := strconv.ParseFloat(token, 32)
				if err != nil {
					return nil, &FormatError{Path: path, Line: line, Reason: fmt.Sprintf("invalid continuous value %q", token)}
				}
				dense[j] = float32(value)
			}
		}
		bundle.Sparse.AppendRow(indices, values)
		bundle.Dense.AppendRow(dense)
		bundle.Labels = append(bundle.Labels, float32(label))
	}
	return bundle, nil
}

func parseSparseToken(token string) (int32, float32, error) {
	k, v, hasValue := strings.Cut(token, ":")
	index, err := strconv.ParseInt(k, 10, 32)
	if err != nil {
		return 0, 0, errors.Errorf("invalid sparse index %q", token)
	}
	if !hasValue {
		return int32(index), 1, nil
	}
	value, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return 0, 0, errors.Errorf("invalid sparse value %q", token)
	}
	return int32(index), float32(value), nil
}
