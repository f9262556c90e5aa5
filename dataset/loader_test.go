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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCriteoLoader(t *testing.T) {
	dir := t.TempDir()
	content := strings.Join([]string{
		"1,2,5:0.5,7,0,4,0.25",
		"0,0,3,1.5",
		"",
		"1,9:2,1,1,-1",
	}, "\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "train.csv"), []byte(content), 0644))

	loader := NewCriteoLoader(smallArch())
	bundle, err := loader.Load(dir, "train.csv")
	require.NoError(t, err)
	assert.NoError(t, bundle.Validate(smallArch()))
	assert.Equal(t, 3, bundle.Count())
	assert.Equal(t, []float32{1, 0, 1}, bundle.Labels)

	indices, values := bundle.Sparse.Row(0)
	assert.Equal(t, []int32{2, 5, 7}, indices)
	assert.Equal(t, []float32{1, 0.5, 1}, values)
	indices, _ = bundle.Sparse.Row(1)
	assert.Empty(t, indices)
	indices, values = bundle.Sparse.Row(2)
	assert.Equal(t, []int32{9}, indices)
	assert.Equal(t, []float32{2}, values)

	assert.Equal(t, []float32{0, 4, 0.25}, bundle.Dense.Row(0))
	assert.Equal(t, []float32{0, 3, 1.5}, bundle.Dense.Row(1))
	assert.Equal(t, []float32{1, 1, -1}, bundle.Dense.Row(2))

	// absolute path ignores the data directory
	bundle, err = loader.Load("elsewhere", filepath.Join(dir, "train.csv"))
	require.NoError(t, err)
	assert.Equal(t, 3, bundle.Count())
}

func TestCriteoLoaderErrors(t *testing.T) {
	dir := t.TempDir()
	loader := NewCriteoLoader(smallArch())

	// missing file
	_, err := loader.Load(dir, "missing.csv")
	var formatErr *FormatError
	require.True(t, errors.As(err, &formatErr))
	assert.Equal(t, filepath.Join(dir, "missing.csv"), formatErr.Path)

	testCases := []struct {
		name    string
		content string
		line    int
	}{
		{"too few columns", "1,0,4,0.25\n0,1,4\n", 2},
		{"invalid label", "yes,0,4,0.25\n", 1},
		{"invalid sparse index", "1,a,0,4,0.25\n", 1},
		{"invalid sparse value", "1,3:b,0,4,0.25\n", 1},
		{"invalid embedding index", "1,0,0.5,4,0.25\n", 1},
		{"invalid continuous value", "1,0,1,4,nan?\n", 1},
		{"bare quote", "1,0,1\"4,4,0.25\n", 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, "bad.csv")
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0644))
			_, err := loader.Load(dir, "bad.csv")
			var formatErr *FormatError
			require.True(t, errors.As(err, &formatErr), err)
			assert.Equal(t, path, formatErr.Path)
			assert.Equal(t, tc.line, formatErr.Line)
			assert.Contains(t, err.Error(), path)
		})
	}
}
