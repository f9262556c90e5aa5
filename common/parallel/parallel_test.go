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

package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 4}, {4, 7}, {7, 10}}, Split(10, 3))
	assert.Equal(t, [][2]int{{0, 1}, {1, 2}}, Split(2, 8))
	assert.Equal(t, [][2]int{{0, 5}}, Split(5, 0))
	assert.Nil(t, Split(0, 4))
}

func TestFor(t *testing.T) {
	for _, nWorkers := range []int{1, 3, 16} {
		visits := make([]int32, 100)
		err := For(len(visits), nWorkers, func(begin, end int) error {
			for i := begin; i < end; i++ {
				atomic.AddInt32(&visits[i], 1)
			}
			return nil
		})
		assert.NoError(t, err)
		for i := range visits {
			assert.Equal(t, int32(1), visits[i], "worker count %d, index %d", nWorkers, i)
		}
	}
}

func TestForError(t *testing.T) {
	err := For(100, 4, func(begin, end int) error {
		if begin <= 50 && 50 < end {
			return errors.NotValidf("index 50")
		}
		return nil
	})
	assert.True(t, errors.Is(err, errors.NotValid))

	err = For(10, 1, func(begin, end int) error {
		return errors.NotFoundf("range [%d, %d)", begin, end)
	})
	assert.True(t, errors.Is(err, errors.NotFound))
}
