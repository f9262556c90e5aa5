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
	"sync"

	"github.com/juju/errors"
	"modernc.org/mathutil"
)

// Split divides [0, n) into at most nChunks contiguous ranges whose sizes differ by
// at most one. Each range is returned as [begin, end).
func Split(n, nChunks int) [][2]int {
	if n <= 0 {
		return nil
	}
	nChunks = mathutil.Max(mathutil.Min(nChunks, n), 1)
	minChunkSize := n / nChunks
	maxChunkNum := n % nChunks
	chunks := make([][2]int, nChunks)
	for i, begin := 0, 0; i < nChunks; i++ {
		chunkSize := minChunkSize
		if i < maxChunkNum {
			chunkSize++
		}
		chunks[i] = [2]int{begin, begin + chunkSize}
		begin += chunkSize
	}
	return chunks
}

// For runs worker on contiguous ranges of [0, n) with at most nWorkers goroutines and
// returns the error of the first failed range.
func For(n, nWorkers int, worker func(begin, end int) error) error {
	chunks := Split(n, nWorkers)
	if len(chunks) <= 1 {
		return errors.Trace(worker(0, n))
	}
	errs := make([]error, len(chunks))
	var wg sync.WaitGroup
	for i, chunk := range chunks {
		wg.Go(func() {
			errs[i] = worker(chunk[0], chunk[1])
		})
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}
