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

package trainer

import "fmt"

// ResourceError reports a failed write of an artifact.
type ResourceError struct {
	Op   string
	Name string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Name, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

// ComputationError reports a failure of the forward pass, the backward pass or the
// parameter update. It always aborts the run.
type ComputationError struct {
	Epoch int
	Batch int
	Err   error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("computation failed at epoch %d batch %d: %v", e.Epoch, e.Batch, e.Err)
}

func (e *ComputationError) Unwrap() error {
	return e.Err
}
