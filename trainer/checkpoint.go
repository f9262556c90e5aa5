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

import (
	"bufio"
	"fmt"

	"github.com/gorse-io/widedeep/common/log"
	"github.com/gorse-io/widedeep/config"
	"github.com/gorse-io/widedeep/model"
	"github.com/gorse-io/widedeep/storage/blob"
	"go.uber.org/zap"
)

// CheckpointName returns the artifact name of the checkpoint of an epoch.
func CheckpointName(prefix string, epoch int) string {
	return fmt.Sprintf("%s-%d", prefix, epoch)
}

// Checkpointer writes one checkpoint per epoch.
type Checkpointer struct {
	store  blob.Store
	config config.CheckpointConfig
}

func NewCheckpointer(store blob.Store, cfg config.CheckpointConfig) *Checkpointer {
	return &Checkpointer{store: store, config: cfg}
}

// Save writes the parameters of a module, and its optimizer states if configured,
// to the checkpoint of the epoch. A failed write is returned only if checkpoint
// failures are fatal.
func (c *Checkpointer) Save(module model.Module, epoch int) error {
	name := CheckpointName(c.config.Prefix, epoch)
	if err := c.save(module, name); err != nil {
		CheckpointFailuresTotal.Inc()
		if c.config.Fatal {
			return err
		}
		log.Logger().Error("failed to save checkpoint", zap.String("name", name), zap.Error(err))
		return nil
	}
	log.Logger().Info("save checkpoint", zap.String("name", name), zap.Int("epoch", epoch))
	return nil
}

func (c *Checkpointer) save(module model.Module, name string) error {
	w, err := c.store.Create(name)
	if err != nil {
		return &ResourceError{Op: "create checkpoint", Name: name, Err: err}
	}
	buf := bufio.NewWriter(w)
	if err = module.SaveCheckpoint(buf, c.config.SaveOptimizerStates); err == nil {
		err = buf.Flush()
	}
	if closeErr := w.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return &ResourceError{Op: "save checkpoint", Name: name, Err: err}
	}
	return nil
}

// Load restores a module from the checkpoint of an epoch.
func (c *Checkpointer) Load(module model.Module, epoch int) error {
	name := CheckpointName(c.config.Prefix, epoch)
	r, err := c.store.Open(name)
	if err != nil {
		return &ResourceError{Op: "open checkpoint", Name: name, Err: err}
	}
	defer r.Close()
	if err = module.LoadCheckpoint(bufio.NewReader(r)); err != nil {
		return &ResourceError{Op: "load checkpoint", Name: name, Err: err}
	}
	log.Logger().Info("load checkpoint", zap.String("name", name), zap.Int("epoch", epoch))
	return nil
}
