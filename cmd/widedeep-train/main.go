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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorse-io/widedeep/cmd/version"
	"github.com/gorse-io/widedeep/common/log"
	"github.com/gorse-io/widedeep/config"
	"github.com/gorse-io/widedeep/dataset"
	"github.com/gorse-io/widedeep/model"
	"github.com/gorse-io/widedeep/storage/blob"
	"github.com/gorse-io/widedeep/trainer"
	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	exitFailure = 1
	exitUsage   = 2
)

// usageError is reported with the usage message and exit code 2.
type usageError struct {
	err error
}

func (e *usageError) Error() string {
	return e.err.Error()
}

func (e *usageError) Unwrap() error {
	return e.err
}

var trainCommand = &cobra.Command{
	Use:           "widedeep-train",
	Short:         "Train a wide and deep network on the Criteo dataset.",
	SilenceErrors: true,
	SilenceUsage:  true,
	Args: func(cmd *cobra.Command, args []string) error {
		if err := cobra.NoArgs(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// Show version
		if showVersion, _ := cmd.Flags().GetBool("version"); showVersion {
			fmt.Println(version.BuildInfo())
			return nil
		}

		// setup logger
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)
		defer func() { _ = log.Logger().Sync() }()

		// load config
		configPath, _ := cmd.Flags().GetString("config")
		conf, err := config.LoadConfig(configPath, cmd.Flags())
		if err != nil {
			if errors.Is(err, errors.NotValid) {
				return &usageError{err: err}
			}
			return errors.Trace(err)
		}
		log.Logger().Info("load config", append([]zap.Field{zap.String("config", configPath)}, conf.ZapFields()...)...)

		// open artifact store
		store, err := blob.Open(conf.Storage.URL, conf.Storage)
		if err != nil {
			if errors.Is(err, errors.NotValid) {
				return &usageError{err: err}
			}
			return errors.Annotate(err, "failed to open artifact store")
		}
		log.Logger().Info("open artifact store", zap.String("url", log.RedactURL(conf.Storage.URL)))

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		arch := config.Criteo()
		t := &trainer.Trainer{
			Config:  conf,
			Arch:    arch,
			Loader:  dataset.NewCriteoLoader(arch),
			Builder: model.NewWideDeepBuilder(),
			Store:   store,
		}
		return t.Run(ctx)
	},
}

func init() {
	trainCommand.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})
	config.AddFlags(trainCommand.Flags())
	log.AddFlags(trainCommand.Flags())
	trainCommand.Flags().Bool("debug", false, "use debug log mode")
	trainCommand.Flags().BoolP("version", "v", false, "widedeep version")
	trainCommand.Flags().StringP("config", "c", "", "configuration file path")
}

func main() {
	if err := trainCommand.Execute(); err != nil {
		os.Exit(report(trainCommand, err))
	}
}

// report prints an error and returns the exit code.
func report(cmd *cobra.Command, err error) int {
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		fmt.Fprintln(os.Stderr, "Error:", err)
		_ = cmd.Usage()
		return exitUsage
	}
	log.Logger().Error("training failed", zap.Error(err))
	return exitFailure
}
