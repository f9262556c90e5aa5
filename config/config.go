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
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	OptimizerFTRL = "ftrl"
	OptimizerSGD  = "sgd"
	OptimizerAdam = "adam"
)

const (
	MetricAccuracy = "acc"
	MetricAUC      = "auc"
)

// Device is the compute device the model is bound to.
type Device string

const (
	CPU Device = "cpu"
	GPU Device = "gpu"
)

// RunConfig is the configuration of a training run. It is created once at startup
// and must not be modified afterwards.
type RunConfig struct {
	NumEpoch    int              `mapstructure:"num_epoch" validate:"gt=0"`
	BatchSize   int              `mapstructure:"batch_size" validate:"gt=0"`
	LR          float64          `mapstructure:"lr" validate:"gt=0"`
	Cuda        bool             `mapstructure:"cuda"`
	Optimizer   string           `mapstructure:"optimizer" validate:"oneof=ftrl sgd adam"`
	LogInterval int              `mapstructure:"log_interval" validate:"gt=0"`
	DataDir     string           `mapstructure:"data_dir" validate:"required"`
	Seed        int64            `mapstructure:"seed"`
	Metrics     []string         `mapstructure:"metrics" validate:"min=1,dive,oneof=acc auc"`
	MetricsFile string           `mapstructure:"metrics_file"`
	Checkpoint  CheckpointConfig `mapstructure:"checkpoint"`
	Storage     StorageConfig    `mapstructure:"storage"`
}

type CheckpointConfig struct {
	Prefix              string `mapstructure:"prefix" validate:"required"`
	Fatal               bool   `mapstructure:"fatal"`
	SaveOptimizerStates bool   `mapstructure:"save_optimizer_states"`
	LoadEpoch           int    `mapstructure:"load_epoch" validate:"gte=-1"`
}

// StorageConfig locates the artifact store for preprocessed data and checkpoints.
// An empty URL means the current working directory.
type StorageConfig struct {
	URL   string          `mapstructure:"url"`
	S3    S3Config        `mapstructure:"s3"`
	GCS   GCSConfig       `mapstructure:"gcs"`
	Azure AzureBlobConfig `mapstructure:"azure"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

type GCSConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
}

type AzureBlobConfig struct {
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	Endpoint         string `mapstructure:"endpoint"`
}

// Device returns the device selected by the cuda switch.
func (c *RunConfig) Device() Device {
	if c.Cuda {
		return GPU
	}
	return CPU
}

// Validate checks every field against its domain.
func (c *RunConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.NewNotValid(err, "invalid configuration")
	}
	return nil
}

// ZapFields renders the configuration for the startup log line.
func (c *RunConfig) ZapFields() []zap.Field {
	return []zap.Field{
		zap.Int("num_epoch", c.NumEpoch),
		zap.Int("batch_size", c.BatchSize),
		zap.Float64("lr", c.LR),
		zap.String("device", string(c.Device())),
		zap.String("optimizer", c.Optimizer),
		zap.Int("log_interval", c.LogInterval),
		zap.String("data_dir", c.DataDir),
		zap.Int64("seed", c.Seed),
		zap.Strings("metrics", c.Metrics),
		zap.String("checkpoint_prefix", c.Checkpoint.Prefix),
		zap.Bool("checkpoint_fatal", c.Checkpoint.Fatal),
		zap.Int("load_epoch", c.Checkpoint.LoadEpoch),
	}
}

func GetDefaultConfig() *RunConfig {
	return &RunConfig{
		NumEpoch:    1,
		BatchSize:   1000,
		LR:          0.001,
		Optimizer:   OptimizerAdam,
		LogInterval: 100,
		DataDir:     "large_version",
		Metrics:     []string{MetricAccuracy},
		Checkpoint: CheckpointConfig{
			Prefix:    "checkpoint",
			LoadEpoch: -1,
		},
	}
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	v.SetDefault("num_epoch", defaultConfig.NumEpoch)
	v.SetDefault("batch_size", defaultConfig.BatchSize)
	v.SetDefault("lr", defaultConfig.LR)
	v.SetDefault("cuda", defaultConfig.Cuda)
	v.SetDefault("optimizer", defaultConfig.Optimizer)
	v.SetDefault("log_interval", defaultConfig.LogInterval)
	v.SetDefault("data_dir", defaultConfig.DataDir)
	v.SetDefault("seed", defaultConfig.Seed)
	v.SetDefault("metrics", defaultConfig.Metrics)
	v.SetDefault("metrics_file", defaultConfig.MetricsFile)
	// [checkpoint]
	v.SetDefault("checkpoint.prefix", defaultConfig.Checkpoint.Prefix)
	v.SetDefault("checkpoint.fatal", defaultConfig.Checkpoint.Fatal)
	v.SetDefault("checkpoint.save_optimizer_states", defaultConfig.Checkpoint.SaveOptimizerStates)
	v.SetDefault("checkpoint.load_epoch", defaultConfig.Checkpoint.LoadEpoch)
	// [storage]
	v.SetDefault("storage.url", "")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.use_ssl", true)
	v.SetDefault("storage.gcs.credentials_file", "")
	v.SetDefault("storage.azure.account_name", "")
	v.SetDefault("storage.azure.account_key", "")
	v.SetDefault("storage.azure.connection_string", "")
	v.SetDefault("storage.azure.endpoint", "")
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"num-epoch":             "num_epoch",
	"batch-size":            "batch_size",
	"lr":                    "lr",
	"cuda":                  "cuda",
	"optimizer":             "optimizer",
	"log-interval":          "log_interval",
	"data-dir":              "data_dir",
	"seed":                  "seed",
	"metrics":               "metrics",
	"metrics-file":          "metrics_file",
	"checkpoint-prefix":     "checkpoint.prefix",
	"checkpoint-fatal":      "checkpoint.fatal",
	"save-optimizer-states": "checkpoint.save_optimizer_states",
	"load-epoch":            "checkpoint.load_epoch",
	"storage":               "storage.url",
}

// AddFlags registers the training flags with their documented defaults.
func AddFlags(flagSet *pflag.FlagSet) {
	defaultConfig := GetDefaultConfig()
	flagSet.Int("num-epoch", defaultConfig.NumEpoch, "number of epochs to train")
	flagSet.Int("batch-size", defaultConfig.BatchSize, "number of examples per batch")
	flagSet.Float64("lr", defaultConfig.LR, "learning rate")
	flagSet.Bool("cuda", defaultConfig.Cuda, "train on GPU with CUDA")
	flagSet.String("optimizer", defaultConfig.Optimizer, "what optimizer to use (ftrl, sgd, adam)")
	flagSet.Int("log-interval", defaultConfig.LogInterval, "number of batches to wait before logging training status")
	flagSet.String("data-dir", defaultConfig.DataDir, "folder for data")
	flagSet.Int64("seed", defaultConfig.Seed, "random seed for shuffling and initialization (0 uses the clock)")
	flagSet.StringSlice("metrics", defaultConfig.Metrics, "metrics to track (acc, auc)")
	flagSet.String("metrics-file", defaultConfig.MetricsFile, "write prometheus metrics to this file after training")
	flagSet.String("checkpoint-prefix", defaultConfig.Checkpoint.Prefix, "base name of checkpoint files")
	flagSet.Bool("checkpoint-fatal", defaultConfig.Checkpoint.Fatal, "abort the run if a checkpoint cannot be written")
	flagSet.Bool("save-optimizer-states", defaultConfig.Checkpoint.SaveOptimizerStates, "save optimizer states in checkpoints")
	flagSet.Int("load-epoch", defaultConfig.Checkpoint.LoadEpoch, "resume from the checkpoint of this epoch (-1 starts from scratch)")
	flagSet.String("storage", "", "artifact store URL (file://, s3://, gcs://, azblob://), defaults to the working directory")
}

// LoadConfig loads configuration from the config file (optional), environment variables
// prefixed with WIDEDEEP_ and command line flags, in increasing order of precedence.
func LoadConfig(path string, flagSet *pflag.FlagSet) (*RunConfig, error) {
	v := viper.New()
	setDefault(v)

	// bind flags
	if flagSet != nil {
		for name, key := range flagKeys {
			if flag := flagSet.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, errors.Trace(err)
				}
			}
		}
	}

	// bind environment variables
	v.SetEnvPrefix("widedeep")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// load config file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Annotatef(err, "failed to read config file %s", path)
		}
	}

	var conf RunConfig
	if err := v.Unmarshal(&conf); err != nil {
		return nil, errors.NewNotValid(err, "failed to parse configuration")
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}
