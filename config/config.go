// Copyright 2020 HandsOn-RecSys Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"strings"

	"github.com/juju/errors"
	"github.com/spf13/viper"

	"github.com/pipipiu/HandsOn-RecSys2020/model"
)

// Config is the configuration of the adversarial training pipeline.
type Config struct {
	Data     DataConfig     `mapstructure:"data"`
	BPR      BPRConfig      `mapstructure:"bpr"`
	APR      APRConfig      `mapstructure:"apr"`
	Attack   AttackConfig   `mapstructure:"attack"`
	Evaluate EvaluateConfig `mapstructure:"evaluate"`
}

// DataConfig describes where feedback comes from.
type DataConfig struct {
	// Dataset is the name of a built-in dataset. Ignored when Path is set.
	Dataset string `mapstructure:"dataset"`
	// Path of a delimited feedback file.
	Path         string `mapstructure:"path"`
	Separator    string `mapstructure:"separator"`
	Header       bool   `mapstructure:"header"`
	NumTestUsers int    `mapstructure:"n_test_users"`
	RandomState  int64  `mapstructure:"random_state"`
}

// BPRConfig carries the hyper-parameters of the base ranking model.
type BPRConfig struct {
	NFactors    int     `mapstructure:"n_factors"`
	NEpochs     int     `mapstructure:"n_epochs"`
	Lr          float64 `mapstructure:"lr"`
	Reg         float64 `mapstructure:"reg"`
	InitMean    float64 `mapstructure:"init_mean"`
	InitStdDev  float64 `mapstructure:"init_std_dev"`
	RandomState int64   `mapstructure:"random_state"`
}

// APRConfig carries the hyper-parameters of adversarial training.
type APRConfig struct {
	NEpochs   int     `mapstructure:"n_epochs"`
	Eps       float64 `mapstructure:"eps"`
	AdvLambda float64 `mapstructure:"adv_lambda"`
}

// AttackConfig carries the parameters of the evaluation time attack.
type AttackConfig struct {
	Epsilon float64 `mapstructure:"epsilon"`
}

// EvaluateConfig carries the parameters of top-n evaluation.
type EvaluateConfig struct {
	TopK       int `mapstructure:"top_k"`
	Candidates int `mapstructure:"n_candidates"`
	Verbose    int `mapstructure:"verbose"`
	Jobs       int `mapstructure:"jobs"`
}

// GetDefaultConfig returns the default configuration.
func GetDefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			Dataset:   "ml-100k",
			Separator: "\t",
		},
		BPR: BPRConfig{
			NFactors:   16,
			NEpochs:    100,
			Lr:         0.05,
			Reg:        0.01,
			InitStdDev: 0.001,
		},
		APR: APRConfig{
			NEpochs:   100,
			Eps:       0.5,
			AdvLambda: 1,
		},
		Attack: AttackConfig{
			Epsilon: 0.5,
		},
		Evaluate: EvaluateConfig{
			TopK:       10,
			Candidates: 100,
			Verbose:    10,
			Jobs:       1,
		},
	}
}

func setDefault() {
	defaultConfig := GetDefaultConfig()
	// [data]
	viper.SetDefault("data.dataset", defaultConfig.Data.Dataset)
	viper.SetDefault("data.path", defaultConfig.Data.Path)
	viper.SetDefault("data.separator", defaultConfig.Data.Separator)
	viper.SetDefault("data.header", defaultConfig.Data.Header)
	viper.SetDefault("data.n_test_users", defaultConfig.Data.NumTestUsers)
	viper.SetDefault("data.random_state", defaultConfig.Data.RandomState)
	// [bpr]
	viper.SetDefault("bpr.n_factors", defaultConfig.BPR.NFactors)
	viper.SetDefault("bpr.n_epochs", defaultConfig.BPR.NEpochs)
	viper.SetDefault("bpr.lr", defaultConfig.BPR.Lr)
	viper.SetDefault("bpr.reg", defaultConfig.BPR.Reg)
	viper.SetDefault("bpr.init_mean", defaultConfig.BPR.InitMean)
	viper.SetDefault("bpr.init_std_dev", defaultConfig.BPR.InitStdDev)
	viper.SetDefault("bpr.random_state", defaultConfig.BPR.RandomState)
	// [apr]
	viper.SetDefault("apr.n_epochs", defaultConfig.APR.NEpochs)
	viper.SetDefault("apr.eps", defaultConfig.APR.Eps)
	viper.SetDefault("apr.adv_lambda", defaultConfig.APR.AdvLambda)
	// [attack]
	viper.SetDefault("attack.epsilon", defaultConfig.Attack.Epsilon)
	// [evaluate]
	viper.SetDefault("evaluate.top_k", defaultConfig.Evaluate.TopK)
	viper.SetDefault("evaluate.n_candidates", defaultConfig.Evaluate.Candidates)
	viper.SetDefault("evaluate.verbose", defaultConfig.Evaluate.Verbose)
	viper.SetDefault("evaluate.jobs", defaultConfig.Evaluate.Jobs)
}

type configBinding struct {
	key string
	env string
}

func bindEnv() {
	bindings := []configBinding{
		{"data.dataset", "HANDSON_DATASET"},
		{"data.path", "HANDSON_DATA_PATH"},
		{"attack.epsilon", "HANDSON_ATTACK_EPSILON"},
		{"evaluate.jobs", "HANDSON_JOBS"},
	}
	for _, binding := range bindings {
		err := viper.BindEnv(binding.key, binding.env)
		if err != nil {
			panic(err)
		}
	}
}

// LoadConfig loads the configuration from a TOML file. An empty path returns
// the default configuration. Environment variables take precedence over the
// configuration file.
func LoadConfig(path string) (*Config, error) {
	setDefault()
	bindEnv()
	viper.SetConfigType("toml")
	if path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, errors.Trace(err)
		}
	} else {
		if err := viper.ReadConfig(strings.NewReader("")); err != nil {
			return nil, errors.Trace(err)
		}
	}
	var conf Config
	if err := viper.Unmarshal(&conf); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

// BPRParams converts the BPR section to model hyper-parameters.
func (config *Config) BPRParams() model.Params {
	return model.Params{
		model.NFactors:    config.BPR.NFactors,
		model.NEpochs:     config.BPR.NEpochs,
		model.Lr:          config.BPR.Lr,
		model.Reg:         config.BPR.Reg,
		model.InitMean:    config.BPR.InitMean,
		model.InitStdDev:  config.BPR.InitStdDev,
		model.RandomState: config.BPR.RandomState,
	}
}

// APRParams converts the APR section to model hyper-parameters. The base
// hyper-parameters are shared with BPR.
func (config *Config) APRParams() model.Params {
	return model.Params{
		model.NEpochs:   config.APR.NEpochs,
		model.Eps:       config.APR.Eps,
		model.AdvLambda: config.APR.AdvLambda,
	}
}
