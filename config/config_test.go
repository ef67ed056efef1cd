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
	"os"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"github.com/pipipiu/HandsOn-RecSys2020/model"
)

func TestUnmarshal(t *testing.T) {
	data, err := os.ReadFile("config.toml.template")
	assert.NoError(t, err)
	viper.SetConfigType("toml")
	err = viper.ReadConfig(strings.NewReader(string(data)))
	assert.NoError(t, err)
	var config Config
	err = viper.Unmarshal(&config)
	assert.NoError(t, err)

	// [data]
	assert.Equal(t, "ml-100k", config.Data.Dataset)
	assert.Equal(t, "", config.Data.Path)
	assert.Equal(t, "\t", config.Data.Separator)
	assert.False(t, config.Data.Header)
	assert.Equal(t, 0, config.Data.NumTestUsers)
	// [bpr]
	assert.Equal(t, 16, config.BPR.NFactors)
	assert.Equal(t, 100, config.BPR.NEpochs)
	assert.Equal(t, 0.05, config.BPR.Lr)
	assert.Equal(t, 0.01, config.BPR.Reg)
	assert.Equal(t, 0.0, config.BPR.InitMean)
	assert.Equal(t, 0.001, config.BPR.InitStdDev)
	// [apr]
	assert.Equal(t, 100, config.APR.NEpochs)
	assert.Equal(t, 0.5, config.APR.Eps)
	assert.Equal(t, 1.0, config.APR.AdvLambda)
	// [attack]
	assert.Equal(t, 0.5, config.Attack.Epsilon)
	// [evaluate]
	assert.Equal(t, 10, config.Evaluate.TopK)
	assert.Equal(t, 100, config.Evaluate.Candidates)
	assert.Equal(t, 10, config.Evaluate.Verbose)
	assert.Equal(t, 1, config.Evaluate.Jobs)
}

func TestSetDefault(t *testing.T) {
	viper.Reset()
	setDefault()
	viper.SetConfigType("toml")
	err := viper.ReadConfig(strings.NewReader(""))
	assert.NoError(t, err)
	var config Config
	err = viper.Unmarshal(&config)
	assert.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), &config)
}

type environmentVariable struct {
	key   string
	value string
}

func TestBindEnv(t *testing.T) {
	variables := []environmentVariable{
		{"HANDSON_DATASET", "ml-1m"},
		{"HANDSON_DATA_PATH", "/tmp/feedback.csv"},
		{"HANDSON_ATTACK_EPSILON", "2.5"},
		{"HANDSON_JOBS", "4"},
	}
	for _, variable := range variables {
		t.Setenv(variable.key, variable.value)
	}
	viper.Reset()
	config, err := LoadConfig("")
	assert.NoError(t, err)
	assert.Equal(t, "ml-1m", config.Data.Dataset)
	assert.Equal(t, "/tmp/feedback.csv", config.Data.Path)
	assert.Equal(t, 2.5, config.Attack.Epsilon)
	assert.Equal(t, 4, config.Evaluate.Jobs)
}

func TestParams(t *testing.T) {
	config := GetDefaultConfig()
	params := config.BPRParams()
	assert.Equal(t, 16, params.GetInt(model.NFactors, 0))
	assert.Equal(t, float32(0.05), params.GetFloat32(model.Lr, 0))
	merged := params.Overwrite(config.APRParams())
	assert.Equal(t, float32(0.5), merged.GetFloat32(model.Eps, 0))
	assert.Equal(t, 16, merged.GetInt(model.NFactors, 0))
	assert.Equal(t, 100, merged.GetInt(model.NEpochs, 0))
}
