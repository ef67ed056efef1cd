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

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParams_GetInt(t *testing.T) {
	p := Params{}
	assert.Equal(t, 10, p.GetInt(NEpochs, 10))
	p[NEpochs] = 100
	assert.Equal(t, 100, p.GetInt(NEpochs, 10))
	p[NEpochs] = float64(20)
	assert.Equal(t, 20, p.GetInt(NEpochs, 10))
	p[NEpochs] = "hello"
	assert.Equal(t, 10, p.GetInt(NEpochs, 10))
}

func TestParams_GetInt64(t *testing.T) {
	p := Params{}
	assert.Equal(t, int64(10), p.GetInt64(RandomState, 10))
	p[RandomState] = int64(100)
	assert.Equal(t, int64(100), p.GetInt64(RandomState, 10))
	p[RandomState] = 50
	assert.Equal(t, int64(50), p.GetInt64(RandomState, 10))
}

func TestParams_GetFloat32(t *testing.T) {
	p := Params{}
	assert.Equal(t, float32(0.1), p.GetFloat32(Lr, 0.1))
	p[Lr] = float32(1)
	assert.Equal(t, float32(1), p.GetFloat32(Lr, 0.1))
	p[Lr] = float64(2)
	assert.Equal(t, float32(2), p.GetFloat32(Lr, 0.1))
	p[Lr] = 3
	assert.Equal(t, float32(3), p.GetFloat32(Lr, 0.1))
}

func TestParams_Copy(t *testing.T) {
	p := Params{Lr: 0.5}
	q := p.Copy()
	q[Lr] = 0.1
	assert.Equal(t, float32(0.5), p.GetFloat32(Lr, 0))
	assert.Equal(t, float32(0.1), q.GetFloat32(Lr, 0))
}

func TestParams_Overwrite(t *testing.T) {
	p := Params{Lr: 0.5, Reg: 0.01}
	q := p.Overwrite(Params{Lr: 0.1, NEpochs: 10})
	assert.Equal(t, float32(0.1), q.GetFloat32(Lr, 0))
	assert.Equal(t, float32(0.01), q.GetFloat32(Reg, 0))
	assert.Equal(t, 10, q.GetInt(NEpochs, 0))
}

func TestParamsGrid(t *testing.T) {
	grid := ParamsGrid{NFactors: {8, 16}, Lr: {0.01, 0.05, 0.1}}
	assert.Equal(t, 2, grid.Len())
	assert.Equal(t, 6, grid.NumCombinations())
	grid.Fill(ParamsGrid{NFactors: {32}, Reg: {0.01}})
	assert.Equal(t, []interface{}{8, 16}, grid[NFactors])
	assert.Equal(t, []interface{}{0.01}, grid[Reg])
}
