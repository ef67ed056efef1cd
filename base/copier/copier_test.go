// Copyright 2021 HandsOn-RecSys Authors
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

package copier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type inner struct {
	Weights []float32
}

type outer struct {
	Name   string
	Matrix [][]float32
	Nested *inner
	Lookup map[string]int
}

func TestCopyStruct(t *testing.T) {
	src := outer{
		Name:   "model",
		Matrix: [][]float32{{1, 2}, {3, 4}},
		Nested: &inner{Weights: []float32{5, 6}},
		Lookup: map[string]int{"a": 1},
	}
	var dst outer
	err := Copy(&dst, src)
	assert.NoError(t, err)
	assert.Equal(t, src, dst)
	// mutation must not leak back
	dst.Matrix[0][0] = 42
	dst.Nested.Weights[0] = 42
	dst.Lookup["a"] = 42
	assert.Equal(t, float32(1), src.Matrix[0][0])
	assert.Equal(t, float32(5), src.Nested.Weights[0])
	assert.Equal(t, 1, src.Lookup["a"])
}

func TestCopyInterface(t *testing.T) {
	var dst interface{}
	err := Copy(&dst, []float32{1, 2, 3})
	assert.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, dst)
}

func TestCopyNotPointer(t *testing.T) {
	var dst outer
	err := Copy(dst, outer{})
	assert.Error(t, err)
}
