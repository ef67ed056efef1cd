// Copyright 2022 HandsOn-RecSys Authors
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

package encoding

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatrix(t *testing.T) {
	a := [][]float32{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}
	buf := bytes.NewBuffer(nil)
	err := WriteMatrix(buf, a)
	assert.NoError(t, err)
	b := [][]float32{{0, 0, 0}, {0, 0, 0}, {0, 0, 0}}
	err = ReadMatrix(buf, b)
	assert.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestString(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	err := WriteString(buf, "hello")
	assert.NoError(t, err)
	s, err := ReadString(buf)
	assert.NoError(t, err)
	assert.Equal(t, "hello", s)
}

func TestGob(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	err := WriteGob(buf, map[string]int{"a": 1, "b": 2})
	assert.NoError(t, err)
	var m map[string]int
	err = ReadGob(buf, &m)
	assert.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, m)
}
