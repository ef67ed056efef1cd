// Copyright 2020 HandsOn-RecSys Authors
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

package base

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopKFilter(t *testing.T) {
	filter := NewTopKFilter(3)
	filter.Push(10, 1)
	filter.Push(20, 8)
	filter.Push(30, 2)
	filter.Push(40, 16)
	filter.Push(50, 4)
	items, weights := filter.PopAll()
	assert.Equal(t, []int32{40, 20, 50}, items)
	assert.Equal(t, []float32{16, 8, 4}, weights)
}

func TestNewMatrix32(t *testing.T) {
	m := NewMatrix32(3, 4)
	assert.Len(t, m, 3)
	for _, row := range m {
		assert.Len(t, row, 4)
	}
	m[1][2] = 42
	c := CopyMatrix32(m)
	c[1][2] = 7
	assert.Equal(t, float32(42), m[1][2])
	assert.Equal(t, float32(7), c[1][2])
}
