// Copyright 2021 HandsOn-RecSys Authors
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

package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFreqDict(t *testing.T) {
	d := NewFreqDict()
	assert.Equal(t, int32(0), d.Count())
	assert.Equal(t, int32(0), d.Id("a"))
	assert.Equal(t, int32(1), d.Id("b"))
	assert.Equal(t, int32(0), d.Id("a"))
	assert.Equal(t, int32(2), d.Count())
	assert.Equal(t, int32(2), d.Freq(0))
	assert.Equal(t, int32(1), d.Freq(1))

	assert.Equal(t, int32(2), d.NotCount("c"))
	assert.Equal(t, int32(0), d.Freq(2))
	assert.Equal(t, int32(2), d.NotCount("c"))
	assert.Equal(t, int32(0), d.Freq(2))

	assert.Equal(t, int32(1), d.ToNumber("b"))
	assert.Equal(t, NotId, d.ToNumber("unknown"))

	name, ok := d.ToName(1)
	assert.True(t, ok)
	assert.Equal(t, "b", name)
	_, ok = d.ToName(100)
	assert.False(t, ok)
}

func TestFreqDict_Binary(t *testing.T) {
	d := NewFreqDict()
	d.Id("a")
	d.Id("b")
	d.Id("b")
	data, err := d.MarshalBinary()
	assert.NoError(t, err)

	decoded := NewFreqDict()
	err = decoded.UnmarshalBinary(data)
	assert.NoError(t, err)
	assert.Equal(t, int32(2), decoded.Count())
	assert.Equal(t, int32(1), decoded.ToNumber("b"))
	assert.Equal(t, int32(2), decoded.Freq(1))
}
