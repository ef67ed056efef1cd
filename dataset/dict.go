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

package dataset

import (
	"bytes"
	"encoding/gob"

	"github.com/juju/errors"
)

// FreqDict is a two-way dictionary between string ids and dense int32
// indices. It also counts the frequency of each id.
type FreqDict struct {
	si  map[string]int32
	is  []string
	cnt []int32
}

func NewFreqDict() *FreqDict {
	return &FreqDict{
		si: make(map[string]int32),
		is: make([]string, 0),
	}
}

// Count returns the number of distinct ids in the dictionary.
func (d *FreqDict) Count() int32 {
	return int32(len(d.is))
}

// Id returns the index of a string id. If the id has never been seen, a new
// index is allocated. The frequency of the id is increased by one.
func (d *FreqDict) Id(s string) int32 {
	if index, exist := d.si[s]; exist {
		d.cnt[index]++
		return index
	}
	index := int32(len(d.is))
	d.si[s] = index
	d.is = append(d.is, s)
	d.cnt = append(d.cnt, 1)
	return index
}

// NotCount returns the index of a string id without updating its frequency.
// If the id has never been seen, a new index is allocated.
func (d *FreqDict) NotCount(s string) int32 {
	if index, exist := d.si[s]; exist {
		return index
	}
	index := int32(len(d.is))
	d.si[s] = index
	d.is = append(d.is, s)
	d.cnt = append(d.cnt, 0)
	return index
}

// ToNumber returns the index of a string id, or NotId if the id is unknown.
// The dictionary is left unchanged.
func (d *FreqDict) ToNumber(s string) int32 {
	if index, exist := d.si[s]; exist {
		return index
	}
	return NotId
}

// ToName returns the string id at an index.
func (d *FreqDict) ToName(index int32) (string, bool) {
	if index < 0 || index >= int32(len(d.is)) {
		return "", false
	}
	return d.is[index], true
}

// Freq returns the frequency of the id at an index.
func (d *FreqDict) Freq(index int32) int32 {
	if index < 0 || index >= int32(len(d.cnt)) {
		return 0
	}
	return d.cnt[index]
}

// NotId is returned by ToNumber for unknown ids.
const NotId = int32(-1)

type freqDictWire struct {
	Is  []string
	Cnt []int32
}

func (d *FreqDict) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := gob.NewEncoder(buf).Encode(freqDictWire{Is: d.is, Cnt: d.cnt}); err != nil {
		return nil, errors.Trace(err)
	}
	return buf.Bytes(), nil
}

func (d *FreqDict) UnmarshalBinary(data []byte) error {
	var wire freqDictWire
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&wire); err != nil {
		return errors.Trace(err)
	}
	d.is = wire.Is
	d.cnt = wire.Cnt
	d.si = make(map[string]int32, len(wire.Is))
	for i, s := range wire.Is {
		d.si[s] = int32(i)
	}
	return nil
}
