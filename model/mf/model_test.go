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

package mf

import (
	"bytes"
	"context"
	"math"
	"runtime"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pipipiu/HandsOn-RecSys2020/common/floats"
	"github.com/pipipiu/HandsOn-RecSys2020/dataset"
	"github.com/pipipiu/HandsOn-RecSys2020/model"
)

func newFitConfig() *FitConfig {
	return NewFitConfig().SetVerbose(10).SetJobs(runtime.NumCPU())
}

// newSyntheticDataset builds a dataset with two disjoint taste groups. Users
// 0..19 interact with items 0..9 and users 20..39 with items 10..19, so a
// trained model has to rank the held out item of each user above the items of
// the other group.
func newSyntheticDataset() (*dataset.Dataset, *dataset.Dataset) {
	data := dataset.NewDataset(nil, nil)
	for u := 0; u < 40; u++ {
		for i := 0; i < 10; i++ {
			item := i
			if u >= 20 {
				item += 10
			}
			data.AddFeedback("u"+strconv.Itoa(u), "i"+strconv.Itoa(item), 1, int64(i), true)
		}
	}
	return data.Split(0, 0)
}

func TestBPR_Synthetic(t *testing.T) {
	trainSet, testSet := newSyntheticDataset()
	m := NewBPR(model.Params{
		model.NFactors:    8,
		model.Reg:         0.01,
		model.Lr:          0.05,
		model.NEpochs:     30,
		model.InitMean:    0,
		model.InitStdDev:  0.001,
		model.RandomState: 42,
	})
	score := m.Fit(context.Background(), trainSet, testSet, newFitConfig())
	assert.Greater(t, score.NDCG, float32(0.6))
	assert.LessOrEqual(t, score.NDCG, float32(1))
	assert.Equal(t, trainSet.UserIndex, m.GetUserIndex())
	assert.Equal(t, trainSet.ItemIndex, m.GetItemIndex())

	// test predict
	assert.Equal(t, m.Predict("u1", "i1"), m.internalPredict(1, 1))
	assert.Equal(t, m.internalPredict(1, 1), floats.Dot(m.GetUserFactor(1), m.GetItemFactor(1)))
	assert.True(t, m.IsUserPredictable(1))
	assert.True(t, m.IsItemPredictable(1))
	assert.False(t, m.IsUserPredictable(math.MaxInt32))
	assert.False(t, m.IsItemPredictable(math.MaxInt32))

	// test encode/decode model
	buf := bytes.NewBuffer(nil)
	err := MarshalModel(buf, m)
	assert.NoError(t, err)
	tmp, err := UnmarshalModel(buf)
	assert.NoError(t, err)
	assert.Equal(t, "bpr", GetModelName(tmp))
	assert.Equal(t, m.Params, tmp.GetParams())
	assert.Equal(t, m.Predict("u1", "i1"), tmp.Predict("u1", "i1"))
	assert.True(t, tmp.IsUserPredictable(1))
	assert.True(t, tmp.IsItemPredictable(1))
	assert.False(t, tmp.IsUserPredictable(math.MaxInt32))
	assert.False(t, tmp.IsItemPredictable(math.MaxInt32))

	// test clear
	m.Clear()
	assert.True(t, m.Invalid())
}

func TestAPR_Synthetic(t *testing.T) {
	trainSet, testSet := newSyntheticDataset()
	m := NewAPR(model.Params{
		model.NFactors:    8,
		model.Reg:         0.01,
		model.Lr:          0.05,
		model.NEpochs:     30,
		model.Eps:         0.5,
		model.AdvLambda:   1,
		model.RandomState: 42,
	})
	score := m.Fit(context.Background(), trainSet, testSet, newFitConfig())
	assert.Greater(t, score.NDCG, float32(0.6))

	// test encode/decode model
	buf := bytes.NewBuffer(nil)
	err := MarshalModel(buf, m)
	assert.NoError(t, err)
	tmp, err := UnmarshalModel(buf)
	assert.NoError(t, err)
	assert.Equal(t, "apr", GetModelName(tmp))
	assert.Equal(t, m.Predict("u1", "i1"), tmp.Predict("u1", "i1"))

	// test clear
	m.Clear()
	assert.True(t, m.Invalid())
}

func TestAPR_WarmStart(t *testing.T) {
	trainSet, testSet := newSyntheticDataset()
	bpr := NewBPR(model.Params{
		model.NFactors:    8,
		model.NEpochs:     30,
		model.RandomState: 42,
	})
	bpr.Fit(context.Background(), trainSet, testSet, newFitConfig())
	apr := NewAPRFrom(bpr, model.Params{
		model.NEpochs:   10,
		model.Eps:       0.5,
		model.AdvLambda: 1,
	})
	// factors are copied, not shared
	assert.Equal(t, bpr.UserFactor, apr.UserFactor)
	apr.UserFactor[0][0] += 100
	assert.NotEqual(t, bpr.UserFactor[0][0], apr.UserFactor[0][0])
	apr.UserFactor[0][0] -= 100
	// hyper-parameters are inherited then overwritten
	assert.Equal(t, 8, apr.Params.GetInt(model.NFactors, 0))
	assert.Equal(t, 10, apr.Params.GetInt(model.NEpochs, 0))

	score := apr.Fit(context.Background(), trainSet, testSet, newFitConfig())
	assert.Greater(t, score.NDCG, float32(0.6))
}

func TestClone(t *testing.T) {
	trainSet, testSet := newSyntheticDataset()
	m := NewBPR(model.Params{
		model.NFactors:    8,
		model.NEpochs:     10,
		model.RandomState: 42,
	})
	m.Fit(context.Background(), trainSet, testSet, newFitConfig())
	copied := Clone(m)
	assert.Equal(t, m.Params, copied.GetParams())
	assert.Equal(t, m.Predict("u1", "i1"), copied.Predict("u1", "i1"))
	// mutating the copy leaves the source untouched
	baseOf(copied).UserFactor[0][0] += 100
	assert.NotEqual(t, baseOf(copied).UserFactor[0][0], m.UserFactor[0][0])
}
