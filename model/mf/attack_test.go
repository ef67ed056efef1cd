// Copyright 2022 HandsOn-RecSys Authors
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
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pipipiu/HandsOn-RecSys2020/base"
	"github.com/pipipiu/HandsOn-RecSys2020/common/floats"
	"github.com/pipipiu/HandsOn-RecSys2020/model"
)

func TestAttack_ZeroEpsilon(t *testing.T) {
	trainSet, testSet := newSyntheticDataset()
	m := NewBPR(model.Params{
		model.NFactors:    8,
		model.NEpochs:     10,
		model.RandomState: 42,
	})
	m.Fit(context.Background(), trainSet, testSet, newFitConfig())
	attacked := Attack(m, trainSet, 0, runtime.NumCPU())
	assert.Equal(t, m.UserFactor, baseOf(attacked).UserFactor)
	assert.Equal(t, m.ItemFactor, baseOf(attacked).ItemFactor)
}

func TestAttack_SourceUntouched(t *testing.T) {
	trainSet, testSet := newSyntheticDataset()
	m := NewBPR(model.Params{
		model.NFactors:    8,
		model.NEpochs:     10,
		model.RandomState: 42,
	})
	m.Fit(context.Background(), trainSet, testSet, newFitConfig())
	userFactor := base.CopyMatrix32(m.UserFactor)
	itemFactor := base.CopyMatrix32(m.ItemFactor)

	epsilon := float32(0.5)
	attacked := Attack(m, trainSet, epsilon, runtime.NumCPU())
	// the source model is left untouched
	assert.Equal(t, userFactor, m.UserFactor)
	assert.Equal(t, itemFactor, m.ItemFactor)
	// every perturbation has length at most epsilon
	attackedBase := baseOf(attacked)
	perturbed := 0
	for u := range userFactor {
		dist := floats.Euclidean(userFactor[u], attackedBase.UserFactor[u])
		assert.LessOrEqual(t, dist, epsilon+1e-4)
		if dist > 0 {
			perturbed++
		}
	}
	assert.Greater(t, perturbed, 0)
	for i := range itemFactor {
		dist := floats.Euclidean(itemFactor[i], attackedBase.ItemFactor[i])
		assert.LessOrEqual(t, dist, epsilon+1e-4)
	}
}

func TestAttack_DegradesRanking(t *testing.T) {
	trainSet, testSet := newSyntheticDataset()
	m := NewBPR(model.Params{
		model.NFactors:    8,
		model.NEpochs:     30,
		model.RandomState: 42,
	})
	config := newFitConfig()
	score := m.Fit(context.Background(), trainSet, testSet, config)
	attacked := Attack(m, trainSet, 1, runtime.NumCPU())
	attackedScores := Evaluate(attacked, testSet, trainSet, config.TopK, config.Candidates, config.Jobs, NDCG)
	assert.Less(t, attackedScores[0], score.NDCG)
}

func TestAdversarialTrainingRobustness(t *testing.T) {
	trainSet, testSet := newSyntheticDataset()
	config := newFitConfig()
	epsilon := float32(1)

	bpr := NewBPR(model.Params{
		model.NFactors:    8,
		model.NEpochs:     30,
		model.RandomState: 42,
	})
	bpr.Fit(context.Background(), trainSet, testSet, config)
	bprAttacked := Evaluate(Attack(bpr, trainSet, epsilon, config.Jobs),
		testSet, trainSet, config.TopK, config.Candidates, config.Jobs, NDCG)

	apr := NewAPRFrom(bpr, model.Params{
		model.NEpochs:   30,
		model.Eps:       1,
		model.AdvLambda: 1,
	})
	apr.Fit(context.Background(), trainSet, testSet, config)
	aprAttacked := Evaluate(Attack(apr, trainSet, epsilon, config.Jobs),
		testSet, trainSet, config.TopK, config.Candidates, config.Jobs, NDCG)

	// adversarial training defends against the same perturbation budget
	assert.Greater(t, aprAttacked[0], bprAttacked[0])
}
