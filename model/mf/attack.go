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
	"github.com/chewxy/math32"
	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/pipipiu/HandsOn-RecSys2020/base"
	"github.com/pipipiu/HandsOn-RecSys2020/base/log"
	"github.com/pipipiu/HandsOn-RecSys2020/common/floats"
	"github.com/pipipiu/HandsOn-RecSys2020/common/parallel"
	"github.com/pipipiu/HandsOn-RecSys2020/dataset"
)

// Attack applies a fast gradient perturbation to the embeddings of a trained
// matrix factorization model. The gradient of the BPR loss is accumulated
// over all training feedback, each row is normalized to length epsilon and
// added to the corresponding embedding. The returned model is a deep copy,
// the input model is left untouched.
func Attack(m MatrixFactorization, trainSet *dataset.Dataset, epsilon float32, jobs int) MatrixFactorization {
	attacked := Clone(m)
	target := baseOf(attacked)
	nFactors := len(target.UserFactor[0])
	log.Logger().Info("attack model",
		zap.String("model", GetModelName(m)),
		zap.Float32("epsilon", epsilon),
		zap.Int("n_factors", nFactors))
	if epsilon == 0 {
		return attacked
	}
	// Convert array to hashmap
	userFeedback := make([]mapset.Set[int32], trainSet.CountUsers())
	for u := range userFeedback {
		userFeedback[u] = mapset.NewSet(trainSet.GetUserFeedback(int32(u))...)
	}
	// Accumulate loss gradients over training feedback. Users are partitioned
	// over workers so user gradients are race free, item gradients go into
	// per worker buffers merged afterwards.
	gradUser := base.NewMatrix32(trainSet.CountUsers(), nFactors)
	gradItem := base.NewMatrix32(trainSet.CountItems(), nFactors)
	partGradItem := make([][][]float32, jobs)
	rng := make([]base.RandomGenerator, jobs)
	for i := 0; i < jobs; i++ {
		partGradItem[i] = base.NewMatrix32(trainSet.CountItems(), nFactors)
		rng[i] = base.NewRandomGenerator(int64(i))
	}
	temp := base.NewMatrix32(jobs, nFactors)
	_ = parallel.Parallel(trainSet.CountUsers(), jobs, func(workerId, jobId int) error {
		userIndex := int32(jobId)
		if userFeedback[userIndex].Cardinality() >= trainSet.CountItems() {
			// no negative item exists for this user
			return nil
		}
		for _, posIndex := range trainSet.GetUserFeedback(userIndex) {
			// Select a negative sample
			negIndex := int32(-1)
			for {
				t := rng[workerId].Int31n(int32(trainSet.CountItems()))
				if !userFeedback[userIndex].Contains(t) {
					negIndex = t
					break
				}
			}
			diff := m.internalPredict(userIndex, posIndex) - m.internalPredict(userIndex, negIndex)
			grad := math32.Exp(-diff) / (1.0 + math32.Exp(-diff))
			// d L / d p_u = -grad * (q_i - q_j)
			floats.SubTo(m.GetItemFactor(posIndex), m.GetItemFactor(negIndex), temp[workerId])
			floats.MulConstAdd(temp[workerId], -grad, gradUser[userIndex])
			// d L / d q_i = -grad * p_u, d L / d q_j = grad * p_u
			floats.MulConstAdd(m.GetUserFactor(userIndex), -grad, partGradItem[workerId][posIndex])
			floats.MulConstAdd(m.GetUserFactor(userIndex), grad, partGradItem[workerId][negIndex])
		}
		return nil
	})
	for i := 0; i < jobs; i++ {
		for itemIndex := range gradItem {
			floats.Add(gradItem[itemIndex], partGradItem[i][itemIndex])
		}
	}
	// Perturb embeddings towards the gradient, scaled to length epsilon.
	perturb(target.UserFactor, gradUser, epsilon)
	perturb(target.ItemFactor, gradItem, epsilon)
	return attacked
}

func perturb(factors, grads [][]float32, epsilon float32) {
	for i := range factors {
		if norm := floats.Norm(grads[i]); norm > 0 {
			floats.MulConstAdd(grads[i], epsilon/norm, factors[i])
		}
	}
}
