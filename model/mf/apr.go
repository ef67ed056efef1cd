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
	"fmt"
	"io"
	"time"

	"github.com/chewxy/math32"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/pipipiu/HandsOn-RecSys2020/base"
	"github.com/pipipiu/HandsOn-RecSys2020/base/log"
	"github.com/pipipiu/HandsOn-RecSys2020/base/progress"
	"github.com/pipipiu/HandsOn-RecSys2020/common/floats"
	"github.com/pipipiu/HandsOn-RecSys2020/common/parallel"
	"github.com/pipipiu/HandsOn-RecSys2020/dataset"
	"github.com/pipipiu/HandsOn-RecSys2020/model"
)

// APR means Adversarial Personalized Ranking. It minimizes the BPR loss plus
// the BPR loss at adversarially perturbed embeddings:
//
//	L_APR = L_BPR(\Theta) + \lambda L_BPR(\Theta + \Delta_adv)
//
// where \Delta_adv is the fast gradient perturbation of radius Eps that
// maximizes the BPR loss. Training robustifies the embeddings against the
// same perturbation applied at inference time.
//
// Hyper-parameters:
//
//	 Eps		- The L2 radius of adversarial perturbations. Default is 0.5.
//	 AdvLambda	- The weight of the adversarial regularizer. Default is 1.
//
// The remaining hyper-parameters are shared with BPR.
type APR struct {
	BPR
	// Hyper parameters
	eps       float32
	advLambda float32
}

// NewAPR creates an APR model.
func NewAPR(params model.Params) *APR {
	apr := new(APR)
	apr.SetParams(params)
	return apr
}

// NewAPRFrom creates an APR model warm started from the factors of a trained
// model. Adversarial training is unstable from random initialization, the
// original procedure always starts from converged BPR factors.
func NewAPRFrom(m MatrixFactorization, params model.Params) *APR {
	apr := new(APR)
	apr.SetParams(m.GetParams().Overwrite(params))
	if !m.Invalid() {
		trained := baseOf(Clone(m))
		apr.UserIndex = trained.UserIndex
		apr.ItemIndex = trained.ItemIndex
		apr.UserPredictable = trained.UserPredictable
		apr.ItemPredictable = trained.ItemPredictable
		apr.UserFactor = trained.UserFactor
		apr.ItemFactor = trained.ItemFactor
	}
	return apr
}

// baseOf extracts the embedded BaseMatrixFactorization of a model.
func baseOf(m MatrixFactorization) *BaseMatrixFactorization {
	switch m := m.(type) {
	case *BPR:
		return &m.BaseMatrixFactorization
	case *APR:
		return &m.BaseMatrixFactorization
	default:
		panic(fmt.Sprintf("unknown model %v", GetModelName(m)))
	}
}

// SetParams sets hyper-parameters of the APR model.
func (apr *APR) SetParams(params model.Params) {
	apr.BPR.SetParams(params)
	apr.eps = apr.Params.GetFloat32(model.Eps, 0.5)
	apr.advLambda = apr.Params.GetFloat32(model.AdvLambda, 1)
}

func (apr *APR) GetParamsGrid(withSize bool) model.ParamsGrid {
	grid := apr.BPR.GetParamsGrid(withSize)
	grid[model.Eps] = []interface{}{0.1, 0.5, 1}
	grid[model.AdvLambda] = []interface{}{0.1, 1, 10}
	return grid
}

// Fit the APR model. Factors carried over by NewAPRFrom are kept, otherwise
// the factors are initialized like BPR.
func (apr *APR) Fit(ctx context.Context, trainSet, valSet *dataset.Dataset, config *FitConfig) Score {
	log.Logger().Info("fit apr",
		zap.Int("train_set_size", trainSet.Count()),
		zap.Int("test_set_size", valSet.Count()),
		zap.Any("params", apr.GetParams()),
		zap.Any("config", config))
	apr.Init(trainSet)
	// Create buffers
	temp := base.NewMatrix32(config.Jobs, apr.nFactors)
	userFactor := base.NewMatrix32(config.Jobs, apr.nFactors)
	positiveItemFactor := base.NewMatrix32(config.Jobs, apr.nFactors)
	negativeItemFactor := base.NewMatrix32(config.Jobs, apr.nFactors)
	deltaUser := base.NewMatrix32(config.Jobs, apr.nFactors)
	deltaItem := base.NewMatrix32(config.Jobs, apr.nFactors)
	advUserFactor := base.NewMatrix32(config.Jobs, apr.nFactors)
	advPositiveItemFactor := base.NewMatrix32(config.Jobs, apr.nFactors)
	advNegativeItemFactor := base.NewMatrix32(config.Jobs, apr.nFactors)
	rng := make([]base.RandomGenerator, config.Jobs)
	for i := 0; i < config.Jobs; i++ {
		rng[i] = base.NewRandomGenerator(apr.GetRandomGenerator().Int63())
	}
	// Convert array to hashmap
	userFeedback := make([]mapset.Set[int32], trainSet.CountUsers())
	for u := range userFeedback {
		userFeedback[u] = mapset.NewSet(trainSet.GetUserFeedback(int32(u))...)
	}
	evalStart := time.Now()
	scores := Evaluate(apr, valSet, trainSet, config.TopK, config.Candidates, config.Jobs, NDCG, Precision, Recall)
	evalTime := time.Since(evalStart)
	log.Logger().Debug(fmt.Sprintf("fit apr %v/%v", 0, apr.nEpochs),
		zap.String("eval_time", evalTime.String()),
		zap.Float32(fmt.Sprintf("NDCG@%v", config.TopK), scores[0]),
		zap.Float32(fmt.Sprintf("Precision@%v", config.TopK), scores[1]),
		zap.Float32(fmt.Sprintf("Recall@%v", config.TopK), scores[2]))
	// Training
	_, span := progress.Start(ctx, "APR.Fit", apr.nEpochs)
	for epoch := 1; epoch <= apr.nEpochs; epoch++ {
		fitStart := time.Now()
		// Training epoch
		cost := make([]float32, config.Jobs)
		_ = parallel.Parallel(trainSet.Count(), config.Jobs, func(workerId, _ int) error {
			// Select a user
			var userIndex int32
			var ratingCount int
			for {
				userIndex = rng[workerId].Int31n(int32(trainSet.CountUsers()))
				ratingCount = len(trainSet.GetUserFeedback(userIndex))
				if ratingCount > 0 {
					break
				}
			}
			posIndex := trainSet.GetUserFeedback(userIndex)[rng[workerId].Intn(ratingCount)]
			// Select a negative sample
			negIndex := int32(-1)
			for {
				t := rng[workerId].Int31n(int32(trainSet.CountItems()))
				if !userFeedback[userIndex].Contains(t) {
					negIndex = t
					break
				}
			}
			diff := apr.internalPredict(userIndex, posIndex) - apr.internalPredict(userIndex, negIndex)
			cost[workerId] += math32.Log1p(math32.Exp(-diff))
			grad := math32.Exp(-diff) / (1.0 + math32.Exp(-diff))
			copy(userFactor[workerId], apr.UserFactor[userIndex])
			copy(positiveItemFactor[workerId], apr.ItemFactor[posIndex])
			copy(negativeItemFactor[workerId], apr.ItemFactor[negIndex])
			// Fast gradient perturbation. The descent direction of the user
			// factor is q_i-q_j, of the positive item factor is p_u and of
			// the negative item factor is -p_u. The perturbation points the
			// opposite way, scaled to length eps.
			floats.SubTo(positiveItemFactor[workerId], negativeItemFactor[workerId], deltaUser[workerId])
			if norm := floats.Norm(deltaUser[workerId]); norm > 0 {
				floats.MulConst(deltaUser[workerId], -apr.eps/norm)
			}
			copy(deltaItem[workerId], userFactor[workerId])
			if norm := floats.Norm(deltaItem[workerId]); norm > 0 {
				floats.MulConst(deltaItem[workerId], -apr.eps/norm)
			}
			// Pairwise ranking at perturbed embeddings
			floats.AddTo(userFactor[workerId], deltaUser[workerId], advUserFactor[workerId])
			floats.AddTo(positiveItemFactor[workerId], deltaItem[workerId], advPositiveItemFactor[workerId])
			floats.SubTo(negativeItemFactor[workerId], deltaItem[workerId], advNegativeItemFactor[workerId])
			advDiff := floats.Dot(advUserFactor[workerId], advPositiveItemFactor[workerId]) -
				floats.Dot(advUserFactor[workerId], advNegativeItemFactor[workerId])
			cost[workerId] += apr.advLambda * math32.Log1p(math32.Exp(-advDiff))
			advGrad := math32.Exp(-advDiff) / (1.0 + math32.Exp(-advDiff))
			// Update positive item latent factor: +w_u
			floats.MulConstTo(userFactor[workerId], grad, temp[workerId])
			floats.MulConstAdd(advUserFactor[workerId], apr.advLambda*advGrad, temp[workerId])
			floats.MulConstAdd(positiveItemFactor[workerId], -apr.reg, temp[workerId])
			floats.MulConstAdd(temp[workerId], apr.lr, apr.ItemFactor[posIndex])
			// Update negative item latent factor: -w_u
			floats.MulConstTo(userFactor[workerId], -grad, temp[workerId])
			floats.MulConstAdd(advUserFactor[workerId], -apr.advLambda*advGrad, temp[workerId])
			floats.MulConstAdd(negativeItemFactor[workerId], -apr.reg, temp[workerId])
			floats.MulConstAdd(temp[workerId], apr.lr, apr.ItemFactor[negIndex])
			// Update user latent factor: h_i-h_j
			floats.SubTo(positiveItemFactor[workerId], negativeItemFactor[workerId], temp[workerId])
			floats.MulConst(temp[workerId], grad)
			floats.SubTo(advPositiveItemFactor[workerId], advNegativeItemFactor[workerId], deltaUser[workerId])
			floats.MulConstAdd(deltaUser[workerId], apr.advLambda*advGrad, temp[workerId])
			floats.MulConstAdd(userFactor[workerId], -apr.reg, temp[workerId])
			floats.MulConstAdd(temp[workerId], apr.lr, apr.UserFactor[userIndex])
			return nil
		})
		fitTime := time.Since(fitStart)
		// Cross validation
		if epoch%config.Verbose == 0 || epoch == apr.nEpochs {
			evalStart = time.Now()
			scores = Evaluate(apr, valSet, trainSet, config.TopK, config.Candidates, config.Jobs, NDCG, Precision, Recall)
			evalTime = time.Since(evalStart)
			log.Logger().Info(fmt.Sprintf("fit apr %v/%v", epoch, apr.nEpochs),
				zap.String("fit_time", fitTime.String()),
				zap.String("eval_time", evalTime.String()),
				zap.Float32("loss", lo.Sum(cost)),
				zap.Float32(fmt.Sprintf("NDCG@%v", config.TopK), scores[0]),
				zap.Float32(fmt.Sprintf("Precision@%v", config.TopK), scores[1]),
				zap.Float32(fmt.Sprintf("Recall@%v", config.TopK), scores[2]))
		}
		span.Add(1)
	}
	span.End()
	log.Logger().Info("fit apr complete",
		zap.Float32(fmt.Sprintf("NDCG@%v", config.TopK), scores[0]),
		zap.Float32(fmt.Sprintf("Precision@%v", config.TopK), scores[1]),
		zap.Float32(fmt.Sprintf("Recall@%v", config.TopK), scores[2]))
	return Score{
		NDCG:      scores[0],
		Precision: scores[1],
		Recall:    scores[2],
	}
}

// Init keeps warm started factors when their shape matches the train set,
// otherwise initializes them like BPR.
func (apr *APR) Init(trainSet *dataset.Dataset) {
	if apr.UserFactor != nil && apr.ItemFactor != nil &&
		len(apr.UserFactor) == trainSet.CountUsers() &&
		len(apr.ItemFactor) == trainSet.CountItems() &&
		len(apr.UserFactor[0]) == apr.nFactors {
		apr.BaseMatrixFactorization.Init(trainSet)
		return
	}
	apr.BPR.Init(trainSet)
}

// Marshal model into byte stream.
func (apr *APR) Marshal(w io.Writer) error {
	if err := apr.BaseMatrixFactorization.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// Unmarshal model from byte stream.
func (apr *APR) Unmarshal(r io.Reader) error {
	if err := apr.BaseMatrixFactorization.Unmarshal(r); err != nil {
		return errors.Trace(err)
	}
	apr.SetParams(apr.Params)
	return nil
}
