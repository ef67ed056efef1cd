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

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pipipiu/HandsOn-RecSys2020/base/log"
	"github.com/pipipiu/HandsOn-RecSys2020/cmd/version"
	"github.com/pipipiu/HandsOn-RecSys2020/config"
	"github.com/pipipiu/HandsOn-RecSys2020/dataset"
	"github.com/pipipiu/HandsOn-RecSys2020/model/mf"
)

var aprCommand = &cobra.Command{
	Use:   "apr",
	Short: "Adversarial personalized ranking on implicit feedback.",
	Long: "Trains a BPR matrix factorization model, degrades it with a fast " +
		"gradient perturbation of its embeddings, then retrains with the APR " +
		"adversarial regularizer and shows the robustness gap.",
	Run: func(cmd *cobra.Command, args []string) {
		// Show version
		if showVersion, _ := cmd.PersistentFlags().GetBool("version"); showVersion {
			fmt.Println(version.BuildInfo())
			return
		}

		// setup logger
		debug, _ := cmd.PersistentFlags().GetBool("debug")
		log.SetLogger(cmd.PersistentFlags(), debug)

		// load config
		configPath, _ := cmd.PersistentFlags().GetString("config")
		if configPath != "" {
			log.Logger().Info("load config", zap.String("config", configPath))
		}
		conf, err := config.LoadConfig(configPath)
		if err != nil {
			log.Logger().Fatal("failed to load config", zap.Error(err))
		}
		if cmd.PersistentFlags().Changed("epsilon") {
			conf.Attack.Epsilon, _ = cmd.PersistentFlags().GetFloat64("epsilon")
		}
		if cmd.PersistentFlags().Changed("jobs") {
			conf.Evaluate.Jobs, _ = cmd.PersistentFlags().GetInt("jobs")
		}

		// load dataset
		var data *dataset.Dataset
		if conf.Data.Path != "" {
			data, err = dataset.LoadDataFromCSV(conf.Data.Path, conf.Data.Separator, conf.Data.Header)
		} else {
			data, err = dataset.LoadDataFromBuiltIn(conf.Data.Dataset)
		}
		if err != nil {
			log.Logger().Fatal("failed to load dataset", zap.Error(err))
		}
		trainSet, testSet := data.Split(conf.Data.NumTestUsers, conf.Data.RandomState)

		fitConfig := mf.NewFitConfig().
			SetJobs(conf.Evaluate.Jobs).
			SetVerbose(conf.Evaluate.Verbose).
			SetCandidates(conf.Evaluate.Candidates).
			SetTopK(conf.Evaluate.TopK)
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		// train and attack BPR
		bpr := mf.NewBPR(conf.BPRParams())
		bpr.Fit(ctx, trainSet, testSet, fitConfig)
		epsilon := float32(conf.Attack.Epsilon)
		bprClean := evaluate(bpr, trainSet, testSet, conf)
		bprAttacked := evaluate(mf.Attack(bpr, trainSet, epsilon, fitConfig.Jobs), trainSet, testSet, conf)

		// retrain with the adversarial regularizer and attack again
		apr := mf.NewAPRFrom(bpr, conf.APRParams())
		apr.Fit(ctx, trainSet, testSet, fitConfig)
		aprClean := evaluate(apr, trainSet, testSet, conf)
		aprAttacked := evaluate(mf.Attack(apr, trainSet, epsilon, fitConfig.Jobs), trainSet, testSet, conf)

		printReport(conf, [][]float32{bprClean, bprAttacked, aprClean, aprAttacked})

		// save models
		if modelPath, _ := cmd.PersistentFlags().GetString("model-path"); modelPath != "" {
			if err = saveModel(filepath.Join(modelPath, "bpr.model"), bpr); err != nil {
				log.Logger().Fatal("failed to save model", zap.Error(err))
			}
			if err = saveModel(filepath.Join(modelPath, "apr.model"), apr); err != nil {
				log.Logger().Fatal("failed to save model", zap.Error(err))
			}
		}
	},
}

var metricNames = []string{"NDCG", "Precision", "Recall", "HR", "MAP", "MRR"}

func evaluate(m mf.MatrixFactorization, trainSet, testSet *dataset.Dataset, conf *config.Config) []float32 {
	return mf.Evaluate(m, testSet, trainSet,
		conf.Evaluate.TopK, conf.Evaluate.Candidates, conf.Evaluate.Jobs,
		mf.NDCG, mf.Precision, mf.Recall, mf.HR, mf.MAP, mf.MRR)
}

func printReport(conf *config.Config, scores [][]float32) {
	fmt.Printf("%-24s", "")
	for _, name := range metricNames {
		fmt.Printf("%12s@%-3d", name, conf.Evaluate.TopK)
	}
	fmt.Println()
	rows := []string{"bpr", "bpr (attacked)", "apr", "apr (attacked)"}
	for i, row := range rows {
		fmt.Printf("%-24s", row)
		for _, score := range scores[i] {
			fmt.Printf("%16.6f", score)
		}
		fmt.Println()
	}
}

func saveModel(path string, m mf.Model) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	if err = mf.MarshalModel(file, m); err != nil {
		return err
	}
	log.Logger().Info("save model", zap.String("path", path), zap.String("model", mf.GetModelName(m)))
	return nil
}

func init() {
	log.AddFlags(aprCommand.PersistentFlags())
	aprCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	aprCommand.PersistentFlags().BoolP("version", "v", false, "apr version")
	aprCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	aprCommand.PersistentFlags().String("model-path", "", "directory to save trained models")
	aprCommand.PersistentFlags().Float64("epsilon", 0, "override attack epsilon")
	aprCommand.PersistentFlags().Int("jobs", 0, "override number of parallel jobs")
}

func main() {
	if err := aprCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}
