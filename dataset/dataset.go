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
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/pipipiu/HandsOn-RecSys2020/base"
	"github.com/pipipiu/HandsOn-RecSys2020/base/log"
	"github.com/pipipiu/HandsOn-RecSys2020/common/datautil"
)

// Dataset stores implicit feedback as (user, item, rating, timestamp)
// tuples, together with dense indices for user and item ids.
type Dataset struct {
	UserIndex *FreqDict
	ItemIndex *FreqDict

	FeedbackUsers []int32
	FeedbackItems []int32
	Ratings       []float32
	Timestamps    []int64

	UserFeedback [][]int32
	ItemFeedback [][]int32

	negatives [][]int32
}

// NewDataset creates an empty dataset. Indices may be shared with another
// dataset so that train and test splits agree on the meaning of indices.
func NewDataset(userIndex, itemIndex *FreqDict) *Dataset {
	if userIndex == nil {
		userIndex = NewFreqDict()
	}
	if itemIndex == nil {
		itemIndex = NewFreqDict()
	}
	return &Dataset{
		UserIndex: userIndex,
		ItemIndex: itemIndex,
	}
}

// Count returns the number of feedback tuples.
func (d *Dataset) Count() int {
	return len(d.FeedbackUsers)
}

// CountUsers returns the number of distinct users.
func (d *Dataset) CountUsers() int {
	return int(d.UserIndex.Count())
}

// CountItems returns the number of distinct items.
func (d *Dataset) CountItems() int {
	return int(d.ItemIndex.Count())
}

// GetIndex returns the user index and item index of the i-th feedback.
func (d *Dataset) GetIndex(i int) (int32, int32) {
	return d.FeedbackUsers[i], d.FeedbackItems[i]
}

// AddFeedback inserts a feedback tuple. When insertUnknown is false, feedback
// from users or items absent from the indices is dropped, which is how a test
// split avoids leaking entities unseen during training.
func (d *Dataset) AddFeedback(userId, itemId string, rating float32, timestamp int64, insertUnknown bool) {
	var userIndex, itemIndex int32
	if insertUnknown {
		userIndex = d.UserIndex.Id(userId)
		itemIndex = d.ItemIndex.Id(itemId)
	} else {
		userIndex = d.UserIndex.ToNumber(userId)
		itemIndex = d.ItemIndex.ToNumber(itemId)
		if userIndex == NotId || itemIndex == NotId {
			return
		}
	}
	d.append(userIndex, itemIndex, rating, timestamp)
}

func (d *Dataset) append(userIndex, itemIndex int32, rating float32, timestamp int64) {
	d.FeedbackUsers = append(d.FeedbackUsers, userIndex)
	d.FeedbackItems = append(d.FeedbackItems, itemIndex)
	d.Ratings = append(d.Ratings, rating)
	d.Timestamps = append(d.Timestamps, timestamp)
	for int(userIndex) >= len(d.UserFeedback) {
		d.UserFeedback = append(d.UserFeedback, nil)
	}
	d.UserFeedback[userIndex] = append(d.UserFeedback[userIndex], itemIndex)
	for int(itemIndex) >= len(d.ItemFeedback) {
		d.ItemFeedback = append(d.ItemFeedback, nil)
	}
	d.ItemFeedback[itemIndex] = append(d.ItemFeedback[itemIndex], userIndex)
}

// GetUserFeedback returns the items a user has interacted with.
func (d *Dataset) GetUserFeedback(userIndex int32) []int32 {
	if int(userIndex) >= len(d.UserFeedback) {
		return nil
	}
	return d.UserFeedback[userIndex]
}

// GetItemFeedback returns the users an item has been interacted with by.
func (d *Dataset) GetItemFeedback(itemIndex int32) []int32 {
	if int(itemIndex) >= len(d.ItemFeedback) {
		return nil
	}
	return d.ItemFeedback[itemIndex]
}

// Split splits the dataset into a training set and a test set by holding out
// each user's most recent feedback. If numTestUsers is positive and smaller
// than the number of users, only a random sample of users contribute test
// feedback, which speeds up evaluation on large datasets.
func (d *Dataset) Split(numTestUsers int, seed int64) (*Dataset, *Dataset) {
	trainSet := NewDataset(d.UserIndex, d.ItemIndex)
	testSet := NewDataset(d.UserIndex, d.ItemIndex)
	rng := base.NewRandomGenerator(seed)
	// collect the position of each user's feedback
	userPositions := make([][]int, d.CountUsers())
	for i := range d.FeedbackUsers {
		u := d.FeedbackUsers[i]
		userPositions[u] = append(userPositions[u], i)
	}
	// sample test users
	testUsers := make(map[int32]struct{})
	if numTestUsers > 0 && numTestUsers < d.CountUsers() {
		for _, u := range rng.Perm(d.CountUsers())[:numTestUsers] {
			testUsers[int32(u)] = struct{}{}
		}
	} else {
		for u := 0; u < d.CountUsers(); u++ {
			testUsers[int32(u)] = struct{}{}
		}
	}
	for u, positions := range userPositions {
		if len(positions) == 0 {
			continue
		}
		_, isTestUser := testUsers[int32(u)]
		if !isTestUser || len(positions) < 2 {
			// a user with a single feedback stays in the training set,
			// otherwise its embedding would never be trained
			for _, p := range positions {
				trainSet.append(d.FeedbackUsers[p], d.FeedbackItems[p], d.Ratings[p], d.Timestamps[p])
			}
			continue
		}
		holdOut := positions[0]
		for _, p := range positions[1:] {
			if d.Timestamps[p] >= d.Timestamps[holdOut] {
				holdOut = p
			}
		}
		for _, p := range positions {
			if p == holdOut {
				testSet.append(d.FeedbackUsers[p], d.FeedbackItems[p], d.Ratings[p], d.Timestamps[p])
			} else {
				trainSet.append(d.FeedbackUsers[p], d.FeedbackItems[p], d.Ratings[p], d.Timestamps[p])
			}
		}
	}
	return trainSet, testSet
}

// NegativeSample samples negative items for each user. Items interacted with
// in either this dataset or excludeSet are excluded. The result is cached
// since sampling is expensive on large datasets.
func (d *Dataset) NegativeSample(excludeSet *Dataset, numCandidates int, seed int64) [][]int32 {
	if len(d.negatives) == 0 {
		rng := base.NewRandomGenerator(seed)
		d.negatives = make([][]int32, d.CountUsers())
		for userIndex := int32(0); userIndex < int32(d.CountUsers()); userIndex++ {
			exclude := mapset.NewSet(d.GetUserFeedback(userIndex)...)
			if excludeSet != nil {
				exclude.Append(excludeSet.GetUserFeedback(userIndex)...)
			}
			d.negatives[userIndex] = rng.SampleInt32(0, int32(d.CountItems()), numCandidates, exclude)
		}
	}
	return d.negatives
}

// LoadDataFromCSV loads a dataset from a delimited text file. Each line is
// expected to carry at least a user id and an item id, optionally followed by
// a rating and a timestamp.
func LoadDataFromCSV(fileName, sep string, hasHeader bool) (*Dataset, error) {
	dataset := NewDataset(nil, nil)
	file, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if hasHeader {
			hasHeader = false
			continue
		}
		fields := strings.Split(line, sep)
		if len(fields) < 2 {
			continue
		}
		rating := float32(1)
		if len(fields) > 2 {
			value, err := strconv.ParseFloat(fields[2], 32)
			if err != nil {
				return nil, errors.Annotatef(err, "failed to parse rating `%s`", fields[2])
			}
			rating = float32(value)
		}
		var timestamp int64
		if len(fields) > 3 {
			timestamp, err = strconv.ParseInt(fields[3], 10, 64)
			if err != nil {
				return nil, errors.Annotatef(err, "failed to parse timestamp `%s`", fields[3])
			}
		}
		dataset.AddFeedback(fields[0], fields[1], rating, timestamp, true)
	}
	if err = scanner.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	log.Logger().Info("load dataset",
		zap.String("file", fileName),
		zap.Int("n_users", dataset.CountUsers()),
		zap.Int("n_items", dataset.CountItems()),
		zap.Int("n_feedback", dataset.Count()))
	return dataset, nil
}

type builtInDataset struct {
	url    string
	path   string
	sep    string
	header bool
}

var builtInDatasets = map[string]builtInDataset{
	"ml-100k": {
		url:  "https://files.grouplens.org/datasets/movielens/ml-100k.zip",
		path: "ml-100k/u.data",
		sep:  "\t",
	},
	"ml-1m": {
		url:  "https://files.grouplens.org/datasets/movielens/ml-1m.zip",
		path: "ml-1m/ratings.dat",
		sep:  "::",
	},
}

// LoadDataFromBuiltIn loads a built-in dataset, downloading it into the local
// cache directory on first use.
func LoadDataFromBuiltIn(name string) (*Dataset, error) {
	source, exist := builtInDatasets[name]
	if !exist {
		return nil, errors.NotFoundf("built-in dataset %s", name)
	}
	dataFile := filepath.Join(datautil.DatasetDir(), source.path)
	if _, err := os.Stat(dataFile); os.IsNotExist(err) {
		if _, err = datautil.DownloadAndUnzip(name, source.url); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return LoadDataFromCSV(dataFile, source.sep, source.header)
}
