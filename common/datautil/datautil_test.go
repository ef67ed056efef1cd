// Copyright 2024 HandsOn-RecSys Authors
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

package datautil

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnzip(t *testing.T) {
	temp := t.TempDir()
	// build a small archive
	archive := filepath.Join(temp, "data.zip")
	f, err := os.Create(archive)
	assert.NoError(t, err)
	w := zip.NewWriter(f)
	entry, err := w.Create("ml-test/u.data")
	assert.NoError(t, err)
	_, err = entry.Write([]byte("1\t1\t5\t874965758\n"))
	assert.NoError(t, err)
	assert.NoError(t, w.Close())
	assert.NoError(t, f.Close())
	// extract it
	files, err := unzip(archive, temp)
	assert.NoError(t, err)
	assert.Len(t, files, 1)
	content, err := os.ReadFile(files[0])
	assert.NoError(t, err)
	assert.Equal(t, "1\t1\t5\t874965758\n", string(content))
}

func TestDatasetDir(t *testing.T) {
	assert.NotEmpty(t, DatasetDir())
}
