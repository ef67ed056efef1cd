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
	"io"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/pipipiu/HandsOn-RecSys2020/base/log"
)

var (
	tempDir    string
	datasetDir string
)

func init() {
	usr, err := user.Current()
	if err != nil {
		log.Logger().Fatal("failed to get user directory", zap.Error(err))
	}
	datasetDir = filepath.Join(usr.HomeDir, ".handson-recsys", "dataset")
	tempDir = filepath.Join(usr.HomeDir, ".handson-recsys", "temp")
}

// DatasetDir returns the directory where downloaded datasets are cached.
func DatasetDir() string {
	return datasetDir
}

// DownloadAndUnzip fetches a zip archive and extracts it into the dataset
// cache. The download is skipped when the dataset directory already exists.
func DownloadAndUnzip(name, url string) (string, error) {
	path := filepath.Join(datasetDir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		zipFileName, err := downloadFromUrl(url, tempDir)
		if err != nil {
			return "", errors.Trace(err)
		}
		if _, err := unzip(zipFileName, datasetDir); err != nil {
			return "", errors.Trace(err)
		}
	}
	return path, nil
}

// downloadFromUrl downloads a file from URL into dst.
func downloadFromUrl(src, dst string) (string, error) {
	log.Logger().Info("download dataset", zap.String("source", src), zap.String("destination", dst))
	// Extract file name
	tokens := strings.Split(src, "/")
	fileName := filepath.Join(dst, tokens[len(tokens)-1])
	// Create file
	if err := os.MkdirAll(filepath.Dir(fileName), os.ModePerm); err != nil {
		return fileName, errors.Trace(err)
	}
	output, err := os.Create(fileName)
	if err != nil {
		return fileName, errors.Trace(err)
	}
	defer output.Close()
	// Download file
	response, err := http.Get(src)
	if err != nil {
		return fileName, errors.Trace(err)
	}
	defer response.Body.Close()
	// Save file
	bar := progressbar.DefaultBytes(response.ContentLength, "downloading")
	if _, err = io.Copy(io.MultiWriter(output, bar), response.Body); err != nil {
		return fileName, errors.Trace(err)
	}
	return fileName, nil
}

// unzip extracts a zip archive into dst.
func unzip(src, dst string) ([]string, error) {
	var fileNames []string
	r, err := zip.OpenReader(src)
	if err != nil {
		return fileNames, errors.Trace(err)
	}
	defer r.Close()
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			return fileNames, errors.Trace(err)
		}
		filePath := filepath.Join(dst, f.Name)
		// reject paths escaping the destination directory
		if !strings.HasPrefix(filePath, filepath.Clean(dst)+string(os.PathSeparator)) {
			rc.Close()
			return fileNames, errors.Errorf("illegal file path: %s", filePath)
		}
		if f.FileInfo().IsDir() {
			if err = os.MkdirAll(filePath, os.ModePerm); err != nil {
				rc.Close()
				return fileNames, errors.Trace(err)
			}
		} else {
			if err = os.MkdirAll(filepath.Dir(filePath), os.ModePerm); err != nil {
				rc.Close()
				return fileNames, errors.Trace(err)
			}
			out, err := os.Create(filePath)
			if err != nil {
				rc.Close()
				return fileNames, errors.Trace(err)
			}
			if _, err = io.Copy(out, rc); err != nil {
				out.Close()
				rc.Close()
				return fileNames, errors.Trace(err)
			}
			out.Close()
			fileNames = append(fileNames, filePath)
		}
		rc.Close()
	}
	return fileNames, nil
}
