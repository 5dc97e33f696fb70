// Copyright 2025 Screentape, Inc.
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

// Package upload moves finished recordings to their configured storage
// destination once the writer has closed the file.
package upload

import (
	"fmt"
	"os"
	"time"

	"github.com/screentape/screentape/pkg/config"
	"github.com/screentape/screentape/pkg/info"
	"github.com/screentape/screentape/pkg/logger"
	"github.com/screentape/screentape/pkg/stats"
)

const (
	maxRetries = 5
	minDelay   = time.Millisecond * 100
	maxDelay   = time.Second * 5
)

type uploader interface {
	upload(localFilepath, storageFilepath, contentType string) (string, int64, error)
}

type Uploader struct {
	primary uploader
	backup  uploader
	info    *info.SessionInfo
	monitor *stats.SessionMonitor
}

func New(primary, backup *config.StorageConfig, monitor *stats.SessionMonitor, sessionInfo *info.SessionInfo) (*Uploader, error) {
	p, err := getUploader(primary)
	if err != nil {
		return nil, err
	}

	u := &Uploader{
		primary: p,
		monitor: monitor,
		info:    sessionInfo,
	}

	if backup != nil {
		b, err := getUploader(backup)
		if err != nil {
			logger.Errorw("failed to create backup uploader", err)
		} else {
			u.backup = b
		}
	}

	return u, nil
}

func getUploader(conf *config.StorageConfig) (uploader, error) {
	switch {
	case conf == nil:
		return newLocalUploader("")
	case conf.S3 != nil:
		return newS3Uploader(conf.S3, conf.Prefix)
	case conf.GCP != nil:
		return newGCPUploader(conf.GCP, conf.Prefix)
	case conf.Azure != nil:
		return newAzureUploader(conf.Azure, conf.Prefix)
	case conf.AliOSS != nil:
		return newAliOSSUploader(conf.AliOSS, conf.Prefix)
	default:
		return newLocalUploader(conf.Prefix)
	}
}

// Upload sends the file to primary storage, falling back to backup storage
// if the primary upload fails. It returns the final location and file size.
func (u *Uploader) Upload(
	localFilepath, storageFilepath, contentType string,
	deleteAfterUpload bool,
) (string, int64, error) {

	start := time.Now()
	location, size, primaryErr := u.primary.upload(localFilepath, storageFilepath, contentType)
	elapsed := time.Since(start)

	if primaryErr == nil {
		// success
		if u.monitor != nil {
			u.monitor.IncUploadCountSuccess(contentType, float64(elapsed.Milliseconds()))
		}
		if deleteAfterUpload {
			_ = os.Remove(localFilepath)
		}
		return location, size, nil
	}

	if u.monitor != nil {
		u.monitor.IncUploadCountFailure(contentType, float64(elapsed.Milliseconds()))
	}
	if u.backup != nil {
		location, size, backupErr := u.backup.upload(localFilepath, storageFilepath, contentType)
		if backupErr == nil {
			if u.info != nil {
				u.info.SetBackupUsed()
			}
			if u.monitor != nil {
				u.monitor.IncBackupStorageWrites()
			}
			if deleteAfterUpload {
				_ = os.Remove(localFilepath)
			}
			return location, size, nil
		}

		return "", 0, fmt.Errorf("primary: %s\nbackup: %s", primaryErr.Error(), backupErr.Error())
	}

	return "", 0, primaryErr
}
