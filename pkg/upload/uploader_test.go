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

package upload

import (
	"errors"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/screentape/screentape/pkg/config"
	"github.com/screentape/screentape/pkg/info"
)

func TestGetUploader(t *testing.T) {
	u, err := getUploader(nil)
	require.NoError(t, err)
	require.IsType(t, &localUploader{}, u)

	u, err = getUploader(&config.StorageConfig{Prefix: "recordings"})
	require.NoError(t, err)
	require.IsType(t, &localUploader{}, u)
}

func TestLocalUpload(t *testing.T) {
	dir := t.TempDir()

	src := path.Join(dir, "session.mp4")
	require.NoError(t, os.WriteFile(src, []byte("not actually an mp4"), 0644))

	u, err := New(&config.StorageConfig{Prefix: path.Join(dir, "out")}, nil, nil, nil)
	require.NoError(t, err)

	location, size, err := u.Upload(src, "recordings/session.mp4", "video/mp4", false)
	require.NoError(t, err)
	require.Equal(t, path.Join(dir, "out", "recordings", "session.mp4"), location)
	require.Equal(t, int64(19), size)

	b, err := os.ReadFile(location)
	require.NoError(t, err)
	require.Equal(t, "not actually an mp4", string(b))

	// original stays in place unless asked otherwise
	_, err = os.Stat(src)
	require.NoError(t, err)
}

func TestLocalUploadDeletesSource(t *testing.T) {
	dir := t.TempDir()

	src := path.Join(dir, "session.mp4")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0644))

	u, err := New(&config.StorageConfig{Prefix: path.Join(dir, "out")}, nil, nil, nil)
	require.NoError(t, err)

	_, _, err = u.Upload(src, "session.mp4", "video/mp4", true)
	require.NoError(t, err)

	_, err = os.Stat(src)
	require.True(t, os.IsNotExist(err))
}

type fakeUploader struct {
	err      error
	location string
	uploads  int
}

func (f *fakeUploader) upload(_, storageFilepath, _ string) (string, int64, error) {
	f.uploads++
	if f.err != nil {
		return "", 0, f.err
	}
	return path.Join(f.location, storageFilepath), 100, nil
}

func TestBackupStorage(t *testing.T) {
	primary := &fakeUploader{err: errors.New("bucket unavailable")}
	backup := &fakeUploader{location: "backup"}
	sessionInfo := &info.SessionInfo{}

	u := &Uploader{primary: primary, backup: backup, info: sessionInfo}

	location, size, err := u.Upload("local.mp4", "session.mp4", "video/mp4", false)
	require.NoError(t, err)
	require.Equal(t, "backup/session.mp4", location)
	require.Equal(t, int64(100), size)
	require.Equal(t, 1, primary.uploads)
	require.Equal(t, 1, backup.uploads)
	require.True(t, sessionInfo.BackupUsed)
}

func TestBackupStorageFailure(t *testing.T) {
	u := &Uploader{
		primary: &fakeUploader{err: errors.New("primary down")},
		backup:  &fakeUploader{err: errors.New("backup down")},
	}

	_, _, err := u.Upload("local.mp4", "session.mp4", "video/mp4", false)
	require.ErrorContains(t, err, "primary down")
	require.ErrorContains(t, err, "backup down")
}
