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

package config

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/screentape/screentape/pkg/types"
)

// updateFilepath resolves the configured filepath into the local write location
// and, when uploading, the storage location.
func (c *Config) updateFilepath() error {
	now := time.Now()
	c.StorageFilepath = clean(c.Filepath)
	c.StorageFilepath = stringReplace(c.StorageFilepath, map[string]string{
		"{time}": now.Format("2006-01-02T150405"),
		"{utc}":  fmt.Sprintf("%s%03d", now.Format("20060102150405"), now.UnixMilli()%1000),
	})

	ext := c.Container.Extension()

	if c.StorageFilepath == "" || strings.HasSuffix(c.StorageFilepath, "/") {
		// generate filename
		c.StorageFilepath = fmt.Sprintf("%sscreentape-%s%s", c.StorageFilepath, now.Format("2006-01-02T150405"), ext)
	} else if !strings.HasSuffix(c.StorageFilepath, string(ext)) {
		// check for existing (incorrect) extension
		if extIdx := strings.LastIndex(c.StorageFilepath, "."); extIdx > -1 {
			switch types.FileExtension(c.StorageFilepath[extIdx:]) {
			case types.FileExtensionMP4, types.FileExtensionMOV:
				c.StorageFilepath = c.StorageFilepath[:extIdx]
			}
		}

		// add file extension
		c.StorageFilepath = c.StorageFilepath + string(ext)
	}

	dir, filename := path.Split(c.StorageFilepath)
	if c.StorageConfig == nil || c.StorageConfig.IsLocal() {
		if dir != "" {
			// create local directory
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
		}
		// write directly to requested location
		c.LocalFilepath = c.StorageFilepath
	} else {
		// write to tmp dir, upload on completion
		tmpDir := path.Join(TmpDir, c.SessionID)
		if err := os.MkdirAll(tmpDir, 0755); err != nil {
			return err
		}
		c.LocalFilepath = path.Join(tmpDir, filename)
	}

	return nil
}

func clean(filepath string) string {
	hasEndingSlash := strings.HasSuffix(filepath, "/")
	filepath = path.Clean(filepath)
	for strings.HasPrefix(filepath, "../") {
		filepath = filepath[3:]
	}
	if filepath == "" || filepath == "." || filepath == ".." {
		return ""
	}
	if hasEndingSlash {
		return filepath + "/"
	}
	return filepath
}

func stringReplace(s string, replacements map[string]string) string {
	for template, value := range replacements {
		s = strings.Replace(s, template, value, -1)
	}
	return s
}
