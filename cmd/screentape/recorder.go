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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/screentape/screentape/pkg/capture"
	"github.com/screentape/screentape/pkg/config"
	"github.com/screentape/screentape/pkg/errors"
	"github.com/screentape/screentape/pkg/info"
	"github.com/screentape/screentape/pkg/logger"
	"github.com/screentape/screentape/pkg/media"
	"github.com/screentape/screentape/pkg/mux"
	"github.com/screentape/screentape/pkg/server"
	"github.com/screentape/screentape/pkg/session"
	"github.com/screentape/screentape/pkg/stats"
	"github.com/screentape/screentape/pkg/types"
	"github.com/screentape/screentape/pkg/upload"
	"github.com/screentape/screentape/version"
)

func runRecorder(ctx context.Context, c *cli.Command) error {
	configBody, err := getConfigBody(c)
	if err != nil {
		return err
	}

	conf, err := config.NewConfig(configBody)
	if err != nil {
		return err
	}
	logger.Infow("starting recorder", "version", version.Version, "sessionID", conf.SessionID)
	if conf.StorageConfig != nil {
		logger.Debugw("storage configured", "storage", conf.StorageConfig.Redacted())
	}

	hostMonitor := stats.NewMonitor(conf.SessionID)
	if err = hostMonitor.Preflight(); err != nil {
		return err
	}

	callbacks := &media.Callbacks{}
	writer, err := mux.NewWriter(conf, callbacks)
	if err != nil {
		return err
	}

	sess, err := session.New(ctx, conf, callbacks, writer,
		func(cb *media.Callbacks, kinds []types.SampleKind) (media.Source, error) {
			return capture.New(conf, cb, kinds)
		})
	if err != nil {
		return err
	}
	promMonitor := stats.NewSessionMonitor(conf.SessionID)
	sess.SetMonitor(promMonitor)

	srv := server.New(conf, sess, writer.DebugDot)
	if err = srv.Start(); err != nil {
		return err
	}
	defer srv.Stop()

	hostClose := make(chan struct{})
	hostMonitor.Start(hostClose)
	defer close(hostClose)

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		sig := <-stopChan
		logger.Infow("exit requested, stopping recording and shutting down", "signal", sig)
		sess.Stop(context.Background(), types.StopSignal)
	}()

	res := sess.Run(ctx)
	signal.Stop(stopChan)

	uploadResult(conf, promMonitor, res)
	logResult(res)
	printResult(res)

	if res.Error != "" {
		return errors.New(res.Error)
	}
	return nil
}

// uploadResult moves the finished file to its storage destination and fills
// in the final location.
func uploadResult(conf *config.Config, monitor *stats.SessionMonitor, res *info.SessionInfo) {
	switch res.Status {
	case info.StatusComplete, info.StatusLimitReached:
		// the file was finalized
	default:
		return
	}

	if conf.StorageConfig == nil || conf.StorageConfig.IsLocal() {
		if res.File != nil {
			res.File.Location = conf.LocalFilepath
		}
		return
	}

	u, err := upload.New(conf.StorageConfig, conf.BackupConfig, monitor, res)
	if err != nil {
		res.SetFailed(err)
		return
	}

	location, size, err := u.Upload(conf.LocalFilepath, conf.StorageFilepath, conf.Container.ContentType(), true)
	if err != nil {
		res.SetFailed(err)
		return
	}
	_ = os.RemoveAll(path.Join(config.TmpDir, conf.SessionID))

	if res.File == nil {
		res.File = &info.FileInfo{Filename: conf.StorageFilepath}
	}
	res.File.Location = location
	res.File.Size = size
}

func logResult(res *info.SessionInfo) {
	switch res.Status {
	case info.StatusFailed:
		logger.Errorw("recording failed", errors.New(res.Error),
			"sessionID", res.SessionID,
			"reason", res.StopReason,
		)
	case info.StatusAborted:
		logger.Warnw("recording aborted", nil,
			"sessionID", res.SessionID,
			"details", res.Details,
		)
	default:
		logger.Infow("recording finished",
			"sessionID", res.SessionID,
			"status", res.Status,
			"reason", res.StopReason,
		)
	}
}

func printResult(res *info.SessionInfo) {
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return
	}
	fmt.Println(string(b))
}
