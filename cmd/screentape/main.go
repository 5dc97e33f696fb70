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
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/screentape/screentape/pkg/errors"
	"github.com/screentape/screentape/version"
)

func main() {
	cmd := &cli.Command{
		Name:        "screentape",
		Usage:       "Screentape session recorder",
		Version:     version.Version,
		Description: "records a display and its audio devices into an mp4 or mov file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Screentape yaml config file",
				Sources: cli.EnvVars("SCREENTAPE_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "config-body",
				Usage:   "Screentape yaml config body",
				Sources: cli.EnvVars("SCREENTAPE_CONFIG_BODY"),
			},
		},
		Action: runRecorder,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func getConfigBody(c *cli.Command) (string, error) {
	configFile := c.String("config")
	configBody := c.String("config-body")
	if configBody == "" {
		if configFile == "" {
			return "", errors.ErrNoConfig
		}
		content, err := os.ReadFile(configFile)
		if err != nil {
			return "", err
		}
		configBody = string(content)
	}
	return configBody, nil
}
