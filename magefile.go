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

//go:build mage

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/livekit/mageutil"
)

var Default = Build

func Build() error {
	ctx := context.Background()

	commit := "unknown"
	if out, err := mageutil.Out(ctx, "git rev-parse --short HEAD"); err == nil {
		commit = strings.TrimSpace(string(out))
	}

	return mageutil.Run(ctx, fmt.Sprintf(
		`go build -ldflags "-X github.com/screentape/screentape/version.Commit=%s" -o bin/screentape ./cmd/screentape`,
		commit,
	))
}

func Test() error {
	return mageutil.Run(context.Background(), "go test -count=1 -race ./...")
}

// Deadlock runs the tests with lock order checking enabled.
func Deadlock() error {
	return mageutil.Run(context.Background(), "go test -count=1 -tags deadlock ./...")
}

// Dotfiles renders pipeline graphs written to dir into pngs.
func Dotfiles(dir string) error {
	files, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	dots := make(map[string]bool)
	pngs := make(map[string]bool)
	for _, file := range files {
		name := file.Name()
		if strings.HasSuffix(name, ".dot") {
			dots[name[:len(name)-4]] = true
		} else if strings.HasSuffix(name, ".png") {
			pngs[name[:len(name)-4]] = true
		}
	}

	for name := range dots {
		if !pngs[name] {
			if err = mageutil.Run(context.Background(), fmt.Sprintf(
				"dot -Tpng %s/%s.dot -o %s/%s.png",
				dir, name, dir, name,
			)); err != nil {
				return err
			}
		}
	}

	return nil
}
