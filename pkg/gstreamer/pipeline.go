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

package gstreamer

import (
	"os"
	"path"
	"sync"

	"github.com/frostbyte73/core"
	"github.com/go-gst/go-glib/glib"
	"github.com/go-gst/go-gst/gst"

	"github.com/screentape/screentape/pkg/errors"
	"github.com/screentape/screentape/pkg/logger"
)

var initOnce sync.Once

// Init must be called before any pipeline is built.
func Init() {
	initOnce.Do(func() {
		gst.Init(nil)
	})
}

// Pipeline wraps a gst pipeline with its main loop. Element graphs are
// static, built before Start and torn down by Finish.
type Pipeline struct {
	pipeline *gst.Pipeline
	loop     *glib.MainLoop

	started core.Fuse
	running chan struct{}
}

func NewPipeline(name string) (*Pipeline, error) {
	Init()

	pipeline, err := gst.NewPipeline(name)
	if err != nil {
		return nil, errors.ErrGstPipelineError(err)
	}

	return &Pipeline{
		pipeline: pipeline,
		loop:     glib.NewMainLoop(glib.MainContextDefault(), false),
		running:  make(chan struct{}),
	}, nil
}

func (p *Pipeline) AddElements(elements ...*gst.Element) error {
	if err := p.pipeline.AddMany(elements...); err != nil {
		return errors.ErrGstPipelineError(err)
	}
	return nil
}

func (p *Pipeline) LinkElements(elements ...*gst.Element) error {
	if err := gst.ElementLinkMany(elements...); err != nil {
		return errors.ErrGstPipelineError(err)
	}
	return nil
}

// SetWatch installs the bus handler. Must be called before Start.
func (p *Pipeline) SetWatch(watch func(msg *gst.Message) bool) {
	p.pipeline.GetPipelineBus().AddWatch(watch)
}

// Start sets the pipeline to playing and runs the main loop in the
// background until Finish is called.
func (p *Pipeline) Start() error {
	var err error
	p.started.Once(func() {
		go func() {
			p.loop.Run()
			close(p.running)
		}()
		if stateErr := p.pipeline.SetState(gst.StatePlaying); stateErr != nil {
			err = errors.ErrGstPipelineError(stateErr)
		}
	})
	return err
}

func (p *Pipeline) SendEOS() {
	p.pipeline.SendEvent(gst.NewEOSEvent())
}

// Finish sets the pipeline to null and stops the main loop. Safe to call
// whether or not the pipeline was started.
func (p *Pipeline) Finish() error {
	var err error
	if stateErr := p.pipeline.SetState(gst.StateNull); stateErr != nil {
		err = errors.ErrGstPipelineError(stateErr)
	}
	p.loop.Quit()
	if p.started.IsBroken() {
		<-p.running
	}
	return err
}

func (p *Pipeline) DebugDot() string {
	return p.pipeline.DebugBinToDotData(gst.DebugGraphShowAll)
}

// WriteDotFile dumps the pipeline graph for debugging.
func (p *Pipeline) WriteDotFile(dir string) {
	filename := path.Join(dir, p.pipeline.GetName()+".dot")
	if err := os.WriteFile(filename, []byte(p.DebugDot()), 0644); err != nil {
		logger.Warnw("failed to write pipeline graph", err, "filename", filename)
	}
}
