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

package mux

import (
	"fmt"

	"github.com/frostbyte73/core"
	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"
	"go.uber.org/atomic"

	"github.com/screentape/screentape/pkg/errors"
	"github.com/screentape/screentape/pkg/gstreamer"
	"github.com/screentape/screentape/pkg/logger"
	"github.com/screentape/screentape/pkg/media"
	"github.com/screentape/screentape/pkg/types"
)

const (
	videoSrcMaxBytes = uint64(4e6)
	audioSrcMaxBytes = uint64(512e3)
	trackQueueNanos  = uint64(3e9)
)

// Track feeds one stream into the muxer through an appsrc. Readiness
// follows the appsrc need-data and enough-data signals, so a track that
// has fallen behind reports not ready instead of queueing without bound.
type Track struct {
	kind     types.SampleKind
	src      *app.Source
	queue    *gst.Element
	elements []*gst.Element

	ready    atomic.Bool
	finished core.Fuse
	logger   logger.Logger
}

func newTrack(kind types.SampleKind, settings media.TrackSettings) (*Track, error) {
	caps, err := capsString(settings)
	if err != nil {
		return nil, err
	}
	parser, err := parserName(settings.Codec)
	if err != nil {
		return nil, err
	}

	srcElem, err := gst.NewElementWithName("appsrc", fmt.Sprintf("%s_src", kind))
	if err != nil {
		return nil, errors.ErrElementFailed("appsrc", err)
	}

	maxBytes := audioSrcMaxBytes
	if kind == types.KindVideo {
		maxBytes = videoSrcMaxBytes
	}
	if err = srcElem.SetProperty("is-live", true); err != nil {
		return nil, errors.ErrGstPipelineError(err)
	}
	if err = srcElem.SetProperty("max-bytes", maxBytes); err != nil {
		return nil, errors.ErrGstPipelineError(err)
	}
	srcElem.SetArg("format", "time")

	parse, err := gst.NewElement(parser)
	if err != nil {
		return nil, errors.ErrElementFailed(parser, err)
	}

	queue, err := gstreamer.BuildQueue(fmt.Sprintf("%s_queue", kind), trackQueueNanos, false)
	if err != nil {
		return nil, err
	}

	t := &Track{
		kind:     kind,
		queue:    queue,
		elements: []*gst.Element{srcElem, parse, queue},
		logger:   logger.GetLogger().WithValues("kind", kind),
	}
	t.ready.Store(true)

	t.src = app.SrcFromElement(srcElem)
	t.src.SetCaps(gst.NewCapsFromString(caps))
	t.src.SetCallbacks(&app.SourceCallbacks{
		NeedDataFunc: func(_ *app.Source, _ uint) {
			t.ready.Store(true)
		},
		EnoughDataFunc: func(_ *app.Source) {
			t.ready.Store(false)
		},
	})

	return t, nil
}

func (t *Track) Kind() types.SampleKind {
	return t.kind
}

func (t *Track) Ready() bool {
	return t.ready.Load()
}

func (t *Track) push(b *gst.Buffer) bool {
	if t.finished.IsBroken() {
		return false
	}
	if flow := t.src.PushBuffer(b); flow != gst.FlowOK {
		t.logger.Debugw("unexpected flow return", "flow", flow.String())
		return false
	}
	return true
}

// endStream sends EOS on the track's appsrc. The muxer finalizes once all
// tracks have ended.
func (t *Track) endStream() {
	t.finished.Once(func() {
		if flow := t.src.EndStream(); flow != gst.FlowOK && flow != gst.FlowFlushing {
			t.logger.Warnw("unexpected flow return", nil, "flow", flow.String())
		}
	})
}
