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
	"time"

	"github.com/frostbyte73/core"
	"github.com/go-gst/go-gst/gst"
	"github.com/linkdata/deadlock"
	"go.uber.org/atomic"

	"github.com/screentape/screentape/pkg/config"
	"github.com/screentape/screentape/pkg/errors"
	"github.com/screentape/screentape/pkg/gstreamer"
	"github.com/screentape/screentape/pkg/logger"
	"github.com/screentape/screentape/pkg/media"
	"github.com/screentape/screentape/pkg/types"
)

// Writer muxes encoded samples into an mp4 or mov file. Each track is an
// appsrc feeding a parser and a queue, request-pad linked into the muxer.
// Timestamps are rebased to the session origin before they are pushed.
type Writer struct {
	conf      *config.Config
	callbacks *media.Callbacks
	logger    logger.Logger

	pipeline *gstreamer.Pipeline
	muxer    *gst.Element

	mu        deadlock.Mutex
	tracks    []*Track
	status    atomic.Int32
	origin    atomic.Duration
	err       error       // guarded by mu
	onDone    func(error) // guarded by mu
	finalized core.Fuse
}

func NewWriter(conf *config.Config, callbacks *media.Callbacks) (*Writer, error) {
	if callbacks == nil {
		callbacks = &media.Callbacks{}
	}

	pipeline, err := gstreamer.NewPipeline("writer")
	if err != nil {
		return nil, err
	}

	muxName, err := muxerName(conf.Container)
	if err != nil {
		return nil, err
	}
	muxer, err := gst.NewElement(muxName)
	if err != nil {
		return nil, errors.ErrElementFailed(muxName, err)
	}

	sink, err := gst.NewElement("filesink")
	if err != nil {
		return nil, errors.ErrElementFailed("filesink", err)
	}
	if err = sink.SetProperty("location", conf.LocalFilepath); err != nil {
		return nil, errors.ErrGstPipelineError(err)
	}
	if err = sink.SetProperty("sync", false); err != nil {
		return nil, errors.ErrGstPipelineError(err)
	}

	if err = pipeline.AddElements(muxer, sink); err != nil {
		return nil, err
	}
	if err = pipeline.LinkElements(muxer, sink); err != nil {
		return nil, err
	}

	w := &Writer{
		conf:      conf,
		callbacks: callbacks,
		logger:    logger.GetLogger().WithValues("container", conf.Container),
		pipeline:  pipeline,
		muxer:     muxer,
	}
	pipeline.SetWatch(w.messageWatch)

	return w, nil
}

func (w *Writer) AddTrack(kind types.SampleKind, settings media.TrackSettings) (media.TrackHandle, error) {
	if w.Status() != media.WriterIdle {
		return nil, errors.ErrWriterNotIdle
	}
	if !w.conf.Container.Compatible(settings.Codec) {
		return nil, errors.ErrIncompatible(w.conf.Container, settings.Codec)
	}

	t, err := newTrack(kind, settings)
	if err != nil {
		return nil, err
	}

	if err = w.pipeline.AddElements(t.elements...); err != nil {
		return nil, err
	}
	if err = w.pipeline.LinkElements(t.elements...); err != nil {
		return nil, err
	}

	muxPad := w.muxer.GetRequestPad(muxPadTemplate(kind))
	if muxPad == nil {
		return nil, errors.ErrGstPipelineError(errors.New("no request pad available on muxer"))
	}
	srcPad := t.queue.GetStaticPad("src")
	if linkReturn := srcPad.Link(muxPad); linkReturn != gst.PadLinkOK {
		return nil, errors.ErrPadLinkFailed(t.queue.GetName(), w.muxer.GetName(), linkReturn.String())
	}

	w.mu.Lock()
	w.tracks = append(w.tracks, t)
	w.mu.Unlock()

	w.logger.Debugw("track added", "kind", kind, "codec", settings.Codec)
	return t, nil
}

func (w *Writer) StartWriting() error {
	if !w.status.CompareAndSwap(int32(media.WriterIdle), int32(media.WriterWriting)) {
		return errors.ErrWriterNotIdle
	}
	if err := w.pipeline.Start(); err != nil {
		w.mu.Lock()
		w.err = err
		w.mu.Unlock()
		w.status.Store(int32(media.WriterFailed))
		return err
	}
	w.logger.Infow("writer started", "filepath", w.conf.LocalFilepath)
	return nil
}

func (w *Writer) OpenSession(origin time.Duration) {
	w.origin.Store(origin)
}

func (w *Writer) Append(track media.TrackHandle, sample *media.Sample) bool {
	if w.Status() != media.WriterWriting {
		return false
	}
	t, ok := track.(*Track)
	if !ok {
		return false
	}

	pts := sample.PTS - w.origin.Load()
	if pts < 0 {
		return false
	}

	b := gst.NewBufferFromBytes(sample.Data)
	b.SetPresentationTimestamp(gst.ClockTime(uint64(pts)))
	if sample.Duration > 0 {
		b.SetDuration(gst.ClockTime(uint64(sample.Duration)))
	}
	if t.kind == types.KindVideo && !sample.Keyframe {
		b.SetFlags(b.GetFlags() | gst.BufferFlagDeltaUnit)
	}

	return t.push(b)
}

func (w *Writer) MarkFinished(track media.TrackHandle) {
	if t, ok := track.(*Track); ok {
		t.endStream()
	}
}

// FinishWriting ends any remaining tracks and finalizes the file once the
// muxer has flushed. onDone fires exactly once, with the first error seen.
func (w *Writer) FinishWriting(onDone func(error)) {
	if onDone == nil {
		onDone = func(error) {}
	}

	w.mu.Lock()
	switch media.WriterStatus(w.status.Load()) {
	case media.WriterCompleted, media.WriterFailed:
		err := w.err
		w.mu.Unlock()
		onDone(err)
		return

	case media.WriterIdle:
		// never started, nothing was written
		w.status.Store(int32(media.WriterCompleted))
		w.mu.Unlock()
		onDone(nil)
		return

	case media.WriterFinalizing:
		w.mu.Unlock()
		onDone(errors.ErrWriterNotWriting)
		return
	}

	w.onDone = onDone
	failed := w.err
	w.status.Store(int32(media.WriterFinalizing))
	tracks := w.tracks
	w.mu.Unlock()

	if failed != nil {
		// the pipeline already broke, EOS will never arrive
		w.finalize(failed)
		return
	}

	for _, t := range tracks {
		t.endStream()
	}
}

func (w *Writer) Status() media.WriterStatus {
	return media.WriterStatus(w.status.Load())
}

// DebugDot renders the writer pipeline as a graphviz dot string.
func (w *Writer) DebugDot() string {
	return w.pipeline.DebugDot()
}

func (w *Writer) messageWatch(msg *gst.Message) bool {
	switch msg.Type() {
	case gst.MessageEOS:
		w.logger.Debugw("EOS received")
		// finalize joins the main loop, it cannot run on the watch goroutine
		go w.finalize(nil)
		return false

	case gst.MessageError:
		gErr := msg.ParseError()
		err := errors.ErrGstPipelineError(errors.New(gErr.Error()))
		w.logger.Errorw("writer pipeline error", err, "debug", gErr.DebugString())
		go w.handleError(err)
		return false

	default:
		w.logger.Debugw(msg.String())
	}

	return true
}

func (w *Writer) handleError(err error) {
	if w.conf.Debug.DotDir != "" {
		w.pipeline.WriteDotFile(w.conf.Debug.DotDir)
	}

	w.mu.Lock()
	if w.err == nil {
		w.err = err
	}
	finalizing := media.WriterStatus(w.status.Load()) == media.WriterFinalizing
	w.mu.Unlock()

	if finalizing {
		w.finalize(err)
	} else {
		// recording cannot continue, the session decides how to end
		w.callbacks.OnFatalError(err)
	}
}

func (w *Writer) finalize(err error) {
	w.finalized.Once(func() {
		finishErr := w.pipeline.Finish()
		if err == nil {
			err = finishErr
		}

		w.mu.Lock()
		if err != nil {
			if w.err == nil {
				w.err = err
			}
			w.status.Store(int32(media.WriterFailed))
		} else {
			w.status.Store(int32(media.WriterCompleted))
		}
		onDone := w.onDone
		w.onDone = nil
		w.mu.Unlock()

		if err != nil {
			w.logger.Warnw("writer closed with error", err)
		} else {
			w.logger.Infow("file finalized", "filepath", w.conf.LocalFilepath)
		}
		if onDone != nil {
			onDone(err)
		}
	})
}
