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

package capture

import (
	"fmt"
	"time"

	"github.com/frostbyte73/core"
	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"
	"github.com/linkdata/deadlock"

	"github.com/screentape/screentape/pkg/config"
	"github.com/screentape/screentape/pkg/errors"
	"github.com/screentape/screentape/pkg/gstreamer"
	"github.com/screentape/screentape/pkg/logger"
	"github.com/screentape/screentape/pkg/media"
	"github.com/screentape/screentape/pkg/types"
)

const audioQueueNanos = uint64(3e9)

// DisplaySource records an X display with ximagesrc and pulse devices with
// pulsesrc, encoding on the fly. Each track ends in an appsink that hands
// finished samples to the session.
type DisplaySource struct {
	conf      *config.Config
	callbacks *media.Callbacks
	logger    logger.Logger

	pipeline *gstreamer.Pipeline

	mu       deadlock.Mutex
	onDone   func()
	stopping core.Fuse
	finished core.Fuse
}

func newDisplaySource(conf *config.Config, callbacks *media.Callbacks, kinds []types.SampleKind) (*DisplaySource, error) {
	pipeline, err := gstreamer.NewPipeline("capture")
	if err != nil {
		return nil, err
	}

	s := &DisplaySource{
		conf:      conf,
		callbacks: callbacks,
		logger:    logger.GetLogger().WithValues("display", conf.Display),
		pipeline:  pipeline,
	}

	logPulseStatus(conf)

	for _, kind := range kinds {
		switch kind {
		case types.KindVideo:
			err = s.buildVideoChain()
		case types.KindSystemAudio:
			err = s.buildAudioChain(kind, conf.SystemDevice)
		case types.KindMicrophone:
			err = s.buildAudioChain(kind, conf.MicDevice)
		default:
			err = errors.ErrNotSupported(string(kind))
		}
		if err != nil {
			return nil, errors.ErrCaptureFailed(kind, err)
		}
	}

	pipeline.SetWatch(s.messageWatch)
	return s, nil
}

func (s *DisplaySource) buildVideoChain() error {
	src, err := gst.NewElement("ximagesrc")
	if err != nil {
		return errors.ErrElementFailed("ximagesrc", err)
	}
	if s.conf.Display != "" {
		if err = src.SetProperty("display-name", s.conf.Display); err != nil {
			return err
		}
	}
	if err = src.SetProperty("use-damage", false); err != nil {
		return err
	}
	if err = src.SetProperty("show-pointer", s.conf.CaptureCursor); err != nil {
		return err
	}

	videoConvert, err := gst.NewElement("videoconvert")
	if err != nil {
		return errors.ErrElementFailed("videoconvert", err)
	}

	framerateCaps, err := gstreamer.BuildCapsFilter(
		fmt.Sprintf("video/x-raw,framerate=%d/1", s.conf.Framerate),
	)
	if err != nil {
		return err
	}

	enc, err := gst.NewElement("x264enc")
	if err != nil {
		return errors.ErrElementFailed("x264enc", err)
	}
	if err = enc.SetProperty("bitrate", uint(s.conf.VideoBitrate)); err != nil {
		return err
	}
	enc.SetArg("speed-preset", "veryfast")
	enc.SetArg("tune", "zerolatency")
	if s.conf.KeyFrameInterval > 0 {
		keyInt := uint(s.conf.KeyFrameInterval * float64(s.conf.Framerate))
		if err = enc.SetProperty("key-int-max", keyInt); err != nil {
			return err
		}
	}

	profileCaps, err := gstreamer.BuildCapsFilter(fmt.Sprintf(
		"video/x-h264,profile=%s,stream-format=byte-stream,alignment=au,framerate=%d/1",
		s.conf.VideoProfile, s.conf.Framerate,
	))
	if err != nil {
		return err
	}

	sink, err := s.buildAppSink(types.KindVideo)
	if err != nil {
		return err
	}

	elements := []*gst.Element{src, videoConvert, framerateCaps, enc, profileCaps, sink.Element}
	if err = s.pipeline.AddElements(elements...); err != nil {
		return err
	}
	return s.pipeline.LinkElements(elements...)
}

func (s *DisplaySource) buildAudioChain(kind types.SampleKind, device string) error {
	src, err := gst.NewElementWithName("pulsesrc", fmt.Sprintf("%s_pulsesrc", kind))
	if err != nil {
		return errors.ErrElementFailed("pulsesrc", err)
	}
	if err = src.SetProperty("device", device); err != nil {
		return err
	}

	queue, err := gstreamer.BuildQueue(fmt.Sprintf("%s_capture_queue", kind), audioQueueNanos, false)
	if err != nil {
		return err
	}

	audioConvert, err := gst.NewElement("audioconvert")
	if err != nil {
		return errors.ErrElementFailed("audioconvert", err)
	}
	audioResample, err := gst.NewElement("audioresample")
	if err != nil {
		return errors.ErrElementFailed("audioresample", err)
	}

	rawCaps, err := gstreamer.BuildCapsFilter(fmt.Sprintf(
		"audio/x-raw,format=S16LE,layout=interleaved,rate=%d,channels=2",
		s.conf.AudioFrequency,
	))
	if err != nil {
		return err
	}

	enc, err := gst.NewElement("faac")
	if err != nil {
		return errors.ErrElementFailed("faac", err)
	}
	if err = enc.SetProperty("bitrate", int(s.conf.AudioBitrate*1000)); err != nil {
		return err
	}

	// adts frames are self describing, raw aac would lose its codec data
	// between the capture and writer pipelines
	parse, err := gst.NewElement("aacparse")
	if err != nil {
		return errors.ErrElementFailed("aacparse", err)
	}
	adtsCaps, err := gstreamer.BuildCapsFilter("audio/mpeg,mpegversion=4,stream-format=adts")
	if err != nil {
		return err
	}

	sink, err := s.buildAppSink(kind)
	if err != nil {
		return err
	}

	elements := []*gst.Element{src, queue, audioConvert, audioResample, rawCaps, enc, parse, adtsCaps, sink.Element}
	if err = s.pipeline.AddElements(elements...); err != nil {
		return err
	}
	return s.pipeline.LinkElements(elements...)
}

func (s *DisplaySource) buildAppSink(kind types.SampleKind) (*app.Sink, error) {
	sink, err := app.NewAppSink()
	if err != nil {
		return nil, errors.ErrElementFailed("appsink", err)
	}

	sink.SetCallbacks(&app.SinkCallbacks{
		EOSFunc: func(_ *app.Sink) {
			s.logger.Debugw("appsink EOS", "kind", kind)
		},
		NewSampleFunc: func(appSink *app.Sink) gst.FlowReturn {
			sample := appSink.PullSample()
			if sample == nil {
				return gst.FlowEOS
			}
			buffer := sample.GetBuffer()
			if buffer == nil {
				return gst.FlowError
			}

			pts := buffer.PresentationTimestamp()
			if pts == gst.ClockTimeNone {
				return gst.FlowOK
			}
			var duration time.Duration
			if d := buffer.Duration(); d != gst.ClockTimeNone {
				duration = time.Duration(d)
			}

			s.callbacks.OnSample(&media.Sample{
				Kind:     kind,
				Data:     buffer.Map(gst.MapRead).Bytes(),
				PTS:      time.Duration(pts),
				Duration: duration,
				Keyframe: kind.IsAudio() || buffer.GetFlags()&gst.BufferFlagDeltaUnit == 0,
			})
			return gst.FlowOK
		},
	})

	return sink, nil
}

func (s *DisplaySource) Start() error {
	if err := s.pipeline.Start(); err != nil {
		return err
	}
	s.logger.Infow("capture started")
	return nil
}

// Stop sends EOS so in-flight samples drain through the appsinks before
// onDone fires.
func (s *DisplaySource) Stop(onDone func()) {
	s.stopping.Once(func() {
		s.mu.Lock()
		s.onDone = onDone
		s.mu.Unlock()

		if s.finished.IsBroken() {
			s.fireOnDone()
			return
		}

		s.logger.Debugw("stopping capture")
		s.pipeline.SendEOS()
	})
}

func (s *DisplaySource) messageWatch(msg *gst.Message) bool {
	switch msg.Type() {
	case gst.MessageEOS:
		go s.finish()
		return false

	case gst.MessageError:
		gErr := msg.ParseError()
		err := errors.ErrCaptureFailed("display", errors.New(gErr.Error()))
		s.logger.Errorw("capture pipeline error", err, "debug", gErr.DebugString())
		go func() {
			if !s.stopping.IsBroken() {
				s.callbacks.OnFatalError(err)
			}
			s.finish()
		}()
		return false

	default:
		s.logger.Debugw(msg.String())
	}

	return true
}

func (s *DisplaySource) finish() {
	s.finished.Once(func() {
		if err := s.pipeline.Finish(); err != nil {
			s.logger.Warnw("capture pipeline closed with error", err)
		}
		s.logger.Infow("capture finished")
	})
	s.fireOnDone()
}

func (s *DisplaySource) fireOnDone() {
	s.mu.Lock()
	onDone := s.onDone
	s.onDone = nil
	s.mu.Unlock()
	if onDone != nil {
		onDone()
	}
}
