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

package session

import (
	"context"
	"os"
	"time"

	"github.com/frostbyte73/core"
	"github.com/linkdata/deadlock"
	"go.opentelemetry.io/otel"
	"go.uber.org/atomic"

	"github.com/screentape/screentape/pkg/config"
	"github.com/screentape/screentape/pkg/errors"
	"github.com/screentape/screentape/pkg/info"
	"github.com/screentape/screentape/pkg/logger"
	"github.com/screentape/screentape/pkg/media"
	"github.com/screentape/screentape/pkg/stats"
	"github.com/screentape/screentape/pkg/types"
)

var tracer = otel.Tracer("github.com/screentape/screentape/pkg/session")

const sourceStopTimeout = time.Second * 10

// SourceFactory builds the capture source for the kinds that have writer
// tracks, delivering samples through the callbacks.
type SourceFactory func(callbacks *media.Callbacks, kinds []types.SampleKind) (media.Source, error)

// Controller owns one capture session, routing source samples to writer
// tracks and running the stop sequence exactly once.
type Controller struct {
	conf *config.Config
	Info *info.SessionInfo

	writer    media.Writer
	source    media.Source
	callbacks *media.Callbacks
	logger    logger.Logger

	tracks map[types.SampleKind]*track

	mu           deadlock.Mutex
	state        StateManager
	monitor      *SizeMonitor
	promMonitor  *stats.SessionMonitor
	limitTimer   *time.Timer
	stopping     core.Fuse
	stopped      core.Fuse
	originSet    atomic.Bool
	origin       atomic.Duration
	onStop       func(*info.SessionInfo)
	dropThrottle core.Throttle
	stats        sessionStats
}

type track struct {
	kind     types.SampleKind
	handle   media.TrackHandle
	appended atomic.Uint64
	dropped  atomic.Uint64
}

type sessionStats struct {
	audioSamples        atomic.Uint64
	droppedBeforeOrigin atomic.Uint64
}

func New(ctx context.Context, conf *config.Config, callbacks *media.Callbacks, writer media.Writer, newSource SourceFactory) (*Controller, error) {
	ctx, span := tracer.Start(ctx, "Session.New")
	defer span.End()

	if callbacks == nil {
		callbacks = &media.Callbacks{}
	}
	c := &Controller{
		conf: conf,
		Info: &info.SessionInfo{
			SessionID: conf.SessionID,
			Status:    info.StatusStarting,
			UpdatedAt: time.Now().UnixNano(),
		},
		writer:       writer,
		callbacks:    callbacks,
		logger:       logger.GetLogger().WithValues("sessionID", conf.SessionID),
		tracks:       make(map[types.SampleKind]*track),
		dropThrottle: core.NewThrottle(time.Second),
	}
	c.callbacks.SetOnSample(c.Route)
	c.callbacks.SetOnFatalError(c.onFatalError)

	// the video track is required
	videoTrack, err := writer.AddTrack(types.KindVideo, media.TrackSettings{
		Codec:     conf.VideoCodec(),
		Width:     conf.Width,
		Height:    conf.Height,
		Framerate: conf.Framerate,
	})
	if err != nil {
		return nil, err
	}
	c.tracks[types.KindVideo] = &track{kind: types.KindVideo, handle: videoTrack}

	// audio tracks are optional, a failure only loses that capability
	for _, kind := range types.AudioKinds {
		if !conf.AudioEnabled(kind) {
			continue
		}
		handle, err := writer.AddTrack(kind, media.TrackSettings{
			Codec:      conf.AudioCodec(),
			Channels:   2,
			SampleRate: conf.AudioFrequency,
		})
		if err != nil {
			c.logger.Warnw("continuing without audio track", err, "kind", kind)
			continue
		}
		c.tracks[kind] = &track{kind: kind, handle: handle}
	}

	kinds := make([]types.SampleKind, 0, len(c.tracks))
	for kind := range c.tracks {
		kinds = append(kinds, kind)
	}
	src, err := newSource(c.callbacks, kinds)
	if err != nil {
		return nil, err
	}
	c.source = src

	c.state.UpgradeState(StateReady)
	return c, nil
}

// SetMonitor attaches prometheus session metrics.
func (c *Controller) SetMonitor(m *stats.SessionMonitor) {
	c.promMonitor = m
}

// Start begins recording. The writer must not have been started. onStop is
// invoked exactly once, after the session has fully ended.
func (c *Controller) Start(ctx context.Context, onStop func(*info.SessionInfo)) error {
	_, span := tracer.Start(ctx, "Session.Start")
	defer span.End()

	if status := c.writer.Status(); status != media.WriterIdle {
		return errors.ErrWriterNotIdle
	}

	c.mu.Lock()
	if c.onStop != nil || c.state.GetState() >= StateRecording {
		c.mu.Unlock()
		return errors.ErrSessionStarted
	}
	c.onStop = onStop
	c.mu.Unlock()

	if err := c.writer.StartWriting(); err != nil {
		c.abortStart(err)
		return err
	}

	now := time.Now().UnixNano()
	c.mu.Lock()
	c.Info.StartedAt = now
	c.Info.UpdateStatus(info.StatusActive)
	c.mu.Unlock()
	c.state.UpgradeState(StateRecording)

	if err := c.source.Start(); err != nil {
		c.abortStart(err)
		// the writer has started, close the file without waiting
		c.writer.FinishWriting(func(error) {})
		return err
	}

	c.mu.Lock()
	if c.conf.MaxSize > 0 {
		c.monitor = NewSizeMonitor(c.conf.LocalFilepath, c.conf.MaxSize, c.conf.SizeWarningPercent, c.onSizeWarning, c.onSizeLimit)
		c.monitor.Start()
	}
	if c.conf.MaxDuration > 0 {
		c.limitTimer = time.AfterFunc(c.conf.MaxDuration, func() {
			c.logger.Infow("max duration reached", "maxDuration", c.conf.MaxDuration)
			c.Stop(context.Background(), types.StopDurationLimit)
		})
	}
	c.mu.Unlock()

	if c.promMonitor != nil {
		c.promMonitor.SessionStarted()
	}
	c.logger.Infow("session started", "filepath", c.conf.LocalFilepath)
	return nil
}

func (c *Controller) abortStart(err error) {
	c.mu.Lock()
	c.onStop = nil
	if c.Info.Status != info.StatusFailed {
		c.Info.SetFailed(err)
	}
	c.mu.Unlock()
}

// Run starts the session and blocks until it has ended.
func (c *Controller) Run(ctx context.Context) *info.SessionInfo {
	ctx, span := tracer.Start(ctx, "Session.Run")
	defer span.End()

	res := make(chan struct{})
	if err := c.Start(ctx, func(*info.SessionInfo) { close(res) }); err != nil {
		return c.Info
	}
	<-res
	return c.Info
}

// Route delivers one sample to its track. Safe for concurrent use by
// per-kind producers.
func (c *Controller) Route(s *media.Sample) {
	if s == nil || !s.Kind.Valid() {
		return
	}
	// the source has drained before the stop sequence touches the writer,
	// anything arriving outside of recording is dropped
	if c.state.GetState() != StateRecording {
		return
	}
	t := c.tracks[s.Kind]
	if t == nil {
		return
	}

	if s.Kind == types.KindVideo {
		c.routeVideo(t, s)
	} else {
		c.routeAudio(t, s)
	}
}

func (c *Controller) routeVideo(t *track, s *media.Sample) {
	if !t.handle.Ready() {
		t.dropped.Inc()
		if c.promMonitor != nil {
			c.promMonitor.SampleDropped(t.kind)
		}
		c.dropThrottle(func() {
			c.logger.Warnw("video track not ready, dropping", nil, "dropped", t.dropped.Load())
		})
		return
	}

	if !c.originSet.Load() {
		c.mu.Lock()
		if !c.originSet.Load() {
			c.origin.Store(s.PTS)
			c.writer.OpenSession(s.PTS)
			c.originSet.Store(true)
			c.logger.Debugw("session origin established", "pts", s.PTS)
		}
		c.mu.Unlock()
	}

	if c.writer.Append(t.handle, s) {
		t.appended.Inc()
		if c.promMonitor != nil {
			c.promMonitor.SampleAppended(t.kind)
		}
	} else {
		t.dropped.Inc()
		if c.promMonitor != nil {
			c.promMonitor.SampleDropped(t.kind)
		}
	}
}

func (c *Controller) routeAudio(t *track, s *media.Sample) {
	if !t.handle.Ready() {
		t.dropped.Inc()
		if c.promMonitor != nil {
			c.promMonitor.SampleDropped(t.kind)
		}
		return
	}

	// audio arriving before the first video sample is dropped, not buffered
	if !c.originSet.Load() {
		c.stats.droppedBeforeOrigin.Inc()
		return
	}

	if c.writer.Append(t.handle, s) {
		t.appended.Inc()
		c.stats.audioSamples.Inc()
		if c.promMonitor != nil {
			c.promMonitor.SampleAppended(t.kind)
		}
	} else {
		t.dropped.Inc()
		if c.promMonitor != nil {
			c.promMonitor.SampleDropped(t.kind)
		}
	}
}

func (c *Controller) onSizeWarning(size int64) {
	c.mu.Lock()
	c.Info.SizeWarning = true
	c.Info.UpdatedAt = time.Now().UnixNano()
	c.mu.Unlock()

	if c.promMonitor != nil {
		c.promMonitor.SizeWarning(size)
	}
	c.logger.Warnw("output file approaching size limit", nil, "size", size, "maxSize", c.conf.MaxSize)
}

func (c *Controller) onSizeLimit(size int64) {
	c.logger.Infow("size limit reached", "size", size, "maxSize", c.conf.MaxSize)
	go c.Stop(context.Background(), types.StopSizeLimit)
}

// onFatalError handles asynchronous failures from the source or the writer
// pipeline. Finalization still runs so the completion callback always fires.
func (c *Controller) onFatalError(err error) {
	c.logger.Errorw("session failed", err)
	c.mu.Lock()
	// teardown errors after a stop has begun do not change the outcome
	if c.Info.Status != info.StatusFailed && c.state.GetState() < StateStopping {
		c.Info.SetFailed(err)
	}
	c.mu.Unlock()
	go c.Stop(context.Background(), types.StopSourceError)
}

// Stop ends the session. The first caller wins, later calls and concurrent
// triggers are no-ops. The completion callback passed to Start fires after
// the monitor is cancelled, the source has drained, and the file is
// finalized or has failed.
func (c *Controller) Stop(ctx context.Context, reason types.StopReason) {
	_, span := tracer.Start(ctx, "Session.Stop")
	defer span.End()

	c.stopping.Once(func() {
		old, _ := c.state.UpgradeState(StateStopping)
		started := old >= StateRecording

		c.mu.Lock()
		if c.limitTimer != nil {
			c.limitTimer.Stop()
		}
		monitor := c.monitor
		c.Info.StopReason = reason
		switch c.Info.Status {
		case info.StatusStarting:
			c.Info.SetAborted(info.MsgStoppedBeforeStarted)
		case info.StatusActive:
			switch reason {
			case types.StopSizeLimit:
				c.Info.SetLimitReached(info.MsgSizeLimitReached)
			case types.StopDurationLimit:
				c.Info.SetLimitReached(info.MsgDurationLimitReached)
			default:
				c.Info.UpdateStatus(info.StatusEnding)
			}
		}
		onStop := c.onStop
		c.onStop = nil
		c.mu.Unlock()

		c.logger.Infow("stopping session", "reason", reason)

		// no size check may fire once finalization begins
		if monitor != nil {
			monitor.Stop()
		}

		if started {
			c.stopSource()
		}
		c.finishWriter()
		c.finalizeInfo()

		c.state.UpgradeState(StateFinished)
		if c.promMonitor != nil {
			c.promMonitor.SessionEnded(c.Info)
		}
		c.stopped.Break()

		if onStop != nil {
			onStop(c.Info)
		}
	})
}

// Stopped returns a channel that closes once the session has fully ended.
func (c *Controller) Stopped() <-chan struct{} {
	return c.stopped.Watch()
}

func (c *Controller) stopSource() {
	srcDone := make(chan struct{})
	c.source.Stop(func() {
		close(srcDone)
	})
	select {
	case <-srcDone:
	case <-time.After(sourceStopTimeout):
		c.logger.Warnw("timed out waiting for source to stop", nil)
	}
}

func (c *Controller) finishWriter() {
	if status := c.writer.Status(); status != media.WriterWriting {
		c.logger.Warnw("writer has nothing to finalize", errors.ErrWriterNotWriting, "status", status.String())
		return
	}

	for _, t := range c.tracks {
		c.writer.MarkFinished(t.handle)
	}

	done := make(chan error, 1)
	c.writer.FinishWriting(func(err error) {
		done <- err
	})

	select {
	case err := <-done:
		if err != nil {
			c.mu.Lock()
			c.Info.SetFailed(err)
			c.mu.Unlock()
		}
	case <-time.After(c.conf.FinalizeTimeout):
		c.mu.Lock()
		c.Info.SetFailed(errors.ErrFinalizeTimeout)
		c.mu.Unlock()
	}
}

func (c *Controller) finalizeInfo() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// ensure the session ends in a terminal state
	switch c.Info.Status {
	case info.StatusStarting:
		c.Info.SetAborted(info.MsgStoppedBeforeStarted)
	case info.StatusActive, info.StatusEnding:
		c.Info.SetComplete()
	}

	c.Info.Tracks = c.trackStats()
	c.Info.AudioSamples = c.stats.audioSamples.Load()
	c.Info.DroppedBeforeOrigin = c.stats.droppedBeforeOrigin.Load()

	fileInfo := &info.FileInfo{
		Filename: c.conf.StorageFilepath,
	}
	if stat, err := os.Stat(c.conf.LocalFilepath); err == nil {
		fileInfo.Size = stat.Size()
	}
	if c.Info.StartedAt != 0 && c.Info.EndedAt != 0 {
		fileInfo.Duration = c.Info.EndedAt - c.Info.StartedAt
	}
	c.Info.File = fileInfo
}

func (c *Controller) trackStats() []*info.TrackStats {
	all := make([]*info.TrackStats, 0, len(c.tracks))
	for _, kind := range []types.SampleKind{types.KindVideo, types.KindSystemAudio, types.KindMicrophone} {
		t := c.tracks[kind]
		if t == nil {
			continue
		}
		all = append(all, &info.TrackStats{
			Kind:     kind,
			Appended: t.appended.Load(),
			Dropped:  t.dropped.Load(),
		})
	}
	return all
}

// Origin returns the session timeline origin, once the first video sample
// has established it.
func (c *Controller) Origin() (time.Duration, bool) {
	if !c.originSet.Load() {
		return 0, false
	}
	return c.origin.Load(), true
}

// Snapshot returns a copy of the session info with live counters.
func (c *Controller) Snapshot() info.SessionInfo {
	c.mu.Lock()
	snap := *c.Info
	c.mu.Unlock()

	snap.Tracks = c.trackStats()
	snap.AudioSamples = c.stats.audioSamples.Load()
	snap.DroppedBeforeOrigin = c.stats.droppedBeforeOrigin.Load()
	return snap
}
