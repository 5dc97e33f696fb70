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
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/screentape/screentape/pkg/config"
	"github.com/screentape/screentape/pkg/errors"
	"github.com/screentape/screentape/pkg/info"
	"github.com/screentape/screentape/pkg/media"
	"github.com/screentape/screentape/pkg/types"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		SessionID:          "ST_test",
		Filepath:           "out.mp4",
		Display:            ":99",
		SystemDevice:       "output.monitor",
		MicDevice:          "default",
		Container:          types.ContainerMP4,
		Width:              1280,
		Height:             720,
		Depth:              24,
		Framerate:          30,
		AudioFrequency:     44100,
		SizeWarningPercent: 75,
		FinalizeTimeout:    time.Second * 5,
		LocalFilepath:      filepath.Join(t.TempDir(), "out.mp4"),
		StorageFilepath:    "out.mp4",
	}
}

func videoSample(pts time.Duration) *media.Sample {
	return &media.Sample{
		Kind:     types.KindVideo,
		Data:     []byte{0x00, 0x00, 0x00, 0x01},
		PTS:      pts,
		Duration: time.Second / 30,
		Keyframe: true,
	}
}

func audioSample(kind types.SampleKind, pts time.Duration) *media.Sample {
	return &media.Sample{
		Kind:     kind,
		Data:     []byte{0xff},
		PTS:      pts,
		Duration: time.Millisecond * 20,
	}
}

type fakeTrack struct {
	kind  types.SampleKind
	ready atomic.Bool
}

func newFakeTrack(kind types.SampleKind) *fakeTrack {
	t := &fakeTrack{kind: kind}
	t.ready.Store(true)
	return t
}

func (t *fakeTrack) Kind() types.SampleKind { return t.kind }
func (t *fakeTrack) Ready() bool            { return t.ready.Load() }

type fakeWriter struct {
	mu sync.Mutex

	status media.WriterStatus
	tracks map[types.SampleKind]*fakeTrack

	addTrackErrs map[types.SampleKind]error
	startErr     error
	finishErr    error
	finishHang   bool
	rejectAppend bool

	origins           []time.Duration
	appended          map[types.SampleKind]int
	finished          map[types.SampleKind]int
	finishCalls       int
	appendAfterFinish int
	appendBeforeOpen  int
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		tracks:   make(map[types.SampleKind]*fakeTrack),
		appended: make(map[types.SampleKind]int),
		finished: make(map[types.SampleKind]int),
	}
}

func (w *fakeWriter) AddTrack(kind types.SampleKind, _ media.TrackSettings) (media.TrackHandle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.addTrackErrs[kind]; err != nil {
		return nil, err
	}
	tr := newFakeTrack(kind)
	w.tracks[kind] = tr
	return tr, nil
}

func (w *fakeWriter) StartWriting() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.startErr != nil {
		return w.startErr
	}
	w.status = media.WriterWriting
	return nil
}

func (w *fakeWriter) OpenSession(origin time.Duration) {
	w.mu.Lock()
	w.origins = append(w.origins, origin)
	w.mu.Unlock()
}

func (w *fakeWriter) Append(track media.TrackHandle, _ *media.Sample) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.rejectAppend {
		return false
	}
	if w.finished[track.Kind()] > 0 {
		w.appendAfterFinish++
		return false
	}
	if len(w.origins) == 0 {
		w.appendBeforeOpen++
	}
	w.appended[track.Kind()]++
	return true
}

func (w *fakeWriter) MarkFinished(track media.TrackHandle) {
	w.mu.Lock()
	w.finished[track.Kind()]++
	w.mu.Unlock()
}

func (w *fakeWriter) FinishWriting(onDone func(error)) {
	w.mu.Lock()
	w.finishCalls++
	w.status = media.WriterFinalizing
	hang := w.finishHang
	err := w.finishErr
	w.mu.Unlock()

	if hang {
		return
	}

	w.mu.Lock()
	if err != nil {
		w.status = media.WriterFailed
	} else {
		w.status = media.WriterCompleted
	}
	w.mu.Unlock()
	onDone(err)
}

func (w *fakeWriter) Status() media.WriterStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.status
}

func (w *fakeWriter) setStatus(status media.WriterStatus) {
	w.mu.Lock()
	w.status = status
	w.mu.Unlock()
}

type fakeSource struct {
	callbacks *media.Callbacks
	kinds     []types.SampleKind

	startErr  error
	started   atomic.Bool
	stopCalls atomic.Int32

	// drain runs inside Stop, before onDone, standing in for samples
	// still in flight when the stop was requested
	drain func()
}

func (s *fakeSource) Start() error {
	if s.startErr != nil {
		return s.startErr
	}
	s.started.Store(true)
	return nil
}

func (s *fakeSource) Stop(onDone func()) {
	s.stopCalls.Inc()
	if s.drain != nil {
		s.drain()
	}
	onDone()
}

func (s *fakeSource) factory() SourceFactory {
	return func(callbacks *media.Callbacks, kinds []types.SampleKind) (media.Source, error) {
		s.callbacks = callbacks
		s.kinds = kinds
		return s, nil
	}
}

func newTestSession(t *testing.T, conf *config.Config) (*Controller, *fakeWriter, *fakeSource) {
	writer := newFakeWriter()
	source := &fakeSource{}
	c, err := New(context.Background(), conf, nil, writer, source.factory())
	require.NoError(t, err)
	return c, writer, source
}

func trackByKind(t *testing.T, tracks []*info.TrackStats, kind types.SampleKind) *info.TrackStats {
	for _, tr := range tracks {
		if tr.Kind == kind {
			return tr
		}
	}
	t.Fatalf("no track stats for %s", kind)
	return nil
}

func TestSessionLifecycle(t *testing.T) {
	conf := testConfig(t)
	c, writer, source := newTestSession(t, conf)

	require.Equal(t, StateReady, c.state.GetState())
	require.ElementsMatch(t,
		[]types.SampleKind{types.KindVideo, types.KindSystemAudio, types.KindMicrophone},
		source.kinds,
	)

	var stopCalls atomic.Int32
	var result *info.SessionInfo
	done := make(chan struct{})
	require.NoError(t, c.Start(context.Background(), func(res *info.SessionInfo) {
		stopCalls.Inc()
		result = res
		close(done)
	}))

	require.True(t, source.started.Load())
	require.Equal(t, media.WriterWriting, writer.Status())
	require.Equal(t, info.StatusActive, c.Snapshot().Status)

	c.Route(videoSample(time.Second * 5))
	origin, ok := c.Origin()
	require.True(t, ok)
	require.Equal(t, time.Second*5, origin)

	c.Route(audioSample(types.KindSystemAudio, time.Second*5))
	c.Route(audioSample(types.KindMicrophone, time.Second*5))

	c.Stop(context.Background(), types.StopRequested)
	<-done

	require.Equal(t, int32(1), stopCalls.Load())
	require.Same(t, c.Info, result)
	require.Equal(t, info.StatusComplete, result.Status)
	require.Equal(t, types.StopRequested, result.StopReason)
	require.Equal(t, int32(1), source.stopCalls.Load())
	require.Equal(t, 1, writer.finishCalls)
	require.Equal(t, []time.Duration{time.Second * 5}, writer.origins)

	for _, kind := range []types.SampleKind{types.KindVideo, types.KindSystemAudio, types.KindMicrophone} {
		require.Equal(t, 1, writer.finished[kind], kind)
		require.Equal(t, 1, writer.appended[kind], kind)
	}
	require.Equal(t, uint64(2), result.AudioSamples)
	require.Zero(t, result.DroppedBeforeOrigin)
	require.Len(t, result.Tracks, 3)
	require.Equal(t, types.KindVideo, result.Tracks[0].Kind)
	require.Equal(t, uint64(1), result.Tracks[0].Appended)
	require.NotZero(t, result.StartedAt)
	require.GreaterOrEqual(t, result.EndedAt, result.StartedAt)
	require.Equal(t, StateFinished, c.state.GetState())

	// later triggers are no-ops
	c.Stop(context.Background(), types.StopSignal)
	require.Equal(t, int32(1), stopCalls.Load())
	require.Equal(t, types.StopRequested, c.Info.StopReason)
}

func TestStartPreconditions(t *testing.T) {
	t.Run("writer must be idle", func(t *testing.T) {
		c, writer, source := newTestSession(t, testConfig(t))
		writer.setStatus(media.WriterWriting)

		err := c.Start(context.Background(), func(*info.SessionInfo) {})
		require.ErrorIs(t, err, errors.ErrWriterNotIdle)
		require.False(t, source.started.Load())
	})

	t.Run("second start rejected", func(t *testing.T) {
		c, writer, _ := newTestSession(t, testConfig(t))
		require.NoError(t, c.Start(context.Background(), func(*info.SessionInfo) {}))

		writer.setStatus(media.WriterIdle)
		err := c.Start(context.Background(), func(*info.SessionInfo) {})
		require.ErrorIs(t, err, errors.ErrSessionStarted)
	})
}

func TestStartFailures(t *testing.T) {
	t.Run("writer start", func(t *testing.T) {
		conf := testConfig(t)
		writer := newFakeWriter()
		writer.startErr = errors.New("no space left on device")
		source := &fakeSource{}
		c, err := New(context.Background(), conf, nil, writer, source.factory())
		require.NoError(t, err)

		var stopCalls atomic.Int32
		err = c.Start(context.Background(), func(*info.SessionInfo) { stopCalls.Inc() })
		require.Error(t, err)
		require.Equal(t, info.StatusFailed, c.Snapshot().Status)
		require.False(t, source.started.Load())
		require.Zero(t, stopCalls.Load())
	})

	t.Run("source start", func(t *testing.T) {
		conf := testConfig(t)
		writer := newFakeWriter()
		source := &fakeSource{startErr: errors.New("display not found")}
		c, err := New(context.Background(), conf, nil, writer, source.factory())
		require.NoError(t, err)

		err = c.Start(context.Background(), func(*info.SessionInfo) {})
		require.Error(t, err)
		require.Equal(t, info.StatusFailed, c.Snapshot().Status)
		require.Equal(t, 1, writer.finishCalls)
	})
}

func TestOriginSetOnce(t *testing.T) {
	conf := testConfig(t)
	c, writer, _ := newTestSession(t, conf)
	require.NoError(t, c.Start(context.Background(), func(*info.SessionInfo) {}))

	_, ok := c.Origin()
	require.False(t, ok)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			c.Route(videoSample(time.Second + time.Duration(i)*time.Second/30))
		}(i)
	}
	close(start)
	wg.Wait()

	require.Len(t, writer.origins, 1)
	origin, ok := c.Origin()
	require.True(t, ok)
	require.Equal(t, writer.origins[0], origin)
	require.Equal(t, 8, writer.appended[types.KindVideo])
	require.Zero(t, writer.appendBeforeOpen)

	// the origin never moves, even for earlier timestamps
	c.Route(videoSample(time.Millisecond))
	moved, _ := c.Origin()
	require.Equal(t, origin, moved)
	require.Len(t, writer.origins, 1)
}

func TestAudioBeforeOrigin(t *testing.T) {
	conf := testConfig(t)
	c, writer, _ := newTestSession(t, conf)
	require.NoError(t, c.Start(context.Background(), func(*info.SessionInfo) {}))

	for i := 0; i < 3; i++ {
		c.Route(audioSample(types.KindSystemAudio, time.Duration(i)*time.Millisecond*20))
	}
	c.Route(audioSample(types.KindMicrophone, 0))

	require.Zero(t, writer.appended[types.KindSystemAudio])
	require.Zero(t, writer.appended[types.KindMicrophone])

	c.Route(videoSample(time.Millisecond * 100))
	c.Route(audioSample(types.KindSystemAudio, time.Millisecond*120))
	c.Route(audioSample(types.KindMicrophone, time.Millisecond*120))

	snap := c.Snapshot()
	require.Equal(t, uint64(4), snap.DroppedBeforeOrigin)
	require.Equal(t, uint64(2), snap.AudioSamples)
	require.Equal(t, 1, writer.appended[types.KindSystemAudio])
	require.Equal(t, 1, writer.appended[types.KindMicrophone])

	// pre-origin drops are not track drops
	require.Zero(t, trackByKind(t, snap.Tracks, types.KindSystemAudio).Dropped)
}

func TestRouteBackpressure(t *testing.T) {
	conf := testConfig(t)
	c, writer, _ := newTestSession(t, conf)
	require.NoError(t, c.Start(context.Background(), func(*info.SessionInfo) {}))

	c.Route(videoSample(0))

	writer.tracks[types.KindVideo].ready.Store(false)
	for i := 1; i <= 5; i++ {
		c.Route(videoSample(time.Duration(i) * time.Second / 30))
	}
	writer.tracks[types.KindSystemAudio].ready.Store(false)
	c.Route(audioSample(types.KindSystemAudio, time.Second))

	snap := c.Snapshot()
	require.Equal(t, uint64(1), trackByKind(t, snap.Tracks, types.KindVideo).Appended)
	require.Equal(t, uint64(5), trackByKind(t, snap.Tracks, types.KindVideo).Dropped)
	require.Equal(t, uint64(1), trackByKind(t, snap.Tracks, types.KindSystemAudio).Dropped)
	require.Equal(t, 1, writer.appended[types.KindVideo])

	// a rejected append counts as a drop
	writer.tracks[types.KindVideo].ready.Store(true)
	writer.mu.Lock()
	writer.rejectAppend = true
	writer.mu.Unlock()
	c.Route(videoSample(time.Second))

	snap = c.Snapshot()
	require.Equal(t, uint64(6), trackByKind(t, snap.Tracks, types.KindVideo).Dropped)
	require.Equal(t, uint64(1), trackByKind(t, snap.Tracks, types.KindVideo).Appended)
}

func TestRouteIgnoresUnknownSamples(t *testing.T) {
	conf := testConfig(t)
	c, writer, _ := newTestSession(t, conf)
	require.NoError(t, c.Start(context.Background(), func(*info.SessionInfo) {}))

	c.Route(nil)
	c.Route(&media.Sample{Kind: "subtitle", PTS: time.Second})

	require.Empty(t, writer.appended)
	snap := c.Snapshot()
	require.Zero(t, snap.DroppedBeforeOrigin)
}

func TestRouteAfterStopDropped(t *testing.T) {
	conf := testConfig(t)
	c, writer, source := newTestSession(t, conf)
	require.NoError(t, c.Start(context.Background(), func(*info.SessionInfo) {}))
	c.Route(videoSample(0))

	// samples still in flight while the source drains are dropped, never
	// appended to tracks being finished
	source.drain = func() {
		c.Route(videoSample(time.Second))
		c.Route(audioSample(types.KindMicrophone, time.Second))
	}
	c.Stop(context.Background(), types.StopRequested)

	require.Equal(t, 1, writer.appended[types.KindVideo])
	require.Zero(t, writer.appended[types.KindMicrophone])
	require.Zero(t, writer.appendAfterFinish)
	require.Equal(t, info.StatusComplete, c.Info.Status)

	c.Route(videoSample(time.Second * 2))
	require.Equal(t, 1, writer.appended[types.KindVideo])
}

func TestStopTriggersRace(t *testing.T) {
	for i := 0; i < 20; i++ {
		conf := testConfig(t)
		c, writer, source := newTestSession(t, conf)

		var stopCalls atomic.Int32
		require.NoError(t, c.Start(context.Background(), func(*info.SessionInfo) { stopCalls.Inc() }))
		c.Route(videoSample(0))

		var wg sync.WaitGroup
		start := make(chan struct{})
		wg.Add(3)
		go func() {
			defer wg.Done()
			<-start
			c.Stop(context.Background(), types.StopSignal)
		}()
		go func() {
			defer wg.Done()
			<-start
			c.Stop(context.Background(), types.StopSizeLimit)
		}()
		go func() {
			defer wg.Done()
			<-start
			source.callbacks.OnFatalError(errors.New("capture died"))
		}()
		close(start)
		wg.Wait()
		<-c.Stopped()

		require.Equal(t, int32(1), stopCalls.Load())
		require.Equal(t, 1, writer.finishCalls)
		require.Equal(t, 1, writer.finished[types.KindVideo])
		require.Equal(t, int32(1), source.stopCalls.Load())

		snap := c.Snapshot()
		require.Contains(t, []info.SessionStatus{
			info.StatusComplete,
			info.StatusLimitReached,
			info.StatusFailed,
		}, snap.Status)
		require.Contains(t, []types.StopReason{
			types.StopSignal,
			types.StopSizeLimit,
			types.StopSourceError,
		}, snap.StopReason)
	}
}

func TestStopBeforeStart(t *testing.T) {
	conf := testConfig(t)
	c, writer, source := newTestSession(t, conf)

	c.Stop(context.Background(), types.StopSignal)

	require.Equal(t, info.StatusAborted, c.Info.Status)
	require.Equal(t, info.MsgStoppedBeforeStarted, c.Info.Details)
	require.Zero(t, writer.finishCalls)
	require.Empty(t, writer.finished)
	require.Zero(t, source.stopCalls.Load())
	require.Equal(t, StateFinished, c.state.GetState())

	err := c.Start(context.Background(), func(*info.SessionInfo) {})
	require.ErrorIs(t, err, errors.ErrSessionStarted)
}

func TestSourceFailure(t *testing.T) {
	conf := testConfig(t)
	c, writer, source := newTestSession(t, conf)

	done := make(chan *info.SessionInfo, 1)
	require.NoError(t, c.Start(context.Background(), func(res *info.SessionInfo) { done <- res }))
	c.Route(videoSample(0))

	source.callbacks.OnFatalError(errors.ErrCaptureFailed(types.KindVideo, errors.New("display gone")))

	select {
	case res := <-done:
		require.Equal(t, info.StatusFailed, res.Status)
		require.Equal(t, types.StopSourceError, res.StopReason)
		require.NotEmpty(t, res.Error)
	case <-time.After(time.Second * 5):
		t.Fatal("completion callback did not fire")
	}
	require.Equal(t, 1, writer.finishCalls)
}

func TestFinalizeTimeout(t *testing.T) {
	conf := testConfig(t)
	conf.FinalizeTimeout = time.Millisecond * 100
	c, writer, _ := newTestSession(t, conf)
	writer.finishHang = true

	var stopCalls atomic.Int32
	require.NoError(t, c.Start(context.Background(), func(*info.SessionInfo) { stopCalls.Inc() }))
	c.Route(videoSample(0))

	c.Stop(context.Background(), types.StopRequested)

	require.Equal(t, int32(1), stopCalls.Load())
	require.Equal(t, info.StatusFailed, c.Info.Status)
	require.Equal(t, errors.ErrFinalizeTimeout.Error(), c.Info.Error)
}

func TestFinalizeFailure(t *testing.T) {
	conf := testConfig(t)
	c, writer, _ := newTestSession(t, conf)
	writer.finishErr = errors.New("moov atom write failed")

	require.NoError(t, c.Start(context.Background(), func(*info.SessionInfo) {}))
	c.Route(videoSample(0))

	c.Stop(context.Background(), types.StopRequested)

	require.Equal(t, info.StatusFailed, c.Info.Status)
	require.Equal(t, "moov atom write failed", c.Info.Error)
	require.Equal(t, types.StopRequested, c.Info.StopReason)
}

func TestTrackDegradation(t *testing.T) {
	t.Run("audio track failure drops the capability", func(t *testing.T) {
		conf := testConfig(t)
		writer := newFakeWriter()
		writer.addTrackErrs = map[types.SampleKind]error{
			types.KindMicrophone: errors.New("encoder busy"),
		}
		source := &fakeSource{}
		c, err := New(context.Background(), conf, nil, writer, source.factory())
		require.NoError(t, err)
		require.ElementsMatch(t, []types.SampleKind{types.KindVideo, types.KindSystemAudio}, source.kinds)

		require.NoError(t, c.Start(context.Background(), func(*info.SessionInfo) {}))
		c.Route(videoSample(0))
		c.Route(audioSample(types.KindMicrophone, time.Millisecond))

		c.Stop(context.Background(), types.StopRequested)
		require.Len(t, c.Info.Tracks, 2)
		require.Zero(t, writer.appended[types.KindMicrophone])
	})

	t.Run("video track failure is fatal", func(t *testing.T) {
		conf := testConfig(t)
		writer := newFakeWriter()
		writer.addTrackErrs = map[types.SampleKind]error{
			types.KindVideo: errors.New("encoder busy"),
		}
		source := &fakeSource{}
		_, err := New(context.Background(), conf, nil, writer, source.factory())
		require.Error(t, err)
	})

	t.Run("unconfigured devices add no tracks", func(t *testing.T) {
		conf := testConfig(t)
		conf.SystemDevice = ""
		conf.MicDevice = ""
		c, _, source := newTestSession(t, conf)
		require.Equal(t, []types.SampleKind{types.KindVideo}, source.kinds)

		require.NoError(t, c.Start(context.Background(), func(*info.SessionInfo) {}))
		c.Route(videoSample(0))
		c.Route(audioSample(types.KindSystemAudio, time.Millisecond))

		c.Stop(context.Background(), types.StopRequested)
		require.Len(t, c.Info.Tracks, 1)
		require.Zero(t, c.Info.AudioSamples)
		require.Zero(t, c.Info.DroppedBeforeOrigin)
	})
}

func TestDurationLimit(t *testing.T) {
	conf := testConfig(t)
	conf.MaxDuration = time.Millisecond * 150
	c, _, _ := newTestSession(t, conf)

	done := make(chan *info.SessionInfo, 1)
	require.NoError(t, c.Start(context.Background(), func(res *info.SessionInfo) { done <- res }))
	c.Route(videoSample(0))

	select {
	case res := <-done:
		require.Equal(t, info.StatusLimitReached, res.Status)
		require.Equal(t, info.MsgDurationLimitReached, res.Details)
		require.Equal(t, types.StopDurationLimit, res.StopReason)
	case <-time.After(time.Second * 5):
		t.Fatal("duration limit did not stop the session")
	}
}

func TestSizeLimitTrigger(t *testing.T) {
	conf := testConfig(t)
	conf.MaxSize = 1024
	c, writer, _ := newTestSession(t, conf)

	done := make(chan *info.SessionInfo, 1)
	require.NoError(t, c.Start(context.Background(), func(res *info.SessionInfo) { done <- res }))
	c.Route(videoSample(0))

	c.onSizeWarning(800)
	require.True(t, c.Snapshot().SizeWarning)

	c.onSizeLimit(2048)

	select {
	case res := <-done:
		require.Equal(t, info.StatusLimitReached, res.Status)
		require.Equal(t, info.MsgSizeLimitReached, res.Details)
		require.Equal(t, types.StopSizeLimit, res.StopReason)
		require.True(t, res.SizeWarning)
	case <-time.After(time.Second * 5):
		t.Fatal("size limit did not stop the session")
	}
	require.Equal(t, 1, writer.finishCalls)
}

func TestRun(t *testing.T) {
	conf := testConfig(t)
	c, _, _ := newTestSession(t, conf)

	go func() {
		for c.state.GetState() < StateRecording {
			time.Sleep(time.Millisecond)
		}
		c.Route(videoSample(0))
		c.Stop(context.Background(), types.StopSignal)
	}()

	res := c.Run(context.Background())
	require.Equal(t, info.StatusComplete, res.Status)
	require.Equal(t, types.StopSignal, res.StopReason)

	select {
	case <-c.Stopped():
	default:
		t.Fatal("session should report stopped")
	}
}
