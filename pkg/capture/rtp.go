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
	"net"
	"sync"
	"time"

	"github.com/frostbyte73/core"
	"github.com/livekit/media-sdk/jitter"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"go.uber.org/atomic"

	"github.com/screentape/screentape/pkg/config"
	"github.com/screentape/screentape/pkg/errors"
	"github.com/screentape/screentape/pkg/logger"
	"github.com/screentape/screentape/pkg/logging"
	"github.com/screentape/screentape/pkg/media"
	"github.com/screentape/screentape/pkg/types"
)

const (
	h264ClockRate = 90000
	opusClockRate = 48000

	maxPacketSize     = 1500
	maxConsecutiveErr = 100
	sampleChanSize    = 100
	statsInterval     = time.Second * 10
)

// RTPSource receives pre-encoded media over udp, one port per track.
// Packets pass through a jitter buffer, assembled samples that cannot be
// consumed fast enough are dropped rather than queued.
type RTPSource struct {
	conf      *config.Config
	callbacks *media.Callbacks
	logger    logger.Logger

	tracks   []*rtpTrack
	epoch    time.Time
	started  core.Fuse
	stopping core.Fuse
}

func newRTPSource(conf *config.Config, callbacks *media.Callbacks, kinds []types.SampleKind) (*RTPSource, error) {
	s := &RTPSource{
		conf:      conf,
		callbacks: callbacks,
		logger:    logger.GetLogger().WithName("rtp"),
	}

	ingest := conf.RTPIngest
	for _, kind := range kinds {
		var port int
		switch kind {
		case types.KindVideo:
			port = ingest.VideoPort
		case types.KindSystemAudio:
			port = ingest.SystemPort
		case types.KindMicrophone:
			port = ingest.MicPort
		}
		if port == 0 {
			continue
		}

		t, err := newRTPTrack(conf, kind, port, callbacks.OnSample)
		if err != nil {
			for _, open := range s.tracks {
				open.close()
			}
			return nil, errors.ErrCaptureFailed(kind, err)
		}
		s.tracks = append(s.tracks, t)
	}

	return s, nil
}

func (s *RTPSource) Start() error {
	s.started.Once(func() {
		s.epoch = time.Now()
		for _, t := range s.tracks {
			t.start(s.epoch)
		}
		s.logger.Infow("rtp ingest started", "tracks", len(s.tracks))
	})
	return nil
}

func (s *RTPSource) Stop(onDone func()) {
	s.stopping.Once(func() {
		go func() {
			var wg sync.WaitGroup
			for _, t := range s.tracks {
				wg.Add(1)
				go func(t *rtpTrack) {
					defer wg.Done()
					t.close()
				}(t)
			}
			wg.Wait()
			s.logger.Infow("rtp ingest finished")
			onDone()
		}()
	})
}

type rtpTrack struct {
	kind      types.SampleKind
	conn      *net.UDPConn
	buffer    *jitter.Buffer
	onSample  func(*media.Sample)
	logger    logger.Logger
	csvLogger *logging.CSVLogger[logging.IngestStats]

	depacketizer rtp.Depacketizer
	ts           rtpTimestamper
	epoch        time.Time

	samples chan []*rtp.Packet
	closed  core.Fuse
	flushed core.Fuse
	drained chan struct{}
	stats   rtpTrackStats
}

type rtpTrackStats struct {
	samplesProduced atomic.Uint64
	samplesDropped  atomic.Uint64
	lastReceived    atomic.Time
	lastProduced    atomic.Time
	lastPTS         atomic.Duration
}

func newRTPTrack(conf *config.Config, kind types.SampleKind, port int, onSample func(*media.Sample)) (*rtpTrack, error) {
	var depacketizer rtp.Depacketizer
	var clockRate uint32
	if kind == types.KindVideo {
		depacketizer = &codecs.H264Packet{}
		clockRate = h264ClockRate
	} else {
		depacketizer = &codecs.OpusPacket{}
		clockRate = opusClockRate
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, err
	}

	t := &rtpTrack{
		kind:         kind,
		conn:         conn,
		onSample:     onSample,
		logger:       logger.GetLogger().WithValues("kind", kind, "port", port),
		depacketizer: depacketizer,
		ts:           rtpTimestamper{clockRate: clockRate},
		epoch:        time.Now(),
		samples:      make(chan []*rtp.Packet, sampleChanSize),
		drained:      make(chan struct{}),
	}
	t.buffer = jitter.NewBuffer(depacketizer, conf.RTPIngest.Latency, t.onPackets)

	if conf.Debug.TrackStats {
		csvLogger, err := logging.NewCSVLogger[logging.IngestStats](fmt.Sprintf("%s_%s", conf.SessionID, kind))
		if err != nil {
			logger.Errorw("failed to create csv logger", err)
		} else {
			t.csvLogger = csvLogger
		}
	}

	go t.pushSamples()
	return t, nil
}

func (t *rtpTrack) start(epoch time.Time) {
	t.epoch = epoch
	go t.readLoop()
	if t.csvLogger != nil {
		go t.logStats()
	}
}

func (t *rtpTrack) readLoop() {
	buf := make([]byte, maxPacketSize)
	consecutiveErr := 0
	for {
		_ = t.conn.SetReadDeadline(time.Now().Add(time.Millisecond * 500))
		n, _, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if t.closed.IsBroken() {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			consecutiveErr++
			if consecutiveErr > maxConsecutiveErr {
				t.logger.Errorw("rtp socket failed", err)
				return
			}
			continue
		}
		consecutiveErr = 0

		data := make([]byte, n)
		copy(data, buf[:n])
		pkt := &rtp.Packet{}
		if err = pkt.Unmarshal(data); err != nil {
			t.logger.Warnw("invalid rtp packet", err)
			continue
		}

		t.stats.lastReceived.Store(time.Now())
		t.buffer.Push(pkt)
	}
}

// onPackets receives one assembled sample from the jitter buffer. The
// channel hand-off keeps depacketizing off the read loop, a full channel
// drops the sample.
func (t *rtpTrack) onPackets(pkts []*rtp.Packet) {
	select {
	case t.samples <- pkts:
	default:
		t.stats.samplesDropped.Inc()
		t.logger.Warnw("sample channel full, dropping sample", nil)
	}
}

func (t *rtpTrack) pushSamples() {
	defer close(t.drained)

	flushed := t.flushed.Watch()
	for {
		select {
		case <-flushed:
			// deliver whatever the jitter buffer flushed on close
			for {
				select {
				case pkts := <-t.samples:
					t.handleSample(pkts)
				default:
					return
				}
			}
		case pkts := <-t.samples:
			t.handleSample(pkts)
		}
	}
}

func (t *rtpTrack) handleSample(pkts []*rtp.Packet) {
	if len(pkts) == 0 {
		return
	}

	var data []byte
	for _, pkt := range pkts {
		payload, err := t.depacketizer.Unmarshal(pkt.Payload)
		if err != nil {
			t.stats.samplesDropped.Inc()
			t.logger.Warnw("failed to depacketize", err)
			return
		}
		data = append(data, payload...)
	}
	if len(data) == 0 {
		// padding only
		return
	}

	pts := t.ts.pts(pkts[0].Timestamp, time.Since(t.epoch))
	keyframe := true
	if t.kind == types.KindVideo {
		keyframe = isH264Keyframe(data)
	}

	t.stats.samplesProduced.Inc()
	t.stats.lastProduced.Store(time.Now())
	t.stats.lastPTS.Store(pts)

	t.onSample(&media.Sample{
		Kind:     t.kind,
		Data:     data,
		PTS:      pts,
		Keyframe: keyframe,
	})
}

func (t *rtpTrack) close() {
	t.closed.Once(func() {
		_ = t.conn.Close()
		t.buffer.Close()
		t.flushed.Break()
	})
	<-t.drained
}

func (t *rtpTrack) logStats() {
	ended := t.flushed.Watch()
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ended:
			t.csvLogger.Write(t.getStats())
			t.csvLogger.Close()
			return

		case <-ticker.C:
			t.csvLogger.Write(t.getStats())
		}
	}
}

func (t *rtpTrack) getStats() *logging.IngestStats {
	stats := t.buffer.Stats()
	return &logging.IngestStats{
		Timestamp:       time.Now().Format(time.DateTime),
		PacketsReceived: stats.PacketsPushed,
		PaddingReceived: stats.PaddingPushed,
		PacketsDropped:  stats.PacketsDropped,
		SamplesProduced: t.stats.samplesProduced.Load(),
		SamplesDropped:  t.stats.samplesDropped.Load(),
		LastReceived:    t.stats.lastReceived.Load().Format(time.DateTime),
		LastProduced:    t.stats.lastProduced.Load().Format(time.DateTime),
		PTS:             t.stats.lastPTS.Load(),
	}
}

// rtpTimestamper converts 32 bit rtp timestamps to session timestamps.
// The first packet anchors the track at its arrival time, later packets
// advance from there by rtp timestamp delta. Only used from the sample
// worker goroutine.
type rtpTimestamper struct {
	clockRate   uint32
	initialized bool
	offset      time.Duration
	lastTS      uint32
	extended    int64
}

func (m *rtpTimestamper) pts(ts uint32, now time.Duration) time.Duration {
	if !m.initialized {
		m.initialized = true
		m.offset = now
		m.lastTS = ts
		return m.offset
	}

	// signed delta handles rollover and late reordered samples
	m.extended += int64(int32(ts - m.lastTS))
	m.lastTS = ts
	return m.offset + time.Duration(m.extended)*time.Second/time.Duration(m.clockRate)
}
