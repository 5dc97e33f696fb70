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

package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/screentape/screentape/pkg/logger"
)

const (
	statusPollInterval = time.Millisecond * 500
	pingPeriod         = time.Second * 30
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// handleEvents streams session status transitions over a websocket. Each
// message is a full status snapshot, sent when the status changes and once
// more after the session has ended, followed by a close message.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnw("failed to upgrade events connection", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	// the read loop only surfaces client disconnects
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	snap := s.session.Snapshot()
	if err = conn.WriteJSON(&snap); err != nil {
		return
	}
	last := snap.Status

	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()
	pinger := time.NewTicker(pingPeriod)
	defer pinger.Stop()

	for {
		select {
		case <-done:
			return

		case <-ticker.C:
			snap = s.session.Snapshot()
			if snap.Status == last {
				continue
			}
			last = snap.Status
			if err = conn.WriteJSON(&snap); err != nil {
				return
			}

		case <-pinger.C:
			if err = conn.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return
			}

		case <-s.session.Stopped():
			snap = s.session.Snapshot()
			_ = conn.WriteJSON(&snap)
			// write close message for graceful disconnection
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(snap.Status)))
			return

		case <-s.shutdown.Watch():
			_ = conn.WriteMessage(websocket.CloseMessage, nil)
			return
		}
	}
}
