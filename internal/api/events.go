package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/jask/aquaflow/internal/realtime"
	"github.com/jask/aquaflow/internal/service"
)

func parseCursor(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, &service.ValidationError{Field: "cursor", Msg: "must be a non-negative integer"}
	}
	return v, nil
}

// handleEvents streams change events as server-sent events. Clients resume
// with ?cursor=<last seq> and receive whatever the hub still retains.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeErrorStatus(w, http.StatusServiceUnavailable, "stream unavailable", nil)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorStatus(w, http.StatusInternalServerError, "streaming is not supported", nil)
		return
	}
	cursor, err := parseCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	actor := actorFrom(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	replay, ch, cancel := s.hub.Subscribe(cursor)
	defer cancel()

	for _, ev := range replay {
		if !realtime.Visible(ev, actor.UserID, actor.IsAdmin()) {
			continue
		}
		if err := writeSSEEvent(w, ev); err != nil {
			return
		}
	}
	flusher.Flush()

	heartbeat := time.NewTicker(s.keepalive)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.streams.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if !realtime.Visible(ev, actor.UserID, actor.IsAdmin()) {
				continue
			}
			if err := writeSSEEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, ev realtime.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Table, data)
	return err
}

// handleWebSocket is the same stream over a WebSocket. Client messages are
// read only to notice the close.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeErrorStatus(w, http.StatusServiceUnavailable, "stream unavailable", nil)
		return
	}
	cursor, err := parseCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	actor := actorFrom(r.Context())

	opts := &websocket.AcceptOptions{}
	for origin := range s.origins {
		opts.OriginPatterns = append(opts.OriginPatterns, hostOf(origin))
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.log.Debug("websocket accept", zap.Error(err))
		return
	}
	ctx, stop := context.WithCancel(r.Context())
	defer stop()
	go func() {
		select {
		case <-s.streams.Done():
			stop()
		case <-ctx.Done():
		}
	}()

	replay, ch, cancel := s.hub.Subscribe(cursor)
	defer cancel()

	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()

	write := func(ev realtime.Event) error {
		writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
		defer cancelWrite()
		return wsjson.Write(writeCtx, conn, ev)
	}
	for _, ev := range replay {
		if !realtime.Visible(ev, actor.UserID, actor.IsAdmin()) {
			continue
		}
		if err := write(ev); err != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusGoingAway, "shutting down")
			return
		case <-readErr:
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case ev, ok := <-ch:
			if !ok {
				_ = conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
				return
			}
			if !realtime.Visible(ev, actor.UserID, actor.IsAdmin()) {
				continue
			}
			if err := write(ev); err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
		}
	}
}

// hostOf strips the scheme from an origin; websocket origin patterns match
// host[:port].
func hostOf(origin string) string {
	for _, prefix := range []string{"https://", "http://"} {
		if host, ok := strings.CutPrefix(origin, prefix); ok {
			return host
		}
	}
	return origin
}
