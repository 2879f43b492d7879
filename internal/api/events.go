package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/evoforge/evoforge/internal/eventbus"
)

const sseKeepAlive = 25 * time.Second

// handleEvents serves GET /runs/{id}/events over Server-Sent Events (spec
// §4.8): id:/event:/data: lines per message, a periodic comment keep-alive,
// and Last-Event-ID-driven replay from the run's retained event ring.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	run, ok := s.registry.get(r.PathValue("id"))
	if !ok {
		WriteError(w, http.StatusNotFound, "run not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	var since uint64
	if lastID := r.Header.Get("Last-Event-ID"); lastID != "" {
		if n, err := strconv.ParseUint(lastID, 10, 64); err == nil {
			since = n
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := run.Bus.Subscribe(since)
	defer sub.Unsubscribe()

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			writeSSE(w, flusher, ev)
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, ev eventbus.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Kind, data)
	flusher.Flush()
}

const (
	wsPingInterval = 20 * time.Second
	wsPongTimeout  = 60 * time.Second
)

// handleWebSocket serves GET /ws?run={id}: a duplex feed of the same run
// events, using a ping/pong heartbeat to detect and close dead connections
// (spec §4.8: "a connection silent for more than 60s is disconnected").
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run")
	run, ok := s.registry.get(runID)
	if !ok {
		WriteError(w, http.StatusNotFound, "run not found")
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	// Ping only completes once a concurrent reader consumes the pong, so keep
	// one reading (and discarding client messages) for the connection's life.
	ctx, cancelRead := context.WithCancel(r.Context())
	defer cancelRead()
	go func() {
		defer cancelRead()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	sub := run.Bus.Subscribe(0)
	defer sub.Unsubscribe()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "closing")
			return
		case ev, open := <-sub.Events():
			if !open {
				conn.Close(websocket.StatusNormalClosure, "run stream closed")
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			writeCtx, wcancel := context.WithTimeout(ctx, wsPongTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			wcancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, pcancel := context.WithTimeout(ctx, wsPongTimeout)
			err := conn.Ping(pingCtx)
			pcancel()
			if err != nil {
				return
			}
		}
	}
}
