package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/akagifreeez/gemini-key-pool/internal/services"
)

const (
	streamBuffer    = 64
	streamPingEvery = 50 * time.Second
	streamWriteWait = 10 * time.Second
	streamReadWait  = 60 * time.Second
)

// StreamHandler pushes new error log entries to websocket clients as they happen
type StreamHandler struct {
	errorLog *services.ErrorLog
	upgrader websocket.Upgrader
}

func NewStreamHandler(errorLog *services.ErrorLog) *StreamHandler {
	return &StreamHandler{
		errorLog: errorLog,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The admin surface is open to any origin, same as the JSON API
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// StreamLogs upgrades the connection and streams entries until the client leaves
// GET /admin/logs/stream
func (h *StreamHandler) StreamLogs(w http.ResponseWriter, r *http.Request) {
	// Subscribe first so nothing appended during the handshake is missed
	entries, cancel := h.errorLog.Subscribe(streamBuffer)
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Log stream upgrade failed")
		return
	}
	defer conn.Close()

	log.Info().Str("remote", r.RemoteAddr).Msg("Log stream client connected")

	// Reader loop only watches for close frames and pongs
	done := make(chan struct{})
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(streamReadWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(streamReadWait))
		return nil
	})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(streamPingEvery)
	defer pingTicker.Stop()

	for {
		select {
		case <-done:
			log.Info().Str("remote", r.RemoteAddr).Msg("Log stream client disconnected")
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(entry); err != nil {
				log.Debug().Err(err).Msg("Log stream write failed")
				return
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
