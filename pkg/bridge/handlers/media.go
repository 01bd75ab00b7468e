package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/switchboard-ai/switchboard/pkg/bridge/call"
	"github.com/switchboard-ai/switchboard/pkg/bridge/media"
	"github.com/switchboard-ai/switchboard/pkg/bridge/speech"
)

// MediaStreamHandler upgrades the phone network's stream connection and
// runs a bridge for it until the stream ends or the server drains.
type MediaStreamHandler struct {
	Manager     *call.Manager
	Transcriber speech.Transcriber
	Transcripts media.TranscriptHandler
	Tracker     *media.Tracker
	Logger      *slog.Logger

	ReadyPollInterval time.Duration
	ReadyTimeout      time.Duration
}

// The stream client is a machine, not a browser; there is no origin to
// check.
var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (h MediaStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	logger := h.Logger.With("session_id", sessionID)

	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logger.Warn("media stream upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	unregister := h.Tracker.Register(sessionID, cancel)
	defer unregister()

	bridge := &media.Bridge{
		SessionID:         sessionID,
		Conn:              conn,
		Manager:           h.Manager,
		Transcriber:       h.Transcriber,
		Transcripts:       h.Transcripts,
		Logger:            h.Logger,
		ReadyPollInterval: h.ReadyPollInterval,
		ReadyTimeout:      h.ReadyTimeout,
	}
	if err := bridge.Run(ctx); err != nil {
		logger.Warn("media stream ended", "error", err)
		return
	}
	logger.Info("media stream closed")
}
