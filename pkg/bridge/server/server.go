// Package server assembles the webhook surface and the media stream
// endpoint behind the shared middleware chain.
package server

import (
	"log/slog"
	"net/http"

	"github.com/switchboard-ai/switchboard/pkg/bridge/call"
	"github.com/switchboard-ai/switchboard/pkg/bridge/config"
	"github.com/switchboard-ai/switchboard/pkg/bridge/handlers"
	"github.com/switchboard-ai/switchboard/pkg/bridge/media"
	"github.com/switchboard-ai/switchboard/pkg/bridge/mw"
	"github.com/switchboard-ai/switchboard/pkg/bridge/speech"
)

// Deps are the long-lived collaborators the routes share.
type Deps struct {
	Manager     *call.Manager
	Phones      handlers.Telephony
	Transcriber speech.Transcriber
	Transcripts media.TranscriptHandler
	Tracker     *media.Tracker
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux
	deps   Deps
}

func New(cfg config.Config, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
		deps:   deps,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("GET /healthz", handlers.HealthHandler{})
	s.mux.Handle("GET /readyz", handlers.ReadyHandler{Config: s.cfg, Manager: s.deps.Manager})

	s.mux.Handle("POST /calls/initiate", handlers.InitiateHandler{
		Manager:      s.deps.Manager,
		Phones:       s.deps.Phones,
		Logger:       s.logger,
		PublicHost:   s.cfg.PublicHost,
		BotNumber:    s.cfg.BotNumber,
		MaxBodyBytes: s.cfg.MaxBodyBytes,
	})
	s.mux.Handle("POST /calls/incoming", handlers.IncomingCallHandler{
		Manager:    s.deps.Manager,
		Logger:     s.logger,
		PublicHost: s.cfg.PublicHost,
	})
	s.mux.Handle("POST /calls/events", handlers.CallEventsHandler{
		Manager: s.deps.Manager,
		Logger:  s.logger,
	})
	s.mux.Handle("POST /calls/user", handlers.UserJoinHandler{
		Manager:    s.deps.Manager,
		Phones:     s.deps.Phones,
		Logger:     s.logger,
		PublicHost: s.cfg.PublicHost,
	})

	s.mux.Handle("POST /conference/join/{session_id}", handlers.ConferenceJoinHandler{
		Manager:    s.deps.Manager,
		Logger:     s.logger,
		PublicHost: s.cfg.PublicHost,
	})
	s.mux.Handle("POST /conference/events/{session_id}", handlers.ConferenceEventsHandler{
		Manager: s.deps.Manager,
		Logger:  s.logger,
	})

	s.mux.Handle("GET /media/stream/{session_id}", handlers.MediaStreamHandler{
		Manager:           s.deps.Manager,
		Transcriber:       s.deps.Transcriber,
		Transcripts:       s.deps.Transcripts,
		Tracker:           s.deps.Tracker,
		Logger:            s.logger,
		ReadyPollInterval: s.cfg.ReadyPollInterval,
		ReadyTimeout:      s.cfg.ReadyTimeout,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
