package handlers

import (
	"net/http"

	"github.com/switchboard-ai/switchboard/pkg/bridge/call"
	"github.com/switchboard-ai/switchboard/pkg/bridge/config"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config  config.Config
	Manager *call.Manager
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK       bool     `json:"ok"`
		Sessions int      `json:"sessions"`
		Issues   []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	if h.Config.PublicHost == "" {
		issues = append(issues, "public host not configured")
	}
	if !config.ValidNumber(h.Config.BotNumber) {
		issues = append(issues, "bot number not a valid E.164 number")
	}
	if h.Config.TwilioAccountSID == "" || h.Config.TwilioAuthToken == "" {
		issues = append(issues, "phone credentials not configured")
	}
	if h.Config.DeepgramAPIKey == "" {
		issues = append(issues, "speech credentials not configured")
	}
	if h.Config.GeminiAPIKey == "" {
		issues = append(issues, "model credentials not configured")
	}
	if h.Config.ReadyPollInterval <= 0 || h.Config.ReadyTimeout <= 0 {
		issues = append(issues, "readiness window must be > 0")
	}

	sessions := 0
	if h.Manager != nil {
		sessions = h.Manager.Len()
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, readyResp{OK: ok, Sessions: sessions, Issues: issues})
}
