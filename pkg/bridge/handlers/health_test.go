package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/switchboard-ai/switchboard/pkg/bridge/call"
	"github.com/switchboard-ai/switchboard/pkg/bridge/config"
)

func TestHealth(t *testing.T) {
	w := httptest.NewRecorder()
	HealthHandler{}.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok\n" {
		t.Fatalf("response = %d %q", w.Code, w.Body)
	}
}

func readyConfig() config.Config {
	return config.Config{
		PublicHost:        testHost,
		BotNumber:         testBotNumber,
		TwilioAccountSID:  "AC123",
		TwilioAuthToken:   "secret",
		DeepgramAPIKey:    "dg",
		GeminiAPIKey:      "gm",
		ReadyPollInterval: time.Second,
		ReadyTimeout:      30 * time.Second,
	}
}

func TestReadyReportsSessions(t *testing.T) {
	manager := call.NewManager(discardLogger())
	manager.NewSession()
	h := ReadyHandler{Config: readyConfig(), Manager: manager}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	var resp struct {
		OK       bool     `json:"ok"`
		Sessions int      `json:"sessions"`
		Issues   []string `json:"issues"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.OK || resp.Sessions != 1 || len(resp.Issues) != 0 {
		t.Fatalf("response = %+v", resp)
	}
}

func TestReadyFlagsMissingCredentials(t *testing.T) {
	cfg := readyConfig()
	cfg.DeepgramAPIKey = ""
	h := ReadyHandler{Config: cfg, Manager: call.NewManager(discardLogger())}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var resp struct {
		OK     bool     `json:"ok"`
		Issues []string `json:"issues"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.OK || len(resp.Issues) != 1 {
		t.Fatalf("response = %+v", resp)
	}
}
