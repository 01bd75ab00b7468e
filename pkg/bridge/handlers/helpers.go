package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/switchboard-ai/switchboard/pkg/bridge/twilio"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorEnvelope struct {
	Error string `json:"error"`
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorEnvelope{Error: msg})
}

// writeTwiML renders the document as the webhook's reply. Render failures
// degrade to an empty document so the call leg is not dropped on a 500.
func writeTwiML(w http.ResponseWriter, logger *slog.Logger, doc twilio.Response) {
	body, err := doc.Render()
	if err != nil {
		if logger != nil {
			logger.Error("render twiml", "error", err)
		}
		body, _ = twilio.Response{}.Render()
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// writeEmptyTwiML acknowledges a webhook with no instructions.
func writeEmptyTwiML(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Response></Response>`))
}
