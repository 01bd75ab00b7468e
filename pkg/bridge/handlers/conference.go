package handlers

import (
	"log/slog"
	"net/http"

	"github.com/switchboard-ai/switchboard/pkg/bridge/call"
	"github.com/switchboard-ai/switchboard/pkg/bridge/twilio"
)

// ConferenceJoinHandler answers the legs placed at initiation with the
// TwiML that drops them into the session's room.
type ConferenceJoinHandler struct {
	Manager    *call.Manager
	Logger     *slog.Logger
	PublicHost string
}

func (h ConferenceJoinHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	room, err := h.Manager.ConferenceName(sessionID)
	if err != nil {
		h.Logger.Error("conference join for unknown session", "session_id", sessionID)
		writeEmptyTwiML(w)
		return
	}

	join := twilio.JoinConference(room, twilio.ConferenceOpts{
		StartOnEnter: true,
		CallbackURL:  "https://" + h.PublicHost + "/conference/events/" + sessionID,
	})
	writeTwiML(w, h.Logger, twilio.Response{Verbs: []any{join}})
}

// ConferenceEventsHandler consumes participant webhooks for a session's
// room, capturing the room's sid the first time it is reported.
type ConferenceEventsHandler struct {
	Manager *call.Manager
	Logger  *slog.Logger
}

func (h ConferenceEventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if err := r.ParseForm(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	event := r.PostFormValue("StatusCallbackEvent")
	conferenceSID := r.PostFormValue("ConferenceSid")
	callSID := r.PostFormValue("CallSid")

	if _, err := h.Manager.Snapshot(sessionID); err != nil {
		h.Logger.Info("conference event for unknown session",
			"session_id", sessionID, "event", event)
		w.WriteHeader(http.StatusOK)
		return
	}

	if conferenceSID != "" {
		if err := h.Manager.SetConferenceSID(sessionID, conferenceSID); err != nil {
			h.Logger.Warn("store conference sid", "error", err)
		}
	}

	switch event {
	case "participant-join":
		h.Logger.Info("participant joined conference",
			"session_id", sessionID, "call_sid", callSID)
	case "participant-leave":
		reason := r.PostFormValue("ReasonParticipantLeft")
		if reason == "" {
			reason = "unknown"
		}
		h.Logger.Info("participant left conference",
			"session_id", sessionID, "call_sid", callSID, "reason", reason)
	default:
		h.Logger.Debug("conference event",
			"session_id", sessionID, "event", event)
	}
	w.WriteHeader(http.StatusOK)
}
