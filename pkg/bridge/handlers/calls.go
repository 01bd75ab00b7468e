package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/switchboard-ai/switchboard/pkg/bridge/call"
	"github.com/switchboard-ai/switchboard/pkg/bridge/config"
	"github.com/switchboard-ai/switchboard/pkg/bridge/twilio"
)

// Telephony is the slice of the phone REST client the webhook handlers use.
type Telephony interface {
	PlaceCall(ctx context.Context, p twilio.PlaceCallParams) (string, error)
	EndCall(ctx context.Context, callSID string) error
	ActiveCalls(ctx context.Context) ([]twilio.Call, error)
}

// InitiateHandler starts a new three-way interaction: it clears anything
// stale holding the involved numbers, creates the session, and places the
// conference-opener and customer-service legs.
type InitiateHandler struct {
	Manager      *call.Manager
	Phones       Telephony
	Logger       *slog.Logger
	PublicHost   string
	BotNumber    string
	MaxBodyBytes int64
}

type initiateRequest struct {
	CSNumber   string       `json:"cs_number"`
	UserNumber string       `json:"user_number"`
	BotNumber  string       `json:"bot_number,omitempty"`
	UserInfo   call.Profile `json:"user_info"`
}

type initiateResponse struct {
	Message           string `json:"message"`
	SessionID         string `json:"session_id"`
	ConferenceCallSID string `json:"conference_call_sid"`
	CSCallSID         string `json:"cs_call_sid"`
}

func (h InitiateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	maxBody := h.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	var req initiateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	botNumber := req.BotNumber
	if botNumber == "" {
		botNumber = h.BotNumber
	}
	for _, n := range []struct{ name, value string }{
		{"bot_number", botNumber},
		{"cs_number", req.CSNumber},
		{"user_number", req.UserNumber},
	} {
		if !config.ValidNumber(n.value) {
			writeJSONError(w, http.StatusBadRequest, n.name+" must be an E.164 phone number")
			return
		}
	}

	// Hang up anything the agent number is still holding from a previous
	// run; a dangling leg would shadow the new conference.
	h.endStaleCalls(ctx, botNumber)

	// A number can belong to at most one live session. Later sessions win;
	// the stale ones are torn down.
	if number, stale, found := h.Manager.CheckExisting([]string{req.CSNumber, botNumber, req.UserNumber}); found {
		for _, id := range stale {
			h.Logger.Warn("evicting stale session holding number",
				"number", number, "session_id", id)
			h.Manager.Delete(id)
		}
	}

	sessionID := h.Manager.NewSession()
	if err := h.Manager.SetNumbers(sessionID, botNumber, req.CSNumber, req.UserNumber); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "store numbers: "+err.Error())
		return
	}
	if err := h.Manager.SetProfile(sessionID, req.UserInfo); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "store caller profile: "+err.Error())
		return
	}

	joinURL := "https://" + h.PublicHost + "/conference/join/" + sessionID
	eventsURL := "https://" + h.PublicHost + "/calls/events"

	confSID, err := h.Phones.PlaceCall(ctx, twilio.PlaceCallParams{
		From:           botNumber,
		To:             botNumber,
		CallbackURL:    joinURL,
		StatusCallback: eventsURL,
	})
	if err != nil {
		h.Manager.Delete(sessionID)
		h.Logger.Error("place conference opener", "error", err)
		writeJSONError(w, http.StatusBadGateway, "place conference opener: "+err.Error())
		return
	}
	if err := h.Manager.LinkLeg(confSID, botNumber, sessionID, call.Bot(call.BotConference), call.DirectionOutbound); err != nil {
		h.Logger.Error("link conference opener", "call_sid", confSID, "error", err)
	}

	csSID, err := h.Phones.PlaceCall(ctx, twilio.PlaceCallParams{
		From:           botNumber,
		To:             req.CSNumber,
		CallbackURL:    joinURL,
		StatusCallback: eventsURL,
	})
	if err != nil {
		h.Logger.Error("place customer service call", "error", err)
		if endErr := h.Phones.EndCall(ctx, confSID); endErr != nil {
			h.Logger.Warn("hang up conference opener", "call_sid", confSID, "error", endErr)
		}
		h.Manager.Delete(sessionID)
		writeJSONError(w, http.StatusBadGateway, "place customer service call: "+err.Error())
		return
	}
	if err := h.Manager.LinkLeg(csSID, req.CSNumber, sessionID, call.CustomerService, call.DirectionOutbound); err != nil {
		h.Logger.Error("link customer service leg", "call_sid", csSID, "error", err)
	}

	h.Logger.Info("calls initiated",
		"session_id", sessionID,
		"conference_call_sid", confSID,
		"cs_call_sid", csSID)
	writeJSON(w, http.StatusOK, initiateResponse{
		Message:           "Calls initiated",
		SessionID:         sessionID,
		ConferenceCallSID: confSID,
		CSCallSID:         csSID,
	})
}

func (h InitiateHandler) endStaleCalls(ctx context.Context, botNumber string) {
	active, err := h.Phones.ActiveCalls(ctx)
	if err != nil {
		h.Logger.Warn("list active calls", "error", err)
		return
	}
	for _, c := range active {
		if c.From != botNumber && c.To != botNumber {
			continue
		}
		if err := h.Phones.EndCall(ctx, c.SID); err != nil {
			h.Logger.Warn("end stale call", "call_sid", c.SID, "error", err)
			continue
		}
		h.Logger.Info("ended stale call", "call_sid", c.SID, "status", c.Status)
	}
}

// IncomingCallHandler answers the agent's inbound leg: it resolves the
// session from the calling number, records the leg, and bridges the call
// onto the media stream.
type IncomingCallHandler struct {
	Manager    *call.Manager
	Logger     *slog.Logger
	PublicHost string
}

func (h IncomingCallHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	callSID := r.PostFormValue("CallSid")
	from := r.PostFormValue("From")

	s, err := h.Manager.SessionForNumber(from)
	switch {
	case errors.Is(err, call.ErrNotFound):
		h.Logger.Warn("inbound call from unknown number", "from", from)
		writeJSONError(w, http.StatusNotFound, "no session for number")
		return
	case errors.Is(err, call.ErrAmbiguousNumber):
		h.Logger.Error("inbound number held by multiple sessions", "from", from)
		writeJSONError(w, http.StatusConflict, "number held by multiple sessions")
		return
	case err != nil:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.Manager.LinkLeg(callSID, from, s.ID, call.Bot(call.BotStream), call.DirectionInbound); err != nil {
		h.Logger.Error("link stream leg", "call_sid", callSID, "error", err)
		writeEmptyTwiML(w)
		return
	}

	if !s.HasProfile {
		h.Logger.Error("session has no caller profile", "session_id", s.ID)
		writeEmptyTwiML(w)
		return
	}

	streamURL := "wss://" + h.PublicHost + "/media/stream/" + s.ID
	greeting := "Hi, I'm a helpful agent working for " + s.Profile.Name
	writeTwiML(w, h.Logger, twilio.MediaStreamConnect(greeting, streamURL))
}

// CallEventsHandler consumes leg lifecycle webhooks. Only the customer
// service leg's transitions move the session's readiness; everything else
// is acknowledged and dropped.
type CallEventsHandler struct {
	Manager *call.Manager
	Logger  *slog.Logger
}

func (h CallEventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	callSID := r.PostFormValue("CallSid")
	status := r.PostFormValue("CallStatus")

	s, err := h.Manager.SessionForLeg(callSID)
	if err != nil {
		// Events for dead sessions trail in after teardown.
		h.Logger.Info("call event for unknown leg", "call_sid", callSID, "status", status)
		w.WriteHeader(http.StatusOK)
		return
	}
	if s.CSLeg == "" {
		// The conference opener's early statuses can land before the
		// customer service leg is linked; nothing to toggle yet.
		h.Logger.Info("call event before customer service leg linked",
			"session_id", s.ID, "call_sid", callSID, "status", status)
		w.WriteHeader(http.StatusOK)
		return
	}

	switch status {
	case "in-progress":
		if callSID == s.CSLeg {
			h.Logger.Info("customer service agent answered", "session_id", s.ID)
			if err := h.Manager.MarkAgentAnswered(s.ID); err != nil {
				h.Logger.Warn("mark agent answered", "error", err)
			}
		}
	case "completed":
		if callSID == s.CSLeg {
			h.Logger.Info("customer service agent hung up", "session_id", s.ID)
			if err := h.Manager.MarkAgentEnded(s.ID); err != nil {
				h.Logger.Warn("mark agent ended", "error", err)
			}
		}
	default:
		h.Logger.Debug("call event", "call_sid", callSID, "status", status)
	}
	w.WriteHeader(http.StatusOK)
}

// UserJoinHandler runs when the person the agent represents answers the
// hand-off call: the agent legs are hung up and the person is walked into
// the conference, which ends when they leave.
type UserJoinHandler struct {
	Manager    *call.Manager
	Phones     Telephony
	Logger     *slog.Logger
	PublicHost string
}

func (h UserJoinHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	callSID := r.PostFormValue("CallSid")

	s, err := h.Manager.SessionForLeg(callSID)
	if err != nil {
		h.Logger.Error("user call for unknown leg", "call_sid", callSID)
		writeEmptyTwiML(w)
		return
	}
	if !s.HasProfile {
		h.Logger.Error("session has no caller profile", "session_id", s.ID)
		writeEmptyTwiML(w)
		return
	}

	// The agent's work is done; free its legs before the human joins.
	for _, botSID := range s.BotLegs() {
		if err := h.Phones.EndCall(r.Context(), botSID); err != nil {
			h.Logger.Warn("hang up agent leg", "call_sid", botSID, "error", err)
		}
	}

	join := twilio.JoinConference(s.ConferenceName, twilio.ConferenceOpts{
		StartOnEnter: false,
		EndOnExit:    true,
		CallbackURL:  "https://" + h.PublicHost + "/conference/events/" + s.ID,
	})
	doc := twilio.Response{Verbs: []any{
		twilio.Say{Text: "Connecting you with " + s.Profile.Name + " now. Thank you!"},
		join,
	}}
	writeTwiML(w, h.Logger, doc)
}
