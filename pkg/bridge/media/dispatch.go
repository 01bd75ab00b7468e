package media

import (
	"context"
	"log/slog"
	"time"

	"github.com/switchboard-ai/switchboard/pkg/bridge/call"
	"github.com/switchboard-ai/switchboard/pkg/bridge/prompt"
	"github.com/switchboard-ai/switchboard/pkg/bridge/respond"
	"github.com/switchboard-ai/switchboard/pkg/bridge/speech"
	"github.com/switchboard-ai/switchboard/pkg/bridge/twilio"
)

// DefaultNoopBackoff is how long a silent turn holds before the next
// utterance is processed, so hold music does not burn model calls.
const DefaultNoopBackoff = 5 * time.Second

// CallPlacer is the slice of the phone client a call-back needs.
type CallPlacer interface {
	PlaceCall(ctx context.Context, p twilio.PlaceCallParams) (string, error)
}

// Dispatcher turns each finalized utterance from the call into the agent's
// next action. One live call processes turns sequentially; errors within a
// turn are logged and the turn abandoned, never the call.
type Dispatcher struct {
	Manager   *call.Manager
	Responder respond.Responder
	Synth     speech.Synthesizer
	Phones    CallPlacer
	Logger    *slog.Logger

	// PublicHost is the externally reachable host webhooks are built on.
	PublicHost string

	NoopBackoff time.Duration
}

func (d *Dispatcher) HandleTranscript(ctx context.Context, sessionID, text string, out Outbound) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", sessionID)
	logger.Info("caller utterance", "text", text)

	if err := d.Manager.AppendTranscript(sessionID, call.SpeakerUser, text); err != nil {
		logger.Warn("utterance for dead session", "error", err)
		return
	}

	profile, err := d.Manager.Profile(sessionID)
	if err != nil {
		logger.Error("session has no caller profile", "error", err)
		return
	}
	instructions, err := prompt.Instructions(profile)
	if err != nil {
		logger.Error("build instructions", "error", err)
		return
	}
	transcript, err := d.Manager.Transcript(sessionID)
	if err != nil {
		logger.Warn("transcript for dead session", "error", err)
		return
	}

	reply, err := d.Responder.Respond(ctx, instructions, transcript)
	if err != nil {
		// A turn that cannot produce a trusted action produces none.
		logger.Warn("responder failed, holding", "error", err)
		reply = respond.Noop
	}
	logger.Info("agent reply", "method", reply.Method)

	switch reply.Method {
	case respond.MethodNoop:
		d.backoff(ctx)

	case respond.MethodVoice:
		d.speak(ctx, logger, sessionID, reply.Content, out)

	case respond.MethodPhoneTree:
		d.punchDigits(logger, sessionID, reply.Content, out)

	case respond.MethodCallBack:
		d.dialUser(ctx, logger, sessionID)

	default:
		// Only reachable through a Responder that skips ParseReply.
		logger.Error("unknown reply method", "method", reply.Method)
	}
}

func (d *Dispatcher) backoff(ctx context.Context) {
	wait := d.NoopBackoff
	if wait <= 0 {
		wait = DefaultNoopBackoff
	}
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

func (d *Dispatcher) speak(ctx context.Context, logger *slog.Logger, sessionID, text string, out Outbound) {
	if text == "" {
		logger.Warn("voice reply with no content")
		return
	}
	audio, err := d.Synth.Speak(ctx, text)
	if err != nil {
		logger.Error("synthesize reply", "error", err)
		return
	}
	if err := out.SendMedia(audio); err != nil {
		logger.Error("write reply audio", "error", err)
		return
	}
	if err := d.Manager.AppendTranscript(sessionID, call.SpeakerAssistant, text); err != nil {
		logger.Warn("record spoken reply", "error", err)
	}
}

func (d *Dispatcher) punchDigits(logger *slog.Logger, sessionID, content string, out Outbound) {
	groups := respond.DigitGroups(content)
	if len(groups) == 0 {
		logger.Warn("phone tree reply with no digits")
		return
	}
	doc, err := twilio.DTMFSequence(groups).Render()
	if err != nil {
		logger.Error("render digit sequence", "error", err)
		return
	}
	if err := out.SendMark("twiml", doc); err != nil {
		logger.Error("send digit sequence", "error", err)
		return
	}
	if err := d.Manager.AppendTranscript(sessionID, call.SpeakerAssistant, "Pressed "+content); err != nil {
		logger.Warn("record digit presses", "error", err)
	}
}

// dialUser rings the person the agent represents and points the answer
// webhook at the hand-off flow, which walks them into the conference.
func (d *Dispatcher) dialUser(ctx context.Context, logger *slog.Logger, sessionID string) {
	s, err := d.Manager.Snapshot(sessionID)
	if err != nil {
		logger.Warn("call back for dead session", "error", err)
		return
	}
	if s.UserLeg != "" {
		logger.Info("user already dialed, skipping call back")
		return
	}

	sid, err := d.Phones.PlaceCall(ctx, twilio.PlaceCallParams{
		From:           s.BotNumber,
		To:             s.UserNumber,
		CallbackURL:    "https://" + d.PublicHost + "/calls/user?session_id=" + sessionID,
		StatusCallback: "https://" + d.PublicHost + "/calls/events",
	})
	if err != nil {
		logger.Error("dial user", "error", err)
		return
	}
	if err := d.Manager.LinkLeg(sid, s.UserNumber, sessionID, call.User, call.DirectionOutbound); err != nil {
		logger.Error("link user leg", "call_sid", sid, "error", err)
		return
	}
	logger.Info("dialed user for hand-off", "call_sid", sid)
}
