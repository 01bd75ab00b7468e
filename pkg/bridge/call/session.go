package call

import (
	"maps"
	"slices"
	"time"
)

// Profile is the requester metadata used to seed the agent's instructions.
type Profile struct {
	Name          string            `json:"user_name"`
	Email         string            `json:"user_email"`
	Reason        string            `json:"reason_for_call"`
	AccountNumber string            `json:"account_number"`
	Extras        map[string]string `json:"additional_info,omitempty"`
}

func (p Profile) clone() Profile {
	out := p
	if p.Extras != nil {
		out.Extras = maps.Clone(p.Extras)
	}
	return out
}

// Utterance is one speaker-tagged entry in a session transcript.
type Utterance struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

const (
	SpeakerUser      = "user"
	SpeakerAssistant = "assistant"
)

// Session groups every call leg, phone number and conversation artifact of
// one end-to-end interaction. Values handed out by the Manager are copies;
// the authoritative state lives behind the Manager's lock.
type Session struct {
	ID             string
	ConferenceName string
	ConferenceSID  string
	StreamSID      string

	BotNumber  string
	CSNumber   string
	UserNumber string

	// Bot legs are multi-valued per kind, tracked separately by direction.
	OutboundBots map[BotKind][]string
	InboundBots  map[BotKind][]string
	CSLeg        string
	UserLeg      string

	Profile    Profile
	HasProfile bool

	Ready      bool
	Transcript []Utterance

	CreatedAt time.Time
}

// setLeg records a leg under its role. Bot roles append (a session may carry
// several simultaneous bot legs); the customer-service and user roles
// overwrite.
func (s *Session) setLeg(role Role, dir Direction, legID string) {
	switch role.Kind {
	case RoleKindBot:
		if dir == DirectionInbound {
			s.InboundBots[role.Bot] = append(s.InboundBots[role.Bot], legID)
		} else {
			s.OutboundBots[role.Bot] = append(s.OutboundBots[role.Bot], legID)
		}
	case RoleKindCustomerService:
		s.CSLeg = legID
	case RoleKindUser:
		s.UserLeg = legID
	}
}

// BotLegs returns every bot leg id, outbound first, in stable kind order.
func (s *Session) BotLegs() []string {
	kinds := []BotKind{BotConference, BotStream, BotRecording, BotPhoneTree}
	var out []string
	for _, k := range kinds {
		out = append(out, s.OutboundBots[k]...)
	}
	for _, k := range kinds {
		out = append(out, s.InboundBots[k]...)
	}
	return out
}

// Legs returns every leg id linked to the session.
func (s *Session) Legs() []string {
	out := s.BotLegs()
	if s.CSLeg != "" {
		out = append(out, s.CSLeg)
	}
	if s.UserLeg != "" {
		out = append(out, s.UserLeg)
	}
	return out
}

// Numbers returns the session's phone numbers, skipping unset ones.
func (s *Session) Numbers() []string {
	var out []string
	for _, n := range []string{s.BotNumber, s.CSNumber, s.UserNumber} {
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

func (s *Session) clone() Session {
	out := *s
	out.OutboundBots = cloneLegMap(s.OutboundBots)
	out.InboundBots = cloneLegMap(s.InboundBots)
	out.Profile = s.Profile.clone()
	out.Transcript = slices.Clone(s.Transcript)
	return out
}

func cloneLegMap(in map[BotKind][]string) map[BotKind][]string {
	out := make(map[BotKind][]string, len(in))
	for k, v := range in {
		out[k] = slices.Clone(v)
	}
	return out
}
