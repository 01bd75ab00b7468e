package call

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound reports a lookup on a session, leg or number that is not
	// known to the manager. Expected during normal webhook churn; callers log
	// and acknowledge rather than propagate.
	ErrNotFound = errors.New("call: session not found")

	// ErrAmbiguousNumber reports a number whose legs span more than one live
	// session. Picking one silently would misroute a live call, so callers
	// must refuse to act (or evict every candidate).
	ErrAmbiguousNumber = errors.New("call: number maps to multiple sessions")

	// ErrDirectionRequired reports a bot leg linked without a direction.
	// This is a caller bug, not a runtime condition.
	ErrDirectionRequired = errors.New("call: bot legs require a direction")

	// ErrLegBound reports an attempt to link a leg id that already belongs
	// to a different session. A leg belongs to at most one session; the
	// first link wins.
	ErrLegBound = errors.New("call: leg already bound to another session")
)

// LegRef points a phone number at one leg within one session. A single
// number (typically the bot's own) legitimately appears on several legs.
type LegRef struct {
	SessionID string
	LegID     string
}

// Manager owns every live session plus the secondary indexes that resolve
// webhook payloads (which carry only a leg id or a phone number) back to a
// session. The sessions map, the leg registry and the number directory are
// one unit of mutual exclusion: every public method takes the single lock
// for its read/modify/write and releases it before returning. No I/O
// happens under the lock, and reads hand out copies.
type Manager struct {
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	byLeg    map[string]string
	byNumber map[string][]LegRef
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
		byLeg:    make(map[string]string),
		byNumber: make(map[string][]LegRef),
	}
}

// NewSession stores an empty session and returns its id. The session id and
// the conference name are distinct random identities; neither can collide
// with a live session's.
func (m *Manager) NewSession() string {
	id := uuid.NewString()
	conference := uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = &Session{
		ID:             id,
		ConferenceName: conference,
		OutboundBots:   make(map[BotKind][]string),
		InboundBots:    make(map[BotKind][]string),
		CreatedAt:      m.now(),
	}
	return id
}

// CheckExisting reports the first of the given numbers that is referenced by
// any live session, together with every distinct session id holding it.
// There may legitimately be more than one stale session to clean up.
func (m *Manager) CheckExisting(numbers []string) (number string, sessionIDs []string, found bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range numbers {
		refs := m.byNumber[n]
		if len(refs) == 0 {
			continue
		}
		seen := make(map[string]struct{}, len(refs))
		ids := make([]string, 0, len(refs))
		for _, ref := range refs {
			if _, ok := seen[ref.SessionID]; ok {
				continue
			}
			seen[ref.SessionID] = struct{}{}
			ids = append(ids, ref.SessionID)
		}
		return n, ids, true
	}
	return "", nil, false
}

// LinkLeg records a call leg under a session's role map and updates the leg
// registry and number directory. Bot roles require a direction; omitting it
// is a contract violation and fails without mutating state. Linking to an
// unknown session is a recoverable error the caller is expected to log and
// acknowledge.
func (m *Manager) LinkLeg(legID, number, sessionID string, role Role, dir Direction) error {
	if role.IsBot() && dir == DirectionUnset {
		return ErrDirectionRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if owner, bound := m.byLeg[legID]; bound && owner != sessionID {
		return ErrLegBound
	}

	m.byLeg[legID] = sessionID
	m.byNumber[number] = append(m.byNumber[number], LegRef{SessionID: sessionID, LegID: legID})
	s.setLeg(role, dir, legID)
	return nil
}

// Snapshot returns a copy of the session. Mutating the copy has no effect on
// the manager's state.
func (m *Manager) Snapshot(sessionID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s.clone(), nil
}

// SessionForLeg resolves a leg id to a copy of its owning session.
func (m *Manager) SessionForLeg(legID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byLeg[legID]
	if !ok {
		return Session{}, ErrNotFound
	}
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s.clone(), nil
}

// SessionForNumber resolves a phone number to a copy of the single live
// session referencing it. A number spanning several live sessions is an
// ambiguous-state error, distinct from a plain miss.
func (m *Manager) SessionForNumber(number string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	refs := m.byNumber[number]
	if len(refs) == 0 {
		return Session{}, ErrNotFound
	}
	var id string
	for _, ref := range refs {
		if id == "" {
			id = ref.SessionID
			continue
		}
		if ref.SessionID != id {
			return Session{}, ErrAmbiguousNumber
		}
	}
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s.clone(), nil
}

// SetNumbers stores the session's phone numbers and reserves each one in the
// number directory, so inbound webhooks keyed by caller number resolve to
// the session before any leg has been linked. Reservations carry an empty
// leg id.
func (m *Manager) SetNumbers(sessionID, bot, cs, user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.BotNumber = bot
	s.CSNumber = cs
	s.UserNumber = user
	for _, n := range []string{bot, cs, user} {
		if n != "" {
			m.byNumber[n] = append(m.byNumber[n], LegRef{SessionID: sessionID})
		}
	}
	return nil
}

func (m *Manager) SetProfile(sessionID string, p Profile) error {
	return m.update(sessionID, func(s *Session) {
		s.Profile = p.clone()
		s.HasProfile = true
	})
}

func (m *Manager) Profile(sessionID string) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok || !s.HasProfile {
		return Profile{}, ErrNotFound
	}
	return s.Profile.clone(), nil
}

func (m *Manager) ConferenceName(sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return "", ErrNotFound
	}
	return s.ConferenceName, nil
}

func (m *Manager) SetConferenceSID(sessionID, sid string) error {
	return m.update(sessionID, func(s *Session) { s.ConferenceSID = sid })
}

func (m *Manager) SetStreamSID(sessionID, sid string) error {
	return m.update(sessionID, func(s *Session) { s.StreamSID = sid })
}

func (m *Manager) StreamSID(sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return "", ErrNotFound
	}
	return s.StreamSID, nil
}

// MarkAgentAnswered flips the readiness flag. The caller is responsible for
// having matched the triggering status event to the session's
// customer-service leg. Idempotent.
func (m *Manager) MarkAgentAnswered(sessionID string) error {
	return m.update(sessionID, func(s *Session) { s.Ready = true })
}

// MarkAgentEnded clears the readiness flag. Idempotent.
func (m *Manager) MarkAgentEnded(sessionID string) error {
	return m.update(sessionID, func(s *Session) { s.Ready = false })
}

// IsReady reports whether the customer-service leg is currently answered.
// Unknown sessions are never ready.
func (m *Manager) IsReady(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	return ok && s.Ready
}

// AppendTranscript adds one utterance to the session's ordered transcript.
func (m *Manager) AppendTranscript(sessionID, speaker, text string) error {
	return m.update(sessionID, func(s *Session) {
		s.Transcript = append(s.Transcript, Utterance{Role: speaker, Text: text})
	})
}

// Transcript returns a copy of the session transcript in append order.
func (m *Manager) Transcript(sessionID string) ([]Utterance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]Utterance, len(s.Transcript))
	copy(out, s.Transcript)
	return out, nil
}

// Delete removes the session and cascades removal of every leg registry
// entry and number directory entry pointing at it. Deleting an unknown id
// is a no-op.
func (m *Manager) Delete(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return
	}

	for number, refs := range m.byNumber {
		kept := refs[:0]
		for _, ref := range refs {
			if ref.SessionID != sessionID {
				kept = append(kept, ref)
			}
		}
		if len(kept) == 0 {
			delete(m.byNumber, number)
		} else {
			m.byNumber[number] = kept
		}
	}

	for legID, id := range m.byLeg {
		if id == sessionID {
			delete(m.byLeg, legID)
		}
	}

	delete(m.sessions, sessionID)
	m.logger.Info("session deleted", "session_id", sessionID)
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) update(sessionID string, fn func(*Session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	fn(s)
	return nil
}
