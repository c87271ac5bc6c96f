// Package session tracks per-question answer sessions: each session owns a
// capture controller and a help tier, and applies the one-way lock policy
// once a fully saved submission coincides with the maximum help tier.
package session

import (
	"log/slog"
	"sync"

	"github.com/speakup/capture-service/internal/capture"
	"github.com/speakup/capture-service/internal/pipeline"
)

// Session represents one question attempt
type Session struct {
	QuestionID int
	Controller *capture.Controller

	helpTier    int
	maxHelpTier int
	locked      bool

	mu sync.Mutex
}

// HelpTier returns the current help tier for this question
func (s *Session) HelpTier() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.helpTier
}

// RaiseHelp advances the help tier by one, capped at the maximum, and
// returns the new tier.
func (s *Session) RaiseHelp() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.helpTier < s.maxHelpTier {
		s.helpTier++
	}
	return s.helpTier
}

// Locked reports whether the lock policy has fired for this session
func (s *Session) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// HandleOutcome applies the lock policy: a fully saved submission while the
// help tier is at its maximum locks the controller against further capture.
// The transition is one-way for the lifetime of the session.
func (s *Session) HandleOutcome(out *pipeline.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked {
		return
	}
	if !out.Saved() {
		return
	}
	if s.helpTier < s.maxHelpTier {
		return
	}

	s.locked = true
	s.Controller.Lock()
}

// SessionInfo is a point-in-time view of a session for monitoring
type SessionInfo struct {
	QuestionID   int    `json:"question_id"`
	HelpTier     int    `json:"help_tier"`
	Locked       bool   `json:"locked"`
	CaptureState string `json:"capture_state"`
	HasAsset     bool   `json:"has_asset"`
}

// Info returns a snapshot of the session state
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		QuestionID:   s.QuestionID,
		HelpTier:     s.helpTier,
		Locked:       s.locked,
		CaptureState: s.Controller.State().String(),
		HasAsset:     s.Controller.CurrentAsset() != nil,
	}
}

// Manager manages the active answer sessions keyed by question ID
type Manager struct {
	sessions      map[int]*Session
	maxHelpTier   int
	newController func() *capture.Controller
	logger        *slog.Logger

	mu sync.RWMutex
}

// NewManager creates a session manager. newController is invoked once per
// question to build a fresh capture controller, keeping capture state
// per-attempt rather than ambient.
func NewManager(maxHelpTier int, newController func() *capture.Controller, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions:      make(map[int]*Session),
		maxHelpTier:   maxHelpTier,
		newController: newController,
		logger:        logger,
	}
}

// Session returns the session for a question, creating it on first use
func (m *Manager) Session(questionID int) *Session {
	m.mu.RLock()
	if s, ok := m.sessions[questionID]; ok {
		m.mu.RUnlock()
		return s
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[questionID]; ok {
		return s
	}

	s := &Session{
		QuestionID:  questionID,
		Controller:  m.newController(),
		maxHelpTier: m.maxHelpTier,
	}
	m.sessions[questionID] = s

	m.logger.Debug("Session created", slog.Int("question_id", questionID))
	return s
}

// EndQuestion tears down a question's session, releasing its audio
// resources. Navigating back to the question starts a fresh, unlocked
// session.
func (m *Manager) EndQuestion(questionID int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[questionID]
	if !ok {
		return
	}
	delete(m.sessions, questionID)

	// Navigating away releases the microphone even when a recording is
	// still in progress.
	if s.Controller.State() == capture.StateRecording {
		s.Controller.Lock()
	}
	_ = s.Controller.Reset()

	m.logger.Debug("Session ended", slog.Int("question_id", questionID))
}

// AllSessions returns snapshots of every live session
func (m *Manager) AllSessions() []SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// ActiveSessions returns the number of live sessions
func (m *Manager) ActiveSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
