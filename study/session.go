// Package study tracks in-flight study sessions. A session is the ordered
// record of one pass over a due-card set; it lives only in process memory
// and never gates scheduling, which is persisted per card before an event
// is recorded here.
package study

import (
	"errors"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/studyowl/studyowl-api/srs"
)

var ErrSessionNotFound = errors.New("study session not found")

// Event is one reviewed card within a session.
type Event struct {
	CardID   string      `json:"cardId"`
	Question string      `json:"question"`
	Quality  srs.Quality `json:"quality"`
}

// Session accumulates review events for one pass over a due-card set.
type Session struct {
	ID        string
	SetTitles map[string]string // set public ID -> title
	TotalDue  int
	StartedAt time.Time

	events []Event
}

// IsComplete reports whether every card handed out at session start has
// been reviewed.
func (s *Session) IsComplete() bool {
	return len(s.events) >= s.TotalDue
}

// Events returns the ordered review record.
func (s *Session) Events() []Event {
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Tracker is an in-memory registry of active sessions.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[string]*Session)}
}

// Start registers a new session for a due-card set of the given size.
func (t *Tracker) Start(setTitles map[string]string, totalDue int, now time.Time) (*Session, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	titles := make(map[string]string, len(setTitles))
	for k, v := range setTitles {
		titles[k] = v
	}

	session := &Session{
		ID:        id,
		SetTitles: titles,
		TotalDue:  totalDue,
		StartedAt: now,
	}

	t.mu.Lock()
	t.sessions[id] = session
	t.mu.Unlock()
	return session, nil
}

// Record appends a review event to the session. The schedule update for the
// card has already been persisted by the caller; a missing session is
// therefore a soft condition.
func (t *Tracker) Record(sessionID, cardID, question string, quality srs.Quality) (complete bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.sessions[sessionID]
	if !ok {
		return false, ErrSessionNotFound
	}
	session.events = append(session.events, Event{
		CardID:   cardID,
		Question: question,
		Quality:  quality,
	})
	return session.IsComplete(), nil
}

// End removes the session from the registry and returns it for report
// hand-off. Ending an unknown or abandoned session returns false.
func (t *Tracker) End(sessionID string) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.sessions[sessionID]
	if !ok {
		return nil, false
	}
	delete(t.sessions, sessionID)
	return session, true
}
