// Package session assigns session identifiers to incoming events based on
// inter-event time gaps. A session id equals the device timestamp of the
// event that opened it.
package session

import (
	"log"

	"github.com/beaconlabs/beacon/internal/store"
	"github.com/beaconlabs/beacon/pkg/types"
)

// Manager tracks the current session for a collector instance. Session
// state is held in memory and derived from scalar state on restart; the
// manager owns the previous_session_id and last_event_time scalars.
//
// Manager is not safe for concurrent use; the submission pipeline calls it
// only from the write queue.
type Manager struct {
	st        *store.Store
	timeoutMs int64

	currentSessionID int64
	lastEventTime    int64
	started          bool
}

// NewManager creates a session manager, resuming the previous session from
// scalar state when one exists. The resumed session is closed by the
// timeout check on the first event, so a long-dead session is never
// extended.
func NewManager(st *store.Store, timeoutMs int64) *Manager {
	m := &Manager{
		st:               st,
		timeoutMs:        timeoutMs,
		currentSessionID: -1,
	}

	if prev, ok, err := st.GetLong(store.KeyPreviousSessionID); err == nil && ok {
		m.currentSessionID = prev
		m.started = true
	}
	if last, ok, err := st.GetLong(store.KeyLastEventTime); err == nil && ok {
		m.lastEventTime = last
	}

	return m
}

// Assign resolves the session id for an event at the given timestamp
// (milliseconds). It returns the assigned session id and whether a new
// session was started by this event.
//
// Out-of-session events are assigned -1 and leave all session state
// untouched. Otherwise a new session starts when no session exists, when
// the inactivity gap reaches the timeout, or when the clock regresses.
func (m *Manager) Assign(timestamp int64, outOfSession bool) (sessionID int64, startedNew bool) {
	if outOfSession {
		return types.OutOfSessionID, false
	}

	if !m.started ||
		timestamp-m.lastEventTime >= m.timeoutMs ||
		timestamp < m.lastEventTime {
		m.startNewSession(timestamp)
		m.setLastEventTime(timestamp)
		return m.currentSessionID, true
	}

	m.setLastEventTime(timestamp)
	return m.currentSessionID, false
}

// CurrentSessionID returns the active session id, or -1 when no session
// has started.
func (m *Manager) CurrentSessionID() int64 {
	if !m.started {
		return types.OutOfSessionID
	}
	return m.currentSessionID
}

func (m *Manager) startNewSession(timestamp int64) {
	m.currentSessionID = timestamp
	m.started = true
	if err := m.st.SetLong(store.KeyPreviousSessionID, timestamp); err != nil {
		log.Printf("session: failed to persist session id: %v", err)
	}
}

func (m *Manager) setLastEventTime(timestamp int64) {
	m.lastEventTime = timestamp
	if err := m.st.SetLong(store.KeyLastEventTime, timestamp); err != nil {
		log.Printf("session: failed to persist last event time: %v", err)
	}
}
