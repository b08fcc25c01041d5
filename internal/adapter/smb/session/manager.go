package session

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Manager is the session table shared by every connection of the server.
//
// All Manager methods are safe for concurrent use.
type Manager struct {
	sessions sync.Map // uint64 -> *Session
	ids      IDGenerator
	now      func() time.Time

	active      atomic.Int64
	created     atomic.Uint64
	established atomic.Uint64
	expired     atomic.Uint64
}

// NewManager creates a Manager drawing session IDs from ids. A nil ids uses
// NewCounter(1).
func NewManager(ids IDGenerator) *Manager {
	if ids == nil {
		ids = NewCounter(1)
	}
	return &Manager{ids: ids, now: time.Now}
}

// Create allocates a new in-progress session for a client.
func (m *Manager) Create(clientAddr string) *Session {
	for {
		s := newSession(m.ids.Next(), clientAddr, m.now())
		if _, loaded := m.sessions.LoadOrStore(s.ID, s); loaded {
			// A wrapped generator may hand out an ID that is still live.
			continue
		}
		m.active.Add(1)
		m.created.Add(1)
		return s
	}
}

// Get returns the session with the given ID.
func (m *Manager) Get(id uint64) (*Session, bool) {
	v, ok := m.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// MarkEstablished counts a session that reached StateValid.
func (m *Manager) MarkEstablished() {
	m.established.Add(1)
}

// Delete expires and removes the session. It reports whether the session
// existed. The caller must not hold the session lock.
func (m *Manager) Delete(id uint64) bool {
	v, ok := m.sessions.LoadAndDelete(id)
	if !ok {
		return false
	}
	v.(*Session).Expire()
	m.active.Add(-1)
	m.expired.Add(1)
	return true
}

// DeleteClient removes every session owned by clientAddr and returns how many
// were removed. Called when a connection closes.
func (m *Manager) DeleteClient(clientAddr string) int {
	n := 0
	m.sessions.Range(func(key, value any) bool {
		if value.(*Session).ClientAddr == clientAddr && m.Delete(key.(uint64)) {
			n++
		}
		return true
	})
	return n
}

// List returns all sessions ordered by ID.
func (m *Manager) List() []*Session {
	var out []*Session
	m.sessions.Range(func(_, value any) bool {
		out = append(out, value.(*Session))
		return true
	})
	slices.SortFunc(out, func(a, b *Session) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	return int(m.active.Load())
}

// ExpireIdle removes sessions with no activity for longer than maxIdle.
// In-progress sessions are held to the same limit, which bounds how long
// an abandoned authentication exchange keeps its NTLM state.
func (m *Manager) ExpireIdle(maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle)
	n := 0
	m.sessions.Range(func(key, value any) bool {
		if value.(*Session).LastActivity().Before(cutoff) && m.Delete(key.(uint64)) {
			n++
		}
		return true
	})
	return n
}

// RunSweeper calls ExpireIdle every interval until ctx is done. onExpire,
// when non-nil, receives the count of each non-empty sweep.
func (m *Manager) RunSweeper(ctx context.Context, interval, maxIdle time.Duration, onExpire func(int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.ExpireIdle(maxIdle); n > 0 && onExpire != nil {
				onExpire(n)
			}
		}
	}
}

// Stats is a snapshot of the manager counters.
type Stats struct {
	Active      int64  `json:"active"`
	Created     uint64 `json:"created"`
	Established uint64 `json:"established"`
	Expired     uint64 `json:"expired"`
}

// Stats returns the current counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Active:      m.active.Load(),
		Created:     m.created.Load(),
		Established: m.established.Load(),
		Expired:     m.expired.Load(),
	}
}
