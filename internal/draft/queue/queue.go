// Package queue tracks each participant's personal priority list for a
// draft. Queues are a convenience cache owned by the client session: they
// are never persisted, and a reconnecting client is expected to rebuild its
// own.
package queue

import (
	"sync"

	"github.com/google/uuid"
)

// Manager holds the priority queues for one draft, keyed by participant.
// Safe for concurrent use; the autopick policy reads queues while client
// sessions mutate them.
type Manager struct {
	mu     sync.RWMutex
	queues map[uuid.UUID][]uuid.UUID
}

func NewManager() *Manager {
	return &Manager{queues: make(map[uuid.UUID][]uuid.UUID)}
}

// Add appends a player to the participant's queue. Duplicates are ignored.
func (m *Manager) Add(participantID, playerID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[participantID]
	for _, id := range q {
		if id == playerID {
			return
		}
	}
	m.queues[participantID] = append(q, playerID)
}

// Remove deletes a player from the participant's queue if present.
func (m *Manager) Remove(participantID, playerID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[participantID]
	for i, id := range q {
		if id == playerID {
			m.queues[participantID] = append(q[:i], q[i+1:]...)
			return
		}
	}
}

// Reorder moves a player to the given 0-based position in the participant's
// queue. Out-of-range positions clamp to the ends; unknown players are a
// no-op.
func (m *Manager) Reorder(participantID, playerID uuid.UUID, position int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[participantID]
	from := -1
	for i, id := range q {
		if id == playerID {
			from = i
			break
		}
	}
	if from == -1 {
		return
	}
	q = append(q[:from], q[from+1:]...)
	if position < 0 {
		position = 0
	}
	if position > len(q) {
		position = len(q)
	}
	q = append(q[:position], append([]uuid.UUID{playerID}, q[position:]...)...)
	m.queues[participantID] = q
}

// Get returns a copy of the participant's queue in priority order.
func (m *Manager) Get(participantID uuid.UUID) []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := m.queues[participantID]
	out := make([]uuid.UUID, len(q))
	copy(out, q)
	return out
}

// PruneDrafted removes a just-drafted player from every queue in the draft.
func (m *Manager) PruneDrafted(playerID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for pid, q := range m.queues {
		for i, id := range q {
			if id == playerID {
				m.queues[pid] = append(q[:i], q[i+1:]...)
				break
			}
		}
	}
}

// Clear drops every queue. Used on draft reset.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues = make(map[uuid.UUID][]uuid.UUID)
}
