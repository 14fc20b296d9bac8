package services

import (
	"sync"

	"github.com/google/uuid"
)

// OngoingRegistry remembers the latest turn id per user for the lifetime of
// that turn.
type OngoingRegistry struct {
	mu    sync.Mutex
	turns map[uuid.UUID]string
}

func NewOngoingRegistry() *OngoingRegistry {
	return &OngoingRegistry{turns: make(map[uuid.UUID]string)}
}

// Begin records turnID as the user's current turn, replacing any previous one.
func (r *OngoingRegistry) Begin(userID uuid.UUID, turnID string) (previous string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous = r.turns[userID]
	r.turns[userID] = turnID
	return previous
}

// End clears the entry only while it still names turnID, so a finishing turn
// never removes a newer one.
func (r *OngoingRegistry) End(userID uuid.UUID, turnID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.turns[userID] != turnID {
		return false
	}
	delete(r.turns, userID)
	return true
}

func (r *OngoingRegistry) Current(userID uuid.UUID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.turns[userID]
	return id, ok
}

func (r *OngoingRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.turns)
}
