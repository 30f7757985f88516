package repositories

import (
	"sync"
	"time"

	"github.com/carladovalle/bate-papo-uol-api/contract"
	"github.com/carladovalle/bate-papo-uol-api/domain"
	"github.com/carladovalle/bate-papo-uol-api/errors"

	"github.com/samber/lo"
)

// ParticipantRegistry keeps the room's presence state in memory, guarded by
// a single mutex. Presence is ephemeral: a restart empties the room and
// clients simply re-join.
type ParticipantRegistry struct {
	mu           sync.RWMutex
	clock        contract.Clock
	participants map[string]domain.Participant
}

func NewParticipantRegistry(clock contract.Clock) *ParticipantRegistry {
	return &ParticipantRegistry{
		clock:        clock,
		participants: make(map[string]domain.Participant),
	}
}

// Join registers a new participant with its heartbeat set to now.
// Names are case-sensitive and unique; a duplicate join returns
// ErrNameTaken and leaves the existing entry untouched.
func (r *ParticipantRegistry) Join(name string) (domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.participants[name]; ok {
		return domain.Participant{}, errors.ErrNameTaken
	}
	p := domain.Participant{Name: name, LastHeartbeat: r.clock.Now()}
	r.participants[name] = p
	return p, nil
}

// Heartbeat refreshes a participant's liveness timestamp.
func (r *ParticipantRegistry) Heartbeat(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[name]
	if !ok {
		return errors.ErrParticipantNotFound
	}
	p.LastHeartbeat = r.clock.Now()
	r.participants[name] = p
	return nil
}

// List returns a snapshot of present participants. Order is unspecified.
func (r *ParticipantRegistry) List() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Values(r.participants)
}

// EvictStaleBefore removes and returns every participant whose last
// heartbeat is older than threshold. The decision and removal happen under
// the registry lock, so a heartbeat observed before the sweep keeps its
// participant in the room; departure notices are the caller's business and
// are emitted outside any lock.
func (r *ParticipantRegistry) EvictStaleBefore(threshold time.Time) []domain.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []domain.Participant
	for name, p := range r.participants {
		if p.LastHeartbeat.Before(threshold) {
			delete(r.participants, name)
			evicted = append(evicted, p)
		}
	}
	return evicted
}
