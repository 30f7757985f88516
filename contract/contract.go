//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"github.com/carladovalle/bate-papo-uol-api/domain"
	"github.com/google/uuid"
)

// Clock supplies the timestamps used for heartbeat comparison and message
// capture. Injected so tests can drive eviction deterministically.
type Clock interface {
	Now() time.Time
}

// ParticipantRegistry owns the set of present participants, their liveness
// and the expiration decision. Implementations must be safe for concurrent
// callers.
type ParticipantRegistry interface {
	Join(name string) (domain.Participant, error)
	Heartbeat(name string) error
	List() []domain.Participant
	EvictStaleBefore(threshold time.Time) []domain.Participant
}

// MessageLog is the append-only store of chat messages.
type MessageLog interface {
	Append(ctx context.Context, input domain.MessageInput) (domain.Message, error)
	ListVisibleTo(ctx context.Context, viewer string) ([]domain.Message, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Message, error)
	UpdateByID(ctx context.Context, id uuid.UUID, patch domain.MessagePatch) (domain.Message, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, query string, limit int) ([]domain.Message, error)
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// initialization or lifecycle events, avoiding the need for manual naming
// in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
