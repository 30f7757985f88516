//go:generate go run go.uber.org/mock/mockgen -source=room_service.go -destination=../mocks/mock_room_service.go -package=mocks
package services

import (
	"context"
	"log/slog"

	"github.com/carladovalle/bate-papo-uol-api/contract"
	"github.com/carladovalle/bate-papo-uol-api/domain"
	"github.com/carladovalle/bate-papo-uol-api/moderation"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// EnteredRoomNotice is the body of the status message posted when a
// participant joins.
const EnteredRoomNotice = "entra na sala..."

type IRoomService interface {
	JoinRoom(ctx context.Context, name string) (domain.Participant, error)
	Heartbeat(name string) error
	ListParticipants() []domain.Participant
	SendMessage(ctx context.Context, input domain.MessageInput) (domain.Message, error)
	FetchMessages(ctx context.Context, viewer string, limit *int) ([]domain.Message, error)
	SearchMessages(ctx context.Context, viewer, query string, limit int) ([]domain.Message, error)
	GetMessage(ctx context.Context, id uuid.UUID) (domain.Message, error)
	EditMessage(ctx context.Context, id uuid.UUID, patch domain.MessagePatch) (domain.Message, error)
	DeleteMessage(ctx context.Context, id uuid.UUID) error
}

// RoomService is the façade combining the participant registry and the
// message log. It exclusively owns both; the sweeper mutates them through
// the same operations as any caller.
type RoomService struct {
	log       *slog.Logger
	registry  contract.ParticipantRegistry
	messages  contract.MessageLog
	moderator *moderation.Moderator
}

// NewRoomService wires the façade. The moderator is optional; pass nil to
// skip censoring entirely.
func NewRoomService(
	log *slog.Logger,
	registry contract.ParticipantRegistry,
	messages contract.MessageLog,
	moderator *moderation.Moderator,
) *RoomService {
	return &RoomService{log: log, registry: registry, messages: messages, moderator: moderator}
}

// JoinRoom registers the participant and posts the "entered" status notice.
// Presence registration is the primary effect: when the notice append
// fails, the participant stays in the room and the failure is only logged.
func (s *RoomService) JoinRoom(ctx context.Context, name string) (domain.Participant, error) {
	p, err := s.registry.Join(name)
	if err != nil {
		return domain.Participant{}, err
	}

	_, err = s.messages.Append(ctx, domain.MessageInput{
		From: name,
		To:   domain.Broadcast,
		Text: EnteredRoomNotice,
		Kind: domain.KindStatus,
	})
	if err != nil {
		s.log.Error("Failed to post entry notice", "name", name, "err", err)
	}
	return p, nil
}

func (s *RoomService) Heartbeat(name string) error {
	return s.registry.Heartbeat(name)
}

func (s *RoomService) ListParticipants() []domain.Participant {
	return s.registry.List()
}

// SendMessage censors the text when a moderator is installed, then appends.
// Content fields arrive pre-validated by the transport collaborator.
func (s *RoomService) SendMessage(ctx context.Context, input domain.MessageInput) (domain.Message, error) {
	if s.moderator != nil {
		censored := s.moderator.Censor(input.Text)
		if censored != input.Text {
			s.log.Info("Message censored",
				"from", input.From,
				"lang", moderation.Language(input.Text))
			input.Text = censored
		}
	}
	return s.messages.Append(ctx, input)
}

// FetchMessages filters the log by viewer and truncates to the last limit
// entries. A nil limit returns everything the viewer can see.
func (s *RoomService) FetchMessages(ctx context.Context, viewer string, limit *int) ([]domain.Message, error) {
	messages, err := s.messages.ListVisibleTo(ctx, viewer)
	if err != nil {
		return nil, err
	}
	return domain.Window(messages, limit), nil
}

// SearchMessages runs a full-text query and keeps only the hits the viewer
// is allowed to see.
func (s *RoomService) SearchMessages(ctx context.Context, viewer, query string, limit int) ([]domain.Message, error) {
	hits, err := s.messages.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return lo.Filter(hits, func(m domain.Message, _ int) bool {
		return m.VisibleTo(viewer)
	}), nil
}

func (s *RoomService) GetMessage(ctx context.Context, id uuid.UUID) (domain.Message, error) {
	return s.messages.GetByID(ctx, id)
}

// EditMessage and DeleteMessage are ownership-agnostic here. Whether a
// caller may touch someone else's message is a transport-level policy.
func (s *RoomService) EditMessage(ctx context.Context, id uuid.UUID, patch domain.MessagePatch) (domain.Message, error) {
	return s.messages.UpdateByID(ctx, id, patch)
}

func (s *RoomService) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	return s.messages.DeleteByID(ctx, id)
}
