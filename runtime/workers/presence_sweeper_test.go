package workers

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/carladovalle/bate-papo-uol-api/domain"
	"github.com/carladovalle/bate-papo-uol-api/mocks"
	"github.com/carladovalle/bate-papo-uol-api/repositories"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestPresenceSweeper_EvictsStaleAndNotifies(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	clock := mocks.NewMockClock(ctrl)
	messages := mocks.NewMockMessageLog(ctrl)

	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	registry := repositories.NewParticipantRegistry(clock)

	// Carol joins at t0 and never heartbeats, Dave joins at t0+5s
	clock.EXPECT().Now().Return(t0).Times(1)
	_, err := registry.Join("Carol")
	req.NoError(err)
	clock.EXPECT().Now().Return(t0.Add(5 * time.Second)).Times(1)
	_, err = registry.Join("Dave")
	req.NoError(err)

	sweeper := NewPresenceSweeper(slog.Default(), registry, messages, clock, 15*time.Second, 10*time.Second)

	// Sweep runs at t0+11s: only Carol crossed staleAfter
	clock.EXPECT().Now().Return(t0.Add(11 * time.Second)).Times(1)
	messages.EXPECT().
		Append(gomock.Any(), domain.MessageInput{
			From: "Carol",
			To:   domain.Broadcast,
			Text: LeftRoomNotice,
			Kind: domain.KindStatus,
		}).
		Return(domain.Message{}, nil).
		Times(1)

	sweeper.Sweep(context.Background())

	remaining := registry.List()
	req.Len(remaining, 1)
	req.Equal("Dave", remaining[0].Name)
}

func TestPresenceSweeper_NoticeFailureDoesNotBlockOthers(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	clock := mocks.NewMockClock(ctrl)
	messages := mocks.NewMockMessageLog(ctrl)

	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	registry := repositories.NewParticipantRegistry(clock)

	clock.EXPECT().Now().Return(t0).Times(2)
	_, err := registry.Join("Carol")
	req.NoError(err)
	_, err = registry.Join("Dave")
	req.NoError(err)

	sweeper := NewPresenceSweeper(slog.Default(), registry, messages, clock, 15*time.Second, 10*time.Second)

	clock.EXPECT().Now().Return(t0.Add(time.Minute)).Times(1)
	// One append fails, the other must still happen
	first := messages.EXPECT().
		Append(gomock.Any(), gomock.Any()).
		Return(domain.Message{}, fmt.Errorf("store unreachable")).
		Times(1)
	messages.EXPECT().
		Append(gomock.Any(), gomock.Any()).
		Return(domain.Message{}, nil).
		Times(1).
		After(first)

	sweeper.Sweep(context.Background())
	req.Empty(registry.List())
}

func TestPresenceSweeper_FreshParticipantsSurvive(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	clock := mocks.NewMockClock(ctrl)
	messages := mocks.NewMockMessageLog(ctrl)

	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	registry := repositories.NewParticipantRegistry(clock)

	clock.EXPECT().Now().Return(t0).Times(1)
	_, err := registry.Join("Alice")
	req.NoError(err)

	// Alice heartbeats right before the sweep
	clock.EXPECT().Now().Return(t0.Add(9 * time.Second)).Times(1)
	req.NoError(registry.Heartbeat("Alice"))

	sweeper := NewPresenceSweeper(slog.Default(), registry, messages, clock, 15*time.Second, 10*time.Second)

	clock.EXPECT().Now().Return(t0.Add(11 * time.Second)).Times(1)
	messages.EXPECT().Append(gomock.Any(), gomock.Any()).Times(0)

	sweeper.Sweep(context.Background())
	req.Len(registry.List(), 1)
}

func TestPresenceSweeper_StopsOnContextCancel(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	clock := mocks.NewMockClock(ctrl)
	messages := mocks.NewMockMessageLog(ctrl)
	registry := repositories.NewParticipantRegistry(clock)

	sweeper := NewPresenceSweeper(slog.Default(), registry, messages, clock, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- sweeper.Run(ctx)
	}()
	cancel()

	select {
	case err := <-done:
		req.ErrorIs(err, context.Canceled)
	case <-time.After(time.Second):
		req.Fail("sweeper should stop once the context is canceled")
	}
}
