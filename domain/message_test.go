package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func TestWindow_TailTruncation(t *testing.T) {
	req := require.New(t)
	seq := []Message{
		{ID: uuid.New(), Text: "one"},
		{ID: uuid.New(), Text: "two"},
		{ID: uuid.New(), Text: "three"},
	}

	t.Run("should return the last limit messages in original order", func(t *testing.T) {
		got := Window(seq, lo.ToPtr(2))
		req.Len(got, 2)
		req.Equal("two", got[0].Text)
		req.Equal("three", got[1].Text)
	})

	t.Run("should return everything when limit is absent", func(t *testing.T) {
		req.Equal(seq, Window(seq, nil))
	})

	t.Run("should return everything when limit is non-positive", func(t *testing.T) {
		req.Equal(seq, Window(seq, lo.ToPtr(0)))
		req.Equal(seq, Window(seq, lo.ToPtr(-3)))
	})

	t.Run("should return everything when limit exceeds length", func(t *testing.T) {
		req.Equal(seq, Window(seq, lo.ToPtr(10)))
	})

	t.Run("should handle empty sequences", func(t *testing.T) {
		req.Empty(Window(nil, lo.ToPtr(5)))
	})
}

func TestMessage_VisibleTo(t *testing.T) {
	req := require.New(t)

	broadcast := Message{From: "Alice", To: Broadcast, Kind: KindMessage}
	private := Message{From: "Bob", To: "Alice", Kind: KindPrivateMessage}

	req.True(broadcast.VisibleTo("Carol"))
	req.True(private.VisibleTo("Alice"), "recipient sees the private message")
	req.True(private.VisibleTo("Bob"), "sender sees their own private message")
	req.False(private.VisibleTo("Carol"))
}

func TestMessage_DisplayTime(t *testing.T) {
	req := require.New(t)
	at := time.Date(2024, 3, 1, 9, 5, 42, 0, time.UTC)
	req.Equal("09:05:42", Message{At: at}.DisplayTime())
}
