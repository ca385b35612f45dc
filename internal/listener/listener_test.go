package listener

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/require"

	"github.com/arturkryukov/telegram-ioc-ingestor/internal/queue"
)

func newTestListener(t *testing.T, channelID int64) (*Listener, *queue.Queue) {
	t.Helper()
	q := queue.New(4)
	l := &Listener{
		channels: map[int64]bool{channelID: true},
		q:        q,
		logger:   slog.New(slog.NewTextHandler(os.Stderr, nil)),
		seen:     make(map[int64]seenDocument),
	}
	return l, q
}

func TestOnNewChannelMessageEnqueuesDocument(t *testing.T) {
	l, q := newTestListener(t, 42)

	doc := &tg.Document{
		ID:         100,
		AccessHash: 200,
		Attributes: []tg.DocumentAttributeClass{
			&tg.DocumentAttributeFilename{FileName: "report.zip"},
		},
	}
	msg := &tg.Message{
		ID:     7,
		PeerID: &tg.PeerChannel{ChannelID: 42},
		Media:  &tg.MessageMediaDocument{Document: doc},
	}
	update := &tg.UpdateNewChannelMessage{Message: msg}

	err := l.onNewChannelMessage(context.Background(), tg.Entities{
		Channels: map[int64]*tg.Channel{42: {Title: "leak-channel"}},
	}, update)
	require.NoError(t, err)

	job, ok := q.Dequeue(context.Background())
	require.True(t, ok)
	require.Equal(t, int64(42), job.Ref.ChannelID)
	require.Equal(t, int64(7), job.Ref.MessageID)
	require.Equal(t, int64(100), job.Ref.DocumentID)
	require.Equal(t, "report.zip", job.Filename)
	require.Equal(t, "leak-channel", job.ChannelTitle)
}

func TestOnNewChannelMessageSkipsOversizedDocument(t *testing.T) {
	l, q := newTestListener(t, 42)
	l.maxDocSize = 100

	doc := &tg.Document{ID: 1, AccessHash: 2, Size: 101}
	msg := &tg.Message{
		ID:     1,
		PeerID: &tg.PeerChannel{ChannelID: 42},
		Media:  &tg.MessageMediaDocument{Document: doc},
	}

	err := l.onNewChannelMessage(context.Background(), tg.Entities{}, &tg.UpdateNewChannelMessage{Message: msg})
	require.NoError(t, err)
	require.Equal(t, 0, q.Len())
}

func TestOnNewChannelMessageIgnoresUnconfiguredChannel(t *testing.T) {
	l, q := newTestListener(t, 42)

	doc := &tg.Document{ID: 1, AccessHash: 2}
	msg := &tg.Message{
		ID:     1,
		PeerID: &tg.PeerChannel{ChannelID: 999},
		Media:  &tg.MessageMediaDocument{Document: doc},
	}

	err := l.onNewChannelMessage(context.Background(), tg.Entities{}, &tg.UpdateNewChannelMessage{Message: msg})
	require.NoError(t, err)
	require.Equal(t, 0, q.Len())
}

func TestOnNewChannelMessageIgnoresNonDocumentMedia(t *testing.T) {
	l, q := newTestListener(t, 42)

	msg := &tg.Message{
		ID:     1,
		PeerID: &tg.PeerChannel{ChannelID: 42},
		Media:  &tg.MessageMediaPhoto{},
	}

	err := l.onNewChannelMessage(context.Background(), tg.Entities{}, &tg.UpdateNewChannelMessage{Message: msg})
	require.NoError(t, err)
	require.Equal(t, 0, q.Len())
}

func TestDocumentFilenameFallsBackWhenNoAttribute(t *testing.T) {
	doc := &tg.Document{ID: 55}
	require.Equal(t, "document_55", documentFilename(doc))
}
