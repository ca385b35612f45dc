// Package listener subscribes to configured Telegram channels and
// enqueues a Job for every document message, decoupled from the worker
// pool by the Job Queue.
package listener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"

	"github.com/arturkryukov/telegram-ioc-ingestor/internal/backoff"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/externalref"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/ingesterr"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/queue"
)

// Config configures a Listener.
type Config struct {
	Phone                string
	APIID                int
	APIHash              string
	Channels             []int64
	SessionPath          string
	MaxDocumentSizeBytes int64
}

// Listener subscribes to the configured channels via gotd/td and enqueues
// a queue.Job for every incoming document message. It also implements
// worker.Downloader so the worker pool can stream an artifact's bytes
// back through the same client.
type Listener struct {
	client     *telegram.Client
	api        *tg.Client
	dl         *downloader.Downloader
	phone      string
	channels   map[int64]bool
	maxDocSize int64
	q          *queue.Queue
	logger     *slog.Logger
	reconnect  backoff.Policy

	mu   sync.Mutex
	seen map[int64]seenDocument
}

type seenDocument struct {
	accessHash    int64
	fileReference []byte
}

// New builds a Listener. Run must be called to actually connect.
func New(cfg Config, q *queue.Queue, logger *slog.Logger) *Listener {
	channels := make(map[int64]bool, len(cfg.Channels))
	for _, id := range cfg.Channels {
		channels[id] = true
	}

	l := &Listener{
		phone:      cfg.Phone,
		channels:   channels,
		maxDocSize: cfg.MaxDocumentSizeBytes,
		q:          q,
		logger:     logger,
		reconnect:  backoff.Default(),
		seen:       make(map[int64]seenDocument),
		dl:         downloader.NewDownloader(),
	}

	dispatcher := tg.NewUpdateDispatcher()
	dispatcher.OnNewChannelMessage(l.onNewChannelMessage)

	l.client = telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: filepath.Join(cfg.SessionPath, "session.json")},
		UpdateHandler:  dispatcher,
		Logger:         nil,
	})
	l.api = l.client.API()

	return l
}

// Run connects, authenticates if needed, verifies every configured
// channel is reachable (an inaccessible channel is a fatal config error,
// per the boot-time channel verification policy), then blocks processing
// updates until ctx is cancelled. On a transient disconnect it reconnects
// with capped exponential backoff rather than returning.
func (l *Listener) Run(ctx context.Context) error {
	attempt := 0
	for {
		err := l.client.Run(ctx, func(runCtx context.Context) error {
			attempt = 0
			if err := l.authenticate(runCtx, l.phone); err != nil {
				return fmt.Errorf("authenticate: %w: %w", err, ingesterr.ErrAuthFailed)
			}
			if err := l.verifyChannels(runCtx); err != nil {
				return err
			}
			l.logger.Info("listener_ready", slog.Int("channel_count", len(l.channels)))
			<-runCtx.Done()
			return runCtx.Err()
		})

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if isFatalAuthOrConfig(err) {
				return err
			}
			attempt++
			l.logger.Warn("listener_reconnecting", slog.Int("attempt", attempt), slog.String("error", err.Error()))
			if sleepErr := l.reconnect.Sleep(ctx, attempt); sleepErr != nil {
				return sleepErr
			}
			continue
		}
		return nil
	}
}

func isFatalAuthOrConfig(err error) bool {
	return errors.Is(err, ingesterr.ErrAuthFailed) || errors.Is(err, ingesterr.ErrConfigInvalid)
}

// verifyChannels confirms every configured channel resolves to a reachable
// entity. An inaccessible channel fails the boot sequence outright rather
// than being silently skipped.
func (l *Listener) verifyChannels(ctx context.Context) error {
	for channelID := range l.channels {
		if _, err := l.api.ChannelsGetChannels(ctx, []tg.InputChannelClass{
			&tg.InputChannel{ChannelID: channelID},
		}); err != nil {
			return fmt.Errorf("channel %d unreachable: %w: %w", channelID, err, ingesterr.ErrConfigInvalid)
		}
	}
	return nil
}

// onNewChannelMessage is gotd/td's update handler for new channel posts.
// It filters to document media in a configured channel, builds the
// external reference, and enqueues a Job — blocking on backpressure
// rather than ever dropping an event.
func (l *Listener) onNewChannelMessage(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
	msg, ok := u.Message.(*tg.Message)
	if !ok {
		return nil
	}
	peer, ok := msg.PeerID.(*tg.PeerChannel)
	if !ok || !l.channels[peer.ChannelID] {
		return nil
	}

	media, ok := msg.Media.(*tg.MessageMediaDocument)
	if !ok {
		return nil
	}
	doc, ok := media.Document.(*tg.Document)
	if !ok {
		return nil
	}

	filename := documentFilename(doc)

	if l.maxDocSize > 0 && doc.Size > l.maxDocSize {
		l.logger.Info("document_skipped_oversized",
			slog.String("filename", filename),
			slog.Int64("size_bytes", doc.Size),
			slog.Int64("max_size_bytes", l.maxDocSize))
		return nil
	}
	ref := externalref.New(peer.ChannelID, int64(msg.ID), doc.ID)
	l.mu.Lock()
	l.seen[doc.ID] = seenDocument{accessHash: doc.AccessHash, fileReference: doc.FileReference}
	l.mu.Unlock()

	channelTitle := ""
	if ch, ok := e.Channels[peer.ChannelID]; ok {
		channelTitle = ch.Title
	}

	job := queue.Job{Ref: ref, ChannelTitle: channelTitle, Filename: filename}
	if err := l.q.Enqueue(ctx, job); err != nil {
		l.logger.Warn("enqueue_cancelled", slog.String("telegram_file_id", ref.Token()), slog.String("error", err.Error()))
		return nil
	}
	l.logger.Info("document_enqueued", slog.String("telegram_file_id", ref.Token()), slog.String("filename", filename))
	return nil
}

func documentFilename(doc *tg.Document) string {
	for _, attr := range doc.Attributes {
		if named, ok := attr.(*tg.DocumentAttributeFilename); ok {
			return named.FileName
		}
	}
	return fmt.Sprintf("document_%d", doc.ID)
}

// Download implements worker.Downloader: it streams the artifact
// identified by ref back from Telegram using the access hash and file
// reference captured when the document was first observed.
func (l *Listener) Download(ctx context.Context, ref externalref.Ref) (io.ReadCloser, error) {
	l.mu.Lock()
	seen, ok := l.seen[ref.DocumentID]
	l.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("download: document %d not tracked by this listener instance: %w", ref.DocumentID, ingesterr.ErrTransientNetwork)
	}

	loc := &tg.InputDocumentFileLocation{
		ID:            ref.DocumentID,
		AccessHash:    seen.accessHash,
		FileReference: seen.fileReference,
	}

	pr, pw := io.Pipe()
	go func() {
		_, err := l.dl.Download(l.api, loc).Stream(ctx, pw)
		if err != nil {
			pw.CloseWithError(fmt.Errorf("download stream: %w: %w", err, ingesterr.ErrTransientNetwork))
			return
		}
		pw.Close()
	}()
	return pr, nil
}
