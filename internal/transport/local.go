package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"media-pipeline/pkg/models"
)

// Local is a filesystem-backed transport. Each chat maps to an outbox
// directory; sends copy files there and text messages land in a log
// file. It is the delivery backend for the CLI and a reference for
// chat-API implementations.
type Local struct {
	root   string
	logger zerolog.Logger

	mu     sync.Mutex
	nextID int64
	sent   map[int64]string // message ID to delivered path or text
}

// NewLocal creates a local transport rooted at dir
func NewLocal(dir string) *Local {
	return &Local{
		root:   dir,
		logger: zerolog.New(os.Stdout).With().Timestamp().Str("component", "transport").Logger(),
		sent:   make(map[int64]string),
	}
}

func (l *Local) chatDir(chatID int64) string {
	return filepath.Join(l.root, fmt.Sprintf("chat_%d", chatID))
}

func (l *Local) nextMessageID() int64 {
	l.nextID++
	return l.nextID
}

// SendText appends the text to the chat's message log
func (l *Local) SendText(ctx context.Context, chatID int64, text string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	dir := l.chatDir(chatID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "messages.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	id := l.nextMessageID()
	if _, err := fmt.Fprintf(f, "[%d] %s\n", id, text); err != nil {
		return 0, err
	}
	l.sent[id] = text
	return id, nil
}

// EditText is a no-op beyond logging; the message log is append-only
func (l *Local) EditText(ctx context.Context, chatID, messageID int64, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.sent[messageID]; !ok {
		return fmt.Errorf("message %d not found", messageID)
	}
	l.sent[messageID] = text
	return nil
}

func (l *Local) deliverFile(chatID int64, file models.FileUpload) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	dir := l.chatDir(chatID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	dest := filepath.Join(dir, filepath.Base(file.Path))
	src, err := os.Open(file.Path)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		os.Remove(dest)
		return 0, err
	}

	id := l.nextMessageID()
	l.sent[id] = dest
	l.logger.Debug().Int64("chat_id", chatID).Str("file", dest).Msg("Delivered file")
	return id, nil
}

// SendVideo copies the video into the chat's outbox
func (l *Local) SendVideo(ctx context.Context, chatID int64, file models.FileUpload) (int64, error) {
	return l.deliverFile(chatID, file)
}

// SendAudio copies the audio file into the chat's outbox
func (l *Local) SendAudio(ctx context.Context, chatID int64, file models.FileUpload) (int64, error) {
	return l.deliverFile(chatID, file)
}

// SendPhoto copies the image into the chat's outbox
func (l *Local) SendPhoto(ctx context.Context, chatID int64, file models.FileUpload) (int64, error) {
	return l.deliverFile(chatID, file)
}

// SendDocument copies the file into the chat's outbox
func (l *Local) SendDocument(ctx context.Context, chatID int64, file models.FileUpload) (int64, error) {
	return l.deliverFile(chatID, file)
}

// SendMediaGroup delivers each file of the batch in order
func (l *Local) SendMediaGroup(ctx context.Context, chatID int64, files []models.FileUpload) ([]int64, error) {
	ids := make([]int64, 0, len(files))
	for _, f := range files {
		id, err := l.deliverFile(chatID, f)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ForwardMessages re-delivers previously sent files by reference
func (l *Local) ForwardMessages(ctx context.Context, chatID int64, messageIDs []int64) error {
	l.mu.Lock()
	paths := make([]string, 0, len(messageIDs))
	for _, id := range messageIDs {
		ref, ok := l.sent[id]
		if !ok {
			l.mu.Unlock()
			return fmt.Errorf("message %d not found", id)
		}
		paths = append(paths, ref)
	}
	l.mu.Unlock()

	for _, ref := range paths {
		if _, err := os.Stat(ref); err != nil {
			return fmt.Errorf("forward source gone: %w", err)
		}
		if _, err := l.deliverFile(chatID, models.FileUpload{Path: ref}); err != nil {
			return err
		}
	}
	return nil
}
