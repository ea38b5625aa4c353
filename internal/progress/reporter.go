package progress

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"media-pipeline/pkg/models"
)

var frames = []string{".", "..", "...", "....", "...."}

var tickInterval = 2 * time.Second

// Reporter animates a single status message while a download runs.
// All transport failures are swallowed: progress is cosmetic and must
// never fail the download it narrates.
type Reporter struct {
	transport models.Transport
	logger    zerolog.Logger

	mu        sync.Mutex
	chatID    int64
	messageID int64
	base      string
	lastText  string
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewReporter creates a reporter bound to one chat
func NewReporter(transport models.Transport, chatID int64) *Reporter {
	return &Reporter{
		transport: transport,
		chatID:    chatID,
		logger:    zerolog.New(os.Stdout).With().Timestamp().Str("component", "progress").Logger(),
	}
}

// Start sends the initial status message and begins animating it.
// Calling Start twice restarts the animation with the new text.
func (r *Reporter) Start(ctx context.Context, text string) {
	r.Stop()

	r.mu.Lock()
	r.base = text
	r.lastText = ""
	r.mu.Unlock()

	id, err := r.transport.SendText(ctx, r.chatID, text)
	if err != nil {
		r.logger.Debug().Err(err).Msg("Failed to send status message")
		return
	}

	animCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	r.mu.Lock()
	r.messageID = id
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	go r.animate(animCtx, done)
}

// Update replaces the animated base text in place
func (r *Reporter) Update(text string) {
	r.mu.Lock()
	r.base = text
	r.mu.Unlock()
}

func (r *Reporter) animate(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	frame := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			text := r.base + frames[frame%len(frames)]
			msgID := r.messageID
			skip := text == r.lastText
			if !skip {
				r.lastText = text
			}
			r.mu.Unlock()

			frame++
			if skip {
				continue
			}

			if err := r.transport.EditText(ctx, r.chatID, msgID, text); err != nil {
				if retryAfter, ok := models.AsRetryAfter(err); ok {
					select {
					case <-ctx.Done():
						return
					case <-time.After(retryAfter):
					}
					continue
				}
				r.logger.Debug().Err(err).Msg("Failed to edit status message")
			}
		}
	}
}

// Stop halts the animation, leaving the message as last rendered
func (r *Reporter) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Finish stops the animation and replaces the message with final text
func (r *Reporter) Finish(ctx context.Context, text string) {
	r.Stop()

	r.mu.Lock()
	msgID := r.messageID
	r.mu.Unlock()
	if msgID == 0 {
		return
	}

	if err := r.transport.EditText(ctx, r.chatID, msgID, text); err != nil {
		r.logger.Debug().Err(err).Msg("Failed to finalize status message")
	}
}
