package peer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/log"
)

// DefaultDrainInterval is how often the consumer empties the inbox.
const DefaultDrainInterval = 200 * time.Millisecond

type queued struct {
	conversation string
	entry        Entry
}

// Inbox is a queue of incoming entries with a single consumer that writes
// them to the history.
type Inbox struct {
	mu      sync.Mutex
	pending []queued

	history  *History
	interval time.Duration
	onEntry  func(conversation string, e Entry)
	log      *zerolog.Logger
}

// NewInbox creates an inbox feeding history. onEntry, when set, is called
// by the consumer for every entry added to the history.
func NewInbox(history *History, interval time.Duration, onEntry func(string, Entry), logger *zerolog.Logger) *Inbox {
	if interval <= 0 {
		interval = DefaultDrainInterval
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Inbox{history: history, interval: interval, onEntry: onEntry, log: logger}
}

// Push queues e for conversation. Safe for concurrent use.
func (in *Inbox) Push(conversation string, e Entry) {
	in.mu.Lock()
	in.pending = append(in.pending, queued{conversation: conversation, entry: e})
	in.mu.Unlock()
}

// Len reports the number of queued entries.
func (in *Inbox) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.pending)
}

// Run drains the inbox every interval until ctx is done, then drains once more.
func (in *Inbox) Run(ctx context.Context) error {
	ticker := time.NewTicker(in.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			in.Drain()
			return nil
		case <-ticker.C:
			in.Drain()
		}
	}
}

// Drain applies every queued entry and saves the history when it changed.
// It returns the number of entries stored.
func (in *Inbox) Drain() int {
	in.mu.Lock()
	batch := in.pending
	in.pending = nil
	in.mu.Unlock()

	stored := 0
	for _, q := range batch {
		if q.conversation == SystemContext {
			in.log.Info().Str("notice", q.entry.Message.Message).Msg("system")
			continue
		}
		if q.conversation == "" {
			in.log.Warn().Str("from", q.entry.From).Msg("dropping message without conversation")
			continue
		}
		if !in.history.Append(q.conversation, q.entry) {
			in.log.Debug().Str("id", q.entry.ID).Str("conversation", q.conversation).Msg("duplicate message dropped")
			continue
		}
		stored++
		if in.onEntry != nil {
			in.onEntry(q.conversation, q.entry)
		}
	}

	if stored > 0 {
		if err := in.history.Save(); err != nil {
			in.log.Error().Err(err).Msg("failed to save history")
		}
	}
	return stored
}
