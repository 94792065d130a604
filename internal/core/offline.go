package core

import (
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/metrics"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

// OfflineEntry is a message waiting for its recipient.
type OfflineEntry struct {
	Message  proto.Message
	QueuedAt time.Time
}

// Wire converts the entry into its tracker response shape.
func (e OfflineEntry) Wire() proto.OfflineMessage {
	return proto.OfflineMessage{
		Message:   e.Message,
		IsOffline: true,
		Timestamp: float64(e.QueuedAt.UnixNano()) / float64(time.Second),
	}
}

// Enqueue appends msg to the recipient's queue, creating it when absent.
func (r *Registry) Enqueue(recipient string, msg proto.Message) (OfflineEntry, error) {
	if recipient == "" {
		return OfflineEntry{}, coreError(ErrCodeBadRequest, "recipient is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry := OfflineEntry{Message: msg, QueuedAt: r.now()}
	r.offline[recipient] = append(r.offline[recipient], entry)

	metrics.OfflineEnqueued.Inc()
	r.log.Info().Str("recipient", recipient).Str("from", msg.From).Msg("offline message stored")
	return entry, nil
}

// Drain returns the recipient's whole queue and clears it in the same step.
func (r *Registry) Drain(recipient string) []OfflineEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.offline[recipient]
	delete(r.offline, recipient)

	if len(entries) > 0 {
		metrics.OfflineDrained.Add(float64(len(entries)))
		r.log.Info().Str("recipient", recipient).Int("count", len(entries)).Msg("offline messages drained")
	}
	return entries
}

// Pending reports how many messages wait for recipient.
func (r *Registry) Pending(recipient string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.offline[recipient])
}
