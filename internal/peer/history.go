package peer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

// SystemSender is the author of locally generated notices.
const SystemSender = "System"

// SystemContext marks inbox entries that are logged and never stored.
const SystemContext = "[SYSTEM]"

// Entry is one stored conversation line.
type Entry struct {
	proto.Message
	IsOffline bool `json:"is_offline,omitempty"`
}

// ConversationFor returns the conversation key of an incoming message:
// dm_<sender> for direct messages, the channel name otherwise. It returns ""
// when the message names neither.
func ConversationFor(msg proto.Message) string {
	if msg.Type == proto.TypeDirect {
		if msg.From == "" {
			return ""
		}
		return DirectConversation(msg.From)
	}
	return msg.ChannelName()
}

// DirectConversation is the key of the one-to-one conversation with user.
func DirectConversation(user string) string {
	return "dm_" + user
}

// History holds conversations keyed by conversation name and persists them
// as a JSON file.
type History struct {
	mu    sync.RWMutex
	path  string
	convs map[string][]Entry
}

// NewHistory creates an empty history stored under dir for username.
func NewHistory(dir, username string) *History {
	return &History{
		path:  filepath.Join(dir, "history_"+username+".json"),
		convs: make(map[string][]Entry),
	}
}

// Path is the file the history is saved to.
func (h *History) Path() string {
	return h.path
}

// Load replaces the in-memory history with the saved file. A missing file
// leaves the history empty.
func (h *History) Load() error {
	data, err := os.ReadFile(h.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read history: %w", err)
	}

	convs := make(map[string][]Entry)
	if err := json.Unmarshal(data, &convs); err != nil {
		return fmt.Errorf("parse history: %w", err)
	}

	h.mu.Lock()
	h.convs = convs
	h.mu.Unlock()
	return nil
}

// Save writes the history file, creating its directory.
func (h *History) Save() error {
	h.mu.RLock()
	data, err := json.MarshalIndent(h.convs, "", "  ")
	h.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	tmp := h.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	if err := os.Rename(tmp, h.path); err != nil {
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}

// Append adds e to conversation. Entries whose id is already present in the
// conversation are dropped and Append reports false.
func (h *History) Append(conversation string, e Entry) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if e.ID != "" {
		for _, existing := range h.convs[conversation] {
			if existing.ID == e.ID {
				return false
			}
		}
	}
	h.convs[conversation] = append(h.convs[conversation], e)
	return true
}

// Conversation returns a copy of the entries of conversation.
func (h *History) Conversation(conversation string) []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	entries := h.convs[conversation]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// Conversations returns the sorted conversation keys.
func (h *History) Conversations() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	keys := make([]string, 0, len(h.convs))
	for k := range h.convs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
