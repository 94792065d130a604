package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// NewToken returns a random 128-bit hex string used as a session token.
func NewToken() string {
	const size = 16

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}

	// Fallback to timestamp if crypto/rand is unavailable.
	return strconv.FormatInt(time.Now().UnixNano(), 16)
}

// NewMessageID returns a unique identifier for a chat message.
func NewMessageID() string {
	return uuid.NewString()
}
