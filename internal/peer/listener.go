package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/log"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

const (
	// MaxPayloadBytes caps a single peer message.
	MaxPayloadBytes = 64 << 10
	// DefaultReadTimeout bounds how long a sender may hold a connection open.
	DefaultReadTimeout = 5 * time.Second
)

// Listener accepts one message per connection from other peers.
type Listener struct {
	inbox       *Inbox
	readTimeout time.Duration
	log         *zerolog.Logger

	ln net.Listener
	wg sync.WaitGroup
}

// NewListener creates a listener pushing messages into inbox.
func NewListener(inbox *Inbox, readTimeout time.Duration, logger *zerolog.Logger) *Listener {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Listener{inbox: inbox, readTimeout: readTimeout, log: logger}
}

// Listen binds addr. Use port 0 to let the system choose.
func (l *Listener) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	l.ln = ln
	l.log.Info().Str("addr", ln.Addr().String()).Msg("peer listener started")
	return nil
}

// Port reports the bound port, or 0 before Listen.
func (l *Listener) Port() int {
	if l.ln == nil {
		return 0
	}
	if tcp, ok := l.ln.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Serve accepts connections until ctx is done and waits for in-flight reads.
func (l *Listener) Serve(ctx context.Context) error {
	if l.ln == nil {
		return errors.New("listener not bound")
	}
	stop := context.AfterFunc(ctx, func() { _ = l.ln.Close() })
	defer stop()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			l.wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handle(conn)
		}()
	}
}

// Close stops accepting connections.
func (l *Listener) Close() error {
	if l.ln == nil {
		return nil
	}
	return l.ln.Close()
}

func (l *Listener) handle(conn net.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(l.readTimeout))
	data, err := io.ReadAll(io.LimitReader(conn, MaxPayloadBytes+1))
	if err != nil {
		l.log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("peer read failed")
		return
	}
	if len(data) > MaxPayloadBytes {
		l.log.Warn().Str("remote", conn.RemoteAddr().String()).Msg("peer payload too large")
		return
	}

	var msg proto.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		l.log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("invalid peer payload")
		return
	}

	l.log.Debug().Str("from", msg.From).Str("type", msg.Type).Msg("peer message received")
	l.inbox.Push(ConversationFor(msg), Entry{Message: msg})
}
