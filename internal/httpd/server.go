package httpd

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/log"
	"github.com/vovakirdan/wirechat-relay/internal/metrics"
)

// Observer is told about every answered request.
type Observer func(method, path string, status int, elapsed time.Duration)

// ServerConfig configures a Server.
type ServerConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxHeaderBytes int
	Observer       Observer
}

// Server accepts TCP connections and answers exactly one request on each.
type Server struct {
	dispatcher *Dispatcher
	builder    *ResponseBuilder
	cfg        ServerConfig
	log        *zerolog.Logger

	wg sync.WaitGroup
}

// NewServer wires a dispatcher and a response builder into a server.
func NewServer(dispatcher *Dispatcher, builder *ResponseBuilder, cfg ServerConfig, logger *zerolog.Logger) *Server {
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.MaxHeaderBytes <= 0 {
		cfg.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	return &Server{dispatcher: dispatcher, builder: builder, cfg: cfg, log: logger}
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then waits for
// in-flight connections to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("tracker listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.log.Warn().Err(err).Msg("accept timeout")
				continue
			}
			s.wg.Wait()
			return err
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// handleConn frames, dispatches and answers a single request, then closes.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	start := time.Now()

	_ = conn.SetReadDeadline(start.Add(s.cfg.ReadTimeout))
	req, err := ReadRequest(conn, s.cfg.MaxHeaderBytes)
	if err != nil {
		metrics.FramingErrors.WithLabelValues(framingReason(err)).Inc()
		s.log.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("dropping unframeable request")
		return
	}
	req.RemoteAddr = conn.RemoteAddr().String()
	if req.Truncated {
		s.log.Warn().Str("path", req.Path).Int("read", len(req.Body)).Msg("request body shorter than content-length")
	}

	out := s.dispatcher.Dispatch(req)
	resp := s.builder.Build(out)

	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if _, err := conn.Write(resp.Bytes()); err != nil {
		s.log.Warn().Err(err).Str("path", req.Path).Msg("write response")
	}

	elapsed := time.Since(start)
	if s.cfg.Observer != nil {
		s.cfg.Observer(req.Method, req.Path, resp.Status, elapsed)
	}
	s.log.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", resp.Status).
		Str("user", req.Username).
		Dur("elapsed", elapsed).
		Msg("request served")
}

func framingReason(err error) string {
	switch {
	case errors.Is(err, ErrHeaderTooLarge):
		return "header_too_large"
	case errors.Is(err, ErrBodyTooLarge):
		return "body_too_large"
	default:
		return "unparseable"
	}
}
