// Package commandchannel subscribes to the operator command stream of one
// session over a websocket and hands every raw frame to a callback.
//
// Frames are not interpreted here; the runner validates them. The connection
// is re-established after ReconnectDelay whenever it drops, until Close.
package commandchannel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var (
	ErrClosed            = errors.New("command channel closed")
	ErrAlreadySubscribed = errors.New("command channel already subscribed")
)

const (
	DefaultReconnectDelay   = 2 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	// maxFrameSize bounds a single inbound frame
	maxFrameSize = 64 << 10
)

// Config holds subscriber configuration
type Config struct {
	URL              string
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
	Logger           zerolog.Logger
}

// Subscriber is a reconnecting websocket reader
type Subscriber struct {
	url            *url.URL
	reconnectDelay time.Duration
	dialer         *websocket.Dialer
	logger         zerolog.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	subscribed bool
	closed     bool

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// New validates cfg and returns an unsubscribed Subscriber. http and https
// URLs are rewritten to ws and wss.
func New(cfg Config) (*Subscriber, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse channel url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("channel url must be ws or wss, got %q", cfg.URL)
	}

	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Subscriber{
		url:            u,
		reconnectDelay: cfg.ReconnectDelay,
		dialer:         &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		logger:         cfg.Logger.With().Str("component", "commandchannel").Logger(),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}, nil
}

func (s *Subscriber) sessionURL(sessionID string) string {
	u := *s.url
	q := u.Query()
	q.Set("sessionId", sessionID)
	u.RawQuery = q.Encode()
	return u.String()
}

// Subscribe connects to the command stream for sessionID and calls handler
// with every text or binary frame from a background goroutine. The result of
// the first dial is returned; on failure the subscriber keeps retrying until
// Close or until ctx is done.
func (s *Subscriber) Subscribe(ctx context.Context, sessionID string, handler func([]byte)) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.subscribed {
		s.mu.Unlock()
		return ErrAlreadySubscribed
	}
	s.subscribed = true
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.ctx.Done():
		}
	}()

	target := s.sessionURL(sessionID)
	logger := s.logger.With().Str("session_id", sessionID).Logger()

	conn, err := s.dial(target)
	go s.pump(target, conn, handler, logger)

	if err != nil {
		return fmt.Errorf("dial command channel: %w", err)
	}
	logger.Info().Str("url", target).Msg("Command channel connected")
	return nil
}

func (s *Subscriber) dial(target string) (*websocket.Conn, error) {
	conn, _, err := s.dialer.DialContext(s.ctx, target, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxFrameSize)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = conn.Close()
		return nil, ErrClosed
	}
	s.conn = conn
	return conn, nil
}

// pump reads frames from conn and redials whenever the connection is lost
func (s *Subscriber) pump(target string, conn *websocket.Conn, handler func([]byte), logger zerolog.Logger) {
	defer close(s.done)

	for {
		if conn == nil {
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(s.reconnectDelay):
			}

			var err error
			conn, err = s.dial(target)
			if err != nil {
				if s.ctx.Err() != nil {
					return
				}
				logger.Warn().Err(err).Dur("retry_in", s.reconnectDelay).Msg("Command channel dial failed")
				continue
			}
			logger.Info().Msg("Command channel reconnected")
		}

		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				if s.ctx.Err() != nil {
					return
				}
				logger.Warn().Err(err).Msg("Command channel read failed, reconnecting")
				s.mu.Lock()
				if s.conn == conn {
					s.conn = nil
				}
				s.mu.Unlock()
				_ = conn.Close()
				conn = nil
				break
			}
			if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
				continue
			}
			handler(data)
		}
	}
}

// Close stops the subscription and closes the connection. It is safe to call
// more than once and on a subscriber that never subscribed.
func (s *Subscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		wasSubscribed := s.subscribed
		conn := s.conn
		s.conn = nil
		s.mu.Unlock()

		s.cancel()
		if conn != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			err = conn.Close()
			if errors.Is(err, net.ErrClosed) {
				err = nil
			}
		}
		if wasSubscribed {
			<-s.done
		}
	})
	return err
}
