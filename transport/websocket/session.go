package websocket

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/yola1107/puppeteer/library/xgo"
	"github.com/yola1107/puppeteer/log"
)

var errSessionClosed = errors.New("session: closed")

type iHandler interface {
	// OnSessionOpen 会话建立后回调
	OnSessionOpen(sess *Session)
	// OnSessionClose 会话断开时回调, code 为关闭码
	OnSessionClose(sess *Session, code int)
	// DispatchMessage 处理 relay 发来的原始数据
	DispatchMessage(sess *Session, data []byte)
}

type SessionConfig struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	ReadDeadline time.Duration
	ReadLimit    int64
}

type Session struct {
	id         string
	h          iHandler
	connMu     sync.Mutex
	conn       *websocket.Conn
	config     *SessionConfig
	closed     atomic.Bool
	lastActive atomic.Value // time.Time
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewSession(h iHandler, conn *websocket.Conn, config *SessionConfig) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:     uuid.New().String(),
		h:      h,
		conn:   conn,
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}
	s.lastActive.Store(time.Now())
	if config.ReadLimit > 0 {
		conn.SetReadLimit(config.ReadLimit)
	}
	conn.SetPongHandler(func(string) error {
		s.lastActive.Store(time.Now())
		return nil
	})
	s.h.OnSessionOpen(s)
	go s.readPump()
	go s.heartbeat()
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) LastActive() time.Time {
	return s.lastActive.Load().(time.Time)
}

func (s *Session) Closed() bool {
	return s.closed.Load()
}

// WriteMessage writes one text frame synchronously. Only the dispatcher loop
// and the heartbeat write, both under connMu.
func (s *Session) WriteMessage(data []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.Closed() {
		return errSessionClosed
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Session) readPump() {
	code := websocket.CloseAbnormalClosure
	defer func() { s.Close(code, "") }()
	defer xgo.RecoverFromError(nil)

	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.config.ReadDeadline)); err != nil {
			log.Errorf("sessionID=%q set read deadline error: %v", s.id, err)
			return
		}

		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			code = closeCodeOf(err)
			if s.Closed() {
				return
			}
			var ce *websocket.CloseError
			if !errors.As(err, &ce) {
				log.Errorf("sessionID=%q read error: %v", s.id, err)
			}
			return
		}

		s.lastActive.Store(time.Now())

		switch msgType {
		case websocket.TextMessage, websocket.BinaryMessage:
			s.h.DispatchMessage(s, data)
		default:
			log.Warnf("sessionID=%q unsupported message type: %d", s.id, msgType)
		}
	}
}

func (s *Session) heartbeat() {
	if s.config.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case <-ticker.C:
			if time.Since(s.LastActive()) > s.config.ReadDeadline {
				log.Warnf("sessionID=%q heartbeat timeout", s.id)
				s.Close(websocket.CloseAbnormalClosure, "heartbeat timeout")
				return
			}
			s.writeControl(websocket.PingMessage, nil)
		}
	}
}

// Close is idempotent; only the first call notifies the handler.
func (s *Session) Close(code int, reason string) bool {
	if !s.closed.CompareAndSwap(false, true) {
		return false
	}

	if code == websocket.CloseNormalClosure || code == websocket.CloseGoingAway {
		s.writeControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	}
	s.cancel()

	s.connMu.Lock()
	_ = s.conn.Close()
	s.connMu.Unlock()

	s.h.OnSessionClose(s, code)
	return true
}

func (s *Session) writeControl(msgType int, data []byte) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	_ = s.conn.WriteControl(msgType, data, time.Now().Add(s.config.WriteTimeout))
}
