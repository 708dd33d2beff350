package websocket

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yola1107/puppeteer/library/ext"
	"github.com/yola1107/puppeteer/library/xgo"
	"github.com/yola1107/puppeteer/log"
)

var (
	ErrRetryGate             = errors.New("client: reconnect gate not elapsed")
	ErrConnectionUnavailable = errors.New("client: connection not open")
	ErrQueueFull             = errors.New("client: outbound queue full")
	ErrClientClosed          = errors.New("client: shut down")
	errInvalidURL            = errors.New("client: invalid URL")
)

// State is the connection state machine: Disconnected -> Connecting -> Open -> Disconnected.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type MessageHandler func(sess *Session, data []byte)

type dialFunc func(ctx context.Context, urlStr string, header http.Header) (*websocket.Conn, *http.Response, error)

type ClientOption func(*clientOptions)

func WithContext(ctx context.Context) ClientOption {
	return func(o *clientOptions) { o.ctx = ctx }
}

func WithEndpoint(endpoint string) ClientOption {
	return func(o *clientOptions) { o.endpoint = endpoint }
}

func WithPath(path string) ClientOption {
	return func(o *clientOptions) { o.path = path }
}

func WithTlsConf(tlsConfig *tls.Config) ClientOption {
	return func(o *clientOptions) { o.tlsConf = tlsConfig }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) { o.timeout = timeout }
}

func WithHeartbeat(d, i, w time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.session.ReadDeadline, o.session.PingInterval, o.session.WriteTimeout = d, i, w
	}
}

func WithReadLimit(n int64) ClientOption {
	return func(o *clientOptions) { o.session.ReadLimit = n }
}

func WithCompression(enabled bool) ClientOption {
	return func(o *clientOptions) { o.compression = enabled }
}

func WithTokenSource(src TokenSource) ClientOption {
	return func(o *clientOptions) { o.tokens = src }
}

func WithCookieName(name string) ClientOption {
	return func(o *clientOptions) { o.cookieName = name }
}

// WithRetryWindow sets the reconnect gate armed by every Connect.
func WithRetryWindow(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.retryWindow = d }
}

// WithWatchInterval sets the mean watchdog period; each wait is jittered by a third.
func WithWatchInterval(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.watchInterval = d }
}

func WithConnectFunc(fn func(*Session)) ClientOption {
	return func(o *clientOptions) { o.connectFunc = fn }
}

func WithDisconnectFunc(fn func(sess *Session, code int, reason string)) ClientOption {
	return func(o *clientOptions) { o.disconnectFunc = fn }
}

func WithMessageHandler(fn MessageHandler) ClientOption {
	return func(o *clientOptions) { o.messageHandler = fn }
}

func WithDispatcherOptions(opts ...DispatcherOption) ClientOption {
	return func(o *clientOptions) { o.dispatcher = append(o.dispatcher, opts...) }
}

func WithClock(now func() time.Time) ClientOption {
	return func(o *clientOptions) { o.now = now }
}

type clientOptions struct {
	ctx            context.Context
	tlsConf        *tls.Config
	timeout        time.Duration
	endpoint       string
	path           string
	compression    bool
	tokens         TokenSource
	cookieName     string
	retryWindow    time.Duration
	watchInterval  time.Duration
	connectFunc    func(*Session)
	disconnectFunc func(*Session, int, string)
	messageHandler MessageHandler
	session        *SessionConfig
	dispatcher     []DispatcherOption
	now            func() time.Time
}

// Client is the relay connection manager. It owns one session at a time and
// the outbound dispatcher feeding it.
type Client struct {
	opts       *clientOptions
	ctx        context.Context
	cancel     context.CancelFunc
	url        *url.URL
	dial       dialFunc
	dispatcher *Dispatcher

	state     atomic.Int32
	nextRetry atomic.Int64 // unix nano
	dialing   atomic.Bool
	attempts  atomic.Int32
	token     atomic.Value // string

	mu      sync.RWMutex
	session *Session
}

// NewClient builds a disconnected client; nothing is dialed until TryConnect.
func NewClient(opts ...ClientOption) (*Client, error) {
	options := &clientOptions{
		ctx:           context.Background(),
		timeout:       10 * time.Second,
		endpoint:      "ws://127.0.0.1:8080",
		path:          "/connect",
		compression:   true,
		cookieName:    "token",
		retryWindow:   10 * time.Second,
		watchInterval: 7500 * time.Millisecond,
		session: &SessionConfig{
			WriteTimeout: 10 * time.Second,
			PingInterval: 15 * time.Second,
			ReadDeadline: 60 * time.Second,
			ReadLimit:    1 << 20,
		},
		now: time.Now,
	}
	for _, o := range opts {
		o(options)
	}

	u, err := parseUrl(options.endpoint, options.path, options.tlsConf == nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidURL, err)
	}

	tlsConf := options.tlsConf
	if u.Scheme == "wss" {
		if tlsConf == nil {
			tlsConf = &tls.Config{}
		} else {
			tlsConf = tlsConf.Clone()
		}
		if tlsConf.MinVersion < tls.VersionTLS12 {
			tlsConf.MinVersion = tls.VersionTLS12
		}
	}
	dialer := &websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  options.timeout,
		TLSClientConfig:   tlsConf,
		EnableCompression: options.compression,
	}

	c := &Client{
		opts: options,
		url:  u,
		dial: dialer.DialContext,
	}
	c.ctx, c.cancel = context.WithCancel(options.ctx)
	c.token.Store("")
	c.dispatcher = NewDispatcher(c.activeConn, options.dispatcher...)
	return c, nil
}

func parseUrl(endpoint, path string, insecure bool) (*url.URL, error) {
	if !strings.Contains(endpoint, "://") {
		if insecure {
			endpoint = "ws://" + endpoint
		} else {
			endpoint = "wss://" + endpoint
		}
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if path != "" {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	}
	return u, nil
}

func (c *Client) URL() string {
	return c.url.String()
}

func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) NextRetryAt() time.Time {
	return time.Unix(0, c.nextRetry.Load())
}

// Attempts counts dials started since the client was built.
func (c *Client) Attempts() int {
	return int(c.attempts.Load())
}

func (c *Client) Dispatcher() *Dispatcher {
	return c.dispatcher
}

func (c *Client) IsAlive() bool {
	return c.openSession() != nil
}

func (c *Client) openSession() *Session {
	if c == nil || c.State() != StateOpen {
		return nil
	}
	c.mu.RLock()
	sess := c.session
	c.mu.RUnlock()
	if sess == nil || sess.Closed() {
		return nil
	}
	return sess
}

func (c *Client) activeConn() Conn {
	if sess := c.openSession(); sess != nil {
		return sess
	}
	return nil
}

// TryConnect drops the current session, re-reads the token and connects.
// A missing or malformed token aborts without dialing.
func (c *Client) TryConnect() error {
	c.Close()

	token, err := c.readToken()
	if err != nil {
		log.Warnf("[relay] not connecting: %v", err)
		return err
	}
	if exp, ok := TokenExpiry(token); ok && exp.Before(c.opts.now()) {
		log.Warnf("[relay] token expired at %s, relay will likely refuse it", exp.Format(time.RFC3339))
	}
	c.token.Store(token)
	return c.Connect()
}

func (c *Client) readToken() (string, error) {
	if c.opts.tokens == nil {
		return "", fmt.Errorf("%w: no token source", ErrTokenInvalid)
	}
	token, err := c.opts.tokens.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	token = strings.TrimSpace(token)
	if err := ValidateToken(token); err != nil {
		return "", err
	}
	return token, nil
}

// Connect arms the retry gate and dials asynchronously with the cached token.
// At most one dial is in flight.
func (c *Client) Connect() error {
	c.nextRetry.Store(c.opts.now().Add(c.opts.retryWindow).UnixNano())

	if c.ctx.Err() != nil {
		return ErrClientClosed
	}
	token, _ := c.token.Load().(string)
	if token == "" {
		return ErrTokenInvalid
	}
	if c.IsAlive() || !c.dialing.CompareAndSwap(false, true) {
		return nil
	}

	c.state.Store(int32(StateConnecting))
	c.attempts.Add(1)

	header := http.Header{}
	header.Add("Cookie", (&http.Cookie{Name: c.opts.cookieName, Value: token}).String())
	go c.dialAsync(header)
	return nil
}

func (c *Client) dialAsync(header http.Header) {
	defer c.dialing.Store(false)
	defer xgo.RecoverFromError(func(any) {
		c.state.CompareAndSwap(int32(StateConnecting), int32(StateDisconnected))
	})

	ctx, cancel := context.WithTimeout(c.ctx, c.opts.timeout)
	defer cancel()

	conn, resp, err := c.dial(ctx, c.url.String(), header)
	if err != nil {
		c.state.CompareAndSwap(int32(StateConnecting), int32(StateDisconnected))
		if c.ctx.Err() != nil {
			log.Debugf("[relay] dial %q abandoned: client shut down", c.url)
			return
		}
		status := ""
		if resp != nil {
			status = resp.Status
		}
		log.Warnf("[relay] connect %q failed: %v %s (retry after %s)",
			c.url, err, status, c.NextRetryAt().Format(time.TimeOnly))
		return
	}
	if c.ctx.Err() != nil {
		_ = conn.Close()
		c.state.CompareAndSwap(int32(StateConnecting), int32(StateDisconnected))
		log.Debugf("[relay] late handshake from %q discarded", c.url)
		return
	}
	_ = NewSession(c, conn, c.opts.session)
}

// Send queues msg for the dispatcher. While disconnected it fails fast until
// the retry gate elapses, then triggers one reconnect. Failures fire the
// callback with false, except a full queue, which drops silently.
func (c *Client) Send(msg *Message) error {
	if !c.IsAlive() {
		if c.opts.now().Before(c.NextRetryAt()) {
			c.dispatcher.finish(msg, false)
			return ErrRetryGate
		}
		_ = c.Connect()
		if !c.IsAlive() {
			c.dispatcher.finish(msg, false)
			return ErrConnectionUnavailable
		}
	}
	if !c.dispatcher.Add(msg) {
		return ErrQueueFull
	}
	return nil
}

// Rearm clears the retry gate and reconnects, e.g. after the token changed.
func (c *Client) Rearm() error {
	c.nextRetry.Store(0)
	return c.TryConnect()
}

// Watch reconnects every 5-10s while disconnected and the gate has elapsed.
func (c *Client) Watch(ctx context.Context) error {
	timer := time.NewTimer(ext.Jitter(c.opts.watchInterval, 1.0/3))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		if c.State() == StateDisconnected && !c.opts.now().Before(c.NextRetryAt()) {
			_ = c.TryConnect()
		}
		timer.Reset(ext.Jitter(c.opts.watchInterval, 1.0/3))
	}
}

func (c *Client) OnSessionOpen(sess *Session) {
	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		sess.Close(websocket.CloseGoingAway, "client shut down")
		return
	}
	c.session = sess
	c.state.Store(int32(StateOpen))
	c.mu.Unlock()
	log.Infof("[relay] connected to %q session=%s", c.url, sess.ID())

	if c.opts.connectFunc != nil {
		safeCall(func() { c.opts.connectFunc(sess) })
	}
}

func (c *Client) OnSessionClose(sess *Session, code int) {
	c.mu.Lock()
	current := c.session == sess
	if current {
		c.session = nil
	}
	c.mu.Unlock()
	if !current {
		return
	}

	reason := c.handleClose(code)
	if c.opts.disconnectFunc != nil {
		safeCall(func() { c.opts.disconnectFunc(sess, code, reason) })
	}
}

// handleClose moves to Disconnected and clears stale outbound frames so they
// cannot leak into the next session.
func (c *Client) handleClose(code int) string {
	c.state.Store(int32(StateDisconnected))
	cleared := c.dispatcher.Clear()
	reason := CloseReason(code)
	if code == websocket.CloseNormalClosure {
		log.Infof("[relay] disconnected: %s (cleared=%d)", reason, cleared)
	} else {
		log.Warnf("[relay] disconnected: %s code=%d (cleared=%d)", reason, code, cleared)
	}
	return reason
}

func (c *Client) DispatchMessage(sess *Session, data []byte) {
	if c.opts.messageHandler == nil {
		return
	}
	safeCall(func() { c.opts.messageHandler(sess, data) })
}

func (c *Client) Close() {
	c.mu.RLock()
	s := c.session
	c.mu.RUnlock()
	if s != nil {
		s.Close(websocket.CloseNormalClosure, "client closing")
	}
}

// Shutdown closes the session and abandons any dial in flight. The client
// never connects again.
func (c *Client) Shutdown() {
	c.mu.Lock()
	c.cancel()
	s := c.session
	c.mu.Unlock()
	if s != nil {
		s.Close(websocket.CloseGoingAway, "client shutting down")
	}
	c.state.Store(int32(StateDisconnected))
}

// safeCall 安全执行回调
func safeCall(fn func()) {
	xgo.SafeCall(fn)
}
