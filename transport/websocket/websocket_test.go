package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	nws "nhooyr.io/websocket"
)

const goodToken = "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJjb2xvbnkifQ.c2ln"

type tokenFunc func() (string, error)

func (f tokenFunc) Token() (string, error) { return f() }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestCloseReason(t *testing.T) {
	tests := []struct {
		code     int
		contains string
	}{
		{1000, "normally"},
		{1001, "went away"},
		{1006, "abnormally"},
		{1009, "too large"},
		{1015, "TLS"},
		{4000, "unknown(4000)"},
	}
	for _, tt := range tests {
		assert.Contains(t, CloseReason(tt.code), tt.contains)
	}
}

func TestValidateToken(t *testing.T) {
	for _, bad := range []string{"", "   ", "abc", "a.b", "a.b.c.d"} {
		err := ValidateToken(bad)
		assert.ErrorIs(t, err, ErrTokenInvalid, "token %q", bad)
	}
	assert.NoError(t, ValidateToken("a.b.c"))
	assert.NoError(t, ValidateToken(goodToken))
}

func TestTokenExpiry(t *testing.T) {
	_, ok := TokenExpiry("a.b.c")
	assert.False(t, ok)

	// {"alg":"none"} . {"exp":1700000000}
	exp, ok := TokenExpiry("eyJhbGciOiJub25lIn0.eyJleHAiOjE3MDAwMDAwMDB9.")
	require.True(t, ok)
	assert.Equal(t, int64(1700000000), exp.Unix())
}

func TestParseUrl(t *testing.T) {
	u, err := parseUrl("relay.example.com", "/connect", false)
	require.NoError(t, err)
	assert.Equal(t, "wss://relay.example.com/connect", u.String())

	u, err = parseUrl("http://127.0.0.1:9000/", "connect", true)
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:9000/connect", u.String())

	_, err = parseUrl("ftp://relay", "/connect", true)
	assert.Error(t, err)
}

func TestTryConnectRejectsMalformedToken(t *testing.T) {
	sources := map[string]TokenSource{
		"missing file":  tokenFunc(func() (string, error) { return "", errors.New("open token: no such file") }),
		"zero segments": StaticToken(""),
		"one segment":   StaticToken("abc"),
		"two segments":  StaticToken("abc.def"),
	}
	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			c, err := NewClient(WithTokenSource(src))
			require.NoError(t, err)
			var dials atomic.Int32
			c.dial = func(context.Context, string, http.Header) (*websocket.Conn, *http.Response, error) {
				dials.Add(1)
				return nil, nil, errors.New("unreachable")
			}

			err = c.TryConnect()
			assert.ErrorIs(t, err, ErrTokenInvalid)
			assert.Equal(t, StateDisconnected, c.State())
			assert.Zero(t, c.Attempts())
			assert.Zero(t, dials.Load())
		})
	}

	c, err := NewClient()
	require.NoError(t, err)
	assert.ErrorIs(t, c.TryConnect(), ErrTokenInvalid)
}

func TestReconnectGate(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c, err := NewClient(WithTokenSource(StaticToken(goodToken)), WithClock(clock.Now))
	require.NoError(t, err)

	var dials atomic.Int32
	c.dial = func(context.Context, string, http.Header) (*websocket.Conn, *http.Response, error) {
		dials.Add(1)
		return nil, nil, errors.New("connection refused")
	}

	require.NoError(t, c.TryConnect())
	require.Eventually(t, func() bool {
		return dials.Load() == 1 && c.State() == StateDisconnected && !c.dialing.Load()
	}, time.Second, 5*time.Millisecond)
	assert.True(t, clock.Now().Add(10*time.Second).Equal(c.NextRetryAt()))

	var failed atomic.Int32
	msg := &Message{Type: "hello", OnComplete: func(ok bool) {
		if !ok {
			failed.Add(1)
		}
	}}
	assert.ErrorIs(t, c.Send(msg), ErrRetryGate)
	clock.Advance(9 * time.Second)
	assert.ErrorIs(t, c.Send(msg), ErrRetryGate)
	assert.Equal(t, 1, c.Attempts())
	assert.Equal(t, int32(2), failed.Load())

	clock.Advance(2 * time.Second)
	assert.ErrorIs(t, c.Send(msg), ErrConnectionUnavailable)
	assert.Equal(t, 2, c.Attempts())
	assert.Equal(t, int32(3), failed.Load())
	require.Eventually(t, func() bool { return dials.Load() == 2 }, time.Second, 5*time.Millisecond)

	// the new window is armed again
	assert.ErrorIs(t, c.Send(msg), ErrRetryGate)
	assert.Equal(t, 2, c.Attempts())
}

func TestHandleCloseClearsQueue(t *testing.T) {
	c, err := NewClient()
	require.NoError(t, err)
	c.state.Store(int32(StateOpen))

	var failed atomic.Int32
	for i := 0; i < 3; i++ {
		require.True(t, c.Dispatcher().Add(&Message{Type: "earned", OnComplete: func(ok bool) {
			if !ok {
				failed.Add(1)
			}
		}}))
	}

	var reason string
	require.NotPanics(t, func() { reason = c.handleClose(1006) })
	assert.Contains(t, reason, "abnormally")
	assert.Equal(t, StateDisconnected, c.State())
	assert.Zero(t, c.Dispatcher().Len())
	assert.Equal(t, int32(3), failed.Load())
}

func TestClientRelayRoundTrip(t *testing.T) {
	gotHello := make(chan string, 1)
	gotCookie := make(chan string, 1)
	kill := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("/connect", func(w http.ResponseWriter, r *http.Request) {
		if ck, err := r.Cookie("token"); err == nil {
			gotCookie <- ck.Value
		}
		conn, err := nws.Accept(w, r, &nws.AcceptOptions{CompressionMode: nws.CompressionDisabled})
		if err != nil {
			return
		}
		ctx := r.Context()
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		gotHello <- string(data)
		_ = conn.Write(ctx, nws.MessageText, []byte(`{"type":"welcome"}`))
		<-kill
		_ = conn.CloseNow()
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	inbound := make(chan string, 4)
	closed := make(chan string, 1)

	var c *Client
	c, err := NewClient(
		WithEndpoint(srv.URL),
		WithCompression(false),
		WithTokenSource(StaticToken(goodToken)),
		WithConnectFunc(func(*Session) {
			_ = c.Send(&Message{Type: "hello", Payload: []byte(`{"type":"hello"}`)})
		}),
		WithMessageHandler(func(_ *Session, data []byte) { inbound <- string(data) }),
		WithDisconnectFunc(func(_ *Session, _ int, reason string) { closed <- reason }),
	)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(c.URL(), "/connect"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Dispatcher().Run(ctx) }()

	require.NoError(t, c.TryConnect())
	assert.Equal(t, goodToken, recv(t, gotCookie))
	assert.JSONEq(t, `{"type":"hello"}`, recv(t, gotHello))
	assert.JSONEq(t, `{"type":"welcome"}`, recv(t, inbound))
	assert.Equal(t, StateOpen, c.State())

	close(kill)
	assert.Contains(t, recv(t, closed), "abnormally")
	assert.Equal(t, StateDisconnected, c.State())
	assert.False(t, c.IsAlive())
}

func TestShutdownDiscardsLateHandshake(t *testing.T) {
	accepted := make(chan string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/connect", func(w http.ResponseWriter, r *http.Request) {
		conn, err := nws.Accept(w, r, &nws.AcceptOptions{CompressionMode: nws.CompressionDisabled})
		if err != nil {
			return
		}
		accepted <- "ok"
		_, _, _ = conn.Read(r.Context())
		_ = conn.CloseNow()
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var opened atomic.Bool
	c, err := NewClient(
		WithEndpoint(srv.URL),
		WithCompression(false),
		WithTokenSource(StaticToken(goodToken)),
		WithConnectFunc(func(*Session) { opened.Store(true) }),
	)
	require.NoError(t, err)

	// handshake completes only after Shutdown, ignoring cancellation
	release := make(chan struct{})
	dial := c.dial
	c.dial = func(_ context.Context, u string, h http.Header) (*websocket.Conn, *http.Response, error) {
		<-release
		return dial(context.Background(), u, h)
	}

	require.NoError(t, c.TryConnect())
	assert.Equal(t, StateConnecting, c.State())
	c.Shutdown()
	close(release)

	assert.Equal(t, "ok", recv(t, accepted))
	require.Eventually(t, func() bool { return !c.dialing.Load() }, 3*time.Second, 5*time.Millisecond)
	assert.False(t, opened.Load())
	assert.False(t, c.IsAlive())
	assert.Equal(t, StateDisconnected, c.State())
	assert.ErrorIs(t, c.Connect(), ErrClientClosed)
}

func recv(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for relay")
		return ""
	}
}
