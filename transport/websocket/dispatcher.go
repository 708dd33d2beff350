package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/yola1107/puppeteer/library/queue"
	"github.com/yola1107/puppeteer/library/work"
	"github.com/yola1107/puppeteer/log"
)

const (
	DefaultQueueCapacity = 200
	defaultIdle          = 10 * time.Millisecond
	defaultDecayInterval = 500 * time.Millisecond
	defaultCallbackPool  = 4
)

// Message is one outbound frame. OnComplete, when set, fires exactly once with
// the delivery outcome, except when Add rejects the message on a full queue.
type Message struct {
	Type       string
	Payload    []byte
	OnComplete func(ok bool)
}

// Conn is the write side of an open relay session.
type Conn interface {
	WriteMessage(data []byte) error
}

type DispatcherOption func(*Dispatcher)

func WithCapacity(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.capacity = n
		}
	}
}

func WithIdle(idle time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if idle > 0 {
			d.idle = idle
		}
	}
}

func WithDecayInterval(interval time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.decayInterval = interval
		}
	}
}

func WithCallbackPool(size int) DispatcherOption {
	return func(d *Dispatcher) {
		if size > 0 {
			d.callbackPool = size
		}
	}
}

// Dispatcher owns the bounded outbound queue and its single consumer loop.
type Dispatcher struct {
	capacity      int
	idle          time.Duration
	decayInterval time.Duration
	callbackPool  int

	queue  *queue.Bounded[*Message]
	active func() Conn
	exec   atomic.Pointer[work.Store]

	errors  atomic.Int32
	winMu   sync.Mutex
	window  []time.Duration
	winNext int
	winLen  int
	winSum  time.Duration

	dropLimiter *rate.Limiter
	latencyHist metric.Float64Histogram
	errCounter  metric.Int64Counter
	dropCounter metric.Int64Counter
}

func NewDispatcher(active func() Conn, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		capacity:      DefaultQueueCapacity,
		idle:          defaultIdle,
		decayInterval: defaultDecayInterval,
		callbackPool:  defaultCallbackPool,
		active:        active,
		dropLimiter:   rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for _, o := range opts {
		o(d)
	}
	d.queue = queue.NewBounded[*Message](d.capacity)
	d.window = make([]time.Duration, max(d.capacity/4, 1))

	meter := otel.Meter("github.com/yola1107/puppeteer/transport/websocket")
	d.latencyHist, _ = meter.Float64Histogram("relay.outbound.latency",
		metric.WithUnit("ms"), metric.WithDescription("outbound frame write latency"))
	d.errCounter, _ = meter.Int64Counter("relay.outbound.errors",
		metric.WithDescription("outbound frames that failed to send"))
	d.dropCounter, _ = meter.Int64Counter("relay.outbound.dropped",
		metric.WithDescription("outbound frames rejected by a full queue"))
	_, _ = meter.Int64ObservableGauge("relay.callback.running",
		metric.WithDescription("completion callbacks executing on the callback pool"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(d.CallbackStatus().Running))
			return nil
		}))
	return d
}

// Add never blocks. A full queue drops msg without invoking its callback.
func (d *Dispatcher) Add(msg *Message) bool {
	if msg == nil {
		return false
	}
	if !d.queue.TryPush(msg) {
		d.dropCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", msg.Type)))
		if d.dropLimiter.Allow() {
			log.Warnf("[relay] outbound queue full (%d), dropping %q", d.capacity, msg.Type)
		}
		return false
	}
	return true
}

func (d *Dispatcher) Len() int {
	return d.queue.Len()
}

func (d *Dispatcher) Cap() int {
	return d.capacity
}

// Errors is the decaying error counter.
func (d *Dispatcher) Errors() int {
	return int(d.errors.Load())
}

// AverageLatency is the mean over the sliding window.
func (d *Dispatcher) AverageLatency() time.Duration {
	d.winMu.Lock()
	defer d.winMu.Unlock()
	if d.winLen == 0 {
		return 0
	}
	return d.winSum / time.Duration(d.winLen)
}

// CallbackStatus reports the completion callback pool; zero while Run is not active.
func (d *Dispatcher) CallbackStatus() work.PoolStatus {
	if ws := d.exec.Load(); ws != nil {
		return ws.Status()
	}
	return work.PoolStatus{}
}

// Clear drops every queued message and fails its callback.
func (d *Dispatcher) Clear() int {
	return d.queue.Drain(func(m *Message) { d.finish(m, false) })
}

// Run is the single consumer. It returns when ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	ws := work.NewStore(ctx, d.callbackPool)
	if err := ws.Start(); err != nil {
		return err
	}
	d.exec.Store(ws)
	defer func() {
		d.exec.Store(nil)
		ws.Stop()
	}()
	ws.Every(d.decayInterval, d.decay)

	idle := time.NewTimer(d.idle)
	defer idle.Stop()
	for {
		if ctx.Err() != nil {
			return nil
		}
		msg, ok := d.queue.Pop()
		if ok {
			d.deliver(msg)
			continue
		}
		idle.Reset(d.idle)
		select {
		case <-ctx.Done():
			return nil
		case <-idle.C:
		}
	}
}

func (d *Dispatcher) deliver(msg *Message) {
	conn := d.active()
	if conn == nil {
		d.fail()
		d.finish(msg, false)
		return
	}
	start := time.Now()
	err := conn.WriteMessage(msg.Payload)
	d.observe(time.Since(start))
	if err != nil {
		log.Warnf("[relay] send %q failed: %v", msg.Type, err)
		d.fail()
	}
	d.finish(msg, err == nil)
}

func (d *Dispatcher) fail() {
	d.errors.Add(1)
	d.errCounter.Add(context.Background(), 1)
}

// observe 成功与写失败都计入延迟窗口
func (d *Dispatcher) observe(latency time.Duration) {
	d.winMu.Lock()
	if d.winLen == len(d.window) {
		d.winSum -= d.window[d.winNext]
	} else {
		d.winLen++
	}
	d.window[d.winNext] = latency
	d.winSum += latency
	d.winNext = (d.winNext + 1) % len(d.window)
	d.winMu.Unlock()

	d.latencyHist.Record(context.Background(), float64(latency)/float64(time.Millisecond))
}

// decay 错误计数每个周期衰减 1
func (d *Dispatcher) decay() {
	for {
		v := d.errors.Load()
		if v <= 0 || d.errors.CompareAndSwap(v, v-1) {
			return
		}
	}
}

func (d *Dispatcher) finish(msg *Message, ok bool) {
	if msg == nil || msg.OnComplete == nil {
		return
	}
	cb := msg.OnComplete
	if ws := d.exec.Load(); ws != nil {
		work.ExecuteAsync(ws, func() { cb(ok) })
		return
	}
	work.ExecuteAsync(inline{}, func() { cb(ok) })
}

type inline struct{}

func (inline) Post(job func()) { job() }
