package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/wire"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/errgroup"

	v1 "github.com/yola1107/puppeteer/api/relay/v1"
	"github.com/yola1107/puppeteer/internal/biz/deferred"
	"github.com/yola1107/puppeteer/internal/biz/host"
	"github.com/yola1107/puppeteer/internal/biz/registry"
	"github.com/yola1107/puppeteer/internal/biz/worker"
	"github.com/yola1107/puppeteer/internal/conf"
	"github.com/yola1107/puppeteer/log"
	"github.com/yola1107/puppeteer/transport/websocket"
)

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewService)

var _ host.Events = (*Service)(nil)

const saveTimeout = 5 * time.Second

var ErrStopped = errors.New("service: stopped")

// TokenWatcher supplies the relay token and reports when it changes.
type TokenWatcher interface {
	websocket.TokenSource
	Watch(ctx context.Context, onChange func()) error
}

// Service is constructed once per game session and owns every core component.
type Service struct {
	c        *conf.Bootstrap
	colony   host.Colony
	repo     registry.Repo
	tokens   TokenWatcher
	instance string
	now      func() time.Time

	reg      *registry.Registry
	deferred *deferred.Queue
	worker   *worker.Worker
	client   *websocket.Client
	router   *Router
	jobs     *Jobs

	rosterMu   sync.Mutex
	lastRoster []v1.Colonist

	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	started bool
	stopped bool
}

// NewService wires the core. Nothing runs until Start.
func NewService(c *conf.Bootstrap, colony host.Colony, repo registry.Repo, tokens TokenWatcher) (*Service, error) {
	instance, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("service: instance id: %w", err)
	}
	s := &Service{
		c:        c,
		colony:   colony,
		repo:     repo,
		tokens:   tokens,
		instance: instance,
		now:      time.Now,
		reg:      registry.New(),
		deferred: deferred.New(),
		router:   NewRouter(),
		jobs:     NewJobs(),
	}

	rc, cc := c.Relay, c.Core
	s.client, err = websocket.NewClient(
		websocket.WithEndpoint(rc.Endpoint),
		websocket.WithPath(rc.Path),
		websocket.WithTimeout(rc.HandshakeTimeout),
		websocket.WithHeartbeat(rc.ReadDeadline, rc.PingInterval, rc.WriteTimeout),
		websocket.WithReadLimit(rc.ReadLimit),
		websocket.WithCompression(!rc.DisableCompression),
		websocket.WithTokenSource(tokens),
		websocket.WithCookieName(rc.CookieName),
		websocket.WithRetryWindow(rc.RetryWindow),
		websocket.WithWatchInterval(rc.WatchInterval),
		websocket.WithConnectFunc(s.onConnect),
		websocket.WithDisconnectFunc(s.onDisconnect),
		websocket.WithMessageHandler(s.onMessage),
		websocket.WithDispatcherOptions(
			websocket.WithCapacity(cc.QueueCapacity),
			websocket.WithIdle(cc.DispatchIdle),
			websocket.WithDecayInterval(cc.DecayInterval),
			websocket.WithCallbackPool(cc.CallbackPool),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	s.worker = worker.New(s.client.IsAlive,
		worker.WithIdle(cc.WorkerIdle),
		worker.WithTTL(cc.WorkerTTL),
		worker.WithCapacity(cc.WorkerQueue),
	)
	s.registerHandlers()
	return s, nil
}

func (s *Service) Registry() *registry.Registry { return s.reg }
func (s *Service) Client() *websocket.Client     { return s.client }
func (s *Service) Router() *Router               { return s.router }

// RegisterJob exposes method to viewers.
func (s *Service) RegisterJob(method string, fn host.JobFunc) {
	s.jobs.Register(method, fn)
}

// Start loads persisted assignments, starts the background loops and connects.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if s.stopped {
		return ErrStopped
	}

	records, err := s.repo.Load(ctx)
	if err != nil {
		log.Errorf("[service] %v", err)
	} else if err := s.reg.Restore(records); err != nil {
		log.Warnf("[service] restore assignments: %v", err)
	}
	log.Infof("[service] %d assignments restored", len(s.reg.Records()))

	ctx, s.cancel = context.WithCancel(ctx)
	s.group, ctx = errgroup.WithContext(ctx)
	s.group.Go(func() error { return s.client.Dispatcher().Run(ctx) })
	s.group.Go(func() error { return s.worker.Run(ctx) })
	s.group.Go(func() error { return s.client.Watch(ctx) })
	s.group.Go(func() error {
		if err := s.tokens.Watch(ctx, s.onTokenChanged); err != nil {
			log.Warnf("[service] %v", err)
		}
		return nil
	})
	s.started = true

	s.connect(s.client.TryConnect)
	return nil
}

// Stop cancels every loop, abandons a pending dial and closes the relay
// session. A stopped service cannot be started again.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started, s.stopped = false, true
	s.cancel()
	s.client.Shutdown()
	err := s.group.Wait()
	s.client.Dispatcher().Clear()
	log.Infof("[service] stopped")
	return err
}

func (s *Service) connect(fn func() error) {
	if err := fn(); errors.Is(err, websocket.ErrTokenInvalid) {
		s.notify(fmt.Sprintf("Relay token missing or malformed (%s); not connecting.", err))
	}
}

func (s *Service) onTokenChanged() {
	s.connect(s.client.Rearm)
}

func (s *Service) onConnect(*websocket.Session) {
	s.sendHello()
}

func (s *Service) onDisconnect(_ *websocket.Session, code int, reason string) {
	log.Infof("[service] relay session ended: %s (%d)", reason, code)
	s.rosterMu.Lock()
	s.lastRoster = nil
	s.rosterMu.Unlock()
}

func (s *Service) onMessage(_ *websocket.Session, data []byte) {
	_ = s.router.Dispatch(data)
}

// notify hands a message to the player on the next tick.
func (s *Service) notify(msg string) {
	s.deferred.Add(deferred.KeyLog, func() { s.colony.Notify(msg) })
}

// ActorSpawned is called on the simulation tick.
func (s *Service) ActorSpawned(registry.ActorID) {
	s.broadcastRoster(false)
}

// ActorRemoved tears down the actor's binding on the next tick.
func (s *Service) ActorRemoved(id registry.ActorID) {
	s.deferred.Add(deferred.KeyAssign, func() {
		if v, ok := s.reg.RemoveActor(id); ok {
			log.Infof("[service] actor %q gone, %s unassigned", id, v)
			s.sendAssign(v, "")
		}
		s.broadcastRoster(false)
	})
}

// Saved flushes the registry to the store.
func (s *Service) Saved() {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	records := s.reg.Records()
	if err := s.repo.Save(ctx, records); err != nil {
		log.Errorf("[service] %v", err)
		return
	}
	log.Debugf("[service] %d assignments saved", len(records))
}

// Tick drains one deferred action per category.
func (s *Service) Tick() {
	s.deferred.ProcessAll()
}
