package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	v1 "github.com/yola1107/puppeteer/api/relay/v1"
	"github.com/yola1107/puppeteer/library/xgo"
	"github.com/yola1107/puppeteer/log"
)

var (
	ErrMalformedFrame = errors.New("router: malformed frame")
	ErrUnknownCommand = errors.New("router: unknown command")
)

const framePrefix = 128

// HandlerFunc handles one decoded frame. raw is the whole frame.
type HandlerFunc func(env *v1.Envelope, raw []byte) error

// Router decodes inbound frames and dispatches them by type.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	unknown  *rate.Limiter
}

func NewRouter() *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		unknown:  rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

func (r *Router) Handle(typ string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[typ] = h
}

// Dispatch never panics. Every failure is logged and returned.
func (r *Router) Dispatch(data []byte) (err error) {
	var env v1.Envelope
	if e := json.Unmarshal(data, &env); e != nil || env.Type == "" {
		if e == nil {
			e = errors.New("missing type")
		}
		log.Warnf("[router] malformed frame %q: %v", prefix(data), e)
		return fmt.Errorf("%w: %v", ErrMalformedFrame, e)
	}

	r.mu.RLock()
	h, ok := r.handlers[env.Type]
	r.mu.RUnlock()
	if !ok {
		if r.unknown.Allow() {
			log.Warnf("[router] unknown command %q ignored", env.Type)
		}
		return fmt.Errorf("%w: %q", ErrUnknownCommand, env.Type)
	}

	if !xgo.SafeCall(func() { err = h(&env, data) }) {
		err = fmt.Errorf("%w: %q handler panicked", ErrMalformedFrame, env.Type)
	}
	if err != nil {
		log.Warnf("[router] %q frame %q: %v", env.Type, prefix(data), err)
	}
	return err
}

func prefix(data []byte) string {
	if len(data) <= framePrefix {
		return string(data)
	}
	return string(data[:framePrefix]) + "..."
}

// decode unmarshals the per-type body.
func decode[T any](raw []byte) (*T, error) {
	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return v, nil
}
