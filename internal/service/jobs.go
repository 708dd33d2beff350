package service

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/yola1107/puppeteer/internal/biz/host"
	"github.com/yola1107/puppeteer/internal/biz/registry"
	"github.com/yola1107/puppeteer/library/xgo"
)

// ErrorKind classifies a failed job.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindUnknownMethod
	KindBadArguments
	KindActorGone
	KindFailed
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return ""
	case KindUnknownMethod:
		return "unknown_method"
	case KindBadArguments:
		return "bad_arguments"
	case KindActorGone:
		return "actor_gone"
	case KindFailed:
		return "failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the outcome of a job.
type Result struct {
	OK    bool
	Kind  ErrorKind
	Error string
	Data  any
}

func Success(data any) Result {
	return Result{OK: true, Data: data}
}

func Failure(kind ErrorKind, err error) Result {
	r := Result{Kind: kind}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Jobs is the method table viewers may call on their actor.
type Jobs struct {
	mu    sync.RWMutex
	funcs map[string]host.JobFunc
}

func NewJobs() *Jobs {
	return &Jobs{funcs: make(map[string]host.JobFunc)}
}

func (j *Jobs) Register(method string, fn host.JobFunc) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.funcs[method] = fn
}

func (j *Jobs) Methods() []string {
	j.mu.RLock()
	methods := lo.Keys(j.funcs)
	j.mu.RUnlock()
	slices.Sort(methods)
	return methods
}

// Execute runs method for actor. Panics become KindFailed.
func (j *Jobs) Execute(actor registry.ActorID, method string, args []string) Result {
	j.mu.RLock()
	fn, ok := j.funcs[method]
	j.mu.RUnlock()
	if !ok {
		return Failure(KindUnknownMethod, fmt.Errorf("unknown method %q", method))
	}

	var (
		data any
		err  error
	)
	if !xgo.SafeCall(func() { data, err = fn(actor, args) }) {
		return Failure(KindFailed, fmt.Errorf("%s panicked", method))
	}
	switch {
	case err == nil:
		return Success(data)
	case errors.Is(err, host.ErrBadArguments):
		return Failure(KindBadArguments, err)
	case errors.Is(err, host.ErrActorGone):
		return Failure(KindActorGone, err)
	default:
		return Failure(KindFailed, err)
	}
}
