package service

import (
	"errors"
	"fmt"

	v1 "github.com/yola1107/puppeteer/api/relay/v1"
	"github.com/yola1107/puppeteer/internal/biz/deferred"
	"github.com/yola1107/puppeteer/internal/biz/registry"
	"github.com/yola1107/puppeteer/log"
)

var errNoViewer = errors.New("frame has no valid viewer")

func (s *Service) registerHandlers() {
	s.router.Handle(v1.TypeWelcome, s.handleWelcome)
	s.router.Handle(v1.TypeJoin, s.handleJoin)
	s.router.Handle(v1.TypeLeave, s.handleLeave)
	s.router.Handle(v1.TypeAssign, s.handleAssign)
	s.router.Handle(v1.TypeState, s.handleState)
	s.router.Handle(v1.TypeJob, s.handleJob)
	s.router.Handle(v1.TypeStalling, s.handleStalling)
}

func viewerOf(env *v1.Envelope) (registry.Viewer, error) {
	v, ok := fromWire(env.Viewer)
	if !ok {
		return registry.Viewer{}, fmt.Errorf("%w: %s", ErrMalformedFrame, errNoViewer)
	}
	return v, nil
}

// handleWelcome sends the full snapshot once the relay is ready.
func (s *Service) handleWelcome(*v1.Envelope, []byte) error {
	s.deferred.Add(deferred.KeyAssign, func() {
		s.broadcastRoster(true)
		for _, a := range s.reg.Viewers() {
			if a.Earned > 0 {
				s.sendEarned(a.Viewer, a.Earned)
			}
		}
	})
	return nil
}

func (s *Service) handleJoin(env *v1.Envelope, _ []byte) error {
	v, err := viewerOf(env)
	if err != nil {
		return err
	}
	s.deferred.Add(deferred.KeyAssign, func() {
		a, created, err := s.reg.SetConnected(v, true)
		if err != nil {
			log.Warnf("[service] join %s: %v", v, err)
			return
		}
		if created {
			log.Infof("[service] viewer %s joined", v)
		}
		if a.Assigned() {
			s.colony.Nickname(a.Actor, a.Viewer.Name)
		}
	})
	return nil
}

func (s *Service) handleLeave(env *v1.Envelope, _ []byte) error {
	v, err := viewerOf(env)
	if err != nil {
		return err
	}
	s.deferred.Add(deferred.KeyAssign, func() {
		if _, _, err := s.reg.SetConnected(v, false); err != nil {
			log.Warnf("[service] leave %s: %v", v, err)
		}
	})
	return nil
}

func (s *Service) handleAssign(env *v1.Envelope, raw []byte) error {
	v, err := viewerOf(env)
	if err != nil {
		return err
	}
	req, err := decode[v1.Assign](raw)
	if err != nil {
		return err
	}
	actor := registry.ActorID(req.Colonist)
	s.deferred.Add(deferred.KeyAssign, func() { s.assign(v, actor) })
	return nil
}

// assign runs on the tick. Every viewer whose binding changed gets an echo.
func (s *Service) assign(v registry.Viewer, actor registry.ActorID) {
	prev, _ := s.reg.ByViewer(v.Key())

	if actor == "" {
		if old, ok := s.reg.Unassign(v.Key()); ok {
			s.colony.Nickname(old, "")
			log.Infof("[service] %s released %q", v, old)
		}
		s.sendAssign(v, "")
		s.broadcastRoster(false)
		return
	}

	if !s.colony.Alive(actor) {
		log.Warnf("[service] %s asked for unknown actor %q", v, actor)
		s.sendAssign(v, prev.Actor)
		return
	}

	displaced, err := s.reg.Assign(v, actor)
	if err != nil {
		log.Warnf("[service] assign %s: %v", v, err)
		return
	}
	if prev.Actor != "" && prev.Actor != actor {
		s.colony.Nickname(prev.Actor, "")
	}
	for _, d := range displaced {
		log.Infof("[service] %s displaced from %q by %s", d, actor, v)
		s.sendAssign(d, "")
	}
	a, _ := s.reg.ByViewer(v.Key())
	s.colony.Nickname(actor, a.Viewer.Name)
	s.reg.Touch(v.Key(), v1.TypeAssign, s.now())
	s.sendAssign(a.Viewer, actor)
	s.broadcastRoster(false)
}

func (s *Service) handleState(env *v1.Envelope, raw []byte) error {
	v, err := viewerOf(env)
	if err != nil {
		return err
	}
	req, err := decode[v1.State](raw)
	if err != nil {
		return err
	}
	if req.Key == "" {
		return fmt.Errorf("%w: state without key", ErrMalformedFrame)
	}
	s.deferred.Add(deferred.KeyState, func() {
		a, ok := s.reg.ByViewer(v.Key())
		if !ok || !a.Assigned() {
			log.Debugf("[service] state %q from unassigned %s", req.Key, v)
			return
		}
		if err := s.colony.SetState(a.Actor, req.Key, req.Val); err != nil {
			log.Warnf("[service] state %q on %q: %v", req.Key, a.Actor, err)
			return
		}
		s.reg.Touch(v.Key(), v1.TypeState, s.now())
	})
	return nil
}

func (s *Service) handleJob(env *v1.Envelope, raw []byte) error {
	v, err := viewerOf(env)
	if err != nil {
		return err
	}
	req, err := decode[v1.Job](raw)
	if err != nil {
		return err
	}
	if req.ID == "" || req.Method == "" {
		return fmt.Errorf("%w: job needs id and method", ErrMalformedFrame)
	}
	s.deferred.Add(deferred.KeyJob, func() {
		res := s.runJob(v, req)
		s.sendJobResult(v, req.ID, res)
	})
	return nil
}

func (s *Service) runJob(v registry.Viewer, req *v1.Job) Result {
	a, ok := s.reg.ByViewer(v.Key())
	if !ok || !a.Assigned() {
		return Failure(KindActorGone, errors.New("no actor assigned"))
	}
	if !s.colony.Alive(a.Actor) {
		return Failure(KindActorGone, fmt.Errorf("actor %q is gone", a.Actor))
	}
	s.reg.Touch(v.Key(), req.Method, s.now())
	return s.jobs.Execute(a.Actor, req.Method, req.Args)
}

func (s *Service) handleStalling(env *v1.Envelope, raw []byte) error {
	v, err := viewerOf(env)
	if err != nil {
		return err
	}
	req, err := decode[v1.Stalling](raw)
	if err != nil {
		return err
	}
	s.deferred.Add(deferred.KeyAssign, func() {
		s.reg.SetStalling(v.Key(), req.Stalling)
	})
	return nil
}
