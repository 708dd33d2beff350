package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/r3labs/diff/v3"
	"github.com/samber/lo"

	v1 "github.com/yola1107/puppeteer/api/relay/v1"
	"github.com/yola1107/puppeteer/internal/biz/deferred"
	"github.com/yola1107/puppeteer/internal/biz/host"
	"github.com/yola1107/puppeteer/internal/biz/registry"
	"github.com/yola1107/puppeteer/internal/conf"
	"github.com/yola1107/puppeteer/log"
	"github.com/yola1107/puppeteer/transport/websocket"
)

var ErrNotAssigned = errors.New("service: viewer has no actor")

func (s *Service) send(typ string, v any, onComplete func(ok bool)) error {
	b, err := json.Marshal(v)
	if err != nil {
		log.Errorf("[service] encode %q: %v", typ, err)
		return err
	}
	err = s.client.Send(&websocket.Message{Type: typ, Payload: b, OnComplete: onComplete})
	if err != nil {
		log.Debugf("[service] send %q: %v", typ, err)
	}
	return err
}

func (s *Service) sendHello() {
	_ = s.send(v1.TypeHello, v1.Hello{
		Type:     v1.TypeHello,
		Version:  v1.ProtocolVersion,
		Instance: s.instance,
		Mod:      conf.Name + "/" + conf.Version,
	}, nil)
}

func (s *Service) sendAssign(v registry.Viewer, actor registry.ActorID) {
	_ = s.send(v1.TypeAssign, v1.AssignReply{
		Type:     v1.TypeAssign,
		Viewer:   toWire(v),
		Colonist: string(actor),
	}, nil)
}

func (s *Service) sendEarned(v registry.Viewer, total int) {
	_ = s.send(v1.TypeEarned, v1.Earned{Type: v1.TypeEarned, Viewer: toWire(v), Amount: total}, nil)
}

func (s *Service) sendJobResult(v registry.Viewer, id string, res Result) {
	_ = s.send(v1.TypeJob, v1.JobResult{
		Type:   v1.TypeJob,
		Viewer: toWire(v),
		ID:     id,
		OK:     res.OK,
		Kind:   res.Kind.String(),
		Error:  res.Error,
		Result: res.Data,
	}, nil)
}

func (s *Service) roster() []v1.Colonist {
	bindings := s.reg.Bindings()
	return lo.Map(s.colony.Actors(), func(a host.Actor, _ int) v1.Colonist {
		c := v1.Colonist{ID: string(a.ID), Name: a.Name}
		if v, ok := bindings[a.ID]; ok {
			c.Controller = toWire(v)
		}
		return c
	})
}

// broadcastRoster sends the roster when it differs from the last one sent.
// Must run on the tick.
func (s *Service) broadcastRoster(force bool) {
	roster := s.roster()

	s.rosterMu.Lock()
	if !force && s.lastRoster != nil {
		changes, err := diff.Diff(s.lastRoster, roster)
		if err == nil && len(changes) == 0 {
			s.rosterMu.Unlock()
			return
		}
	}
	s.lastRoster = roster
	s.rosterMu.Unlock()

	_ = s.send(v1.TypeColonists, v1.Colonists{Type: v1.TypeColonists, Colonists: roster}, func(ok bool) {
		if ok {
			return
		}
		// 发送失败, 下次必须重发
		s.rosterMu.Lock()
		s.lastRoster = nil
		s.rosterMu.Unlock()
	})
}

// AddEarned credits a viewer and pushes the new total. Must run on the tick.
func (s *Service) AddEarned(key registry.ViewerKey, n int) (int, bool) {
	total, ok := s.reg.AddEarned(key, n)
	if !ok {
		return 0, false
	}
	a, _ := s.reg.ByViewer(key)
	s.sendEarned(a.Viewer, total)
	return total, true
}

// SendGrid pushes the occupancy grid around the viewer's actor. Must run on the tick.
func (s *Service) SendGrid(key registry.ViewerKey) error {
	a, ok := s.reg.ByViewer(key)
	if !ok || !a.Assigned() {
		return ErrNotAssigned
	}
	size := a.GridSize
	if size <= 0 {
		size = s.c.Core.GridSize
	}
	cells, err := s.colony.Grid(a.Actor, size)
	if err != nil {
		return fmt.Errorf("grid %q: %w", a.Actor, err)
	}
	return s.send(v1.TypeGrid, v1.Grid{Type: v1.TypeGrid, Viewer: toWire(a.Viewer), Size: size, Cells: cells}, nil)
}

// RequestPortrait resolves the actor's viewer on the next tick, then renders
// and uploads the portrait on the worker once the relay is reachable.
func (s *Service) RequestPortrait(actor registry.ActorID) {
	s.deferred.Add(deferred.KeyPortrait, func() {
		a, ok := s.reg.ByActor(actor)
		if !ok {
			return
		}
		viewer := a.Viewer
		s.worker.Post("portrait "+string(actor), func(ctx context.Context) error {
			png, err := s.colony.Portrait(ctx, actor)
			if err != nil {
				return err
			}
			return s.send(v1.TypePortrait, v1.Portrait{
				Type:     v1.TypePortrait,
				Viewer:   toWire(viewer),
				Colonist: string(actor),
				Image:    base64.StdEncoding.EncodeToString(png),
			}, nil)
		})
	})
}

// SendSnapshot pushes an areas, priorities or schedules snapshot. A nil
// viewer broadcasts.
func (s *Service) SendSnapshot(typ string, viewer *registry.Viewer, data any) error {
	switch typ {
	case v1.TypeAreas, v1.TypePriorities, v1.TypeSchedules:
	default:
		return fmt.Errorf("service: %q is not a snapshot type", typ)
	}
	snap := v1.Snapshot{Type: typ, Data: data}
	if viewer != nil {
		snap.Viewer = toWire(*viewer)
	}
	return s.send(typ, snap, nil)
}
