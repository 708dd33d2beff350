package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yola1107/puppeteer/internal/biz/host"
	"github.com/yola1107/puppeteer/internal/biz/registry"
	"github.com/yola1107/puppeteer/internal/service"
	"github.com/yola1107/puppeteer/library/ext"
	"github.com/yola1107/puppeteer/log"
)

const (
	mapSize      = 64
	earnEvery    = 600 // ticks
	gridEvery    = 60
	turnoverRate = 3600
)

type pawn struct {
	id      registry.ActorID
	name    string
	nick    string
	x, y    int
	drafted bool
	hostile bool
}

// demoColony is a toy simulation: pawns wander a square map.
type demoColony struct {
	mu    sync.Mutex
	pawns map[registry.ActorID]*pawn
	order []registry.ActorID
	seq   int
	ticks int
}

var _ host.Colony = (*demoColony)(nil)

func newColony(n int) *demoColony {
	c := &demoColony{pawns: make(map[registry.ActorID]*pawn)}
	for i := 0; i < n; i++ {
		c.spawn()
	}
	return c
}

func (c *demoColony) spawn() registry.ActorID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	id := registry.ActorID("pawn-" + strconv.Itoa(c.seq))
	c.pawns[id] = &pawn{
		id:   id,
		name: fmt.Sprintf("Pawn %d", c.seq),
		x:    ext.RandInt(0, mapSize),
		y:    ext.RandInt(0, mapSize),
	}
	c.order = append(c.order, id)
	return id
}

func (c *demoColony) kill(id registry.ActorID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pawns[id]; !ok {
		return false
	}
	delete(c.pawns, id)
	for i, o := range c.order {
		if o == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

func (c *demoColony) Actors() []host.Actor {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]host.Actor, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, host.Actor{ID: id, Name: c.pawns[id].name})
	}
	return out
}

func (c *demoColony) Alive(id registry.ActorID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pawns[id]
	return ok
}

func (c *demoColony) SetState(id registry.ActorID, key string, val []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pawns[id]
	if !ok {
		return host.ErrActorGone
	}
	switch key {
	case "hostile":
		b, err := strconv.ParseBool(string(val))
		if err != nil {
			return fmt.Errorf("%w: %v", host.ErrBadArguments, err)
		}
		p.hostile = b
	default:
		return fmt.Errorf("%w: %q", host.ErrUnknownKey, key)
	}
	return nil
}

func (c *demoColony) Nickname(id registry.ActorID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pawns[id]; ok {
		p.nick = name
	}
}

// Grid marks the actor '@', other pawns 'p', everything else '.'.
func (c *demoColony) Grid(id registry.ActorID, size int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	me, ok := c.pawns[id]
	if !ok {
		return "", host.ErrActorGone
	}
	occupied := make(map[[2]int]bool, len(c.pawns))
	for _, p := range c.pawns {
		occupied[[2]int{p.x, p.y}] = true
	}
	half := size / 2
	var sb strings.Builder
	sb.Grow(size * size)
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			x, y := me.x+dx, me.y+dy
			switch {
			case dx == 0 && dy == 0:
				sb.WriteByte('@')
			case x < 0 || y < 0 || x >= mapSize || y >= mapSize:
				sb.WriteByte('#')
			case occupied[[2]int{x, y}]:
				sb.WriteByte('p')
			default:
				sb.WriteByte('.')
			}
		}
	}
	return sb.String(), nil
}

// Portrait renders a flat 32x32 tile tinted by the pawn's id.
func (c *demoColony) Portrait(_ context.Context, id registry.ActorID) ([]byte, error) {
	if !c.Alive(id) {
		return nil, host.ErrActorGone
	}
	var h uint8
	for _, r := range string(id) {
		h = h*31 + uint8(r)
	}
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	fill := color.RGBA{R: h, G: 255 - h, B: 128, A: 255}
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *demoColony) Notify(msg string) {
	log.Warnf("[colony] %s", msg)
}

func (c *demoColony) registerJobs(svc *service.Service) {
	svc.RegisterJob("draft", func(id registry.ActorID, args []string) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: draft wants on|off", host.ErrBadArguments)
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		p, ok := c.pawns[id]
		if !ok {
			return nil, host.ErrActorGone
		}
		p.drafted = args[0] == "on"
		return map[string]bool{"drafted": p.drafted}, nil
	})
	svc.RegisterJob("position", func(id registry.ActorID, _ []string) (any, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		p, ok := c.pawns[id]
		if !ok {
			return nil, host.ErrActorGone
		}
		return []int{p.x, p.y}, nil
	})
}

func (c *demoColony) wander() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pawns {
		if p.drafted {
			continue
		}
		p.x = min(max(p.x+ext.RandInt(-1, 2), 0), mapSize-1)
		p.y = min(max(p.y+ext.RandInt(-1, 2), 0), mapSize-1)
	}
}

// run is the simulation loop. Every host event is raised from here.
func (c *demoColony) run(ctx context.Context, svc *service.Service, tick, autosave time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	saves := time.NewTicker(autosave)
	defer saves.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-saves.C:
			svc.Saved()
			continue
		case <-ticker.C:
		}

		c.ticks++
		c.wander()
		svc.Tick()

		if c.ticks%turnoverRate == 0 {
			c.turnover(svc)
		}
		if c.ticks%gridEvery == 0 || c.ticks%earnEvery == 0 {
			for _, a := range svc.Registry().Viewers() {
				if !a.Assigned() || !a.Connected {
					continue
				}
				if c.ticks%gridEvery == 0 {
					_ = svc.SendGrid(a.Viewer.Key())
				}
				if c.ticks%earnEvery == 0 {
					svc.AddEarned(a.Viewer.Key(), 1)
					svc.RequestPortrait(a.Actor)
				}
			}
		}
	}
}

// turnover removes the oldest pawn and spawns a new one.
func (c *demoColony) turnover(svc *service.Service) {
	actors := c.Actors()
	if len(actors) > 0 && c.kill(actors[0].ID) {
		svc.ActorRemoved(actors[0].ID)
	}
	svc.ActorSpawned(c.spawn())
}
