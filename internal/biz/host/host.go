// Package host declares what the core needs from the simulation it runs in.
package host

import (
	"context"
	"errors"

	"github.com/yola1107/puppeteer/internal/biz/registry"
)

var (
	ErrActorGone    = errors.New("host: actor gone")
	ErrBadArguments = errors.New("host: bad arguments")
	ErrUnknownKey   = errors.New("host: unknown state key")
	ErrUnsupported  = errors.New("host: unsupported")
)

// Actor is a roster entry.
type Actor struct {
	ID   registry.ActorID
	Name string
}

// Colony is implemented by the host. Every method except Portrait and
// Notify is only called from the simulation tick.
type Colony interface {
	Actors() []Actor
	Alive(id registry.ActorID) bool
	SetState(id registry.ActorID, key string, val []byte) error
	// Nickname shows the viewer's name on the actor; empty clears it.
	Nickname(id registry.ActorID, name string)
	// Grid returns size*size occupancy cells around the actor.
	Grid(id registry.ActorID, size int) (string, error)
	// Portrait renders the actor as PNG bytes.
	Portrait(ctx context.Context, id registry.ActorID) ([]byte, error)
	// Notify surfaces local configuration problems to the player.
	Notify(msg string)
}

// JobFunc is a method a viewer may invoke on its actor.
type JobFunc func(id registry.ActorID, args []string) (any, error)

// Events is the subscription surface the host drives.
type Events interface {
	ActorSpawned(id registry.ActorID)
	ActorRemoved(id registry.ActorID)
	Saved()
	Tick()
}
