package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jinzhu/copier"
	"github.com/samber/lo"
)

var ErrInvalidViewer = errors.New("registry: invalid viewer")

// Assignment is the per viewer record. Actor is empty while unassigned.
type Assignment struct {
	Viewer        Viewer
	Actor         ActorID
	Connected     bool
	LastCommandAt time.Time
	LastCommand   string
	Earned        int
	GridSize      int
	Stalling      bool
}

func (a Assignment) Assigned() bool {
	return a.Actor != ""
}

// Registry keeps the viewer <-> actor bijection.
//
// Mutations are expected from the simulation context only; the lock makes
// reads from other goroutines safe.
type Registry struct {
	mu      sync.RWMutex
	viewers map[ViewerKey]*Assignment
	actors  map[ActorID]ViewerKey
}

func New() *Registry {
	return &Registry{
		viewers: make(map[ViewerKey]*Assignment),
		actors:  make(map[ActorID]ViewerKey),
	}
}

// Assign binds viewer to actor. Existing bindings of either side are torn
// down first. The displaced viewers (other than viewer itself) are returned.
func (r *Registry) Assign(viewer Viewer, actor ActorID) ([]Viewer, error) {
	if !viewer.Valid() {
		return nil, ErrInvalidViewer
	}
	if actor == "" {
		r.Unassign(viewer.Key())
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a := r.entry(viewer)
	if a.Actor == actor {
		return nil, nil
	}

	var displaced []Viewer
	if a.Actor != "" {
		delete(r.actors, a.Actor)
		a.Actor = ""
	}
	if key, ok := r.actors[actor]; ok {
		if other := r.viewers[key]; other != nil {
			other.Actor = ""
			other.Stalling = false
			displaced = append(displaced, other.Viewer)
		}
		delete(r.actors, actor)
	}

	a.Actor = actor
	r.actors[actor] = a.Viewer.Key()
	return displaced, nil
}

// Unassign removes both sides of the viewer's binding. The viewer entry itself
// stays so presence is kept.
func (r *Registry) Unassign(key ViewerKey) (ActorID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.viewers[key]
	if !ok || a.Actor == "" {
		return "", false
	}
	actor := a.Actor
	delete(r.actors, actor)
	a.Actor = ""
	a.Stalling = false
	return actor, true
}

// RemoveActor tears down the binding that references actor, if any.
func (r *Registry) RemoveActor(actor ActorID) (Viewer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.actors[actor]
	if !ok {
		return Viewer{}, false
	}
	delete(r.actors, actor)
	a := r.viewers[key]
	if a == nil {
		return Viewer{}, false
	}
	a.Actor = ""
	a.Stalling = false
	return a.Viewer, true
}

// SetConnected records presence. An unseen viewer gets an entry; a known one
// is updated in place, including its display metadata.
func (r *Registry) SetConnected(viewer Viewer, connected bool) (Assignment, bool, error) {
	if !viewer.Valid() {
		return Assignment{}, false, ErrInvalidViewer
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, existed := r.viewers[viewer.Key()]
	a := r.entry(viewer)
	a.Connected = connected
	if !connected {
		a.Stalling = false
	}
	return *a, !existed, nil
}

// entry returns the viewer's record, creating it and refreshing metadata.
func (r *Registry) entry(viewer Viewer) *Assignment {
	a, ok := r.viewers[viewer.Key()]
	if !ok {
		a = &Assignment{Viewer: viewer}
		r.viewers[viewer.Key()] = a
		return a
	}
	if viewer.Name != "" {
		a.Viewer.Name = viewer.Name
	}
	if viewer.Picture != "" {
		a.Viewer.Picture = viewer.Picture
	}
	return a
}

func (r *Registry) update(key ViewerKey, fn func(a *Assignment)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.viewers[key]
	if !ok {
		return false
	}
	fn(a)
	return true
}

// Touch records the last command a viewer issued.
func (r *Registry) Touch(key ViewerKey, command string, at time.Time) bool {
	return r.update(key, func(a *Assignment) {
		a.LastCommand = command
		a.LastCommandAt = at
	})
}

func (r *Registry) SetStalling(key ViewerKey, stalling bool) bool {
	return r.update(key, func(a *Assignment) { a.Stalling = stalling && a.Actor != "" })
}

func (r *Registry) SetGridSize(key ViewerKey, size int) bool {
	return r.update(key, func(a *Assignment) { a.GridSize = max(size, 0) })
}

// AddEarned adds n to the viewer's counter and returns the new total.
func (r *Registry) AddEarned(key ViewerKey, n int) (int, bool) {
	var total int
	ok := r.update(key, func(a *Assignment) {
		a.Earned += n
		total = a.Earned
	})
	return total, ok
}

func (r *Registry) ByViewer(key ViewerKey) (Assignment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.viewers[key]
	if !ok {
		return Assignment{}, false
	}
	return *a, true
}

func (r *Registry) ByActor(actor ActorID) (Assignment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.actors[actor]
	if !ok {
		return Assignment{}, false
	}
	a, ok := r.viewers[key]
	if !ok {
		return Assignment{}, false
	}
	return *a, true
}

// Viewers returns a copy of every entry ordered by viewer key.
func (r *Registry) Viewers() []Assignment {
	r.mu.RLock()
	out := lo.MapToSlice(r.viewers, func(_ ViewerKey, a *Assignment) Assignment { return *a })
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b Assignment) int {
		return strings.Compare(a.Viewer.Key().String(), b.Viewer.Key().String())
	})
	return out
}

// Bindings maps every bound actor to its viewer.
func (r *Registry) Bindings() map[ActorID]Viewer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[ActorID]Viewer, len(r.actors))
	for actor, key := range r.actors {
		out[actor] = r.viewers[key].Viewer
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.viewers)
}

// Record is the persisted form of a bound assignment.
type Record struct {
	Actor         ActorID   `yaml:"actor"`
	Viewer        Viewer    `yaml:"viewer"`
	Earned        int       `yaml:"earned,omitempty"`
	GridSize      int       `yaml:"gridSize,omitempty"`
	LastCommand   string    `yaml:"lastCommand,omitempty"`
	LastCommandAt time.Time `yaml:"lastCommandAt,omitempty"`
}

// Records snapshots every bound assignment, ordered by actor.
func (r *Registry) Records() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, len(r.actors))
	for _, key := range r.actors {
		var rec Record
		_ = copier.Copy(&rec, r.viewers[key])
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b Record) int { return strings.Compare(string(a.Actor), string(b.Actor)) })
	return out
}

// Restore replaces the registry content with records. Restored viewers start
// disconnected. Records that would break the bijection are skipped and
// reported.
func (r *Registry) Restore(records []Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.viewers = make(map[ViewerKey]*Assignment, len(records))
	r.actors = make(map[ActorID]ViewerKey, len(records))

	var errs []error
	for _, rec := range records {
		key := rec.Viewer.Key()
		switch {
		case !rec.Viewer.Valid() || rec.Actor == "":
			errs = append(errs, fmt.Errorf("record %q/%s: %w", rec.Actor, key, ErrInvalidViewer))
			continue
		case r.viewers[key] != nil:
			errs = append(errs, fmt.Errorf("record %q: viewer %s bound twice", rec.Actor, key))
			continue
		}
		if _, dup := r.actors[rec.Actor]; dup {
			errs = append(errs, fmt.Errorf("record %q: actor bound twice", rec.Actor))
			continue
		}
		a := &Assignment{}
		_ = copier.Copy(a, &rec)
		r.viewers[key] = a
		r.actors[rec.Actor] = key
	}
	return errors.Join(errs...)
}

// Verify checks that both maps agree.
func (r *Registry) Verify() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bound := 0
	for key, a := range r.viewers {
		if a.Viewer.Key() != key {
			return fmt.Errorf("viewer %s stored under %s", a.Viewer.Key(), key)
		}
		if a.Actor == "" {
			continue
		}
		bound++
		if back, ok := r.actors[a.Actor]; !ok || back != key {
			return fmt.Errorf("viewer %s -> actor %q -> %v", key, a.Actor, back)
		}
	}
	if bound != len(r.actors) {
		return fmt.Errorf("%d bound viewers, %d bound actors", bound, len(r.actors))
	}
	return nil
}

// Repo persists records as one durable blob.
type Repo interface {
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, records []Record) error
}
