package registry

import (
	"fmt"
)

// ViewerKey is the identity of a viewer.
type ViewerKey struct {
	Service string
	ID      string
}

func (k ViewerKey) String() string {
	return fmt.Sprintf("%s:%s", k.Service, k.ID)
}

// Viewer is a remote identity. Name and Picture are display metadata only.
type Viewer struct {
	Service string `yaml:"service"`
	ID      string `yaml:"id"`
	Name    string `yaml:"name,omitempty"`
	Picture string `yaml:"picture,omitempty"`
}

func (v Viewer) Key() ViewerKey {
	return ViewerKey{Service: v.Service, ID: v.ID}
}

// Equal compares identity only.
func (v Viewer) Equal(o Viewer) bool {
	return v.Key() == o.Key()
}

func (v Viewer) Valid() bool {
	return v.Service != "" && v.ID != ""
}

func (v Viewer) String() string {
	if v.Name == "" {
		return v.Key().String()
	}
	return fmt.Sprintf("%s(%s)", v.Name, v.Key())
}

// ActorID references a simulation owned actor. Empty means no actor.
type ActorID string
