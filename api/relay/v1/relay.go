// Package v1 defines the JSON frames exchanged with the relay.
package v1

import (
	"encoding/json"
)

// 消息类型
const (
	TypeHello      = "hello"
	TypeWelcome    = "welcome"
	TypeJoin       = "join"
	TypeLeave      = "leave"
	TypeAssign     = "assign"
	TypeState      = "state"
	TypeJob        = "job"
	TypeStalling   = "stalling"
	TypeColonists  = "colonists"
	TypeEarned     = "earned"
	TypePortrait   = "portrait"
	TypeGrid       = "grid"
	TypeAreas      = "areas"
	TypePriorities = "priorities"
	TypeSchedules  = "schedules"
)

// ProtocolVersion is announced in hello.
const ProtocolVersion = 1

// Viewer identifies a remote viewer. Only Service and ID are identity.
type Viewer struct {
	Service string `json:"service"`
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// Envelope is the common header of every frame.
type Envelope struct {
	Type   string  `json:"type"`
	Viewer *Viewer `json:"viewer,omitempty"`
}

// Hello is sent once right after the socket opens.
type Hello struct {
	Type     string `json:"type"`
	Version  int    `json:"version"`
	Instance string `json:"instance"`
	Mod      string `json:"mod"`
}

// Assign binds (Colonist set) or unbinds (Colonist empty) a viewer.
type Assign struct {
	Type     string  `json:"type"`
	Viewer   *Viewer `json:"viewer,omitempty"`
	Colonist string  `json:"colonist,omitempty"`
}

// State is a generic key/value property set on the viewer's actor.
type State struct {
	Type   string          `json:"type"`
	Viewer *Viewer         `json:"viewer,omitempty"`
	Key    string          `json:"key"`
	Val    json.RawMessage `json:"val"`
}

// Job is a method call on the viewer's actor, correlated by ID.
type Job struct {
	Type   string   `json:"type"`
	Viewer *Viewer  `json:"viewer,omitempty"`
	ID     string   `json:"id"`
	Method string   `json:"method"`
	Args   []string `json:"args,omitempty"`
}

// Stalling toggles the viewer side activity flag.
type Stalling struct {
	Type     string  `json:"type"`
	Viewer   *Viewer `json:"viewer,omitempty"`
	Stalling bool    `json:"state"`
}

// Colonist is one roster entry.
type Colonist struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Controller *Viewer `json:"controller,omitempty"`
}

// Colonists is the full roster snapshot.
type Colonists struct {
	Type      string     `json:"type"`
	Colonists []Colonist `json:"colonists"`
}

// AssignReply echoes a completed assign to the relay.
type AssignReply struct {
	Type     string  `json:"type"`
	Viewer   *Viewer `json:"viewer"`
	Colonist string  `json:"colonist,omitempty"`
}

type Earned struct {
	Type   string  `json:"type"`
	Viewer *Viewer `json:"viewer"`
	Amount int     `json:"amount"`
}

// Portrait carries a base64 encoded PNG.
type Portrait struct {
	Type     string  `json:"type"`
	Viewer   *Viewer `json:"viewer"`
	Colonist string  `json:"colonist"`
	Image    string  `json:"image"`
}

// Grid is a compact occupancy grid of Size x Size cells centered on the actor.
type Grid struct {
	Type   string  `json:"type"`
	Viewer *Viewer `json:"viewer"`
	Size   int     `json:"size"`
	Cells  string  `json:"cells"`
}

// JobResult answers a Job with the same ID.
type JobResult struct {
	Type   string  `json:"type"`
	Viewer *Viewer `json:"viewer"`
	ID     string  `json:"id"`
	OK     bool    `json:"ok"`
	Kind   string  `json:"kind,omitempty"`
	Error  string  `json:"error,omitempty"`
	Result any     `json:"result,omitempty"`
}

// Snapshot is a generic per-viewer or global state snapshot (areas, priorities, schedules).
type Snapshot struct {
	Type   string  `json:"type"`
	Viewer *Viewer `json:"viewer,omitempty"`
	Data   any     `json:"data"`
}
