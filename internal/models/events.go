package models

import "time"

// EntityKind distinguishes the two entity families in the state store.
type EntityKind string

const (
	EntityZone   EntityKind = "zone"
	EntityClient EntityKind = "client"
)

// ChangeType tags a ChangeEvent with the field that changed.
type ChangeType string

const (
	VolumeChanged         ChangeType = "volume"
	MuteChanged           ChangeType = "mute"
	PlaylistChanged       ChangeType = "playlist"
	TrackChanged          ChangeType = "track"
	PlaybackStateChanged  ChangeType = "playback"
	ConnectionChanged     ChangeType = "connection"
	ZoneAssignmentChanged ChangeType = "zone"

	// GenericStateChanged carries full old/new snapshots of the entity
	// state. It is emitted after the field-level events of every SetZone
	// or SetClient call.
	GenericStateChanged ChangeType = "state"
)

// ChangeEvent is a single state-change notification. Field-level events
// carry the old and new value of one field; GenericStateChanged carries
// the complete old and new entity state.
type ChangeEvent struct {
	Type   ChangeType
	Entity EntityKind
	Index  int
	Old    any
	New    any
	At     time.Time
}
