// Package state implements the single source of truth for current zone and
// client state. The store is mutated only by confirmed external events:
// the command service instructs the audio-topology server and never writes
// here. Every mutation is diffed field-by-field against the previous state
// and the resulting typed change events are published on the event bus.
package state

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/snapzone/snapzone/internal/config"
	"github.com/snapzone/snapzone/internal/events"
	"github.com/snapzone/snapzone/internal/models"
)

// zoneEntry holds one zone's state behind its own lock so that diffing one
// entity never interleaves with a concurrent update to the same entity.
type zoneEntry struct {
	mu sync.Mutex
	st models.ZoneState
}

type clientEntry struct {
	mu sync.Mutex
	st models.ClientState
}

// Store is the per-entity state cache with typed change detection.
// The entity set is fixed at construction from configuration; referencing
// an unknown index in a mutator is a programming error and panics.
type Store struct {
	zones   map[int]*zoneEntry
	clients map[int]*clientEntry
	bus     *events.Bus
}

// New creates a store seeded with one entry per configured zone and client.
// Zones start stopped at volume zero; clients start disconnected and
// unassigned. Real values arrive with the first confirmed events.
func New(cfg *config.Config, bus *events.Bus) *Store {
	s := &Store{
		zones:   make(map[int]*zoneEntry, len(cfg.Zones)),
		clients: make(map[int]*clientEntry, len(cfg.Clients)),
		bus:     bus,
	}
	for _, z := range cfg.Zones {
		s.zones[z.Index] = &zoneEntry{st: models.ZoneState{Playback: models.PlaybackStopped}}
	}
	for _, c := range cfg.Clients {
		s.clients[c.Index] = &clientEntry{st: models.ClientState{ZoneIndex: models.ZoneUnassigned}}
	}
	return s
}

// GetZone returns the current state of the zone, or ok=false for an
// unknown index.
func (s *Store) GetZone(index int) (models.ZoneState, bool) {
	e, ok := s.zones[index]
	if !ok {
		return models.ZoneState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.DeepCopy(), true
}

// GetClient returns the current state of the client, or ok=false for an
// unknown index.
func (s *Store) GetClient(index int) (models.ClientState, bool) {
	e, ok := s.clients[index]
	if !ok {
		return models.ClientState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st, true
}

// SetZone replaces the zone's state, emitting one typed event per changed
// field in a fixed order (volume, mute, playlist, track, playback) followed
// by a GenericStateChanged carrying the full old/new snapshots. Setting a
// state equal to the current one emits no field-level events.
//
// Only confirmed-event handlers may call this.
func (s *Store) SetZone(index int, next models.ZoneState) {
	e, ok := s.zones[index]
	if !ok {
		panic(fmt.Sprintf("state: SetZone on unknown zone index %d", index))
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	old := e.st
	e.st = next.DeepCopy()
	now := time.Now()

	emit := func(t models.ChangeType, oldV, newV any) {
		s.bus.Publish(models.ChangeEvent{
			Type: t, Entity: models.EntityZone, Index: index,
			Old: oldV, New: newV, At: now,
		})
	}

	if old.Volume != next.Volume {
		emit(models.VolumeChanged, old.Volume, next.Volume)
	}
	if old.Mute != next.Mute {
		emit(models.MuteChanged, old.Mute, next.Mute)
	}
	if old.Playlist != next.Playlist {
		emit(models.PlaylistChanged, old.Playlist, next.Playlist)
	}
	if old.Track != next.Track {
		emit(models.TrackChanged, old.Track, next.Track)
	}
	if old.Playback != next.Playback {
		emit(models.PlaybackStateChanged, old.Playback, next.Playback)
	}
	emit(models.GenericStateChanged, old, next.DeepCopy())
}

// SetClient replaces the client's state, emitting one typed event per
// changed field in a fixed order (volume, mute, connection, zone assignment)
// followed by a GenericStateChanged. Same contract as SetZone.
func (s *Store) SetClient(index int, next models.ClientState) {
	e, ok := s.clients[index]
	if !ok {
		panic(fmt.Sprintf("state: SetClient on unknown client index %d", index))
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	old := e.st
	e.st = next
	now := time.Now()

	emit := func(t models.ChangeType, oldV, newV any) {
		s.bus.Publish(models.ChangeEvent{
			Type: t, Entity: models.EntityClient, Index: index,
			Old: oldV, New: newV, At: now,
		})
	}

	if old.Volume != next.Volume {
		emit(models.VolumeChanged, old.Volume, next.Volume)
	}
	if old.Mute != next.Mute {
		emit(models.MuteChanged, old.Mute, next.Mute)
	}
	if old.Connected != next.Connected {
		emit(models.ConnectionChanged, old.Connected, next.Connected)
	}
	if old.ZoneIndex != next.ZoneIndex {
		emit(models.ZoneAssignmentChanged, old.ZoneIndex, next.ZoneIndex)
	}
	emit(models.GenericStateChanged, old, next)
}

// ZoneIndexes returns the configured zone indexes in ascending order.
func (s *Store) ZoneIndexes() []int {
	out := make([]int, 0, len(s.zones))
	for idx := range s.zones {
		out = append(out, idx)
	}
	slices.Sort(out)
	return out
}

// ClientIndexes returns the configured client indexes in ascending order.
func (s *Store) ClientIndexes() []int {
	out := make([]int, 0, len(s.clients))
	for idx := range s.clients {
		out = append(out, idx)
	}
	slices.Sort(out)
	return out
}

// Snapshot returns a copy of the complete current state.
func (s *Store) Snapshot() models.Snapshot {
	snap := models.Snapshot{
		Zones:   make(map[int]models.ZoneState, len(s.zones)),
		Clients: make(map[int]models.ClientState, len(s.clients)),
	}
	for idx, e := range s.zones {
		e.mu.Lock()
		snap.Zones[idx] = e.st.DeepCopy()
		e.mu.Unlock()
	}
	for idx, e := range s.clients {
		e.mu.Lock()
		snap.Clients[idx] = e.st
		e.mu.Unlock()
	}
	return snap
}
