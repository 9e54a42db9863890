// Package models defines the data structures for the snapzone control hub.
package models

// PlaybackState is the transport state of a zone's stream.
type PlaybackState string

const (
	PlaybackStopped PlaybackState = "stopped"
	PlaybackPlaying PlaybackState = "playing"
	PlaybackPaused  PlaybackState = "paused"
)

// Valid reports whether s is one of the known playback states.
func (s PlaybackState) Valid() bool {
	switch s {
	case PlaybackStopped, PlaybackPlaying, PlaybackPaused:
		return true
	}
	return false
}

// PlaylistRef identifies a playlist by 1-based index plus display name.
type PlaylistRef struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// TrackRef identifies a track within the current playlist.
type TrackRef struct {
	Index int    `json:"index"`
	Title string `json:"title"`
}

// ZoneState is the current runtime state of a zone. Owned exclusively by
// the state store; mutated only from confirmed external events.
type ZoneState struct {
	Volume   int           `json:"volume"` // percent, 0-100
	Mute     bool          `json:"mute"`
	Playlist PlaylistRef   `json:"playlist"`
	Track    TrackRef      `json:"track"`
	Playback PlaybackState `json:"playback"`
	Repeat   bool          `json:"repeat"`
	Shuffle  bool          `json:"shuffle"`
	// Clients is the derived membership: indexes of clients currently
	// assigned to this zone, sorted ascending.
	Clients []int `json:"clients"`
}

// ClientState is the current runtime state of a playback client.
type ClientState struct {
	Volume    int  `json:"volume"` // percent, 0-100
	Mute      bool `json:"mute"`
	Connected bool `json:"connected"`
	LatencyMS int  `json:"latency_ms"`
	// ZoneIndex is the zone this client is currently assigned to,
	// or ZoneUnassigned.
	ZoneIndex int `json:"zone"`
}

// DeepCopy returns a copy of the state with no shared slices.
func (z ZoneState) DeepCopy() ZoneState {
	next := z
	if z.Clients != nil {
		next.Clients = make([]int, len(z.Clients))
		copy(next.Clients, z.Clients)
	}
	return next
}

// Snapshot is the full current state of the system, used for the read-only
// state endpoint and realtime-push resync.
type Snapshot struct {
	Zones   map[int]ZoneState   `json:"zones"`
	Clients map[int]ClientState `json:"clients"`
}

const (
	// ZoneUnassigned marks a client that belongs to no zone.
	ZoneUnassigned = 0

	MinVolume = 0
	MaxVolume = 100
)

// ClampVolume limits v to the valid percent range.
func ClampVolume(v int) int {
	if v < MinVolume {
		return MinVolume
	}
	if v > MaxVolume {
		return MaxVolume
	}
	return v
}
