// Package topology owns the mapping between logical zones and the external
// audio server's groups, the periodic drift reconciliation, and the pump
// that turns inbound server notifications into confirmed state updates.
package topology

import (
	"context"

	"github.com/snapzone/snapzone/internal/models"
)

// Group is the external server's playback-group abstraction.
type Group struct {
	ID        string
	StreamID  string
	ClientIDs []string
}

// ClientInfo is the externally observed state of one playback endpoint.
type ClientInfo struct {
	ID        string
	Connected bool
	Volume    int
	Muted     bool
	LatencyMS int
}

// Client is the abstract audio-topology server interface. The concrete
// snapcast implementation lives in internal/snapcast; tests use fakes.
// All calls accept the caller's context and must honor its cancellation.
type Client interface {
	// EnumerateGroups returns the current groups with their stream
	// bindings and member client ids.
	EnumerateGroups(ctx context.Context) ([]Group, error)

	// CreateGroup provisions a group bound to the given stream and
	// returns its id.
	CreateGroup(ctx context.Context, streamID string) (string, error)

	// SetGroupStream rebinds an existing group to a stream.
	SetGroupStream(ctx context.Context, groupID, streamID string) error

	// SetGroupMute mutes or unmutes a whole group.
	SetGroupMute(ctx context.Context, groupID string, mute bool) error

	// SetClientGroup moves a client into a group.
	SetClientGroup(ctx context.Context, clientID, groupID string) error

	SetClientVolume(ctx context.Context, clientID string, volume int) error
	SetClientMute(ctx context.Context, clientID string, mute bool) error
	SetClientLatency(ctx context.Context, clientID string, latencyMS int) error

	// ControlStream sends a playback control command (play, pause, stop,
	// next, previous, setPlaylist, playTrack, setRepeat, setShuffle) to
	// the named stream.
	ControlStream(ctx context.Context, streamID, command string, params map[string]any) error

	// Notifications returns the inbound event stream. The channel is
	// closed when the client shuts down.
	Notifications() <-chan Notification
}

// NotificationType tags an inbound server notification.
type NotificationType string

const (
	NotifyClientConnected    NotificationType = "client_connected"
	NotifyClientDisconnected NotificationType = "client_disconnected"
	NotifyClientVolume       NotificationType = "client_volume"
	NotifyClientLatency      NotificationType = "client_latency"
	NotifyGroupMute          NotificationType = "group_mute"
	NotifyGroupStream        NotificationType = "group_stream"
	NotifyGroupClients       NotificationType = "group_clients"
	NotifyStreamProperties   NotificationType = "stream_properties"
)

// Notification is a tagged inbound event from the audio-topology server.
// Only the fields relevant to Type are populated.
type Notification struct {
	Type NotificationType

	ClientID  string
	GroupID   string
	StreamID  string
	Connected bool
	Volume    int
	Muted     bool
	LatencyMS int

	// GroupClients lists the member client ids after a membership change.
	GroupClients []string

	// Stream playback properties.
	Playback models.PlaybackState
	Playlist *models.PlaylistRef
	Track    *models.TrackRef
	Repeat   *bool
	Shuffle  *bool
}
