package snapcast

import (
	"encoding/json"
	"log/slog"

	"github.com/snapzone/snapzone/internal/models"
	"github.com/snapzone/snapzone/internal/topology"
)

// Notification wire shapes. Snapcast sends these as JSON-RPC frames with a
// method and no id.

type clientNotif struct {
	ID     string `json:"id"`
	Volume struct {
		Percent int  `json:"percent"`
		Muted   bool `json:"muted"`
	} `json:"volume"`
	Latency int `json:"latency"`
}

type groupNotif struct {
	ID       string `json:"id"`
	Mute     bool   `json:"mute"`
	StreamID string `json:"stream_id"`
}

type streamProperties struct {
	PlaybackStatus string `json:"playbackStatus"`
	LoopStatus     string `json:"loopStatus"`
	Shuffle        *bool  `json:"shuffle"`
	Playlist       *struct {
		Index int    `json:"index"`
		Name  string `json:"name"`
	} `json:"playlist"`
	Metadata *struct {
		Title       string `json:"title"`
		TrackNumber int    `json:"trackNumber"`
	} `json:"metadata"`
}

type streamNotif struct {
	ID         string           `json:"id"`
	Properties streamProperties `json:"properties"`
}

type serverNotif struct {
	Server struct {
		Groups []wireGroup `json:"groups"`
	} `json:"server"`
}

func (c *Client) handleNotification(f frame) {
	switch f.Method {
	case "Client.OnConnect", "Client.OnDisconnect":
		var n clientNotif
		if !decode(f, &n) {
			return
		}
		typ := topology.NotifyClientConnected
		connected := true
		if f.Method == "Client.OnDisconnect" {
			typ = topology.NotifyClientDisconnected
			connected = false
		}
		c.emit(topology.Notification{Type: typ, ClientID: n.ID, Connected: connected})

	case "Client.OnVolumeChanged":
		var n clientNotif
		if !decode(f, &n) {
			return
		}
		c.emit(topology.Notification{
			Type:     topology.NotifyClientVolume,
			ClientID: n.ID,
			Volume:   n.Volume.Percent,
			Muted:    n.Volume.Muted,
		})

	case "Client.OnLatencyChanged":
		var n clientNotif
		if !decode(f, &n) {
			return
		}
		c.emit(topology.Notification{Type: topology.NotifyClientLatency, ClientID: n.ID, LatencyMS: n.Latency})

	case "Group.OnMute":
		var n groupNotif
		if !decode(f, &n) {
			return
		}
		c.emit(topology.Notification{Type: topology.NotifyGroupMute, GroupID: n.ID, Muted: n.Mute})

	case "Group.OnStreamChanged":
		var n groupNotif
		if !decode(f, &n) {
			return
		}
		c.emit(topology.Notification{Type: topology.NotifyGroupStream, GroupID: n.ID, StreamID: n.StreamID})

	case "Stream.OnProperties":
		var n streamNotif
		if !decode(f, &n) {
			return
		}
		c.emit(propertiesNotification(n))

	case "Server.OnUpdate":
		// Group membership changes arrive only as a full server status.
		// Fan it out as one membership notification per group.
		var n serverNotif
		if !decode(f, &n) {
			return
		}
		for _, g := range n.Server.Groups {
			ids := make([]string, 0, len(g.Clients))
			for _, cl := range g.Clients {
				ids = append(ids, cl.ID)
			}
			c.emit(topology.Notification{Type: topology.NotifyGroupClients, GroupID: g.ID, GroupClients: ids})
		}

	default:
		slog.Debug("snapcast: ignoring notification", "method", f.Method)
	}
}

func propertiesNotification(n streamNotif) topology.Notification {
	out := topology.Notification{Type: topology.NotifyStreamProperties, StreamID: n.ID}
	switch n.Properties.PlaybackStatus {
	case "playing":
		out.Playback = models.PlaybackPlaying
	case "paused":
		out.Playback = models.PlaybackPaused
	case "stopped":
		out.Playback = models.PlaybackStopped
	}
	if n.Properties.LoopStatus != "" {
		repeat := n.Properties.LoopStatus != "none"
		out.Repeat = &repeat
	}
	out.Shuffle = n.Properties.Shuffle
	if p := n.Properties.Playlist; p != nil {
		out.Playlist = &models.PlaylistRef{Index: p.Index, Name: p.Name}
	}
	if m := n.Properties.Metadata; m != nil {
		out.Track = &models.TrackRef{Index: m.TrackNumber, Title: m.Title}
	}
	return out
}

func decode(f frame, v any) bool {
	if err := json.Unmarshal(f.Params, v); err != nil {
		slog.Warn("snapcast: malformed notification", "method", f.Method, "err", err)
		return false
	}
	return true
}

// emit forwards a notification without blocking the read loop. A full
// consumer loses the event; the reconciliation loop heals any resulting
// drift.
func (c *Client) emit(n topology.Notification) {
	select {
	case c.notifs <- n:
	default:
		slog.Warn("snapcast: notification buffer full, dropping", "type", n.Type)
	}
}
