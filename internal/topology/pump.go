package topology

import (
	"context"
	"log/slog"
	"slices"

	"github.com/snapzone/snapzone/internal/config"
	"github.com/snapzone/snapzone/internal/models"
	"github.com/snapzone/snapzone/internal/state"
)

// Pump translates confirmed notifications from the audio-topology server
// into state store mutations. It is the only writer of the state store:
// commands instruct, the pump confirms.
type Pump struct {
	store  *state.Store
	mapper *Mapper
	cfg    *config.Config
}

// NewPump creates a pump bound to the store and mapper.
func NewPump(store *state.Store, mapper *Mapper, cfg *config.Config) *Pump {
	return &Pump{store: store, mapper: mapper, cfg: cfg}
}

// Run consumes notifications until the channel closes or ctx is cancelled.
func (p *Pump) Run(ctx context.Context, ch <-chan Notification) {
	for {
		select {
		case n, ok := <-ch:
			if !ok {
				return
			}
			p.Handle(n)
		case <-ctx.Done():
			return
		}
	}
}

// Handle applies a single notification to the state store.
func (p *Pump) Handle(n Notification) {
	switch n.Type {
	case NotifyClientConnected, NotifyClientDisconnected:
		p.setConnection(n.ClientID, n.Type == NotifyClientConnected)
	case NotifyClientVolume:
		p.setClientVolume(n.ClientID, n.Volume, n.Muted)
	case NotifyClientLatency:
		p.setClientLatency(n.ClientID, n.LatencyMS)
	case NotifyGroupMute:
		p.setGroupMute(n.GroupID, n.Muted)
	case NotifyGroupClients:
		p.setGroupClients(n.GroupID, n.GroupClients)
	case NotifyStreamProperties:
		p.setStreamProperties(n)
	case NotifyGroupStream:
		// Stream rebinding is topology bookkeeping handled by the
		// mapper's reconciliation; no entity state changes here.
	default:
		slog.Debug("pump: ignoring unknown notification", "type", n.Type)
	}
}

func (p *Pump) client(deviceID string) (*config.Client, models.ClientState, bool) {
	c, ok := p.cfg.ClientByDevice(deviceID)
	if !ok {
		slog.Debug("pump: notification for unconfigured device", "device", deviceID)
		return nil, models.ClientState{}, false
	}
	st, ok := p.store.GetClient(c.Index)
	if !ok {
		return nil, models.ClientState{}, false
	}
	return c, st, true
}

func (p *Pump) setConnection(deviceID string, connected bool) {
	c, st, ok := p.client(deviceID)
	if !ok {
		return
	}
	st.Connected = connected
	p.store.SetClient(c.Index, st)
}

func (p *Pump) setClientVolume(deviceID string, volume int, muted bool) {
	c, st, ok := p.client(deviceID)
	if !ok {
		return
	}
	st.Volume = models.ClampVolume(volume)
	st.Mute = muted
	p.store.SetClient(c.Index, st)
	p.refreshZoneVolume(st.ZoneIndex)
}

func (p *Pump) setClientLatency(deviceID string, latencyMS int) {
	c, st, ok := p.client(deviceID)
	if !ok {
		return
	}
	st.LatencyMS = latencyMS
	p.store.SetClient(c.Index, st)
}

// refreshZoneVolume recomputes a zone's volume as the average of its
// members' confirmed volumes.
func (p *Pump) refreshZoneVolume(zoneIndex int) {
	if zoneIndex == models.ZoneUnassigned {
		return
	}
	zs, ok := p.store.GetZone(zoneIndex)
	if !ok || len(zs.Clients) == 0 {
		return
	}
	sum := 0
	count := 0
	for _, ci := range zs.Clients {
		if cs, ok := p.store.GetClient(ci); ok {
			sum += cs.Volume
			count++
		}
	}
	if count == 0 {
		return
	}
	zs.Volume = sum / count
	p.store.SetZone(zoneIndex, zs)
}

func (p *Pump) setGroupMute(groupID string, muted bool) {
	zone, ok := p.mapper.ZoneForGroup(groupID)
	if !ok {
		return
	}
	zs, ok := p.store.GetZone(zone)
	if !ok {
		return
	}
	zs.Mute = muted
	p.store.SetZone(zone, zs)
}

// setGroupClients applies a confirmed membership change: every configured
// client in the group is assigned to the group's zone, and the zone's
// derived membership list is rebuilt. Clients that left the group are
// reassigned by the membership notification of their new group.
func (p *Pump) setGroupClients(groupID string, deviceIDs []string) {
	zone, ok := p.mapper.ZoneForGroup(groupID)
	if !ok {
		slog.Debug("pump: membership change for unmapped group", "group", groupID)
		return
	}

	var members []int
	for _, dev := range deviceIDs {
		c, ok := p.cfg.ClientByDevice(dev)
		if !ok {
			continue
		}
		members = append(members, c.Index)
		if st, ok := p.store.GetClient(c.Index); ok && st.ZoneIndex != zone {
			st.ZoneIndex = zone
			p.store.SetClient(c.Index, st)
		}
	}
	slices.Sort(members)

	zs, ok := p.store.GetZone(zone)
	if !ok {
		return
	}
	zs.Clients = members
	p.store.SetZone(zone, zs)
	p.refreshZoneVolume(zone)
}

func (p *Pump) setStreamProperties(n Notification) {
	zone, ok := p.cfg.ZoneByStream(n.StreamID)
	if !ok {
		slog.Debug("pump: properties for unconfigured stream", "stream", n.StreamID)
		return
	}
	zs, ok := p.store.GetZone(zone.Index)
	if !ok {
		return
	}
	if n.Playback != "" {
		zs.Playback = n.Playback
	}
	if n.Playlist != nil {
		zs.Playlist = *n.Playlist
	}
	if n.Track != nil {
		zs.Track = *n.Track
	}
	if n.Repeat != nil {
		zs.Repeat = *n.Repeat
	}
	if n.Shuffle != nil {
		zs.Shuffle = *n.Shuffle
	}
	p.store.SetZone(zone.Index, zs)
}
