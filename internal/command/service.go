// Package command implements the command-dispatch layer. Every operation
// validates its input, checks the referenced entity exists, and forwards
// the instruction to the external audio-topology server. Commands only
// instruct: the state store is updated exclusively by confirmed events,
// never from here. A successful return means the external system accepted
// the instruction, not that the change has propagated.
package command

import (
	"context"
	"fmt"

	"github.com/snapzone/snapzone/internal/config"
	"github.com/snapzone/snapzone/internal/models"
	"github.com/snapzone/snapzone/internal/state"
	"github.com/snapzone/snapzone/internal/topology"
)

// Service dispatches user- and protocol-originated instructions.
type Service struct {
	cfg    *config.Config
	store  *state.Store // read-only, for validation
	topo   topology.Client
	mapper *topology.Mapper
}

// New creates the command service.
func New(cfg *config.Config, store *state.Store, topo topology.Client, mapper *topology.Mapper) *Service {
	return &Service{cfg: cfg, store: store, topo: topo, mapper: mapper}
}

func (s *Service) zone(index int) (*config.Zone, *models.AppError) {
	z, ok := s.cfg.Zone(index)
	if !ok {
		return nil, models.ErrNotFound(fmt.Sprintf("zone %d not found", index))
	}
	return z, nil
}

func (s *Service) client(index int) (*config.Client, *models.AppError) {
	c, ok := s.cfg.Client(index)
	if !ok {
		return nil, models.ErrNotFound(fmt.Sprintf("client %d not found", index))
	}
	return c, nil
}

// external normalizes errors from the topology client: typed errors pass
// through, anything else counts as the server being unreachable.
func external(err error) *models.AppError {
	if err == nil {
		return nil
	}
	if app, ok := err.(*models.AppError); ok {
		return app
	}
	return models.ErrExternalUnavailable(err.Error())
}

// SetZoneVolume instructs every client currently in the zone to the given
// volume. Confirmation arrives per client and the zone aggregate follows.
func (s *Service) SetZoneVolume(ctx context.Context, zoneIndex, volume int) *models.AppError {
	if volume < models.MinVolume || volume > models.MaxVolume {
		return models.ErrValidation(fmt.Sprintf("volume must be %d-%d", models.MinVolume, models.MaxVolume))
	}
	if _, err := s.zone(zoneIndex); err != nil {
		return err
	}

	zs, ok := s.store.GetZone(zoneIndex)
	if !ok {
		return models.ErrNotFound(fmt.Sprintf("zone %d not found", zoneIndex))
	}
	for _, ci := range zs.Clients {
		c, err := s.client(ci)
		if err != nil {
			continue
		}
		if err := s.topo.SetClientVolume(ctx, c.DeviceID, volume); err != nil {
			return external(err)
		}
	}
	return nil
}

// SetZoneMute mutes or unmutes the zone's group.
func (s *Service) SetZoneMute(ctx context.Context, zoneIndex int, mute bool) *models.AppError {
	if _, err := s.zone(zoneIndex); err != nil {
		return err
	}
	groupID, rerr := s.mapper.ResolveGroupForZone(ctx, zoneIndex)
	if rerr != nil {
		return external(rerr)
	}
	return external(s.topo.SetGroupMute(ctx, groupID, mute))
}

// SetPlaylist selects a playlist on the zone's stream by 1-based index.
func (s *Service) SetPlaylist(ctx context.Context, zoneIndex, playlistIndex int) *models.AppError {
	if playlistIndex < 1 {
		return models.ErrValidation("playlist index must be >= 1")
	}
	z, err := s.zone(zoneIndex)
	if err != nil {
		return err
	}
	return external(s.topo.ControlStream(ctx, z.Stream, "setPlaylist", map[string]any{"index": playlistIndex}))
}

// PlayTrack starts playback of the given track of the current playlist.
func (s *Service) PlayTrack(ctx context.Context, zoneIndex, trackIndex int) *models.AppError {
	if trackIndex < 1 {
		return models.ErrValidation("track index must be >= 1")
	}
	z, err := s.zone(zoneIndex)
	if err != nil {
		return err
	}
	return external(s.topo.ControlStream(ctx, z.Stream, "playTrack", map[string]any{"index": trackIndex}))
}

// Play resumes playback on the zone's stream.
func (s *Service) Play(ctx context.Context, zoneIndex int) *models.AppError {
	return s.streamCommand(ctx, zoneIndex, "play")
}

// Pause pauses playback on the zone's stream.
func (s *Service) Pause(ctx context.Context, zoneIndex int) *models.AppError {
	return s.streamCommand(ctx, zoneIndex, "pause")
}

// Stop stops playback on the zone's stream.
func (s *Service) Stop(ctx context.Context, zoneIndex int) *models.AppError {
	return s.streamCommand(ctx, zoneIndex, "stop")
}

// NextTrack advances to the next track, wrapping at the playlist end.
func (s *Service) NextTrack(ctx context.Context, zoneIndex int) *models.AppError {
	return s.streamCommand(ctx, zoneIndex, "next")
}

// PreviousTrack steps back one track, wrapping at the playlist start.
func (s *Service) PreviousTrack(ctx context.Context, zoneIndex int) *models.AppError {
	return s.streamCommand(ctx, zoneIndex, "previous")
}

func (s *Service) streamCommand(ctx context.Context, zoneIndex int, cmd string) *models.AppError {
	z, err := s.zone(zoneIndex)
	if err != nil {
		return err
	}
	return external(s.topo.ControlStream(ctx, z.Stream, cmd, nil))
}

// SetZoneRepeat toggles playlist repeat on the zone's stream.
func (s *Service) SetZoneRepeat(ctx context.Context, zoneIndex int, repeat bool) *models.AppError {
	z, err := s.zone(zoneIndex)
	if err != nil {
		return err
	}
	return external(s.topo.ControlStream(ctx, z.Stream, "setRepeat", map[string]any{"enabled": repeat}))
}

// SetZoneShuffle toggles playlist shuffle on the zone's stream.
func (s *Service) SetZoneShuffle(ctx context.Context, zoneIndex int, shuffle bool) *models.AppError {
	z, err := s.zone(zoneIndex)
	if err != nil {
		return err
	}
	return external(s.topo.ControlStream(ctx, z.Stream, "setShuffle", map[string]any{"enabled": shuffle}))
}

// AssignClientToZone moves the client into the zone's group via the mapper,
// which records the pending assignment shielding the move from the next
// reconciliation ticks.
func (s *Service) AssignClientToZone(ctx context.Context, clientIndex, zoneIndex int) *models.AppError {
	if _, err := s.client(clientIndex); err != nil {
		return err
	}
	if _, err := s.zone(zoneIndex); err != nil {
		return err
	}
	return external(s.mapper.MoveClientToZone(ctx, clientIndex, zoneIndex))
}

// SetClientVolume sets one client's volume.
func (s *Service) SetClientVolume(ctx context.Context, clientIndex, volume int) *models.AppError {
	if volume < models.MinVolume || volume > models.MaxVolume {
		return models.ErrValidation(fmt.Sprintf("volume must be %d-%d", models.MinVolume, models.MaxVolume))
	}
	c, err := s.client(clientIndex)
	if err != nil {
		return err
	}
	return external(s.topo.SetClientVolume(ctx, c.DeviceID, volume))
}

// SetClientMute mutes or unmutes one client.
func (s *Service) SetClientMute(ctx context.Context, clientIndex int, mute bool) *models.AppError {
	c, err := s.client(clientIndex)
	if err != nil {
		return err
	}
	return external(s.topo.SetClientMute(ctx, c.DeviceID, mute))
}

// SetClientLatency sets one client's latency compensation in milliseconds.
func (s *Service) SetClientLatency(ctx context.Context, clientIndex, latencyMS int) *models.AppError {
	if latencyMS < 0 || latencyMS > 10000 {
		return models.ErrValidation("latency must be 0-10000 ms")
	}
	c, err := s.client(clientIndex)
	if err != nil {
		return err
	}
	return external(s.topo.SetClientLatency(ctx, c.DeviceID, latencyMS))
}
