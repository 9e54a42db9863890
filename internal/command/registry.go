package command

import (
	"context"
	"fmt"

	"github.com/snapzone/snapzone/internal/models"
)

// Operation identifies one user-facing instruction on the wire.
type Operation string

const (
	OpZoneVolumeSet   Operation = "zone.volume.set"
	OpZoneMuteSet     Operation = "zone.mute.set"
	OpZonePlaylistSet Operation = "zone.playlist.set"
	OpZoneTrackPlay   Operation = "zone.track.play"
	OpZonePlay        Operation = "zone.play"
	OpZonePause       Operation = "zone.pause"
	OpZoneStop        Operation = "zone.stop"
	OpZoneTrackNext   Operation = "zone.track.next"
	OpZoneTrackPrev   Operation = "zone.track.previous"
	OpZoneRepeatSet   Operation = "zone.repeat.set"
	OpZoneShuffleSet  Operation = "zone.shuffle.set"
	OpClientZoneSet   Operation = "client.zone.set"
	OpClientVolumeSet Operation = "client.volume.set"
	OpClientMuteSet   Operation = "client.mute.set"
	OpClientLatency   Operation = "client.latency.set"
)

// allOperations is the authoritative list of wire operations. The handler
// table below must cover exactly this set; ValidateRegistry enforces it at
// startup instead of a runtime reflection scan.
var allOperations = []Operation{
	OpZoneVolumeSet,
	OpZoneMuteSet,
	OpZonePlaylistSet,
	OpZoneTrackPlay,
	OpZonePlay,
	OpZonePause,
	OpZoneStop,
	OpZoneTrackNext,
	OpZoneTrackPrev,
	OpZoneRepeatSet,
	OpZoneShuffleSet,
	OpClientZoneSet,
	OpClientVolumeSet,
	OpClientMuteSet,
	OpClientLatency,
}

// Request carries the parameters of a dispatched operation. Unset pointer
// fields mean the parameter was not supplied.
type Request struct {
	Zone      *int  `json:"zone,omitempty"`
	Client    *int  `json:"client,omitempty"`
	Volume    *int  `json:"volume,omitempty"`
	Mute      *bool `json:"mute,omitempty"`
	Playlist  *int  `json:"playlist,omitempty"`
	Track     *int  `json:"track,omitempty"`
	LatencyMS *int  `json:"latency_ms,omitempty"`
	Repeat    *bool `json:"repeat,omitempty"`
	Shuffle   *bool `json:"shuffle,omitempty"`
	// TargetZone is the destination of a client assignment.
	TargetZone *int `json:"target_zone,omitempty"`
}

// HandlerFunc executes one operation against the service.
type HandlerFunc func(ctx context.Context, s *Service, req Request) *models.AppError

func needZone(req Request) (int, *models.AppError) {
	if req.Zone == nil {
		return 0, models.ErrValidation("zone is required")
	}
	return *req.Zone, nil
}

func needClient(req Request) (int, *models.AppError) {
	if req.Client == nil {
		return 0, models.ErrValidation("client is required")
	}
	return *req.Client, nil
}

// handlers is the static operation table. Adding an Operation constant
// without a row here fails ValidateRegistry at startup.
var handlers = map[Operation]HandlerFunc{
	OpZoneVolumeSet: func(ctx context.Context, s *Service, req Request) *models.AppError {
		z, err := needZone(req)
		if err != nil {
			return err
		}
		if req.Volume == nil {
			return models.ErrValidation("volume is required")
		}
		return s.SetZoneVolume(ctx, z, *req.Volume)
	},
	OpZoneMuteSet: func(ctx context.Context, s *Service, req Request) *models.AppError {
		z, err := needZone(req)
		if err != nil {
			return err
		}
		if req.Mute == nil {
			return models.ErrValidation("mute is required")
		}
		return s.SetZoneMute(ctx, z, *req.Mute)
	},
	OpZonePlaylistSet: func(ctx context.Context, s *Service, req Request) *models.AppError {
		z, err := needZone(req)
		if err != nil {
			return err
		}
		if req.Playlist == nil {
			return models.ErrValidation("playlist is required")
		}
		return s.SetPlaylist(ctx, z, *req.Playlist)
	},
	OpZoneTrackPlay: func(ctx context.Context, s *Service, req Request) *models.AppError {
		z, err := needZone(req)
		if err != nil {
			return err
		}
		if req.Track == nil {
			return models.ErrValidation("track is required")
		}
		return s.PlayTrack(ctx, z, *req.Track)
	},
	OpZonePlay: func(ctx context.Context, s *Service, req Request) *models.AppError {
		z, err := needZone(req)
		if err != nil {
			return err
		}
		return s.Play(ctx, z)
	},
	OpZonePause: func(ctx context.Context, s *Service, req Request) *models.AppError {
		z, err := needZone(req)
		if err != nil {
			return err
		}
		return s.Pause(ctx, z)
	},
	OpZoneStop: func(ctx context.Context, s *Service, req Request) *models.AppError {
		z, err := needZone(req)
		if err != nil {
			return err
		}
		return s.Stop(ctx, z)
	},
	OpZoneTrackNext: func(ctx context.Context, s *Service, req Request) *models.AppError {
		z, err := needZone(req)
		if err != nil {
			return err
		}
		return s.NextTrack(ctx, z)
	},
	OpZoneTrackPrev: func(ctx context.Context, s *Service, req Request) *models.AppError {
		z, err := needZone(req)
		if err != nil {
			return err
		}
		return s.PreviousTrack(ctx, z)
	},
	OpZoneRepeatSet: func(ctx context.Context, s *Service, req Request) *models.AppError {
		z, err := needZone(req)
		if err != nil {
			return err
		}
		if req.Repeat == nil {
			return models.ErrValidation("repeat is required")
		}
		return s.SetZoneRepeat(ctx, z, *req.Repeat)
	},
	OpZoneShuffleSet: func(ctx context.Context, s *Service, req Request) *models.AppError {
		z, err := needZone(req)
		if err != nil {
			return err
		}
		if req.Shuffle == nil {
			return models.ErrValidation("shuffle is required")
		}
		return s.SetZoneShuffle(ctx, z, *req.Shuffle)
	},
	OpClientZoneSet: func(ctx context.Context, s *Service, req Request) *models.AppError {
		c, err := needClient(req)
		if err != nil {
			return err
		}
		if req.TargetZone == nil {
			return models.ErrValidation("target_zone is required")
		}
		return s.AssignClientToZone(ctx, c, *req.TargetZone)
	},
	OpClientVolumeSet: func(ctx context.Context, s *Service, req Request) *models.AppError {
		c, err := needClient(req)
		if err != nil {
			return err
		}
		if req.Volume == nil {
			return models.ErrValidation("volume is required")
		}
		return s.SetClientVolume(ctx, c, *req.Volume)
	},
	OpClientMuteSet: func(ctx context.Context, s *Service, req Request) *models.AppError {
		c, err := needClient(req)
		if err != nil {
			return err
		}
		if req.Mute == nil {
			return models.ErrValidation("mute is required")
		}
		return s.SetClientMute(ctx, c, *req.Mute)
	},
	OpClientLatency: func(ctx context.Context, s *Service, req Request) *models.AppError {
		c, err := needClient(req)
		if err != nil {
			return err
		}
		if req.LatencyMS == nil {
			return models.ErrValidation("latency_ms is required")
		}
		return s.SetClientLatency(ctx, c, *req.LatencyMS)
	},
}

// Known reports whether the operation exists in the handler table. Callers
// labeling metrics by operation must bucket unknown values so arbitrary
// inbound subjects cannot grow label cardinality.
func Known(op Operation) bool {
	_, ok := handlers[op]
	return ok
}

// Operations returns all wire operations in declaration order.
func Operations() []Operation {
	out := make([]Operation, len(allOperations))
	copy(out, allOperations)
	return out
}

// ValidateRegistry checks that the handler table covers exactly the declared
// operation set. Call it once at startup; a mismatch is a build defect.
func ValidateRegistry() error {
	declared := make(map[Operation]bool, len(allOperations))
	for _, op := range allOperations {
		if declared[op] {
			return fmt.Errorf("command: operation %q declared twice", op)
		}
		declared[op] = true
		if _, ok := handlers[op]; !ok {
			return fmt.Errorf("command: operation %q has no handler", op)
		}
	}
	for op := range handlers {
		if !declared[op] {
			return fmt.Errorf("command: handler for undeclared operation %q", op)
		}
	}
	return nil
}

// Dispatch routes an operation through the handler table.
func (s *Service) Dispatch(ctx context.Context, op Operation, req Request) *models.AppError {
	h, ok := handlers[op]
	if !ok {
		return models.ErrNotFound(fmt.Sprintf("unknown operation %q", op))
	}
	return h(ctx, s, req)
}
