package publish

import (
	"context"
	"log/slog"

	"github.com/snapzone/snapzone/internal/config"
	"github.com/snapzone/snapzone/internal/models"
)

// BusClient is the abstract control-bus interface: a fixed-width numeric
// write at a bus address.
type BusClient interface {
	Write(ctx context.Context, address string, value uint16) error
}

type busKey struct {
	entity models.EntityKind
	index  int
	field  models.ChangeType
}

// ControlBus maps change events to numeric datapoint writes at configured
// bus addresses. Events without a configured address are skipped silently;
// values outside the datapoint's representable range are clamped to 0.
type ControlBus struct {
	client    BusClient
	addresses map[busKey]config.BusAddress
}

// NewControlBus creates the control-bus adapter from the configured
// address map.
func NewControlBus(client BusClient, addresses []config.BusAddress) *ControlBus {
	m := make(map[busKey]config.BusAddress, len(addresses))
	for _, a := range addresses {
		m[busKey{entity: models.EntityKind(a.Entity), index: a.Index, field: models.ChangeType(a.Field)}] = a
	}
	return &ControlBus{client: client, addresses: m}
}

// Name implements Publisher.
func (c *ControlBus) Name() string { return "controlbus" }

// Publish implements Publisher.
func (c *ControlBus) Publish(ctx context.Context, ev models.ChangeEvent) error {
	if ev.Type == models.GenericStateChanged {
		return nil
	}

	addr, ok := c.addresses[busKey{entity: ev.Entity, index: ev.Index, field: ev.Type}]
	if !ok {
		// Expected for most events: only explicitly mapped datapoints
		// exist on the bus.
		slog.Debug("controlbus: no address configured, skipping",
			"entity", ev.Entity, "index", ev.Index, "field", ev.Type)
		return nil
	}

	value, ok := numericValue(ev.New)
	if !ok {
		slog.Debug("controlbus: event value has no numeric mapping, skipping",
			"entity", ev.Entity, "index", ev.Index, "field", ev.Type)
		return nil
	}

	max := 255
	if addr.Width == 2 {
		max = 65535
	}
	if value < 0 || value > max {
		slog.Warn("controlbus: value exceeds datapoint range, clamping to 0",
			"entity", ev.Entity, "index", ev.Index, "field", ev.Type,
			"value", value, "width", addr.Width, "address", addr.Address)
		value = 0
	}

	return c.client.Write(ctx, addr.Address, uint16(value))
}

// playbackCodes is the fixed numeric encoding of playback states on the bus.
var playbackCodes = map[models.PlaybackState]int{
	models.PlaybackStopped: 0,
	models.PlaybackPlaying: 1,
	models.PlaybackPaused:  2,
}

// numericValue maps an event value onto the bus's numeric domain.
func numericValue(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case models.PlaybackState:
		code, ok := playbackCodes[t]
		return code, ok
	case models.PlaylistRef:
		return t.Index, true
	case models.TrackRef:
		return t.Index, true
	default:
		return 0, false
	}
}
