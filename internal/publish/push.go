package publish

import (
	"context"
	"fmt"

	"github.com/snapzone/snapzone/internal/models"
)

// PushClient is the abstract realtime-push interface: an at-most-once
// broadcast to all currently connected subscribers. The WebSocket hub in
// internal/push implements it.
type PushClient interface {
	Broadcast(event string, payload any)
}

// Push forwards every change event to connected UI subscribers. There is
// no replay: a new subscriber requests a full-state resync from the hub.
type Push struct {
	client PushClient
}

// NewPush creates the realtime-push adapter.
func NewPush(client PushClient) *Push {
	return &Push{client: client}
}

// Name implements Publisher.
func (p *Push) Name() string { return "push" }

// pushPayload is the JSON shape broadcast for field-level events.
type pushPayload struct {
	Entity models.EntityKind `json:"entity"`
	Index  int               `json:"index"`
	Old    any               `json:"old"`
	New    any               `json:"new"`
	At     int64             `json:"at"` // unix milliseconds
}

// Publish implements Publisher. Broadcasts are fire-and-forget.
func (p *Push) Publish(ctx context.Context, ev models.ChangeEvent) error {
	name := fmt.Sprintf("%s_%s", ev.Entity, ev.Type)
	p.client.Broadcast(name, pushPayload{
		Entity: ev.Entity,
		Index:  ev.Index,
		Old:    ev.Old,
		New:    ev.New,
		At:     ev.At.UnixMilli(),
	})
	return nil
}
