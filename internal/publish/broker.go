package publish

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/snapzone/snapzone/internal/models"
)

// BrokerClient is the abstract message-broker interface. The NATS-backed
// implementation lives in internal/broker.
type BrokerClient interface {
	Publish(ctx context.Context, topic string, payload string, retain bool) error
}

// Broker publishes change events as retained primitive payloads under
// templated topic paths: <root>/zones/<index>/<field> and
// <root>/clients/<index>/<field>. Composite fields (playlist, track)
// additionally publish a name sub-topic.
type Broker struct {
	client BrokerClient
	root   string
}

// NewBroker creates the message-broker adapter.
func NewBroker(client BrokerClient, topicRoot string) *Broker {
	if topicRoot == "" {
		topicRoot = "snapzone"
	}
	return &Broker{client: client, root: topicRoot}
}

// Name implements Publisher.
func (b *Broker) Name() string { return "broker" }

// Publish implements Publisher.
func (b *Broker) Publish(ctx context.Context, ev models.ChangeEvent) error {
	if ev.Type == models.GenericStateChanged {
		// Snapshots go out on the push channel; the broker carries
		// field-level topics only.
		return nil
	}

	base := fmt.Sprintf("%s/%ss/%d", b.root, ev.Entity, ev.Index)

	switch ev.Type {
	case models.VolumeChanged:
		return b.client.Publish(ctx, base+"/volume", formatValue(ev.New), true)
	case models.MuteChanged:
		return b.client.Publish(ctx, base+"/mute", formatValue(ev.New), true)
	case models.PlaybackStateChanged:
		return b.client.Publish(ctx, base+"/playback", formatValue(ev.New), true)
	case models.ConnectionChanged:
		return b.client.Publish(ctx, base+"/connected", formatValue(ev.New), true)
	case models.ZoneAssignmentChanged:
		return b.client.Publish(ctx, base+"/zone", formatValue(ev.New), true)
	case models.PlaylistChanged:
		ref, ok := ev.New.(models.PlaylistRef)
		if !ok {
			return models.ErrPublisher(fmt.Sprintf("playlist event carries %T", ev.New))
		}
		return errors.Join(
			b.client.Publish(ctx, base+"/playlist", strconv.Itoa(ref.Index), true),
			b.client.Publish(ctx, base+"/playlist/name", ref.Name, true),
		)
	case models.TrackChanged:
		ref, ok := ev.New.(models.TrackRef)
		if !ok {
			return models.ErrPublisher(fmt.Sprintf("track event carries %T", ev.New))
		}
		return errors.Join(
			b.client.Publish(ctx, base+"/track", strconv.Itoa(ref.Index), true),
			b.client.Publish(ctx, base+"/track/name", ref.Title, true),
		)
	default:
		return nil
	}
}

// formatValue renders a primitive event value as its broker payload.
func formatValue(v any) string {
	switch t := v.(type) {
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case string:
		return t
	case models.PlaybackState:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
