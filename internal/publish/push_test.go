package publish_test

import (
	"context"
	"testing"

	"github.com/snapzone/snapzone/internal/models"
	"github.com/snapzone/snapzone/internal/publish"
)

type fakePushClient struct {
	events   []string
	payloads []any
}

func (f *fakePushClient) Broadcast(event string, payload any) {
	f.events = append(f.events, event)
	f.payloads = append(f.payloads, payload)
}

func TestPushEventNames(t *testing.T) {
	client := &fakePushClient{}
	p := publish.NewPush(client)
	ctx := context.Background()

	if err := p.Publish(ctx, ev(models.VolumeChanged, models.EntityZone, 1, 42)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := p.Publish(ctx, ev(models.ConnectionChanged, models.EntityClient, 3, true)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := p.Publish(ctx, ev(models.GenericStateChanged, models.EntityZone, 1, models.ZoneState{})); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	want := []string{"zone_volume", "client_connection", "zone_state"}
	if len(client.events) != len(want) {
		t.Fatalf("broadcast %d events, want %d", len(client.events), len(want))
	}
	for i, name := range want {
		if client.events[i] != name {
			t.Errorf("event %d = %q, want %q", i, client.events[i], name)
		}
	}
}
