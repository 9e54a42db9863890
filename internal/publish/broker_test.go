package publish_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/snapzone/snapzone/internal/models"
	"github.com/snapzone/snapzone/internal/publish"
)

type fakeBrokerClient struct {
	mu   sync.Mutex
	pubs []brokerPub
}

type brokerPub struct {
	topic   string
	payload string
	retain  bool
}

func (f *fakeBrokerClient) Publish(ctx context.Context, topic, payload string, retain bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pubs = append(f.pubs, brokerPub{topic: topic, payload: payload, retain: retain})
	return nil
}

func (f *fakeBrokerClient) published() []brokerPub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]brokerPub(nil), f.pubs...)
}

func ev(t models.ChangeType, entity models.EntityKind, index int, newV any) models.ChangeEvent {
	return models.ChangeEvent{Type: t, Entity: entity, Index: index, New: newV, At: time.Now()}
}

func TestBrokerTopicsAndPayloads(t *testing.T) {
	client := &fakeBrokerClient{}
	b := publish.NewBroker(client, "root")
	ctx := context.Background()

	cases := []struct {
		ev      models.ChangeEvent
		topic   string
		payload string
	}{
		{ev(models.VolumeChanged, models.EntityZone, 1, 42), "root/zones/1/volume", "42"},
		{ev(models.MuteChanged, models.EntityZone, 2, true), "root/zones/2/mute", "true"},
		{ev(models.PlaybackStateChanged, models.EntityZone, 1, models.PlaybackPlaying), "root/zones/1/playback", "playing"},
		{ev(models.ConnectionChanged, models.EntityClient, 3, false), "root/clients/3/connected", "false"},
		{ev(models.ZoneAssignmentChanged, models.EntityClient, 3, 2), "root/clients/3/zone", "2"},
	}

	for _, tc := range cases {
		client.pubs = nil
		if err := b.Publish(ctx, tc.ev); err != nil {
			t.Fatalf("Publish(%q): %v", tc.ev.Type, err)
		}
		pubs := client.published()
		if len(pubs) != 1 {
			t.Fatalf("%q published %d messages", tc.ev.Type, len(pubs))
		}
		if pubs[0].topic != tc.topic || pubs[0].payload != tc.payload {
			t.Errorf("%q -> %s=%q, want %s=%q", tc.ev.Type, pubs[0].topic, pubs[0].payload, tc.topic, tc.payload)
		}
		if !pubs[0].retain {
			t.Errorf("%q must be retained", tc.ev.Type)
		}
	}
}

func TestBrokerCompositePlaylist(t *testing.T) {
	client := &fakeBrokerClient{}
	b := publish.NewBroker(client, "root")

	e := ev(models.PlaylistChanged, models.EntityZone, 1, models.PlaylistRef{Index: 2, Name: "Jazz"})
	if err := b.Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	pubs := client.published()
	if len(pubs) != 2 {
		t.Fatalf("composite playlist published %d messages, want 2", len(pubs))
	}
	if pubs[0].topic != "root/zones/1/playlist" || pubs[0].payload != "2" {
		t.Errorf("index topic = %s=%q", pubs[0].topic, pubs[0].payload)
	}
	if pubs[1].topic != "root/zones/1/playlist/name" || pubs[1].payload != "Jazz" {
		t.Errorf("name topic = %s=%q", pubs[1].topic, pubs[1].payload)
	}
}

func TestBrokerCompositeTrack(t *testing.T) {
	client := &fakeBrokerClient{}
	b := publish.NewBroker(client, "root")

	e := ev(models.TrackChanged, models.EntityZone, 1, models.TrackRef{Index: 7, Title: "So What"})
	if err := b.Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	pubs := client.published()
	if len(pubs) != 2 || pubs[1].payload != "So What" {
		t.Errorf("track publish = %+v", pubs)
	}
}

func TestBrokerSkipsGeneric(t *testing.T) {
	client := &fakeBrokerClient{}
	b := publish.NewBroker(client, "root")

	e := ev(models.GenericStateChanged, models.EntityZone, 1, models.ZoneState{})
	if err := b.Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(client.published()) != 0 {
		t.Error("generic events must not hit the broker")
	}
}

func TestBrokerDefaultRoot(t *testing.T) {
	client := &fakeBrokerClient{}
	b := publish.NewBroker(client, "")
	if err := b.Publish(context.Background(), ev(models.VolumeChanged, models.EntityZone, 1, 5)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := client.published()[0].topic; got != "snapzone/zones/1/volume" {
		t.Errorf("topic = %q", got)
	}
}
