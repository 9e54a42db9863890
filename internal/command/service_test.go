package command_test

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/snapzone/snapzone/internal/command"
	"github.com/snapzone/snapzone/internal/config"
	"github.com/snapzone/snapzone/internal/events"
	"github.com/snapzone/snapzone/internal/models"
	"github.com/snapzone/snapzone/internal/state"
	"github.com/snapzone/snapzone/internal/topology"
)

// recordingTopo records every instruction forwarded to the external server.
type recordingTopo struct {
	mu      sync.Mutex
	calls   []string
	failAll bool
	reject  bool
	notifs  chan topology.Notification
}

func newRecordingTopo() *recordingTopo {
	return &recordingTopo{notifs: make(chan topology.Notification, 16)}
}

func (r *recordingTopo) record(call string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return models.ErrExternalUnavailable("server down")
	}
	if r.reject {
		return models.ErrExternalRejected("instruction refused")
	}
	r.calls = append(r.calls, call)
	return nil
}

func (r *recordingTopo) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recordingTopo) EnumerateGroups(ctx context.Context) ([]topology.Group, error) {
	if err := r.record("EnumerateGroups"); err != nil {
		return nil, err
	}
	return []topology.Group{
		{ID: "g-1", StreamID: "living", ClientIDs: []string{"dev-1"}},
		{ID: "g-2", StreamID: "kitchen", ClientIDs: []string{"dev-3"}},
	}, nil
}

func (r *recordingTopo) CreateGroup(ctx context.Context, streamID string) (string, error) {
	if err := r.record("CreateGroup " + streamID); err != nil {
		return "", err
	}
	return "g-new-" + streamID, nil
}

func (r *recordingTopo) SetGroupStream(ctx context.Context, groupID, streamID string) error {
	return r.record("SetGroupStream " + groupID + " " + streamID)
}

func (r *recordingTopo) SetGroupMute(ctx context.Context, groupID string, mute bool) error {
	if mute {
		return r.record("SetGroupMute " + groupID + " on")
	}
	return r.record("SetGroupMute " + groupID + " off")
}

func (r *recordingTopo) SetClientGroup(ctx context.Context, clientID, groupID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.record("SetClientGroup " + clientID + " " + groupID)
}

func (r *recordingTopo) SetClientVolume(ctx context.Context, clientID string, volume int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.record("SetClientVolume " + clientID)
}

func (r *recordingTopo) SetClientMute(ctx context.Context, clientID string, mute bool) error {
	return r.record("SetClientMute " + clientID)
}

func (r *recordingTopo) SetClientLatency(ctx context.Context, clientID string, latencyMS int) error {
	return r.record("SetClientLatency " + clientID)
}

func (r *recordingTopo) ControlStream(ctx context.Context, streamID, cmd string, params map[string]any) error {
	return r.record("ControlStream " + streamID + " " + cmd)
}

func (r *recordingTopo) Notifications() <-chan topology.Notification { return r.notifs }

var _ topology.Client = (*recordingTopo)(nil)

func testConfig() *config.Config {
	return &config.Config{
		Zones: []config.Zone{
			{Index: 1, Name: "Living Room", Stream: "living"},
			{Index: 2, Name: "Kitchen", Stream: "kitchen"},
		},
		Clients: []config.Client{
			{Index: 1, DeviceID: "dev-1", DefaultZone: 1},
			{Index: 3, DeviceID: "dev-3", DefaultZone: 2},
		},
		Reconcile: config.ReconcileConfig{
			Interval:        time.Second,
			GraceWindow:     5 * time.Second,
			MaxMovesPerTick: 8,
		},
	}
}

type fixture struct {
	svc    *command.Service
	store  *state.Store
	mapper *topology.Mapper
	topo   *recordingTopo
	bus    *events.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testConfig()
	topo := newRecordingTopo()
	bus := events.NewBus()
	store := state.New(cfg, bus)
	mapper := topology.NewMapper(topo, cfg, nil)
	return &fixture{
		svc:    command.New(cfg, store, topo, mapper),
		store:  store,
		mapper: mapper,
		topo:   topo,
		bus:    bus,
	}
}

func TestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.svc.SetZoneVolume(ctx, 1, 101); !models.IsValidation(err) {
		t.Errorf("volume 101: got %v", err)
	}
	if err := f.svc.SetZoneVolume(ctx, 1, -1); !models.IsValidation(err) {
		t.Errorf("volume -1: got %v", err)
	}
	if err := f.svc.SetPlaylist(ctx, 1, 0); !models.IsValidation(err) {
		t.Errorf("playlist 0: got %v", err)
	}
	if err := f.svc.SetClientLatency(ctx, 1, -5); !models.IsValidation(err) {
		t.Errorf("latency -5: got %v", err)
	}
}

func TestNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.svc.SetZoneVolume(ctx, 9, 50); !models.IsNotFound(err) {
		t.Errorf("zone 9: got %v", err)
	}
	if err := f.svc.SetClientMute(ctx, 2, true); !models.IsNotFound(err) {
		t.Errorf("client 2: got %v", err)
	}
	if err := f.svc.AssignClientToZone(ctx, 1, 9); !models.IsNotFound(err) {
		t.Errorf("assign to zone 9: got %v", err)
	}
}

func TestCommandsNeverTouchStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before := f.store.Snapshot()

	// The subscriber sees zero events from command dispatch.
	ch := f.bus.Subscribe("watch")

	if err := f.svc.SetClientVolume(ctx, 1, 42); err != nil {
		t.Fatalf("SetClientVolume: %v", err)
	}
	if err := f.svc.SetZoneMute(ctx, 2, true); err != nil {
		t.Fatalf("SetZoneMute: %v", err)
	}
	if err := f.svc.Play(ctx, 1); err != nil {
		t.Fatalf("Play: %v", err)
	}

	after := f.store.Snapshot()
	if !reflect.DeepEqual(before, after) {
		t.Error("command dispatch mutated the state store")
	}
	select {
	case ev := <-ch:
		t.Errorf("unexpected state event %+v from command dispatch", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestForwarding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.svc.SetClientMute(ctx, 3, true); err != nil {
		t.Fatalf("SetClientMute: %v", err)
	}
	if err := f.svc.NextTrack(ctx, 2); err != nil {
		t.Fatalf("NextTrack: %v", err)
	}

	calls := f.topo.recorded()
	want := []string{"SetClientMute dev-3", "ControlStream kitchen next"}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("forwarded calls = %v, want %v", calls, want)
	}
}

func TestZoneVolumeFansOutToMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Seed confirmed membership through the store (as the pump would).
	zs, _ := f.store.GetZone(1)
	zs.Clients = []int{1, 3}
	f.store.SetZone(1, zs)

	if err := f.svc.SetZoneVolume(ctx, 1, 42); err != nil {
		t.Fatalf("SetZoneVolume: %v", err)
	}
	want := []string{"SetClientVolume dev-1", "SetClientVolume dev-3"}
	if got := f.topo.recorded(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestExternalErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.topo.failAll = true
	if err := f.svc.SetClientVolume(ctx, 1, 10); !models.IsExternalUnavailable(err) {
		t.Errorf("expected external-unavailable, got %v", err)
	}

	f.topo.failAll = false
	f.topo.reject = true
	if err := f.svc.SetClientVolume(ctx, 1, 10); !models.IsExternalRejected(err) {
		t.Errorf("expected external-rejected, got %v", err)
	}
}

func TestAssignRecordsPendingAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.svc.AssignClientToZone(ctx, 1, 2); err != nil {
		t.Fatalf("AssignClientToZone: %v", err)
	}
	if z, ok := f.mapper.DesiredZone(1); !ok || z != 2 {
		t.Errorf("desired zone = %d, %v", z, ok)
	}

	// A reconcile right after the assignment must not issue a counter-move:
	// the recording topo reports dev-1 still in g-1 (zone 1's group), yet
	// the pending assignment shields it.
	movesBefore := len(f.topo.recorded())
	if err := f.mapper.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	for _, call := range f.topo.recorded()[movesBefore:] {
		if call != "EnumerateGroups" {
			t.Errorf("reconcile issued %q during grace window", call)
		}
	}
}

func TestCancellationPropagates(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.svc.SetClientVolume(ctx, 1, 10)
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	// The store stays untouched regardless of cancellation timing.
	if st, _ := f.store.GetClient(1); st.Volume != 0 {
		t.Errorf("store mutated on cancelled command: %+v", st)
	}
}
