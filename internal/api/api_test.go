package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/snapzone/snapzone/internal/api"
	"github.com/snapzone/snapzone/internal/command"
	"github.com/snapzone/snapzone/internal/config"
	"github.com/snapzone/snapzone/internal/events"
	"github.com/snapzone/snapzone/internal/metric"
	"github.com/snapzone/snapzone/internal/models"
	"github.com/snapzone/snapzone/internal/state"
)

type fakeDispatcher struct {
	ops  []command.Operation
	reqs []command.Request
	err  *models.AppError
}

func (f *fakeDispatcher) Dispatch(_ context.Context, op command.Operation, req command.Request) *models.AppError {
	f.ops = append(f.ops, op)
	f.reqs = append(f.reqs, req)
	return f.err
}

func testRouter(t *testing.T) (http.Handler, *state.Store, *fakeDispatcher, *metric.Metrics) {
	t.Helper()
	cfg := &config.Config{
		Zones: []config.Zone{
			{Index: 1, Name: "Living Room", Stream: "living"},
			{Index: 2, Name: "Kitchen", Stream: "kitchen"},
		},
		Clients: []config.Client{
			{Index: 1, Name: "Shelf", DeviceID: "aa:bb", DefaultZone: 1},
		},
	}
	store := state.New(cfg, events.NewBus())
	d := &fakeDispatcher{}
	metrics := metric.New()
	return api.NewRouter(store, d, nil, metrics), store, d, metrics
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	h, _, _, _ := testRouter(t)
	rec := get(t, h, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGetState(t *testing.T) {
	h, store, _, _ := testRouter(t)
	zs, _ := store.GetZone(1)
	zs.Volume = 33
	store.SetZone(1, zs)

	rec := get(t, h, "/api/state")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var snap models.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(snap.Zones) != 2 || len(snap.Clients) != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Zones[1].Volume != 33 {
		t.Fatalf("zone 1 volume = %d", snap.Zones[1].Volume)
	}
}

func TestGetZone(t *testing.T) {
	h, _, _, _ := testRouter(t)

	rec := get(t, h, "/api/zones/1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = get(t, h, "/api/zones/99")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	rec = get(t, h, "/api/zones/abc")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetClient(t *testing.T) {
	h, _, _, _ := testRouter(t)
	rec := get(t, h, "/api/clients/1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	rec = get(t, h, "/api/clients/5")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestPostCommand(t *testing.T) {
	h, _, d, metrics := testRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/command/zone.volume.set",
		strings.NewReader(`{"zone":1,"volume":40}`))
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(d.ops) != 1 || d.ops[0] != command.OpZoneVolumeSet {
		t.Fatalf("dispatched = %v", d.ops)
	}
	if d.reqs[0].Zone == nil || *d.reqs[0].Zone != 1 || *d.reqs[0].Volume != 40 {
		t.Fatalf("request = %+v", d.reqs[0])
	}
	got := testutil.ToFloat64(metrics.CommandsTotal.WithLabelValues("zone.volume.set", "ok"))
	if got != 1 {
		t.Fatalf("ok count = %v, want 1", got)
	}
}

func TestPostCommandUnknownOpBucketed(t *testing.T) {
	h, _, d, metrics := testRouter(t)
	d.err = models.ErrNotFound("unknown operation")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/command/zone.teleport",
		strings.NewReader(`{"zone":1}`))
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	// Arbitrary operation names must not mint new label values.
	got := testutil.ToFloat64(metrics.CommandsTotal.WithLabelValues("unknown", "error"))
	if got != 1 {
		t.Fatalf("unknown-bucket count = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(metrics.CommandsTotal); n != 1 {
		t.Fatalf("label combinations = %d, want 1", n)
	}
}

func TestPostCommandError(t *testing.T) {
	h, _, d, _ := testRouter(t)
	d.err = models.ErrNotFound("zone not found")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/command/zone.play",
		strings.NewReader(`{"zone":9}`))
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var appErr models.AppError
	if err := json.Unmarshal(rec.Body.Bytes(), &appErr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if appErr.Code != models.CodeNotFound {
		t.Fatalf("code = %s", appErr.Code)
	}
}

func TestPostCommandBadJSON(t *testing.T) {
	h, _, d, _ := testRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/command/zone.play", strings.NewReader(`{`))
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(d.ops) != 0 {
		t.Fatalf("dispatched = %v, want none", d.ops)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _, _, _ := testRouter(t)
	rec := get(t, h, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "snapzone") {
		t.Fatal("metrics output missing namespace")
	}
}
