package topology

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/snapzone/snapzone/internal/config"
	"github.com/snapzone/snapzone/internal/metric"
	"github.com/snapzone/snapzone/internal/models"
)

// pendingAssignment shields a client from drift correction for the grace
// window after an explicit assignment command.
type pendingAssignment struct {
	zone int
	at   time.Time
}

// Mapper resolves and maintains the zone-to-group mapping and heals
// topology drift. Explicit assignment commands always take precedence over
// reconciliation within the configured grace window.
type Mapper struct {
	topo    Client
	cfg     *config.Config
	grace   time.Duration
	limiter *rate.Limiter
	metrics *metric.Metrics

	mu      sync.Mutex
	groups  map[int]string // zone index -> group id
	byGroup map[string]int // group id -> zone index
	desired map[int]int    // client index -> desired zone index
	pending map[int]pendingAssignment

	// now is swappable for tests.
	now func() time.Time
}

// NewMapper creates a mapper for the configured zones and clients.
// Each client's desired zone starts at its configured default zone.
func NewMapper(topo Client, cfg *config.Config, metrics *metric.Metrics) *Mapper {
	m := &Mapper{
		topo:    topo,
		cfg:     cfg,
		grace:   cfg.Reconcile.GraceWindow,
		limiter: rate.NewLimiter(rate.Every(time.Second), cfg.Reconcile.MaxMovesPerTick),
		metrics: metrics,
		groups:  make(map[int]string, len(cfg.Zones)),
		byGroup: make(map[string]int, len(cfg.Zones)),
		desired: make(map[int]int, len(cfg.Clients)),
		pending: make(map[int]pendingAssignment),
		now:     time.Now,
	}
	for _, c := range cfg.Clients {
		m.desired[c.Index] = c.DefaultZone
	}
	return m
}

// Bootstrap performs the startup resolution: every configured zone ends up
// mapped to exactly one group bound to its stream, creating groups as
// needed, and every configured client is placed in its default zone.
func (m *Mapper) Bootstrap(ctx context.Context) error {
	for _, z := range m.cfg.Zones {
		if _, err := m.ResolveGroupForZone(ctx, z.Index); err != nil {
			return fmt.Errorf("resolve zone %d: %w", z.Index, err)
		}
	}

	// Initial placement follows the reconciliation path so a restart does
	// not fight observed reality: clients already in the right group are
	// left alone.
	if err := m.Reconcile(ctx); err != nil {
		return err
	}
	return nil
}

// ResolveGroupForZone returns the group id mapped to the zone, querying the
// external server for an existing group bound to the zone's stream and
// creating one if none exists. The result is cached.
func (m *Mapper) ResolveGroupForZone(ctx context.Context, zoneIndex int) (string, error) {
	zone, ok := m.cfg.Zone(zoneIndex)
	if !ok {
		return "", models.ErrNotFound(fmt.Sprintf("zone %d not found", zoneIndex))
	}

	m.mu.Lock()
	if id, ok := m.groups[zoneIndex]; ok {
		m.mu.Unlock()
		return id, nil
	}
	m.mu.Unlock()

	groups, err := m.topo.EnumerateGroups(ctx)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another caller may have resolved the zone while we were querying.
	if id, ok := m.groups[zoneIndex]; ok {
		return id, nil
	}

	for _, g := range groups {
		if g.StreamID != zone.Stream {
			continue
		}
		if _, claimed := m.byGroup[g.ID]; claimed {
			continue
		}
		m.groups[zoneIndex] = g.ID
		m.byGroup[g.ID] = zoneIndex
		slog.Info("topology: mapped zone to existing group", "zone", zoneIndex, "group", g.ID, "stream", zone.Stream)
		return g.ID, nil
	}

	// No existing group carries this zone's stream: create one. The
	// create call runs under the mapper lock so two zones can never
	// claim the same new group.
	id, err := m.topo.CreateGroup(ctx, zone.Stream)
	if err != nil {
		return "", err
	}
	// A claim-based server can hand back a group another zone already
	// owns when it has no spare groups left. Caching it would make two
	// zones share one group and misroute confirmations.
	if owner, claimed := m.byGroup[id]; claimed {
		return "", models.ErrExternalRejected(fmt.Sprintf(
			"no distinct group available for stream %s: server returned group %s already mapped to zone %d",
			zone.Stream, id, owner))
	}
	m.groups[zoneIndex] = id
	m.byGroup[id] = zoneIndex
	slog.Info("topology: created group for zone", "zone", zoneIndex, "group", id, "stream", zone.Stream)
	return id, nil
}

// GroupForZone returns the cached group id for the zone without touching
// the external server.
func (m *Mapper) GroupForZone(zoneIndex int) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.groups[zoneIndex]
	return id, ok
}

// ZoneForGroup returns the zone mapped to the given group id.
func (m *Mapper) ZoneForGroup(groupID string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.byGroup[groupID]
	return idx, ok
}

// MoveClientToZone issues the external group-membership change for an
// explicit assignment command and records the pending assignment that
// shields the client from reconciliation for the grace window.
func (m *Mapper) MoveClientToZone(ctx context.Context, clientIndex, zoneIndex int) error {
	client, ok := m.cfg.Client(clientIndex)
	if !ok {
		return models.ErrNotFound(fmt.Sprintf("client %d not found", clientIndex))
	}

	groupID, err := m.ResolveGroupForZone(ctx, zoneIndex)
	if err != nil {
		return err
	}

	// Record intent before the external call so a reconciliation tick
	// racing with the move cannot undo it.
	m.mu.Lock()
	prevDesired, hadDesired := m.desired[clientIndex]
	prevPending, hadPending := m.pending[clientIndex]
	m.desired[clientIndex] = zoneIndex
	m.pending[clientIndex] = pendingAssignment{zone: zoneIndex, at: m.now()}
	m.mu.Unlock()

	if err := m.topo.SetClientGroup(ctx, client.DeviceID, groupID); err != nil {
		m.mu.Lock()
		if hadDesired {
			m.desired[clientIndex] = prevDesired
		}
		if hadPending {
			m.pending[clientIndex] = prevPending
		} else {
			delete(m.pending, clientIndex)
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

// Reconcile runs one idempotent self-healing pass: every client whose
// externally observed group differs from the group of its desired zone is
// moved back, unless an unexpired pending assignment protects it. External
// unavailability is logged and the pass is skipped; it is never fatal.
func (m *Mapper) Reconcile(ctx context.Context) error {
	groups, err := m.topo.EnumerateGroups(ctx)
	if err != nil {
		slog.Warn("reconcile: topology server unavailable, skipping tick", "err", err)
		if m.metrics != nil {
			m.metrics.ReconcileRuns.WithLabelValues("skipped").Inc()
			m.metrics.TopologyConnected.Set(0)
		}
		return nil
	}
	if m.metrics != nil {
		m.metrics.TopologyConnected.Set(1)
	}

	observed := make(map[string]string) // device id -> group id
	for _, g := range groups {
		for _, cid := range g.ClientIDs {
			observed[cid] = g.ID
		}
	}

	type move struct {
		clientIndex int
		deviceID    string
		zone        int
	}
	var moves []move

	m.mu.Lock()
	now := m.now()
	for _, c := range m.cfg.Clients {
		if p, ok := m.pending[c.Index]; ok {
			if now.Sub(p.at) < m.grace {
				// Manual command precedence: leave the client
				// alone until the grace window expires.
				continue
			}
			delete(m.pending, c.Index)
		}

		zone := m.desired[c.Index]
		if zone == models.ZoneUnassigned {
			continue
		}
		want, ok := m.groups[zone]
		if !ok {
			// Zone not resolved yet; picked up by the next tick
			// after resolution.
			continue
		}
		if got, seen := observed[c.DeviceID]; !seen || got != want {
			moves = append(moves, move{clientIndex: c.Index, deviceID: c.DeviceID, zone: zone})
		}
	}
	m.mu.Unlock()

	for _, mv := range moves {
		if !m.limiter.Allow() {
			slog.Warn("reconcile: move budget exhausted, deferring remaining corrections")
			break
		}
		// The corrections run outside the lock and each call can take
		// seconds. A manual assignment may have landed since the moves
		// were collected; re-check its shield before issuing the call.
		m.mu.Lock()
		if p, ok := m.pending[mv.clientIndex]; ok && m.now().Sub(p.at) < m.grace {
			m.mu.Unlock()
			continue
		}
		stale := m.desired[mv.clientIndex] != mv.zone
		m.mu.Unlock()
		if stale {
			continue
		}
		groupID, ok := m.GroupForZone(mv.zone)
		if !ok {
			continue
		}
		if err := m.topo.SetClientGroup(ctx, mv.deviceID, groupID); err != nil {
			slog.Warn("reconcile: drift correction failed", "client", mv.clientIndex, "zone", mv.zone, "err", err)
			continue
		}
		slog.Info("reconcile: corrected topology drift", "client", mv.clientIndex, "zone", mv.zone, "group", groupID)
		if m.metrics != nil {
			m.metrics.DriftCorrections.Inc()
		}
	}

	if m.metrics != nil {
		m.metrics.ReconcileRuns.WithLabelValues("ok").Inc()
	}
	return nil
}

// Run executes Reconcile on the configured interval until ctx is cancelled.
func (m *Mapper) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Reconcile.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.Reconcile(ctx); err != nil {
				slog.Warn("reconcile: pass failed", "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// DesiredZone returns the current desired zone for the client.
func (m *Mapper) DesiredZone(clientIndex int) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.desired[clientIndex]
	return z, ok
}
