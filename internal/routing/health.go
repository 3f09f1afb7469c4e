package routing

import (
	"context"
	"sync"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/pastelnetwork/go-inference-client/internal/config"
	"github.com/pastelnetwork/go-inference-client/internal/metrics"
	"github.com/pastelnetwork/go-inference-client/internal/supernode"
	"github.com/pastelnetwork/go-inference-client/internal/types"
)

type healthEntry struct {
	healthy bool
	ratio   float64
	expires time.Time
}

// HealthFilter probes candidate supernodes for reachability and
// performance, caching verdicts per identity for a short wall-clock TTL so
// a burst of routing decisions does not re-probe the same nodes. A probe
// failure removes the node from the candidate set, never aborts the pass.
type HealthFilter struct {
	cfg     config.Routing
	factory supernode.Factory
	clock   time2.Clock
	limiter *rate.Limiter
	metrics *metrics.Service

	mu    sync.Mutex
	cache map[string]healthEntry
}

// NewHealthFilter creates a filter. metrics may be nil.
func NewHealthFilter(cfg config.Routing, factory supernode.Factory, clock time2.Clock, m *metrics.Service) *HealthFilter {
	return &HealthFilter{
		cfg:     cfg,
		factory: factory,
		clock:   clock,
		limiter: rate.NewLimiter(rate.Limit(cfg.ProbesPerSecond), 1),
		metrics: m,
		cache:   make(map[string]healthEntry),
	}
}

// FilterLive returns the subset of nodes that are usable, reachable within
// the probe timeout and report a performance ratio at or above the
// configured minimum. Input order is preserved; output is capped at the
// configured maximum node count.
func (f *HealthFilter) FilterLive(ctx context.Context, nodes []types.Supernode) []types.Supernode {
	verdicts := make([]bool, len(nodes))
	var wg sync.WaitGroup

	for i, node := range nodes {
		if !node.Usable() {
			continue
		}
		if healthy, ok := f.cached(node.PastelID); ok {
			verdicts[i] = healthy
			continue
		}
		wg.Add(1)
		go func(i int, node types.Supernode) {
			defer wg.Done()
			verdicts[i] = f.probe(ctx, node)
		}(i, node)
	}
	wg.Wait()

	live := make([]types.Supernode, 0, len(nodes))
	for i, node := range nodes {
		if !verdicts[i] {
			continue
		}
		live = append(live, node)
		if len(live) >= f.cfg.MaxFilteredNodes {
			break
		}
	}
	return live
}

func (f *HealthFilter) cached(pastelID string) (healthy, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, found := f.cache[pastelID]
	if !found || f.clock.Now().After(entry.expires) {
		return false, false
	}
	return entry.healthy, true
}

func (f *HealthFilter) probe(ctx context.Context, node types.Supernode) bool {
	if err := f.limiter.Wait(ctx); err != nil {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, f.cfg.ProbeTimeout)
	defer cancel()

	started := f.clock.Now()
	resp, err := f.factory(node).Ping(probeCtx)
	elapsed := f.clock.Since(started)
	if f.metrics != nil {
		f.metrics.ProbeDuration.Observe(elapsed.Seconds())
	}

	healthy := err == nil && resp.PerformanceRatio >= f.cfg.MinPerformanceRatio
	if err != nil {
		log.Debug().Str("supernode", node.PastelID).Err(err).Msg("liveness probe failed")
	} else if !healthy {
		log.Debug().
			Str("supernode", node.PastelID).
			Float64("performance_ratio", resp.PerformanceRatio).
			Float64("minimum", f.cfg.MinPerformanceRatio).
			Msg("supernode below performance minimum")
	}

	ratio := 0.0
	if resp != nil {
		ratio = resp.PerformanceRatio
	}
	f.mu.Lock()
	f.cache[node.PastelID] = healthEntry{
		healthy: healthy,
		ratio:   ratio,
		expires: f.clock.Now().Add(f.cfg.HealthCacheTTL),
	}
	f.mu.Unlock()
	return healthy
}
