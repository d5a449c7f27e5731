package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/network-cli/internal/cache"
	"github.com/sells-group/network-cli/internal/config"
	"github.com/sells-group/network-cli/internal/graph"
	"github.com/sells-group/network-cli/internal/match"
	"github.com/sells-group/network-cli/internal/model"
	"github.com/sells-group/network-cli/internal/monitoring"
	"github.com/sells-group/network-cli/internal/negotiation"
	"github.com/sells-group/network-cli/internal/reach"
	"github.com/sells-group/network-cli/internal/store"
	"github.com/sells-group/network-cli/internal/trust"
	"github.com/sells-group/network-cli/pkg/profileapi"
)

// env wires the store, graph and engines for one command invocation.
type env struct {
	store       store.Store
	graph       *graph.Memory
	cache       cache.Cache
	trust       *trust.Engine
	reach       *reach.Engine
	matcher     *match.Matcher
	facilitator *negotiation.Facilitator
	collector   *monitoring.Collector
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "network.db"
		}
		return store.NewSQLite(dsn)
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initEnv opens the store, loads the graph into memory and builds every
// engine. The in-memory graph is the working copy; the store is the
// durable one.
func initEnv(ctx context.Context) (*env, error) {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var c cache.Cache = cache.Nop{}
	if cfg.Cache.Enabled {
		c = cache.NewMemory()
	}

	g := graph.NewMemory()
	edges, err := st.AllEdges(ctx)
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "load edges")
	}
	for _, e := range edges {
		if err := g.PutEdge(ctx, e); err != nil {
			zap.L().Warn("skipping stored edge", zap.String("from", e.From), zap.String("to", e.To), zap.Error(err))
		}
	}

	// Edge writes invalidate every memoized trust and path result. Coarse
	// but correct; a stale shortcut through a changed edge is worse than a
	// recomputation.
	g.OnEdgeChange(func(from, to string) {
		c.InvalidatePrefix("trust:")
		c.InvalidatePrefix("path:")
	})

	reachEngine := reach.New(g, c, cfg.Reach)
	matcher, err := match.New(cfg.Match, reachEngine, st)
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	// Mid-session availability checks go to the remote profile service when
	// one is configured; otherwise the local store answers.
	var profiles negotiation.ProfileSource = st
	if cfg.Profile.BaseURL != "" {
		client := profileapi.New(cfg.Profile.BaseURL, cfg.Profile.Key,
			profileapi.WithRateLimit(cfg.Profile.RateLimitRPS),
			profileapi.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Profile.TimeoutSecs) * time.Second}),
		)
		profiles = remoteProfiles{client: client}
	}

	zap.L().Info("environment ready",
		zap.String("driver", cfg.Store.Driver),
		zap.Int("edges", len(edges)),
	)

	return &env{
		store:       st,
		graph:       g,
		cache:       c,
		trust:       trust.New(g, c, cfg.Trust),
		reach:       reachEngine,
		matcher:     matcher,
		facilitator: negotiation.NewFacilitator(cfg.Negotiation, st, profiles),
		collector:   monitoring.NewCollector(st),
	}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		zap.L().Warn("closing store", zap.Error(err))
	}
}

// remoteProfiles adapts the profileapi client to the facilitator's
// availability check.
type remoteProfiles struct {
	client profileapi.Client
}

func (r remoteProfiles) Profile(ctx context.Context, id string) (*model.Profile, error) {
	return r.client.FetchProfile(ctx, id)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
