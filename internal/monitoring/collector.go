package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/network-cli/internal/model"
	"github.com/sells-group/network-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of negotiation health.
type MetricsSnapshot struct {
	// Session counts by status.
	SessionsActive   int `json:"sessions_active"`
	SessionsAgreed   int `json:"sessions_agreed"`
	SessionsFailed   int `json:"sessions_failed"`
	SessionsTimedOut int `json:"sessions_timed_out"`
	SessionsTotal    int `json:"sessions_total"`

	// AgreementRate and TimeoutRate are over finished sessions only;
	// active sessions say nothing about outcomes yet.
	AgreementRate float64 `json:"agreement_rate"`
	TimeoutRate   float64 `json:"timeout_rate"`

	// Agreement quality.
	AgreementCount   int     `json:"agreement_count"`
	AvgMutualBenefit float64 `json:"avg_mutual_benefit"`

	// Match candidates rejected by the unbiased gate, per scoring version.
	RejectionsByVersion []store.RejectionCount `json:"rejections_by_version"`

	CollectedAt time.Time `json:"collected_at"`
}

// Collector gathers metrics from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of negotiation metrics.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{CollectedAt: time.Now().UTC()}

	counts, err := c.store.SessionCounts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: session counts")
	}
	snap.SessionsActive = counts[model.SessionActive]
	snap.SessionsAgreed = counts[model.SessionAgreed]
	snap.SessionsFailed = counts[model.SessionFailed]
	snap.SessionsTimedOut = counts[model.SessionTimedOut]
	snap.SessionsTotal = snap.SessionsActive + snap.SessionsAgreed + snap.SessionsFailed + snap.SessionsTimedOut

	finished := snap.SessionsAgreed + snap.SessionsFailed + snap.SessionsTimedOut
	if finished > 0 {
		snap.AgreementRate = float64(snap.SessionsAgreed) / float64(finished)
		snap.TimeoutRate = float64(snap.SessionsTimedOut) / float64(finished)
	}

	count, avg, err := c.store.AgreementStats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: agreement stats")
	}
	snap.AgreementCount = count
	snap.AvgMutualBenefit = avg

	rejections, err := c.store.RejectionCounts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: rejection counts")
	}
	snap.RejectionsByVersion = rejections

	return snap, nil
}
