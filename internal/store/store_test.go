package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/network-cli/internal/model"
	"github.com/sells-group/network-cli/internal/resilience"
)

// openStores returns every implementation the conformance suite runs
// against. Postgres is exercised separately with pgxmock.
func openStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(context.Background()))
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func sampleProfile(id string) *model.Profile {
	return &model.Profile{
		ParticipantID: id,
		Needs: model.TieredNeeds{
			Explicit: []model.NeedItem{{Text: "seed funding", Category: model.CategoryFunding, Priority: model.PriorityHigh}},
		},
		Offerings: model.TieredOfferings{
			Explicit: []model.OfferingItem{{Text: "ml consulting", Category: model.CategoryExpertise, Capacity: model.CapacityModerate}},
		},
	}
}

func sampleSession(id string, startedAt time.Time) *model.NegotiationSession {
	return &model.NegotiationSession{
		ID:           id,
		ParticipantA: "alice",
		ParticipantB: "bob",
		StrategyName: "adaptive",
		MaxRounds:    10,
		Status:       model.SessionActive,
		StartedAt:    startedAt,
		Deadline:     startedAt.Add(5 * time.Minute),
	}
}

func sampleRound(round int, from string, at time.Time) model.RoundRecord {
	return model.RoundRecord{
		Round: round,
		Proposal: model.Proposal{
			From:  from,
			Terms: model.Terms{WhatAGets: []string{"intro"}, WhatBGets: []string{"advice"}},
			Split: 0.55,
		},
		Decision:   model.DecisionCounter,
		Confidence: 0.7,
		Timestamp:  at,
	}
}

func TestStore_EdgeUpsert(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.PutEdge(ctx, model.Edge{From: "a", To: "b", Trust: 0.5, Strength: 0.4, LastInteraction: now}))
			require.NoError(t, s.PutEdge(ctx, model.Edge{From: "a", To: "c", Trust: 0.6, Strength: 0.6, LastInteraction: now}))
			// same pair again overwrites, no duplicate
			require.NoError(t, s.PutEdge(ctx, model.Edge{From: "a", To: "b", Trust: 0.9, Strength: 0.8, LastInteraction: now}))

			edges, err := s.Edges(ctx, "a")
			require.NoError(t, err)
			require.Len(t, edges, 2)
			assert.Equal(t, "b", edges[0].To)
			assert.InDelta(t, 0.9, edges[0].Trust, 1e-9)

			all, err := s.AllEdges(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 2)

			assert.Error(t, s.PutEdge(ctx, model.Edge{From: "a", To: "a", Trust: 0.5, Strength: 0.5}))
			assert.Error(t, s.PutEdge(ctx, model.Edge{From: "a", To: "d", Trust: 1.5, Strength: 0.5}))
		})
	}
}

func TestStore_ProfileRoundTrip(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := sampleProfile("alice")
			p.Needs.Explicit[0].Quantifiable = &model.Range{Min: 2_000_000, Max: 3_000_000}
			require.NoError(t, s.SaveProfile(ctx, p))

			got, err := s.Profile(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, p, got)

			_, err = s.Profile(ctx, "nobody")
			require.Error(t, err)
			assert.True(t, resilience.IsUnavailable(err), "missing profile must classify as unavailable")

			require.NoError(t, s.SaveProfile(ctx, sampleProfile("bob")))
			ids, err := s.Participants(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"alice", "bob"}, ids)

			assert.Error(t, s.SaveProfile(ctx, &model.Profile{ParticipantID: "bad"}))
		})
	}
}

func TestStore_SessionHistory(t *testing.T) {
	started := time.Now().UTC().Truncate(time.Second)
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sess := sampleSession("sess-1", started)
			require.NoError(t, s.SaveSession(ctx, sess))

			for i := 1; i <= 3; i++ {
				from := "alice"
				if i%2 == 0 {
					from = "bob"
				}
				require.NoError(t, s.AppendRound(ctx, "sess-1", sampleRound(i, from, started.Add(time.Duration(i)*time.Second))))
			}

			sess.Round = 3
			sess.Status = model.SessionFailed
			sess.FailureKind = model.FailureRejected
			sess.Reason = "responder rejected"
			require.NoError(t, s.SaveSession(ctx, sess))

			got, err := s.GetSession(ctx, "sess-1")
			require.NoError(t, err)
			assert.Equal(t, model.SessionFailed, got.Status)
			assert.Equal(t, model.FailureRejected, got.FailureKind)
			assert.Equal(t, "responder rejected", got.Reason)
			require.Len(t, got.History, 3)
			for i, rec := range got.History {
				assert.Equal(t, i+1, rec.Round)
				assert.Equal(t, model.DecisionCounter, rec.Decision)
				assert.Equal(t, "intro", rec.Proposal.Terms.WhatAGets[0])
			}

			_, err = s.GetSession(ctx, "missing")
			assert.Error(t, err)
			assert.Error(t, s.AppendRound(ctx, "missing", sampleRound(1, "alice", started)))
		})
	}
}

func TestStore_ListSessions(t *testing.T) {
	base := time.Now().UTC().Truncate(time.Second)
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 5; i++ {
				sess := sampleSession(fmt.Sprintf("sess-%d", i), base.Add(time.Duration(i)*time.Minute))
				if i < 2 {
					sess.Status = model.SessionAgreed
				}
				require.NoError(t, s.SaveSession(ctx, sess))
			}

			all, err := s.ListSessions(ctx, SessionFilter{})
			require.NoError(t, err)
			require.Len(t, all, 5)
			// newest first
			assert.Equal(t, "sess-4", all[0].ID)
			assert.Equal(t, "sess-0", all[4].ID)

			agreed, err := s.ListSessions(ctx, SessionFilter{Status: model.SessionAgreed})
			require.NoError(t, err)
			assert.Len(t, agreed, 2)

			page, err := s.ListSessions(ctx, SessionFilter{Limit: 2, Offset: 1})
			require.NoError(t, err)
			require.Len(t, page, 2)
			assert.Equal(t, "sess-3", page[0].ID)

			empty, err := s.ListSessions(ctx, SessionFilter{Offset: 50})
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestStore_Agreements(t *testing.T) {
	created := time.Now().UTC().Truncate(time.Second)
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.SaveSession(ctx, sampleSession("sess-1", created)))
			require.NoError(t, s.SaveSession(ctx, sampleSession("sess-2", created)))

			a := &model.Agreement{
				SessionID:          "sess-1",
				FinalTerms:         model.Terms{WhatAGets: []string{"funding intro"}, WhatBGets: []string{"advisory hours"}},
				MutualBenefitScore: 0.85,
				BalanceScore:       0.9,
				CreatedAt:          created,
			}
			require.NoError(t, s.SaveAgreement(ctx, a))

			got, err := s.GetAgreement(ctx, "sess-1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, a.FinalTerms, got.FinalTerms)
			assert.InDelta(t, 0.85, got.MutualBenefitScore, 1e-9)

			none, err := s.GetAgreement(ctx, "sess-2")
			require.NoError(t, err)
			assert.Nil(t, none)

			b := *a
			b.SessionID = "sess-2"
			b.MutualBenefitScore = 0.65
			require.NoError(t, s.SaveAgreement(ctx, &b))

			count, avg, err := s.AgreementStats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, count)
			assert.InDelta(t, 0.75, avg, 1e-9)
		})
	}
}

func TestStore_RejectionAndSessionCounts(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			cand := &model.MatchCandidate{SourceID: "alice", TargetID: "bob", ScoringVersion: "v2-unbiased"}
			require.NoError(t, s.RecordRejection(ctx, cand, "mutuality below threshold"))
			require.NoError(t, s.RecordRejection(ctx, cand, "overall below threshold"))
			old := &model.MatchCandidate{SourceID: "alice", TargetID: "carol", ScoringVersion: "v1"}
			require.NoError(t, s.RecordRejection(ctx, old, "mutuality below threshold"))

			counts, err := s.RejectionCounts(ctx)
			require.NoError(t, err)
			require.Len(t, counts, 2)
			assert.Equal(t, RejectionCount{ScoringVersion: "v1", Count: 1}, counts[0])
			assert.Equal(t, RejectionCount{ScoringVersion: "v2-unbiased", Count: 2}, counts[1])

			started := time.Now().UTC().Truncate(time.Second)
			agreed := sampleSession("sess-a", started)
			agreed.Status = model.SessionAgreed
			require.NoError(t, s.SaveSession(ctx, agreed))
			require.NoError(t, s.SaveSession(ctx, sampleSession("sess-b", started)))

			byStatus, err := s.SessionCounts(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, byStatus[model.SessionAgreed])
			assert.Equal(t, 1, byStatus[model.SessionActive])
		})
	}
}

func TestStore_EmptyStats(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			count, avg, err := s.AgreementStats(ctx)
			require.NoError(t, err)
			assert.Zero(t, count)
			assert.Zero(t, avg)

			counts, err := s.RejectionCounts(ctx)
			require.NoError(t, err)
			assert.Empty(t, counts)
		})
	}
}
