package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// SessionStatus is the lifecycle state of a negotiation session.
// Agreed, failed and timed_out are terminal; a session is never reopened.
type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionAgreed   SessionStatus = "agreed"
	SessionFailed   SessionStatus = "failed"
	SessionTimedOut SessionStatus = "timed_out"
)

// Terminal reports whether the status permits no further transitions.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionAgreed, SessionFailed, SessionTimedOut:
		return true
	}
	return false
}

// FailureKind distinguishes why a session failed.
type FailureKind string

const (
	FailureRejected               FailureKind = "rejected"
	FailureCancelled              FailureKind = "cancelled"
	FailureParticipantUnavailable FailureKind = "participant_unavailable"
)

// Decision is an agent's verdict on a proposal.
type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionCounter Decision = "counter"
	DecisionReject  Decision = "reject"
)

// Terms describes who gets and gives what under a proposal or agreement.
type Terms struct {
	WhatAGets  []string `json:"what_a_gets"`
	WhatAGives []string `json:"what_a_gives"`
	WhatBGets  []string `json:"what_b_gets"`
	WhatBGives []string `json:"what_b_gives"`
	Conditions []string `json:"conditions,omitempty"`
	Timeline   string   `json:"timeline,omitempty"`
}

// Proposal is one offer inside a negotiation. Split is the fraction of the
// exchanged value the proposer keeps, in [0,1]; counters move it toward the
// responder.
type Proposal struct {
	From  string  `json:"from"`
	Terms Terms   `json:"terms"`
	Split float64 `json:"split"`
	Note  string  `json:"note,omitempty"`
}

// Validate checks proposal shape at the facilitator boundary.
func (p Proposal) Validate() error {
	if p.From == "" {
		return eris.New("model: proposal missing sender")
	}
	if p.Split < 0 || p.Split > 1 {
		return eris.Errorf("model: proposal split %.3f out of [0,1]", p.Split)
	}
	if len(p.Terms.WhatAGets) == 0 && len(p.Terms.WhatBGets) == 0 {
		return eris.New("model: proposal has no terms")
	}
	return nil
}

// RoundRecord is one immutable entry in a session's history.
type RoundRecord struct {
	Round      int       `json:"round"`
	Proposal   Proposal  `json:"proposal"`
	Decision   Decision  `json:"decision"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// NegotiationSession is the aggregate for one negotiation: an append-only
// event log plus the derived current state.
type NegotiationSession struct {
	ID           string        `json:"id"`
	ParticipantA string        `json:"participant_a"`
	ParticipantB string        `json:"participant_b"`
	StrategyName string        `json:"strategy_name"`
	Round        int           `json:"round"`
	MaxRounds    int           `json:"max_rounds"`
	History      []RoundRecord `json:"history"`
	Status       SessionStatus `json:"status"`
	FailureKind  FailureKind   `json:"failure_kind,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	Deadline     time.Time     `json:"deadline"`
}

// Agreement is the permanent record created only when a session reaches
// the agreed state.
type Agreement struct {
	SessionID          string    `json:"session_id"`
	FinalTerms         Terms     `json:"final_terms"`
	MutualBenefitScore float64   `json:"mutual_benefit_score"`
	BalanceScore       float64   `json:"balance_score"`
	CreatedAt          time.Time `json:"created_at"`
}
