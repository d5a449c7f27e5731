package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionStatusTerminal(t *testing.T) {
	assert.False(t, SessionActive.Terminal())
	assert.True(t, SessionAgreed.Terminal())
	assert.True(t, SessionFailed.Terminal())
	assert.True(t, SessionTimedOut.Terminal())
}

func TestProposalValidate(t *testing.T) {
	good := Proposal{
		From:  "a",
		Split: 0.5,
		Terms: Terms{WhatBGets: []string{"seed funding"}},
	}
	assert.NoError(t, good.Validate())

	assert.Error(t, Proposal{Split: 0.5, Terms: good.Terms}.Validate())
	assert.Error(t, Proposal{From: "a", Split: 1.2, Terms: good.Terms}.Validate())
	assert.Error(t, Proposal{From: "a", Split: 0.5}.Validate())
}

func TestHasSubstantiveReason(t *testing.T) {
	c := &MatchCandidate{Reasons: []MatchReason{
		{Type: ReasonNeedOffering, Score: 0.2, Evidence: "weak"},
	}}
	assert.False(t, c.HasSubstantiveReason(), "weak reasons do not clear the gate")

	c.Reasons = append(c.Reasons, MatchReason{Type: ReasonComplementarySkill, Score: 0.8, Evidence: "strong"})
	assert.True(t, c.HasSubstantiveReason())
}
