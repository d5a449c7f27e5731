package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validProfile(id string) *Profile {
	return &Profile{
		ParticipantID: id,
		Needs: TieredNeeds{
			Explicit: []NeedItem{{Text: "seed funding", Category: CategoryFunding, Priority: PriorityHigh}},
		},
		Offerings: TieredOfferings{
			Explicit: []OfferingItem{{Text: "go engineering", Category: CategoryExpertise, Capacity: CapacityModerate}},
		},
	}
}

func TestProfileValidate_OK(t *testing.T) {
	require.NoError(t, validProfile("p1").Validate())
}

func TestProfileValidate_Nil(t *testing.T) {
	var p *Profile
	assert.Error(t, p.Validate())
}

func TestProfileValidate_MissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Profile)
		want   string
	}{
		{"no id", func(p *Profile) { p.ParticipantID = " " }, "participant_id is required"},
		{"no needs", func(p *Profile) { p.Needs.Explicit = nil }, "explicit needs must not be empty"},
		{"no offerings", func(p *Profile) { p.Offerings.Explicit = nil }, "explicit offerings must not be empty"},
		{"empty need text", func(p *Profile) { p.Needs.Explicit[0].Text = "" }, "empty text"},
		{"inverted range", func(p *Profile) {
			p.Needs.Explicit[0].Quantifiable = &Range{Min: 5, Max: 2}
		}, "inverted range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProfile("p1")
			tt.mutate(p)
			err := p.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRangeOverlaps(t *testing.T) {
	assert.True(t, Range{Min: 2, Max: 3}.Overlaps(Range{Min: 1, Max: 5}))
	assert.True(t, Range{Min: 1, Max: 5}.Overlaps(Range{Min: 5, Max: 9}))
	assert.False(t, Range{Min: 1, Max: 2}.Overlaps(Range{Min: 3, Max: 4}))
}

func TestEdgeValidate(t *testing.T) {
	good := Edge{From: "a", To: "b", Trust: 0.5, Strength: 0.5}
	require.NoError(t, good.Validate())

	bad := Edge{From: "a", To: "a", Trust: 1.5, Strength: -0.1}
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "self-edges")
	assert.Contains(t, err.Error(), "trust must be in [0,1]")
	assert.Contains(t, err.Error(), "strength must be in [0,1]")
}
