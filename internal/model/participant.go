package model

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Category classifies what a need or offering is about.
type Category string

const (
	CategoryFunding      Category = "funding"
	CategoryTalent       Category = "talent"
	CategoryExpertise    Category = "expertise"
	CategoryIntroduction Category = "introduction"
	CategoryPartnership  Category = "partnership"
	CategoryServices     Category = "services"
	CategoryOther        Category = "other"
)

// Priority ranks how urgent a need is for its owner.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Capacity describes how much of an offering is available.
type Capacity string

const (
	CapacityLimited  Capacity = "limited"
	CapacityModerate Capacity = "moderate"
	CapacityAbundant Capacity = "abundant"
)

// Range bounds a quantifiable need or offering, e.g. a funding amount in USD.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Overlaps reports whether two ranges share any interval.
func (r Range) Overlaps(other Range) bool {
	return r.Min <= other.Max && other.Min <= r.Max
}

// NeedItem is one declared or inferred need of a participant. Free text is
// the primary matching substrate; category and the optional range refine it.
type NeedItem struct {
	Text         string   `json:"text"`
	Category     Category `json:"category"`
	Priority     Priority `json:"priority"`
	Quantifiable *Range   `json:"quantifiable,omitempty"`
}

// OfferingItem is one declared or inferred offering of a participant.
type OfferingItem struct {
	Text         string   `json:"text"`
	Category     Category `json:"category"`
	Capacity     Capacity `json:"capacity"`
	Quantifiable *Range   `json:"quantifiable,omitempty"`
}

// TieredNeeds separates user-declared needs from needs inferred by the
// upstream text service. The two tiers carry distinct weights in scoring
// and are never merged.
type TieredNeeds struct {
	Explicit []NeedItem `json:"explicit"`
	Inferred []NeedItem `json:"inferred,omitempty"`
}

// TieredOfferings separates declared offerings from inferred ones.
type TieredOfferings struct {
	Explicit []OfferingItem `json:"explicit"`
	Inferred []OfferingItem `json:"inferred,omitempty"`
}

// Profile is the matching-relevant view of a participant. It is immutable
// during a single matching or negotiation run; mutation happens upstream
// between runs.
type Profile struct {
	ParticipantID string          `json:"participant_id"`
	Needs         TieredNeeds     `json:"needs"`
	Offerings     TieredOfferings `json:"offerings"`
	Bio           string          `json:"bio,omitempty"`
}

// Validate rejects malformed profiles at the matcher/facilitator boundary.
// Empty explicit needs or offerings are an upstream bug and are reported,
// never silently defaulted.
func (p *Profile) Validate() error {
	if p == nil {
		return eris.New("model: profile is nil")
	}
	var errs []string
	if strings.TrimSpace(p.ParticipantID) == "" {
		errs = append(errs, "participant_id is required")
	}
	if len(p.Needs.Explicit) == 0 {
		errs = append(errs, "explicit needs must not be empty")
	}
	if len(p.Offerings.Explicit) == 0 {
		errs = append(errs, "explicit offerings must not be empty")
	}
	for i, n := range allNeeds(p.Needs) {
		if strings.TrimSpace(n.Text) == "" {
			errs = append(errs, fmt.Sprintf("need %d has empty text", i))
		}
		if n.Quantifiable != nil && n.Quantifiable.Max < n.Quantifiable.Min {
			errs = append(errs, fmt.Sprintf("need %d has inverted range", i))
		}
	}
	for i, o := range allOfferings(p.Offerings) {
		if strings.TrimSpace(o.Text) == "" {
			errs = append(errs, fmt.Sprintf("offering %d has empty text", i))
		}
		if o.Quantifiable != nil && o.Quantifiable.Max < o.Quantifiable.Min {
			errs = append(errs, fmt.Sprintf("offering %d has inverted range", i))
		}
	}
	if len(errs) > 0 {
		return eris.Errorf("model: invalid profile %s: %s", p.ParticipantID, strings.Join(errs, "; "))
	}
	return nil
}

func allNeeds(n TieredNeeds) []NeedItem {
	out := make([]NeedItem, 0, len(n.Explicit)+len(n.Inferred))
	out = append(out, n.Explicit...)
	out = append(out, n.Inferred...)
	return out
}

func allOfferings(o TieredOfferings) []OfferingItem {
	out := make([]OfferingItem, 0, len(o.Explicit)+len(o.Inferred))
	out = append(out, o.Explicit...)
	out = append(out, o.Inferred...)
	return out
}
