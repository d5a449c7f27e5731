package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Edge is a directed, weighted connection between two participants.
// The reverse edge may exist independently with a different trust value;
// asymmetric trust is expected and meaningful.
type Edge struct {
	From            string    `json:"from"`
	To              string    `json:"to"`
	Trust           float64   `json:"trust"`
	Strength        float64   `json:"strength"`
	LastInteraction time.Time `json:"last_interaction"`
}

// Validate checks edge shape and weight bounds.
func (e Edge) Validate() error {
	var errs []string
	if strings.TrimSpace(e.From) == "" {
		errs = append(errs, "from is required")
	}
	if strings.TrimSpace(e.To) == "" {
		errs = append(errs, "to is required")
	}
	if e.From != "" && e.From == e.To {
		errs = append(errs, "self-edges are not allowed")
	}
	if e.Trust < 0 || e.Trust > 1 {
		errs = append(errs, "trust must be in [0,1]")
	}
	if e.Strength < 0 || e.Strength > 1 {
		errs = append(errs, "strength must be in [0,1]")
	}
	if len(errs) > 0 {
		return eris.Errorf("model: invalid edge %s->%s: %s", e.From, e.To, strings.Join(errs, "; "))
	}
	return nil
}
