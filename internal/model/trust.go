package model

// TrustPath is one explored route from a source to a target. PathTrust is
// the product of hop trust values discounted per hop; it is monotonically
// non-increasing in PathLength for a fixed edge set.
type TrustPath struct {
	Nodes      []string `json:"nodes"`
	PathTrust  float64  `json:"path_trust"`
	PathLength int      `json:"path_length"`
}

// TrustBand is the discrete recommendation derived from trust x confidence.
type TrustBand string

const (
	BandHighlyTrustworthy TrustBand = "highly_trustworthy"
	BandTrustworthy       TrustBand = "trustworthy"
	BandNeutral           TrustBand = "neutral"
	BandCautious          TrustBand = "cautious"
	BandUnknown           TrustBand = "unknown"
)

// TrustResult is the outcome of a transitive trust computation. A result
// with no paths and no direct edge is a valid business outcome (band
// unknown), not an error.
type TrustResult struct {
	Source        string      `json:"source"`
	Target        string      `json:"target"`
	DirectTrust   *float64    `json:"direct_trust,omitempty"`
	IndirectTrust float64     `json:"indirect_trust"`
	Trust         float64     `json:"trust"`
	Confidence    float64     `json:"confidence"`
	Band          TrustBand   `json:"band"`
	Paths         []TrustPath `json:"paths,omitempty"`
}

// HasEvidence reports whether any trust signal was found at all.
func (r *TrustResult) HasEvidence() bool {
	return r.DirectTrust != nil || len(r.Paths) > 0
}
