package model

// Path is the best-quality route between two participants. Quality combines
// average trust along the path with inverse hop count, so a short path
// through a low-trust intermediary can lose to a longer high-trust one.
type Path struct {
	Nodes    []string `json:"nodes"`
	Hops     int      `json:"hops"`
	AvgTrust float64  `json:"avg_trust"`
	Quality  float64  `json:"quality"`
}

// NetworkStats is a whole-network analytical snapshot. Diameter is computed
// over the largest connected component only; isolated nodes are counted
// separately.
type NetworkStats struct {
	Participants          int     `json:"participants"`
	Edges                 int     `json:"edges"`
	AvgDegree             float64 `json:"avg_degree"`
	Diameter              int     `json:"diameter"`
	ClusteringCoefficient float64 `json:"clustering_coefficient"`
	IsolatedCount         int     `json:"isolated_count"`
	LargestComponent      int     `json:"largest_component"`
}

// SuperConnector is a participant with disproportionate reach/centrality.
type SuperConnector struct {
	ParticipantID string  `json:"participant_id"`
	Degree        int     `json:"degree"`
	Betweenness   float64 `json:"betweenness"`
	Reach         int     `json:"reach"`
	Score         float64 `json:"score"`
}
