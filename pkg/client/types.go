package client

// Result is one ranked passage.
type Result struct {
	ID    int64   `json:"id"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// HealthStatus is the service health report.
type HealthStatus struct {
	Status    string            `json:"status"`  // "ok", "degraded"
	Backend   string            `json:"backend"` // "uninitialized", "initializing", "ready", "failed"
	IndexName string            `json:"index_name"`
	Documents int               `json:"documents"`
	Checks    map[string]string `json:"checks"`
}

// Ready reports whether the service can answer searches.
func (h HealthStatus) Ready() bool { return h.Backend == "ready" }

type searchRequest struct {
	Query string `json:"query"`
	K     *int   `json:"k,omitempty"`
}

type searchResponse struct {
	Results []Result `json:"results"`
}
