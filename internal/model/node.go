package model

// NodeStatus tags the result of one graph node.
type NodeStatus string

const (
	NodeStatusOK       NodeStatus = "ok"
	NodeStatusDegraded NodeStatus = "degraded"
)

// NodeResult records how one node finished. A degraded node contributed no
// patch; Reason carries the error or recovered panic.
type NodeResult struct {
	Node       string     `json:"node"`
	Status     NodeStatus `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	DurationMs int64      `json:"duration_ms"`
	TokenUsage TokenUsage `json:"token_usage"`
}

// Degraded reports whether the node failed and was skipped over.
func (r NodeResult) Degraded() bool { return r.Status == NodeStatusDegraded }

// DegradedNode is the reporting view of a failed node.
type DegradedNode struct {
	Node   string `json:"node"`
	Reason string `json:"reason"`
}

// Summary is the display projection of a finished run.
type Summary struct {
	RunID             string         `json:"run_id"`
	DocumentName      string         `json:"document_name"`
	TextPreview       string         `json:"text_preview"`
	ImageCount        int            `json:"image_count"`
	TextDerivedNames  []string       `json:"text_derived_names"`
	ImageDerivedNames []string       `json:"image_derived_names"`
	ConsolidatedNames []string       `json:"consolidated_names"`
	VerifiedClients   []string       `json:"verified_clients"`
	EmailSent         bool           `json:"email_sent"`
	Outcomes          []Outcome      `json:"outcomes"`
	Degraded          []DegradedNode `json:"degraded,omitempty"`
	Nodes             []NodeResult   `json:"nodes"`
	TokenUsage        TokenUsage     `json:"token_usage"`
}
