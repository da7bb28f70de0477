package domain

import (
	"time"
)

// PatternType identifies the kind of structure a ring represents.
type PatternType string

const (
	PatternCycle    PatternType = "cycle"
	PatternFanIn    PatternType = "fan_in"
	PatternFanOut   PatternType = "fan_out"
	PatternLayering PatternType = "layering"
)

// RingEdge is one directed edge inside a detected ring.
type RingEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Ring is one detected fraud pattern instance.
type Ring struct {
	// RingID is unique and pattern-type-prefixed: LOOP_0001, SMURF_0001, LAYER_0001.
	RingID      string      `json:"ring_id"`
	PatternType PatternType `json:"pattern_type"`

	// MemberAccounts is ordered. For smurfing rings the hub comes first,
	// followed by counterparts deduplicated in first-seen order.
	MemberAccounts []string `json:"member_accounts"`
	MemberCount    int      `json:"member_count"`

	RiskScore   float64 `json:"risk_score"`
	TotalAmount float64 `json:"total_amount"`

	// CenterNode is set only for smurfing rings (the hub account).
	CenterNode string `json:"center_node,omitempty"`

	Edges []RingEdge `json:"edges"`
}

// TrapFlags marks accounts whose behavior matches a legitimate
// high-traffic signature. Flagged accounts are demoted: excluded from
// cycle and smurfing ring membership.
type TrapFlags struct {
	IsPayrollTrap  bool `json:"is_payroll_trap"`
	IsMerchantTrap bool `json:"is_merchant_trap"`

	// IsExchangeTrap is reserved for future use and always false.
	IsExchangeTrap bool `json:"is_exchange_trap"`
}

// SuspicionRecord is the per-account 0-100 risk aggregate.
type SuspicionRecord struct {
	AccountID        string        `json:"account_id"`
	SuspicionScore   float64       `json:"suspicion_score"`
	DetectedPatterns []string      `json:"detected_patterns"`
	RingID           string        `json:"ring_id"`
	InDegree         int           `json:"in_degree"`
	OutDegree        int           `json:"out_degree"`
	TotalVolume      float64       `json:"total_volume"`
	TransactionCount int           `json:"transaction_count"`
	RingCount        int           `json:"ring_count"`
	PatternTypes     []PatternType `json:"pattern_types"`
	MerchantFactor   float64       `json:"merchant_factor"`
}

// Summary aggregates headline counts for one analysis pass.
type Summary struct {
	TotalAccountsAnalyzed     int     `json:"total_accounts_analyzed"`
	SuspiciousAccountsFlagged int     `json:"suspicious_accounts_flagged"`
	FraudRingsDetected        int     `json:"fraud_rings_detected"`
	ProcessingTimeSeconds     float64 `json:"processing_time_seconds"`

	TotalTransactions     int     `json:"total_transactions"`
	TotalNodes            int     `json:"total_nodes"`
	TotalEdges            int     `json:"total_edges"`
	CircularLoopsFound    int     `json:"circular_loops_found"`
	SmurfingPatternsFound int     `json:"smurfing_patterns_found"`
	LayeringChainsFound   int     `json:"layering_chains_found"`
	TotalFraudRings       int     `json:"total_fraud_rings"`
	HighRiskAccounts      int     `json:"high_risk_accounts"`
	MediumRiskAccounts    int     `json:"medium_risk_accounts"`
	TotalFlaggedAmount    float64 `json:"total_flagged_amount"`
}

// GraphNode is one account in the analysis graph payload.
type GraphNode struct {
	ID               string   `json:"id"`
	Suspicious       bool     `json:"suspicious"`
	SuspicionScore   float64  `json:"suspicion_score"`
	InDegree         int      `json:"in_degree"`
	OutDegree        int      `json:"out_degree"`
	RingIDs          []string `json:"ring_ids"`
	TotalVolume      float64  `json:"total_volume"`
	TransactionCount int      `json:"transaction_count"`
}

// GraphEdge is one aggregated directed edge in the analysis graph payload.
// At most one edge exists per ordered (source, target) pair.
type GraphEdge struct {
	Source      string  `json:"source"`
	Target      string  `json:"target"`
	Suspicious  bool    `json:"suspicious"`
	TotalAmount float64 `json:"total_amount"`
	Count       int     `json:"count"`
}

// GraphPayload is the serialized account graph attached to a result.
// It is the only state the what-if simulator consumes.
type GraphPayload struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// AnalysisResult is the complete output of one detection pass and the
// prior state consumed by the simulator.
type AnalysisResult struct {
	ID        string    `json:"analysis_id"`
	TenantID  string    `json:"tenant_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	SuspiciousAccounts []SuspicionRecord `json:"suspicious_accounts"`
	FraudRings         []Ring            `json:"fraud_rings"`
	Summary            Summary           `json:"summary"`
	Graph              GraphPayload      `json:"graph"`
}

// AnalysisRecord is the lightweight listing row persisted per analysis.
type AnalysisRecord struct {
	ID        string    `json:"analysis_id"`
	TenantID  string    `json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
	Summary   Summary   `json:"summary"`
}
