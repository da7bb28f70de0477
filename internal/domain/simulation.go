package domain

// Verdict is the simulator's categorical impact judgment for one
// hypothetical transaction.
type Verdict string

const (
	VerdictClean      Verdict = "CLEAN"
	VerdictSuspicious Verdict = "SUSPICIOUS"
	VerdictWarning    Verdict = "WARNING"
	VerdictDangerous  Verdict = "DANGEROUS"
)

// SimulationRequest describes one hypothetical transaction to inject
// into a previously computed analysis.
type SimulationRequest struct {
	SenderID   string  `json:"sender_id"`
	ReceiverID string  `json:"receiver_id"`
	Amount     float64 `json:"amount"`
	Timestamp  string  `json:"timestamp,omitempty"`
}

// NewCycle is a cycle that would come into existence if the
// hypothetical transaction were executed.
type NewCycle struct {
	CycleMembers   []string `json:"cycle_members"`
	CycleLength    int      `json:"cycle_length"`
	CycleRiskScore float64  `json:"cycle_risk_score"`
}

// RingImpact describes how an existing ring is affected: a new account
// "joins" it, or a transaction between two members "escalates" it.
type RingImpact struct {
	RingID       string  `json:"ring_id"`
	ImpactType   string  `json:"impact_type"`
	OldRiskScore float64 `json:"old_risk_score"`
	NewRiskScore float64 `json:"new_risk_score"`
	Delta        float64 `json:"delta"`
	Description  string  `json:"description"`
}

// RingMerge reports two previously separate rings that the hypothetical
// transaction would bridge.
type RingMerge struct {
	RingA             string  `json:"ring_a"`
	RingB             string  `json:"ring_b"`
	MergedMemberCount int     `json:"merged_member_count"`
	MergedRiskScore   float64 `json:"merged_risk_score"`
}

// ScoreDelta is a projected per-account suspicion score change.
type ScoreDelta struct {
	AccountID   string  `json:"account_id"`
	OldScore    float64 `json:"old_score"`
	NewScore    float64 `json:"new_score"`
	Delta       float64 `json:"delta"`
	DeltaReason string  `json:"delta_reason"`
}

// SubgraphDelta summarizes the structural footprint of the simulation.
type SubgraphDelta struct {
	NodesAffected      int `json:"nodes_affected"`
	EdgesAdded         int `json:"edges_added"`
	NewNodesIntroduced int `json:"new_nodes_introduced"`
}

// SimulationResult is the ephemeral outcome of one what-if run.
type SimulationResult struct {
	SimulationID   string            `json:"simulation_id"`
	HypotheticalTx SimulationRequest `json:"hypothetical_tx"`

	Verdict       Verdict `json:"verdict"`
	VerdictReason string  `json:"verdict_reason"`

	NewCyclesCreated []NewCycle   `json:"new_cycles_created"`
	RingsAffected    []RingImpact `json:"rings_affected"`
	RingsMerged      []RingMerge  `json:"rings_merged"`
	ScoreDeltas      []ScoreDelta `json:"score_deltas"`

	NewSmurfingTriggered bool   `json:"new_smurfing_triggered"`
	SmurfingAccount      string `json:"smurfing_account,omitempty"`

	NewShellChainExtended bool   `json:"new_shell_chain_extended"`
	ChainExtensionDetail  string `json:"chain_extension_detail,omitempty"`

	SubgraphDelta    SubgraphDelta `json:"subgraph_delta"`
	ProcessingTimeMs float64       `json:"processing_time_ms"`
}
