// Evaluation harness for the Kestrel detection pipeline.
//
// Usage:
//   go run cmd/evaluate/main.go -csv /path/to/labeled.csv
//
// This tool:
//  1. Reads a labeled transaction CSV (SMURF_/SHELL_ naming conventions
//     mark seeded patterns; 3-cycles are seeded in the leading rows)
//  2. Extracts ground truth patterns from those conventions
//  3. Runs the in-process detection pipeline
//  4. Calculates per-pattern precision, recall, and F1, plus
//     account-level accuracy
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/opensource-finance/kestrel/internal/convention"
	"github.com/opensource-finance/kestrel/internal/detect"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
	"github.com/opensource-finance/kestrel/internal/ingest"
	"github.com/opensource-finance/kestrel/internal/traps"
)

// groundTruth holds the seeded patterns recovered from the labels.
type groundTruth struct {
	Cycles     []patternKey
	FanIn      []patternKey
	FanOut     []patternKey
	Layering   []patternKey
	Suspicious map[string]bool
}

// patternKey is a comparable normalized form of one pattern instance.
type patternKey string

// typeMetrics is the confusion summary for one pattern type.
type typeMetrics struct {
	TruePositives    int     `json:"true_positives"`
	FalsePositives   int     `json:"false_positives"`
	FalseNegatives   int     `json:"false_negatives"`
	Precision        float64 `json:"precision"`
	Recall           float64 `json:"recall"`
	F1               float64 `json:"f1_score"`
	DetectedCount    int     `json:"detected_count"`
	GroundTruthCount int     `json:"ground_truth_count"`
}

func main() {
	csvPath := flag.String("csv", "", "Path to labeled CSV (default: built-in sample dataset)")
	jsonOut := flag.Bool("json", false, "Emit metrics as JSON instead of a report")
	flag.Parse()

	var raw string
	source := "built-in sample"
	if *csvPath != "" {
		data, err := os.ReadFile(*csvPath)
		if err != nil {
			fmt.Printf("ERROR: failed to read CSV: %v\n", err)
			os.Exit(1)
		}
		raw = string(data)
		source = *csvPath
	} else {
		raw = ingest.SampleCSV()
	}

	txns, err := ingest.Parse(strings.NewReader(ingest.Sanitize(raw)))
	if err != nil {
		fmt.Printf("ERROR: failed to parse CSV: %v\n", err)
		os.Exit(1)
	}

	if !*jsonOut {
		fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
		fmt.Println("║           KESTREL EVALUATION - Fraud Ring Detection           ║")
		fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
		fmt.Printf("\nDataset:      %s\n", source)
		fmt.Printf("Transactions: %d\n\n", len(txns))
	}

	truth := extractGroundTruth(txns)
	if !*jsonOut {
		fmt.Println("Step 1: Ground truth patterns")
		fmt.Printf("  - Cycles:              %d\n", len(truth.Cycles))
		fmt.Printf("  - Fan-in (smurfing):   %d\n", len(truth.FanIn))
		fmt.Printf("  - Fan-out:             %d\n", len(truth.FanOut))
		fmt.Printf("  - Layering:            %d\n", len(truth.Layering))
		fmt.Printf("  - Suspicious accounts: %d\n\n", len(truth.Suspicious))
	}

	policy := convention.Default()
	analyzer := detect.New(domain.DefaultDetectionConfig(), traps.New(policy), policy)
	result := analyzer.Run(txns)
	if !*jsonOut {
		fmt.Println("Step 2: Detection pass")
		fmt.Printf("  - Fraud rings detected:  %d\n", len(result.FraudRings))
		fmt.Printf("  - Accounts flagged:      %d\n\n", len(result.SuspiciousAccounts))
	}

	metrics := calculateMetrics(result, truth, txns)

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(metrics)
		return
	}

	printReport(metrics)
}

// extractGroundTruth recovers seeded patterns from the labeled dataset.
// SMURF_ receivers with a large inbound cluster and any redistribution
// are fan-in hubs; SHELL_ accounts with both inbound and outbound flow
// anchor layering chains; 3-cycles among the leading rows are seeded
// loops. Pure receivers are excluded (they behave like merchants).
func extractGroundTruth(txns []domain.Transaction) *groundTruth {
	truth := &groundTruth{Suspicious: make(map[string]bool)}

	senders := make(map[string][]string)
	outbound := make(map[string]int)
	for _, tx := range txns {
		senders[tx.ReceiverID] = append(senders[tx.ReceiverID], tx.SenderID)
		outbound[tx.SenderID]++
	}

	// Fan-in hubs by naming convention
	hubs := make([]string, 0)
	for recv := range senders {
		if strings.Contains(recv, "SMURF_") {
			hubs = append(hubs, recv)
		}
	}
	sort.Strings(hubs)
	for _, hub := range hubs {
		in := senders[hub]
		if len(in) >= 10 && outbound[hub] > 0 {
			truth.FanIn = append(truth.FanIn, fanKey(hub, append(append([]string{}, in...), hub)))
			for _, s := range in {
				truth.Suspicious[s] = true
			}
			truth.Suspicious[hub] = true
		}
	}

	// Layering anchors by naming convention
	g := graph.Build(txns)
	for _, node := range g.Nodes() {
		if !strings.Contains(node, "SHELL_") {
			continue
		}
		preds := g.Predecessors(node)
		succs := g.Successors(node)
		if len(preds) == 0 || len(succs) == 0 {
			continue
		}
		truth.Layering = append(truth.Layering, layeringKey([]string{node}))
		truth.Suspicious[node] = true
		for _, p := range preds {
			truth.Suspicious[p] = true
		}
		for _, s := range succs {
			truth.Suspicious[s] = true
		}
	}

	// Seeded 3-cycles among the leading rows
	head := txns
	if len(head) > 50 {
		head = head[:50]
	}
	hg := graph.Build(head)
	for _, scc := range hg.StronglyConnected() {
		if len(scc) < 3 {
			continue
		}
		for _, cycle := range hg.SimpleCycles(scc, 3, 0, graph.NewDeadline(0)) {
			if len(cycle) != 3 {
				continue
			}
			truth.Cycles = append(truth.Cycles, cycleKey(cycle))
			for _, n := range cycle {
				truth.Suspicious[n] = true
			}
		}
	}

	return truth
}

func cycleKey(members []string) patternKey {
	sorted := append([]string{}, members...)
	sort.Strings(sorted)
	return patternKey(strings.Join(sorted, "|"))
}

func fanKey(hub string, participants []string) patternKey {
	seen := make(map[string]bool)
	uniq := make([]string, 0, len(participants))
	for _, p := range participants {
		if !seen[p] {
			seen[p] = true
			uniq = append(uniq, p)
		}
	}
	sort.Strings(uniq)
	return patternKey(hub + "::" + strings.Join(uniq, "|"))
}

func layeringKey(shells []string) patternKey {
	sorted := append([]string{}, shells...)
	sort.Strings(sorted)
	return patternKey(strings.Join(sorted, "|"))
}

// normalizeDetected maps a detected ring onto the same key space as the
// ground truth patterns.
func normalizeDetected(ring *domain.Ring) (patternKey, bool) {
	switch ring.PatternType {
	case domain.PatternCycle:
		return cycleKey(ring.MemberAccounts), true
	case domain.PatternFanIn, domain.PatternFanOut:
		return fanKey(ring.CenterNode, ring.MemberAccounts), true
	case domain.PatternLayering:
		shells := make([]string, 0)
		for _, m := range ring.MemberAccounts {
			if strings.Contains(m, "SHELL_") {
				shells = append(shells, m)
			}
		}
		if len(shells) == 0 {
			return "", false
		}
		return layeringKey(shells), true
	}
	return "", false
}

func calculateMetrics(result *domain.AnalysisResult, truth *groundTruth, txns []domain.Transaction) map[string]any {
	byType := map[domain.PatternType][]patternKey{
		domain.PatternCycle:    truth.Cycles,
		domain.PatternFanIn:    truth.FanIn,
		domain.PatternFanOut:   truth.FanOut,
		domain.PatternLayering: truth.Layering,
	}

	metrics := make(map[string]any)
	var totalTP, totalFP, totalFN, totalDetected, totalTruth int

	for _, pt := range []domain.PatternType{domain.PatternCycle, domain.PatternFanIn, domain.PatternFanOut, domain.PatternLayering} {
		detected := make(map[patternKey]bool)
		for i := range result.FraudRings {
			ring := &result.FraudRings[i]
			if ring.PatternType != pt {
				continue
			}
			if key, ok := normalizeDetected(ring); ok {
				detected[key] = true
			}
		}

		expected := make(map[patternKey]bool)
		for _, key := range byType[pt] {
			expected[key] = true
		}

		var tp, fp, fn int
		for key := range detected {
			if expected[key] {
				tp++
			} else {
				fp++
			}
		}
		for key := range expected {
			if !detected[key] {
				fn++
			}
		}

		m := typeMetrics{
			TruePositives:    tp,
			FalsePositives:   fp,
			FalseNegatives:   fn,
			Precision:        safeDiv(tp, tp+fp),
			Recall:           safeDiv(tp, tp+fn),
			DetectedCount:    len(detected),
			GroundTruthCount: len(expected),
		}
		m.F1 = f1(m.Precision, m.Recall)
		metrics[string(pt)] = m

		totalTP += tp
		totalFP += fp
		totalFN += fn
		totalDetected += len(detected)
		totalTruth += len(expected)
	}

	// Account-level confusion over every account in the dataset
	all := make(map[string]bool)
	for _, tx := range txns {
		all[tx.SenderID] = true
		all[tx.ReceiverID] = true
	}
	flagged := make(map[string]bool)
	for _, rec := range result.SuspiciousAccounts {
		flagged[rec.AccountID] = true
	}

	var accTP, accTN, accFP, accFN int
	for id := range all {
		switch {
		case flagged[id] && truth.Suspicious[id]:
			accTP++
		case flagged[id] && !truth.Suspicious[id]:
			accFP++
		case !flagged[id] && truth.Suspicious[id]:
			accFN++
		default:
			accTN++
		}
	}
	accuracy := safeDiv(accTP+accTN, len(all))

	overallPrecision := safeDiv(totalTP, totalTP+totalFP)
	overallRecall := safeDiv(totalTP, totalTP+totalFN)

	metrics["overall"] = map[string]any{
		"precision":                   overallPrecision,
		"recall":                      overallRecall,
		"f1_score":                    f1(overallPrecision, overallRecall),
		"accuracy":                    accuracy,
		"total_patterns_detected":     totalDetected,
		"total_patterns_ground_truth": totalTruth,
	}
	metrics["account_level"] = map[string]any{
		"true_positives":            accTP,
		"true_negatives":            accTN,
		"false_positives":           accFP,
		"false_negatives":           accFN,
		"accuracy":                  accuracy,
		"total_accounts":            len(all),
		"suspicious_detected":       len(flagged),
		"suspicious_ground_truth":   len(truth.Suspicious),
	}

	return metrics
}

func safeDiv(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func f1(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}

func printReport(metrics map[string]any) {
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println("RESULTS BY PATTERN TYPE")
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println()

	for _, pt := range []string{"cycle", "fan_in", "fan_out", "layering"} {
		m := metrics[pt].(typeMetrics)
		fmt.Printf("%s:\n", strings.ToUpper(strings.ReplaceAll(pt, "_", "-")))
		fmt.Printf("  Detected: %d | Ground Truth: %d\n", m.DetectedCount, m.GroundTruthCount)
		fmt.Printf("  TP: %d | FP: %d | FN: %d\n", m.TruePositives, m.FalsePositives, m.FalseNegatives)
		fmt.Printf("  Precision: %.2f%%\n", m.Precision*100)
		fmt.Printf("  Recall:    %.2f%%\n", m.Recall*100)
		fmt.Printf("  F1 Score:  %.2f%%\n", m.F1*100)
		fmt.Println()
	}

	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println("OVERALL PERFORMANCE")
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println()

	overall := metrics["overall"].(map[string]any)
	fmt.Println("Pattern-Level Metrics:")
	fmt.Printf("  Precision: %.2f%%\n", overall["precision"].(float64)*100)
	fmt.Printf("  Recall:    %.2f%%\n", overall["recall"].(float64)*100)
	fmt.Printf("  F1 Score:  %.2f%%\n", overall["f1_score"].(float64)*100)
	fmt.Println()

	account := metrics["account_level"].(map[string]any)
	fmt.Println("Account-Level Metrics:")
	fmt.Printf("  Accuracy:  %.2f%%\n", account["accuracy"].(float64)*100)
	fmt.Printf("  Flagged:   %d of %d accounts (%d seeded)\n",
		account["suspicious_detected"].(int),
		account["total_accounts"].(int),
		account["suspicious_ground_truth"].(int),
	)
	fmt.Println()
}
