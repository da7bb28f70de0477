// Package traps classifies accounts whose legitimate high-volume
// behavior mimics laundering structure. Payroll disbursers look like
// fan-out smurfing and merchants look like fan-in collectors, so
// detection demotes them before pattern search instead of flagging
// them.
package traps

import (
	"math"
	"sort"
	"time"

	"github.com/opensource-finance/kestrel/internal/convention"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/velocity"
)

const (
	// Payroll thresholds. A disburser pays many recipients near-equal
	// amounts on a periodic calendar schedule.
	payrollMinRecipients = 5
	payrollMinOutbound   = 8
	payrollMaxAmountCV   = 0.05
	payrollMinActiveDays = 3

	// Merchant behavior reads as heavy spread-out inflow with little
	// outflow.
	merchantBurstWindow  = 72 * time.Hour
	merchantMaxInCluster = 0.5
)

// payCycleDays are the recognized disbursement periods, in days.
var payCycleDays = []float64{7, 14, 30}

// Classifier is the behavioral domain.TrapClassifier. A nil policy
// falls back to the default naming conventions.
type Classifier struct {
	policy *convention.Policy
}

// New creates a Classifier using the given naming-convention policy.
func New(policy *convention.Policy) *Classifier {
	if policy == nil {
		policy = convention.Default()
	}
	return &Classifier{policy: policy}
}

// profile accumulates the per-account evidence the heuristics read.
type profile struct {
	outAmounts []float64
	outTimes   []int64
	inTimes    []int64
	receivers  map[string]bool
	senders    map[string]bool
}

// Classify inspects the batch and returns trap flags per account.
// Accounts with no set flag are omitted. Never returns an error; the
// heuristics are pure and a batch that defeats them simply produces no
// demotions.
func (c *Classifier) Classify(txns []domain.Transaction) (map[string]domain.TrapFlags, error) {
	profiles := make(map[string]*profile)
	get := func(id string) *profile {
		p, ok := profiles[id]
		if !ok {
			p = &profile{receivers: make(map[string]bool), senders: make(map[string]bool)}
			profiles[id] = p
		}
		return p
	}

	for i := range txns {
		t := &txns[i]
		ts := t.UnixSeconds()

		out := get(t.SenderID)
		out.outAmounts = append(out.outAmounts, t.Amount)
		out.outTimes = append(out.outTimes, ts)
		out.receivers[t.ReceiverID] = true

		in := get(t.ReceiverID)
		in.inTimes = append(in.inTimes, ts)
		in.senders[t.SenderID] = true
	}

	flags := make(map[string]domain.TrapFlags)
	for id, p := range profiles {
		sort.Slice(p.outTimes, func(i, j int) bool { return p.outTimes[i] < p.outTimes[j] })
		sort.Slice(p.inTimes, func(i, j int) bool { return p.inTimes[i] < p.inTimes[j] })

		f := domain.TrapFlags{
			IsPayrollTrap:  isPayroll(p),
			IsMerchantTrap: c.isMerchant(id, p),
		}
		if f.IsPayrollTrap || f.IsMerchantTrap || f.IsExchangeTrap {
			flags[id] = f
		}
	}
	return flags, nil
}

// isPayroll checks for periodic equal-amount disbursement to a stable
// recipient set.
func isPayroll(p *profile) bool {
	if len(p.receivers) < payrollMinRecipients || len(p.outAmounts) < payrollMinOutbound {
		return false
	}

	if cv := coefficientOfVariation(p.outAmounts); cv >= payrollMaxAmountCV {
		return false
	}

	days := distinctDays(p.outTimes)
	if len(days) < payrollMinActiveDays {
		return false
	}

	gap := medianGap(days)
	for _, cycle := range payCycleDays {
		if math.Abs(gap-cycle) < 3 {
			return true
		}
	}
	return false
}

// isMerchant checks the naming convention first, then three inflow
// shapes. Smurfing hubs collect in tight bursts while merchants
// collect around the clock, so a low burst fraction over a 72h window
// separates the two.
func (c *Classifier) isMerchant(id string, p *profile) bool {
	if c.policy.IsMerchant(id) {
		return true
	}

	inDeg := len(p.senders)
	outDeg := len(p.receivers)
	if inDeg == 0 {
		return false
	}

	cluster := velocity.BurstFraction(p.inTimes, merchantBurstWindow)
	if cluster >= merchantMaxInCluster {
		return false
	}

	switch {
	case inDeg >= 10 && outDeg <= 3:
		return true
	case inDeg > 5 && outDeg == 0:
		return true
	case outDeg > 0 && float64(inDeg)/float64(outDeg) > 3 && inDeg >= 10:
		return true
	}
	return false
}

func coefficientOfVariation(xs []float64) float64 {
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	if mean == 0 {
		return math.Inf(1)
	}

	variance := 0.0
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs))

	return math.Sqrt(variance) / mean
}

// distinctDays returns the sorted distinct UTC calendar days, as day
// numbers since the epoch.
func distinctDays(times []int64) []int64 {
	seen := make(map[int64]bool, len(times))
	for _, ts := range times {
		seen[ts/86400] = true
	}
	days := make([]int64, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days
}

// medianGap returns the median gap in days between consecutive active
// days.
func medianGap(days []int64) float64 {
	gaps := make([]float64, 0, len(days)-1)
	for i := 1; i < len(days); i++ {
		gaps = append(gaps, float64(days[i]-days[i-1]))
	}
	sort.Float64s(gaps)

	mid := len(gaps) / 2
	if len(gaps)%2 == 1 {
		return gaps[mid]
	}
	return (gaps[mid-1] + gaps[mid]) / 2
}
