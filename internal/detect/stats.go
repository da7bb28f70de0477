package detect

import (
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// accountStats holds everything the detectors and scorer need about
// one account, computed in a single pass over the batch so no detector
// rescans the raw transactions.
type accountStats struct {
	sendVolume float64
	recvVolume float64
	sendCount  int
	recvCount  int

	// Distinct counterparties per direction.
	sendUnique int
	recvUnique int

	// Timestamps sorted ascending, unix seconds.
	outTimes []int64
	inTimes  []int64

	// Counterparts in raw transaction order, duplicates included.
	inPartners  []string
	outPartners []string

	maxOutAmount float64

	// Round-amount fraction per direction (within 1 of a multiple of
	// 1000).
	roundSendFrac float64
	roundRecvFrac float64
}

func (s *accountStats) totalVolume() float64 { return s.sendVolume + s.recvVolume }
func (s *accountStats) txnCount() int        { return s.sendCount + s.recvCount }
func (s *accountStats) uniquePartners() int  { return s.sendUnique + s.recvUnique }

// roundFrac averages the two directional round fractions. An inactive
// direction contributes zero rather than being excluded, so one-sided
// accounts read at half their true fraction. Intentional: it mirrors
// how the scoring model was tuned.
func (s *accountStats) roundFrac() float64 {
	return (s.roundSendFrac + s.roundRecvFrac) / 2
}

// activitySpan returns the first and last unix second the account was
// active on either side.
func (s *accountStats) activitySpan() (int64, int64) {
	const far = int64(1) << 62
	lo, hi := far, int64(0)
	if len(s.outTimes) > 0 {
		if s.outTimes[0] < lo {
			lo = s.outTimes[0]
		}
		if s.outTimes[len(s.outTimes)-1] > hi {
			hi = s.outTimes[len(s.outTimes)-1]
		}
	}
	if len(s.inTimes) > 0 {
		if s.inTimes[0] < lo {
			lo = s.inTimes[0]
		}
		if s.inTimes[len(s.inTimes)-1] > hi {
			hi = s.inTimes[len(s.inTimes)-1]
		}
	}
	if hi == 0 && lo == far {
		return 0, 0
	}
	return lo, hi
}

func isRoundAmount(amount float64) bool {
	m := amount - 1000*float64(int64(amount/1000))
	if m < 0 {
		m += 1000
	}
	return m < 1
}

// computeStats builds the per-account stats table for a batch.
func computeStats(txns []domain.Transaction) map[string]*accountStats {
	stats := make(map[string]*accountStats)
	get := func(id string) *accountStats {
		s, ok := stats[id]
		if !ok {
			s = &accountStats{}
			stats[id] = s
		}
		return s
	}

	sendRound := make(map[string]*roundTally)
	recvRound := make(map[string]*roundTally)
	sendSeen := make(map[string]map[string]bool)
	recvSeen := make(map[string]map[string]bool)

	for i := range txns {
		t := &txns[i]
		ts := t.UnixSeconds()
		round := isRoundAmount(t.Amount)

		s := get(t.SenderID)
		s.sendVolume += t.Amount
		s.sendCount++
		s.outTimes = append(s.outTimes, ts)
		s.outPartners = append(s.outPartners, t.ReceiverID)
		if t.Amount > s.maxOutAmount {
			s.maxOutAmount = t.Amount
		}
		tallyRound(sendRound, t.SenderID, round)
		markSeen(sendSeen, t.SenderID, t.ReceiverID, &s.sendUnique)

		r := get(t.ReceiverID)
		r.recvVolume += t.Amount
		r.recvCount++
		r.inTimes = append(r.inTimes, ts)
		r.inPartners = append(r.inPartners, t.SenderID)
		tallyRound(recvRound, t.ReceiverID, round)
		markSeen(recvSeen, t.ReceiverID, t.SenderID, &r.recvUnique)
	}

	for id, s := range stats {
		sort.Slice(s.outTimes, func(i, j int) bool { return s.outTimes[i] < s.outTimes[j] })
		sort.Slice(s.inTimes, func(i, j int) bool { return s.inTimes[i] < s.inTimes[j] })
		if t := sendRound[id]; t != nil && t.total > 0 {
			s.roundSendFrac = float64(t.round) / float64(t.total)
		}
		if t := recvRound[id]; t != nil && t.total > 0 {
			s.roundRecvFrac = float64(t.round) / float64(t.total)
		}
	}

	return stats
}

type roundTally struct{ round, total int }

func tallyRound(m map[string]*roundTally, id string, round bool) {
	t, ok := m[id]
	if !ok {
		t = &roundTally{}
		m[id] = t
	}
	t.total++
	if round {
		t.round++
	}
}

func markSeen(seen map[string]map[string]bool, id, partner string, unique *int) {
	set, ok := seen[id]
	if !ok {
		set = make(map[string]bool)
		seen[id] = set
	}
	if !set[partner] {
		set[partner] = true
		*unique++
	}
}
