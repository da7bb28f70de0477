package ingest

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// SampleCSV generates a small demo dataset seeding one pattern of each
// kind plus legitimate noise. The generator is seeded, so the output
// is identical across calls and usable in documentation and UI demos.
func SampleCSV() string {
	rng := rand.New(rand.NewSource(42))
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	var b strings.Builder
	b.WriteString("transaction_id,sender_id,receiver_id,amount,timestamp\n")

	tid := 0
	row := func(sender, receiver string, amount float64, at time.Time) {
		tid++
		fmt.Fprintf(&b, "TXN_%05d,%s,%s,%.2f,%s\n",
			tid, sender, receiver, amount, at.Format("2006-01-02 15:04:05"))
	}

	accounts := make([]string, 30)
	for i := range accounts {
		accounts[i] = fmt.Sprintf("ACC_%03d", i+1)
	}

	// Three-hop loop.
	loop3 := []string{"ACC_001", "ACC_002", "ACC_003"}
	for i, s := range loop3 {
		row(s, loop3[(i+1)%len(loop3)], 15000, base.Add(time.Duration(tid+1)*time.Hour))
	}

	// Four-hop loop.
	loop4 := []string{"ACC_004", "ACC_005", "ACC_006", "ACC_007"}
	for i, s := range loop4 {
		row(s, loop4[(i+1)%len(loop4)], 8500, base.Add(time.Duration(tid+3)*time.Hour))
	}

	// Fan-in burst into ACC_010, then re-dispersal.
	for i := 0; i < 15; i++ {
		sender := accounts[(10+i)%len(accounts)]
		row(sender, "ACC_010", 900+rng.Float64()*9000, base.Add(time.Duration(i*3)*time.Hour))
	}
	row("ACC_010", "ACC_028", 52000, base.Add(50*time.Hour))

	// Fan-out burst from ACC_011.
	for i := 0; i < 12; i++ {
		row("ACC_011", accounts[(15+i)%len(accounts)], 500+rng.Float64()*4499, base.Add(time.Duration(i*4)*time.Hour))
	}

	// Layering chain through three shells.
	chain := []string{"ACC_020", "SH_001", "SH_002", "SH_003", "ACC_025"}
	for i := 0; i+1 < len(chain); i++ {
		row(chain[i], chain[i+1], 22000, base.Add(time.Duration(tid+1)*time.Hour))
	}
	row("SH_001", "SH_099", 100, base.Add(time.Duration(tid+1)*time.Hour))

	// Legitimate noise.
	for i := 0; i < 60; i++ {
		s := accounts[rng.Intn(len(accounts))]
		r := accounts[rng.Intn(len(accounts))]
		if s == r {
			continue
		}
		row(s, r, 100+rng.Float64()*49900, base.Add(time.Duration(rng.Intn(200))*time.Hour))
	}

	return b.String()
}
