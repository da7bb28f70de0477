// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"time"
)

// Transaction is a single money movement between two accounts.
// A batch of these is the unit of analysis: the detection pipeline
// consumes a complete, already-loaded slice per call.
type Transaction struct {
	// ID is the upstream transaction identifier (informational only;
	// detection keys on sender/receiver/amount/timestamp).
	ID string `json:"transaction_id"`

	SenderID   string  `json:"sender_id"`
	ReceiverID string  `json:"receiver_id"`
	Amount     float64 `json:"amount"`

	Timestamp time.Time `json:"timestamp"`
}

// UnixSeconds returns the transaction timestamp as unix seconds.
func (t *Transaction) UnixSeconds() int64 {
	return t.Timestamp.Unix()
}
