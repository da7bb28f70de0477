package domain

// TrapClassifier computes per-account trap flags from a transaction
// batch. Classification is best-effort: callers treat any error as "no
// traps known" and proceed with empty flag sets (fail-open).
type TrapClassifier interface {
	Classify(txns []Transaction) (map[string]TrapFlags, error)
}

// NoopTrapClassifier is the default classifier used when no behavioral
// classifier is wired in. It never demotes an account.
type NoopTrapClassifier struct{}

// Classify returns an empty flag set.
func (NoopTrapClassifier) Classify(txns []Transaction) (map[string]TrapFlags, error) {
	return map[string]TrapFlags{}, nil
}
