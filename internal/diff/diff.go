// Package diff computes the create/delete operations that turn one term
// multiset into another.
package diff

import (
	"github.com/Aman-CERP/fsindex/internal/term"
)

// Operation is the direction of a count change.
type Operation uint8

const (
	// Create adds occurrences.
	Create Operation = iota + 1
	// Delete removes occurrences.
	Delete
)

func (o Operation) String() string {
	switch o {
	case Create:
		return "CREATE"
	case Delete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Sign returns +1 for Create and -1 for Delete.
func (o Operation) Sign() int {
	if o == Delete {
		return -1
	}
	return 1
}

// Result is the net change of one token. Count is always positive.
type Result struct {
	Token     term.Term
	Operation Operation
	Count     int
}

// Delta returns the signed count change.
func (r Result) Delta() int { return r.Operation.Sign() * r.Count }

// Calculate returns at most one Result per token describing how to turn
// old into current. Only aggregate counts matter, so this is linear in the
// number of distinct tokens. Neither input is modified; result order is
// unspecified.
func Calculate(old, current term.Counts) []Result {
	remaining := current.Clone()
	results := make([]Result, 0, len(old)+len(current))

	for tok, oldCount := range old {
		curCount := remaining[tok]
		delete(remaining, tok)

		switch {
		case oldCount > curCount:
			results = append(results, Result{Token: tok, Operation: Delete, Count: oldCount - curCount})
		case curCount > oldCount:
			results = append(results, Result{Token: tok, Operation: Create, Count: curCount - oldCount})
		}
	}

	for tok, count := range remaining {
		if count > 0 {
			results = append(results, Result{Token: tok, Operation: Create, Count: count})
		}
	}
	return results
}

// Apply adds results to base and returns the updated copy, dropping
// tokens whose count reaches zero.
func Apply(base term.Counts, results []Result) term.Counts {
	out := base.Clone()
	for _, r := range results {
		out[r.Token] += r.Delta()
		if out[r.Token] == 0 {
			delete(out, r.Token)
		}
	}
	return out
}
