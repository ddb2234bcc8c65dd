// Package order classifies extensions into priority ranks and sorts them.
//
// Ranking is capability based: a value that implements HighestPriority is ranked
// RankHighest, a value that only implements Ordered is ranked RankOrdered and
// everything else is RankUnordered. Within a rank values are sorted by their
// explicit order value; ties keep discovery order.
package order

import (
	"math"
	"reflect"
	"slices"
)

const (
	// HighestPrecedence is the smallest order value. Values with this order sort first.
	HighestPrecedence = math.MinInt32

	// LowestPrecedence is the largest order value. Values with this order sort last
	// among values that declare an order.
	LowestPrecedence = math.MaxInt32
)

// Ordered is implemented by values that declare an explicit order.
// Lower values sort first.
type Ordered interface {
	Order() int
}

// HighestPriority marks a value that must be processed before any Ordered or
// unordered value of the same kind. It may additionally implement Ordered to
// control its position among other highest-priority values.
type HighestPriority interface {
	HighestPriority()
}

// Rank is the priority class of an extension.
type Rank int

const (
	// RankHighest is assigned to values implementing HighestPriority.
	RankHighest Rank = iota
	// RankOrdered is assigned to values implementing Ordered only.
	RankOrdered
	// RankUnordered is assigned to everything else.
	RankUnordered
)

// String returns the rank name used in log output.
func (r Rank) String() string {
	switch r {
	case RankHighest:
		return "highest-priority"
	case RankOrdered:
		return "ordered"
	case RankUnordered:
		return "unordered"
	default:
		return "unknown"
	}
}

var (
	highestPriorityType = reflect.TypeOf((*HighestPriority)(nil)).Elem()
	orderedType         = reflect.TypeOf((*Ordered)(nil)).Elem()
)

// Classify returns the rank of v. HighestPriority takes precedence over Ordered.
func Classify(v any) Rank {
	if _, ok := v.(HighestPriority); ok {
		return RankHighest
	}
	if _, ok := v.(Ordered); ok {
		return RankOrdered
	}
	return RankUnordered
}

// ClassifyType returns the rank values of type t would be classified under.
// It is used to rank a component from its declared type before it exists.
func ClassifyType(t reflect.Type) Rank {
	if t == nil {
		return RankUnordered
	}
	if t.Implements(highestPriorityType) {
		return RankHighest
	}
	if t.Implements(orderedType) {
		return RankOrdered
	}
	return RankUnordered
}

// Value returns the explicit order of v and whether one is declared.
func Value(v any) (int, bool) {
	if o, ok := v.(Ordered); ok {
		return o.Order(), true
	}
	return 0, false
}

// Compare orders a and b by their explicit order value. A value without an
// order sorts after any value with one. Equal values compare as 0 so a stable
// sort keeps discovery order.
func Compare(a, b any) int {
	av, aok := Value(a)
	bv, bok := Value(b)
	switch {
	case aok && bok:
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case aok:
		return -1
	case bok:
		return 1
	}
	return 0
}

// Sort sorts values in place using Compare. The sort is stable.
func Sort[T any](values []T) {
	if len(values) < 2 {
		return
	}
	slices.SortStableFunc(values, func(a, b T) int {
		return Compare(a, b)
	})
}
