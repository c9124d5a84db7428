// Package policy provides domain models for policy enforcement.
package policy

import (
	"sort"
	"sync"
)

// TotalCalls is the budget name that limits tool calls of any kind.
const TotalCalls = "*"

// Budget tracks tool call counts against per-tool limits.
// A limit under TotalCalls applies to every call.
type Budget struct {
	limits   map[string]int
	consumed map[string]int
	mu       sync.RWMutex
}

// BudgetSnapshot is an immutable view of budget state.
type BudgetSnapshot struct {
	Limits    map[string]int `json:"limits"`
	Consumed  map[string]int `json:"consumed"`
	Remaining map[string]int `json:"remaining"`
}

// NewBudget creates a budget with the given limits.
func NewBudget(limits map[string]int) *Budget {
	b := &Budget{
		limits:   make(map[string]int, len(limits)),
		consumed: make(map[string]int),
	}
	for k, v := range limits {
		b.limits[k] = v
	}
	return b
}

// CanConsume reports whether one more call of toolName fits in the budget.
func (b *Budget) CanConsume(toolName string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.fits(toolName) && b.fits(TotalCalls)
}

// Consume counts one call of toolName, failing with ErrBudgetExceeded when
// either its own or the total limit is spent.
func (b *Budget) Consume(toolName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.fits(toolName) || !b.fits(TotalCalls) {
		return ErrBudgetExceeded
	}
	b.consumed[toolName]++
	if toolName != TotalCalls {
		b.consumed[TotalCalls]++
	}
	return nil
}

// Remaining returns the calls left for a name, or -1 when unlimited.
func (b *Budget) Remaining(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	limit, ok := b.limits[name]
	if !ok {
		return -1
	}
	return limit - b.consumed[name]
}

// Snapshot returns an immutable view of the current budget state.
func (b *Budget) Snapshot() BudgetSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snapshot := BudgetSnapshot{
		Limits:    make(map[string]int, len(b.limits)),
		Consumed:  make(map[string]int, len(b.consumed)),
		Remaining: make(map[string]int, len(b.limits)),
	}
	for k, v := range b.limits {
		snapshot.Limits[k] = v
		snapshot.Remaining[k] = v - b.consumed[k]
	}
	for k, v := range b.consumed {
		snapshot.Consumed[k] = v
	}
	return snapshot
}

// Exhausted returns the names whose limits are fully spent, sorted.
func (b *Budget) Exhausted() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []string
	for name, limit := range b.limits {
		if b.consumed[name] >= limit {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (b *Budget) fits(name string) bool {
	limit, ok := b.limits[name]
	return !ok || b.consumed[name] < limit
}
