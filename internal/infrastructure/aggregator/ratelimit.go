package aggregator

import (
	"fmt"
	"sync"
	"time"
)

// DefaultDailyBudget is the number of data calls the provider grants per
// account per UTC day.
const DefaultDailyBudget = 4

// BudgetLedger tracks how many data calls have been spent per account for
// the current UTC day. It is process-wide mutable state: each account gets
// its own lock so independent accounts never contend with each other.
type BudgetLedger struct {
	budget int

	mu      sync.RWMutex
	entries map[string]*budgetEntry
}

type budgetEntry struct {
	mu   sync.Mutex
	day  string // UTC day the counter belongs to, "2006-01-02"
	used int
}

// NewBudgetLedger creates a ledger with the given per-account daily budget.
// A budget of zero or less falls back to DefaultDailyBudget.
func NewBudgetLedger(budget int) *BudgetLedger {
	if budget <= 0 {
		budget = DefaultDailyBudget
	}
	return &BudgetLedger{
		budget:  budget,
		entries: make(map[string]*budgetEntry),
	}
}

func utcDay(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

func (l *BudgetLedger) entry(accountID string) *budgetEntry {
	l.mu.RLock()
	e, ok := l.entries[accountID]
	l.mu.RUnlock()
	if ok {
		return e
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok = l.entries[accountID]; ok {
		return e
	}
	e = &budgetEntry{}
	l.entries[accountID] = e
	return e
}

// Reserve consumes one unit of the account's budget for the current UTC day.
// It returns ErrRateLimitExceeded when the budget is already spent, in which
// case nothing is consumed. The counter resets at UTC midnight.
func (l *BudgetLedger) Reserve(accountID string, now time.Time) error {
	day := utcDay(now)
	e := l.entry(accountID)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.day != day {
		e.day = day
		e.used = 0
	}
	if e.used >= l.budget {
		return fmt.Errorf("%w: account %s used %d/%d calls today", ErrRateLimitExceeded, accountID, e.used, l.budget)
	}
	e.used++
	return nil
}

// Remaining reports how many calls the account has left for the current UTC
// day without consuming any.
func (l *BudgetLedger) Remaining(accountID string, now time.Time) int {
	day := utcDay(now)
	e := l.entry(accountID)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.day != day {
		return l.budget
	}
	if e.used >= l.budget {
		return 0
	}
	return l.budget - e.used
}
