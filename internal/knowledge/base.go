// Package knowledge holds the in-memory fraud case knowledge base the
// signature matcher scores against.
package knowledge

import (
	"fmt"
	"sort"
	"sync"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

// ErrDuplicateID is returned when a case with the same ID already exists.
var ErrDuplicateID = fmt.Errorf("knowledge: duplicate case id")

// Base is the set of known fraud cases. Reads vastly outnumber writes
// (every scored transaction snapshots the case list), so it keeps cases
// behind an RWMutex and hands out copies.
type Base struct {
	mu    sync.RWMutex
	cases map[string]*domain.FraudCase
	order []string
}

// NewBase creates an empty knowledge base.
func NewBase() *Base {
	return &Base{cases: make(map[string]*domain.FraudCase)}
}

// Add inserts a confirmed fraud case. Case IDs are unique; re-adding an
// existing ID returns ErrDuplicateID rather than silently overwriting,
// since a case's signature text is immutable once analysts have acted
// on matches against it.
func (b *Base) Add(c *domain.FraudCase) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("knowledge: case must have an id: %w", domain.ErrInvalidInput)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.cases[c.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, c.ID)
	}

	stored := *c
	b.cases[c.ID] = &stored
	b.order = append(b.order, c.ID)
	return nil
}

// Load bulk-inserts cases, used to warm the base from the repository at
// startup. Duplicates are skipped, not fatal: restarts replay the same
// persisted cases.
func (b *Base) Load(cases []*domain.FraudCase) int {
	var loaded int
	for _, c := range cases {
		if err := b.Add(c); err == nil {
			loaded++
		}
	}
	return loaded
}

// Get returns a copy of the case with the given ID.
func (b *Base) Get(id string) (*domain.FraudCase, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	c, ok := b.cases[id]
	if !ok {
		return nil, false
	}
	cp := *c
	return &cp, true
}

// Snapshot returns the cases in insertion order. The slice and the cases
// it points to are copies; callers can hold them across lock boundaries
// and match against them without racing concurrent Adds.
func (b *Base) Snapshot() []*domain.FraudCase {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*domain.FraudCase, 0, len(b.order))
	for _, id := range b.order {
		cp := *b.cases[id]
		out = append(out, &cp)
	}
	return out
}

// ByMerchant returns copies of all cases for a merchant, sorted by ID.
func (b *Base) ByMerchant(merchant string) []*domain.FraudCase {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*domain.FraudCase
	for _, c := range b.cases {
		if c.Merchant == merchant {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Size returns the number of cases in the base.
func (b *Base) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.cases)
}
