// Package store provides in-memory implementations of the jewels
// persistence contracts, for tests and development.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/villaluz/jewels-engine/jewels"
)

// =============================================================================
// MEMORY STORE - In-memory ledger (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	transactions map[jewels.UserID][]jewels.Transaction
	byID         map[jewels.TransactionID]jewels.Transaction
	idempotency  map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		transactions: make(map[jewels.UserID][]jewels.Transaction),
		byID:         make(map[jewels.TransactionID]jewels.Transaction),
		idempotency:  make(map[string]bool),
	}
}

// Append adds a single transaction. Append-only.
func (m *Memory) Append(_ context.Context, tx jewels.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(tx)
}

func (m *Memory) appendLocked(tx jewels.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	if tx.IdempotencyKey != "" && m.idempotency[tx.IdempotencyKey] {
		return jewels.ErrDuplicateIdempotencyKey
	}

	txs := m.transactions[tx.UserID]

	// Binary search for insertion point keeps the per-user sequence
	// ordered by CreatedAt; equal timestamps keep insertion order.
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].CreatedAt.After(tx.CreatedAt)
	})
	txs = append(txs, jewels.Transaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	m.transactions[tx.UserID] = txs

	m.byID[tx.ID] = tx
	if tx.IdempotencyKey != "" {
		m.idempotency[tx.IdempotencyKey] = true
	}
	return nil
}

func (m *Memory) ListByUser(_ context.Context, userID jewels.UserID) ([]jewels.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]jewels.Transaction, len(m.transactions[userID]))
	copy(result, m.transactions[userID])
	return result, nil
}

func (m *Memory) Get(_ context.Context, id jewels.TransactionID) (jewels.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.byID[id]
	if !ok {
		return jewels.Transaction{}, jewels.ErrTransactionNotFound
	}
	return tx, nil
}

func (m *Memory) Users(_ context.Context) ([]jewels.UserID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]jewels.UserID, 0, len(m.transactions))
	for userID := range m.transactions {
		users = append(users, userID)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users, nil
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction, simulated with a snapshot +
// rollback on error. The store mutex is held for the whole unit, which
// is what makes the redemption engine's read-then-append serializable.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(jewels.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	view := &txMemoryView{parent: tm}

	if err := fn(view); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	transactions map[jewels.UserID][]jewels.Transaction
	byID         map[jewels.TransactionID]jewels.Transaction
	idempotency  map[string]bool
}

func (tm *TxMemory) snapshot() memorySnapshot {
	txsCopy := make(map[jewels.UserID][]jewels.Transaction, len(tm.transactions))
	for k, v := range tm.transactions {
		txsCopy[k] = append([]jewels.Transaction{}, v...)
	}
	byIDCopy := make(map[jewels.TransactionID]jewels.Transaction, len(tm.byID))
	for k, v := range tm.byID {
		byIDCopy[k] = v
	}
	idemCopy := make(map[string]bool, len(tm.idempotency))
	for k, v := range tm.idempotency {
		idemCopy[k] = v
	}
	return memorySnapshot{transactions: txsCopy, byID: byIDCopy, idempotency: idemCopy}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.transactions = s.transactions
	tm.byID = s.byID
	tm.idempotency = s.idempotency
}

// txMemoryView operates on the parent without re-acquiring its mutex.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) Append(_ context.Context, tx jewels.Transaction) error {
	return tv.parent.appendLocked(tx)
}

func (tv *txMemoryView) ListByUser(_ context.Context, userID jewels.UserID) ([]jewels.Transaction, error) {
	return tv.parent.transactions[userID], nil
}

func (tv *txMemoryView) Get(_ context.Context, id jewels.TransactionID) (jewels.Transaction, error) {
	tx, ok := tv.parent.byID[id]
	if !ok {
		return jewels.Transaction{}, jewels.ErrTransactionNotFound
	}
	return tx, nil
}

func (tv *txMemoryView) Users(_ context.Context) ([]jewels.UserID, error) {
	users := make([]jewels.UserID, 0, len(tv.parent.transactions))
	for userID := range tv.parent.transactions {
		users = append(users, userID)
	}
	return users, nil
}

func (tv *txMemoryView) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	return tv.parent.idempotency[idempotencyKey], nil
}

// =============================================================================
// MEMORY REFERENCE DATA - Options and earn rules
// =============================================================================

// MemoryCatalog is an in-memory redemption option catalog.
type MemoryCatalog struct {
	mu      sync.RWMutex
	options map[jewels.OptionID]jewels.RedemptionOption
}

func NewMemoryCatalog(options ...jewels.RedemptionOption) *MemoryCatalog {
	c := &MemoryCatalog{options: make(map[jewels.OptionID]jewels.RedemptionOption)}
	for _, o := range options {
		c.options[o.ID] = o
	}
	return c
}

func (c *MemoryCatalog) GetOption(_ context.Context, id jewels.OptionID) (jewels.RedemptionOption, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.options[id]
	if !ok {
		return jewels.RedemptionOption{}, jewels.ErrOptionNotFound
	}
	return o, nil
}

func (c *MemoryCatalog) ListOptions(_ context.Context) ([]jewels.RedemptionOption, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	options := make([]jewels.RedemptionOption, 0, len(c.options))
	for _, o := range c.options {
		options = append(options, o)
	}
	sort.Slice(options, func(i, j int) bool {
		if options[i].Active != options[j].Active {
			return options[i].Active
		}
		return options[i].ID < options[j].ID
	})
	return options, nil
}

// MemoryRules is an in-memory earn-rule store.
type MemoryRules struct {
	mu    sync.RWMutex
	rules map[jewels.RuleID]jewels.EarnRule
}

func NewMemoryRules(rules ...jewels.EarnRule) *MemoryRules {
	m := &MemoryRules{rules: make(map[jewels.RuleID]jewels.EarnRule)}
	for _, r := range rules {
		m.rules[r.ID] = r
	}
	return m
}

func (m *MemoryRules) SaveRule(_ context.Context, rule jewels.EarnRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.ID] = rule
	return nil
}

func (m *MemoryRules) ActiveRule(_ context.Context) (jewels.EarnRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rules {
		if r.Active {
			return r, nil
		}
	}
	return jewels.EarnRule{}, jewels.ErrRuleNotFound
}

func (m *MemoryRules) ListRules(_ context.Context) ([]jewels.EarnRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rules := make([]jewels.EarnRule, 0, len(m.rules))
	for _, r := range m.rules {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, nil
}
