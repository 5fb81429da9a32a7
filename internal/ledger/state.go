package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/guildpay/ledger-engine/internal/model"
	"github.com/guildpay/ledger-engine/internal/store"
)

// accountMap guards the live account mapping. Field mutation of an
// individual account is serialized by that account's lock in the registry;
// this mutex only protects the map structure itself.
type accountMap struct {
	mu       sync.RWMutex
	accounts map[string]*model.Account
}

func newAccountMap(initial map[string]*model.Account) *accountMap {
	return &accountMap{accounts: initial}
}

// getOrCreate returns the live account, creating it lazily with the
// starting balance. Reports whether it was created by this call.
func (m *accountMap) getOrCreate(id string, starting decimal.Decimal) (*model.Account, bool) {
	m.mu.RLock()
	acct := m.accounts[id]
	m.mu.RUnlock()
	if acct != nil {
		return acct, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if acct = m.accounts[id]; acct != nil {
		return acct, false
	}
	acct = model.NewAccount(id, starting)
	m.accounts[id] = acct
	return acct, true
}

func (m *accountMap) get(id string) *model.Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accounts[id]
}

func (m *accountMap) ids() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.accounts))
	for id := range m.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *accountMap) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.accounts)
}

// persister is the single write path to the snapshot store. It owns a
// private copy of the account mapping; operations hand it clones of the
// accounts they changed while still holding those accounts' locks, so two
// concurrent operations on different accounts serialize here instead of
// interleaving partial writes of the shared snapshot.
type persister struct {
	mu    sync.Mutex
	view  map[string]*model.Account
	store store.Store
}

func newPersister(st store.Store, loaded map[string]*model.Account) *persister {
	view := make(map[string]*model.Account, len(loaded))
	for id, acct := range loaded {
		view[id] = acct.Clone()
	}
	return &persister{view: view, store: st}
}

func (p *persister) update(ctx context.Context, changed ...*model.Account) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, acct := range changed {
		p.view[acct.ID] = acct.Clone()
	}
	return p.store.Save(ctx, p.view)
}
