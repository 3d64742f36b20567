package finance

import (
	"context"
	"sync"
	"time"
)

// InMemory implements Store with in-process locking. It backs the unit tests
// and small demo setups; production uses the pg store.
type InMemory struct {
	mu         sync.RWMutex
	categories map[string]*Category
	donors     map[string]*Donor
	txs        map[string]*Transaction
	importIdx  map[string]string // orgID+"\x00"+importedTxID -> tx id
	budgets    map[string][]*Budget
	links      map[string][]*DonationExpenseLink
	reserves   map[string]string // orgID -> reserves project id
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		categories: make(map[string]*Category),
		donors:     make(map[string]*Donor),
		txs:        make(map[string]*Transaction),
		importIdx:  make(map[string]string),
		budgets:    make(map[string][]*Budget),
		links:      make(map[string][]*DonationExpenseLink),
		reserves:   make(map[string]string),
	}
}

// SetReserves registers the reserves project for an organization.
func (s *InMemory) SetReserves(orgID, projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserves[orgID] = projectID
}

func importKey(orgID, importedTxID string) string { return orgID + "\x00" + importedTxID }

func (s *InMemory) CreateCategory(ctx context.Context, c *Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	s.categories[c.ID] = &cp
	return nil
}

func (s *InMemory) FindCategory(ctx context.Context, id string) (*Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *InMemory) ListCategories(ctx context.Context, orgID string) ([]*Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Category
	for _, c := range s.categories {
		if c.OrganizationID == orgID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemory) CreateDonor(ctx context.Context, d *Donor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	s.donors[d.ID] = &cp
	return nil
}

func (s *InMemory) FindDonor(ctx context.Context, id string) (*Donor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.donors[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *InMemory) ListDonors(ctx context.Context, orgID string) ([]*Donor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Donor
	for _, d := range s.donors {
		if d.OrganizationID == orgID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemory) CreateTransaction(ctx context.Context, t *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ImportedTxID != "" {
		key := importKey(t.OrganizationID, t.ImportedTxID)
		if _, exists := s.importIdx[key]; exists {
			return ErrConflict
		}
		s.importIdx[key] = t.ID
	}
	cp := *t
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	s.txs[t.ID] = &cp
	return nil
}

func (s *InMemory) FindTransaction(ctx context.Context, id string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.txs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *InMemory) FindTransactionByImportID(ctx context.Context, orgID, importedTxID string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.importIdx[importKey(orgID, importedTxID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.txs[id]
	return &cp, nil
}

func (s *InMemory) ListTransactions(ctx context.Context, orgID string, includeArchived bool) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Transaction
	for _, t := range s.txs {
		if t.OrganizationID != orgID {
			continue
		}
		if t.Archived && !includeArchived {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemory) MarkProcessed(ctx context.Context, id, matchedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[id]
	if !ok {
		return ErrNotFound
	}
	t.Status = StatusProcessed
	t.MatchedID = matchedID
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemory) ApplySplit(ctx context.Context, parentID string, children []*Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, ok := s.txs[parentID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	for _, c := range children {
		cp := *c
		cp.CreatedAt = now
		cp.UpdatedAt = now
		s.txs[c.ID] = &cp
	}
	parent.Archived = true
	parent.UpdatedAt = now
	return nil
}

func (s *InMemory) ReplaceBudgets(ctx context.Context, sourceTransactionID string, budgets []*Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	replaced := make([]*Budget, 0, len(budgets))
	now := time.Now().UTC()
	for _, b := range budgets {
		cp := *b
		cp.CreatedAt = now
		replaced = append(replaced, &cp)
	}
	s.budgets[sourceTransactionID] = replaced
	return nil
}

func (s *InMemory) ListBudgetsBySource(ctx context.Context, sourceTransactionID string) ([]*Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Budget
	for _, b := range s.budgets[sourceTransactionID] {
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemory) ListBudgetsByOrg(ctx context.Context, orgID string) ([]*Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Budget
	for _, list := range s.budgets {
		for _, b := range list {
			if b.OrganizationID == orgID {
				cp := *b
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (s *InMemory) CreateDonationLink(ctx context.Context, l *DonationExpenseLink, donationAmount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var linked int64
	for _, existing := range s.links[l.DonationTransactionID] {
		linked += existing.Amount
	}
	if linked+l.Amount > donationAmount {
		return ErrDonationExceeded
	}
	cp := *l
	cp.CreatedAt = time.Now().UTC()
	s.links[l.DonationTransactionID] = append(s.links[l.DonationTransactionID], &cp)
	return nil
}

func (s *InMemory) SumDonationLinks(ctx context.Context, donationTransactionID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum int64
	for _, l := range s.links[donationTransactionID] {
		sum += l.Amount
	}
	return sum, nil
}

func (s *InMemory) ReservesProjectID(ctx context.Context, orgID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.reserves[orgID]
	if !ok {
		return "", ErrNotFound
	}
	return id, nil
}

var _ Store = (*InMemory)(nil)
