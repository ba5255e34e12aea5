package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Mutator edits a product in place and reports what it changed. created is
// true when the product did not exist before this call. Returning an error
// discards every change.
type Mutator func(p *Product, created bool) (Changeset, error)

// Store persists catalog entities.
//
// UpdateProduct is an atomic read-modify-write of one product and everything
// it owns: either the whole changeset is committed or none of it is. An
// empty changeset commits nothing.
type Store interface {
	FindOrCreateCompany(ctx context.Context, name string, role CompanyRole) (*Company, error)
	// LinkSupplier records that a distributor sells a manufacturer's goods.
	// It reports whether the edge was new.
	LinkSupplier(ctx context.Context, distributorID, manufacturerID uuid.UUID) (bool, error)
	UpdateProduct(ctx context.Context, key ProductKey, mutate Mutator) (*Product, error)
	GetProduct(ctx context.Context, key ProductKey) (*Product, error)
	ListProducts(ctx context.Context) ([]*Product, error)
}

// MemoryStore is an in-process Store used by tests and dry runs.
type MemoryStore struct {
	mu        sync.Mutex
	companies map[string]*Company
	suppliers map[[2]uuid.UUID]struct{}
	products  map[ProductKey]*Product
	order     []ProductKey
	writes    int

	// WriteHook, when set, runs before a changeset is committed. A non-nil
	// error aborts the commit.
	WriteHook func(p *Product, cs Changeset) error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		companies: make(map[string]*Company),
		suppliers: make(map[[2]uuid.UUID]struct{}),
		products:  make(map[ProductKey]*Product),
	}
}

func companyKey(name string, role CompanyRole) string {
	return string(role) + "|" + NormalizeName(name)
}

func (s *MemoryStore) FindOrCreateCompany(ctx context.Context, name string, role CompanyRole) (*Company, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := companyKey(name, role)
	if c, ok := s.companies[k]; ok {
		cp := *c
		return &cp, nil
	}
	c := &Company{ID: uuid.New(), Name: name, Role: role, CreatedAt: time.Now().UTC()}
	s.companies[k] = c
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) LinkSupplier(ctx context.Context, distributorID, manufacturerID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	edge := [2]uuid.UUID{distributorID, manufacturerID}
	if _, ok := s.suppliers[edge]; ok {
		return false, nil
	}
	s.suppliers[edge] = struct{}{}
	return true, nil
}

func (s *MemoryStore) UpdateProduct(ctx context.Context, key ProductKey, mutate Mutator) (*Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var work *Product
	existing, ok := s.products[key]
	if ok {
		work = existing.Clone()
	} else {
		work = &Product{ID: uuid.New(), Key: key, ManufacturerID: key.ManufacturerID}
	}

	cs, err := mutate(work, !ok)
	if err != nil {
		return nil, err
	}
	if cs.Empty() {
		if !ok {
			return work, nil
		}
		return existing.Clone(), nil
	}
	if s.WriteHook != nil {
		if err := s.WriteHook(work, cs); err != nil {
			return nil, err
		}
	}

	if !ok {
		s.order = append(s.order, key)
	}
	s.products[key] = work
	s.writes++
	return work.Clone(), nil
}

func (s *MemoryStore) GetProduct(ctx context.Context, key ProductKey) (*Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[key]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) ListProducts(ctx context.Context) ([]*Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Product, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.products[k].Clone())
	}
	return out, nil
}

// Truncate removes every company, supplier edge and product.
func (s *MemoryStore) Truncate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.companies = make(map[string]*Company)
	s.suppliers = make(map[[2]uuid.UUID]struct{})
	s.products = make(map[ProductKey]*Product)
	s.order = nil
	return nil
}

// Writes returns how many changesets have been committed.
func (s *MemoryStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Companies returns the number of companies with the given role.
func (s *MemoryStore) Companies(role CompanyRole) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.companies {
		if c.Role == role {
			n++
		}
	}
	return n
}

// SupplierLinks returns the number of distributor-manufacturer edges.
func (s *MemoryStore) SupplierLinks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.suppliers)
}
