package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/pricesheet/internal/logging"
)

// Locker serializes work on one identity key across goroutines (and, for
// distributed implementations, across processes).
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Parties are the companies a sheet is attributed to. Manufacturer is nil
// when the sheet names none.
type Parties struct {
	Distributor  *Company
	Manufacturer *Company
}

// ReconcileInput is everything needed to merge one product's records.
type ReconcileInput struct {
	ProductName     string
	Parties         Parties
	Records         []VariantRecord
	Metadata        PricebookMetadata
	DiscountPercent decimal.NullDecimal
}

// ReconcileResult reports what a reconcile changed.
type ReconcileResult struct {
	Product         *Product
	ProductCreated  bool
	VariantsCreated int
	EntriesAdded    int
	EntriesUpdated  int
	Unchanged       int
}

// Reconciler merges extracted variant records into the catalog.
type Reconciler struct {
	store  Store
	locker Locker
	now    func() time.Time
}

// NewReconciler returns a reconciler over store. locker guards
// find-or-create of companies and products.
func NewReconciler(store Store, locker Locker) *Reconciler {
	return &Reconciler{store: store, locker: locker, now: func() time.Time { return time.Now().UTC() }}
}

// Store returns the underlying catalog store.
func (r *Reconciler) Store() Store { return r.store }

// ResolveCompanies finds or creates the distributor and optional
// manufacturer, and records the distributor-supplier edge.
func (r *Reconciler) ResolveCompanies(ctx context.Context, distributor, manufacturer string) (Parties, error) {
	if strings.TrimSpace(distributor) == "" {
		return Parties{}, errors.New("distributor name is required")
	}

	var p Parties
	var err error
	p.Distributor, err = r.company(ctx, distributor, RoleDistributor)
	if err != nil {
		return Parties{}, err
	}
	if strings.TrimSpace(manufacturer) == "" {
		return p, nil
	}

	p.Manufacturer, err = r.company(ctx, manufacturer, RoleManufacturer)
	if err != nil {
		return Parties{}, err
	}

	created, err := r.store.LinkSupplier(ctx, p.Distributor.ID, p.Manufacturer.ID)
	if err != nil {
		return Parties{}, fmt.Errorf("link supplier %q to %q: %w", manufacturer, distributor, err)
	}
	if created {
		logging.FromContext(ctx).Info("distributor supplier recorded",
			"distributor", p.Distributor.Name,
			"manufacturer", p.Manufacturer.Name,
		)
	}
	return p, nil
}

func (r *Reconciler) company(ctx context.Context, name string, role CompanyRole) (*Company, error) {
	unlock, err := r.locker.Lock(ctx, "company:"+companyKey(name, role))
	if err != nil {
		return nil, fmt.Errorf("lock %s %q: %w", role, name, err)
	}
	defer unlock()

	c, err := r.store.FindOrCreateCompany(ctx, strings.TrimSpace(name), role)
	if err != nil {
		return nil, fmt.Errorf("find or create %s %q: %w", role, name, err)
	}
	return c, nil
}

// Reconcile merges in.Records into the product identified by
// (in.ProductName, in.Parties.Manufacturer).
//
// The product is created on first sighting; otherwise its metadata is
// refreshed and its primary distributor becomes the current one. Each record
// resolves to a variant by property bag. The current distributor's supplier
// entry is updated in place or appended, and entries of other distributors
// are never touched. The whole merge commits atomically; re-running it with
// the same input is a no-op.
func (r *Reconciler) Reconcile(ctx context.Context, in ReconcileInput) (*ReconcileResult, error) {
	if in.Parties.Distributor == nil {
		return nil, errors.New("reconcile: distributor is required")
	}
	if strings.TrimSpace(in.ProductName) == "" {
		return nil, errors.New("reconcile: product name is required")
	}
	if len(in.Records) == 0 {
		return nil, errors.New("reconcile: no variant records")
	}

	key := NewProductKey(in.ProductName, in.Parties.Manufacturer)
	unlock, err := r.locker.Lock(ctx, "product:"+key.String())
	if err != nil {
		return nil, fmt.Errorf("lock product %q: %w", in.ProductName, err)
	}
	defer unlock()

	var res ReconcileResult
	product, err := r.store.UpdateProduct(ctx, key, func(p *Product, created bool) (Changeset, error) {
		res = ReconcileResult{ProductCreated: created}
		return r.merge(p, created, in, &res), nil
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile product %q: %w", in.ProductName, err)
	}
	res.Product = product

	logging.FromContext(ctx).Debug("product reconciled",
		"product", in.ProductName,
		"created", res.ProductCreated,
		"variants_created", res.VariantsCreated,
		"entries_added", res.EntriesAdded,
		"entries_updated", res.EntriesUpdated,
		"unchanged", res.Unchanged,
	)
	return &res, nil
}

func (r *Reconciler) merge(p *Product, created bool, in ReconcileInput, res *ReconcileResult) Changeset {
	now := r.now()
	dist := in.Parties.Distributor
	var mfrID uuid.UUID
	if in.Parties.Manufacturer != nil {
		mfrID = in.Parties.Manufacturer.ID
	}

	var cs Changeset
	name := strings.TrimSpace(in.ProductName)
	if created {
		cs.ProductCreated = true
		p.Name = name
		p.ManufacturerID = mfrID
		p.CreatedAt = now
	}
	if p.Metadata != in.Metadata || p.PrimaryDistributorID != dist.ID || p.Name != name {
		p.Metadata = in.Metadata
		p.PrimaryDistributorID = dist.ID
		p.Name = name
		cs.ProductUpdated = !created
	}

	updated := make(map[uuid.UUID]bool)
	for _, rec := range in.Records {
		pricing := ResolvePricing(rec, in.DiscountPercent)

		v, ok := p.Variant(rec.Properties)
		if !ok {
			nv := Variant{
				ID:             uuid.New(),
				Properties:     rec.Properties.Clone(),
				DisplayName:    DisplayName(name, rec.Properties),
				SKU:            DeriveSKU(p.Key, rec.Properties),
				UnitOfMeasure:  rec.UnitOfMeasure,
				CurrentPricing: pricing,
			}
			entry := SupplierPriceEntry{
				ID:                 uuid.New(),
				DistributorID:      dist.ID,
				ManufacturerID:     mfrID,
				Pricing:            pricing,
				SupplierPartNumber: rec.SupplierPartNumber,
				IsPreferred:        true,
				UpdatedAt:          now,
			}
			nv.SupplierEntries = []SupplierPriceEntry{entry}
			p.Variants = append(p.Variants, nv)

			cs.CreatedVariants = append(cs.CreatedVariants, nv.ID)
			cs.touchEntry(nv.ID, entry.ID)
			res.VariantsCreated++
			continue
		}

		entryChanged := false
		if e, ok := v.Entry(dist.ID); ok {
			part := e.SupplierPartNumber
			if rec.SupplierPartNumber != "" {
				part = rec.SupplierPartNumber
			}
			if e.Pricing.Equal(pricing) && e.SupplierPartNumber == part && e.ManufacturerID == mfrID {
				res.Unchanged++
			} else {
				e.Pricing = pricing
				e.SupplierPartNumber = part
				e.ManufacturerID = mfrID
				e.UpdatedAt = now
				cs.touchEntry(v.ID, e.ID)
				res.EntriesUpdated++
				entryChanged = true
			}
		} else {
			entry := SupplierPriceEntry{
				ID:                 uuid.New(),
				DistributorID:      dist.ID,
				ManufacturerID:     mfrID,
				Pricing:            pricing,
				SupplierPartNumber: rec.SupplierPartNumber,
				UpdatedAt:          now,
			}
			v.SupplierEntries = append(v.SupplierEntries, entry)
			cs.touchEntry(v.ID, entry.ID)
			res.EntriesAdded++
			entryChanged = true
		}

		variantChanged := false
		if !v.CurrentPricing.Equal(pricing) {
			v.CurrentPricing = pricing
			variantChanged = true
		}
		if rec.UnitOfMeasure != "" && v.UnitOfMeasure != rec.UnitOfMeasure {
			v.UnitOfMeasure = rec.UnitOfMeasure
			variantChanged = true
		}
		if (variantChanged || entryChanged) && !updated[v.ID] {
			updated[v.ID] = true
			cs.UpdatedVariants = append(cs.UpdatedVariants, v.ID)
		}
	}

	if !cs.Empty() {
		p.UpdatedAt = now
	}
	return cs
}
