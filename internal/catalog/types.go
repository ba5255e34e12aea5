// Package catalog holds the canonical product catalog model and the
// reconciler that merges extracted price-sheet variants into it.
//
// A Product is identified by its normalized name plus its manufacturer (a
// missing manufacturer is its own identity bucket). Within a product, a
// Variant is identified by its property bag, compared as a set. Within a
// variant, each distributor owns at most one SupplierPriceEntry.
package catalog

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a catalog entity does not exist.
var ErrNotFound = errors.New("catalog: not found")

// PropertyBag is the set of dimensional attributes that identify a variant.
type PropertyBag map[string]string

// keyEscaper backslash-escapes the separators used by Key.
var keyEscaper = strings.NewReplacer(`\`, `\\`, ";", `\;`, "=", `\=`)

// Key returns the canonical identity of the bag: keys sorted, each pair
// rendered as key=value, joined with ";". Separators inside keys and values
// are escaped, so two bags share a key only when they hold the same pairs.
func (b PropertyBag) Key() string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(keyEscaper.Replace(k))
		sb.WriteByte('=')
		sb.WriteString(keyEscaper.Replace(b[k]))
	}
	return sb.String()
}

// Equal reports whether two bags hold the same pairs.
func (b PropertyBag) Equal(o PropertyBag) bool {
	if len(b) != len(o) {
		return false
	}
	for k, v := range b {
		if ov, ok := o[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Clone returns a copy of the bag.
func (b PropertyBag) Clone() PropertyBag {
	out := make(PropertyBag, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Values returns the bag values ordered by key.
func (b PropertyBag) Values() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vals := make([]string, len(keys))
	for i, k := range keys {
		vals[i] = b[k]
	}
	return vals
}

// VariantRecord is one priced variant extracted from a sheet, before merge.
type VariantRecord struct {
	// Product names the product the record belongs to when a sheet holds
	// several products. Empty means the sheet's product.
	Product            string
	Properties         PropertyBag
	ListPrice          decimal.Decimal
	NetPrice           decimal.NullDecimal
	DiscountPercent    decimal.NullDecimal
	UnitOfMeasure      string
	SupplierPartNumber string
	// Extra holds attributes that are reported but not part of identity,
	// such as linear feet per carton.
	Extra map[string]string
	// Row is the source grid row, for diagnostics.
	Row int
}

// CompanyRole distinguishes distributors from manufacturers.
type CompanyRole string

const (
	RoleDistributor  CompanyRole = "distributor"
	RoleManufacturer CompanyRole = "manufacturer"
)

// Company is a distributor or manufacturer.
type Company struct {
	ID        uuid.UUID
	Name      string
	Role      CompanyRole
	CreatedAt time.Time
}

// NormalizeName returns the identity form of a product or company name:
// lower-cased with whitespace collapsed.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// ProductKey identifies a product. ManufacturerID is uuid.Nil when the
// product has no manufacturer.
type ProductKey struct {
	Name           string
	ManufacturerID uuid.UUID
}

// NewProductKey builds a key from a display name and optional manufacturer.
func NewProductKey(name string, manufacturer *Company) ProductKey {
	k := ProductKey{Name: NormalizeName(name)}
	if manufacturer != nil {
		k.ManufacturerID = manufacturer.ID
	}
	return k
}

// String renders the key for locking and logging.
func (k ProductKey) String() string {
	if k.ManufacturerID == uuid.Nil {
		return k.Name + "|-"
	}
	return k.Name + "|" + k.ManufacturerID.String()
}

// PricebookMetadata records where a product appears in a distributor's price book.
type PricebookMetadata struct {
	Section    string
	PageNumber int
	PageName   string
	GroupCode  string
}

// Pricing is a list/net/discount triple.
type Pricing struct {
	ListPrice       decimal.Decimal
	NetPrice        decimal.NullDecimal
	DiscountPercent decimal.NullDecimal
}

// Equal compares pricing by value.
func (p Pricing) Equal(o Pricing) bool {
	return p.ListPrice.Equal(o.ListPrice) &&
		nullEqual(p.NetPrice, o.NetPrice) &&
		nullEqual(p.DiscountPercent, o.DiscountPercent)
}

func nullEqual(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}

// SupplierPriceEntry is one distributor's pricing for a variant.
type SupplierPriceEntry struct {
	ID                 uuid.UUID
	DistributorID      uuid.UUID
	ManufacturerID     uuid.UUID
	Pricing            Pricing
	SupplierPartNumber string
	IsPreferred        bool
	UpdatedAt          time.Time
}

// Variant is one priced configuration of a product.
type Variant struct {
	ID              uuid.UUID
	Properties      PropertyBag
	DisplayName     string
	SKU             string
	UnitOfMeasure   string
	CurrentPricing  Pricing
	SupplierEntries []SupplierPriceEntry
}

// Entry returns the supplier entry for a distributor.
func (v *Variant) Entry(distributorID uuid.UUID) (*SupplierPriceEntry, bool) {
	for i := range v.SupplierEntries {
		if v.SupplierEntries[i].DistributorID == distributorID {
			return &v.SupplierEntries[i], true
		}
	}
	return nil, false
}

// Product is a canonical catalog product.
type Product struct {
	ID                   uuid.UUID
	Name                 string
	Key                  ProductKey
	ManufacturerID       uuid.UUID
	PrimaryDistributorID uuid.UUID
	Metadata             PricebookMetadata
	Variants             []Variant
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Variant returns the variant whose bag equals bag.
func (p *Product) Variant(bag PropertyBag) (*Variant, bool) {
	for i := range p.Variants {
		if p.Variants[i].Properties.Equal(bag) {
			return &p.Variants[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the product.
func (p *Product) Clone() *Product {
	out := *p
	out.Variants = make([]Variant, len(p.Variants))
	for i, v := range p.Variants {
		v.Properties = v.Properties.Clone()
		v.SupplierEntries = append([]SupplierPriceEntry(nil), v.SupplierEntries...)
		out.Variants[i] = v
	}
	return &out
}

// Changeset lists what a mutation touched so stores can write only that.
type Changeset struct {
	ProductCreated  bool
	ProductUpdated  bool
	CreatedVariants []uuid.UUID
	UpdatedVariants []uuid.UUID
	// Entries are supplier entries created or updated, keyed by variant ID.
	Entries map[uuid.UUID][]uuid.UUID
}

// Empty reports whether the changeset touches nothing.
func (c Changeset) Empty() bool {
	return !c.ProductCreated && !c.ProductUpdated &&
		len(c.CreatedVariants) == 0 && len(c.UpdatedVariants) == 0 && len(c.Entries) == 0
}

func (c *Changeset) touchEntry(variantID, entryID uuid.UUID) {
	if c.Entries == nil {
		c.Entries = make(map[uuid.UUID][]uuid.UUID)
	}
	c.Entries[variantID] = append(c.Entries[variantID], entryID)
}
