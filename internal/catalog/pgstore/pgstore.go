// Package pgstore is the PostgreSQL implementation of catalog.Store.
//
// Every UpdateProduct runs in one transaction that first takes a
// transaction-scoped advisory lock on the product key, so concurrent
// importers touching the same product serialize inside the database even
// when they run in different processes.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/pricesheet/internal/catalog"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schemaSQL string

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists the catalog in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ catalog.Store = (*Store)(nil)

// New returns a store over pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// Migrate creates the catalog tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate catalog: %w", err)
	}
	return nil
}

func (s *Store) FindOrCreateCompany(ctx context.Context, name string, role catalog.CompanyRole) (*catalog.Company, error) {
	c := &catalog.Company{ID: uuid.New(), Name: name, Role: role, CreatedAt: s.now()}

	// The no-op update makes RETURNING yield the existing row on conflict.
	err := s.pool.QueryRow(ctx, `
		INSERT INTO companies (id, name, name_key, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (role, name_key) DO UPDATE SET name_key = excluded.name_key
		RETURNING id, name, created_at`,
		c.ID, name, catalog.NormalizeName(name), string(role), c.CreatedAt,
	).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("find or create %s %q: %w", role, name, err)
	}
	return c, nil
}

func (s *Store) LinkSupplier(ctx context.Context, distributorID, manufacturerID uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO supplier_links (distributor_id, manufacturer_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		distributorID, manufacturerID,
	)
	if err != nil {
		return false, fmt.Errorf("link supplier: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) UpdateProduct(ctx context.Context, key catalog.ProductKey, mutate catalog.Mutator) (*catalog.Product, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "product:"+key.String()); err != nil {
		return nil, fmt.Errorf("lock product %s: %w", key, err)
	}

	p, err := loadProduct(ctx, tx, key)
	created := errors.Is(err, catalog.ErrNotFound)
	switch {
	case created:
		now := s.now()
		p = &catalog.Product{ID: uuid.New(), Key: key, ManufacturerID: key.ManufacturerID, CreatedAt: now, UpdatedAt: now}
	case err != nil:
		return nil, err
	}

	cs, err := mutate(p, created)
	if err != nil {
		return nil, err
	}
	if cs.Empty() {
		return p, nil
	}

	if err := writeChangeset(ctx, tx, p, cs); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return p, nil
}

func (s *Store) GetProduct(ctx context.Context, key catalog.ProductKey) (*catalog.Product, error) {
	return loadProduct(ctx, s.pool, key)
}

func (s *Store) ListProducts(ctx context.Context) ([]*catalog.Product, error) {
	rows, err := s.pool.Query(ctx, `SELECT name_key, manufacturer_id FROM products ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	keys, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.ProductKey, error) {
		var k catalog.ProductKey
		err := row.Scan(&k.Name, &k.ManufacturerID)
		return k, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan product keys: %w", err)
	}

	out := make([]*catalog.Product, 0, len(keys))
	for _, k := range keys {
		p, err := loadProduct(ctx, s.pool, k)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Truncate removes every catalog row. Companies go too.
func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE supplier_price_entries, variants, products, supplier_links, companies`)
	if err != nil {
		return fmt.Errorf("truncate catalog: %w", err)
	}
	return nil
}

func loadProduct(ctx context.Context, q querier, key catalog.ProductKey) (*catalog.Product, error) {
	p := &catalog.Product{Key: key}
	var primary uuid.NullUUID
	err := q.QueryRow(ctx, `
		SELECT id, name, manufacturer_id, primary_distributor_id,
		       section, page_number, page_name, group_code, created_at, updated_at
		FROM products WHERE name_key = $1 AND manufacturer_id = $2`,
		key.Name, key.ManufacturerID,
	).Scan(&p.ID, &p.Name, &p.ManufacturerID, &primary,
		&p.Metadata.Section, &p.Metadata.PageNumber, &p.Metadata.PageName, &p.Metadata.GroupCode,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load product %s: %w", key, err)
	}
	if primary.Valid {
		p.PrimaryDistributorID = primary.UUID
	}

	if err := loadVariants(ctx, q, p); err != nil {
		return nil, err
	}
	return p, nil
}

func loadVariants(ctx context.Context, q querier, p *catalog.Product) error {
	rows, err := q.Query(ctx, `
		SELECT id, properties::text, display_name, sku, unit_of_measure,
		       list_price::text, net_price::text, discount_percent::text
		FROM variants WHERE product_id = $1 ORDER BY position`, p.ID)
	if err != nil {
		return fmt.Errorf("load variants: %w", err)
	}
	defer rows.Close()

	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var (
			v         catalog.Variant
			props     string
			list      string
			net, disc *string
		)
		if err := rows.Scan(&v.ID, &props, &v.DisplayName, &v.SKU, &v.UnitOfMeasure, &list, &net, &disc); err != nil {
			return fmt.Errorf("scan variant: %w", err)
		}
		if err := json.Unmarshal([]byte(props), &v.Properties); err != nil {
			return fmt.Errorf("decode properties of variant %s: %w", v.ID, err)
		}
		if v.CurrentPricing, err = parsePricing(list, net, disc); err != nil {
			return fmt.Errorf("variant %s: %w", v.ID, err)
		}
		index[v.ID] = len(p.Variants)
		p.Variants = append(p.Variants, v)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load variants: %w", err)
	}
	rows.Close()

	erows, err := q.Query(ctx, `
		SELECT e.id, e.variant_id, e.distributor_id, e.manufacturer_id,
		       e.list_price::text, e.net_price::text, e.discount_percent::text,
		       e.supplier_part_number, e.is_preferred, e.updated_at
		FROM supplier_price_entries e
		JOIN variants v ON v.id = e.variant_id
		WHERE v.product_id = $1
		ORDER BY v.position, e.position`, p.ID)
	if err != nil {
		return fmt.Errorf("load supplier entries: %w", err)
	}
	defer erows.Close()

	for erows.Next() {
		var (
			e         catalog.SupplierPriceEntry
			variantID uuid.UUID
			list      string
			net, disc *string
		)
		if err := erows.Scan(&e.ID, &variantID, &e.DistributorID, &e.ManufacturerID,
			&list, &net, &disc, &e.SupplierPartNumber, &e.IsPreferred, &e.UpdatedAt); err != nil {
			return fmt.Errorf("scan supplier entry: %w", err)
		}
		if e.Pricing, err = parsePricing(list, net, disc); err != nil {
			return fmt.Errorf("supplier entry %s: %w", e.ID, err)
		}
		i, ok := index[variantID]
		if !ok {
			continue
		}
		p.Variants[i].SupplierEntries = append(p.Variants[i].SupplierEntries, e)
	}
	return erows.Err()
}

func writeChangeset(ctx context.Context, tx pgx.Tx, p *catalog.Product, cs catalog.Changeset) error {
	if cs.ProductCreated || cs.ProductUpdated {
		_, err := tx.Exec(ctx, `
			INSERT INTO products (id, name, name_key, manufacturer_id, primary_distributor_id,
			                      section, page_number, page_name, group_code, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO UPDATE SET
				name = excluded.name,
				primary_distributor_id = excluded.primary_distributor_id,
				section = excluded.section,
				page_number = excluded.page_number,
				page_name = excluded.page_name,
				group_code = excluded.group_code,
				updated_at = excluded.updated_at`,
			p.ID, p.Name, p.Key.Name, p.Key.ManufacturerID, nullUUID(p.PrimaryDistributorID),
			p.Metadata.Section, p.Metadata.PageNumber, p.Metadata.PageName, p.Metadata.GroupCode,
			p.CreatedAt, p.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert product %s: %w", p.Key, err)
		}
	}

	touched := touchedVariants(cs)
	for pos := range p.Variants {
		v := &p.Variants[pos]
		if touched[v.ID] {
			if err := upsertVariant(ctx, tx, p.ID, pos, v); err != nil {
				return err
			}
		}
		entryIDs := cs.Entries[v.ID]
		if len(entryIDs) == 0 {
			continue
		}
		want := make(map[uuid.UUID]bool, len(entryIDs))
		for _, id := range entryIDs {
			want[id] = true
		}
		for epos := range v.SupplierEntries {
			e := &v.SupplierEntries[epos]
			if want[e.ID] {
				if err := upsertEntry(ctx, tx, v.ID, epos, e); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func touchedVariants(cs catalog.Changeset) map[uuid.UUID]bool {
	out := make(map[uuid.UUID]bool, len(cs.CreatedVariants)+len(cs.UpdatedVariants))
	for _, id := range cs.CreatedVariants {
		out[id] = true
	}
	for _, id := range cs.UpdatedVariants {
		out[id] = true
	}
	return out
}

func upsertVariant(ctx context.Context, tx pgx.Tx, productID uuid.UUID, pos int, v *catalog.Variant) error {
	props, err := json.Marshal(v.Properties)
	if err != nil {
		return fmt.Errorf("encode properties: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO variants (id, product_id, property_key, properties, display_name, sku, unit_of_measure,
		                      list_price, net_price, discount_percent, position)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8::numeric, $9::numeric, $10::numeric, $11)
		ON CONFLICT (id) DO UPDATE SET
			display_name = excluded.display_name,
			unit_of_measure = excluded.unit_of_measure,
			list_price = excluded.list_price,
			net_price = excluded.net_price,
			discount_percent = excluded.discount_percent`,
		v.ID, productID, v.Properties.Key(), string(props), v.DisplayName, v.SKU, v.UnitOfMeasure,
		v.CurrentPricing.ListPrice.String(), nullNumeric(v.CurrentPricing.NetPrice),
		nullNumeric(v.CurrentPricing.DiscountPercent), pos,
	)
	if err != nil {
		return fmt.Errorf("upsert variant %s: %w", v.SKU, err)
	}
	return nil
}

func upsertEntry(ctx context.Context, tx pgx.Tx, variantID uuid.UUID, pos int, e *catalog.SupplierPriceEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO supplier_price_entries (id, variant_id, distributor_id, manufacturer_id,
		                                    list_price, net_price, discount_percent,
		                                    supplier_part_number, is_preferred, position, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			list_price = excluded.list_price,
			net_price = excluded.net_price,
			discount_percent = excluded.discount_percent,
			supplier_part_number = excluded.supplier_part_number,
			is_preferred = excluded.is_preferred,
			updated_at = excluded.updated_at`,
		e.ID, variantID, e.DistributorID, e.ManufacturerID,
		e.Pricing.ListPrice.String(), nullNumeric(e.Pricing.NetPrice), nullNumeric(e.Pricing.DiscountPercent),
		e.SupplierPartNumber, e.IsPreferred, pos, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert supplier entry %s: %w", e.ID, err)
	}
	return nil
}

// nullNumeric renders a nullable decimal as a NUMERIC text parameter.
func nullNumeric(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}

func parsePricing(list string, net, disc *string) (catalog.Pricing, error) {
	var (
		p   catalog.Pricing
		err error
	)
	if p.ListPrice, err = decimal.NewFromString(list); err != nil {
		return p, fmt.Errorf("list price %q: %w", list, err)
	}
	if p.NetPrice, err = parseNullNumeric(net); err != nil {
		return p, fmt.Errorf("net price: %w", err)
	}
	if p.DiscountPercent, err = parseNullNumeric(disc); err != nil {
		return p, fmt.Errorf("discount: %w", err)
	}
	return p, nil
}

func parseNullNumeric(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
