package catalog_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/pricesheet/internal/catalog"
	"github.com/JonMunkholm/pricesheet/internal/lock"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func pipeRecords(n int, price string) []catalog.VariantRecord {
	recs := make([]catalog.VariantRecord, n)
	for i := range recs {
		recs[i] = catalog.VariantRecord{
			Properties: catalog.PropertyBag{
				"pipeType":            "copper",
				"pipeDiameter":        fmt.Sprintf(`%d"`, i+1),
				"insulationThickness": `1"`,
			},
			ListPrice:     dec(price),
			UnitOfMeasure: "lf",
		}
	}
	return recs
}

type fixture struct {
	store *catalog.MemoryStore
	rec   *catalog.Reconciler
}

func newFixture() fixture {
	s := catalog.NewMemoryStore()
	return fixture{store: s, rec: catalog.NewReconciler(s, lock.NewKeyedMutex())}
}

func (f fixture) parties(t *testing.T, distributor, manufacturer string) catalog.Parties {
	t.Helper()
	p, err := f.rec.ResolveCompanies(context.Background(), distributor, manufacturer)
	if err != nil {
		t.Fatalf("ResolveCompanies(%q, %q) error = %v", distributor, manufacturer, err)
	}
	return p
}

func TestPropertyBagIdentity(t *testing.T) {
	a := catalog.PropertyBag{"pipeType": "copper", "pipeDiameter": `2"`}
	b := catalog.PropertyBag{"pipeDiameter": `2"`, "pipeType": "copper"}
	c := catalog.PropertyBag{"pipeDiameter": `2"`, "pipeType": "iron"}

	if a.Key() != b.Key() {
		t.Errorf("Key() differs for equal bags: %q vs %q", a.Key(), b.Key())
	}
	if !a.Equal(b) {
		t.Error("Equal() = false for equal bags")
	}
	if a.Equal(c) || a.Key() == c.Key() {
		t.Error("bags with different values compare equal")
	}
	if want := `pipeDiameter=2";pipeType=copper`; a.Key() != want {
		t.Errorf("Key() = %q, want %q", a.Key(), want)
	}
}

func TestPropertyBagKeyEscapesSeparators(t *testing.T) {
	tests := []struct {
		name string
		a, b catalog.PropertyBag
	}{
		{"pair separator in value", catalog.PropertyBag{"a": "x;b=y"}, catalog.PropertyBag{"a": "x", "b": "y"}},
		{"equals in key", catalog.PropertyBag{"a=x": "y"}, catalog.PropertyBag{"a": "x=y"}},
		{"trailing backslash", catalog.PropertyBag{"a": `x\`, "b": "y"}, catalog.PropertyBag{"a": `x\;b=y`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.a.Equal(tt.b) {
				t.Fatal("Equal() = true for different bags")
			}
			if tt.a.Key() == tt.b.Key() {
				t.Errorf("Key() collides: %q", tt.a.Key())
			}
		})
	}
}

func TestDeriveDiscount(t *testing.T) {
	tests := []struct {
		list, net string
		want      string
		wantOK    bool
	}{
		{"100", "60", "40", true},
		{"12.50", "10.00", "20", true},
		{"3", "2", "33.3333", true},
		{"0", "0", "", false},
	}

	for _, tt := range tests {
		got, ok := catalog.DeriveDiscount(dec(tt.list), dec(tt.net))
		if ok != tt.wantOK {
			t.Errorf("DeriveDiscount(%s, %s) ok = %v, want %v", tt.list, tt.net, ok, tt.wantOK)
			continue
		}
		if ok && !got.Equal(dec(tt.want)) {
			t.Errorf("DeriveDiscount(%s, %s) = %s, want %s", tt.list, tt.net, got, tt.want)
		}
	}
}

func TestResolvePricing(t *testing.T) {
	sheet := decimal.NewNullDecimal(dec("25"))

	tests := []struct {
		name         string
		rec          catalog.VariantRecord
		sheet        decimal.NullDecimal
		wantNet      string
		wantDiscount string
	}{
		{
			name:         "sheet discount computes net",
			rec:          catalog.VariantRecord{ListPrice: dec("100")},
			sheet:        sheet,
			wantNet:      "75",
			wantDiscount: "25",
		},
		{
			name: "record net is kept",
			rec: catalog.VariantRecord{
				ListPrice: dec("100"),
				NetPrice:  decimal.NewNullDecimal(dec("60")),
			},
			sheet:        sheet,
			wantNet:      "60",
			wantDiscount: "25",
		},
		{
			name: "derived discount stands without sheet discount",
			rec: catalog.VariantRecord{
				ListPrice:       dec("100"),
				NetPrice:        decimal.NewNullDecimal(dec("60")),
				DiscountPercent: decimal.NewNullDecimal(dec("40")),
			},
			wantNet:      "60",
			wantDiscount: "40",
		},
		{
			name: "list only",
			rec:  catalog.VariantRecord{ListPrice: dec("100")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := catalog.ResolvePricing(tt.rec, tt.sheet)
			if tt.wantNet == "" {
				if p.NetPrice.Valid {
					t.Errorf("NetPrice = %s, want null", p.NetPrice.Decimal)
				}
			} else if !p.NetPrice.Valid || !p.NetPrice.Decimal.Equal(dec(tt.wantNet)) {
				t.Errorf("NetPrice = %v, want %s", p.NetPrice, tt.wantNet)
			}
			if tt.wantDiscount == "" {
				if p.DiscountPercent.Valid {
					t.Errorf("DiscountPercent = %s, want null", p.DiscountPercent.Decimal)
				}
			} else if !p.DiscountPercent.Valid || !p.DiscountPercent.Decimal.Equal(dec(tt.wantDiscount)) {
				t.Errorf("DiscountPercent = %v, want %s", p.DiscountPercent, tt.wantDiscount)
			}
		})
	}
}

func TestDeriveSKUStable(t *testing.T) {
	key := catalog.ProductKey{Name: "fiberglass pipe"}
	a := catalog.DeriveSKU(key, catalog.PropertyBag{"a": "1", "b": "2"})
	b := catalog.DeriveSKU(key, catalog.PropertyBag{"b": "2", "a": "1"})
	c := catalog.DeriveSKU(key, catalog.PropertyBag{"a": "1", "b": "3"})

	if a != b {
		t.Errorf("DeriveSKU not order independent: %q vs %q", a, b)
	}
	if a == c {
		t.Errorf("DeriveSKU collided for different bags: %q", a)
	}
	if len(a) != len("PS-")+8 {
		t.Errorf("DeriveSKU = %q, want PS- plus 8 characters", a)
	}
}

func TestResolveCompanies(t *testing.T) {
	f := newFixture()

	p1 := f.parties(t, "Acme Supply", "Johns Manville")
	p2 := f.parties(t, "  acme   supply ", "JOHNS MANVILLE")

	if p1.Distributor.ID != p2.Distributor.ID {
		t.Error("distributor resolved to two companies")
	}
	if p1.Manufacturer.ID != p2.Manufacturer.ID {
		t.Error("manufacturer resolved to two companies")
	}
	if got := f.store.SupplierLinks(); got != 1 {
		t.Errorf("SupplierLinks() = %d, want 1", got)
	}

	noMfr := f.parties(t, "Acme Supply", "")
	if noMfr.Manufacturer != nil {
		t.Errorf("Manufacturer = %+v, want nil", noMfr.Manufacturer)
	}

	if _, err := f.rec.ResolveCompanies(context.Background(), " ", ""); err == nil {
		t.Error("ResolveCompanies with blank distributor succeeded")
	}
}

func TestReconcileIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	parties := f.parties(t, "Acme Supply", "Johns Manville")

	in := catalog.ReconcileInput{
		ProductName: "Micro-Lok HP",
		Parties:     parties,
		Records:     pipeRecords(3, "12.50"),
		Metadata:    catalog.PricebookMetadata{Section: "Pipe", PageNumber: 4},
	}

	first, err := f.rec.Reconcile(ctx, in)
	if err != nil {
		t.Fatalf("first Reconcile() error = %v", err)
	}
	if !first.ProductCreated || first.VariantsCreated != 3 {
		t.Errorf("first = created %v, variants %d; want true, 3", first.ProductCreated, first.VariantsCreated)
	}
	writes := f.store.Writes()

	second, err := f.rec.Reconcile(ctx, in)
	if err != nil {
		t.Fatalf("second Reconcile() error = %v", err)
	}
	if second.ProductCreated || second.VariantsCreated != 0 || second.EntriesAdded != 0 || second.EntriesUpdated != 0 {
		t.Errorf("second reconcile changed something: %+v", second)
	}
	if second.Unchanged != 3 {
		t.Errorf("Unchanged = %d, want 3", second.Unchanged)
	}
	if got := f.store.Writes(); got != writes {
		t.Errorf("Writes() = %d after identical reconcile, want %d", got, writes)
	}
	if !reflect.DeepEqual(first.Product, second.Product) {
		t.Error("product differs after identical reconcile")
	}
}

func TestReconcileNonDestructiveMerge(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.parties(t, "Distributor A", "Johns Manville")
	b := f.parties(t, "Distributor B", "Johns Manville")

	in := catalog.ReconcileInput{ProductName: "Micro-Lok HP", Parties: a, Records: pipeRecords(1, "10.00")}
	if _, err := f.rec.Reconcile(ctx, in); err != nil {
		t.Fatalf("Reconcile(A) error = %v", err)
	}
	before, err := f.store.GetProduct(ctx, catalog.NewProductKey("Micro-Lok HP", a.Manufacturer))
	if err != nil {
		t.Fatalf("GetProduct() error = %v", err)
	}
	entryA, _ := before.Variants[0].Entry(a.Distributor.ID)
	wantA := *entryA

	in.Parties = b
	in.Records = pipeRecords(1, "11.00")
	res, err := f.rec.Reconcile(ctx, in)
	if err != nil {
		t.Fatalf("Reconcile(B) error = %v", err)
	}

	v := res.Product.Variants[0]
	if len(v.SupplierEntries) != 2 {
		t.Fatalf("len(SupplierEntries) = %d, want 2", len(v.SupplierEntries))
	}
	gotA, ok := v.Entry(a.Distributor.ID)
	if !ok {
		t.Fatal("distributor A entry missing after B import")
	}
	if !reflect.DeepEqual(*gotA, wantA) {
		t.Errorf("distributor A entry changed:\n got %+v\nwant %+v", *gotA, wantA)
	}
	if !v.CurrentPricing.ListPrice.Equal(dec("11")) {
		t.Errorf("CurrentPricing.ListPrice = %s, want 11 (last writer)", v.CurrentPricing.ListPrice)
	}
	if res.Product.PrimaryDistributorID != b.Distributor.ID {
		t.Error("PrimaryDistributorID not moved to most recent distributor")
	}
	if !gotA.IsPreferred {
		t.Error("first distributor entry should stay preferred")
	}
	if gotB, _ := v.Entry(b.Distributor.ID); gotB.IsPreferred {
		t.Error("second distributor entry should not be preferred")
	}
}

func TestReconcileUpdatesInPlace(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.parties(t, "Distributor A", "")

	in := catalog.ReconcileInput{ProductName: "Board", Parties: a, Records: pipeRecords(2, "10.00")}
	first, err := f.rec.Reconcile(ctx, in)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	entryID := first.Product.Variants[0].SupplierEntries[0].ID

	in.Records = pipeRecords(2, "10.75")
	res, err := f.rec.Reconcile(ctx, in)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if res.EntriesUpdated != 2 || res.EntriesAdded != 0 {
		t.Errorf("EntriesUpdated = %d, EntriesAdded = %d; want 2, 0", res.EntriesUpdated, res.EntriesAdded)
	}
	v := res.Product.Variants[0]
	if len(v.SupplierEntries) != 1 || v.SupplierEntries[0].ID != entryID {
		t.Errorf("entry replaced instead of updated: %+v", v.SupplierEntries)
	}
	if !v.SupplierEntries[0].Pricing.ListPrice.Equal(dec("10.75")) {
		t.Errorf("ListPrice = %s, want 10.75", v.SupplierEntries[0].Pricing.ListPrice)
	}
}

func TestReconcileReimportScenario(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.parties(t, "Distributor A", "Owens Corning")
	b := f.parties(t, "Distributor B", "Owens Corning")

	for _, p := range []catalog.Parties{a, b} {
		_, err := f.rec.Reconcile(ctx, catalog.ReconcileInput{
			ProductName:     "Fiberglas Pipe",
			Parties:         p,
			Records:         pipeRecords(10, "5.00"),
			DiscountPercent: decimal.NewNullDecimal(dec("30")),
		})
		if err != nil {
			t.Fatalf("Reconcile(%s) error = %v", p.Distributor.Name, err)
		}
	}

	products, err := f.store.ListProducts(ctx)
	if err != nil {
		t.Fatalf("ListProducts() error = %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("len(products) = %d, want 1", len(products))
	}
	if got := len(products[0].Variants); got != 10 {
		t.Errorf("len(Variants) = %d, want 10", got)
	}
	for _, v := range products[0].Variants {
		if len(v.SupplierEntries) != 2 {
			t.Errorf("variant %s has %d entries, want 2", v.Properties.Key(), len(v.SupplierEntries))
		}
		for _, e := range v.SupplierEntries {
			if !e.Pricing.NetPrice.Valid || !e.Pricing.NetPrice.Decimal.Equal(dec("3.5")) {
				t.Errorf("NetPrice = %v, want 3.5", e.Pricing.NetPrice)
			}
		}
	}
}

func TestReconcileManufacturerBuckets(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	withMfr := f.parties(t, "Distributor A", "Knauf")
	without := f.parties(t, "Distributor A", "")

	for _, p := range []catalog.Parties{withMfr, without} {
		if _, err := f.rec.Reconcile(ctx, catalog.ReconcileInput{
			ProductName: "Earthwool", Parties: p, Records: pipeRecords(1, "1.00"),
		}); err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}
	}

	products, _ := f.store.ListProducts(ctx)
	if len(products) != 2 {
		t.Errorf("len(products) = %d, want 2 (manufacturer absent is its own bucket)", len(products))
	}
}

func TestReconcileAtomic(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.parties(t, "Distributor A", "")
	errDown := errors.New("storage unavailable")

	f.store.WriteHook = func(*catalog.Product, catalog.Changeset) error { return errDown }
	_, err := f.rec.Reconcile(ctx, catalog.ReconcileInput{ProductName: "Board", Parties: a, Records: pipeRecords(4, "2.00")})
	if !errors.Is(err, errDown) {
		t.Fatalf("Reconcile() error = %v, want %v", err, errDown)
	}
	if _, err := f.store.GetProduct(ctx, catalog.NewProductKey("Board", nil)); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("GetProduct() after failed create error = %v, want ErrNotFound", err)
	}

	f.store.WriteHook = nil
	if _, err := f.rec.Reconcile(ctx, catalog.ReconcileInput{ProductName: "Board", Parties: a, Records: pipeRecords(1, "2.00")}); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	f.store.WriteHook = func(*catalog.Product, catalog.Changeset) error { return errDown }
	if _, err := f.rec.Reconcile(ctx, catalog.ReconcileInput{ProductName: "Board", Parties: a, Records: pipeRecords(4, "3.00")}); err == nil {
		t.Fatal("Reconcile() succeeded with failing store")
	}
	p, err := f.store.GetProduct(ctx, catalog.NewProductKey("Board", nil))
	if err != nil {
		t.Fatalf("GetProduct() error = %v", err)
	}
	if len(p.Variants) != 1 || !p.Variants[0].CurrentPricing.ListPrice.Equal(dec("2")) {
		t.Errorf("failed reconcile left partial state: %d variants", len(p.Variants))
	}
}

func TestReconcileConcurrentSameProduct(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	const distributors = 8
	parties := make([]catalog.Parties, distributors)
	for i := range parties {
		parties[i] = f.parties(t, fmt.Sprintf("Distributor %d", i), "Armacell")
	}

	var wg sync.WaitGroup
	for _, p := range parties {
		wg.Add(1)
		go func(p catalog.Parties) {
			defer wg.Done()
			if _, err := f.rec.Reconcile(ctx, catalog.ReconcileInput{
				ProductName: "AP Armaflex", Parties: p, Records: pipeRecords(5, "7.00"),
			}); err != nil {
				t.Errorf("Reconcile() error = %v", err)
			}
		}(p)
	}
	wg.Wait()

	products, _ := f.store.ListProducts(ctx)
	if len(products) != 1 {
		t.Fatalf("len(products) = %d, want 1", len(products))
	}
	if got := len(products[0].Variants); got != 5 {
		t.Errorf("len(Variants) = %d, want 5", got)
	}
	for _, v := range products[0].Variants {
		if len(v.SupplierEntries) != distributors {
			t.Errorf("len(SupplierEntries) = %d, want %d", len(v.SupplierEntries), distributors)
		}
	}
}

func TestReconcileValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.parties(t, "Distributor A", "")

	tests := []struct {
		name string
		in   catalog.ReconcileInput
	}{
		{"no distributor", catalog.ReconcileInput{ProductName: "X", Records: pipeRecords(1, "1")}},
		{"no name", catalog.ReconcileInput{Parties: a, Records: pipeRecords(1, "1")}},
		{"no records", catalog.ReconcileInput{ProductName: "X", Parties: a}},
	}
	for _, tt := range tests {
		if _, err := f.rec.Reconcile(ctx, tt.in); err == nil {
			t.Errorf("%s: Reconcile() succeeded, want error", tt.name)
		}
	}
}
