package catalog

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// discountScale is the number of decimal places kept on derived percentages.
const discountScale = 4

// priceScale is the number of decimal places kept on computed net prices.
const priceScale = 4

// DeriveDiscount returns (list - net) / list * 100. The second result is
// false when list is not positive.
func DeriveDiscount(list, net decimal.Decimal) (decimal.Decimal, bool) {
	if !list.IsPositive() {
		return decimal.Decimal{}, false
	}
	return list.Sub(net).Mul(hundred).Div(list).Round(discountScale), true
}

// ApplyDiscount returns list * (1 - pct/100).
func ApplyDiscount(list, pct decimal.Decimal) decimal.Decimal {
	return list.Mul(hundred.Sub(pct)).Div(hundred).Round(priceScale)
}

// ResolvePricing applies the sheet-level discount to a record.
//
// A record without a net price gets one computed from the sheet discount.
// A record that already carries a net price keeps it; the sheet discount,
// when present, is reported as its discount. Without a sheet discount the
// record's own discount (possibly derived by the extractor) stands.
func ResolvePricing(rec VariantRecord, sheetDiscount decimal.NullDecimal) Pricing {
	p := Pricing{
		ListPrice:       rec.ListPrice,
		NetPrice:        rec.NetPrice,
		DiscountPercent: rec.DiscountPercent,
	}
	if !sheetDiscount.Valid {
		return p
	}
	if !p.NetPrice.Valid {
		p.NetPrice = decimal.NewNullDecimal(ApplyDiscount(rec.ListPrice, sheetDiscount.Decimal))
	}
	p.DiscountPercent = sheetDiscount
	return p
}

// skuNamespace scopes derived SKUs.
var skuNamespace = uuid.MustParse("3b1d5c1e-7f0a-4c55-9d0e-6a2f8f5b9c11")

// DeriveSKU returns a stable SKU for a variant of a product. The same
// product key and bag always produce the same SKU.
func DeriveSKU(key ProductKey, bag PropertyBag) string {
	id := uuid.NewSHA1(skuNamespace, []byte(key.String()+"#"+bag.Key()))
	return "PS-" + strings.ToUpper(id.String()[:8])
}

// DisplayName renders "<product> - <v1> x <v2> ..." with bag values in key order.
func DisplayName(product string, bag PropertyBag) string {
	vals := bag.Values()
	if len(vals) == 0 {
		return product
	}
	return product + " - " + strings.Join(vals, " x ")
}
