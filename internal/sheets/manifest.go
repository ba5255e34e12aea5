package sheets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/pricesheet/internal/extract"
)

// Sheet is one entry of a batch manifest: where a page lives and what is
// known about it besides its cells.
type Sheet struct {
	ID string `yaml:"id" json:"id"`

	// Workbook is a path to an .xlsx or .csv file. URL is a published HTML
	// page. Exactly one locates the sheet.
	Workbook string `yaml:"workbook" json:"workbook,omitempty"`
	URL      string `yaml:"url" json:"url,omitempty"`
	// SheetName selects a worksheet inside Workbook; empty means the first.
	SheetName string `yaml:"sheet" json:"sheet,omitempty"`

	Distributor  string `yaml:"distributor" json:"distributor"`
	Manufacturer string `yaml:"manufacturer" json:"manufacturer,omitempty"`
	Product      string `yaml:"product" json:"product,omitempty"`
	PageName     string `yaml:"page_name" json:"page_name,omitempty"`
	PageNumber   int    `yaml:"page_number" json:"page_number,omitempty"`
	Section      string `yaml:"section" json:"section,omitempty"`
	GroupCode    string `yaml:"group_code" json:"group_code,omitempty"`
	// Discount is the sheet-level discount percent, e.g. "40".
	Discount string `yaml:"discount" json:"discount,omitempty"`
}

// Manifest lists the sheets of a batch. Defaults fill any field a sheet
// leaves empty.
type Manifest struct {
	Defaults Sheet   `yaml:"defaults"`
	Sheets   []Sheet `yaml:"sheets"`
}

// LoadManifest reads a YAML manifest. Relative workbook paths are resolved
// against the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for i := range m.Sheets {
		wb := m.Sheets[i].Workbook
		if wb != "" && !filepath.IsAbs(wb) {
			m.Sheets[i].Workbook = filepath.Join(dir, wb)
		}
	}
	return m, nil
}

// ParseManifest decodes and validates a manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	for i := range m.Sheets {
		m.Sheets[i] = m.Sheets[i].withDefaults(m.Defaults)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s Sheet) withDefaults(d Sheet) Sheet {
	fill := func(v *string, def string) {
		if strings.TrimSpace(*v) == "" {
			*v = def
		}
	}
	fill(&s.Workbook, d.Workbook)
	fill(&s.Distributor, d.Distributor)
	fill(&s.Manufacturer, d.Manufacturer)
	fill(&s.Section, d.Section)
	fill(&s.GroupCode, d.GroupCode)
	fill(&s.Discount, d.Discount)
	return s
}

// Validate checks every sheet and returns all problems at once.
func (m *Manifest) Validate() error {
	var errs []string
	seen := make(map[string]bool, len(m.Sheets))
	for i, s := range m.Sheets {
		where := fmt.Sprintf("sheets[%d]", i)
		if s.ID == "" {
			errs = append(errs, where+": id is required")
		} else {
			where = fmt.Sprintf("sheet %q", s.ID)
			if seen[s.ID] {
				errs = append(errs, where+": duplicate id")
			}
			seen[s.ID] = true
		}
		if (s.Workbook == "") == (s.URL == "") {
			errs = append(errs, where+": exactly one of workbook or url is required")
		}
		if strings.TrimSpace(s.Distributor) == "" {
			errs = append(errs, where+": distributor is required")
		}
		if _, err := s.DiscountPercent(); err != nil {
			errs = append(errs, where+": "+err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.New("invalid manifest:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}

// IDs returns sheet identifiers in manifest order.
func (m *Manifest) IDs() []string {
	ids := make([]string, len(m.Sheets))
	for i, s := range m.Sheets {
		ids[i] = s.ID
	}
	return ids
}

// Sheet returns the sheet with the given id.
func (m *Manifest) Sheet(id string) (Sheet, bool) {
	for _, s := range m.Sheets {
		if s.ID == id {
			return s, true
		}
	}
	return Sheet{}, false
}

// DiscountPercent parses the sheet-level discount. A trailing % is allowed.
func (s Sheet) DiscountPercent() (decimal.NullDecimal, error) {
	raw := strings.TrimSuffix(strings.TrimSpace(s.Discount), "%")
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("discount %q is not a number", s.Discount)
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.NullDecimal{}, fmt.Errorf("discount %q out of range 0-100", s.Discount)
	}
	return decimal.NewNullDecimal(d), nil
}

// ProductName is the product the sheet prices: Product if set, else the
// page name, else the worksheet name.
func (s Sheet) ProductName() string {
	for _, n := range []string{s.Product, s.PageName, s.SheetName} {
		if n = strings.TrimSpace(n); n != "" {
			return n
		}
	}
	return s.ID
}

// Context returns the extraction context for the sheet.
func (s Sheet) Context() (extract.SheetContext, error) {
	disc, err := s.DiscountPercent()
	if err != nil {
		return extract.SheetContext{}, err
	}
	page := s.PageName
	if page == "" {
		page = s.SheetName
	}
	return extract.SheetContext{
		SheetID:         s.ID,
		ProductName:     s.ProductName(),
		PageName:        page,
		PageNumber:      s.PageNumber,
		Section:         s.Section,
		GroupCode:       s.GroupCode,
		Distributor:     s.Distributor,
		Manufacturer:    s.Manufacturer,
		DiscountPercent: disc,
	}, nil
}
