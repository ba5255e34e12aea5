// Package gridtest holds canonical grids, one per recognized layout, shared by
// the classifier, extractor, and importer tests.
package gridtest

import "github.com/JonMunkholm/pricesheet/internal/grid"

// PipeInsulation is a copper/iron matrix. The iron diameter is a dash on the
// only data row, so only copper variants are priced.
func PipeInsulation() grid.Grid {
	return grid.FromStrings([][]string{
		{"Fiberglass Pipe Insulation - ASJ"},
		{"COPPER", "IRON", `1/2"`, `3/4"`},
		{`2"`, "-", "12.50", "15.00"},
	})
}

// FittingMatrix is a nominal-size by wall-thickness matrix under a title row.
func FittingMatrix() grid.Grid {
	return grid.FromStrings([][]string{
		{"90° Elbows"},
		{"Nominal Pipe Size", `$1"`, `1-1/2"`, `2"`},
		{`1/2"`, "3.10", "4.20", "-"},
		{`3/4"`, "3.40", "$4.60", "5.90"},
	})
}

// MineralWoolSimple has prices directly beneath each thickness.
func MineralWoolSimple() grid.Grid {
	return grid.FromStrings([][]string{
		{"Mineral Wool Pipe Insulation"},
		{"Pipe Diameter", "Price per Lineal Foot"},
		{"", `1"`, `1-1/2"`, `2"`},
		{`1/2"`, "4.10", "5.20", "6.30"},
		{"Iron Pipe Sizes"},
		{`1"`, "4.80", "5.90", "7.10"},
		{"Prices subject to change. Please call for freight."},
		{`2"`, "9.99", "9.99", "9.99"},
	})
}

// MineralWoolLFBox has an LF/BOX and PRICE/LF column pair under each thickness.
func MineralWoolLFBox() grid.Grid {
	return grid.FromStrings([][]string{
		{"Pipe Diameter", "LF per box / Price per LF"},
		{"", `1"`, "", `1-1/2"`, ""},
		{"", "LF/Box", "Price/LF", "LF/Box", "Price/LF"},
		{`1/2"`, "48", "4.10", "36", "5.20"},
		{`3/4"`, "48", "4.40", "36", "-"},
	})
}

// Elastomeric has List, NET and lf/ctn columns under each wall thickness.
func Elastomeric() grid.Grid {
	return grid.FromStrings([][]string{
		{"AP Armaflex Pipe Insulation"},
		{"Interior Diameter", "Copper Tube Size", "Iron Pipe Size", "Wall Thickness"},
		{"", "", "", `3/8"`, "", "", `1/2"`, "", ""},
		{"", "", "", "List", "NET", "lf/ctn", "List", "NET", "lf/ctn"},
		{"3/8", `1/4"`, "", "100.00", "60.00", "180", "120.00", "72.00", "150"},
		{"5/8", `1/2"`, `1/4"`, "#N/A", "#N/A", "", "130.00", "78.00", "120"},
	})
}

// PipeInsulationNumeric is PipeInsulation as an xlsx reader returns it:
// thickness headers and prices are number cells.
func PipeInsulationNumeric() grid.Grid {
	return grid.FromValues([][]any{
		{"Fiberglass Pipe Insulation - ASJ"},
		{"COPPER", "IRON", 0.5, 1, 1.5},
		{`2"`, `1-1/2"`, 12.5, 15, 17.25},
		{`3"`, "-", 14, 16.5, nil},
	})
}

// MineralWoolNumeric has a number-typed thickness row and number prices.
func MineralWoolNumeric() grid.Grid {
	return grid.FromValues([][]any{
		{"Mineral Wool Pipe Insulation"},
		{"Pipe Diameter", "Price per Lineal Foot"},
		{nil, 1, 1.5, 2},
		{`1/2"`, 4.1, 5.2, 6.3},
		{`3/4"`, 4.4, 5.5, 6.6},
	})
}

// ElastomericNumeric has number-typed wall thicknesses and prices under a
// text List/NET/lf-ctn row.
func ElastomericNumeric() grid.Grid {
	return grid.FromValues([][]any{
		{"AP Armaflex Pipe Insulation"},
		{"Interior Diameter", "Copper Tube Size", "Iron Pipe Size", "Wall Thickness"},
		{nil, nil, nil, 1, nil, nil, 2, nil, nil},
		{nil, nil, nil, "List", "NET", "lf/ctn", "List", "NET", "lf/ctn"},
		{"3/8", `1/4"`, nil, 100, 60, 180, 120, 72, 150},
		{"5/8", `1/2"`, `1/4"`, 130, 78, 120, 160, 96, 90},
	})
}

// Board has two products separated by a blank row.
func Board() grid.Grid {
	return grid.FromStrings([][]string{
		{"Product", "Thickness", "Dimensions", "Sq.Ft/Bundle", "Price/Sq.Ft", "Price/Bundle"},
		{"1.5 LB. JM 1230"},
		{"", `1"`, `24" x 48"`, "96", "0.85", "81.60"},
		{"", `1-1/2"`, `24" x 48"`, "64", "1.20", ""},
		{""},
		{"3.0 LB. JM 1260"},
		{"", `2"`, `24" x 48"`, "48", "1.75", "84.00"},
	})
}

// DuctLiner has two named sections, each with its own header.
func DuctLiner() grid.Grid {
	return grid.FromStrings([][]string{
		{"Linacoustic RC"},
		{"Roll Thickness", "Dimensions", "Sq.Ft/Roll", "Price/Sq.Ft", "Price/Roll"},
		{`1"`, `48" x 100'`, "400", "0.90", "360.00"},
		{`1-1/2"`, `48" x 67'`, "268", "1.25", ""},
		{""},
		{"Linacoustic R-300"},
		{"Roll Thickness", "Dimensions", "Sq.Ft/Roll", "Price/Sq.Ft", "Price/Roll"},
		{`1"`, `60" x 100'`, "500", "0.95", "475.00"},
	})
}

// SimpleTable is a plain part list.
func SimpleTable() grid.Grid {
	return grid.FromStrings([][]string{
		{"Accessories"},
		{"Part #", "Description", "Size", "List Price"},
		{"PVC-45", "PVC 45° fitting cover", `2"`, "$1.15"},
		{"TAPE-3", "ASJ tape", `3" x 150'`, "18.40"},
		{"", "", "", ""},
		{"CALL", "Special order covers", "", "Call"},
	})
}

// Narrative is prose with no table.
func Narrative() grid.Grid {
	return grid.FromStrings([][]string{
		{"This insulation is designed for hot and cold piping systems."},
		{"It is manufactured to ASTM C547 and available in 3 ft sections."},
		{""},
		{"Contact your distributor."},
	})
}
