package classify

import (
	"errors"
	"testing"

	"github.com/JonMunkholm/pricesheet/internal/grid"
	"github.com/JonMunkholm/pricesheet/internal/grid/gridtest"
)

func TestClassifyFixtures(t *testing.T) {
	tests := []struct {
		name          string
		grid          grid.Grid
		wantLayout    Layout
		wantHeader    int
		wantDataStart int
		wantThickness int
		wantSubHeader int
	}{
		{"pipe insulation", gridtest.PipeInsulation(), PipeInsulation, 1, 2, -1, -1},
		{"fitting matrix", gridtest.FittingMatrix(), FittingMatrix, 1, 2, -1, -1},
		{"mineral wool simple", gridtest.MineralWoolSimple(), MineralWoolPipe, 1, 3, 2, -1},
		{"mineral wool lf/box", gridtest.MineralWoolLFBox(), MineralWoolPipe, 0, 3, 1, 2},
		{"elastomeric", gridtest.Elastomeric(), ElastomericPipe, 1, 4, 2, 3},
		{"pipe insulation numeric", gridtest.PipeInsulationNumeric(), PipeInsulation, 1, 2, -1, -1},
		{"mineral wool numeric", gridtest.MineralWoolNumeric(), MineralWoolPipe, 1, 3, 2, -1},
		{"elastomeric numeric", gridtest.ElastomericNumeric(), ElastomericPipe, 1, 4, 2, 3},
		{"board", gridtest.Board(), Board, 0, 1, -1, -1},
		{"duct liner", gridtest.DuctLiner(), DuctLiner, 1, 2, -1, -1},
		{"simple table", gridtest.SimpleTable(), SimpleTable, 1, 2, -1, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.grid)
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if got.Layout != tt.wantLayout {
				t.Errorf("Layout = %q, want %q", got.Layout, tt.wantLayout)
			}
			if got.HeaderRow != tt.wantHeader {
				t.Errorf("HeaderRow = %d, want %d", got.HeaderRow, tt.wantHeader)
			}
			if got.DataStart != tt.wantDataStart {
				t.Errorf("DataStart = %d, want %d", got.DataStart, tt.wantDataStart)
			}
			if got.ThicknessRow != tt.wantThickness {
				t.Errorf("ThicknessRow = %d, want %d", got.ThicknessRow, tt.wantThickness)
			}
			if got.SubHeaderRow != tt.wantSubHeader {
				t.Errorf("SubHeaderRow = %d, want %d", got.SubHeaderRow, tt.wantSubHeader)
			}
			if len(got.HeaderColumns) == 0 {
				t.Error("HeaderColumns is empty")
			}
		})
	}
}

func TestClassifyNarrativeNotRecognized(t *testing.T) {
	_, err := Classify(gridtest.Narrative())
	if !errors.Is(err, ErrNotRecognized) {
		t.Errorf("Classify(narrative) error = %v, want ErrNotRecognized", err)
	}
}

func TestClassifyEmptyGrid(t *testing.T) {
	_, err := Classify(grid.Grid{})
	if !errors.Is(err, ErrNotRecognized) {
		t.Errorf("Classify(empty) error = %v, want ErrNotRecognized", err)
	}
}

func TestClassifyNarrativeRowIsNotHeader(t *testing.T) {
	// A description that happens to mention copper and iron must not be
	// taken as a pipe-insulation header.
	g := grid.FromStrings([][]string{
		{"Designed for copper and iron piping", "see table"},
		{"Pipe Diameter", "Price per Lineal Foot"},
		{"", `1"`, `2"`},
		{`1/2"`, "3.00", "4.00"},
	})

	got, err := Classify(g)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if got.Layout != MineralWoolPipe || got.HeaderRow != 1 {
		t.Errorf("Classify() = %s@%d, want %s@1", got.Layout, got.HeaderRow, MineralWoolPipe)
	}
}

func TestClassifyMineralWoolRequiresThicknessRow(t *testing.T) {
	g := grid.FromStrings([][]string{
		{"Pipe Diameter", "Price per Lineal Foot"},
		{"see attached"},
		{"call for pricing"},
		{"thank you"},
		{`1"`, `2"`},
	})

	if _, err := Classify(g); !errors.Is(err, ErrNotRecognized) {
		t.Errorf("Classify() error = %v, want ErrNotRecognized", err)
	}
}

func TestClassifyMineralWoolSkipsDataRows(t *testing.T) {
	tests := []struct {
		name string
		grid grid.Grid
	}{
		{"size in diameter column", grid.FromValues([][]any{
			{"Pipe Diameter", "Price per Lineal Foot"},
			{`1/2"`, 4.1, 5.2},
			{`3/4"`, 4.4, 5.5},
		})},
		{"price-formatted cells", grid.FromStrings([][]string{
			{"Pipe Diameter", "Price per Lineal Foot"},
			{"", "4.10", "5.20"},
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Classify(tt.grid); !errors.Is(err, ErrNotRecognized) {
				t.Errorf("Classify() error = %v, want ErrNotRecognized", err)
			}
		})
	}
}

func TestClassifyPriorityWithinRow(t *testing.T) {
	// The elastomeric header also mentions copper and iron; the more
	// specific signature must win.
	got, err := Classify(gridtest.Elastomeric())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if got.Layout != ElastomericPipe {
		t.Errorf("Layout = %q, want %q", got.Layout, ElastomericPipe)
	}
}

func TestClassifyScanWindow(t *testing.T) {
	rows := make([][]string, 0, 45)
	for i := 0; i < 40; i++ {
		rows = append(rows, []string{"notes"})
	}
	rows = append(rows,
		[]string{"COPPER", "IRON", `1"`},
		[]string{`1/2"`, `1/4"`, "3.00"},
	)
	g := grid.FromStrings(rows)

	if _, err := Classify(g); !errors.Is(err, ErrNotRecognized) {
		t.Errorf("default window error = %v, want ErrNotRecognized", err)
	}

	got, err := New(50).Classify(g)
	if err != nil {
		t.Fatalf("wide window error = %v", err)
	}
	if got.HeaderRow != 40 {
		t.Errorf("HeaderRow = %d, want 40", got.HeaderRow)
	}
}

func TestClassifyCustomSignatures(t *testing.T) {
	c := &Classifier{Signatures: []Signature{simpleTableSignature{}}}
	_, err := c.Classify(gridtest.PipeInsulation())
	if !errors.Is(err, ErrNotRecognized) {
		t.Errorf("Classify() error = %v, want ErrNotRecognized", err)
	}
}

func TestLayoutsOrder(t *testing.T) {
	sigs := DefaultSignatures()
	layouts := Layouts()
	if len(sigs) != len(layouts) {
		t.Fatalf("len(DefaultSignatures()) = %d, len(Layouts()) = %d", len(sigs), len(layouts))
	}
	for i, s := range sigs {
		if s.Layout() != layouts[i] {
			t.Errorf("signature %d layout = %q, want %q", i, s.Layout(), layouts[i])
		}
	}
}
