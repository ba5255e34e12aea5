package grid

import (
	"strings"
	"testing"
)

func TestCellString(t *testing.T) {
	tests := []struct {
		name string
		cell Cell
		want string
	}{
		{"empty", Blank(), ""},
		{"text trimmed", Str("  COPPER "), "COPPER"},
		{"whitespace only is empty", Str("   "), ""},
		{"integer number", Num(12), "12"},
		{"decimal number", Num(12.5), "12.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cell.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGridAccessors(t *testing.T) {
	g := FromStrings([][]string{
		{"Price List", ""},
		{"", "", ""},
		{"COPPER", "IRON", "1/2\""},
	})

	if got := g.Width(); got != 3 {
		t.Errorf("Width() = %d, want 3", got)
	}
	if got := g.Text(2, 1); got != "IRON" {
		t.Errorf("Text(2,1) = %q, want %q", got, "IRON")
	}
	if got := g.Text(9, 9); got != "" {
		t.Errorf("Text out of range = %q, want empty", got)
	}
	if !g.IsBlankRow(1) {
		t.Error("IsBlankRow(1) = false, want true")
	}
	if !g.IsBlankRow(99) {
		t.Error("IsBlankRow past end = false, want true")
	}
	if got := g.JoinedLower(2); got != "copper iron 1/2\"" {
		t.Errorf("JoinedLower(2) = %q", got)
	}
	if idx, text := g.FirstText(0); idx != 0 || text != "Price List" {
		t.Errorf("FirstText(0) = (%d, %q)", idx, text)
	}
	if got := g.NonBlankCount(2); got != 3 {
		t.Errorf("NonBlankCount(2) = %d, want 3", got)
	}
}

func TestFromValues(t *testing.T) {
	g := FromValues([][]any{{"2\"", nil, 12.5, 3}})

	if g.Cell(0, 1).Kind != Empty {
		t.Errorf("nil value kind = %v, want Empty", g.Cell(0, 1).Kind)
	}
	if g.Cell(0, 2).Kind != Number || g.Cell(0, 2).Num != 12.5 {
		t.Errorf("float value = %+v", g.Cell(0, 2))
	}
	if got := g.Text(0, 3); got != "3" {
		t.Errorf("int value text = %q, want %q", got, "3")
	}
}

func TestDump(t *testing.T) {
	g := FromStrings([][]string{{"a", "b"}, {"c"}, {"d"}})
	lines := g.Dump(2)
	if len(lines) != 2 {
		t.Fatalf("Dump(2) returned %d lines, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "a | b") {
		t.Errorf("Dump line 0 = %q", lines[0])
	}
	if got := len(g.Dump(10)); got != 3 {
		t.Errorf("Dump(10) returned %d lines, want 3", got)
	}
}
