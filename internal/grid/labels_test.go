package grid

import "testing"

func TestIsThicknessToken(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{`1"`, true},
		{`1/2"`, true},
		{`1-1/2"`, true},
		{`2'`, true},
		{`1.5"`, true},
		{`3`, true},
		{` 3/4" `, true},
		{`COPPER`, false},
		{`1" x 24"`, false},
		{``, false},
		{`Price/LF`, false},
	}

	for _, tt := range tests {
		if got := IsThicknessToken(tt.input); got != tt.want {
			t.Errorf("IsThicknessToken(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestCountThicknessTokensNumberCells(t *testing.T) {
	g := FromValues([][]any{
		{nil, nil, 1, nil, nil, 2},
		{nil, 1.5, `2"`, "List"},
		{"Wall Thickness", nil},
	})

	tests := []struct {
		row  int
		want int
	}{
		{0, 2},
		{1, 2},
		{2, 0},
	}
	for _, tt := range tests {
		if got := g.CountThicknessTokens(tt.row); got != tt.want {
			t.Errorf("CountThicknessTokens(%d) = %d, want %d", tt.row, got, tt.want)
		}
	}
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `1"`, `1"`},
		{"collapses whitespace", `1"   x  48"`, `1" x 48"`},
		{"non-stock suffix", `1-1/2" Non-Stock`, `1-1/2"`},
		{"non stock in parens", `2" (Non Stock)`, `2"`},
		{"moq annotation", `1/2" (MOQ 10 rolls)`, `1/2"`},
		{"manufacturer prefix", `JM 1"`, `1"`},
		{"manufacturer name", `Owens Corning 2" x 48"`, `2" x 48"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeLabel(tt.input); got != tt.want {
				t.Errorf("NormalizeLabel(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsNarrative(t *testing.T) {
	long := make([]byte, NarrativeMaxLen+1)
	for i := range long {
		long[i] = 'x'
	}

	tests := []struct {
		input string
		want  bool
	}{
		{"pipe diameter price per lineal foot", false},
		{"this product is designed for hot and cold piping", true},
		{"manufactured to astm c547", true},
		{"also available in 6 ft lengths", true},
		{string(long), true},
	}

	for _, tt := range tests {
		if got := IsNarrative(tt.input); got != tt.want {
			t.Errorf("IsNarrative(%.30q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestIsFooter(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"prices subject to change without notice", true},
		{"please call for availability", true},
		{"freight allowed on orders over $2,500", true},
		{"2\" 4.10 5.20", false},
	}

	for _, tt := range tests {
		if got := IsFooter(tt.input); got != tt.want {
			t.Errorf("IsFooter(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
