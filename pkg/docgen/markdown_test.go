package docgen

import (
	"testing"
)

func TestParseStructured(t *testing.T) {
	markdown := `# Chemistry Notes

Some observations from the lab session today.

## Reactions

- first the solution turned blue
- 2H2 + O2 makes water

CaCl2 + Na2CO3 → CaCO3 + 2NaCl

[DIAGRAM]

### Details

More plain text here.`

	blocks := ParseStructured(markdown)

	expected := []Block{
		{Kind: KindHeading, Level: 1, Text: "Chemistry Notes"},
		{Kind: KindText, Text: "Some observations from the lab session today."},
		{Kind: KindHeading, Level: 2, Text: "Reactions"},
		{Kind: KindBullet, Text: "first the solution turned blue"},
		{Kind: KindFormula, Text: "2H2 + O2 makes water"},
		{Kind: KindFormula, Text: "CaCl2 + Na2CO3 → CaCO3 + 2NaCl"},
		{Kind: KindDiagram, Text: "[DIAGRAM]"},
		{Kind: KindHeading, Level: 3, Text: "Details"},
		{Kind: KindText, Text: "More plain text here."},
	}

	if len(blocks) != len(expected) {
		t.Fatalf("Expected %d blocks, got %d: %+v", len(expected), len(blocks), blocks)
	}
	for i, want := range expected {
		got := blocks[i]
		if got.Kind != want.Kind || got.Text != want.Text {
			t.Errorf("Block %d: expected %+v, got %+v", i, want, got)
		}
		if want.Kind == KindHeading && got.Level != want.Level {
			t.Errorf("Block %d: expected heading level %d, got %d", i, want.Level, got.Level)
		}
	}
}

func TestParseStructured_DeepHeadingClamped(t *testing.T) {
	blocks := ParseStructured("##### Deep heading")
	if len(blocks) != 1 {
		t.Fatalf("Expected 1 block, got %d", len(blocks))
	}
	if blocks[0].Kind != KindHeading || blocks[0].Level != 3 {
		t.Errorf("Deep headings clamp to level 3, got %+v", blocks[0])
	}
}

func TestParseStructured_Empty(t *testing.T) {
	if blocks := ParseStructured(""); len(blocks) != 0 {
		t.Errorf("Expected no blocks for empty input, got %d", len(blocks))
	}
}

func TestClassifyLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		fallback BlockKind
		expected BlockKind
	}{
		{"plain text", "ordinary sentence about nothing", KindText, KindText},
		{"diagram marker", "[DIAGRAM]", KindText, KindDiagram},
		{"diagram marker with id", "[DIAGRAM 2]", KindText, KindDiagram},
		{"diagram wins over formula", "[DIAGRAM] showing 2H2O", KindText, KindDiagram},
		{"chemical formula", "2NaCl dissolved", KindText, KindFormula},
		{"greek math", "ΔH = -57 kJ", KindText, KindFormula},
		{"subscripted term", "x2 plus y2", KindText, KindFormula},
		{"arrow", "A → B", KindText, KindFormula},
		{"bullet fallback kept", "just a list item", KindBullet, KindBullet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyLine(tt.line, tt.fallback); got.Kind != tt.expected {
				t.Errorf("Expected kind %d, got %d", tt.expected, got.Kind)
			}
		})
	}
}

func TestIsFormulaLine(t *testing.T) {
	if isFormulaLine("a calm sentence with no symbols at all") {
		t.Error("Plain prose must not read as a formula")
	}
	if !isFormulaLine("H2O") {
		t.Error("H2O must read as a formula")
	}
}
