// Package docgen turns corrected, structured markdown into a Word document.
// The input is a constrained dialect: #/##/### headings, * or - bullets,
// literal [DIAGRAM] markers, and formula-like lines set in a fixed-width
// font. Detected diagram crops are embedded as inline figures.
package docgen

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// BlockKind classifies one renderable block.
type BlockKind int

const (
	KindText BlockKind = iota
	KindHeading
	KindBullet
	KindDiagram
	KindFormula
)

// Block is one flattened unit of document content.
type Block struct {
	Kind  BlockKind
	Level int // heading level 1-3, meaningful for KindHeading only
	Text  string
}

// Formula heuristics: chemical formulas, math symbols, subscripts, operator
// arrows. A line matching any of these is set in a fixed-width font.
var formulaPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d+[A-Z][a-z]?\d*`),
	regexp.MustCompile(`[ΔΣ∫∂]`),
	regexp.MustCompile(`[A-Za-z]+\d+`),
	regexp.MustCompile(`→|⇌|≈|≠|≤|≥`),
}

func isFormulaLine(line string) bool {
	for _, re := range formulaPatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// ParseStructured flattens the markdown into blocks, in document order.
func ParseStructured(markdown string) []Block {
	source := []byte(markdown)
	root := goldmark.New().Parser().Parse(text.NewReader(source))

	var blocks []Block
	for node := root.FirstChild(); node != nil; node = node.NextSibling() {
		blocks = append(blocks, flatten(node, source)...)
	}
	return blocks
}

func flatten(node ast.Node, source []byte) []Block {
	switch n := node.(type) {
	case *ast.Heading:
		level := n.Level
		if level > 3 {
			level = 3
		}
		return []Block{{Kind: KindHeading, Level: level, Text: nodeText(n, source)}}

	case *ast.List:
		var blocks []Block
		for item := n.FirstChild(); item != nil; item = item.NextSibling() {
			for child := item.FirstChild(); child != nil; child = child.NextSibling() {
				if nested, ok := child.(*ast.List); ok {
					blocks = append(blocks, flatten(nested, source)...)
					continue
				}
				for _, line := range nodeLines(child, source) {
					blocks = append(blocks, classifyLine(line, KindBullet))
				}
			}
		}
		return blocks

	default:
		var blocks []Block
		for _, line := range nodeLines(node, source) {
			blocks = append(blocks, classifyLine(line, KindText))
		}
		return blocks
	}
}

// classifyLine upgrades a plain line to a diagram marker or formula block.
// Diagram markers win over formula heuristics.
func classifyLine(line string, fallback BlockKind) Block {
	if strings.Contains(line, "[DIAGRAM") {
		return Block{Kind: KindDiagram, Text: line}
	}
	if isFormulaLine(line) {
		return Block{Kind: KindFormula, Text: line}
	}
	return Block{Kind: fallback, Text: line}
}

// nodeLines extracts the source lines of a block node, one string per line.
func nodeLines(node ast.Node, source []byte) []string {
	var lines []string
	appendLine := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" {
			lines = append(lines, s)
		}
	}

	segments := node.Lines()
	if segments != nil && segments.Len() > 0 {
		for i := 0; i < segments.Len(); i++ {
			seg := segments.At(i)
			appendLine(string(seg.Value(source)))
		}
		return lines
	}

	appendLine(nodeText(node, source))
	return lines
}

// nodeText concatenates the text content of a node's inline children.
func nodeText(node ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
