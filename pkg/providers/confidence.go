package providers

import "strings"

// Symbols treated as evidence of formula-like content. Generation models do
// not emit calibrated confidence, so structured mathematical output is used
// as a proxy for "looks like real transcribed notes".
var formulaSymbols = []string{"=", "+", "×", "÷", "Δ", "→", "⇌", "∫", "∂", "Σ", "∑", "≈", "≤", "≥", "^", "_"}

// ContainsFormulaSymbols reports whether text carries math or chemistry
// notation.
func ContainsFormulaSymbols(text string) bool {
	for _, sym := range formulaSymbols {
		if strings.Contains(text, sym) {
			return true
		}
	}
	return false
}

// EstimateConfidence derives a heuristic confidence for a local model's
// output from a per-model baseline. Very short output is the strongest
// signal of a failed transcription and is penalized hard; formula symbols
// earn a small bonus. The returned value is clamped to [0, 1].
func EstimateConfidence(baseline float64, text string) float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}

	confidence := baseline
	switch n := len(trimmed); {
	case n < 20:
		confidence -= 0.40
	case n < 80:
		confidence -= 0.15
	}

	if ContainsFormulaSymbols(trimmed) {
		confidence += 0.05
	}

	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}
