package providers

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// Strategy identifies a recognition backend. The set is closed; selection
// happens through this enum rather than runtime type inspection.
type Strategy string

const (
	// StrategyAuto lets the coordinator walk the fallback chain.
	StrategyAuto Strategy = "auto"
	// StrategyGroq is the remote vision-language API.
	StrategyGroq Strategy = "groq"
	// StrategyLlava is the primary (richer, slower) local vision model.
	StrategyLlava Strategy = "llava"
	// StrategyMoondream is the secondary (smaller) local vision model.
	StrategyMoondream Strategy = "moondream"
	// StrategyTesseract is the legacy bounding-box OCR reader.
	StrategyTesseract Strategy = "tesseract"
)

// MethodAllFailed marks the canonical result returned when every provider
// was attempted and none produced usable text.
const MethodAllFailed = "all_failed"

// ParseStrategy converts a CLI/UI string into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyAuto:
		return StrategyAuto, nil
	case StrategyGroq:
		return StrategyGroq, nil
	case StrategyLlava:
		return StrategyLlava, nil
	case StrategyMoondream:
		return StrategyMoondream, nil
	case StrategyTesseract:
		return StrategyTesseract, nil
	}
	return StrategyAuto, fmt.Errorf("unknown strategy %q (want auto, groq, llava, moondream or tesseract)", s)
}

// Result is the unit flowing out of every provider and out of the
// coordinator. Exactly one of two shapes is surfaced to callers: non-empty
// Text with Method identifying the successful backend, or empty Text with
// Err set and Confidence 0.
type Result struct {
	Text       string
	Confidence float64
	Method     string
	Err        error
}

// Failure builds the canonical failed result for a backend.
func Failure(method string, err error) Result {
	return Result{Method: method, Err: err}
}

// Provider is the uniform contract every recognition backend implements.
// Recognize must never panic or let a failure escape: all faults (missing
// credentials, network errors, inference failures, malformed images) are
// converted into a Result with Err set. Release frees any expensive
// resources the provider holds and must be safe to call repeatedly.
type Provider interface {
	Name() string
	Recognize(ctx context.Context, imagePath string) Result
	Release() error
}

// TranscriptionPrompt is the instruction sent to vision-language backends.
// Plain-text math notation is requested so downstream document generation
// does not have to render LaTeX.
const TranscriptionPrompt = `Extract ALL text from this image of handwritten notes.

Rules:
1. Transcribe exactly what you see, including equations and formulas.
2. Preserve structure: headings, bullet points, boxes.
3. Use markdown formatting (# for headings, * for bullets).
4. Write chemical formulas with plain digits (H2O, not H₂O).
5. For diagrams or graphs, mark their location with [DIAGRAM: brief description].
6. Maintain reading order, top to bottom, left to right.
7. Write all mathematics in plain text: fractions as a / b, powers as x^2,
   subscripts as I_DC. Never answer in LaTeX.
Output only the transcribed text with diagram descriptions.`

// EncodeImage reads an image file and returns its base64 payload and MIME
// type for embedding in a vision API request.
func EncodeImage(imagePath string) (string, string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", "", fmt.Errorf("failed to read image: %w", err)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(imagePath))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	return base64.StdEncoding.EncodeToString(data), mimeType, nil
}
