// Package tesseract implements the legacy bounding-box recognition backend.
// It is the last resort in the fallback chain: markedly worse than the
// vision models on cursive handwriting, but fully local, dependable, and
// the only backend that reports a measured per-word confidence.
package tesseract

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/samaR7Q/Handwritten-images-to-word-docx/pkg/providers"
)

// Method tags results produced by this backend.
const Method = "tesseract"

// Vertical distance between word boxes that still counts as the same line.
const lineThreshold = 30

// Provider wraps a Tesseract client. The client holds native resources and
// must be closed via Release.
type Provider struct {
	client   *gosseract.Client
	released bool
}

// New constructs the legacy provider.
func New() (*Provider, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage("eng"); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to configure tesseract: %w", err)
	}
	return &Provider{client: client}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "tesseract"
}

// Recognize runs word-level OCR and assembles the boxes into lines, top to
// bottom. Confidence is the arithmetic mean of per-word confidences: every
// detected word counts equally, regardless of its area.
func (p *Provider) Recognize(ctx context.Context, imagePath string) providers.Result {
	if p.released {
		return providers.Failure(Method, fmt.Errorf("tesseract client already released"))
	}
	if err := ctx.Err(); err != nil {
		return providers.Failure(Method, err)
	}

	if err := p.client.SetImage(imagePath); err != nil {
		return providers.Failure(Method, fmt.Errorf("failed to set image: %w", err))
	}

	boxes, err := p.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return providers.Failure(Method, fmt.Errorf("tesseract recognition failed: %w", err))
	}
	if len(boxes) == 0 {
		return providers.Failure(Method, fmt.Errorf("no text detected"))
	}

	text, confidence := assemble(boxes)
	if strings.TrimSpace(text) == "" {
		return providers.Failure(Method, fmt.Errorf("no text detected"))
	}

	return providers.Result{
		Text:       text,
		Confidence: confidence,
		Method:     Method,
	}
}

func assemble(boxes []gosseract.BoundingBox) (string, float64) {
	sorted := make([]gosseract.BoundingBox, len(boxes))
	copy(sorted, boxes)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Box.Min.Y != sorted[j].Box.Min.Y {
			return sorted[i].Box.Min.Y < sorted[j].Box.Min.Y
		}
		return sorted[i].Box.Min.X < sorted[j].Box.Min.X
	})

	var sb strings.Builder
	var confidenceSum float64
	currentY := -1

	for _, box := range sorted {
		word := strings.TrimSpace(box.Word)
		confidenceSum += box.Confidence
		if word == "" {
			continue
		}

		y := box.Box.Min.Y
		switch {
		case currentY == -1:
			currentY = y
		case abs(y-currentY) > lineThreshold:
			sb.WriteByte('\n')
			currentY = y
		default:
			sb.WriteByte(' ')
		}
		sb.WriteString(word)
	}

	// gosseract reports confidence on a 0-100 scale.
	mean := confidenceSum / float64(len(sorted)) / 100.0
	return sb.String(), mean
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Release closes the underlying client. Safe to call more than once.
func (p *Provider) Release() error {
	if p.released {
		return nil
	}
	p.released = true
	return p.client.Close()
}
