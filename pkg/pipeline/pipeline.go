// Package pipeline sequences the conversion stages: preprocessing, diagram
// detection, hybrid recognition, LLM correction and document generation.
// Purely sequential glue; all recognition decisions live in the hybrid
// coordinator, all abort decisions live here.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samaR7Q/Handwritten-images-to-word-docx/pkg/correct"
	"github.com/samaR7Q/Handwritten-images-to-word-docx/pkg/diagram"
	"github.com/samaR7Q/Handwritten-images-to-word-docx/pkg/docgen"
	"github.com/samaR7Q/Handwritten-images-to-word-docx/pkg/hybrid"
	"github.com/samaR7Q/Handwritten-images-to-word-docx/pkg/preprocess"
	"github.com/samaR7Q/Handwritten-images-to-word-docx/pkg/providers"
)

// Absolute floor on recognized text before the costly correction and
// document stages run. Stricter than the coordinator's acceptance gate: the
// gate decides "try another provider", this decides "give up on the run".
const minDocumentLength = 20

// ErrInsufficientText is returned when no provider produced enough text to
// justify generating a document, even after the preprocessed retry.
var ErrInsufficientText = errors.New("recognition produced no usable text")

// Recognizer is the coordinator-shaped dependency.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath string) providers.Result
	Cleanup()
}

// TextEnhancer is the optional correction/structuring collaborator.
type TextEnhancer interface {
	CorrectText(ctx context.Context, text string) string
	StructureContent(ctx context.Context, text string) string
}

// DocumentWriter renders structured markdown into a document file.
type DocumentWriter interface {
	CreateDocument(markdown, title string, diagrams []diagram.Region) (string, error)
}

// RegionDetector segments the page into diagram and text regions.
type RegionDetector interface {
	DetectAndExtract(imagePath string) diagram.Detection
}

// Pipeline owns one conversion flow and the resources behind it.
type Pipeline struct {
	settings   Settings
	recognizer Recognizer
	enhancer   TextEnhancer
	detector   RegionDetector
	writer     DocumentWriter
	ownsCoord  bool
}

// New wires a pipeline with the concrete production components. The
// coordinator is owned by the pipeline and released by Cleanup.
func New(settings Settings, recognition hybrid.Config) *Pipeline {
	recognition.RemoteModel = settings.RemoteModel
	recognition.PrimaryModel = settings.PrimaryModel
	recognition.SecondaryModel = settings.SecondaryModel

	det := diagram.New(settings.DiagramDir)
	det.MaskRegions = settings.MaskDiagrams

	return &Pipeline{
		settings:   settings,
		recognizer: hybrid.New(recognition),
		enhancer:   correct.New(settings.CorrectionModel),
		detector:   det,
		writer:     docgen.NewGenerator(settings.OutputDir),
		ownsCoord:  true,
	}
}

// NewWithRecognizer wires a pipeline around an externally-owned coordinator,
// typically one held in a cross-request cache. Cleanup then leaves the
// recognizer alone.
func NewWithRecognizer(settings Settings, recognizer Recognizer) *Pipeline {
	det := diagram.New(settings.DiagramDir)
	det.MaskRegions = settings.MaskDiagrams

	return &Pipeline{
		settings:   settings,
		recognizer: recognizer,
		enhancer:   correct.New(settings.CorrectionModel),
		detector:   det,
		writer:     docgen.NewGenerator(settings.OutputDir),
	}
}

// ProcessImage runs the full conversion and returns the path of the written
// document. No document is produced when recognition stays below the
// absolute text floor.
func (p *Pipeline) ProcessImage(ctx context.Context, imagePath, outputName string) (string, error) {
	if outputName == "" {
		outputName = "converted_notes"
	}

	slog.Info("Processing image", "path", imagePath, "output", outputName)

	preprocessedPath, err := preprocess.Preprocess(imagePath, p.settings.TempDir)
	if err != nil {
		return "", fmt.Errorf("preprocessing failed: %w", err)
	}

	// The detector gates which image variant recognition consumes.
	detection := diagram.Detection{TextOnlyImagePath: imagePath, OriginalImagePath: imagePath}
	if p.settings.DetectDiagrams {
		detection = p.detector.DetectAndExtract(imagePath)
	}

	result := p.recognizer.Recognize(ctx, detection.TextOnlyImagePath)

	// Which image variant to retry with is a pipeline concern; which
	// provider to use stays inside the coordinator.
	if !hybrid.Accepted(result) {
		slog.Info("Retrying recognition with preprocessed image")
		retry := p.recognizer.Recognize(ctx, preprocessedPath)
		if hybrid.Accepted(retry) || len(retry.Text) > len(result.Text) {
			result = retry
		}
	}

	slog.Info("Recognition finished", "method", result.Method,
		"confidence", result.Confidence, "chars", len(result.Text))

	if len(result.Text) < minDocumentLength {
		if result.Err != nil {
			return "", fmt.Errorf("%w: %s", ErrInsufficientText, result.Err)
		}
		return "", fmt.Errorf("%w: got %d characters", ErrInsufficientText, len(result.Text))
	}

	text := result.Text
	if p.settings.UseLLMCorrection {
		text = p.enhancer.CorrectText(ctx, text)
		text = p.enhancer.StructureContent(ctx, text)
	}

	outputPath, err := p.writer.CreateDocument(text, outputName, detection.Regions)
	if err != nil {
		return "", fmt.Errorf("document generation failed: %w", err)
	}

	slog.Info("Document written", "path", outputPath, "method", result.Method)
	return outputPath, nil
}

// Cleanup releases the recognition resources the pipeline owns. Idempotent.
func (p *Pipeline) Cleanup() {
	if p.ownsCoord {
		p.recognizer.Cleanup()
	}
}
