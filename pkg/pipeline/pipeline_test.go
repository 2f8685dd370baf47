package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samaR7Q/Handwritten-images-to-word-docx/pkg/diagram"
	"github.com/samaR7Q/Handwritten-images-to-word-docx/pkg/providers"
)

type fakeRecognizer struct {
	results []providers.Result
	calls   []string
	cleaned int
}

func (f *fakeRecognizer) Recognize(ctx context.Context, imagePath string) providers.Result {
	f.calls = append(f.calls, imagePath)
	i := len(f.calls) - 1
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	return f.results[i]
}

func (f *fakeRecognizer) Cleanup() { f.cleaned++ }

type fakeEnhancer struct {
	corrected  string
	structured string
}

func (f *fakeEnhancer) CorrectText(ctx context.Context, text string) string {
	if f.corrected == "" {
		return text
	}
	return f.corrected
}

func (f *fakeEnhancer) StructureContent(ctx context.Context, text string) string {
	if f.structured == "" {
		return text
	}
	return f.structured
}

type fakeWriter struct {
	markdown string
	title    string
	diagrams []diagram.Region
	path     string
	err      error
}

func (f *fakeWriter) CreateDocument(markdown, title string, diagrams []diagram.Region) (string, error) {
	f.markdown = markdown
	f.title = title
	f.diagrams = diagrams
	return f.path, f.err
}

type fakeDetector struct {
	detection diagram.Detection
	calls     int
}

func (f *fakeDetector) DetectAndExtract(imagePath string) diagram.Detection {
	f.calls++
	if f.detection.TextOnlyImagePath == "" {
		f.detection.TextOnlyImagePath = imagePath
		f.detection.OriginalImagePath = imagePath
	}
	return f.detection
}

func writePageImage(t *testing.T) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 40, 40))
	for i := range img.Pix {
		img.Pix[i] = 220
	}
	img.SetGray(20, 20, color.Gray{Y: 10})

	path := filepath.Join(t.TempDir(), "page.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func testPipeline(t *testing.T, rec *fakeRecognizer, det *fakeDetector, w *fakeWriter, settings Settings) *Pipeline {
	t.Helper()
	settings.TempDir = t.TempDir()
	if w.path == "" && w.err == nil {
		w.path = filepath.Join(settings.TempDir, "out.docx")
	}
	return &Pipeline{
		settings:   settings,
		recognizer: rec,
		enhancer:   &fakeEnhancer{},
		detector:   det,
		writer:     w,
	}
}

func goodRecognition() providers.Result {
	return providers.Result{
		Text:       strings.Repeat("recognized line of handwriting ", 3),
		Confidence: 0.9,
		Method:     "groq_vision",
	}
}

func TestProcessImage(t *testing.T) {
	rec := &fakeRecognizer{results: []providers.Result{goodRecognition()}}
	det := &fakeDetector{}
	w := &fakeWriter{}
	p := testPipeline(t, rec, det, w, Settings{DetectDiagrams: true})

	path, err := p.ProcessImage(context.Background(), writePageImage(t), "my notes")
	if err != nil {
		t.Fatal(err)
	}
	if path != w.path {
		t.Errorf("Expected writer path, got %s", path)
	}
	if w.title != "my notes" {
		t.Errorf("Expected title passed through, got %q", w.title)
	}
	if det.calls != 1 {
		t.Errorf("Expected one detection pass, got %d", det.calls)
	}
	if len(rec.calls) != 1 {
		t.Errorf("Accepted first result needs no retry, got %d calls", len(rec.calls))
	}
	if !strings.Contains(w.markdown, "recognized line") {
		t.Errorf("Recognized text must reach the writer, got %q", w.markdown)
	}
}

func TestProcessImage_DefaultOutputName(t *testing.T) {
	rec := &fakeRecognizer{results: []providers.Result{goodRecognition()}}
	w := &fakeWriter{}
	p := testPipeline(t, rec, &fakeDetector{}, w, Settings{})

	if _, err := p.ProcessImage(context.Background(), writePageImage(t), ""); err != nil {
		t.Fatal(err)
	}
	if w.title != "converted_notes" {
		t.Errorf("Expected default output name, got %q", w.title)
	}
}

func TestProcessImage_DetectionDisabled(t *testing.T) {
	rec := &fakeRecognizer{results: []providers.Result{goodRecognition()}}
	det := &fakeDetector{}
	p := testPipeline(t, rec, det, &fakeWriter{}, Settings{})

	if _, err := p.ProcessImage(context.Background(), writePageImage(t), "n"); err != nil {
		t.Fatal(err)
	}
	if det.calls != 0 {
		t.Error("Detection must not run when disabled")
	}
}

func TestProcessImage_RecognizesTextOnlyVariant(t *testing.T) {
	rec := &fakeRecognizer{results: []providers.Result{goodRecognition()}}
	det := &fakeDetector{detection: diagram.Detection{
		HasDiagrams:       true,
		TextOnlyImagePath: "/derived/text_only.png",
		Regions:           []diagram.Region{{ID: 0, Path: "/crops/diagram_0.png"}},
	}}
	w := &fakeWriter{}
	p := testPipeline(t, rec, det, w, Settings{DetectDiagrams: true})

	if _, err := p.ProcessImage(context.Background(), writePageImage(t), "n"); err != nil {
		t.Fatal(err)
	}
	if rec.calls[0] != "/derived/text_only.png" {
		t.Errorf("Recognition must consume the text-only variant, got %s", rec.calls[0])
	}
	if len(w.diagrams) != 1 {
		t.Errorf("Detected regions must reach the writer, got %d", len(w.diagrams))
	}
}

func TestProcessImage_RetriesWithPreprocessed(t *testing.T) {
	weak := providers.Result{Text: "barely anything here", Confidence: 0.05, Method: "tesseract"}
	rec := &fakeRecognizer{results: []providers.Result{weak, goodRecognition()}}
	p := testPipeline(t, rec, &fakeDetector{}, &fakeWriter{}, Settings{})

	if _, err := p.ProcessImage(context.Background(), writePageImage(t), "n"); err != nil {
		t.Fatal(err)
	}
	if len(rec.calls) != 2 {
		t.Fatalf("Expected a retry, got %d calls", len(rec.calls))
	}
	if filepath.Base(rec.calls[1]) != "preprocessed.png" {
		t.Errorf("Retry must use the preprocessed image, got %s", rec.calls[1])
	}
}

func TestProcessImage_KeepsFirstResultWhenRetryIsWorse(t *testing.T) {
	belowGate := providers.Result{
		Text:       strings.Repeat("decent but low confidence ", 3),
		Confidence: 0.05,
		Method:     "tesseract",
	}
	worse := providers.Result{Text: "x", Confidence: 0.01, Method: "tesseract"}
	rec := &fakeRecognizer{results: []providers.Result{belowGate, worse}}
	w := &fakeWriter{}
	p := testPipeline(t, rec, &fakeDetector{}, w, Settings{})

	if _, err := p.ProcessImage(context.Background(), writePageImage(t), "n"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(w.markdown, "decent but low confidence") {
		t.Errorf("Longer original result must win over a worse retry, got %q", w.markdown)
	}
}

func TestProcessImage_InsufficientText(t *testing.T) {
	short := providers.Result{Text: "too short", Confidence: 0.9, Method: "tesseract"}
	rec := &fakeRecognizer{results: []providers.Result{short, short}}
	p := testPipeline(t, rec, &fakeDetector{}, &fakeWriter{}, Settings{})

	_, err := p.ProcessImage(context.Background(), writePageImage(t), "n")
	if !errors.Is(err, ErrInsufficientText) {
		t.Errorf("Expected ErrInsufficientText, got %v", err)
	}
}

func TestProcessImage_TextFloor(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		expectDoc  bool
		confidence float64
	}{
		{name: "just below floor", text: strings.Repeat("a", 19), confidence: 0.9},
		{name: "at floor", text: strings.Repeat("a", 20), confidence: 0.9, expectDoc: true},
		{name: "low confidence above floor still documents", text: strings.Repeat("a", 21), confidence: 0.15, expectDoc: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := providers.Result{Text: tt.text, Confidence: tt.confidence, Method: "tesseract"}
			rec := &fakeRecognizer{results: []providers.Result{result, result}}
			w := &fakeWriter{}
			p := testPipeline(t, rec, &fakeDetector{}, w, Settings{})

			_, err := p.ProcessImage(context.Background(), writePageImage(t), "n")
			if tt.expectDoc {
				if err != nil {
					t.Fatalf("Expected a document, got %v", err)
				}
				if w.markdown != tt.text {
					t.Errorf("Expected text to reach the writer, got %q", w.markdown)
				}
			} else if !errors.Is(err, ErrInsufficientText) {
				t.Errorf("Expected ErrInsufficientText, got %v", err)
			}
		})
	}
}

func TestProcessImage_AllProvidersFailed(t *testing.T) {
	failed := providers.Result{Method: providers.MethodAllFailed, Err: errors.New("all recognition methods failed")}
	rec := &fakeRecognizer{results: []providers.Result{failed, failed}}
	p := testPipeline(t, rec, &fakeDetector{}, &fakeWriter{}, Settings{})

	_, err := p.ProcessImage(context.Background(), writePageImage(t), "n")
	if !errors.Is(err, ErrInsufficientText) {
		t.Errorf("Expected ErrInsufficientText, got %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "all recognition methods failed") {
		t.Errorf("Underlying recognition error must be reported, got %v", err)
	}
}

func TestProcessImage_MissingInput(t *testing.T) {
	rec := &fakeRecognizer{results: []providers.Result{goodRecognition()}}
	p := testPipeline(t, rec, &fakeDetector{}, &fakeWriter{}, Settings{})

	if _, err := p.ProcessImage(context.Background(), "/nonexistent/page.png", "n"); err == nil {
		t.Error("Expected an error for an unreadable input image")
	}
}

func TestProcessImage_Correction(t *testing.T) {
	rec := &fakeRecognizer{results: []providers.Result{goodRecognition()}}
	w := &fakeWriter{}
	p := testPipeline(t, rec, &fakeDetector{}, w, Settings{UseLLMCorrection: true})
	p.enhancer = &fakeEnhancer{corrected: strings.Repeat("corrected ", 5), structured: "# Structured\n\ncorrected"}

	if _, err := p.ProcessImage(context.Background(), writePageImage(t), "n"); err != nil {
		t.Fatal(err)
	}
	if w.markdown != "# Structured\n\ncorrected" {
		t.Errorf("Structured text must reach the writer, got %q", w.markdown)
	}
}

func TestCleanup_OwnedCoordinatorOnly(t *testing.T) {
	rec := &fakeRecognizer{results: []providers.Result{goodRecognition()}}

	borrowed := NewWithRecognizer(DefaultSettings(), rec)
	borrowed.Cleanup()
	if rec.cleaned != 0 {
		t.Error("A borrowed recognizer must survive pipeline cleanup")
	}

	owned := testPipeline(t, rec, &fakeDetector{}, &fakeWriter{}, Settings{})
	owned.ownsCoord = true
	owned.Cleanup()
	if rec.cleaned != 1 {
		t.Errorf("An owned recognizer must be cleaned up, got %d", rec.cleaned)
	}
}
