package preprocess

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writeTestImage(t *testing.T, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.png")
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

func decodePNG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	return img
}

// notesPage is a light page with a dark scribble band.
func notesPage(w, h int) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(230)
			if y > h/3 && y < h/3+4 && x > 10 && x < w-10 {
				v = 20
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func TestPreprocess(t *testing.T) {
	inputPath := writeTestImage(t, notesPage(200, 150))
	tempDir := t.TempDir()

	outputPath, err := Preprocess(inputPath, tempDir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(outputPath) != tempDir {
		t.Errorf("Output written outside temp dir: %s", outputPath)
	}

	out := decodePNG(t, outputPath)
	bounds := out.Bounds()
	if bounds.Dx() != 200 || bounds.Dy() != 150 {
		t.Errorf("Small image must keep its size, got %dx%d", bounds.Dx(), bounds.Dy())
	}

	// Binarized output carries only black and white.
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, _, _, _ := out.At(x, y).RGBA()
			if v := uint8(r >> 8); v != 0 && v != 255 {
				t.Fatalf("Non-binary pixel %d at (%d,%d)", v, x, y)
			}
		}
	}
}

func TestPreprocess_ResizesOversizedImage(t *testing.T) {
	inputPath := writeTestImage(t, notesPage(3000, 1500))

	outputPath, err := Preprocess(inputPath, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	bounds := decodePNG(t, outputPath).Bounds()
	if bounds.Dx() != 2000 {
		t.Errorf("Expected longest side scaled to 2000, got %d", bounds.Dx())
	}
	if bounds.Dy() != 1000 {
		t.Errorf("Expected aspect preserved at 1000, got %d", bounds.Dy())
	}
}

func TestPreprocess_InvertsDarkPages(t *testing.T) {
	// Dark page with light writing: chalkboard style.
	img := image.NewGray(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			v := uint8(25)
			if y == 50 && x > 10 && x < 90 {
				v = 240
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}

	outputPath, err := Preprocess(writeTestImage(t, img), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	out := decodePNG(t, outputPath)
	var sum, n int
	bounds := out.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, _, _, _ := out.At(x, y).RGBA()
			sum += int(r >> 8)
			n++
		}
	}
	if sum/n < 127 {
		t.Error("Dark pages must come out light after inversion")
	}
}

func TestPreprocess_MissingFile(t *testing.T) {
	if _, err := Preprocess(filepath.Join(t.TempDir(), "missing.png"), t.TempDir()); err == nil {
		t.Error("Expected an error for a missing input file")
	}
}

func TestPreprocess_NotAnImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("just text"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Preprocess(path, t.TempDir()); err == nil {
		t.Error("Expected an error for a non-image file")
	}
}
