// Package diagram segments a page image into diagram and text regions using
// classical image-processing heuristics: edge detection, contour analysis
// and a line transform. Detected regions are cropped to disk so the document
// generator can embed them as figures, and a derived text-bearing variant of
// the page gates which image the recognition core consumes.
package diagram

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// Region is one detected diagram sub-rectangle, cropped to its own image.
// Immutable after detection; ownership transfers to document generation.
type Region struct {
	ID      int    `yaml:"id"`
	X       int    `yaml:"x"`
	Y       int    `yaml:"y"`
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
	Path    string `yaml:"path"`
	Area    int    `yaml:"area"`
	CenterY int    `yaml:"center_y"`
}

// Detection is the full result of one detection pass.
type Detection struct {
	HasDiagrams       bool     `yaml:"has_diagrams"`
	Regions           []Region `yaml:"regions"`
	TextOnlyImagePath string   `yaml:"text_only_image"`
	OriginalImagePath string   `yaml:"original_image"`
}

// Tuning constants, page level.
const (
	pageEdgeThreshold = 60
	dilateIterations  = 2
	minAreaFraction   = 0.02
	maxAreaFraction   = 0.50
	minAspectRatio    = 0.3
	maxAspectRatio    = 3.0
)

// Tuning constants, per-candidate classification. Genuine diagrams exhibit
// either axis/ruled lines or multiple enclosed shapes; dense handwritten
// prose shows neither.
const (
	regionEdgeThreshold = 100
	minLineSegments     = 5
	houghVoteThreshold  = 30
	minLineLength       = 20
	maxLineGap          = 5
	minClosedShapes     = 2
	minClosedShapeArea  = 100
)

// Detector finds diagram regions and derives the text-only page variant.
type Detector struct {
	// OutputDir receives the cropped region images.
	OutputDir string
	// TempDir receives the text-only page variant.
	TempDir string
	// MaskRegions blanks detected regions out of the text-only variant.
	// Off by default: the vision backends read dense pages better with the
	// diagrams still in place, so masking is an explicit opt-in.
	MaskRegions bool
}

// New returns a detector writing crops under outputDir.
func New(outputDir string) *Detector {
	return &Detector{
		OutputDir: outputDir,
		TempDir:   filepath.Dir(outputDir),
	}
}

// DetectAndExtract finds diagram regions in the page image, writes each crop
// to disk, and derives the text-bearing variant. Faults are contained: an
// unreadable image yields an empty detection whose text-only path falls back
// to the original, never an error that aborts the pipeline.
func (d *Detector) DetectAndExtract(imagePath string) Detection {
	empty := Detection{
		TextOnlyImagePath: imagePath,
		OriginalImagePath: imagePath,
	}

	img, err := loadImage(imagePath)
	if err != nil {
		slog.Warn("Diagram detection skipped, image unreadable", "path", imagePath, "err", err)
		return empty
	}

	regions := d.findDiagramRegions(img, imagePath)
	if len(regions) == 0 {
		slog.Info("No diagrams detected", "path", imagePath)
		return empty
	}

	slog.Info("Diagrams detected", "path", imagePath, "count", len(regions))

	textOnly := imagePath
	if d.MaskRegions {
		if masked, err := d.writeMaskedImage(img, regions); err != nil {
			slog.Warn("Failed to write masked text-only image, using original", "err", err)
		} else {
			textOnly = masked
		}
	}

	return Detection{
		HasDiagrams:       true,
		Regions:           regions,
		TextOnlyImagePath: textOnly,
		OriginalImagePath: imagePath,
	}
}

func (d *Detector) findDiagramRegions(img image.Image, imagePath string) []Region {
	gray := grayscale(img)
	blurred := gaussianBlur(gray)
	edges := edgeMap(blurred, pageEdgeThreshold)
	dilated := dilate(edges, dilateIterations)

	bounds := img.Bounds()
	pageArea := bounds.Dx() * bounds.Dy()
	minArea := int(float64(pageArea) * minAreaFraction)
	maxArea := int(float64(pageArea) * maxAreaFraction)

	var regions []Region
	for _, comp := range connectedComponents(dilated) {
		w, h := comp.width(), comp.height()
		area := w * h
		if area <= minArea || area >= maxArea || h == 0 {
			continue
		}

		aspect := float64(w) / float64(h)
		if aspect <= minAspectRatio || aspect >= maxAspectRatio {
			continue
		}

		crop := image.Rect(comp.minX, comp.minY, comp.maxX+1, comp.maxY+1).Add(bounds.Min)
		roi := cropGray(gray, crop.Sub(bounds.Min))
		if !isLikelyDiagram(roi) {
			continue
		}

		path, err := d.writeRegionCrop(img, crop, len(regions))
		if err != nil {
			slog.Warn("Failed to write diagram crop", "err", err)
			continue
		}

		regions = append(regions, Region{
			X:       comp.minX,
			Y:       comp.minY,
			Width:   w,
			Height:  h,
			Path:    path,
			Area:    area,
			CenterY: comp.minY + h/2,
		})
	}

	return orderRegions(regions)
}

// orderRegions sorts regions into document order, top to bottom, and gives
// them sequential IDs following that order.
func orderRegions(regions []Region) []Region {
	sort.Slice(regions, func(i, j int) bool { return regions[i].CenterY < regions[j].CenterY })
	for i := range regions {
		regions[i].ID = i
	}
	return regions
}

// isLikelyDiagram re-runs edge detection inside the candidate crop and
// accepts it when it shows ruled lines or multiple enclosed shapes.
func isLikelyDiagram(roi *image.Gray) bool {
	edges := edgeMap(roi, regionEdgeThreshold)

	segments := lineSegments(edges, houghVoteThreshold, minLineLength, maxLineGap)
	if segments >= minLineSegments {
		return true
	}

	return closedShapeCount(edges, minClosedShapeArea) >= minClosedShapes
}

func (d *Detector) writeRegionCrop(img image.Image, crop image.Rectangle, idx int) (string, error) {
	if err := os.MkdirAll(d.OutputDir, 0755); err != nil {
		return "", err
	}

	sub := image.NewRGBA(image.Rect(0, 0, crop.Dx(), crop.Dy()))
	draw.Draw(sub, sub.Bounds(), img, crop.Min, draw.Src)

	path := filepath.Join(d.OutputDir, fmt.Sprintf("diagram_%d.png", idx))
	if err := writePNG(path, sub); err != nil {
		return "", err
	}
	return path, nil
}

func (d *Detector) writeMaskedImage(img image.Image, regions []Region) (string, error) {
	tempDir := d.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return "", err
	}

	bounds := img.Bounds()
	masked := image.NewRGBA(bounds)
	draw.Draw(masked, bounds, img, bounds.Min, draw.Src)

	for _, r := range regions {
		rect := image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height).Add(bounds.Min)
		draw.Draw(masked, rect, image.White, image.Point{}, draw.Src)
	}

	path := filepath.Join(tempDir, "text_only.png")
	if err := writePNG(path, masked); err != nil {
		return "", err
	}
	return path, nil
}

func cropGray(src *image.Gray, rect image.Rectangle) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := 0; y < rect.Dy(); y++ {
		for x := 0; x < rect.Dx(); x++ {
			dst.SetGray(x, y, src.GrayAt(src.Bounds().Min.X+rect.Min.X+x, src.Bounds().Min.Y+rect.Min.Y+y))
		}
	}
	return dst
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
