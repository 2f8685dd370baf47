// Package preprocess normalizes a page image for recognition: bounded
// resize, grayscale, light denoise and adaptive binarization. Stateless per
// call; the vision-language backends prefer the original image, so the
// preprocessed variant is only consumed on retry and by the legacy reader.
package preprocess

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	xdraw "golang.org/x/image/draw"
)

const (
	// Pages larger than this on either axis are scaled down; vision APIs
	// reject oversized payloads and OCR gains nothing past this density.
	maxDimension = 2000

	// Adaptive threshold window and offset, tuned for handwriting on
	// lined or plain paper.
	thresholdBlock = 11
	thresholdC     = 2
)

// Preprocess normalizes the image and writes the result as a PNG under
// tempDir, returning its path. An unreadable source file is a descriptive
// error; any produced path is a valid readable image.
func Preprocess(imagePath, tempDir string) (string, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return "", fmt.Errorf("could not read image %s: %w", imagePath, err)
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return "", fmt.Errorf("could not decode image %s: %w", imagePath, err)
	}

	img = resizeBounded(img)
	gray := toGray(img)
	gray = meanDenoise(gray)
	binary := adaptiveThreshold(gray)

	// Handwriting is expected dark-on-light; invert pages shot against a
	// dark background.
	if meanLevel(binary) < 127 {
		invert(binary)
	}

	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return "", err
	}
	outputPath := filepath.Join(tempDir, "preprocessed.png")

	out, err := os.Create(outputPath)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if err := png.Encode(out, binary); err != nil {
		return "", fmt.Errorf("failed to write preprocessed image: %w", err)
	}

	return outputPath, nil
}

func resizeBounded(img image.Image) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	longest := max(w, h)
	if longest <= maxDimension {
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0, w*maxDimension/longest, h*maxDimension/longest))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)
	return dst
}

func toGray(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			v := (299*r + 587*g + 114*b) / 1000
			gray.SetGray(x-bounds.Min.X, y-bounds.Min.Y, color.Gray{Y: uint8(v >> 8)})
		}
	}
	return gray
}

// meanDenoise is a 3x3 box filter, a light touch that knocks down sensor
// noise without eating thin pen strokes.
func meanDenoise(src *image.Gray) *image.Gray {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dst := image.NewGray(bounds)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum, n := 0, 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					xx, yy := x+dx, y+dy
					if xx < 0 || xx >= w || yy < 0 || yy >= h {
						continue
					}
					sum += int(src.GrayAt(xx, yy).Y)
					n++
				}
			}
			dst.SetGray(x, y, color.Gray{Y: uint8(sum / n)})
		}
	}
	return dst
}

// adaptiveThreshold binarizes against the local mean (integral-image based),
// which copes with uneven lighting far better than a global threshold.
func adaptiveThreshold(src *image.Gray) *image.Gray {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dst := image.NewGray(bounds)

	// Summed-area table with a 1-pixel border of zeros.
	integral := make([]int64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var rowSum int64
		for x := 0; x < w; x++ {
			rowSum += int64(src.GrayAt(x, y).Y)
			integral[(y+1)*(w+1)+x+1] = integral[y*(w+1)+x+1] + rowSum
		}
	}

	half := thresholdBlock / 2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0, y0 := max(0, x-half), max(0, y-half)
			x1, y1 := min(w-1, x+half), min(h-1, y+half)
			count := int64((x1 - x0 + 1) * (y1 - y0 + 1))

			sum := integral[(y1+1)*(w+1)+x1+1] - integral[y0*(w+1)+x1+1] -
				integral[(y1+1)*(w+1)+x0] + integral[y0*(w+1)+x0]

			v := uint8(0)
			if int64(src.GrayAt(x, y).Y)*count > sum-int64(thresholdC)*count {
				v = 255
			}
			dst.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return dst
}

func meanLevel(img *image.Gray) int {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return 0
	}
	var sum int64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum += int64(img.GrayAt(x, y).Y)
		}
	}
	return int(sum / int64(w*h))
}

func invert(img *image.Gray) {
	for i, v := range img.Pix {
		img.Pix[i] = 255 - v
	}
}
