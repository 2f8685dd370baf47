package diagram

import (
	"image"
	"image/color"
	"math"
	"sort"
)

func gcolor(v uint8) color.Gray { return color.Gray{Y: v} }

// grayscale converts any decoded image to 8-bit gray.
func grayscale(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			// Rec. 601 luma.
			v := (299*r + 587*g + 114*b) / 1000
			gray.SetGray(x, y, gcolor(uint8(v >> 8)))
		}
	}
	return gray
}

// gaussianBlur applies a 5x5 binomial kernel, the classical pre-smoothing
// step before edge detection.
func gaussianBlur(src *image.Gray) *image.Gray {
	kernel := [5]int{1, 4, 6, 4, 1}
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	tmp := image.NewGray(bounds)
	dst := image.NewGray(bounds)

	// Separable: horizontal pass then vertical pass, each normalized by 16.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0
			for k := -2; k <= 2; k++ {
				xx := clamp(x+k, 0, w-1)
				sum += int(src.GrayAt(bounds.Min.X+xx, bounds.Min.Y+y).Y) * kernel[k+2]
			}
			tmp.SetGray(bounds.Min.X+x, bounds.Min.Y+y, gcolor(uint8(sum/16)))
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0
			for k := -2; k <= 2; k++ {
				yy := clamp(y+k, 0, h-1)
				sum += int(tmp.GrayAt(bounds.Min.X+x, bounds.Min.Y+yy).Y) * kernel[k+2]
			}
			dst.SetGray(bounds.Min.X+x, bounds.Min.Y+y, gcolor(uint8(sum/16)))
		}
	}
	return dst
}

// edgeMap runs Sobel gradient detection and thresholds the magnitude into a
// binary map (255 = edge).
func edgeMap(src *image.Gray, threshold int) *image.Gray {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))

	at := func(x, y int) int {
		return int(src.GrayAt(bounds.Min.X+clamp(x, 0, w-1), bounds.Min.Y+clamp(y, 0, h-1)).Y)
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx := -at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1) +
				at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			if gx*gx+gy*gy > threshold*threshold {
				dst.SetGray(x, y, gcolor(255))
			}
		}
	}
	return dst
}

// dilate grows edge pixels with a 3x3 structuring element, bridging small
// gaps between strokes.
func dilate(src *image.Gray, iterations int) *image.Gray {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	cur := src
	for it := 0; it < iterations; it++ {
		next := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				hit := false
				for dy := -1; dy <= 1 && !hit; dy++ {
					for dx := -1; dx <= 1 && !hit; dx++ {
						xx, yy := x+dx, y+dy
						if xx >= 0 && xx < w && yy >= 0 && yy < h &&
							cur.GrayAt(bounds.Min.X+xx, bounds.Min.Y+yy).Y > 0 {
							hit = true
						}
					}
				}
				if hit {
					next.SetGray(x, y, gcolor(255))
				}
			}
		}
		cur = next
		bounds = cur.Bounds()
	}
	return cur
}

// component is one connected group of edge pixels with its bounding box.
type component struct {
	minX, minY, maxX, maxY int
	pixels                 int
}

func (c component) width() int  { return c.maxX - c.minX + 1 }
func (c component) height() int { return c.maxY - c.minY + 1 }

// connectedComponents labels 8-connected edge pixels. Bounding boxes of the
// external components stand in for external contours. The fill uses an
// explicit stack so deep regions cannot blow the goroutine stack.
func connectedComponents(bin *image.Gray) []component {
	bounds := bin.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	visited := make([]bool, w*h)
	isSet := func(x, y int) bool {
		return bin.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y > 0
	}

	var components []component
	var stack []image.Point

	for sy := 0; sy < h; sy++ {
		for sx := 0; sx < w; sx++ {
			if visited[sy*w+sx] || !isSet(sx, sy) {
				continue
			}

			comp := component{minX: sx, minY: sy, maxX: sx, maxY: sy}
			stack = append(stack[:0], image.Pt(sx, sy))
			visited[sy*w+sx] = true

			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				comp.pixels++
				comp.minX = min(comp.minX, p.X)
				comp.maxX = max(comp.maxX, p.X)
				comp.minY = min(comp.minY, p.Y)
				comp.maxY = max(comp.maxY, p.Y)

				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						xx, yy := p.X+dx, p.Y+dy
						if xx < 0 || xx >= w || yy < 0 || yy >= h {
							continue
						}
						if !visited[yy*w+xx] && isSet(xx, yy) {
							visited[yy*w+xx] = true
							stack = append(stack, image.Pt(xx, yy))
						}
					}
				}
			}

			components = append(components, comp)
		}
	}
	return components
}

// houghPeak is one dominant line in Hough space.
type houghPeak struct {
	theta, rho, votes int
}

// lineSegments counts line segments in a binary edge map using a Hough
// transform followed by a walk along each dominant line. Peaks closer than
// a small window in (theta, rho) are merged so a single stroke is not
// counted several times.
func lineSegments(bin *image.Gray, voteThreshold, minLineLength, maxGap int) int {
	bounds := bin.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return 0
	}

	diag := int(math.Hypot(float64(w), float64(h))) + 1
	nTheta := 180
	sinT := make([]float64, nTheta)
	cosT := make([]float64, nTheta)
	for t := 0; t < nTheta; t++ {
		rad := float64(t) * math.Pi / 180
		sinT[t] = math.Sin(rad)
		cosT[t] = math.Cos(rad)
	}

	acc := make([][]int16, nTheta)
	for t := range acc {
		acc[t] = make([]int16, 2*diag+1)
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if bin.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y == 0 {
				continue
			}
			for t := 0; t < nTheta; t++ {
				rho := int(math.Round(float64(x)*cosT[t]+float64(y)*sinT[t])) + diag
				acc[t][rho]++
			}
		}
	}

	var peaks []houghPeak
	for t := 0; t < nTheta; t++ {
		for r, votes := range acc[t] {
			if int(votes) >= voteThreshold {
				peaks = append(peaks, houghPeak{theta: t, rho: r - diag, votes: int(votes)})
			}
		}
	}
	sort.Slice(peaks, func(i, j int) bool { return peaks[i].votes > peaks[j].votes })

	segments := 0
	var taken []houghPeak
	for _, p := range peaks {
		suppressed := false
		for _, q := range taken {
			dTheta := abs(p.theta - q.theta)
			if dTheta > 90 {
				dTheta = 180 - dTheta
			}
			if dTheta <= 2 && abs(p.rho-q.rho) <= 4 {
				suppressed = true
				break
			}
		}
		if suppressed {
			continue
		}
		taken = append(taken, p)
		segments += segmentsOnLine(bin, p, sinT, cosT, minLineLength, maxGap)
	}
	return segments
}

// segmentsOnLine walks the raster line for one Hough peak and counts edge
// runs at least minLineLength long, tolerating gaps up to maxGap.
func segmentsOnLine(bin *image.Gray, p houghPeak, sinT, cosT []float64, minLineLength, maxGap int) int {
	bounds := bin.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	sin, cos := sinT[p.theta], cosT[p.theta]

	hitAt := func(x, y int) bool {
		// One pixel of tolerance perpendicular to the line.
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				xx, yy := x+dx, y+dy
				if xx >= 0 && xx < w && yy >= 0 && yy < h &&
					bin.GrayAt(bounds.Min.X+xx, bounds.Min.Y+yy).Y > 0 {
					return true
				}
			}
		}
		return false
	}

	segments := 0
	run, gap := 0, 0
	flush := func() {
		if run >= minLineLength {
			segments++
		}
		run, gap = 0, 0
	}

	step := func(x, y int) {
		inside := x >= 0 && x < w && y >= 0 && y < h
		if inside && hitAt(x, y) {
			run += gap + 1
			gap = 0
			return
		}
		if run > 0 {
			gap++
			if gap > maxGap {
				flush()
			}
		}
	}

	if math.Abs(sin) >= math.Abs(cos) {
		// Mostly horizontal line: iterate x, derive y.
		for x := 0; x < w; x++ {
			y := int(math.Round((float64(p.rho) - float64(x)*cos) / sin))
			step(x, y)
		}
	} else {
		for y := 0; y < h; y++ {
			x := int(math.Round((float64(p.rho) - float64(y)*sin) / cos))
			step(x, y)
		}
	}
	flush()
	return segments
}

// closedShapeCount approximates "closed contours above a minimum area": an
// edge component whose bounding box is big enough and whose pixel count is
// close to the box perimeter reads as a loop rather than an open stroke.
func closedShapeCount(bin *image.Gray, minArea int) int {
	count := 0
	for _, c := range connectedComponents(bin) {
		boxArea := c.width() * c.height()
		perimeter := 2 * (c.width() + c.height())
		if boxArea > minArea && float64(c.pixels) >= 0.8*float64(perimeter) && c.width() > 3 && c.height() > 3 {
			count++
		}
	}
	return count
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
