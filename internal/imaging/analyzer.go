// Package imaging implements byte-level image quality analysis: blur
// classification via Laplacian edge variance and dominant-color extraction
// via channel quantization.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"sort"

	// Register the stdlib codecs plus webp for image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/brandloom/brandkit-crawler/internal/crawler"
)

// Options holds the analyzer's tuning knobs. The blur threshold and variance
// scale are empirical, not physical constants; treat them as configuration.
type Options struct {
	// BlurThreshold: scores below this classify as blurry.
	BlurThreshold float64
	// VarianceScale divides the Laplacian variance before clamping to [0,100].
	VarianceScale float64
	// MaxEdge bounds the grayscale working image for blur detection.
	MaxEdge int
	// PaletteCanvas is the square canvas edge used for color sampling.
	PaletteCanvas int
	// QuantStep is the per-channel quantization step.
	QuantStep int
	// AnalyzeColors is how many dominant colors Analyze requests.
	AnalyzeColors int
}

// DefaultOptions returns the tuned defaults.
func DefaultOptions() Options {
	return Options{
		BlurThreshold: 15,
		VarianceScale: 20,
		MaxEdge:       200,
		PaletteCanvas: 100,
		QuantStep:     32,
		AnalyzeColors: 5,
	}
}

// Quality is the blur classification for one image.
type Quality struct {
	IsBlurry  bool    `json:"is_blurry"`
	BlurScore float64 `json:"blur_score"`
}

// Analysis bundles everything Analyze computes for one image.
type Analysis struct {
	Quality Quality
	Colors  []crawler.ColorInfo
	Width   int
	Height  int
}

// Analyzer computes blur scores and dominant colors from raw image bytes.
// It is stateless and safe for concurrent use.
type Analyzer struct {
	opts   Options
	logger *zap.Logger
}

// NewAnalyzer builds an Analyzer, filling zero option fields with defaults.
func NewAnalyzer(opts Options, logger *zap.Logger) *Analyzer {
	def := DefaultOptions()
	if opts.BlurThreshold <= 0 {
		opts.BlurThreshold = def.BlurThreshold
	}
	if opts.VarianceScale <= 0 {
		opts.VarianceScale = def.VarianceScale
	}
	if opts.MaxEdge <= 0 {
		opts.MaxEdge = def.MaxEdge
	}
	if opts.PaletteCanvas <= 0 {
		opts.PaletteCanvas = def.PaletteCanvas
	}
	if opts.QuantStep <= 0 {
		opts.QuantStep = def.QuantStep
	}
	if opts.AnalyzeColors <= 0 {
		opts.AnalyzeColors = def.AnalyzeColors
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{opts: opts, logger: logger}
}

// neutralQuality is the fallback when analysis fails: never classify an
// undecodable image as blurry, and report a mid-range score.
func neutralQuality() Quality {
	return Quality{IsBlurry: false, BlurScore: 50}
}

// DetectBlur classifies sharpness from the variance of the 4-neighbor
// Laplacian over a bounded grayscale rendition. Higher variance means more
// high-frequency edge content, meaning sharper. A processing failure yields
// the neutral default rather than an error; image analysis must never abort
// the surrounding pipeline.
func (a *Analyzer) DetectBlur(data []byte) Quality {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		a.logger.Debug("blur detection decode failed", zap.Error(err))
		return neutralQuality()
	}
	return a.detectBlurImage(img)
}

func (a *Analyzer) detectBlurImage(img image.Image) Quality {
	gray := a.grayscale(img)
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 3 || h < 3 {
		return neutralQuality()
	}

	var sum, sumSq float64
	n := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			center := int(gray.GrayAt(x, y).Y)
			lap := int(gray.GrayAt(x, y-1).Y) +
				int(gray.GrayAt(x, y+1).Y) +
				int(gray.GrayAt(x-1, y).Y) +
				int(gray.GrayAt(x+1, y).Y) -
				4*center
			f := float64(lap)
			sum += f
			sumSq += f * f
			n++
		}
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean

	score := variance / a.opts.VarianceScale
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return Quality{IsBlurry: score < a.opts.BlurThreshold, BlurScore: score}
}

// grayscale converts and, when needed, downsamples the source to fit within
// MaxEdge on both axes, preserving aspect ratio.
func (a *Analyzer) grayscale(img image.Image) *image.Gray {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	max := a.opts.MaxEdge
	if w > max || h > max {
		scale := math.Min(float64(max)/float64(w), float64(max)/float64(h))
		w = maxInt(1, int(math.Round(float64(w)*scale)))
		h = maxInt(1, int(math.Round(float64(h)*scale)))
	}
	gray := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(gray, gray.Bounds(), img, bounds, draw.Src, nil)
	return gray
}

// ExtractDominantColors returns up to k colors ranked by pixel frequency
// after quantizing each channel independently to QuantStep. This is
// frequency counting over at most (256/step)^3 buckets, not perceptual
// clustering; it is cheap and deterministic at the cost of occasionally
// splitting one visual color across adjacent buckets.
func (a *Analyzer) ExtractDominantColors(data []byte, k int) ([]crawler.ColorInfo, error) {
	if k <= 0 {
		return nil, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return a.dominantColors(img, k), nil
}

func (a *Analyzer) dominantColors(img image.Image, k int) []crawler.ColorInfo {
	canvas := a.sampleCanvas(img)
	step := a.opts.QuantStep

	counts := make(map[[3]int]int)
	bounds := canvas.Bounds()
	total := bounds.Dx() * bounds.Dy()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := canvas.At(x, y).RGBA()
			key := [3]int{
				quantize(int(r>>8), step),
				quantize(int(g>>8), step),
				quantize(int(b>>8), step),
			}
			counts[key]++
		}
	}

	buckets := make([][3]int, 0, len(counts))
	for key := range counts {
		buckets = append(buckets, key)
	}
	sort.Slice(buckets, func(i, j int) bool {
		ci, cj := counts[buckets[i]], counts[buckets[j]]
		if ci != cj {
			return ci > cj
		}
		return hexOf(buckets[i]) < hexOf(buckets[j])
	})
	if len(buckets) > k {
		buckets = buckets[:k]
	}

	colors := make([]crawler.ColorInfo, 0, len(buckets))
	for _, key := range buckets {
		colors = append(colors, crawler.ColorInfo{
			Hex:        hexOf(key),
			RGB:        key,
			Percentage: int(math.Round(float64(counts[key]) / float64(total) * 100)),
		})
	}
	return colors
}

// sampleCanvas scales a centered covering crop onto a fixed square RGBA
// canvas so frequency counts are comparable across image sizes.
func (a *Analyzer) sampleCanvas(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	side := minInt(bounds.Dx(), bounds.Dy())
	x0 := bounds.Min.X + (bounds.Dx()-side)/2
	y0 := bounds.Min.Y + (bounds.Dy()-side)/2
	crop := image.Rect(x0, y0, x0+side, y0+side)

	edge := a.opts.PaletteCanvas
	canvas := image.NewRGBA(image.Rect(0, 0, edge, edge))
	draw.ApproxBiLinear.Scale(canvas, canvas.Bounds(), img, crop, draw.Src, nil)
	return canvas
}

// Analyze decodes once and computes quality, colors, and dimensions. On a
// decode failure it returns the neutral quality and no colors.
func (a *Analyzer) Analyze(data []byte) Analysis {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		a.logger.Debug("image analysis decode failed", zap.Error(err))
		return Analysis{Quality: neutralQuality()}
	}
	bounds := img.Bounds()
	return Analysis{
		Quality: a.detectBlurImage(img),
		Colors:  a.dominantColors(img, a.opts.AnalyzeColors),
		Width:   bounds.Dx(),
		Height:  bounds.Dy(),
	}
}

func quantize(v, step int) int {
	q := ((v + step/2) / step) * step
	if q > 255 {
		q = 255
	}
	return q
}

func hexOf(rgb [3]int) string {
	return fmt.Sprintf("#%02x%02x%02x", rgb[0], rgb[1], rgb[2])
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
