package brandkit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brandloom/brandkit-crawler/internal/crawler"
	"github.com/brandloom/brandkit-crawler/internal/imaging"
)

type fakePage struct {
	evalResult map[string]any
	evalErr    error
	screenshot []byte
	shotErr    error
}

func (f *fakePage) Evaluate(_ context.Context, _ string, out any) error {
	if f.evalErr != nil {
		return f.evalErr
	}
	data, err := json.Marshal(f.evalResult)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (f *fakePage) Screenshot(context.Context) ([]byte, error) {
	return f.screenshot, f.shotErr
}

func (f *fakePage) HTML(context.Context) (string, error) { return "", nil }
func (f *fakePage) URL() string                          { return "https://example.com/" }

func newExtractor() *Extractor {
	return New(imaging.NewAnalyzer(imaging.Options{}, nil), Options{}, nil)
}

func font(family, weight, tag string) map[string]any {
	return map[string]any{"family": family, "weight": weight, "tag": tag}
}

func TestExtractBrandKit(t *testing.T) {
	t.Parallel()
	extractor := newExtractor()
	ctx := context.Background()

	t.Run("aggregates families with counts and weights", func(t *testing.T) {
		page := &fakePage{evalResult: map[string]any{
			"fonts": []map[string]any{
				font(`"Inter", sans-serif`, "400", "P"),
				font("Inter, sans-serif", "700", "P"),
				font("Georgia, serif", "400", "BLOCKQUOTE"),
			},
		}}
		data, err := extractor.ExtractBrandKit(ctx, page)
		require.NoError(t, err)
		require.Len(t, data.Fonts, 2)

		require.Equal(t, "Inter", data.Fonts[0].Family)
		require.Equal(t, 2, data.Fonts[0].Count)
		require.ElementsMatch(t, []string{"400", "700"}, data.Fonts[0].Weights)
		require.Equal(t, crawler.FontUsageBody, data.Fonts[0].Usage)

		require.Equal(t, "Georgia", data.Fonts[1].Family)
		require.Equal(t, 1, data.Fonts[1].Count)
	})

	t.Run("heading usage sticks through later body sightings", func(t *testing.T) {
		page := &fakePage{evalResult: map[string]any{
			"fonts": []map[string]any{
				font("Inter", "700", "H1"),
				font("Inter", "400", "P"),
				font("Inter", "400", "DIV"),
			},
		}}
		data, err := extractor.ExtractBrandKit(ctx, page)
		require.NoError(t, err)
		require.Len(t, data.Fonts, 1)
		require.Equal(t, crawler.FontUsageHeading, data.Fonts[0].Usage)
		require.Equal(t, 3, data.Fonts[0].Count)
	})

	t.Run("body upgrades other but never downgrades", func(t *testing.T) {
		page := &fakePage{evalResult: map[string]any{
			"fonts": []map[string]any{
				font("Mono", "400", "CODE"),
				font("Mono", "400", "SPAN"),
				font("Mono", "400", "FIGCAPTION"),
			},
		}}
		data, err := extractor.ExtractBrandKit(ctx, page)
		require.NoError(t, err)
		require.Len(t, data.Fonts, 1)
		require.Equal(t, crawler.FontUsageBody, data.Fonts[0].Usage)
	})

	t.Run("colors normalize to hex, deduplicate, and cap at twenty", func(t *testing.T) {
		raw := []string{
			"rgb(255, 0, 0)",
			"#FF0000",
			"rgba(0, 0, 255, 0.5)",
			"rgba(0, 0, 0, 0)",
			"#abc",
			"rgb(26, 115, 232)",
		}
		for i := 0; i < 30; i++ {
			raw = append(raw, fmt.Sprintf("rgb(0, %d, 0)", i))
		}
		page := &fakePage{evalResult: map[string]any{"cssColors": raw}}
		data, err := extractor.ExtractBrandKit(ctx, page)
		require.NoError(t, err)
		require.Len(t, data.CSSColors, 20)
		require.Equal(t, "#ff0000", data.CSSColors[0])
		require.Equal(t, "#0000ff", data.CSSColors[1])
		require.Equal(t, "#aabbcc", data.CSSColors[2])
		require.Equal(t, "#1a73e8", data.CSSColors[3])
	})

	t.Run("sampling script reads every resolved color channel", func(t *testing.T) {
		require.Contains(t, kitScript, "cs.color")
		require.Contains(t, kitScript, "cs.backgroundColor")
		require.Contains(t, kitScript, "cs.borderColor")
	})

	t.Run("only color-valued variables survive", func(t *testing.T) {
		page := &fakePage{evalResult: map[string]any{
			"cssVariables": map[string]string{
				"--brand-primary": "#1a73e8",
				"--brand-accent":  "rgb(255, 87, 34)",
				"--spacing":       "16px",
				"--font-stack":    "Inter, sans-serif",
				"--hue":           "hsl(210, 80%, 50%)",
			},
		}}
		data, err := extractor.ExtractBrandKit(ctx, page)
		require.NoError(t, err)
		require.Equal(t, map[string]string{
			"--brand-primary": "#1a73e8",
			"--brand-accent":  "rgb(255, 87, 34)",
			"--hue":           "hsl(210, 80%, 50%)",
		}, data.CSSVariables)
	})

	t.Run("evaluate failure surfaces as an error", func(t *testing.T) {
		page := &fakePage{evalErr: errors.New("tab gone")}
		_, err := extractor.ExtractBrandKit(ctx, page)
		require.Error(t, err)
	})
}

func TestCaptureAndAnalyzeScreenshot(t *testing.T) {
	t.Parallel()
	extractor := newExtractor()
	ctx := context.Background()

	t.Run("returns buffer with extracted palette", func(t *testing.T) {
		img := image.NewRGBA(image.Rect(0, 0, 60, 60))
		for y := 0; y < 60; y++ {
			for x := 0; x < 60; x++ {
				img.SetRGBA(x, y, color.RGBA{R: 255, A: 255})
			}
		}
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, img))

		shot, err := extractor.CaptureAndAnalyzeScreenshot(ctx, &fakePage{screenshot: buf.Bytes()})
		require.NoError(t, err)
		require.Equal(t, buf.Bytes(), shot.Buffer)
		require.NotEmpty(t, shot.Colors)
		require.Equal(t, "#ff0000", shot.Colors[0].Hex)
	})

	t.Run("capture failure surfaces as an error", func(t *testing.T) {
		_, err := extractor.CaptureAndAnalyzeScreenshot(ctx, &fakePage{shotErr: errors.New("no tab")})
		require.Error(t, err)
	})

	t.Run("undecodable capture keeps the buffer without colors", func(t *testing.T) {
		shot, err := extractor.CaptureAndAnalyzeScreenshot(ctx, &fakePage{screenshot: []byte("junk")})
		require.NoError(t, err)
		require.Equal(t, []byte("junk"), shot.Buffer)
		require.Empty(t, shot.Colors)
	})
}

func TestMergeColorPalettes(t *testing.T) {
	t.Parallel()
	extractor := newExtractor()

	t.Run("keeps the maximum percentage per color", func(t *testing.T) {
		merged := extractor.MergeColorPalettes([][]crawler.ColorInfo{
			{{Hex: "#ff0000", RGB: [3]int{255, 0, 0}, Percentage: 40}},
			{{Hex: "#ff0000", RGB: [3]int{255, 0, 0}, Percentage: 25}},
			{{Hex: "#00ff00", RGB: [3]int{0, 255, 0}, Percentage: 30}},
		})
		require.Len(t, merged, 2)
		require.Equal(t, "#ff0000", merged[0].Hex)
		require.Equal(t, 40, merged[0].Percentage)
		require.Equal(t, "#00ff00", merged[1].Hex)
		require.Equal(t, 30, merged[1].Percentage)
	})

	t.Run("ties break on hex ascending", func(t *testing.T) {
		merged := extractor.MergeColorPalettes([][]crawler.ColorInfo{
			{{Hex: "#bbbbbb", Percentage: 10}, {Hex: "#aaaaaa", Percentage: 10}},
		})
		require.Equal(t, "#aaaaaa", merged[0].Hex)
		require.Equal(t, "#bbbbbb", merged[1].Hex)
	})

	t.Run("truncates to the palette limit", func(t *testing.T) {
		var palette []crawler.ColorInfo
		for i := 0; i < 15; i++ {
			palette = append(palette, crawler.ColorInfo{
				Hex:        string(rune('a'+i)) + "#000000",
				Percentage: 15 - i,
			})
		}
		merged := extractor.MergeColorPalettes([][]crawler.ColorInfo{palette})
		require.Len(t, merged, 10)
		require.Equal(t, 15, merged[0].Percentage)
	})

	t.Run("empty input yields empty output", func(t *testing.T) {
		require.Empty(t, extractor.MergeColorPalettes(nil))
	})
}
