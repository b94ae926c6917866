// Package brandkit extracts site-level branding signals: font families with
// usage classification, CSS custom-property colors, and screenshot color
// palettes merged across the crawl.
package brandkit

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/brandloom/brandkit-crawler/internal/crawler"
	"github.com/brandloom/brandkit-crawler/internal/imaging"
)

// Options tunes the extractor's result caps.
type Options struct {
	// ScreenshotColors is how many palette entries one screenshot yields.
	ScreenshotColors int
	// MaxFonts caps the font list, ranked by observation count.
	MaxFonts int
	// MaxCSSColors caps the distinct CSS color list, first-seen order.
	MaxCSSColors int
	// PaletteLimit caps the merged screenshot palette.
	PaletteLimit int
}

// DefaultOptions returns the tuned defaults.
func DefaultOptions() Options {
	return Options{
		ScreenshotColors: 8,
		MaxFonts:         10,
		MaxCSSColors:     20,
		PaletteLimit:     10,
	}
}

// kitScript samples the page's computed typography and colors plus the :root
// custom properties. The element budget keeps huge DOMs from stalling the
// tab. The result shape must stay in sync with kitEval.
const kitScript = `(() => {
	const fonts = [];
	const cssColors = [];
	const cssVariables = {};
	const selector = 'h1,h2,h3,h4,h5,h6,p,span,div,li,a,td,blockquote,button,label';
	let budget = 2000;
	for (const el of document.querySelectorAll(selector)) {
		if (budget-- <= 0) break;
		const cs = getComputedStyle(el);
		fonts.push({
			family: cs.fontFamily || '',
			weight: cs.fontWeight || '',
			tag: el.tagName,
		});
		if (cs.color) cssColors.push(cs.color);
		for (const value of [cs.backgroundColor, cs.borderColor]) {
			if (value && value !== 'transparent' && value !== 'rgba(0, 0, 0, 0)') {
				cssColors.push(value);
			}
		}
	}
	for (const sheet of document.styleSheets) {
		let rules;
		try { rules = sheet.cssRules; } catch (e) { continue; }
		if (!rules) continue;
		for (const rule of rules) {
			if (rule.selectorText !== ':root' || !rule.style) continue;
			for (const name of rule.style) {
				if (name.startsWith('--')) {
					cssVariables[name] = rule.style.getPropertyValue(name).trim();
				}
			}
		}
	}
	return {fonts: fonts, cssColors: cssColors, cssVariables: cssVariables};
})()`

type fontEval struct {
	Family string `json:"family"`
	Weight string `json:"weight"`
	Tag    string `json:"tag"`
}

// kitEval is the fixed schema for the page-evaluated brand walk.
type kitEval struct {
	Fonts        []fontEval        `json:"fonts"`
	CSSColors    []string          `json:"cssColors"`
	CSSVariables map[string]string `json:"cssVariables"`
}

// colorLiteral matches values that are color expressions rather than sizes,
// URLs, or font stacks. Custom properties failing this filter are dropped.
var colorLiteral = regexp.MustCompile(`^(#[0-9a-fA-F]{3,8}$|rgba?\(|hsla?\(|oklch\()`)

// Extractor implements crawler.BrandKitExtractor.
type Extractor struct {
	analyzer *imaging.Analyzer
	opts     Options
	logger   *zap.Logger
}

// New builds an Extractor, filling zero option fields with defaults.
func New(analyzer *imaging.Analyzer, opts Options, logger *zap.Logger) *Extractor {
	def := DefaultOptions()
	if opts.ScreenshotColors <= 0 {
		opts.ScreenshotColors = def.ScreenshotColors
	}
	if opts.MaxFonts <= 0 {
		opts.MaxFonts = def.MaxFonts
	}
	if opts.MaxCSSColors <= 0 {
		opts.MaxCSSColors = def.MaxCSSColors
	}
	if opts.PaletteLimit <= 0 {
		opts.PaletteLimit = def.PaletteLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{analyzer: analyzer, opts: opts, logger: logger}
}

// ExtractBrandKit runs the typography and color walk on a loaded page and
// aggregates the raw samples into ranked fonts, a capped color list, and the
// color-valued :root variables.
func (e *Extractor) ExtractBrandKit(ctx context.Context, page crawler.Page) (crawler.BrandKitData, error) {
	var raw kitEval
	if err := page.Evaluate(ctx, kitScript, &raw); err != nil {
		return crawler.BrandKitData{}, fmt.Errorf("evaluate brand kit extraction: %w", err)
	}
	return crawler.BrandKitData{
		Fonts:        e.aggregateFonts(raw.Fonts),
		CSSColors:    e.collectColors(raw.CSSColors),
		CSSVariables: filterColorVariables(raw.CSSVariables),
	}, nil
}

// aggregateFonts folds per-element samples into one entry per family. Usage
// upgrades are sticky: once a family is seen on a heading it stays a heading
// font no matter how many body elements use it afterwards.
func (e *Extractor) aggregateFonts(samples []fontEval) []crawler.FontInfo {
	byFamily := make(map[string]*crawler.FontInfo)
	var order []string
	for _, sample := range samples {
		family := primaryFamily(sample.Family)
		if family == "" {
			continue
		}
		info, ok := byFamily[family]
		if !ok {
			info = &crawler.FontInfo{Family: family, Usage: crawler.FontUsageOther}
			byFamily[family] = info
			order = append(order, family)
		}
		info.Count++
		if weight := strings.TrimSpace(sample.Weight); weight != "" && !contains(info.Weights, weight) {
			info.Weights = append(info.Weights, weight)
		}
		if usage := usageForTag(sample.Tag); usageRank(usage) > usageRank(info.Usage) {
			info.Usage = usage
		}
	}

	fonts := make([]crawler.FontInfo, 0, len(order))
	for _, family := range order {
		fonts = append(fonts, *byFamily[family])
	}
	sort.SliceStable(fonts, func(i, j int) bool {
		if fonts[i].Count != fonts[j].Count {
			return fonts[i].Count > fonts[j].Count
		}
		return fonts[i].Family < fonts[j].Family
	})
	if len(fonts) > e.opts.MaxFonts {
		fonts = fonts[:e.opts.MaxFonts]
	}
	return fonts
}

// collectColors normalizes raw CSS color strings to hex and keeps the first
// MaxCSSColors distinct values in first-seen order.
func (e *Extractor) collectColors(raw []string) []string {
	seen := make(map[string]struct{})
	var colors []string
	for _, value := range raw {
		hex, ok := normalizeCSSColor(value)
		if !ok {
			continue
		}
		if _, dup := seen[hex]; dup {
			continue
		}
		seen[hex] = struct{}{}
		colors = append(colors, hex)
		if len(colors) >= e.opts.MaxCSSColors {
			break
		}
	}
	return colors
}

// CaptureAndAnalyzeScreenshot captures the viewport and extracts its dominant
// colors. The buffer is returned alongside the palette so the caller can
// persist it.
func (e *Extractor) CaptureAndAnalyzeScreenshot(ctx context.Context, page crawler.Page) (crawler.Screenshot, error) {
	buf, err := page.Screenshot(ctx)
	if err != nil {
		return crawler.Screenshot{}, fmt.Errorf("capture screenshot: %w", err)
	}
	colors, err := e.analyzer.ExtractDominantColors(buf, e.opts.ScreenshotColors)
	if err != nil {
		e.logger.Warn("screenshot palette extraction failed", zap.Error(err))
		return crawler.Screenshot{Buffer: buf}, nil
	}
	return crawler.Screenshot{Buffer: buf, Colors: colors}, nil
}

// MergeColorPalettes folds palettes keyed by hex, keeping each color's
// maximum observed percentage. Summing would overweight colors that happen to
// appear on many screenshots; the question the palette answers is "how
// prominent does this color get", not "how often does it recur".
func (e *Extractor) MergeColorPalettes(palettes [][]crawler.ColorInfo) []crawler.ColorInfo {
	merged := make(map[string]crawler.ColorInfo)
	for _, palette := range palettes {
		for _, color := range palette {
			current, ok := merged[color.Hex]
			if !ok || color.Percentage > current.Percentage {
				merged[color.Hex] = color
			}
		}
	}

	colors := make([]crawler.ColorInfo, 0, len(merged))
	for _, color := range merged {
		colors = append(colors, color)
	}
	sort.Slice(colors, func(i, j int) bool {
		if colors[i].Percentage != colors[j].Percentage {
			return colors[i].Percentage > colors[j].Percentage
		}
		return colors[i].Hex < colors[j].Hex
	})
	if len(colors) > e.opts.PaletteLimit {
		colors = colors[:e.opts.PaletteLimit]
	}
	return colors
}

// primaryFamily returns the first family of a font stack, unquoted.
func primaryFamily(stack string) string {
	first, _, _ := strings.Cut(stack, ",")
	first = strings.TrimSpace(first)
	first = strings.Trim(first, `"'`)
	return strings.TrimSpace(first)
}

func usageForTag(tag string) crawler.FontUsage {
	switch strings.ToUpper(tag) {
	case "H1", "H2", "H3", "H4", "H5", "H6":
		return crawler.FontUsageHeading
	case "P", "SPAN", "DIV", "LI", "A", "TD", "BLOCKQUOTE":
		return crawler.FontUsageBody
	default:
		return crawler.FontUsageOther
	}
}

func usageRank(usage crawler.FontUsage) int {
	switch usage {
	case crawler.FontUsageHeading:
		return 2
	case crawler.FontUsageBody:
		return 1
	default:
		return 0
	}
}

// normalizeCSSColor converts hex and rgb()/rgba() values to #rrggbb. Fully
// transparent values and formats outside those two are rejected.
func normalizeCSSColor(value string) (string, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	switch {
	case strings.HasPrefix(value, "#"):
		return normalizeHex(value)
	case strings.HasPrefix(value, "rgb(") || strings.HasPrefix(value, "rgba("):
		return normalizeRGB(value)
	default:
		return "", false
	}
}

func normalizeHex(value string) (string, bool) {
	hex := strings.TrimPrefix(value, "#")
	switch len(hex) {
	case 3:
		var b strings.Builder
		for _, r := range hex {
			b.WriteRune(r)
			b.WriteRune(r)
		}
		hex = b.String()
	case 6:
	case 8:
		hex = hex[:6]
	default:
		return "", false
	}
	for _, r := range hex {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return "", false
		}
	}
	return "#" + hex, true
}

func normalizeRGB(value string) (string, bool) {
	open := strings.IndexByte(value, '(')
	end := strings.IndexByte(value, ')')
	if open < 0 || end < open {
		return "", false
	}
	parts := strings.Split(value[open+1:end], ",")
	if len(parts) < 3 {
		return "", false
	}
	var rgb [3]int
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil || n < 0 || n > 255 {
			return "", false
		}
		rgb[i] = n
	}
	if len(parts) >= 4 {
		alpha, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil || alpha == 0 {
			return "", false
		}
	}
	return fmt.Sprintf("#%02x%02x%02x", rgb[0], rgb[1], rgb[2]), true
}

// filterColorVariables keeps only custom properties whose value is a color
// literal.
func filterColorVariables(vars map[string]string) map[string]string {
	if len(vars) == 0 {
		return nil
	}
	filtered := make(map[string]string)
	for name, value := range vars {
		if colorLiteral.MatchString(strings.TrimSpace(value)) {
			filtered[name] = strings.TrimSpace(value)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return filtered
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
