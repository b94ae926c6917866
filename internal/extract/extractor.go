// Package extract pulls image candidates and outbound links from a rendered
// page. Image discovery runs inside the page (img sources, lazy-load
// fallbacks, and computed CSS background images); link discovery parses the
// rendered markup. Every page-evaluated result is coerced into a fixed
// schema at the boundary.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/brandloom/brandkit-crawler/internal/crawler"
)

// imagesScript gathers every image reference with its textual context. The
// result shape must stay in sync with imageEval.
const imagesScript = `(() => {
	const out = [];
	for (const img of document.querySelectorAll('img')) {
		let src = img.currentSrc || img.getAttribute('src') ||
			img.getAttribute('data-src') || img.getAttribute('data-lazy-src') ||
			img.getAttribute('data-original') || '';
		src = src.trim();
		if (!src) continue;
		const alt = (img.getAttribute('alt') || '').trim();
		const figure = img.closest('figure');
		let figcaption = '';
		if (figure) {
			const cap = figure.querySelector('figcaption');
			if (cap) figcaption = (cap.textContent || '').trim();
		}
		let nearby = '';
		if (img.parentElement) {
			nearby = (img.parentElement.textContent || '').trim().slice(0, 200);
			if (nearby === alt) nearby = '';
		}
		out.push({
			src: src,
			alt: alt,
			title: (img.getAttribute('title') || '').trim(),
			ariaLabel: (img.getAttribute('aria-label') || '').trim(),
			figcaption: figcaption,
			nearbyText: nearby,
			width: img.naturalWidth || 0,
			height: img.naturalHeight || 0,
		});
	}
	for (const el of document.querySelectorAll('*')) {
		const bg = getComputedStyle(el).backgroundImage;
		if (!bg || bg === 'none') continue;
		const m = bg.match(/url\(["']?([^"')]+)["']?\)/);
		if (!m) continue;
		out.push({
			src: m[1],
			alt: '',
			title: '',
			ariaLabel: (el.getAttribute('aria-label') || '').trim(),
			figcaption: '',
			nearbyText: '',
			width: 0,
			height: 0,
		});
	}
	return out;
})()`

// imageEval is the fixed schema for the page-evaluated image walk. Absent
// fields decode to their zero values; nothing downstream sees raw JS values.
type imageEval struct {
	Src        string `json:"src"`
	Alt        string `json:"alt"`
	Title      string `json:"title"`
	AriaLabel  string `json:"ariaLabel"`
	Figcaption string `json:"figcaption"`
	NearbyText string `json:"nearbyText"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

// minImageEdge excludes tracking pixels and icons at discovery time. An
// image is dropped only when both dimensions are known and both are under
// this limit.
const minImageEdge = 50

// Extractor implements crawler.PageExtractor.
type Extractor struct {
	logger *zap.Logger
}

// New builds an Extractor.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// ExtractImages returns the page's image candidates, deduplicated by
// normalized URL within this call. Data URIs and malformed URLs are dropped
// silently; tiny images are excluded here, not later.
func (e *Extractor) ExtractImages(ctx context.Context, page crawler.Page, pageURL string) ([]crawler.ImageCandidate, error) {
	var raw []imageEval
	if err := page.Evaluate(ctx, imagesScript, &raw); err != nil {
		return nil, fmt.Errorf("evaluate image extraction: %w", err)
	}

	seen := make(map[string]struct{}, len(raw))
	candidates := make([]crawler.ImageCandidate, 0, len(raw))
	for _, item := range raw {
		src := strings.TrimSpace(item.Src)
		if src == "" || strings.HasPrefix(strings.ToLower(src), "data:") {
			continue
		}
		normalized, err := crawler.ResolveURL(pageURL, src)
		if err != nil {
			continue
		}
		if item.Width > 0 && item.Height > 0 && item.Width < minImageEdge && item.Height < minImageEdge {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}

		candidate := crawler.ImageCandidate{
			URL:        normalized,
			PageURL:    pageURL,
			Alt:        item.Alt,
			Title:      item.Title,
			AriaLabel:  item.AriaLabel,
			Figcaption: item.Figcaption,
			NearbyText: truncate(item.NearbyText, 200),
			Width:      item.Width,
			Height:     item.Height,
		}
		candidate.Labels = deriveLabels(candidate)
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// ExtractLinks parses the rendered markup for anchors, resolves each href
// against baseURL, and returns the normalized same-domain page URLs in
// document order, deduplicated. Malformed hrefs normalize to no result and
// are dropped.
func (e *Extractor) ExtractLinks(ctx context.Context, page crawler.Page, baseURL string) ([]string, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("page html: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		normalized, resolveErr := crawler.ResolveURL(baseURL, href)
		if resolveErr != nil {
			return
		}
		if !crawler.SameDomain(baseURL, normalized) || !crawler.IsPageURL(normalized) {
			return
		}
		if _, dup := seen[normalized]; dup {
			return
		}
		seen[normalized] = struct{}{}
		links = append(links, normalized)
	})
	return links, nil
}

// deriveLabels builds the label set from the non-empty textual context
// fields, in a stable order, without duplicates.
func deriveLabels(c crawler.ImageCandidate) []string {
	var labels []string
	seen := make(map[string]struct{})
	for _, text := range []string{c.Alt, c.Title, c.AriaLabel, c.Figcaption} {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		labels = append(labels, text)
	}
	return labels
}

// truncate caps s at limit characters, never splitting a multi-byte rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
