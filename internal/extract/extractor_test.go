package extract

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

// fakePage serves canned evaluate results and markup without a browser.
type fakePage struct {
	evalResult  []map[string]any
	evalErr     error
	html        string
	htmlErr     error
	location    string
	screenshots [][]byte
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
	if len(f.screenshots) == 0 {
		return nil, errors.New("no screenshot configured")
	}
	return f.screenshots[0], nil
}

func (f *fakePage) HTML(context.Context) (string, error) {
	return f.html, f.htmlErr
}

func (f *fakePage) URL() string { return f.location }

func TestExtractImages(t *testing.T) {
	t.Parallel()
	extractor := New(nil)
	ctx := context.Background()

	t.Run("resolves, filters, and deduplicates candidates", func(t *testing.T) {
		page := &fakePage{evalResult: []map[string]any{
			{"src": "/logo.png", "alt": "Company logo", "width": 300, "height": 120},
			{"src": "https://example.com/logo.png", "alt": "dup of the first"},
			{"src": "data:image/png;base64,AAAA", "alt": "inline"},
			{"src": "/pixel.gif", "width": 1, "height": 1},
			{"src": "/tall.png", "width": 20, "height": 400},
			{"src": "://bad url", "alt": "unresolvable"},
			{"src": "https://cdn.example.com/hero.jpg#frag", "title": "Hero"},
		}}
		candidates, err := extractor.ExtractImages(ctx, page, "https://example.com/about")
		require.NoError(t, err)
		require.Len(t, candidates, 3)

		require.Equal(t, "https://example.com/logo.png", candidates[0].URL)
		require.Equal(t, "https://example.com/about", candidates[0].PageURL)
		require.Equal(t, "Company logo", candidates[0].Alt)

		require.Equal(t, "https://example.com/tall.png", candidates[1].URL)

		require.Equal(t, "https://cdn.example.com/hero.jpg", candidates[2].URL)
		require.Equal(t, "Hero", candidates[2].Title)
	})

	t.Run("tiny images need both dimensions known", func(t *testing.T) {
		page := &fakePage{evalResult: []map[string]any{
			{"src": "/unknown.png"},
			{"src": "/partial.png", "width": 10},
			{"src": "/tiny.png", "width": 10, "height": 10},
		}}
		candidates, err := extractor.ExtractImages(ctx, page, "https://example.com/")
		require.NoError(t, err)
		require.Len(t, candidates, 2)
		require.Equal(t, "https://example.com/unknown.png", candidates[0].URL)
		require.Equal(t, "https://example.com/partial.png", candidates[1].URL)
	})

	t.Run("labels collect unique non-empty context", func(t *testing.T) {
		page := &fakePage{evalResult: []map[string]any{
			{
				"src":        "/team.jpg",
				"alt":        "Our team",
				"title":      "Our team",
				"ariaLabel":  "Team photo",
				"figcaption": "The founding team in 2021",
				"nearbyText": "Meet the people behind the product",
				"width":      800,
				"height":     600,
			},
		}}
		candidates, err := extractor.ExtractImages(ctx, page, "https://example.com/")
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		require.Equal(t, []string{"Our team", "Team photo", "The founding team in 2021"}, candidates[0].Labels)
		require.True(t, candidates[0].HasDescription())
	})

	t.Run("nearby text truncates by characters, not bytes", func(t *testing.T) {
		page := &fakePage{evalResult: []map[string]any{
			{
				"src":        "/banner.png",
				"nearbyText": strings.Repeat("é", 250),
				"width":      600,
				"height":     200,
			},
		}}
		candidates, err := extractor.ExtractImages(ctx, page, "https://example.com/")
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		nearby := candidates[0].NearbyText
		require.True(t, utf8.ValidString(nearby))
		require.Equal(t, 200, utf8.RuneCountInString(nearby))
	})

	t.Run("evaluate failure surfaces as an error", func(t *testing.T) {
		page := &fakePage{evalErr: errors.New("target crashed")}
		_, err := extractor.ExtractImages(ctx, page, "https://example.com/")
		require.Error(t, err)
	})
}

func TestExtractLinks(t *testing.T) {
	t.Parallel()
	extractor := New(nil)
	ctx := context.Background()

	t.Run("keeps same-domain page links, normalized and deduplicated", func(t *testing.T) {
		page := &fakePage{html: `<html><body>
			<a href="/about">About</a>
			<a href="/about/">About again</a>
			<a href="https://example.com/pricing#plans">Pricing</a>
			<a href="https://blog.example.com/post">Blog subdomain</a>
			<a href="https://other.com/">Elsewhere</a>
			<a href="/files/report.pdf">Report</a>
			<a href="mailto:hi@example.com">Mail</a>
			<a href="javascript:void(0)">JS</a>
		</body></html>`}
		links, err := extractor.ExtractLinks(ctx, page, "https://example.com/")
		require.NoError(t, err)
		require.Equal(t, []string{
			"https://example.com/about",
			"https://example.com/pricing",
			"https://blog.example.com/post",
		}, links)
	})

	t.Run("homepage spellings share one entry", func(t *testing.T) {
		page := &fakePage{html: `<html><body>
			<a href="https://example.com">Home bare</a>
			<a href="https://example.com/">Home slash</a>
			<a href="/">Home relative</a>
		</body></html>`}
		links, err := extractor.ExtractLinks(ctx, page, "https://example.com/about")
		require.NoError(t, err)
		require.Equal(t, []string{"https://example.com/"}, links)
	})

	t.Run("html failure surfaces as an error", func(t *testing.T) {
		page := &fakePage{htmlErr: errors.New("tab gone")}
		_, err := extractor.ExtractLinks(ctx, page, "https://example.com/")
		require.Error(t, err)
	})

	t.Run("page without anchors yields nothing", func(t *testing.T) {
		page := &fakePage{html: "<html><body><p>plain</p></body></html>"}
		links, err := extractor.ExtractLinks(ctx, page, "https://example.com/")
		require.NoError(t, err)
		require.Empty(t, links)
	})
}
