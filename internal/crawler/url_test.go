package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"strips fragment", "https://example.com/page#section", "https://example.com/page"},
		{"strips one trailing slash", "https://example.com/about/", "https://example.com/about"},
		{"keeps root slash", "https://example.com/", "https://example.com/"},
		{"bare host gains root slash", "https://example.com", "https://example.com/"},
		{"bare host with fragment", "https://example.com#top", "https://example.com/"},
		{"lowercases scheme and host", "HTTPS://Example.COM/Path", "https://example.com/Path"},
		{"keeps query", "https://example.com/search?q=logo", "https://example.com/search?q=logo"},
		{"trims whitespace", "  https://example.com/x  ", "https://example.com/x"},
		{"fragment and slash together", "https://example.com/a/#top", "https://example.com/a"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeURL(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}

	invalid := []struct {
		name string
		in   string
	}{
		{"relative reference", "/just/a/path"},
		{"mailto scheme", "mailto:hello@example.com"},
		{"javascript scheme", "javascript:void(0)"},
		{"ftp scheme", "ftp://example.com/file"},
		{"empty", ""},
		{"garbage", "://nope"},
	}
	for _, tc := range invalid {
		t.Run(tc.name+" fails", func(t *testing.T) {
			_, err := NormalizeURL(tc.in)
			require.Error(t, err)
		})
	}
}

func TestResolveURL(t *testing.T) {
	t.Parallel()

	base := "https://example.com/blog/post"

	got, err := ResolveURL(base, "/about")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/about", got)

	got, err = ResolveURL(base, "images/logo.png")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/blog/images/logo.png", got)

	got, err = ResolveURL(base, "https://cdn.example.com/x.png#v2")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/x.png", got)

	got, err = ResolveURL(base, "//static.example.com/app.png")
	require.NoError(t, err)
	require.Equal(t, "https://static.example.com/app.png", got)

	_, err = ResolveURL(base, "mailto:team@example.com")
	require.Error(t, err)

	_, err = ResolveURL("://broken", "/about")
	require.Error(t, err)
}

func TestSameDomain(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a, b string
		want bool
	}{
		{"exact match", "https://example.com/a", "https://example.com/b", true},
		{"www subdomain", "https://www.example.com/", "https://example.com/", true},
		{"subdomain either direction", "https://example.com/", "https://blog.example.com/post", true},
		{"deep subdomain", "https://a.b.example.com/", "https://example.com/", true},
		{"different site", "https://example.com/", "https://other.com/", false},
		{"suffix without dot boundary", "https://badexample.com/", "https://example.com/", false},
		{"unparsable", "://x", "https://example.com/", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, SameDomain(tc.a, tc.b))
		})
	}
}

func TestIsPageURL(t *testing.T) {
	t.Parallel()

	pages := []string{
		"https://example.com/",
		"https://example.com/about",
		"https://example.com/docs/index.html",
		"https://example.com/report.PDF.html",
		"https://example.com/path?download=report.pdf",
	}
	for _, u := range pages {
		require.True(t, IsPageURL(u), u)
	}

	assets := []string{
		"https://example.com/report.pdf",
		"https://example.com/image.PNG",
		"https://example.com/photo.jpeg",
		"https://example.com/icon.svg",
		"https://example.com/clip.mp4",
		"https://example.com/archive.zip",
		"https://example.com/notes.docx",
	}
	for _, u := range assets {
		require.False(t, IsPageURL(u), u)
	}
}
