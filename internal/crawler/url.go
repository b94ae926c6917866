package crawler

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// skippedExtensions lists non-page file extensions excluded from link
// discovery. Images on this list are still collected as image candidates;
// they are only barred from the page queue.
var skippedExtensions = map[string]struct{}{
	".pdf":  {},
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".svg":  {},
	".webp": {},
	".mp4":  {},
	".mp3":  {},
	".zip":  {},
	".doc":  {},
	".docx": {},
}

// NormalizeURL standardizes a URL so it can serve as a deduplication key.
// It strips the fragment and exactly one trailing slash unless the path is
// the root "/". Only absolute http(s) URLs normalize successfully.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	return normalizeParsed(u)
}

// ResolveURL resolves a possibly-relative reference against base and
// normalizes the result.
func ResolveURL(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parse ref url: %w", err)
	}
	return normalizeParsed(baseURL.ResolveReference(refURL))
}

func normalizeParsed(u *url.URL) (string, error) {
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host")
	}
	u.Fragment = ""
	// A bare host and the root path are the same page; canonicalize to "/"
	// so both spellings share one dedup key.
	if u.Path == "" {
		u.Path = "/"
	}
	if u.Path != "/" && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String(), nil
}

// SameDomain reports whether two URLs belong to the same site. It accepts an
// exact host match or a subdomain relationship in either direction, so
// www.example.com and example.com count as the same site.
func SameDomain(a, b string) bool {
	hostA, err := hostOf(a)
	if err != nil {
		return false
	}
	hostB, err := hostOf(b)
	if err != nil {
		return false
	}
	if hostA == hostB {
		return true
	}
	return strings.HasSuffix(hostA, "."+hostB) || strings.HasSuffix(hostB, "."+hostA)
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("missing host")
	}
	return host, nil
}

// IsPageURL reports whether a normalized URL looks like a crawlable page
// rather than a binary asset.
func IsPageURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	_, skipped := skippedExtensions[ext]
	return !skipped
}
