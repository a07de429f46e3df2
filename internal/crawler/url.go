package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL standardizes a URL so queue dedup catches trivially equivalent
// forms. It lowercases the scheme and host, removes default ports and
// fragments, and sorts query parameters.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawQuery = u.Query().Encode()

	return u.String(), nil
}

// SeedURL builds the absolute URL for a heuristic seed path on a domain. The
// domain may be bare ("example.com") or carry a scheme already.
func SeedURL(domain, seedPath string) (string, error) {
	base := domain
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	u, err := url.Parse(base)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("invalid domain %q", domain)
	}
	u.Path = seedPath
	if u.Path == "" {
		u.Path = "/"
	}
	return NormalizeURL(u.String())
}

// sameDomain reports whether rawURL points at the given domain (matching the
// registered host, ignoring scheme and port).
func sameDomain(rawURL, domain string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	want := domain
	if strings.Contains(want, "://") {
		parsed, perr := url.Parse(want)
		if perr != nil {
			return false
		}
		want = parsed.Hostname()
	}
	if i := strings.IndexByte(want, ':'); i >= 0 {
		want = want[:i]
	}
	return strings.EqualFold(u.Hostname(), want)
}
