package crawler

import "testing"

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases host", "https://Example.COM/Path", "https://example.com/Path"},
		{"strips default https port", "https://example.com:443/a", "https://example.com/a"},
		{"strips default http port", "http://example.com:80/a", "http://example.com/a"},
		{"keeps custom port", "https://example.com:8443/a", "https://example.com:8443/a"},
		{"removes fragment", "https://example.com/a#section", "https://example.com/a"},
		{"sorts query params", "https://example.com/a?b=2&a=1", "https://example.com/a?a=1&b=2"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeURL(tc.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.expected {
				t.Errorf("NormalizeURL(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestSeedURL(t *testing.T) {
	t.Parallel()

	got, err := SeedURL("example.com", "/about")
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://example.com/about" {
		t.Errorf("SeedURL = %q", got)
	}

	got, err = SeedURL("http://example.com", "/")
	if err != nil {
		t.Fatal(err)
	}
	if got != "http://example.com/" {
		t.Errorf("SeedURL with scheme = %q", got)
	}

	if _, err := SeedURL("", "/"); err == nil {
		t.Error("expected error for empty domain")
	}
}

func TestSameDomain(t *testing.T) {
	t.Parallel()

	if !sameDomain("https://example.com/x", "example.com") {
		t.Error("expected match for bare domain")
	}
	if !sameDomain("http://Example.com/x", "https://example.com") {
		t.Error("expected case-insensitive match ignoring scheme")
	}
	if !sameDomain("https://example.com:8443/x", "example.com:443") {
		t.Error("expected match ignoring ports")
	}
	if sameDomain("https://sub.example.com/x", "example.com") {
		t.Error("subdomains are distinct hosts")
	}
	if sameDomain("https://other.com/x", "example.com") {
		t.Error("expected mismatch")
	}
}
