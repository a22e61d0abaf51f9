package helpers

import (
	"strings"
	"testing"
)

func TestCanonicalURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "defaults https and cleans path",
			in:   "Example.com/news/../tech/latest",
			want: "https://example.com/tech/latest",
		},
		{
			name: "removes default port and tracking params",
			in:   "http://news.example.com:80/article?id=123&utm_source=rss#section",
			want: "http://news.example.com/article?id=123",
		},
		{
			name: "sorts query parameters",
			in:   "https://example.com/path?b=2&a=1&fbclid=xyz",
			want: "https://example.com/path?a=1&b=2",
		},
		{
			name: "handles schemeless url with double slash",
			in:   "//blog.example.com/post/42?utm_medium=email",
			want: "https://blog.example.com/post/42",
		},
		{
			name: "normalises repeated slashes",
			in:   "https://example.com//a//b///c",
			want: "https://example.com/a/b/c",
		},
		{
			name: "strips default https port",
			in:   "https://example.com:443/paper",
			want: "https://example.com/paper",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalURL(tt.in)
			if err != nil {
				t.Fatalf("CanonicalURL() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("CanonicalURL() got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCanonicalURLErrors(t *testing.T) {
	t.Parallel()
	if _, err := CanonicalURL(""); err == nil {
		t.Fatalf("expected error for empty input")
	}
	if _, err := CanonicalURL("   "); err == nil {
		t.Fatalf("expected error for blank input")
	}
}

func TestURLFingerprintStable(t *testing.T) {
	t.Parallel()
	a, err := URLFingerprint("https://example.com/article?utm_source=x&id=9")
	if err != nil {
		t.Fatalf("URLFingerprint() error = %v", err)
	}
	b, err := URLFingerprint("Example.com/article?id=9")
	if err != nil {
		t.Fatalf("URLFingerprint() error = %v", err)
	}
	if a != b {
		t.Fatalf("equivalent urls produced different fingerprints: %s vs %s", a, b)
	}
	if len(a) != 64 || strings.ToLower(a) != a {
		t.Fatalf("fingerprint is not lowercase sha256 hex: %q", a)
	}
}

func TestDomain(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.stanford.edu/research/ai", "stanford.edu"},
		{"http://data.gov.uk:8080/stats", "data.gov.uk"},
		{"reuters.com/article/x", "reuters.com"},
		{"not a url", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Domain(tt.in); got != tt.want {
			t.Fatalf("Domain(%q) got %q, want %q", tt.in, got, tt.want)
		}
	}
}
