package subagent

import (
	"reflect"
	"testing"
)

func TestExtractURLs(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"no links here", nil},
		{"read https://example.com/page please", []string{"https://example.com/page"}},
		{"see http://a.com and https://b.com", []string{"http://a.com", "https://b.com"}},
		// Trailing sentence punctuation is not part of the URL.
		{"check https://example.com/doc.", []string{"https://example.com/doc"}},
		{"really? https://example.com/x?q=1!", []string{"https://example.com/x?q=1"}},
		// Case-insensitive dedup keeps the first spelling.
		{"https://Example.com/A and https://example.com/a", []string{"https://Example.com/A"}},
		{"(https://example.com/wrapped)", []string{"https://example.com/wrapped"}},
	}

	for _, tt := range tests {
		got := ExtractURLs(tt.text)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ExtractURLs(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestIsPDFURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/report.pdf", true},
		{"https://example.com/report.PDF", true},
		{"https://example.com/report.pdf?dl=1", true},
		{"https://example.com/report.pdf#page=2", true},
		{"https://example.com/report.pdfx", false},
		{"https://example.com/page.html", false},
		{"https://example.com/", false},
	}

	for _, tt := range tests {
		if got := IsPDFURL(tt.url); got != tt.want {
			t.Errorf("IsPDFURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}
