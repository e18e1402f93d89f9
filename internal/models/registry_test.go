package models

import (
	"strings"
	"testing"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewDefaultRegistry()
	if err != nil {
		t.Fatalf("NewDefaultRegistry failed: %v", err)
	}
	return r
}

func TestResolveCommand(t *testing.T) {
	r := testRegistry(t)

	tests := []struct {
		command string
		want    string // expected version, "" for no match
	}{
		{"sonnet", "claude-3-5-sonnet-20241022"},
		{"/sonnet", "claude-3-5-sonnet-20241022"},
		{"SONNET", "claude-3-5-sonnet-20241022"},
		{"ask", "gpt-4o"},
		{"ds", "deepseek-chat"},
		{"grok", "grok-2-latest"},
		{"nosuchmodel", ""},
	}

	for _, tt := range tests {
		d := r.ResolveCommand(tt.command)
		if tt.want == "" {
			if d != nil {
				t.Errorf("ResolveCommand(%q) = %q, want no match", tt.command, d.Version)
			}
			continue
		}
		if d == nil {
			t.Errorf("ResolveCommand(%q) = nil, want %q", tt.command, tt.want)
			continue
		}
		if d.Version != tt.want {
			t.Errorf("ResolveCommand(%q) = %q, want %q", tt.command, d.Version, tt.want)
		}
	}
}

func TestResolvePrefixBeforeTokenization(t *testing.T) {
	r := testRegistry(t)

	// Prefix matching is a raw case-insensitive startsWith, checked before
	// any command-word splitting.
	d, matched := r.ResolvePrefix("s. explain goroutines")
	if d == nil || d.Version != "claude-3-5-sonnet-20241022" {
		t.Fatalf("expected sonnet match, got %+v", d)
	}
	if matched != "s. " {
		t.Errorf("matched = %q, want %q", matched, "s. ")
	}

	d, _ = r.ResolvePrefix("S. uppercase prefix")
	if d == nil || d.Version != "claude-3-5-sonnet-20241022" {
		t.Errorf("uppercase prefix should match, got %+v", d)
	}

	if d, _ := r.ResolvePrefix("plain message"); d != nil {
		t.Errorf("unexpected prefix match: %q", d.Version)
	}
}

func TestResolvePrefixWinsOverCommand(t *testing.T) {
	r := testRegistry(t)

	// "ds. " is a deepseek prefix; the leading word "ds." is not a command.
	d, matched := r.Resolve("ds. what is Go")
	if d == nil || d.Version != "deepseek-chat" {
		t.Fatalf("expected deepseek, got %+v", d)
	}
	if matched != "ds. " {
		t.Errorf("matched = %q, want %q", matched, "ds. ")
	}
}

func TestRegistryDuplicateVersionFails(t *testing.T) {
	dup := []Descriptor{
		{Provider: ProviderOpenAI, Name: "a", Version: "same", Commands: []string{"a"}},
		{Provider: ProviderClaude, Name: "b", Version: "same", Commands: []string{"b"}},
	}
	if _, err := NewRegistry(dup, nil, nil); err == nil {
		t.Fatal("expected duplicate version error")
	}
}

func TestRegistryDuplicateCommandFails(t *testing.T) {
	dup := []Descriptor{
		{Provider: ProviderOpenAI, Name: "a", Version: "v1", Commands: []string{"go"}},
		{Provider: ProviderOpenAI, Name: "b", Version: "v2", Commands: []string{"GO"}},
	}
	if _, err := NewRegistry(dup, nil, nil); err == nil {
		t.Fatal("expected duplicate command error")
	}
}

func TestParametersForMergesOverrides(t *testing.T) {
	r := testRegistry(t)

	params, err := r.ParametersFor("gpt-4o")
	if err != nil {
		t.Fatalf("ParametersFor failed: %v", err)
	}
	if params.MaxOutputTokens != 1000 {
		t.Errorf("MaxOutputTokens = %d, want 1000 (override)", params.MaxOutputTokens)
	}
	if params.Temperature != 0.8 {
		t.Errorf("Temperature = %v, want 0.8 (provider default)", params.Temperature)
	}

	params, err = r.ParametersFor("deepseek-chat")
	if err != nil {
		t.Fatalf("ParametersFor failed: %v", err)
	}
	if params.Temperature != 1.3 {
		t.Errorf("Temperature = %v, want 1.3 (override)", params.Temperature)
	}
	if params.MaxOutputTokens != 800 {
		t.Errorf("MaxOutputTokens = %d, want 800 (provider default)", params.MaxOutputTokens)
	}

	if _, err := r.ParametersFor("no-such-version"); err == nil {
		t.Error("expected error for unknown version")
	}
}

func TestPromptPrice(t *testing.T) {
	d := &Descriptor{InputPrice: 0.003, OutputPrice: 0.015}

	// 1000 in + 1000 out at $0.003/$0.015 per 1K = $0.018 = 1.8 cents.
	got := d.PromptPrice(1000, 1000)
	if got < 1.799 || got > 1.801 {
		t.Errorf("PromptPrice(1000, 1000) = %v, want 1.8", got)
	}

	if p := d.PromptPrice(0, 0); p != 0 {
		t.Errorf("PromptPrice(0, 0) = %v, want 0", p)
	}

	est := d.MinBalanceEstimate()
	if est != d.PromptPrice(400, 400) {
		t.Errorf("MinBalanceEstimate = %v, want %v", est, d.PromptPrice(400, 400))
	}
}

func TestListing(t *testing.T) {
	r := testRegistry(t)
	out := r.Listing()

	for _, want := range []string{"GPT-4o", "/sonnet", "s. ", "deepseek-chat"} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q:\n%s", want, out)
		}
	}
}
