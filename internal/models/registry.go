package models

import (
	"fmt"
	"strings"
)

// Registry is the static model catalog with lookup by invocation command or
// prompt prefix. Pure lookup, no I/O; construction fails fast on duplicate
// versions or ambiguous commands.
type Registry struct {
	byVersion map[string]*Descriptor
	byCommand map[string]*Descriptor
	ordered   []*Descriptor // catalog order, for listings

	providerParams map[Provider]Parameters
	modelOverrides map[string]Parameters // keyed by catalog name
}

// NewRegistry builds a registry from descriptors and parameter tables.
// Returns an error if two descriptors claim the same version, or the same
// command within one provider namespace.
func NewRegistry(descriptors []Descriptor, providerParams map[Provider]Parameters, modelOverrides map[string]Parameters) (*Registry, error) {
	r := &Registry{
		byVersion:      make(map[string]*Descriptor),
		byCommand:      make(map[string]*Descriptor),
		providerParams: providerParams,
		modelOverrides: modelOverrides,
	}

	for i := range descriptors {
		d := &descriptors[i]
		if _, dup := r.byVersion[d.Version]; dup {
			return nil, fmt.Errorf("duplicate model version %q", d.Version)
		}
		r.byVersion[d.Version] = d
		r.ordered = append(r.ordered, d)

		for _, cmd := range d.Commands {
			key := commandKey(d.Provider, cmd)
			if prev, dup := r.byCommand[key]; dup {
				return nil, fmt.Errorf("command %q claimed by both %q and %q", cmd, prev.Version, d.Version)
			}
			r.byCommand[key] = d
		}
	}
	return r, nil
}

func commandKey(p Provider, cmd string) string {
	return string(p) + "/" + strings.ToLower(cmd)
}

// ResolveCommand finds the descriptor owning a leading command word.
// The command is matched case-insensitively across all providers; the first
// catalog-order match wins (commands are unique per provider namespace, and
// the catalog keeps them globally unique in practice).
func (r *Registry) ResolveCommand(command string) *Descriptor {
	command = strings.ToLower(strings.TrimPrefix(command, "/"))
	for _, d := range r.ordered {
		for _, cmd := range d.Commands {
			if strings.ToLower(cmd) == command {
				return d
			}
		}
	}
	return nil
}

// ResolvePrefix checks the raw prompt against every registered prefix.
// Prefix matching happens before tokenization: a plain case-insensitive
// startsWith on the untouched text. Returns the descriptor and the matched
// prefix, or (nil, "").
func (r *Registry) ResolvePrefix(text string) (*Descriptor, string) {
	lower := strings.ToLower(text)
	for _, d := range r.ordered {
		for _, p := range d.Prefixes {
			if strings.HasPrefix(lower, strings.ToLower(p)) {
				return d, text[:len(p)]
			}
		}
	}
	return nil, ""
}

// Resolve tries prefix matching first (raw string), then command matching
// against the tokenized leading word.
func (r *Registry) Resolve(text string) (*Descriptor, string) {
	if d, matched := r.ResolvePrefix(text); d != nil {
		return d, matched
	}
	word := text
	if i := strings.IndexAny(text, " \t\n"); i >= 0 {
		word = text[:i]
	}
	if d := r.ResolveCommand(word); d != nil {
		return d, word
	}
	return nil, ""
}

// Get returns the descriptor for a wire model version, or nil.
func (r *Registry) Get(version string) *Descriptor {
	return r.byVersion[version]
}

// DescriptorsForProvider returns all descriptors for one provider, in
// catalog order.
func (r *Registry) DescriptorsForProvider(p Provider) []*Descriptor {
	var out []*Descriptor
	for _, d := range r.ordered {
		if d.Provider == p {
			out = append(out, d)
		}
	}
	return out
}

// All returns every descriptor in catalog order.
func (r *Registry) All() []*Descriptor {
	return r.ordered
}

// ParametersFor merges provider defaults with per-model overrides.
func (r *Registry) ParametersFor(version string) (Parameters, error) {
	d := r.byVersion[version]
	if d == nil {
		return Parameters{}, fmt.Errorf("model %q not found", version)
	}
	params := r.providerParams[d.Provider]
	if o, ok := r.modelOverrides[d.Name]; ok {
		if o.Temperature != 0 {
			params.Temperature = o.Temperature
		}
		if o.MaxOutputTokens != 0 {
			params.MaxOutputTokens = o.MaxOutputTokens
		}
		if o.SystemPromptStyle != "" {
			params.SystemPromptStyle = o.SystemPromptStyle
		}
	}
	return params, nil
}

// Listing renders the catalog grouped by provider, with commands and
// shortcut prefixes, for the /models command.
func (r *Registry) Listing() string {
	var b strings.Builder
	seen := make(map[Provider]bool)
	for _, d := range r.ordered {
		if seen[d.Provider] {
			continue
		}
		seen[d.Provider] = true
		fmt.Fprintf(&b, "*%s models:*\n", strings.ToUpper(string(d.Provider)))
		for _, m := range r.DescriptorsForProvider(d.Provider) {
			if len(m.Commands) == 0 {
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", m.FullName, m.Version)
			fmt.Fprintf(&b, "Commands: /%s\n", strings.Join(m.Commands, " /"))
			if len(m.Prefixes) > 0 {
				fmt.Fprintf(&b, "Shortcuts: %s\n", strings.Join(m.Prefixes, " "))
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String())
}
