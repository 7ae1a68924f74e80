// Package registry maps compact model identifiers ("<provider>:<model>") to
// provider connections and generation parameters.
//
// The registry is immutable after construction and safe for concurrent use.
// Configuration sources (files, databases, environment) populate it once at
// process start; reloading means building a new Registry between requests.
package registry

import (
	"fmt"
	"strings"

	"github.com/hupe1980/reviewmesh/core"
)

// ProviderKind selects the wire format a provider speaks.
type ProviderKind string

const (
	// KindOpenAI is any OpenAI compatible chat-completions endpoint.
	KindOpenAI ProviderKind = "openai"
	// KindAnthropic is the Anthropic Messages API.
	KindAnthropic ProviderKind = "anthropic"
)

// ProviderEntry describes an upstream chat-completion service.
type ProviderEntry struct {
	Name    string       `json:"name"`
	Kind    ProviderKind `json:"kind"`
	BaseURL string       `json:"base_url"`
	APIKey  string       `json:"-"`
}

// ModelEntry describes a model offered by a provider. Temperature and
// MaxOutputTokens are nil when unset.
type ModelEntry struct {
	Provider        string   `json:"provider"`
	Model           string   `json:"model"`
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int64   `json:"max_output_tokens,omitempty"`
}

// ID returns the serialized model identifier of m.
func (m ModelEntry) ID() string { return FormatModelID(m.Provider, m.Model) }

// ChatParameters are the generation parameters sent with a chat request.
// Unset optional fields are omitted from the wire entirely.
type ChatParameters struct {
	Model           string   `json:"model"`
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int64   `json:"max_output_tokens,omitempty"`
}

// Fields returns the parameters as a map without the unset keys.
func (p ChatParameters) Fields() map[string]any {
	fields := map[string]any{"model": p.Model}
	if p.Temperature != nil {
		fields["temperature"] = *p.Temperature
	}
	if p.MaxOutputTokens != nil {
		fields["max_output_tokens"] = *p.MaxOutputTokens
	}
	return fields
}

// WithDefaults returns a copy of p where unset optional fields take the given
// values. Defaulting is caller policy; the registry never applies it.
func (p ChatParameters) WithDefaults(temperature float64, maxOutputTokens int64) ChatParameters {
	if p.Temperature == nil {
		p.Temperature = &temperature
	}
	if p.MaxOutputTokens == nil {
		p.MaxOutputTokens = &maxOutputTokens
	}
	return p
}

// Options configures a Registry.
type Options struct {
	// DefaultModel is the model id used when a caller does not name one.
	DefaultModel string
	// ToolModel is the model id used for the tool-calling step.
	ToolModel string
}

// Registry is the immutable provider and model table.
type Registry struct {
	providers []ProviderEntry
	models    []ModelEntry
	opts      Options
}

// New validates the entries and builds a Registry.
func New(providers []ProviderEntry, models []ModelEntry, optFns ...func(o *Options)) (*Registry, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	seen := make(map[string]struct{}, len(providers))
	ps := make([]ProviderEntry, 0, len(providers))
	for _, p := range providers {
		if p.Name == "" {
			return nil, core.NewConfigError("provider name is required")
		}
		if strings.Contains(p.Name, ":") {
			return nil, core.NewConfigError("provider %q: name must not contain ':'", p.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return nil, core.NewConfigError("duplicate provider name %q", p.Name)
		}
		seen[p.Name] = struct{}{}
		if p.Kind == "" {
			p.Kind = KindOpenAI
		}
		if p.Kind != KindOpenAI && p.Kind != KindAnthropic {
			return nil, core.NewConfigError("provider %q: unknown kind %q", p.Name, p.Kind)
		}
		ps = append(ps, p)
	}

	ms := make([]ModelEntry, 0, len(models))
	for _, m := range models {
		if _, ok := seen[m.Provider]; !ok {
			return nil, core.NewConfigError("model %q: unknown provider %q", m.Model, m.Provider)
		}
		if m.Model == "" {
			return nil, core.NewConfigError("provider %q: model name is required", m.Provider)
		}
		if m.Temperature != nil && *m.Temperature < 0 {
			return nil, core.NewConfigError("model %q: temperature must be >= 0", m.ID())
		}
		if m.MaxOutputTokens != nil && *m.MaxOutputTokens <= 0 {
			return nil, core.NewConfigError("model %q: max output tokens must be > 0", m.ID())
		}
		ms = append(ms, m)
	}

	return &Registry{providers: ps, models: ms, opts: opts}, nil
}

// FormatModelID serializes a (provider, model) pair.
func FormatModelID(provider, model string) string {
	return provider + ":" + model
}

// ParseModelID splits id on its first colon. The model part may itself
// contain colons.
func ParseModelID(id string) (provider, model string, err error) {
	provider, model, ok := strings.Cut(id, ":")
	if !ok || provider == "" {
		return "", "", core.NewConfigError("invalid model id %q, expected <provider>:<model>", id)
	}
	return provider, model, nil
}

// ResolveProvider returns the provider entry named by id.
func (r *Registry) ResolveProvider(id string) (ProviderEntry, error) {
	name, _, err := ParseModelID(id)
	if err != nil {
		return ProviderEntry{}, err
	}
	p, ok := r.Provider(name)
	if !ok {
		return ProviderEntry{}, core.NewConfigError("provider not found: %s", name)
	}
	return p, nil
}

// ResolveModel returns the first model entry matching id exactly.
func (r *Registry) ResolveModel(id string) (ModelEntry, error) {
	provider, model, err := ParseModelID(id)
	if err != nil {
		return ModelEntry{}, err
	}
	for _, m := range r.models {
		if m.Provider == provider && m.Model == model {
			return m, nil
		}
	}
	return ModelEntry{}, core.NewConfigError("model not found: %s", id)
}

// ChatParameters returns the generation parameters for id.
func (r *Registry) ChatParameters(id string) (ChatParameters, error) {
	m, err := r.ResolveModel(id)
	if err != nil {
		return ChatParameters{}, err
	}
	return ChatParameters{
		Model:           m.Model,
		Temperature:     m.Temperature,
		MaxOutputTokens: m.MaxOutputTokens,
	}, nil
}

// Resolved bundles everything needed to call a model.
type Resolved struct {
	ID       string
	Provider ProviderEntry
	Params   ChatParameters
}

// Resolve resolves provider and parameters of id in one step.
func (r *Registry) Resolve(id string) (Resolved, error) {
	p, err := r.ResolveProvider(id)
	if err != nil {
		return Resolved{}, err
	}
	params, err := r.ChatParameters(id)
	if err != nil {
		return Resolved{}, err
	}
	return Resolved{ID: id, Provider: p, Params: params}, nil
}

// DefaultModel returns the configured default model id if non-empty, else the
// id of the first registered model.
func (r *Registry) DefaultModel() (string, error) {
	if r.opts.DefaultModel != "" {
		return r.opts.DefaultModel, nil
	}
	if len(r.models) == 0 {
		return "", core.NewConfigError("no model configured")
	}
	return r.models[0].ID(), nil
}

// ToolModel returns the configured tool-calling model id, falling back to the
// default model.
func (r *Registry) ToolModel() (string, error) {
	if r.opts.ToolModel != "" {
		return r.opts.ToolModel, nil
	}
	return r.DefaultModel()
}

// SameProvider reports whether both model ids resolve to the same provider.
func (r *Registry) SameProvider(a, b string) (bool, error) {
	pa, err := r.ResolveProvider(a)
	if err != nil {
		return false, err
	}
	pb, err := r.ResolveProvider(b)
	if err != nil {
		return false, err
	}
	return pa.Name == pb.Name, nil
}

// Provider looks up a provider by name.
func (r *Registry) Provider(name string) (ProviderEntry, bool) {
	for _, p := range r.providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderEntry{}, false
}

// Providers returns a copy of the provider table.
func (r *Registry) Providers() []ProviderEntry {
	return append([]ProviderEntry(nil), r.providers...)
}

// Models returns a copy of the model table in registration order.
func (r *Registry) Models() []ModelEntry {
	return append([]ModelEntry(nil), r.models...)
}

// ModelIDs returns the ids of all models in registration order, without duplicates.
func (r *Registry) ModelIDs() []string {
	ids := make([]string, 0, len(r.models))
	seen := map[string]struct{}{}
	for _, m := range r.models {
		id := m.ID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// String implements fmt.Stringer without leaking credentials.
func (p ProviderEntry) String() string {
	return fmt.Sprintf("%s (%s, %s)", p.Name, p.Kind, p.BaseURL)
}
