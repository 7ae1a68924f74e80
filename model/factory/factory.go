// Package factory builds and caches one chat client per configured provider.
package factory

import (
	"net/http"
	"sync"
	"time"

	"github.com/hupe1980/reviewmesh/core"
	"github.com/hupe1980/reviewmesh/model"
	"github.com/hupe1980/reviewmesh/model/anthropic"
	"github.com/hupe1980/reviewmesh/model/openai"
	"github.com/hupe1980/reviewmesh/registry"
)

// Options configures clients created by a Pool.
type Options struct {
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Pool lazily creates clients keyed by provider name and reuses them. It is
// safe for concurrent use.
type Pool struct {
	mu      sync.RWMutex
	clients map[string]model.Provider
	opts    Options
}

// NewPool creates an empty Pool.
func NewPool(optFns ...func(o *Options)) *Pool {
	opts := Options{Timeout: 120 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Pool{clients: map[string]model.Provider{}, opts: opts}
}

// Set registers a prebuilt client for a provider name, replacing any cached one.
func (p *Pool) Set(provider string, c model.Provider) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients[provider] = c
}

// Client returns the chat client for entry.
func (p *Pool) Client(entry registry.ProviderEntry) (model.ChatClient, error) {
	return p.Provider(entry)
}

// Lister returns the model lister for entry.
func (p *Pool) Lister(entry registry.ProviderEntry) (model.ModelLister, error) {
	return p.Provider(entry)
}

// Provider returns the cached client for entry, creating it by kind on first use.
func (p *Pool) Provider(entry registry.ProviderEntry) (model.Provider, error) {
	p.mu.RLock()
	c, ok := p.clients[entry.Name]
	p.mu.RUnlock()
	if ok {
		return c, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[entry.Name]; ok {
		return c, nil
	}

	switch entry.Kind {
	case registry.KindOpenAI, "":
		c = openai.New(entry, func(o *openai.Options) {
			o.Timeout = p.opts.Timeout
			o.HTTPClient = p.opts.HTTPClient
		})
	case registry.KindAnthropic:
		c = anthropic.New(entry, func(o *anthropic.Options) {
			o.Timeout = p.opts.Timeout
			o.HTTPClient = p.opts.HTTPClient
		})
	default:
		return nil, core.NewConfigError("provider %q: unsupported kind %q", entry.Name, entry.Kind)
	}
	p.clients[entry.Name] = c
	return c, nil
}
