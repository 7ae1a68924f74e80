package model

import (
	"context"

	"github.com/hupe1980/reviewmesh/core"
	"github.com/hupe1980/reviewmesh/registry"
)

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object (minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request is a single chat completion request.
type Request struct {
	Params   registry.ChatParameters `json:"params"`
	Messages []core.Message          `json:"messages"`
	Tools    []ToolDefinition        `json:"tools,omitempty"`
}

// ChatClient sends one chat completion request to a provider and returns the
// assistant message. Implementations perform exactly one request and never
// retry; failures are *core.Error of kind transport or provider_api.
type ChatClient interface {
	Complete(ctx context.Context, req Request) (core.Message, error)
}

// ModelLister lists the model names a provider offers.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Provider is implemented by adapters that support both chat and model listing.
type Provider interface {
	ChatClient
	ModelLister
}
