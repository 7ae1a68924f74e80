// Package reviewmesh drafts feedback for tracker tickets, answers questions
// with tool-augmented retrieval of ticket data and reviews source-control
// commits, talking to one or more OpenAI compatible or Anthropic providers.
//
// Most applications interact with this package by:
//  1. Building a registry.Registry (usually through config.Config.Registry)
//  2. Creating an Assistant via New, overriding the default in-memory stores
//  3. Calling Analyze, Ask or ReviewCommits per user action
package reviewmesh

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/hupe1980/reviewmesh/cache"
	"github.com/hupe1980/reviewmesh/core"
	"github.com/hupe1980/reviewmesh/engine"
	"github.com/hupe1980/reviewmesh/expand"
	"github.com/hupe1980/reviewmesh/logging"
	"github.com/hupe1980/reviewmesh/model"
	"github.com/hupe1980/reviewmesh/model/factory"
	"github.com/hupe1980/reviewmesh/prompt"
	"github.com/hupe1980/reviewmesh/registry"
	"github.com/hupe1980/reviewmesh/store/memory"
	"github.com/hupe1980/reviewmesh/tool"
)

// DefaultModelCacheTTL is how long provider model listings are cached.
const DefaultModelCacheTTL = time.Hour

// TemplateSource yields the stored single and multi-commit review templates.
type TemplateSource interface {
	Prompts() (single, multi string, err error)
}

// Options configures the Assistant.
type Options struct {
	// Store serves ticket and document lookups (defaults to an empty in-memory store).
	Store core.DataStore
	// Commits resolves commit hashes. Reviews are unavailable when nil.
	Commits core.CommitSource
	// Reviews persists queue markers and results. Queuing is unavailable when nil.
	Reviews core.ReviewStore
	// Templates supplies review templates; nil uses the built-in template.
	Templates TemplateSource

	// Analysis holds the ticket analysis prompts.
	Analysis prompt.AnalysisPrompts
	// ReviewModel is the model id used for reviews; empty uses the registry default.
	ReviewModel string

	// Clients provides chat clients per provider (defaults to a lazily populated pool).
	Clients *factory.Pool
	// MaxParallelTools bounds concurrently executed tool calls.
	MaxParallelTools int
	// TicketCap limits unfiltered ticket lookups.
	TicketCap int
	// ModelCacheTTL defaults to DefaultModelCacheTTL.
	ModelCacheTTL time.Duration

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Assistant is the high-level façade over the registry, engine and stores.
type Assistant struct {
	opts     Options
	registry *registry.Registry
	engine   *engine.Engine
	tools    *tool.Registry
	models   *cache.TTL[[]string]
}

// New creates an Assistant. Any unset store is initialized with an in-memory
// implementation.
func New(reg *registry.Registry, optFns ...func(o *Options)) (*Assistant, error) {
	opts := Options{
		MaxParallelTools: 1,
		TicketCap:        tool.DefaultTicketCap,
		ModelCacheTTL:    DefaultModelCacheTTL,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Store == nil {
		opts.Store = memory.New()
	}
	if opts.Clients == nil {
		opts.Clients = factory.NewPool()
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	tools, err := tool.NewRegistry(tool.NewTicketTool(opts.Store, func(o *tool.TicketToolOptions) {
		if opts.TicketCap > 0 {
			o.SafetyCap = opts.TicketCap
		}
	}))
	if err != nil {
		return nil, err
	}

	eng := engine.New(reg, opts.Clients, tools, func(o *engine.Options) {
		o.Expander = expand.New(opts.Store, opts.Store)
		o.MaxParallelTools = opts.MaxParallelTools
		o.Logger = opts.Logger
	})

	return &Assistant{
		opts:     opts,
		registry: reg,
		engine:   eng,
		tools:    tools,
		models:   cache.New[[]string](opts.ModelCacheTTL),
	}, nil
}

// Registry returns the provider and model registry.
func (a *Assistant) Registry() *registry.Registry { return a.registry }

// AnalyzeRequest asks for feedback on a ticket draft.
type AnalyzeRequest struct {
	Subject     string `json:"subject"`
	Description string `json:"description"`
	// TrackerID selects a tracker specific prompt; 0 uses the default prompt.
	TrackerID int    `json:"tracker_id,omitempty"`
	ModelID   string `json:"model,omitempty"`
}

// Analysis is the feedback on a ticket draft.
type Analysis struct {
	Text    string `json:"text"`
	HTML    string `json:"html"`
	ModelID string `json:"model"`
}

// Analyze drafts review commentary for a ticket.
func (a *Assistant) Analyze(ctx context.Context, req AnalyzeRequest) (Analysis, error) {
	if strings.TrimSpace(req.Subject) == "" || strings.TrimSpace(req.Description) == "" {
		return Analysis{}, core.NewValidationError("please provide a subject and description")
	}

	text := prompt.BuildAnalysis(a.opts.Analysis.Select(req.TrackerID), req.Subject, req.Description)
	id, reply, err := a.completeText(ctx, req.ModelID, a.registry.DefaultModel, text)
	if err != nil {
		return Analysis{}, err
	}

	answer := prompt.StripMarkdownFence(reply.Content)
	html, err := prompt.MarkdownToHTML(answer)
	if err != nil {
		return Analysis{}, err
	}
	return Analysis{Text: answer, HTML: html, ModelID: id}, nil
}

// Ask answers a free-form question.
func (a *Assistant) Ask(ctx context.Context, req engine.Request) (engine.Result, error) {
	return a.engine.Ask(ctx, req)
}

// CommitReview is the outcome of ReviewCommits.
type CommitReview struct {
	Prompt  string              `json:"prompt"`
	Diff    string              `json:"diff"`
	Review  string              `json:"review"`
	ModelID string              `json:"model"`
	Commits []core.CommitRecord `json:"commits"`
}

// ReviewCommits reviews one or more commits in a single completion.
func (a *Assistant) ReviewCommits(ctx context.Context, hashes []string, modelID string) (CommitReview, error) {
	if len(hashes) == 0 {
		return CommitReview{}, core.NewValidationError("no commit hashes given")
	}
	for _, h := range hashes {
		if !core.IsCommitHash(h) {
			return CommitReview{}, core.NewValidationError("invalid commit hash %q", h)
		}
	}
	if a.opts.Commits == nil {
		return CommitReview{}, core.NewConfigError("no commit source configured")
	}

	commits := make([]core.CommitRecord, 0, len(hashes))
	for _, h := range hashes {
		c, found, err := a.opts.Commits.GetCommit(ctx, h)
		if err != nil {
			return CommitReview{}, err
		}
		if !found {
			return CommitReview{}, core.NewValidationError("commit %s not found", h)
		}
		commits = append(commits, c)
	}

	var single, multi string
	if a.opts.Templates != nil {
		var err error
		if single, multi, err = a.opts.Templates.Prompts(); err != nil {
			return CommitReview{}, err
		}
	}
	rendered, err := prompt.RenderCommits(prompt.SelectTemplate(single, multi, len(commits)), commits)
	if err != nil {
		return CommitReview{}, err
	}

	if modelID == "" {
		modelID = a.opts.ReviewModel
	}
	id, reply, err := a.completeText(ctx, modelID, a.registry.DefaultModel, rendered.Prompt)
	if err != nil {
		return CommitReview{}, err
	}

	return CommitReview{
		Prompt:  rendered.Prompt,
		Diff:    rendered.Diff,
		Review:  reply.Content,
		ModelID: id,
		Commits: commits,
	}, nil
}

// completeText sends a single user message with the sampling defaults applied.
func (a *Assistant) completeText(ctx context.Context, id string, fallback func() (string, error), text string) (string, core.Message, error) {
	if id == "" {
		var err error
		if id, err = fallback(); err != nil {
			return "", core.Message{}, err
		}
	}
	resolved, err := a.registry.Resolve(id)
	if err != nil {
		return "", core.Message{}, err
	}
	client, err := a.opts.Clients.Client(resolved.Provider)
	if err != nil {
		return "", core.Message{}, err
	}

	start := time.Now()
	reply, err := client.Complete(ctx, model.Request{
		Params:   resolved.Params.WithDefaults(prompt.DefaultTemperature, prompt.DefaultMaxOutputTokens),
		Messages: []core.Message{core.UserMessage(text)},
	})
	logging.LogLLMCall(a.opts.Logger, id, time.Since(start), err)
	if err != nil {
		return "", core.Message{}, err
	}
	return id, reply, nil
}

// ListModels returns the models a provider offers, sorted. Listings are cached
// per (api key, endpoint).
func (a *Assistant) ListModels(ctx context.Context, providerName string) ([]string, error) {
	entry, ok := a.registry.Provider(providerName)
	if !ok {
		return nil, core.NewConfigError("provider not found: %s", providerName)
	}
	lister, err := a.opts.Clients.Lister(entry)
	if err != nil {
		return nil, err
	}

	ids, err := a.models.GetOrLoad(cache.HashKey(entry.APIKey, entry.BaseURL), func() ([]string, error) {
		ids, err := lister.ListModels(ctx)
		if err != nil {
			return nil, err
		}
		slices.Sort(ids)
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(ids), nil
}

// ConfiguredModels returns the model ids of the registry.
func (a *Assistant) ConfiguredModels() []string { return a.registry.ModelIDs() }

// QueueReview marks hash for asynchronous review.
func (a *Assistant) QueueReview(ctx context.Context, hash string) error {
	if !core.IsCommitHash(hash) {
		return core.NewValidationError("invalid commit hash %q", hash)
	}
	if a.opts.Reviews == nil {
		return core.NewConfigError("no review store configured")
	}
	if err := a.opts.Reviews.QueueReview(ctx, hash); err != nil {
		return err
	}
	a.opts.Logger.Info("review queued", "hash", hash)
	return nil
}

// ReviewStatus reports the state of an asynchronous review.
type ReviewStatus struct {
	Hash   string `json:"hash"`
	Queued bool   `json:"queued"`
	Done   bool   `json:"done"`
	Review string `json:"review,omitempty"`
}

// ReviewResult returns the stored review of hash, if any.
func (a *Assistant) ReviewResult(ctx context.Context, hash string) (ReviewStatus, error) {
	if !core.IsCommitHash(hash) {
		return ReviewStatus{}, core.NewValidationError("invalid commit hash %q", hash)
	}
	if a.opts.Reviews == nil {
		return ReviewStatus{}, core.NewConfigError("no review store configured")
	}
	review, done, err := a.opts.Reviews.Result(ctx, hash)
	if err != nil {
		return ReviewStatus{}, err
	}
	queued, err := a.opts.Reviews.IsQueued(ctx, hash)
	if err != nil {
		return ReviewStatus{}, err
	}
	return ReviewStatus{Hash: hash, Queued: queued, Done: done, Review: review}, nil
}
