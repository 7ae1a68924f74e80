package reviewmesh

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/reviewmesh/codereview"
	"github.com/hupe1980/reviewmesh/core"
	"github.com/hupe1980/reviewmesh/engine"
	"github.com/hupe1980/reviewmesh/model"
	"github.com/hupe1980/reviewmesh/model/factory"
	"github.com/hupe1980/reviewmesh/prompt"
	"github.com/hupe1980/reviewmesh/registry"
)

type commitMap map[string]core.CommitRecord

func (m commitMap) GetCommit(_ context.Context, hash string) (core.CommitRecord, bool, error) {
	c, ok := m[hash]
	return c, ok, nil
}

type countingProvider struct {
	*model.ScriptedClient
	lists atomic.Int32
}

func (p *countingProvider) ListModels(ctx context.Context) ([]string, error) {
	p.lists.Add(1)
	return p.ScriptedClient.ListModels(ctx)
}

type fixture struct {
	assistant *Assistant
	client    *countingProvider
	reviews   *codereview.Dir
}

func newFixture(t *testing.T, optFns ...func(o *Options)) *fixture {
	t.Helper()
	reg, err := registry.New(
		[]registry.ProviderEntry{{Name: "local", BaseURL: "http://localhost:11434/v1", APIKey: "k"}},
		[]registry.ModelEntry{{Provider: "local", Model: "qwen2.5-coder:7b"}},
	)
	require.NoError(t, err)

	f := &fixture{
		client:  &countingProvider{ScriptedClient: model.NewScriptedClient("llama3", "codellama", "qwen2.5-coder:7b")},
		reviews: codereview.New(t.TempDir()),
	}
	require.NoError(t, f.reviews.Init())

	pool := factory.NewPool()
	pool.Set("local", f.client)

	f.assistant, err = New(reg, append([]func(o *Options){func(o *Options) {
		o.Clients = pool
		o.Reviews = f.reviews
		o.Templates = f.reviews
		o.Commits = commitMap{
			"aaaa111": {Hash: "aaaa111", Author: "Ada <ada@example.com>", Subject: "Fix save", Diff: "diff A"},
			"bbbb222": {Hash: "bbbb222", Author: "Bob <bob@example.com>", Subject: "Add test", Diff: "diff B"},
		}
		o.Analysis = prompt.AnalysisPrompts{ByTracker: map[string]string{"bug": "Check reproduction steps."}}
	}}, optFns...)...)
	require.NoError(t, err)
	return f
}

func TestAnalyze(t *testing.T) {
	f := newFixture(t)
	f.client.Reply("```markdown\n# Good ticket\n\nAdd **steps**.\n```")

	a, err := f.assistant.Analyze(t.Context(), AnalyzeRequest{Subject: "Crash on save", Description: "It crashes", TrackerID: core.TrackerBug})
	require.NoError(t, err)
	assert.Equal(t, "# Good ticket\n\nAdd **steps**.", a.Text)
	assert.Contains(t, a.HTML, "<h1>Good ticket</h1>")
	assert.Equal(t, "local:qwen2.5-coder:7b", a.ModelID)

	reqs := f.client.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Check reproduction steps.\n\nSubject: Crash on save\nContent: It crashes\n\nAnalysis:", reqs[0].Messages[0].Content)
	assert.Equal(t, 0.2, *reqs[0].Params.Temperature)
	assert.Equal(t, int64(2000), *reqs[0].Params.MaxOutputTokens)
}

func TestAnalyze_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.assistant.Analyze(t.Context(), AnalyzeRequest{Subject: "only subject"})
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindValidation))
	assert.Zero(t, f.client.Calls())
}

func TestAsk(t *testing.T) {
	f := newFixture(t)
	f.client.Reply("no tools needed").Reply("The answer.")

	res, err := f.assistant.Ask(t.Context(), engine.Request{Question: "How are you?"})
	require.NoError(t, err)
	assert.Equal(t, "The answer.", res.Answer)
	assert.Empty(t, res.ToolCalls)
}

func TestReviewCommits(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.reviews.SavePrompts("single <commit>{hash}</commit>", "Review these:\n<commit>- {hash} {subject} by {author}\n</commit>Thanks"))
	f.client.Reply("Both fine.")

	r, err := f.assistant.ReviewCommits(t.Context(), []string{"aaaa111", "bbbb222"}, "")
	require.NoError(t, err)
	assert.Equal(t, "Review these:\n- aaaa111 Fix save by Ada <ada@example.com>\n- bbbb222 Add test by Bob <bob@example.com>\nThanks", r.Prompt)
	assert.Equal(t, "diff A\n\ndiff B", r.Diff)
	assert.Equal(t, "Both fine.", r.Review)
	assert.Len(t, r.Commits, 2)

	reqs := f.client.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, r.Prompt, reqs[0].Messages[0].Content)
}

func TestReviewCommits_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.assistant.ReviewCommits(t.Context(), []string{"cccc333"}, "")
	assert.True(t, core.IsKind(err, core.KindValidation), "unknown commit")

	_, err = f.assistant.ReviewCommits(t.Context(), []string{"not-a-hash"}, "")
	assert.True(t, core.IsKind(err, core.KindValidation))

	_, err = f.assistant.ReviewCommits(t.Context(), nil, "")
	assert.True(t, core.IsKind(err, core.KindValidation))

	require.NoError(t, f.reviews.SavePrompts("no block", ""))
	_, err = f.assistant.ReviewCommits(t.Context(), []string{"aaaa111"}, "")
	assert.True(t, core.IsKind(err, core.KindTemplate))

	_, err = f.assistant.ReviewCommits(t.Context(), []string{"aaaa111"}, "local:missing")
	assert.True(t, core.IsKind(err, core.KindTemplate), "template errors abort before model resolution")

	assert.Zero(t, f.client.Calls())

	noCommits := newFixture(t, func(o *Options) { o.Commits = nil })
	_, err = noCommits.assistant.ReviewCommits(t.Context(), []string{"aaaa111"}, "")
	assert.True(t, core.IsKind(err, core.KindConfig))
}

func TestListModels_SortedAndCached(t *testing.T) {
	f := newFixture(t)

	ids, err := f.assistant.ListModels(t.Context(), "local")
	require.NoError(t, err)
	assert.Equal(t, []string{"codellama", "llama3", "qwen2.5-coder:7b"}, ids)

	ids[0] = "mutated"
	again, err := f.assistant.ListModels(t.Context(), "local")
	require.NoError(t, err)
	assert.Equal(t, "codellama", again[0])
	assert.Equal(t, int32(1), f.client.lists.Load())

	_, err = f.assistant.ListModels(t.Context(), "missing")
	assert.True(t, core.IsKind(err, core.KindConfig))

	assert.Equal(t, []string{"local:qwen2.5-coder:7b"}, f.assistant.ConfiguredModels())
}

func TestQueueAndResult(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	require.NoError(t, f.assistant.QueueReview(ctx, "aaaa111"))
	status, err := f.assistant.ReviewResult(ctx, "aaaa111")
	require.NoError(t, err)
	assert.Equal(t, ReviewStatus{Hash: "aaaa111", Queued: true}, status)

	require.NoError(t, f.reviews.SaveResult(ctx, "aaaa111", "done"))
	status, err = f.assistant.ReviewResult(ctx, "aaaa111")
	require.NoError(t, err)
	assert.Equal(t, ReviewStatus{Hash: "aaaa111", Done: true, Review: "done"}, status)

	assert.True(t, core.IsKind(f.assistant.QueueReview(ctx, "../x"), core.KindValidation))

	noStore := newFixture(t, func(o *Options) { o.Reviews = nil })
	assert.True(t, core.IsKind(noStore.assistant.QueueReview(ctx, "aaaa111"), core.KindConfig))
}
