package prompt

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/hupe1980/reviewmesh/core"
)

// DefaultAnalysisPrompt is used when neither a tracker specific nor a default prompt is configured.
const DefaultAnalysisPrompt = "Check how this ticket is worded and give useful feedback as to how it could be improved"

// Sampling defaults of analysis and review completions, applied when the
// model entry leaves them unset.
const (
	DefaultTemperature     = 0.2
	DefaultMaxOutputTokens = 2000
)

// trackerPromptKeys maps tracker ids to the key of their analysis prompt.
var trackerPromptKeys = map[int]string{
	core.TrackerBug:      "bug",
	core.TrackerFeature:  "feature",
	core.TrackerSupport:  "support",
	core.TrackerLongTerm: "longterm",
	core.TrackerTest:     "unittests",
}

// TrackerPromptKey returns the prompt key of a tracker id.
func TrackerPromptKey(trackerID int) (string, bool) {
	k, ok := trackerPromptKeys[trackerID]
	return k, ok
}

// AnalysisPrompts holds the configured ticket analysis prompts.
type AnalysisPrompts struct {
	Default string `yaml:"default" json:"default"`
	// ByTracker is keyed by bug, feature, support, longterm and unittests.
	ByTracker map[string]string `yaml:"by_tracker" json:"by_tracker"`
}

// Select returns the prompt for a tracker id (0 for none), falling back to
// the default prompt and then DefaultAnalysisPrompt.
func (p AnalysisPrompts) Select(trackerID int) string {
	if key, ok := TrackerPromptKey(trackerID); ok {
		if s := strings.TrimSpace(p.ByTracker[key]); s != "" {
			return p.ByTracker[key]
		}
	}
	if strings.TrimSpace(p.Default) != "" {
		return p.Default
	}
	return DefaultAnalysisPrompt
}

// BuildAnalysis lays out the analysis request for a ticket.
func BuildAnalysis(instruction, subject, description string) string {
	return fmt.Sprintf("%s\n\nSubject: %s\nContent: %s\n\nAnalysis:", instruction, subject, description)
}

// StripMarkdownFence removes a ```markdown ... ``` wrapper models sometimes put
// around their whole answer. Inner code fences are kept.
func StripMarkdownFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```markdown") {
		return s
	}
	t = strings.TrimPrefix(t, "```markdown")
	t = strings.TrimSuffix(strings.TrimRight(t, " \t\r\n"), "```")
	return strings.TrimSpace(t)
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// MarkdownToHTML renders CommonMark (with GitHub extensions) to HTML.
func MarkdownToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}
