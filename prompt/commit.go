// Package prompt assembles the prompts sent for commit reviews and ticket
// analysis.
package prompt

import (
	"regexp"
	"strings"

	"github.com/hupe1980/reviewmesh/core"
)

const (
	commitOpen  = "<commit>"
	commitClose = "</commit>"
)

// DefaultReviewTemplate is used when no stored template exists.
const DefaultReviewTemplate = `Perform a GIT code review.

<commit>Commit {hash} from {author}
Date: {date}

Code Diff:
{diff}

Commit Message:
{subject}
{body}
</commit>`

// Rendered is a filled commit template.
type Rendered struct {
	Prompt string `json:"prompt"`
	// Diff is every commit's diff joined by a blank line, for display.
	Diff string `json:"diff"`
}

// RenderCommits fills the <commit>...</commit> block of tmpl once per commit,
// in order, in place of the block. The span is taken between the first opening
// and the first closing tag; placeholders are {hash} {author} {date} {subject}
// {body} {diff}. Substitution happens in a single pass, so placeholder text
// inside commit data is never expanded again. No tag survives in the output.
func RenderCommits(tmpl string, commits []core.CommitRecord) (Rendered, error) {
	if len(commits) == 0 {
		return Rendered{}, core.NewValidationError("no commits to review")
	}

	open := strings.Index(tmpl, commitOpen)
	if open < 0 {
		return Rendered{}, core.NewTemplateError("no commit block")
	}
	rel := strings.Index(tmpl[open+len(commitOpen):], commitClose)
	if rel < 0 {
		return Rendered{}, core.NewTemplateError("no commit block")
	}
	blockStart := open + len(commitOpen)
	blockEnd := blockStart + rel
	block := tmpl[blockStart:blockEnd]

	var b strings.Builder
	b.WriteString(tmpl[:open])
	diffs := make([]string, 0, len(commits))
	for _, c := range commits {
		b.WriteString(fillCommit(block, c))
		diffs = append(diffs, c.Diff)
	}
	b.WriteString(tmpl[blockEnd+len(commitClose):])

	return Rendered{Prompt: b.String(), Diff: strings.Join(diffs, "\n\n")}, nil
}

func fillCommit(block string, c core.CommitRecord) string {
	return strings.NewReplacer(
		"{hash}", c.Hash,
		"{author}", c.Author,
		"{date}", c.Date,
		"{subject}", c.Subject,
		"{body}", c.Body,
		"{diff}", c.Diff,
	).Replace(block)
}

// SelectTemplate picks the multi-commit template for more than one commit when
// one is stored, else the single template, else DefaultReviewTemplate.
func SelectTemplate(single, multi string, commits int) string {
	if commits > 1 && strings.TrimSpace(multi) != "" {
		return multi
	}
	if strings.TrimSpace(single) != "" {
		return single
	}
	return DefaultReviewTemplate
}

var hashSep = regexp.MustCompile(`[\s,]+`)

// ParseHashList splits a comma or whitespace separated list of commit hashes.
func ParseHashList(s string) ([]string, error) {
	var hashes []string
	for _, h := range hashSep.Split(strings.TrimSpace(s), -1) {
		if h == "" {
			continue
		}
		if !core.IsCommitHash(h) {
			return nil, core.NewValidationError("invalid commit hash %q", h)
		}
		hashes = append(hashes, h)
	}
	if len(hashes) == 0 {
		return nil, core.NewValidationError("no commit hashes given")
	}
	return hashes, nil
}
