// Package gitctx reads commit metadata and diffs from a local git checkout.
package gitctx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/hupe1980/reviewmesh/core"
)

// DefaultContextLines is the number of unified diff context lines.
const DefaultContextLines = 10

const (
	fieldSep  = "\x1f"
	headerEnd = "\x1e"
)

// showFormat prints hash, author, date, subject and body followed by the diff.
var showFormat = "--format=%H" + fieldSep + "%an <%aE>" + fieldSep + "%ad" + fieldSep + "%s" + fieldSep + "%b" + headerEnd

// Options configures a Repository.
type Options struct {
	// ContextLines is passed to git as -U<n>.
	ContextLines int
	// GitBinary defaults to "git".
	GitBinary string
}

// Repository resolves commits of the checkout at Dir.
type Repository struct {
	dir  string
	opts Options
}

var _ core.CommitSource = (*Repository)(nil)

// New creates a Repository for the checkout at dir.
func New(dir string, optFns ...func(o *Options)) *Repository {
	opts := Options{
		ContextLines: DefaultContextLines,
		GitBinary:    "git",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ContextLines < 0 {
		opts.ContextLines = DefaultContextLines
	}
	return &Repository{dir: dir, opts: opts}
}

// Dir returns the checkout directory.
func (r *Repository) Dir() string { return r.dir }

// Check verifies that Dir is a git work tree.
func (r *Repository) Check(ctx context.Context) error {
	if _, err := r.git(ctx, "rev-parse", "--git-dir"); err != nil {
		return core.NewConfigError("%s is not a git repository: %v", r.dir, err)
	}
	return nil
}

// GetCommit returns the commit named by hash. found is false when the
// repository does not contain it.
func (r *Repository) GetCommit(ctx context.Context, hash string) (core.CommitRecord, bool, error) {
	if !core.IsCommitHash(hash) {
		return core.CommitRecord{}, false, core.NewValidationError("invalid commit hash %q", hash)
	}

	if _, err := r.git(ctx, "cat-file", "-e", hash+"^{commit}"); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return core.CommitRecord{}, false, nil
		}
		return core.CommitRecord{}, false, err
	}

	out, err := r.git(ctx, "show", "--no-color", "--no-renames", "--date=iso",
		"-U"+strconv.Itoa(r.opts.ContextLines), showFormat, hash)
	if err != nil {
		return core.CommitRecord{}, false, err
	}

	c, err := ParseShow(out)
	if err != nil {
		return core.CommitRecord{}, false, err
	}
	return c, true, nil
}

// ParseShow parses the output of git show with the package's format string.
func ParseShow(out string) (core.CommitRecord, error) {
	header, diff, ok := strings.Cut(out, headerEnd)
	if !ok {
		return core.CommitRecord{}, fmt.Errorf("unexpected git show output")
	}
	fields := strings.SplitN(header, fieldSep, 5)
	if len(fields) != 5 {
		return core.CommitRecord{}, fmt.Errorf("unexpected git show header: %d fields", len(fields))
	}
	return core.CommitRecord{
		Hash:    strings.TrimSpace(fields[0]),
		Author:  fields[1],
		Date:    fields[2],
		Subject: fields[3],
		Body:    strings.TrimRight(fields[4], "\n"),
		Diff:    strings.Trim(diff, "\n"),
	}, nil
}

func (r *Repository) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.opts.GitBinary, append([]string{"-C", r.dir}, args...)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return string(out), fmt.Errorf("git %s: %w: %s", args[0], err, msg)
		}
		return string(out), fmt.Errorf("git %s: %w", args[0], err)
	}
	return string(out), nil
}
