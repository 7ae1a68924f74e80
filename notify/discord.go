// Package notify posts finished code reviews to chat channels.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/reviewmesh/core"
	"github.com/hupe1980/reviewmesh/logging"
)

// Notifier announces a finished review.
type Notifier interface {
	NotifyReview(ctx context.Context, commit core.CommitRecord, review string) error
}

// Nop discards notifications.
type Nop struct{}

// NotifyReview implements Notifier.
func (Nop) NotifyReview(context.Context, core.CommitRecord, string) error { return nil }

// MaxMessageLength is the Discord limit for message content.
const MaxMessageLength = 2000

// DiscordOptions configures a Discord notifier.
type DiscordOptions struct {
	// AuthorIDs maps author email addresses to Discord user ids.
	AuthorIDs  map[string]string
	HTTPClient *http.Client
	// MaxRetries bounds retries on rate limiting.
	MaxRetries int
	Logger     logging.Logger
}

// Discord posts reviews to a webhook.
type Discord struct {
	url  string
	opts DiscordOptions
}

var _ Notifier = (*Discord)(nil)

// NewDiscord creates a notifier for the webhook url.
func NewDiscord(url string, optFns ...func(o *DiscordOptions)) *Discord {
	opts := DiscordOptions{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		MaxRetries: 3,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Discord{url: url, opts: opts}
}

// AuthorEmail extracts the address of a "Name <email>" author string.
func AuthorEmail(author string) (string, bool) {
	_, rest, ok := strings.Cut(author, "<")
	if !ok {
		return "", false
	}
	email, _, _ := strings.Cut(rest, ">")
	return email, email != ""
}

// FormatReview builds the message posted for a review.
func FormatReview(commit core.CommitRecord, review string, authorIDs map[string]string) string {
	short := commit.Hash
	if len(short) > 7 {
		short = short[:7]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Code Review for commit %s**\n", short)
	if id := authorIDs[emailOf(commit.Author)]; id != "" {
		fmt.Fprintf(&b, "Author: <@%s>\n", id)
	} else {
		fmt.Fprintf(&b, "Author: %s\n", commit.Author)
	}

	head := b.String()
	const open, closing = "```\n", "\n```"
	if room := MaxMessageLength - len([]rune(head)) - len(open) - len(closing); len([]rune(review)) > room {
		review = string([]rune(review)[:max(room-1, 0)]) + "…"
	}
	return head + open + review + closing
}

func emailOf(author string) string {
	email, _ := AuthorEmail(author)
	return email
}

type webhookPayload struct {
	Content string `json:"content"`
}

type rateLimited struct {
	RetryAfter float64 `json:"retry_after"`
}

// NotifyReview implements Notifier.
func (d *Discord) NotifyReview(ctx context.Context, commit core.CommitRecord, review string) error {
	body, err := json.Marshal(webhookPayload{Content: FormatReview(commit, review, d.opts.AuthorIDs)})
	if err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		wait, err := d.post(ctx, body)
		if err == nil {
			d.opts.Logger.Info("review posted", "hash", commit.Hash, "channel", "discord")
			return nil
		}
		if wait <= 0 || attempt >= d.opts.MaxRetries {
			return err
		}
		d.opts.Logger.Warn("discord rate limited", "retry_after", wait.String(), "attempt", attempt+1)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// post sends one request. A positive wait is returned when the request was
// rate limited.
func (d *Discord) post(ctx context.Context, body []byte) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.opts.HTTPClient.Do(req)
	if err != nil {
		return 0, core.NewTransportError("discord", err)
	}
	defer resp.Body.Close()
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode == http.StatusTooManyRequests {
		return retryAfter(resp.Header.Get("Retry-After"), payload), fmt.Errorf("discord webhook: rate limited")
	}
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("discord webhook: status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return 0, nil
}

func retryAfter(header string, payload []byte) time.Duration {
	var rl rateLimited
	if json.Unmarshal(payload, &rl) == nil && rl.RetryAfter > 0 {
		return time.Duration(rl.RetryAfter * float64(time.Second))
	}
	if secs, err := strconv.ParseFloat(header, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return time.Second
}
