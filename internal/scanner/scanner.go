// Package scanner drives the crawl: it decomposes each logical query into
// time slices, filters hits through the dedup boundary, extracts candidate
// tokens from raw content and classifies them against the validation
// authority.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"patscan/internal/github"
	"patscan/internal/middleware"
)

type SearchClient interface {
	Search(ctx context.Context, query string) (*github.SearchResult, error)
	FileContent(ctx context.Context, item github.SearchItem) (string, error)
}

type CheckpointStore interface {
	ShouldSkip(item github.SearchItem) (bool, string)
	MarkSeen(sha string)
	QueryDone(query string) bool
	MarkQueryDone(query string)
	ResetCycle()
	UpdateScanTime()
	Save() error
}

type TokenValidator interface {
	Validate(ctx context.Context, token string) Validation
}

// Finding is one classified candidate with its origin.
type Finding struct {
	Token    string
	Login    string
	Outcome  Outcome
	Cause    string
	RepoName string
	FilePath string
	FileURL  string
}

// FindingSink receives every classified candidate. Implementations decide
// persistence per outcome; a sink error never aborts the batch.
type FindingSink interface {
	Record(ctx context.Context, f Finding) error
}

// Notifier accumulates confirmed findings for periodic summary delivery.
type Notifier interface {
	QueueValid(token, login, fileURL string)
	FlushDue(ctx context.Context)
}

type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type Config struct {
	LookbackDays   int
	SliceWidthDays int
	ExcludeDork    string
	SliceDelay     time.Duration
	CycleSleep     time.Duration
	RecoverySleep  time.Duration
}

type Scanner struct {
	client    SearchClient
	store     CheckpointStore
	validator TokenValidator
	sink      FindingSink
	notifier  Notifier
	clock     Clock
	queries   []string
	cfg       Config
}

func New(client SearchClient, store CheckpointStore, validator TokenValidator, sink FindingSink, notifier Notifier, clk Clock, queries []string, cfg Config) *Scanner {
	if cfg.RecoverySleep <= 0 {
		cfg.RecoverySleep = 30 * time.Second
	}
	return &Scanner{
		client:    client,
		store:     store,
		validator: validator,
		sink:      sink,
		notifier:  notifier,
		clock:     clk,
		queries:   queries,
		cfg:       cfg,
	}
}

// Run repeats crawl cycles until the context is cancelled. A failed cycle is
// logged and retried after a recovery pause; nothing short of cancellation
// stops the crawl.
func (s *Scanner) Run(ctx context.Context) error {
	cycle := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		cycle++

		cycleCtx := middleware.WithCorrelationID(ctx, uuid.New().String())
		slog.InfoContext(cycleCtx, "crawl cycle starting", "cycle", cycle, "queries", len(s.queries))

		if err := s.RunCycle(cycleCtx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			slog.ErrorContext(cycleCtx, "crawl cycle failed, recovering", "cycle", cycle, "error", err)
			s.clock.Sleep(s.cfg.RecoverySleep)
			continue
		}

		slog.InfoContext(cycleCtx, "crawl cycle complete", "cycle", cycle)
		s.clock.Sleep(s.cfg.CycleSleep)
	}
}

// RunCycle makes one full pass over all logical queries. Per-cycle query
// progress resets; the dedup boundary and last-scan time never do.
func (s *Scanner) RunCycle(ctx context.Context) error {
	s.store.ResetCycle()

	for _, query := range s.queries {
		if s.store.QueryDone(query) {
			continue
		}
		if err := s.runQuery(ctx, query); err != nil {
			return err
		}

		s.store.MarkQueryDone(query)
		if err := s.store.Save(); err != nil {
			slog.WarnContext(ctx, "checkpoint save failed, continuing in memory", "error", err)
		}

		s.notifier.FlushDue(ctx)
	}

	s.store.UpdateScanTime()
	if err := s.store.Save(); err != nil {
		slog.WarnContext(ctx, "checkpoint save failed after cycle", "error", err)
	}
	return nil
}

// runQuery walks the query's time slices newest-first, one bounded search
// per slice. This is what defeats the service's fixed result-window cap: a
// narrow enough date range keeps each call's result count retrievable.
func (s *Scanner) runQuery(ctx context.Context, query string) error {
	slices := Slices(s.clock.Now(), s.cfg.LookbackDays, s.cfg.SliceWidthDays)

	for _, slice := range slices {
		if err := ctx.Err(); err != nil {
			return err
		}

		full := fmt.Sprintf("%s %s %s", query, s.cfg.ExcludeDork, slice.DateFilter())
		slog.InfoContext(ctx, "scanning slice", "query", query, "range", slice.DateFilter())

		res, err := s.client.Search(ctx, full)
		if err != nil {
			// Partial items were already returned; a hard error here means
			// cancellation mid-search.
			return err
		}

		skipped := 0
		for _, item := range res.Items {
			if skip, reason := s.store.ShouldSkip(item); skip {
				skipped++
				slog.DebugContext(ctx, "hit skipped", "sha", item.SHA, "reason", reason)
				continue
			}

			s.processItem(ctx, item)

			s.store.MarkSeen(item.SHA)
			if err := s.store.Save(); err != nil {
				slog.WarnContext(ctx, "checkpoint save failed, continuing in memory", "error", err)
			}
		}
		if skipped > 0 {
			slog.InfoContext(ctx, "slice filtered", "skipped", skipped, "processed", len(res.Items)-skipped)
		}

		// Courtesy pacing between slices, independent of throttle recovery.
		s.clock.Sleep(s.cfg.SliceDelay)
	}
	return nil
}

// processItem turns one hit into classified findings. Every failure mode
// degrades to a log line: an unreadable file or a misbehaving validation
// call must never take down the crawl flow.
func (s *Scanner) processItem(ctx context.Context, item github.SearchItem) {
	content, err := s.client.FileContent(ctx, item)
	if err != nil {
		slog.WarnContext(ctx, "content fetch failed, skipping hit", "sha", item.SHA, "path", item.Path, "error", err)
		return
	}

	tokens := Extract(content)
	if len(tokens) == 0 {
		return
	}

	for _, token := range tokens {
		result := s.validator.Validate(ctx, token)

		finding := Finding{
			Token:    token,
			Login:    result.Login,
			Outcome:  result.Outcome,
			Cause:    result.Cause,
			RepoName: item.Repository.FullName,
			FilePath: item.Path,
			FileURL:  item.HTMLURL,
		}

		switch result.Outcome {
		case OutcomeValid:
			slog.InfoContext(ctx, "valid token found", "login", result.Login, "repo", item.Repository.FullName, "path", item.Path)
			s.notifier.QueueValid(token, result.Login, item.HTMLURL)
		case OutcomeRateLimited:
			slog.InfoContext(ctx, "token validation rate limited, keeping candidate", "repo", item.Repository.FullName)
		case OutcomeInvalid:
			slog.DebugContext(ctx, "invalid token", "repo", item.Repository.FullName)
		case OutcomeError:
			slog.WarnContext(ctx, "token validation errored", "cause", result.Cause, "repo", item.Repository.FullName)
		}

		if err := s.sink.Record(ctx, finding); err != nil {
			slog.WarnContext(ctx, "finding record failed", "outcome", result.Outcome.String(), "error", err)
		}
	}
}
