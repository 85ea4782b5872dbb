package findings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"patscan/internal/scanner"
)

type Repository interface {
	Save(ctx context.Context, f *Finding) error
}

// SyncQueue is the checkpoint's durable pending-delivery sets.
type SyncQueue interface {
	QueueForBalancer(keys []string)
	QueueForGPTLoad(keys []string)
}

// Publisher is satisfied by *nsq.Producer.
type Publisher interface {
	Publish(topic string, body []byte) error
}

type ServiceConfig struct {
	BalancerEnabled bool
	GPTLoadEnabled  bool
	ValidTopic      string
}

// Service persists classified findings. Valid and rate-limited findings are
// written to distinct sinks; only valid ones are queued for outbound sync
// and published downstream. Invalid and errored candidates are dropped;
// the scanner already logged them.
type Service struct {
	repo      Repository
	writer    *Writer
	queue     SyncQueue
	publisher Publisher
	cfg       ServiceConfig
	now       func() time.Time
}

func NewService(repo Repository, writer *Writer, queue SyncQueue, publisher Publisher, cfg ServiceConfig) *Service {
	return &Service{
		repo:      repo,
		writer:    writer,
		queue:     queue,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *Service) Record(ctx context.Context, sf scanner.Finding) error {
	switch sf.Outcome {
	case scanner.OutcomeValid, scanner.OutcomeRateLimited:
	default:
		return nil
	}

	f := &Finding{
		ID:        uuid.New().String(),
		Token:     sf.Token,
		Login:     sf.Login,
		Outcome:   sf.Outcome.String(),
		Cause:     sf.Cause,
		RepoName:  sf.RepoName,
		FilePath:  sf.FilePath,
		FileURL:   sf.FileURL,
		CreatedAt: s.now(),
	}

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if sf.Outcome == scanner.OutcomeValid {
		keep(s.writer.AppendValid(f))

		if s.cfg.BalancerEnabled {
			s.queue.QueueForBalancer([]string{f.Token})
		}
		if s.cfg.GPTLoadEnabled {
			s.queue.QueueForGPTLoad([]string{f.Token})
		}

		if s.publisher != nil {
			body, err := json.Marshal(f)
			if err == nil {
				err = s.publisher.Publish(s.cfg.ValidTopic, body)
			}
			if err != nil {
				// Downstream feed is best-effort; the durable queue above is
				// what guarantees delivery.
				slog.WarnContext(ctx, "finding publish failed", "topic", s.cfg.ValidTopic, "error", err)
			}
		}
	} else {
		keep(s.writer.AppendRateLimited(f))
	}

	if s.repo != nil {
		if err := s.repo.Save(ctx, f); err != nil {
			keep(fmt.Errorf("save finding: %w", err))
		}
	}
	return firstErr
}
