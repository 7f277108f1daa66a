package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	mqcontracts "github.com/DevNectorFoods/Email-Automation/contracts/mq"
	"github.com/DevNectorFoods/Email-Automation/internal/model"
	"github.com/DevNectorFoods/Email-Automation/pkg/circuitbreaker"
	"github.com/DevNectorFoods/Email-Automation/pkg/logger"
	"github.com/DevNectorFoods/Email-Automation/pkg/metrics"
	"github.com/DevNectorFoods/Email-Automation/pkg/trace"
	"github.com/DevNectorFoods/Email-Automation/pkg/util"
)

// AccountStore is the configuration contract the scheduler reads accounts
// from and writes checkpoints back to.
type AccountStore interface {
	ListActive(ctx context.Context) ([]model.MailAccount, error)
	FindByEmail(ctx context.Context, email string) (*model.MailAccount, error)
	UpdateLastChecked(ctx context.Context, email string, ts time.Time) error
	UpdateFetchMarker(ctx context.Context, email string, lastUID uint32, ts time.Time) error
}

// EventPublisher publishes pass-completion events, fire and forget.
type EventPublisher interface {
	PublishWithContext(ctx context.Context, routingKey string, payload any) error
}

// SchedulerConfig carries the tunables of the pass loop.
type SchedulerConfig struct {
	Interval   time.Duration
	Workers    int
	FetchLimit int
}

// Scheduler drives full passes over the active accounts: one long-lived
// timer loop plus on-demand passes via FetchNow. Accounts run through a
// bounded worker pool and never abort each other.
type Scheduler struct {
	service   *Service
	accounts  AccountStore
	breakers  *circuitbreaker.BreakerSet
	publisher EventPublisher
	cfg       SchedulerConfig
	logger    *zap.Logger

	mu         sync.Mutex
	running    bool
	lastResult *Result
}

func NewScheduler(
	service *Service,
	accounts AccountStore,
	breakers *circuitbreaker.BreakerSet,
	publisher EventPublisher,
	cfg SchedulerConfig,
	logger *zap.Logger,
) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = 50
	}
	return &Scheduler{
		service:   service,
		accounts:  accounts,
		breakers:  breakers,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run drives scheduled passes until the context is cancelled. One pass runs
// immediately on start, then one per interval. A failed pass is logged and
// the loop waits for the next tick.
func (s *Scheduler) Run(ctx context.Context) {
	s.setRunning(true)
	defer s.setRunning(false)

	s.logger.Info("ingest scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("workers", s.cfg.Workers),
	)

	s.runScheduled(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ingest scheduler stopped")
			return
		case <-ticker.C:
			s.runScheduled(ctx)
		}
	}
}

func (s *Scheduler) runScheduled(ctx context.Context) {
	if _, err := s.RunPass(ctx, TriggerScheduled, TargetAll, s.cfg.FetchLimit); err != nil {
		// 没配账号不算失败，等下一轮
		if errors.Is(err, ErrNoAccounts) {
			s.logger.Info("no active accounts, skipping pass")
			return
		}
		s.logger.Error("scheduled pass failed", zap.Error(err))
	}
}

// FetchNow runs one pass out-of-band. target is an account email or "all";
// limit <= 0 means the configured default.
func (s *Scheduler) FetchNow(ctx context.Context, target string, limit int) (*Result, error) {
	if limit <= 0 {
		limit = s.cfg.FetchLimit
	}
	return s.RunPass(ctx, TriggerManual, target, limit)
}

// RunPass runs one full pass over the targeted accounts and returns the
// aggregate result. Every failure below this point is caught, counted and
// itemized in the result; only having no accounts at all is an error.
func (s *Scheduler) RunPass(ctx context.Context, trigger, target string, limit int) (*Result, error) {
	passID := trace.GeneratePassID()
	ctx = trace.WithContext(ctx, passID)
	log := logger.WithPass(ctx, s.logger).With(zap.String("trigger", trigger))

	targets, err := s.listTargets(ctx, target)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, ErrNoAccounts
	}

	result := &Result{
		PassID:        passID,
		Trigger:       trigger,
		StartedAt:     time.Now(),
		TotalAccounts: len(targets),
		Errors:        []string{},
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for _, account := range targets {
		account := account
		g.Go(func() error {
			stats, synced, err := s.runAccount(gctx, log, account, limit)

			mu.Lock()
			defer mu.Unlock()
			result.TotalFetched += stats.Fetched
			result.NewMessages += stats.New
			result.UpdatedMessages += stats.Updated
			result.DuplicatesSkipped += stats.Duplicates
			result.ReadFlagsSynced += synced
			result.Errors = append(result.Errors, stats.Errors...)
			if err != nil {
				result.FailedAccounts++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", account.Email, err))
			} else {
				result.SuccessfulAccounts++
			}
			// 账号失败只进结果，不让它中断整轮
			return nil
		})
	}
	_ = g.Wait()

	result.CompletedAt = time.Now()
	metrics.RecordIngestPassDuration(trigger, result.CompletedAt.Sub(result.StartedAt))

	s.setLastResult(result)
	s.publishCompleted(ctx, result)

	log.Info("ingest pass finished",
		zap.Int("total_accounts", result.TotalAccounts),
		zap.Int("successful", result.SuccessfulAccounts),
		zap.Int("failed", result.FailedAccounts),
		zap.Int("fetched", result.TotalFetched),
		zap.Int("new", result.NewMessages),
		zap.Int("updated", result.UpdatedMessages),
		zap.Int("duplicates", result.DuplicatesSkipped),
	)
	return result, nil
}

// runAccount wraps one account's pipeline with the circuit breaker and the
// checkpoint writes.
func (s *Scheduler) runAccount(ctx context.Context, log *zap.Logger, account model.MailAccount, limit int) (AccountStats, int, error) {
	if !s.breakers.Allow(account.Email) {
		metrics.IncrementAccountFailure("circuit_open")
		return AccountStats{}, 0, errors.New("circuit open, waiting for cool-down")
	}

	stats, err := s.service.IngestAccount(ctx, account, limit)
	s.breakers.Record(account.Email, err)
	if err != nil {
		_, reason := util.IsRetryableError(err)
		metrics.IncrementAccountFailure(reason)
		log.Error("account ingest failed",
			zap.String("account", account.Email),
			zap.Error(err),
		)
		return stats, 0, err
	}

	// 抓取成功后再同步已读标志，失败不影响本轮结果
	synced, syncErr := s.service.SyncReadStatus(ctx, account)
	if syncErr != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("%s: read sync: %v", account.Email, syncErr))
		log.Warn("read status sync failed",
			zap.String("account", account.Email),
			zap.Error(syncErr),
		)
	}

	now := time.Now()
	if err := s.accounts.UpdateLastChecked(ctx, account.Email, now); err != nil {
		log.Warn("failed to update last_checked",
			zap.String("account", account.Email),
			zap.Error(err),
		)
	}
	if stats.LastUID > 0 {
		if err := s.accounts.UpdateFetchMarker(ctx, account.Email, stats.LastUID, now); err != nil {
			log.Warn("failed to update fetch marker",
				zap.String("account", account.Email),
				zap.Error(err),
			)
		}
	}

	return stats, synced, nil
}

func (s *Scheduler) listTargets(ctx context.Context, target string) ([]model.MailAccount, error) {
	if target == "" || target == TargetAll {
		return s.accounts.ListActive(ctx)
	}

	account, err := s.accounts.FindByEmail(ctx, target)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if !account.IsActive {
		return nil, nil
	}
	return []model.MailAccount{*account}, nil
}

func (s *Scheduler) publishCompleted(ctx context.Context, result *Result) {
	if s.publisher == nil {
		return
	}
	payload := mqcontracts.IngestCompletedPayload{
		PassID:             result.PassID,
		Trigger:            result.Trigger,
		TotalAccounts:      result.TotalAccounts,
		SuccessfulAccounts: result.SuccessfulAccounts,
		FailedAccounts:     result.FailedAccounts,
		TotalEmailsFetched: result.TotalFetched,
		NewMessages:        result.NewMessages,
		CompletedAt:        result.CompletedAt,
	}
	// fire and forget，发布失败只记日志
	if err := s.publisher.PublishWithContext(ctx, mqcontracts.RoutingKeyIngestCompleted, payload); err != nil {
		s.logger.Warn("failed to publish ingest.completed", zap.Error(err))
	}
}

// Status is the scheduler state the HTTP surface exposes.
type Status struct {
	Running         bool    `json:"running"`
	IntervalSeconds int     `json:"interval_seconds"`
	Workers         int     `json:"workers"`
	FetchLimit      int     `json:"fetch_limit"`
	LastResult      *Result `json:"last_result,omitempty"`
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:         s.running,
		IntervalSeconds: int(s.cfg.Interval / time.Second),
		Workers:         s.cfg.Workers,
		FetchLimit:      s.cfg.FetchLimit,
		LastResult:      s.lastResult,
	}
}

func (s *Scheduler) setRunning(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = v
}

func (s *Scheduler) setLastResult(r *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastResult = r
}
