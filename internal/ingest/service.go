package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DevNectorFoods/Email-Automation/internal/categorize"
	"github.com/DevNectorFoods/Email-Automation/internal/identity"
	"github.com/DevNectorFoods/Email-Automation/internal/model"
	"github.com/DevNectorFoods/Email-Automation/internal/repository"
	"github.com/DevNectorFoods/Email-Automation/pkg/metrics"
	"github.com/DevNectorFoods/Email-Automation/pkg/secrets"
)

// EmailStore is the persistence contract the pipeline writes through.
type EmailStore interface {
	FindExisting(ctx context.Context, accountEmail, messageID, contentHash string) (string, bool, error)
	Upsert(ctx context.Context, e *model.Email, isNew bool) error
	ListReadState(ctx context.Context, accountEmail string) ([]repository.ReadState, error)
	UpdateReadStatus(ctx context.Context, id string, isRead bool) error
}

// MailFetcher is the protocol client contract, one session per call.
type MailFetcher interface {
	Stream(ctx context.Context, account model.MailAccount, limit int) ([]*model.Email, error)
	TestConnection(ctx context.Context, account model.MailAccount) error
	ReadFlags(ctx context.Context, account model.MailAccount, uids []uint32) (map[uint32]bool, error)
}

// Guard suppresses duplicate pipeline work across concurrent passes.
type Guard interface {
	AcquireOnce(ctx context.Context, accountEmail, verificationHash string) bool
}

type ingestOutcome int

const (
	outcomeNew ingestOutcome = iota
	outcomeUpdated
	outcomeDuplicate
)

// Service runs the per-account pipeline: fetch, decode, resolve identity,
// categorize, persist. Nothing in here aborts a pass; per-message failures
// are counted and the account keeps going.
type Service struct {
	fetcher  MailFetcher
	emails   EmailStore
	resolver *identity.Resolver
	strategy categorize.Strategy
	guard    Guard
	box      *secrets.Box
	logger   *zap.Logger
}

func NewService(
	fetcher MailFetcher,
	emails EmailStore,
	resolver *identity.Resolver,
	strategy categorize.Strategy,
	guard Guard,
	box *secrets.Box,
	logger *zap.Logger,
) *Service {
	return &Service{
		fetcher:  fetcher,
		emails:   emails,
		resolver: resolver,
		strategy: strategy,
		guard:    guard,
		box:      box,
		logger:   logger,
	}
}

// IngestAccount runs one account's full pipeline and returns its counts.
// The returned error is account-level: credentials, dial, auth or select
// failed and nothing was fetched. Message-level failures only land in
// AccountStats.Errors.
func (s *Service) IngestAccount(ctx context.Context, account model.MailAccount, limit int) (AccountStats, error) {
	var stats AccountStats

	plain, err := s.box.Open(account.Password)
	if err != nil {
		return stats, fmt.Errorf("open sealed credentials: %w", err)
	}
	account.Password = plain

	start := time.Now()
	candidates, err := s.fetcher.Stream(ctx, account, limit)
	if err != nil {
		metrics.RecordAccountFetchDuration("error", time.Since(start))
		return stats, err
	}
	metrics.RecordAccountFetchDuration("success", time.Since(start))

	stats.Fetched = len(candidates)

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		outcome, err := s.ingestOne(ctx, candidate)
		if err != nil {
			stats.Errors = append(stats.Errors,
				fmt.Sprintf("%s uid %d: %v", candidate.AccountEmail, candidate.UID, err))
			metrics.IncrementEmailIngested("error")
			s.logger.Error("邮件入库失败，跳过这封继续",
				zap.String("account", candidate.AccountEmail),
				zap.Uint32("uid", candidate.UID),
				zap.Error(err),
			)
		} else {
			switch outcome {
			case outcomeNew:
				stats.New++
				metrics.IncrementEmailIngested("new")
			case outcomeUpdated:
				stats.Updated++
				metrics.IncrementEmailIngested("updated")
			case outcomeDuplicate:
				stats.Duplicates++
				metrics.IncrementEmailIngested("duplicate")
			}
		}

		if candidate.UID > stats.LastUID {
			stats.LastUID = candidate.UID
		}
	}

	return stats, nil
}

// ingestOne takes a decoded candidate through identity, dedup, category and
// persistence.
func (s *Service) ingestOne(ctx context.Context, e *model.Email) (ingestOutcome, error) {
	res := s.resolver.Resolve(ctx, e)

	// 只有新邮件走 SETNX 闸，更新已有记录不能被挡掉
	if res.IsNew && !s.guard.AcquireOnce(ctx, e.AccountEmail, e.VerificationHash) {
		return outcomeDuplicate, nil
	}

	categorize.Apply(s.strategy, e)
	metrics.IncrementCategorized(e.MainCategory)

	dbStart := time.Now()
	err := s.emails.Upsert(ctx, e, res.IsNew)
	metrics.RecordDBQueryDuration("upsert", "emails", time.Since(dbStart))
	if err != nil {
		return 0, err
	}

	if res.IsNew {
		return outcomeNew, nil
	}
	return outcomeUpdated, nil
}

// SyncReadStatus reconciles the stored read flag of every message of one
// account against the server's current flags. Bodies are never re-fetched
// and only is_read changes; running it twice is a no-op the second time.
// Returns how many flags were flipped.
func (s *Service) SyncReadStatus(ctx context.Context, account model.MailAccount) (int, error) {
	plain, err := s.box.Open(account.Password)
	if err != nil {
		return 0, fmt.Errorf("open sealed credentials: %w", err)
	}
	account.Password = plain

	states, err := s.emails.ListReadState(ctx, account.Email)
	if err != nil {
		return 0, err
	}
	if len(states) == 0 {
		return 0, nil
	}

	uids := make([]uint32, 0, len(states))
	for _, st := range states {
		uids = append(uids, st.UID)
	}

	seen, err := s.fetcher.ReadFlags(ctx, account, uids)
	if err != nil {
		return 0, err
	}

	flipped := 0
	for _, st := range states {
		current, ok := seen[st.UID]
		if !ok || current == st.IsRead {
			continue
		}
		if err := s.emails.UpdateReadStatus(ctx, st.ID, current); err != nil {
			s.logger.Warn("read flag update failed",
				zap.String("account", account.Email),
				zap.String("email_id", st.ID),
				zap.Error(err),
			)
			continue
		}
		flipped++
	}
	return flipped, nil
}

// ValidateAccount checks the credentials of a not-yet-sealed account by
// opening and closing one session against its inbox.
func (s *Service) ValidateAccount(ctx context.Context, account model.MailAccount) error {
	return s.fetcher.TestConnection(ctx, account)
}
