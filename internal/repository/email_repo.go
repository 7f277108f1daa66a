package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	mqcontracts "github.com/DevNectorFoods/Email-Automation/contracts/mq"
	"github.com/DevNectorFoods/Email-Automation/internal/model"
	"github.com/DevNectorFoods/Email-Automation/pkg/outbox"
)

type EmailRepository struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
}

func NewEmailRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository) *EmailRepository {
	return &EmailRepository{db: db, outbox: outboxRepo}
}

// FindExisting looks up a stored message for dedup. The protocol message id
// is the primary key when the sender provided one; the content hash covers
// messages without one. Lookup is scoped to a single account.
func (r *EmailRepository) FindExisting(ctx context.Context, accountEmail, messageID, contentHash string) (string, bool, error) {
	var (
		query string
		args  []any
	)
	if messageID != "" {
		query = `
        SELECT id FROM emails
        WHERE account_email = $1 AND (message_id = $2 OR content_hash = $3)
        ORDER BY created_at
        LIMIT 1
    `
		args = []any{accountEmail, messageID, contentHash}
	} else {
		query = `
        SELECT id FROM emails
        WHERE account_email = $1 AND content_hash = $2
        ORDER BY created_at
        LIMIT 1
    `
		args = []any{accountEmail, contentHash}
	}

	var id string
	err := r.db.QueryRow(ctx, query, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// Upsert inserts the message or refreshes an existing row with what a refetch
// may legitimately change: the session cursor, the server read flag, the
// category fields and the identity hashes. Subject, sender, date, body, raw
// payload, tags and the user-action flags are never overwritten on update.
// 新邮件的 email.ingested 事件和写库在同一个事务里
func (r *EmailRepository) Upsert(ctx context.Context, e *model.Email, isNew bool) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := r.UpsertTx(ctx, tx, e); err != nil {
		return err
	}

	if isNew {
		payload := mqcontracts.EmailIngestedPayload{
			EmailID:      e.ID,
			AccountEmail: e.AccountEmail,
			Subject:      e.Subject,
			Sender:       e.Sender,
			MainCategory: e.MainCategory,
			SubCategory:  e.SubCategory,
			ReceivedAt:   e.Date,
		}
		if err := outbox.InsertEventInTx(ctx, tx, r.outbox, "email", e.ID, mqcontracts.RoutingKeyEmailIngested, payload); err != nil {
			return fmt.Errorf("failed to insert outbox event: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// UpsertTx is Upsert without the transaction management, for callers that
// compose a larger transaction.
func (r *EmailRepository) UpsertTx(ctx context.Context, tx pgx.Tx, e *model.Email) error {
	query := `
        INSERT INTO emails (id, account_email, uid, subject, sender, date, body,
                            raw_data, is_read, is_starred, is_archived, is_spam,
                            is_trashed, folder, tags, metadata, category,
                            main_category, sub_category, content_hash,
                            verification_hash, message_id, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
                $15, $16, $17, $18, $19, $20, $21, $22, $23, NOW())
        ON CONFLICT (id) DO UPDATE SET
            uid               = EXCLUDED.uid,
            is_read           = EXCLUDED.is_read,
            category          = EXCLUDED.category,
            main_category     = EXCLUDED.main_category,
            sub_category      = EXCLUDED.sub_category,
            content_hash      = EXCLUDED.content_hash,
            verification_hash = EXCLUDED.verification_hash,
            message_id        = EXCLUDED.message_id,
            updated_at        = NOW()
    `
	_, err := tx.Exec(ctx, query,
		e.ID,
		e.AccountEmail,
		e.UID,
		e.Subject,
		e.Sender,
		e.Date,
		e.Body,
		e.RawData,
		e.IsRead,
		e.IsStarred,
		e.IsArchived,
		e.IsSpam,
		e.IsTrashed,
		e.Folder,
		e.Tags,
		e.Metadata,
		e.Category,
		e.MainCategory,
		e.SubCategory,
		e.ContentHash,
		e.VerificationHash,
		e.MessageID,
		e.CreatedAt,
	)
	return err
}

// ReadState is the slice of a stored message that read-status sync needs.
type ReadState struct {
	ID     string
	UID    uint32
	IsRead bool
}

// ListReadState returns id, session cursor and read flag for every stored
// message of one account that still has a UID to check against the server.
func (r *EmailRepository) ListReadState(ctx context.Context, accountEmail string) ([]ReadState, error) {
	query := `
        SELECT id, uid, is_read
        FROM emails
        WHERE account_email = $1 AND uid <> 0
        ORDER BY uid
    `
	rows, err := r.db.Query(ctx, query, accountEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	states := []ReadState{}
	for rows.Next() {
		var s ReadState
		if err := rows.Scan(&s.ID, &s.UID, &s.IsRead); err != nil {
			return nil, err
		}
		states = append(states, s)
	}
	return states, rows.Err()
}

// UpdateReadStatus flips only the local read flag.
func (r *EmailRepository) UpdateReadStatus(ctx context.Context, id string, isRead bool) error {
	query := `
        UPDATE emails
        SET is_read = $1, updated_at = NOW()
        WHERE id = $2
    `
	_, err := r.db.Exec(ctx, query, isRead, id)
	return err
}

// ListFilter narrows List to the query parameters the API exposes.
type ListFilter struct {
	AccountEmail string
	Category     string
	MainCategory string
	SubCategory  string
	IsRead       *bool
	Search       string
	Page         int
	PerPage      int
}

// Normalized clamps paging to what one response may carry.
func (f ListFilter) Normalized() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = 20
	}
	if f.PerPage > 100 {
		f.PerPage = 100
	}
	return f
}

// where builds the filter clause shared by the page and count queries.
func (f ListFilter) where() (string, []any) {
	conds := []string{}
	args := []any{}

	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.AccountEmail != "" {
		add("account_email = $%d", f.AccountEmail)
	}
	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	if f.MainCategory != "" {
		add("main_category = $%d", f.MainCategory)
	}
	if f.SubCategory != "" {
		add("sub_category = $%d", f.SubCategory)
	}
	if f.IsRead != nil {
		add("is_read = $%d", *f.IsRead)
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(subject ILIKE $%d OR sender ILIKE $%d OR body ILIKE $%d)", n, n, n))
	}

	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// List returns one page of stored mail plus the unpaged total.
func (r *EmailRepository) List(ctx context.Context, filter ListFilter) ([]model.EmailSummary, int, error) {
	f := filter.Normalized()
	where, args := f.where()

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM emails %s`, where)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
        SELECT id, account_email, uid, subject, sender, date, body,
               is_read, category, main_category, sub_category, message_id, created_at
        FROM emails
        %s
        ORDER BY date DESC, created_at DESC
        LIMIT $%d OFFSET $%d
    `, where, len(args)+1, len(args)+2)
	args = append(args, f.PerPage, (f.Page-1)*f.PerPage)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	emails := []model.EmailSummary{}
	for rows.Next() {
		var e model.EmailSummary
		if err := rows.Scan(
			&e.ID,
			&e.AccountEmail,
			&e.UID,
			&e.Subject,
			&e.Sender,
			&e.Date,
			&e.Body,
			&e.IsRead,
			&e.Category,
			&e.MainCategory,
			&e.SubCategory,
			&e.MessageID,
			&e.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		emails = append(emails, e)
	}
	return emails, total, rows.Err()
}

// Stats aggregates stored mail the way the dashboard reads it.
func (r *EmailRepository) Stats(ctx context.Context) (*model.EmailStats, error) {
	stats := &model.EmailStats{
		ByMainCategory: map[string]int{},
		ByAccount:      map[string]int{},
	}

	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM emails`).Scan(&stats.TotalEmails); err != nil {
		return nil, err
	}
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM mail_accounts WHERE is_active = TRUE`).Scan(&stats.TotalAccounts); err != nil {
		return nil, err
	}
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM emails WHERE is_read = TRUE`).Scan(&stats.ReadEmails); err != nil {
		return nil, err
	}
	stats.UnreadEmails = stats.TotalEmails - stats.ReadEmails

	rows, err := r.db.Query(ctx, `SELECT main_category, COUNT(*) FROM emails GROUP BY main_category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, err
		}
		stats.ByMainCategory[category] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	accountRows, err := r.db.Query(ctx, `SELECT account_email, COUNT(*) FROM emails GROUP BY account_email`)
	if err != nil {
		return nil, err
	}
	defer accountRows.Close()
	for accountRows.Next() {
		var account string
		var count int
		if err := accountRows.Scan(&account, &count); err != nil {
			return nil, err
		}
		stats.ByAccount[account] = count
	}
	if err := accountRows.Err(); err != nil {
		return nil, err
	}

	var last *time.Time
	if err := r.db.QueryRow(ctx, `SELECT MAX(created_at) FROM emails`).Scan(&last); err != nil {
		return nil, err
	}
	stats.LastIngestedAt = last

	return stats, nil
}
