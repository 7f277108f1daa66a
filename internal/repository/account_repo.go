package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DevNectorFoods/Email-Automation/internal/model"
)

type AccountRepository struct {
	db *pgxpool.Pool
}

func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

// ListActive returns every account the scheduler should poll. Passwords come
// back sealed; callers open them right before dialing.
func (r *AccountRepository) ListActive(ctx context.Context) ([]model.MailAccount, error) {
	query := `
        SELECT email, password, imap_server, imap_port, ssl, account_type,
               is_active, last_checked, last_fetched_uid, last_fetched_at, created_at
        FROM mail_accounts
        WHERE is_active = TRUE
        ORDER BY email
    `
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []model.MailAccount{}
	for rows.Next() {
		var a model.MailAccount
		err := rows.Scan(
			&a.Email,
			&a.Password,
			&a.IMAPServer,
			&a.IMAPPort,
			&a.SSL,
			&a.AccountType,
			&a.IsActive,
			&a.LastChecked,
			&a.LastFetchedUID,
			&a.LastFetchedAt,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// List returns every configured account, active or not.
func (r *AccountRepository) List(ctx context.Context) ([]model.MailAccount, error) {
	query := `
        SELECT email, password, imap_server, imap_port, ssl, account_type,
               is_active, last_checked, last_fetched_uid, last_fetched_at, created_at
        FROM mail_accounts
        ORDER BY email
    `
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []model.MailAccount{}
	for rows.Next() {
		var a model.MailAccount
		err := rows.Scan(
			&a.Email,
			&a.Password,
			&a.IMAPServer,
			&a.IMAPPort,
			&a.SSL,
			&a.AccountType,
			&a.IsActive,
			&a.LastChecked,
			&a.LastFetchedUID,
			&a.LastFetchedAt,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// FindByEmail returns one account regardless of its active flag.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*model.MailAccount, error) {
	query := `
        SELECT email, password, imap_server, imap_port, ssl, account_type,
               is_active, last_checked, last_fetched_uid, last_fetched_at, created_at
        FROM mail_accounts
        WHERE email = $1
    `
	var a model.MailAccount
	err := r.db.QueryRow(ctx, query, email).Scan(
		&a.Email,
		&a.Password,
		&a.IMAPServer,
		&a.IMAPPort,
		&a.SSL,
		&a.AccountType,
		&a.IsActive,
		&a.LastChecked,
		&a.LastFetchedUID,
		&a.LastFetchedAt,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create stores a new account. The password must already be sealed.
func (r *AccountRepository) Create(ctx context.Context, a *model.MailAccount) error {
	query := `
        INSERT INTO mail_accounts (email, password, imap_server, imap_port, ssl,
                                   account_type, is_active, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
    `
	_, err := r.db.Exec(ctx, query,
		a.Email,
		a.Password,
		a.IMAPServer,
		a.IMAPPort,
		a.SSL,
		a.AccountType,
		a.IsActive,
	)
	return err
}

// UpdateLastChecked stamps the account after a successful run.
func (r *AccountRepository) UpdateLastChecked(ctx context.Context, email string, ts time.Time) error {
	query := `
        UPDATE mail_accounts
        SET last_checked = $1
        WHERE email = $2
    `
	_, err := r.db.Exec(ctx, query, ts, email)
	return err
}

// UpdateFetchMarker advances the per-account fetch cursor. The UID is only a
// hint for the next session, never message identity.
func (r *AccountRepository) UpdateFetchMarker(ctx context.Context, email string, lastUID uint32, ts time.Time) error {
	query := `
        UPDATE mail_accounts
        SET last_fetched_uid = $1, last_fetched_at = $2
        WHERE email = $3
    `
	_, err := r.db.Exec(ctx, query, lastUID, ts, email)
	return err
}
