package model

import "time"

// Email is one ingested message. ID is assigned by the dedup resolver: a
// fresh UUID for a new message, the stored id when the message was seen
// before, so the upsert updates in place instead of duplicating.
type Email struct {
	ID           string
	AccountEmail string
	UID          uint32 // session-scoped fetch cursor, never a durable identity
	Subject      string
	Sender       string
	Date         time.Time
	Body         string
	RawData      []byte

	IsRead     bool
	IsStarred  bool
	IsArchived bool
	IsSpam     bool
	IsTrashed  bool

	Folder   string
	Tags     []string
	Metadata map[string]string

	Category     string
	MainCategory string
	SubCategory  string

	ContentHash      string
	VerificationHash string
	MessageID        string

	CreatedAt time.Time
}

// NewEmail returns a candidate with the neutral defaults every message
// starts from before categorization.
func NewEmail(accountEmail string) *Email {
	return &Email{
		AccountEmail: accountEmail,
		Folder:       "inbox",
		Tags:         []string{},
		Metadata:     map[string]string{},
		Category:     "general",
		MainCategory: "general",
		SubCategory:  "general",
		CreatedAt:    time.Now(),
	}
}

// EmailSummary is the row shape the query surface returns. Raw source and
// hashes stay out of API responses.
type EmailSummary struct {
	ID           string    `json:"id"`
	AccountEmail string    `json:"account_email"`
	UID          uint32    `json:"uid"`
	Subject      string    `json:"subject"`
	Sender       string    `json:"sender"`
	Date         time.Time `json:"date"`
	Body         string    `json:"body"`
	IsRead       bool      `json:"is_read"`
	Category     string    `json:"category"`
	MainCategory string    `json:"main_category"`
	SubCategory  string    `json:"sub_category"`
	MessageID    string    `json:"message_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// EmailStats aggregates the stored mail for the dashboard endpoint.
type EmailStats struct {
	TotalEmails    int            `json:"total_emails"`
	TotalAccounts  int            `json:"total_accounts"`
	ReadEmails     int            `json:"read_emails"`
	UnreadEmails   int            `json:"unread_emails"`
	ByMainCategory map[string]int `json:"emails_by_category"`
	ByAccount      map[string]int `json:"emails_by_account"`
	LastIngestedAt *time.Time     `json:"last_ingested_at,omitempty"`
}
