package ingest

import (
	"errors"
	"time"
)

// ErrNoAccounts means a pass had nothing to do: no active account matched.
var ErrNoAccounts = errors.New("no active accounts configured")

// Pass triggers.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// TargetAll selects every active account for a pass.
const TargetAll = "all"

// Result aggregates one full pass over the targeted accounts. It is a value
// accumulated per pass and returned to the caller, never process-global
// state, so concurrent passes cannot corrupt each other's counters.
type Result struct {
	PassID             string    `json:"pass_id"`
	Trigger            string    `json:"trigger"`
	StartedAt          time.Time `json:"started_at"`
	CompletedAt        time.Time `json:"completed_at"`
	TotalAccounts      int       `json:"total_accounts"`
	SuccessfulAccounts int       `json:"successful_accounts"`
	FailedAccounts     int       `json:"failed_accounts"`
	TotalFetched       int       `json:"total_fetched"`
	NewMessages        int       `json:"new_messages"`
	UpdatedMessages    int       `json:"updated_messages"`
	DuplicatesSkipped  int       `json:"duplicates_skipped"`
	ReadFlagsSynced    int       `json:"read_flags_synced"`
	Errors             []string  `json:"errors"`
}

// AccountStats is the per-account slice of a pass result.
type AccountStats struct {
	Fetched    int
	New        int
	Updated    int
	Duplicates int
	Errors     []string

	// LastUID is the highest UID seen this session, kept as the next
	// session's fetch hint only.
	LastUID uint32
}
