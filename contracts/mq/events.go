package mq

import "time"

// 事件路由键（topic exchange "events"）
const (
	RoutingKeyEmailIngested   = "email.ingested"
	RoutingKeyIngestCompleted = "ingest.completed"
)

// EmailIngestedPayload 新邮件入库事件的 payload
type EmailIngestedPayload struct {
	EmailID      string    `json:"email_id"`
	AccountEmail string    `json:"account_email"`
	Subject      string    `json:"subject"`
	Sender       string    `json:"sender"`
	MainCategory string    `json:"main_category"`
	SubCategory  string    `json:"sub_category"`
	ReceivedAt   time.Time `json:"received_at"`
}

// IngestCompletedPayload 一轮抓取完成事件的 payload
type IngestCompletedPayload struct {
	PassID             string    `json:"pass_id"`
	Trigger            string    `json:"trigger"` // scheduled / manual
	TotalAccounts      int       `json:"total_accounts"`
	SuccessfulAccounts int       `json:"successful_accounts"`
	FailedAccounts     int       `json:"failed_accounts"`
	TotalEmailsFetched int       `json:"total_emails_fetched"`
	NewMessages        int       `json:"new_messages"`
	CompletedAt        time.Time `json:"completed_at"`
}
