package domain

import "time"

// EmailLogStatus enumerates the attempt lifecycle of one recipient's email.
type EmailLogStatus string

const (
	EmailLogPending EmailLogStatus = "pending"
	EmailLogQueued  EmailLogStatus = "queued"
	EmailLogSent    EmailLogStatus = "sent"
	EmailLogFailed  EmailLogStatus = "failed"
)

// EmailLog is the durable record of a send attempt. There is at most one
// current-attempt row per recipient; its existence and status gate delivery,
// which is what keeps sends at-most-once across worker crashes.
type EmailLog struct {
	ID            string         `json:"id" db:"id"`
	CampaignID    string         `json:"campaign_id" db:"campaign_id"`
	RecipientID   string         `json:"recipient_id" db:"recipient_id"`
	SmtpAccountID string         `json:"smtp_account_id" db:"smtp_account_id"`
	Status        EmailLogStatus `json:"status" db:"status"`
	Subject       string         `json:"subject" db:"subject"`
	SentAt        *time.Time     `json:"sent_at" db:"sent_at"`
	FailedAt      *time.Time     `json:"failed_at" db:"failed_at"`
	ErrorMessage  string         `json:"error_message" db:"error_message"`
	MessageID     string         `json:"message_id" db:"message_id"`
	BounceReason  string         `json:"bounce_reason" db:"bounce_reason"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
}

// DailyQuota tracks sends per SMTP account per UTC date.
type DailyQuota struct {
	SmtpAccountID string    `json:"smtp_account_id" db:"smtp_account_id"`
	Day           time.Time `json:"day" db:"day"`
	SentCount     int       `json:"sent_count" db:"sent_count"`
}
