package domain

import "time"

// RecipientStatus enumerates the delivery state of a single recipient.
type RecipientStatus string

const (
	RecipientPending RecipientStatus = "pending"
	RecipientQueued  RecipientStatus = "queued"
	RecipientSent    RecipientStatus = "sent"
	RecipientFailed  RecipientStatus = "failed"
	RecipientBounced RecipientStatus = "bounced"
)

// Recipient is one row of a campaign's audience. Email is stored lowercased
// and is unique within the campaign.
type Recipient struct {
	ID            string            `json:"id" db:"id"`
	CampaignID    string            `json:"campaign_id" db:"campaign_id"`
	Email         string            `json:"email" db:"email"`
	FirstName     string            `json:"first_name" db:"first_name"`
	LastName      string            `json:"last_name" db:"last_name"`
	Variables     map[string]string `json:"variables" db:"variables"`
	Status        RecipientStatus   `json:"status" db:"status"`
	SentAt        *time.Time        `json:"sent_at" db:"sent_at"`
	FailedReason  string            `json:"failed_reason" db:"failed_reason"`
	SmtpAccountID string            `json:"smtp_account_id" db:"smtp_account_id"`
	Seq           int64             `json:"seq" db:"seq"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at" db:"updated_at"`
}

// FullName joins first and last name for template builtins.
func (r *Recipient) FullName() string {
	switch {
	case r.FirstName != "" && r.LastName != "":
		return r.FirstName + " " + r.LastName
	case r.FirstName != "":
		return r.FirstName
	default:
		return r.LastName
	}
}
