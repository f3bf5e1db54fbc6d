package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignRunning   CampaignStatus = "running"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// CampaignSettings carries per-campaign pacing overrides. Zero values fall
// back when the scheduler plans sends: the delay to the sending account's
// window (or the engine-wide range), the rest to the engine-wide defaults.
type CampaignSettings struct {
	DelayBetweenEmails int `json:"delay_between_emails" db:"delay_between_emails"`
	BatchSize          int `json:"batch_size" db:"batch_size"`
	BatchDelay         int `json:"batch_delay" db:"batch_delay"`
	MaxRetries         int `json:"max_retries" db:"max_retries"`
}

// Campaign represents an email campaign: a template, a recipient set, and
// the SMTP accounts allowed to carry it.
type Campaign struct {
	ID             string           `json:"id" db:"id"`
	UserID         string           `json:"user_id" db:"user_id"`
	Name           string           `json:"name" db:"name"`
	TemplateID     string           `json:"template_id" db:"template_id"`
	SmtpAccountIDs []string         `json:"smtp_account_ids" db:"smtp_account_ids"`
	Status         CampaignStatus   `json:"status" db:"status"`
	Settings       CampaignSettings `json:"settings"`

	ScheduledAt *time.Time `json:"scheduled_at" db:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	PausedAt    *time.Time `json:"paused_at" db:"paused_at"`

	// Counters, advanced only through outcome recording.
	TotalRecipients int     `json:"total_recipients" db:"total_recipients"`
	SentCount       int     `json:"sent_count" db:"sent_count"`
	FailedCount     int     `json:"failed_count" db:"failed_count"`
	BounceCount     int     `json:"bounce_count" db:"bounce_count"`
	BounceRate      float64 `json:"bounce_rate" db:"bounce_rate"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignCompleted || c.Status == CampaignFailed || c.Status == CampaignCancelled
}

// IsActive returns true while the engine may still schedule sends.
func (c *Campaign) IsActive() bool {
	return c.Status == CampaignRunning || c.Status == CampaignScheduled
}

// campaignTransitions is the allowed edge set of the status machine.
var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignDraft:     {CampaignScheduled, CampaignRunning, CampaignCancelled},
	CampaignScheduled: {CampaignRunning, CampaignCancelled, CampaignDraft},
	CampaignRunning:   {CampaignPaused, CampaignCompleted, CampaignFailed, CampaignCancelled},
	CampaignPaused:    {CampaignRunning, CampaignCancelled},
	CampaignCompleted: {CampaignRunning},
	CampaignFailed:    {CampaignRunning},
	CampaignCancelled: {},
}

// CanTransition reports whether from → to is a legal status change.
// Restarts re-enter RUNNING from COMPLETED, FAILED, or PAUSED.
func CanTransition(from, to CampaignStatus) bool {
	for _, next := range campaignTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RestartableStatuses are the states Restart accepts.
var RestartableStatuses = []CampaignStatus{CampaignCompleted, CampaignFailed, CampaignPaused}
