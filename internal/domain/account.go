package domain

import "time"

// SmtpAccount is a sending identity: one SMTP host plus credentials and the
// pacing/quota envelope the engine enforces for it.
type SmtpAccount struct {
	ID          string `json:"id" db:"id"`
	UserID      string `json:"user_id" db:"user_id"`
	Name        string `json:"name" db:"name"`
	Host        string `json:"host" db:"host"`
	Port        int    `json:"port" db:"port"`
	Secure      bool   `json:"secure" db:"secure"`
	Username    string `json:"username" db:"username"`
	PasswordEnc string `json:"-" db:"password_enc"`
	FromName    string `json:"from_name" db:"from_name"`
	FromEmail   string `json:"from_email" db:"from_email"`

	DailyLimit  int `json:"daily_limit" db:"daily_limit"`
	MinDelaySec int `json:"min_delay_sec" db:"min_delay_sec"`
	MaxDelaySec int `json:"max_delay_sec" db:"max_delay_sec"`

	Active     bool       `json:"active" db:"active"`
	LastUsedAt *time.Time `json:"last_used_at" db:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}
