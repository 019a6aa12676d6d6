package models

import (
	"time"

	"github.com/google/uuid"
)

// TriggerSource определяет, кто запустил рассылку.
type TriggerSource string

const (
	TriggerScheduled  TriggerSource = "scheduled"
	TriggerAdminBatch TriggerSource = "admin_batch"
	TriggerCommand    TriggerSource = "command"
	TriggerAdminUser  TriggerSource = "admin_user"
)

// ScanOptions задаёт режим одного прогона рассылки.
type ScanOptions struct {
	Source TriggerSource `json:"source"`
	DryRun bool          `json:"dry_run"`
	Force  bool          `json:"force"`
}

// ScanCandidate - пользователь, попавший в выборку прогона.
type ScanCandidate struct {
	UserID           int64  `json:"user_id"`
	Email            string `json:"email"`
	InstagramAccount string `json:"instagram_account"`
	CartItems        int    `json:"cart_items"`
}

// ScanSummary - итог прогона рассылки.
type ScanSummary struct {
	RunID       uuid.UUID       `json:"run_id"`
	Source      TriggerSource   `json:"source"`
	DryRun      bool            `json:"dry_run"`
	Force       bool            `json:"force"`
	Disabled    bool            `json:"disabled"`
	Candidates  int             `json:"candidates"`
	CodesIssued int             `json:"codes_issued"`
	EmailsSent  int             `json:"emails_sent"`
	Skipped     int             `json:"skipped"`
	Errors      int             `json:"errors"`
	DryRunUsers []ScanCandidate `json:"dry_run_users,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
}

// SendOutcome описывает результат отправки кода одному пользователю.
type SendOutcome string

const (
	SendOutcomeNew      SendOutcome = "sent_new"
	SendOutcomeExisting SendOutcome = "sent_existing"
)

// SendToUserRequest - запрос администратора на отправку кода пользователю.
type SendToUserRequest struct {
	ForceSend    bool `json:"force_send"`
	SendExisting bool `json:"enviar_existente"`
}

// SendToUserResult - результат отправки кода одному пользователю.
type SendToUserResult struct {
	Outcome   SendOutcome   `json:"outcome"`
	Code      *DiscountCode `json:"code"`
	EmailSent bool          `json:"email_sent"`
}
