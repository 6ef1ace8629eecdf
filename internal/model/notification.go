package model

import "time"

// Notification statuses.
const (
	NotifyPending = "pending"
	NotifySent    = "sent"
	NotifyFailed  = "failed"
)

// NotificationMetadata carries routing and rendering context alongside
// the message body; never persisted in the Rule Store.
type NotificationMetadata struct {
	RuleID                string `json:"rule_id"`
	UserID                string `json:"user_id"`
	WatchType             string `json:"watch_type"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

// Notification is derived from a Match by the Rule Matcher and consumed
// by the Notification Dispatcher. It is never stored in the Rule Store.
type Notification struct {
	User      string               `json:"user"`
	Channel   string               `json:"channel"`
	Message   string               `json:"message"`
	Metadata  NotificationMetadata `json:"metadata"`
	CreatedAt time.Time            `json:"created_at"`
	Status    string               `json:"status"`
}

// NotifyStatusEvent is the terminal status document the dispatcher
// publishes on notify_sent/notify_failed/notify_duplicate.
type NotifyStatusEvent struct {
	RuleID  string `json:"rule_id"`
	UserID  string `json:"user_id"`
	Channel string `json:"channel"`
	Attempt int    `json:"attempt,omitempty"`
	Error   string `json:"error,omitempty"`
}
