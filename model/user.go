package model

// UserAccount tracks per-user publish counters and flags. Accounts are
// never deleted, only flagged.
type UserAccount struct {
	UserID     string `json:"user_id"`
	DailyCount int    `json:"daily_count"`
	QuotaDay   string `json:"quota_day"`
	TotalPosts int    `json:"total_posts"`
	Banned     bool   `json:"banned"`
	BanReason  string `json:"ban_reason,omitempty"`
	PMEnabled  bool   `json:"pm_enabled"`
}
