package model

import "time"

// Step identifies where a wizard session currently is.
type Step string

const (
	StepIdle                 Step = "idle"
	StepAwaitingSourceURL    Step = "awaiting_source_url"
	StepParsingMetadata      Step = "parsing_metadata"
	StepAwaitingChangelog    Step = "awaiting_changelog"
	StepChoosingBannerStyle  Step = "choosing_banner_style"
	StepAwaitingPresetChoice Step = "awaiting_preset_choice"
	StepReview               Step = "review"
	StepPublished            Step = "published"
	StepCancelled            Step = "cancelled"
	StepExpired              Step = "expired"
)

// Terminal reports whether the session can no longer accept wizard input.
func (s Step) Terminal() bool {
	return s == StepPublished || s == StepCancelled || s == StepExpired
}

// Fields holds the data collected by the wizard. Empty string means
// "not supplied yet"; presets only ever fill empty fields.
type Fields struct {
	SourceURL      string `json:"source_url"`
	RomName        string `json:"rom_name"`
	Device         string `json:"device"`
	Version        string `json:"version"`
	BuildDate      string `json:"build_date"`
	Status         string `json:"status"`
	Variant        string `json:"variant"`
	AndroidVersion string `json:"android_version"`
	Changelog      string `json:"changelog"`
	BannerStyle    string `json:"banner_style"`
	SupportGroup   string `json:"support_group"`
	Notes          string `json:"notes"`
}

// Session is the per-user wizard state.
type Session struct {
	UserID     string         `json:"user_id"`
	ChatID     string         `json:"chat_id"`
	Maintainer string         `json:"maintainer"`
	Step       Step           `json:"step"`
	Fields     Fields         `json:"fields"`
	Retries    map[string]int `json:"retries"`
	// ReturnToReview marks a back-navigation edit: the next completed step
	// jumps straight back to review instead of continuing the normal flow.
	ReturnToReview bool `json:"return_to_review,omitempty"`
	// PendingMessageID is set when the announcement reached the channel but
	// the index or quota write failed. A re-confirm reuses the sent message
	// instead of publishing a duplicate.
	PendingMessageID string    `json:"pending_message_id,omitempty"`
	PendingChangelog string    `json:"pending_changelog,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	LastActivity     time.Time `json:"last_activity"`
}
