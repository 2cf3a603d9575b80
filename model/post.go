package model

import (
	"fmt"
	"strings"
	"time"
)

// Post is the indexed representation of a published announcement.
type Post struct {
	Device       string    `json:"device"`
	RomName      string    `json:"rom_name"`
	Version      string    `json:"version"`
	Maintainer   string    `json:"maintainer"`
	ChangelogURL string    `json:"changelog_url"`
	BannerRef    string    `json:"banner_ref"`
	MessageID    string    `json:"message_id"`
	PublishedAt  time.Time `json:"published_at"`
}

// Identity is the composite key that must be unique in the index.
func (p Post) Identity() string {
	return strings.ToLower(fmt.Sprintf("%s|%s|%s", p.Device, p.RomName, p.Version))
}
