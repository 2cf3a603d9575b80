package utils

import (
	"fmt"
	"regexp"
	"strings"

	"postmaker/model"
)

// FormatBullets turns free-form text into one bullet per non-empty line,
// capitalizing the first letter of each.
func FormatBullets(text string) string {
	var bullets []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		bullets = append(bullets, "• "+strings.ToUpper(line[:1])+line[1:])
	}
	return strings.Join(bullets, "\n")
}

// BuildPostText renders the announcement text for a finished session.
// changelog is either the inline text or a paste URL; the first line is the
// header that ParsePostHeader recognizes when rebuilding the index.
func BuildPostText(f model.Fields, maintainer, changelog string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s v%s is now up for %s**\n", f.RomName, f.Version, f.Device)
	fmt.Fprintf(&b, "Status: %s | Variant: %s\n", f.Status, f.Variant)
	if f.AndroidVersion != "" {
		fmt.Fprintf(&b, "Android: %s\n", f.AndroidVersion)
	}
	fmt.Fprintf(&b, "Build date: %s\n", f.BuildDate)
	fmt.Fprintf(&b, "Maintainer: %s\n", maintainer)
	if strings.HasPrefix(changelog, "http://") || strings.HasPrefix(changelog, "https://") {
		fmt.Fprintf(&b, "Changelog: %s\n", changelog)
	} else if changelog != "" {
		fmt.Fprintf(&b, "Changelog:\n%s\n", FormatBullets(changelog))
	}
	fmt.Fprintf(&b, "Download: %s\n", f.SourceURL)
	if f.SupportGroup != "" {
		fmt.Fprintf(&b, "Support: %s\n", f.SupportGroup)
	}
	if f.Notes != "" {
		fmt.Fprintf(&b, "Notes:\n%s\n", FormatBullets(f.Notes))
	}
	return b.String()
}

var (
	headerRe     = regexp.MustCompile(`\*\*(.+) v(.+) is now up for (.+)\*\*`)
	maintainerRe = regexp.MustCompile(`(?m)^Maintainer: (.+)$`)
	changelogRe  = regexp.MustCompile(`(?m)^Changelog: (https?://\S+)$`)
)

// ParsePostHeader recovers the identity fields from a previously published
// announcement. Used only by index rebuild; returns false for messages that
// were not produced by BuildPostText.
func ParsePostHeader(text string) (model.Post, bool) {
	m := headerRe.FindStringSubmatch(text)
	if m == nil {
		return model.Post{}, false
	}
	p := model.Post{
		RomName: strings.TrimSpace(m[1]),
		Version: strings.TrimSpace(m[2]),
		Device:  strings.TrimSpace(m[3]),
	}
	if mm := maintainerRe.FindStringSubmatch(text); mm != nil {
		p.Maintainer = strings.TrimSpace(mm[1])
	}
	if cm := changelogRe.FindStringSubmatch(text); cm != nil {
		p.ChangelogURL = cm[1]
	}
	return p, true
}
