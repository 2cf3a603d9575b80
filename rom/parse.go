// Package rom extracts structured build metadata from ROM zip filenames.
//
// The grammar is deterministic: the project name is the first hyphen-separated
// part, a 6+ digit run is the build date, v-prefixed or dotted numbers are the
// version, known keywords classify status and variant, and a short lowercase
// alphanumeric token is the device codename.
package rom

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"postmaker/model"
)

// ExpectedPattern is shown to the user when a filename cannot be parsed.
const ExpectedPattern = "RomName-version-YYYYMMDD-device-STATUS-VARIANT.zip"

var statusPriority = []string{
	"official",
	"unofficial",
	"community",
	"stable",
	"beta",
	"alpha",
	"rc",
	"nightly",
	"experimental",
	"test",
	"enchanted",
}

var variantKeywords = []string{"gapps", "gms", "vanilla", "core", "lite", "full", "mini"}

var (
	dottedVersionRe = regexp.MustCompile(`v?(\d+\.\d+(?:\.\d+)*)`)
	digitsRe        = regexp.MustCompile(`^\d+$`)
	timestampRe     = regexp.MustCompile(`^\d{6,}$`)
	deviceRe        = regexp.MustCompile(`^[a-z][a-z0-9]{2,9}$`)
	stripRe         = regexp.MustCompile(`[*_]`)
)

// FilenameFromURL returns the last path segment of a download URL. Bare
// filenames (no scheme) pass through unchanged.
func FilenameFromURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty URL")
	}
	if !strings.Contains(raw, "://") {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	name, err := url.PathUnescape(path.Base(u.Path))
	if err != nil || name == "" || name == "/" || name == "." {
		return "", fmt.Errorf("URL has no filename in its path")
	}
	return name, nil
}

// Parse applies the filename grammar. now supplies the fallback build date;
// pass time.Now for production use.
func Parse(filename string, now time.Time) (model.BuildInfo, error) {
	cleaned := stripRe.ReplaceAllString(filename, "")
	lower := strings.ToLower(cleaned)

	origParts := strings.Split(cleaned, "-")
	lowerParts := strings.Split(lower, "-")
	if len(origParts) < 2 {
		return model.BuildInfo{}, fmt.Errorf("filename %q has too few parts, expected %s", filename, ExpectedPattern)
	}

	var info model.BuildInfo

	if first := strings.TrimSpace(origParts[0]); first != "" {
		info.RomName = displayName(first)
	}

	if m := dottedVersionRe.FindStringSubmatch(lower); m != nil {
		info.Version = m[1]
	}

	foundStatusPriority := len(statusPriority)
	var deviceCandidates []string
	var rawDate string

	for i := 1; i < len(lowerParts); i++ {
		part := strings.TrimSpace(strings.SplitN(lowerParts[i], ".", 2)[0])
		orig := strings.TrimSpace(strings.SplitN(origParts[i], ".", 2)[0])
		if part == "" {
			continue
		}

		if timestampRe.MatchString(part) {
			if rawDate == "" {
				rawDate = part
			}
			continue
		}

		if info.Version == "" && ((strings.HasPrefix(part, "v") && strings.ContainsAny(part, "0123456789")) || digitsRe.MatchString(part)) {
			info.Version = strings.TrimPrefix(part, "v")
			continue
		}

		if p := matchStatus(part); p >= 0 && p < foundStatusPriority {
			foundStatusPriority = p
			info.Status = statusPriority[p]
			continue
		}

		if info.Variant == "" {
			if v := matchVariant(part); v != "" {
				info.Variant = v
				continue
			}
		}

		if strings.HasPrefix(part, "v") && digitsRe.MatchString(part[1:]) {
			// version-like token ("v10"), never a codename
			continue
		}
		if len(part) >= 3 && len(part) <= 10 && !digitsRe.MatchString(part) && deviceRe.MatchString(part) {
			deviceCandidates = append(deviceCandidates, orig)
		}
	}

	if len(deviceCandidates) == 0 {
		return model.BuildInfo{}, fmt.Errorf("no device codename in %q, expected %s", filename, ExpectedPattern)
	}
	info.Device = deviceCandidates[0]

	if info.Version == "" {
		for _, part := range lowerParts {
			if strings.ContainsAny(part, "0123456789") {
				info.Version = strings.SplitN(part, ".", 2)[0]
				break
			}
		}
	}
	if info.Version == "" {
		return model.BuildInfo{}, fmt.Errorf("no version in %q, expected %s", filename, ExpectedPattern)
	}

	info.BuildDate = formatDate(rawDate, now)

	if info.Status == "" {
		info.Status = "unofficial"
	}
	info.Status = strings.ToUpper(info.Status[:1]) + info.Status[1:]

	if info.Variant == "" {
		info.Variant = "standard"
	}
	info.Variant = strings.ToUpper(info.Variant)

	return info, nil
}

// matchStatus returns the priority index of the highest-priority status
// keyword contained in part, or -1.
func matchStatus(part string) int {
	for i, s := range statusPriority {
		if strings.Contains(part, s) {
			return i
		}
	}
	return -1
}

func matchVariant(part string) string {
	for _, v := range variantKeywords {
		if strings.Contains(part, v) {
			return v
		}
	}
	return ""
}

// displayName title-cases an all-lowercase project name but preserves
// deliberate casing like "LineageOS".
func displayName(s string) string {
	if s != strings.ToLower(s) {
		return s
	}
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func formatDate(raw string, now time.Time) string {
	if raw == "" {
		return now.Format("02/01/06")
	}
	var t time.Time
	var err error
	switch {
	case len(raw) == 8:
		t, err = time.Parse("20060102", raw)
	case len(raw) == 6:
		t, err = time.Parse("060102", raw)
	default:
		if len(raw) > 8 {
			raw = raw[len(raw)-8:]
		}
		t, err = time.Parse("20060102", raw)
	}
	if err != nil {
		return now.Format("02/01/06")
	}
	return t.Format("02/01/06")
}
