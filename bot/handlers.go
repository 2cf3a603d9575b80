package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"postmaker/command"
	"postmaker/index"
	"postmaker/model"
	"postmaker/preset"
	"postmaker/quota"
	"postmaker/router"
	"postmaker/session"
)

const devicesPerPage = 20

// bindCommands attaches a handler to every entry of the command table and
// routes plain text into the wizard.
func (b *Bot) bindCommands() {
	handlers := map[string]router.HandlerFunc{
		"new":         b.cmdNew,
		"cancel":      b.cmdCancel,
		"search":      b.cmdSearch,
		"listdevices": b.cmdListDevices,
		"device":      b.cmdDevice,
		"presets":     b.cmdPresets,
		"help":        b.cmdHelp,
		"ban":         b.cmdBan,
		"unban":       b.cmdUnban,
		"listbanned":  b.cmdListBanned,
		"addpreset":   b.cmdAddPreset,
		"delpreset":   b.cmdDelPreset,
		"showpreset":  b.cmdShowPreset,
		"rebuild":     b.cmdRebuild,
		"stats":       b.cmdStats,
		"pmon":        b.cmdPMOn,
		"pmoff":       b.cmdPMOff,
	}
	for _, spec := range command.AllCommands {
		h, ok := handlers[spec.Name]
		if !ok {
			panic("no handler bound for command " + spec.Name)
		}
		b.router.Register(router.Command{
			Name:        spec.Name,
			Description: spec.Description,
			OwnerOnly:   spec.OwnerOnly,
			Handler:     h,
		})
	}
	b.router.SetTextHandler(b.onWizardText)
}

func (b *Bot) onWizardText(ctx context.Context, ev router.Event) (string, error) {
	reply, err := b.engine.HandleInput(ctx, ev.UserID, ev.Args)
	if errors.Is(err, session.ErrNoSession) {
		// Ordinary DM chatter outside a wizard run; stay quiet.
		return "", nil
	}
	return reply, err
}

func (b *Bot) cmdNew(_ context.Context, ev router.Event) (string, error) {
	return b.engine.Start(ev.UserID, ev.ChatID, ev.Username)
}

func (b *Bot) cmdCancel(_ context.Context, ev router.Event) (string, error) {
	target := ev.UserID
	if ev.Args != "" {
		if !ev.IsOwner {
			return "", router.ErrPermission
		}
		target = parseUserID(ev.Args)
	}
	ok, err := b.engine.Cancel(target)
	if err != nil {
		return "", err
	}
	if !ok {
		return "No session in progress.", nil
	}
	return "Session cancelled.", nil
}

func (b *Bot) cmdSearch(_ context.Context, ev router.Event) (string, error) {
	if ev.Args == "" {
		return "Usage: /search <device, ROM or version>", nil
	}
	posts := b.idx.Search(ev.Args)
	if len(posts) == 0 {
		return fmt.Sprintf("No posts match %q.", ev.Args), nil
	}
	const max = 10
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d result(s) for %q:\n", len(posts), ev.Args)
	for i, p := range posts {
		if i == max {
			fmt.Fprintf(&sb, "...and %d more.", len(posts)-max)
			break
		}
		writePostLine(&sb, p)
	}
	return sb.String(), nil
}

func (b *Bot) cmdListDevices(_ context.Context, ev router.Event) (string, error) {
	devices := b.idx.Devices()
	if len(devices) == 0 {
		return "No devices indexed yet.", nil
	}
	page := 1
	if ev.Args != "" {
		n, err := strconv.Atoi(ev.Args)
		if err != nil || n < 1 {
			return "Usage: /listdevices [page]", nil
		}
		page = n
	}
	pages := (len(devices) + devicesPerPage - 1) / devicesPerPage
	if page > pages {
		return fmt.Sprintf("Page %d is out of range, there are %d page(s).", page, pages), nil
	}
	start := (page - 1) * devicesPerPage
	end := start + devicesPerPage
	if end > len(devices) {
		end = len(devices)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Devices (page %d/%d):\n", page, pages)
	for _, d := range devices[start:end] {
		fmt.Fprintf(&sb, "- %s\n", d)
	}
	return sb.String(), nil
}

func (b *Bot) cmdDevice(_ context.Context, ev router.Event) (string, error) {
	if ev.Args == "" {
		return "Usage: /device <codename>", nil
	}
	posts := b.idx.PostsForDevice(ev.Args)
	if len(posts) == 0 {
		return fmt.Sprintf("No posts for %q.", ev.Args), nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Posts for %s:\n", ev.Args)
	for _, p := range posts {
		writePostLine(&sb, p)
	}
	return sb.String(), nil
}

func (b *Bot) cmdPresets(_ context.Context, _ router.Event) (string, error) {
	presets, err := b.presets.List()
	if err != nil {
		return "", err
	}
	if len(presets) == 0 {
		return "No presets saved.", nil
	}
	names := make([]string, len(presets))
	for i, p := range presets {
		names[i] = p.Name
	}
	return "Available presets: " + strings.Join(names, ", "), nil
}

func (b *Bot) cmdHelp(_ context.Context, ev router.Event) (string, error) {
	var sb strings.Builder
	sb.WriteString("Commands:\n")
	for _, c := range b.router.Commands() {
		if c.OwnerOnly && !ev.IsOwner {
			continue
		}
		fmt.Fprintf(&sb, "/%s - %s\n", c.Name, c.Description)
	}
	return sb.String(), nil
}

func (b *Bot) cmdBan(_ context.Context, ev router.Event) (string, error) {
	target, reason, _ := strings.Cut(ev.Args, " ")
	if target == "" {
		return "Usage: /ban <user> [reason]", nil
	}
	if err := b.quota.Ban(parseUserID(target), strings.TrimSpace(reason)); err != nil {
		return "", err
	}
	return "User banned.", nil
}

func (b *Bot) cmdUnban(_ context.Context, ev router.Event) (string, error) {
	if ev.Args == "" {
		return "Usage: /unban <user>", nil
	}
	if err := b.quota.Unban(parseUserID(ev.Args)); err != nil {
		return "", err
	}
	return "User unbanned.", nil
}

func (b *Bot) cmdListBanned(_ context.Context, _ router.Event) (string, error) {
	banned, err := b.quota.ListBanned()
	if err != nil {
		return "", err
	}
	if len(banned) == 0 {
		return "Nobody is banned.", nil
	}
	var sb strings.Builder
	sb.WriteString("Banned users:\n")
	for _, a := range banned {
		if a.BanReason != "" {
			fmt.Fprintf(&sb, "- %s (%s)\n", a.UserID, a.BanReason)
		} else {
			fmt.Fprintf(&sb, "- %s\n", a.UserID)
		}
	}
	return sb.String(), nil
}

func (b *Bot) cmdAddPreset(_ context.Context, ev router.Event) (string, error) {
	name, rest, _ := strings.Cut(ev.Args, " ")
	if name == "" || strings.TrimSpace(rest) == "" {
		return "Usage: /addpreset <name> key=value; key=value ...", nil
	}
	fields, err := parsePresetFields(rest)
	if err != nil {
		return "", err
	}
	if err := b.presets.Upsert(model.Preset{Name: name, Fields: fields}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Preset %q saved with %d field(s).", strings.ToLower(name), len(fields)), nil
}

func (b *Bot) cmdDelPreset(_ context.Context, ev router.Event) (string, error) {
	if ev.Args == "" {
		return "Usage: /delpreset <name>", nil
	}
	if err := b.presets.Delete(ev.Args); err != nil {
		if errors.Is(err, preset.ErrNotFound) {
			return fmt.Sprintf("No preset named %q.", ev.Args), nil
		}
		return "", err
	}
	return "Preset deleted.", nil
}

func (b *Bot) cmdShowPreset(_ context.Context, ev router.Event) (string, error) {
	if ev.Args == "" {
		return "Usage: /showpreset <name>", nil
	}
	p, err := b.presets.Get(ev.Args)
	if errors.Is(err, preset.ErrNotFound) {
		return fmt.Sprintf("No preset named %q.", ev.Args), nil
	}
	if err != nil {
		return "", err
	}
	keys := make([]string, 0, len(p.Fields))
	for k := range p.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	fmt.Fprintf(&sb, "Preset %s:\n", p.Name)
	for _, k := range keys {
		fmt.Fprintf(&sb, "- %s = %s\n", k, p.Fields[k])
	}
	return sb.String(), nil
}

func (b *Bot) cmdRebuild(ctx context.Context, _ router.Event) (string, error) {
	n, err := b.idx.Rebuild(ctx, b.publisher)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Index rebuilt: %d post(s).", n), nil
}

func (b *Bot) cmdStats(_ context.Context, _ router.Event) (string, error) {
	users, totalPosts, err := b.quota.Stats()
	if err != nil {
		return "", err
	}
	top, err := b.quota.TopUsers(5)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Users: %d\nPublished posts: %d\nIndexed posts: %d\n", users, totalPosts, b.idx.Len())
	if len(top) > 0 {
		sb.WriteString("Top posters:\n")
		for _, a := range top {
			fmt.Fprintf(&sb, "- %s: %d\n", a.UserID, a.TotalPosts)
		}
	}
	return sb.String(), nil
}

func (b *Bot) cmdPMOn(_ context.Context, ev router.Event) (string, error) {
	return b.setPM(ev, true, "Direct messages re-enabled for the user.")
}

func (b *Bot) cmdPMOff(_ context.Context, ev router.Event) (string, error) {
	return b.setPM(ev, false, "Direct messages from the user will be ignored.")
}

func (b *Bot) setPM(ev router.Event, enabled bool, done string) (string, error) {
	if ev.Args == "" {
		return "Usage: /pmon|/pmoff <user>", nil
	}
	if err := b.quota.SetPM(parseUserID(ev.Args), enabled); err != nil {
		return "", err
	}
	return done, nil
}

func writePostLine(sb *strings.Builder, p model.Post) {
	fmt.Fprintf(sb, "- %s v%s for %s by %s (%s)\n",
		p.RomName, p.Version, p.Device, p.Maintainer, p.PublishedAt.Format("2006-01-02"))
}

// parseUserID strips Discord mention decorations so owners can pass either a
// raw id or an @mention.
func parseUserID(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "<@")
	s = strings.TrimPrefix(s, "!")
	return strings.TrimSuffix(s, ">")
}

// parsePresetFields parses "key=value" pairs separated by ';' or newlines.
func parsePresetFields(raw string) (map[string]string, error) {
	fields := make(map[string]string)
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ';' || r == '\n' }) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("bad field %q, expected key=value", part)
		}
		fields[strings.ToLower(k)] = v
	}
	if len(fields) == 0 {
		return nil, errors.New("no fields given")
	}
	return fields, nil
}

// errText maps internal errors to what the user sees.
func errText(err error) string {
	var verr *session.ValidationError
	var serr *session.ServiceError
	switch {
	case errors.As(err, &verr):
		return "That doesn't look right: " + verr.Reason
	case errors.As(err, &serr):
		return fmt.Sprintf("The %s service is not responding right now. Your draft is saved, send 'confirm' to try again.", serr.Service)
	case errors.Is(err, router.ErrUnknownCommand):
		return "Unknown command. Try /help."
	case errors.Is(err, router.ErrPermission):
		return "You are not allowed to do that."
	case errors.Is(err, session.ErrSessionActive):
		return "You already have a post in progress. Finish it or send /cancel first."
	case errors.Is(err, session.ErrNoSession):
		return "No post in progress. Send /new to start one."
	case errors.Is(err, session.ErrSessionExpired):
		return "Your session timed out after inactivity. Send /new to start over."
	case errors.Is(err, session.ErrValidationExhausted):
		return "Too many invalid attempts, the session was cancelled. Send /new to start over."
	case errors.Is(err, session.ErrBanned):
		return "You are banned from publishing posts."
	case errors.Is(err, quota.ErrQuotaExceeded):
		return "You have reached today's publish quota. Your draft is kept, try again tomorrow."
	case errors.Is(err, index.ErrRebuildInProgress):
		return "A rebuild is already running, try again in a moment."
	default:
		return "Something went wrong, please try again."
	}
}
