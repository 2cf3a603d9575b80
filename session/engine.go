// Package session drives the per-user post creation wizard.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"postmaker/banner"
	"postmaker/index"
	"postmaker/model"
	"postmaker/preset"
	"postmaker/quota"
	"postmaker/rom"
	"postmaker/store"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const sessionKeyPrefix = "session:"

// Renderer produces the banner image for a finished post.
type Renderer interface {
	Render(f model.Fields, maintainer, style string) ([]byte, error)
}

// Paster uploads long changelogs and returns a URL.
type Paster interface {
	Upload(ctx context.Context, text, title string) (string, error)
}

// Publisher sends the assembled post to the broadcast channel.
type Publisher interface {
	Publish(ctx context.Context, text string, image []byte) (string, error)
}

// Config tunes the wizard's limits.
type Config struct {
	Timeout     time.Duration // inactivity before a session expires
	MaxRetries  int           // invalid inputs tolerated per field
	InlineLimit int           // changelog length before paste upload
	WorkerLimit int64         // ceiling on concurrent collaborator calls
	RetryBase   time.Duration // initial backoff for collaborator retries
}

func (c *Config) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Minute
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.InlineLimit == 0 {
		c.InlineLimit = 700
	}
	if c.WorkerLimit == 0 {
		c.WorkerLimit = 8
	}
	if c.RetryBase == 0 {
		c.RetryBase = 500 * time.Millisecond
	}
}

// entry pairs a session with its per-user lock. The lock is held for one
// transition at a time, never across a collaborator call.
type entry struct {
	mu sync.Mutex
	s  *model.Session
}

// Engine is the wizard state machine. One Engine serves all users; state is
// keyed by user id with per-key exclusive access.
type Engine struct {
	st        store.Store
	quota     *quota.Tracker
	presets   *preset.Registry
	idx       *index.Index
	renderer  Renderer
	paster    Paster
	publisher Publisher
	log       *zap.Logger
	cfg       Config
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
	sem      *semaphore.Weighted
}

// New builds the engine and restores persisted sessions from the store.
func New(st store.Store, q *quota.Tracker, p *preset.Registry, ix *index.Index,
	r Renderer, pa Paster, pub Publisher, log *zap.Logger, cfg Config) (*Engine, error) {

	cfg.applyDefaults()
	e := &Engine{
		st:        st,
		quota:     q,
		presets:   p,
		idx:       ix,
		renderer:  r,
		paster:    pa,
		publisher: pub,
		log:       log,
		cfg:       cfg,
		now:       time.Now,
		sessions:  make(map[string]*entry),
		sem:       semaphore.NewWeighted(cfg.WorkerLimit),
	}

	raw, err := st.ListByPrefix(sessionKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("restore sessions: %w", err)
	}
	for k, v := range raw {
		var s model.Session
		if err := json.Unmarshal([]byte(v), &s); err != nil {
			log.Warn("dropping undecodable session", zap.String("key", k), zap.Error(err))
			_ = st.Delete(k)
			continue
		}
		if s.Step.Terminal() {
			_ = st.Delete(k)
			continue
		}
		e.sessions[s.UserID] = &entry{s: &s}
	}
	return e, nil
}

// SetClock overrides the time source. Used by tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// StartSweeper expires idle sessions in the background until ctx is done.
func (e *Engine) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.sweep()
			}
		}
	}()
}

func (e *Engine) sweep() {
	e.mu.Lock()
	entries := make([]*entry, 0, len(e.sessions))
	for _, ent := range e.sessions {
		entries = append(entries, ent)
	}
	e.mu.Unlock()

	for _, ent := range entries {
		ent.mu.Lock()
		if ent.s != nil && !ent.s.Step.Terminal() && e.expired(ent.s) {
			e.log.Info("session expired", zap.String("user", ent.s.UserID))
			e.terminate(ent.s, model.StepExpired)
		}
		ent.mu.Unlock()
	}
}

// Start begins a fresh session. An unfinished live session is never replaced
// silently; the user must cancel it or let it expire first.
func (e *Engine) Start(userID, chatID, maintainer string) (string, error) {
	banned, err := e.quota.Banned(userID)
	if err != nil {
		return "", err
	}
	if banned {
		return "", ErrBanned
	}

	ent := e.entryFor(userID)
	ent.mu.Lock()
	defer ent.mu.Unlock()

	if ent.s != nil && !ent.s.Step.Terminal() {
		if e.expired(ent.s) {
			e.terminate(ent.s, model.StepExpired)
		} else {
			return "", ErrSessionActive
		}
	}

	now := e.now()
	ent.s = &model.Session{
		UserID:       userID,
		ChatID:       chatID,
		Maintainer:   maintainer,
		Step:         model.StepAwaitingSourceURL,
		Retries:      make(map[string]int),
		CreatedAt:    now,
		LastActivity: now,
	}
	e.save(ent.s)

	reply := "Send the download URL for the build.\nThe filename should look like: " + rom.ExpectedPattern
	if remaining, err := e.quota.CheckAndReserve(userID); err == nil {
		reply += fmt.Sprintf("\nYou have %d post(s) remaining today.", remaining)
	} else if errors.Is(err, quota.ErrQuotaExceeded) {
		reply += "\nNote: you have reached today's publish quota; you can prepare the post but not publish it until tomorrow."
	}
	return reply, nil
}

// Cancel discards the user's session and its collected fields.
func (e *Engine) Cancel(userID string) (bool, error) {
	ent := e.lookup(userID)
	if ent == nil {
		return false, nil
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.s == nil || ent.s.Step.Terminal() {
		return false, nil
	}
	e.terminate(ent.s, model.StepCancelled)
	return true, nil
}

// Snapshot returns a copy of the user's current session.
func (e *Engine) Snapshot(userID string) (model.Session, bool) {
	ent := e.lookup(userID)
	if ent == nil {
		return model.Session{}, false
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.s == nil {
		return model.Session{}, false
	}
	return *ent.s, true
}

// HandleInput advances the wizard by one transition. The per-user lock is
// held for the transition only; the publish path releases it around the slow
// collaborator calls.
func (e *Engine) HandleInput(ctx context.Context, userID, text string) (string, error) {
	ent := e.lookup(userID)
	if ent == nil {
		return "", ErrNoSession
	}
	ent.mu.Lock()

	s := ent.s
	if s == nil || s.Step.Terminal() {
		ent.mu.Unlock()
		return "", ErrNoSession
	}
	if e.expired(s) {
		e.terminate(s, model.StepExpired)
		ent.mu.Unlock()
		return "", ErrSessionExpired
	}
	s.LastActivity = e.now()
	text = strings.TrimSpace(text)

	var reply string
	var err error
	switch s.Step {
	case model.StepAwaitingSourceURL:
		reply, err = e.handleSourceURL(s, text)
	case model.StepAwaitingChangelog:
		reply, err = e.handleChangelog(s, text)
	case model.StepChoosingBannerStyle:
		reply, err = e.handleBannerStyle(s, text)
	case model.StepAwaitingPresetChoice:
		reply, err = e.handlePresetChoice(s, text)
	case model.StepReview:
		var publish bool
		reply, publish, err = e.handleReview(s, text)
		if publish {
			return e.publish(ctx, ent)
		}
	default:
		err = &ValidationError{Field: "input", Reason: "input not expected right now"}
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		s.Retries[verr.Field]++
		if s.Retries[verr.Field] >= e.cfg.MaxRetries {
			e.terminate(s, model.StepCancelled)
			ent.mu.Unlock()
			return "", fmt.Errorf("%s: %w", verr.Field, ErrValidationExhausted)
		}
		e.save(s)
		ent.mu.Unlock()
		return "", err
	}
	if err == nil {
		e.save(s)
	}
	ent.mu.Unlock()
	return reply, err
}

func (e *Engine) handleSourceURL(s *model.Session, text string) (string, error) {
	s.Step = model.StepParsingMetadata

	filename, err := rom.FilenameFromURL(text)
	if err != nil {
		s.Step = model.StepAwaitingSourceURL
		return "", &ValidationError{Field: "source_url", Reason: err.Error()}
	}
	info, err := rom.Parse(filename, e.now())
	if err != nil {
		s.Step = model.StepAwaitingSourceURL
		return "", &ValidationError{Field: "source_url", Reason: err.Error()}
	}

	s.Fields.SourceURL = text
	s.Fields.RomName = info.RomName
	s.Fields.Device = info.Device
	s.Fields.Version = info.Version
	s.Fields.BuildDate = info.BuildDate
	s.Fields.Status = info.Status
	s.Fields.Variant = info.Variant

	if s.ReturnToReview {
		return e.enterReview(s), nil
	}
	s.Step = model.StepAwaitingChangelog
	return fmt.Sprintf("Detected %s v%s for %s (%s, %s, built %s).\nNow send the changelog text.",
		info.RomName, info.Version, info.Device, info.Status, info.Variant, info.BuildDate), nil
}

func (e *Engine) handleChangelog(s *model.Session, text string) (string, error) {
	if text == "" {
		return "", &ValidationError{Field: "changelog", Reason: "changelog cannot be empty"}
	}
	s.Fields.Changelog = text
	if s.ReturnToReview {
		return e.enterReview(s), nil
	}
	s.Step = model.StepChoosingBannerStyle
	return "Choose a banner style: " + strings.Join(banner.Styles(), " or "), nil
}

func (e *Engine) handleBannerStyle(s *model.Session, text string) (string, error) {
	style := strings.ToLower(text)
	switch style {
	case "1":
		style = banner.StyleClassic
	case "2":
		style = banner.StyleModern
	}
	if !banner.ValidStyle(style) {
		return "", &ValidationError{
			Field:  "banner_style",
			Reason: "choose one of: " + strings.Join(banner.Styles(), ", "),
		}
	}
	s.Fields.BannerStyle = style
	if s.ReturnToReview {
		return e.enterReview(s), nil
	}
	s.Step = model.StepAwaitingPresetChoice

	names := "none saved"
	if presets, err := e.presets.List(); err == nil && len(presets) > 0 {
		var ns []string
		for _, p := range presets {
			ns = append(ns, p.Name)
		}
		names = strings.Join(ns, ", ")
	}
	return fmt.Sprintf("Apply a preset? Available: %s.\nSend a preset name, or 'skip'.", names), nil
}

func (e *Engine) handlePresetChoice(s *model.Session, text string) (string, error) {
	if lc := strings.ToLower(text); lc == "skip" || lc == "none" {
		return e.enterReview(s), nil
	}
	p, err := e.presets.Get(text)
	if errors.Is(err, preset.ErrNotFound) {
		return "", &ValidationError{Field: "preset", Reason: fmt.Sprintf("no preset named %q, send another name or 'skip'", text)}
	}
	if err != nil {
		return "", err
	}
	preset.Apply(p, &s.Fields)
	return e.enterReview(s), nil
}

func (e *Engine) handleReview(s *model.Session, text string) (reply string, publish bool, err error) {
	switch cmd := strings.ToLower(text); {
	case cmd == "confirm" || cmd == "publish":
		return "", true, nil
	case cmd == "cancel":
		e.terminate(s, model.StepCancelled)
		return "Post creation cancelled.", false, nil
	case strings.HasPrefix(cmd, "edit "):
		return e.editField(s, strings.TrimSpace(strings.TrimPrefix(cmd, "edit ")))
	default:
		return "", false, &ValidationError{
			Field:  "review",
			Reason: "send 'confirm' to publish, 'cancel' to discard, or 'edit <source|changelog|banner>'",
		}
	}
}

// editField is the explicit back-navigation transition out of review.
func (e *Engine) editField(s *model.Session, field string) (string, bool, error) {
	var prompt string
	switch field {
	case "source", "url":
		s.Step = model.StepAwaitingSourceURL
		prompt = "Send the new download URL."
	case "changelog":
		s.Step = model.StepAwaitingChangelog
		prompt = "Send the new changelog text."
	case "banner", "style":
		s.Step = model.StepChoosingBannerStyle
		prompt = "Choose a banner style: " + strings.Join(banner.Styles(), " or ")
	default:
		return "", false, &ValidationError{Field: "review", Reason: fmt.Sprintf("cannot edit %q, choose source, changelog or banner", field)}
	}
	s.ReturnToReview = true
	// Changed fields invalidate a channel message kept from a failed commit.
	s.PendingMessageID = ""
	s.PendingChangelog = ""
	return prompt, false, nil
}

// enterReview requires every mandatory field to be populated.
func (e *Engine) enterReview(s *model.Session) string {
	s.ReturnToReview = false
	s.Step = model.StepReview
	f := s.Fields
	return fmt.Sprintf(
		"Review your post:\nROM: %s v%s\nDevice: %s\nStatus: %s | Variant: %s\nBuild date: %s\nBanner: %s\nChangelog: %d chars\n\nSend 'confirm' to publish, 'cancel' to discard, or 'edit <source|changelog|banner>'.",
		f.RomName, f.Version, f.Device, f.Status, f.Variant, f.BuildDate, f.BannerStyle, len(f.Changelog))
}

func (e *Engine) entryFor(userID string) *entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.sessions[userID]
	if !ok {
		ent = &entry{}
		e.sessions[userID] = ent
	}
	return ent
}

func (e *Engine) lookup(userID string) *entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[userID]
}

func (e *Engine) expired(s *model.Session) bool {
	return e.now().Sub(s.LastActivity) > e.cfg.Timeout
}

// terminate moves the session to a terminal step and drops its persisted copy.
func (e *Engine) terminate(s *model.Session, step model.Step) {
	s.Step = step
	e.save(s)
}

// save writes the session through to the store; terminal sessions are removed
// instead. Store failures are logged, not surfaced: the in-memory session is
// authoritative while the process lives.
func (e *Engine) save(s *model.Session) {
	key := sessionKeyPrefix + s.UserID
	if s.Step.Terminal() {
		if err := e.st.Delete(key); err != nil {
			e.log.Error("delete session", zap.String("user", s.UserID), zap.Error(err))
		}
		return
	}
	raw, err := json.Marshal(s)
	if err != nil {
		e.log.Error("encode session", zap.String("user", s.UserID), zap.Error(err))
		return
	}
	if err := e.st.Put(key, string(raw)); err != nil {
		e.log.Error("persist session", zap.String("user", s.UserID), zap.Error(err))
	}
}
