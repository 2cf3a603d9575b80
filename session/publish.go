package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"postmaker/model"
	"postmaker/utils"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// publish runs the slow half of a confirm. It is entered with ent.mu held,
// releases it around collaborator I/O, and re-acquires it to commit the
// result. Failures leave the session at review so the user can retry.
func (e *Engine) publish(ctx context.Context, ent *entry) (string, error) {
	s := ent.s
	if _, err := e.quota.CheckAndReserve(s.UserID); err != nil {
		ent.mu.Unlock()
		return "", err
	}
	fields := s.Fields
	maintainer := s.Maintainer
	userID := s.UserID
	pendingID := s.PendingMessageID
	pendingRef := s.PendingChangelog
	attempt := uuid.NewString()
	ent.mu.Unlock()

	log := e.log.With(zap.String("user", userID), zap.String("attempt", attempt))

	if err := e.sem.Acquire(ctx, 1); err != nil {
		e.relock(ent)
		ent.mu.Unlock()
		return "", err
	}
	defer e.sem.Release(1)

	if pendingID != "" {
		// The announcement already reached the channel on an earlier
		// confirm; only the index/quota writes are outstanding.
		return e.commit(ctx, ent, log, fields, maintainer, userID, pendingRef, pendingID)
	}

	changelogRef := fields.Changelog
	if len(fields.Changelog) > e.cfg.InlineLimit {
		title := fmt.Sprintf("%s %s changelog (%s)", fields.RomName, fields.Version, fields.BuildDate)
		err := e.retry(ctx, "paste", func() error {
			url, uerr := e.paster.Upload(ctx, fields.Changelog, title)
			if uerr != nil {
				return uerr
			}
			changelogRef = url
			return nil
		})
		if err != nil {
			return e.fail(ent, log, err)
		}
	}

	var image []byte
	err := e.retry(ctx, "banner", func() error {
		img, rerr := e.renderer.Render(fields, maintainer, fields.BannerStyle)
		if rerr != nil {
			return rerr
		}
		image = img
		return nil
	})
	if err != nil {
		return e.fail(ent, log, err)
	}

	text := utils.BuildPostText(fields, maintainer, changelogRef)
	var messageID string
	err = e.retry(ctx, "publisher", func() error {
		id, perr := e.publisher.Publish(ctx, text, image)
		if perr != nil {
			return perr
		}
		messageID = id
		return nil
	})
	if err != nil {
		return e.fail(ent, log, err)
	}

	return e.commit(ctx, ent, log, fields, maintainer, userID, changelogRef, messageID)
}

// commit records the published post in the index and charges the quota. The
// channel message is already out; if either write fails the session stays at
// review with the message id pinned, so the next confirm retries only the
// writes and never re-sends.
func (e *Engine) commit(_ context.Context, ent *entry, log *zap.Logger,
	fields model.Fields, maintainer, userID, changelogRef, messageID string) (string, error) {

	e.relock(ent)
	defer ent.mu.Unlock()
	s := ent.s
	if s == nil || s.Step != model.StepReview {
		// Cancelled or expired while publishing. The channel message stands;
		// it just is not indexed against this session.
		log.Warn("session left review during publish", zap.String("message", messageID))
		return "", ErrNoSession
	}

	keepPending := func(service string, cause error) (string, error) {
		log.Error("record published post", zap.String("service", service),
			zap.String("message", messageID), zap.Error(cause))
		s.PendingMessageID = messageID
		s.PendingChangelog = changelogRef
		s.LastActivity = e.now()
		e.save(s)
		return "", &ServiceError{Service: service, Cause: cause}
	}

	post := model.Post{
		Device:       fields.Device,
		RomName:      fields.RomName,
		Version:      fields.Version,
		Maintainer:   maintainer,
		ChangelogURL: changelogRef,
		BannerRef:    fields.BannerStyle,
		MessageID:    messageID,
		PublishedAt:  e.now(),
	}
	if err := e.idx.Upsert(post); err != nil {
		return keepPending("index", err)
	}
	if err := e.quota.Commit(userID); err != nil {
		return keepPending("quota", err)
	}
	s.PendingMessageID = ""
	s.PendingChangelog = ""
	e.terminate(s, model.StepPublished)
	log.Info("post published",
		zap.String("device", post.Device),
		zap.String("rom", post.RomName),
		zap.String("version", post.Version))
	return "Published! " + post.RomName + " v" + post.Version + " for " + post.Device + " is live.", nil
}

// fail reports a collaborator error and keeps the session at review.
func (e *Engine) fail(ent *entry, log *zap.Logger, err error) (string, error) {
	var serr *ServiceError
	if errors.As(err, &serr) {
		log.Error("publish step failed", zap.String("service", serr.Service), zap.Error(serr.Cause))
	} else {
		log.Error("publish failed", zap.Error(err))
	}
	e.relock(ent)
	if ent.s != nil && !ent.s.Step.Terminal() {
		ent.s.LastActivity = e.now()
		e.save(ent.s)
	}
	ent.mu.Unlock()
	return "", err
}

func (e *Engine) relock(ent *entry) { ent.mu.Lock() }

// retry runs fn with bounded exponential backoff and wraps the final error
// with the collaborator's name.
func (e *Engine) retry(ctx context.Context, service string, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.RetryBase
	bo.MaxElapsedTime = 30 * time.Second
	err := backoff.Retry(fn, backoff.WithContext(backoff.WithMaxRetries(bo, 2), ctx))
	if err != nil {
		return &ServiceError{Service: service, Cause: err}
	}
	return nil
}
