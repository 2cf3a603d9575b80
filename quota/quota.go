package quota

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"postmaker/model"
	"postmaker/store"
)

var (
	// ErrQuotaExceeded blocks a publish until the next quota day.
	ErrQuotaExceeded = errors.New("daily publish quota exceeded")
	// ErrContention is returned when the CAS retry budget is exhausted.
	ErrContention = errors.New("quota update contention")
)

const userKeyPrefix = "user:"

const casAttempts = 8

// Tracker maintains per-user daily publish counters, ban flags and the
// private-message intake flag. All mutations go through compare-and-swap so
// near-simultaneous publishes never lose updates.
type Tracker struct {
	st    store.Store
	limit int
	loc   *time.Location
	now   func() time.Time
}

// New creates a Tracker. tz is the reference timezone for the daily cutoff.
func New(st store.Store, limit int, tz string) (*Tracker, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load quota timezone %q: %w", tz, err)
	}
	return &Tracker{st: st, limit: limit, loc: loc, now: time.Now}, nil
}

// SetClock overrides the time source. Used by tests.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

// Limit returns the configured daily publish limit.
func (t *Tracker) Limit() int { return t.limit }

func (t *Tracker) dayKey() string {
	return t.now().In(t.loc).Format("2006-01-02")
}

// mutate loads the account, applies the lazy daily reset, runs fn and writes
// the result back under compare-and-swap. fn returning an error aborts with
// nothing committed.
func (t *Tracker) mutate(userID string, fn func(*model.UserAccount) error) (model.UserAccount, error) {
	key := userKeyPrefix + userID
	for i := 0; i < casAttempts; i++ {
		raw, found, err := t.st.Get(key)
		if err != nil {
			return model.UserAccount{}, err
		}
		acct := model.UserAccount{UserID: userID, PMEnabled: true}
		if found {
			if err := json.Unmarshal([]byte(raw), &acct); err != nil {
				return model.UserAccount{}, fmt.Errorf("decode account %s: %w", userID, err)
			}
		}
		if today := t.dayKey(); acct.QuotaDay != today {
			acct.QuotaDay = today
			acct.DailyCount = 0
		}
		if fn != nil {
			if err := fn(&acct); err != nil {
				return acct, err
			}
		}
		next, err := json.Marshal(acct)
		if err != nil {
			return model.UserAccount{}, err
		}
		if string(next) == raw {
			return acct, nil
		}
		expected := raw
		if !found {
			expected = ""
		}
		ok, err := t.st.CompareAndSwap(key, expected, string(next))
		if err != nil {
			return model.UserAccount{}, err
		}
		if ok {
			return acct, nil
		}
	}
	return model.UserAccount{}, ErrContention
}

// Account returns the user's account, applying the once-per-day counter reset
// on first access after the boundary.
func (t *Tracker) Account(userID string) (model.UserAccount, error) {
	return t.mutate(userID, nil)
}

// CheckAndReserve verifies the user may publish today. It never decrements the
// counter, so a retried publish attempt can reserve again without cost.
func (t *Tracker) CheckAndReserve(userID string) (remaining int, err error) {
	acct, err := t.Account(userID)
	if err != nil {
		return 0, err
	}
	if acct.DailyCount >= t.limit {
		return 0, ErrQuotaExceeded
	}
	return t.limit - acct.DailyCount, nil
}

// Commit increments the counters after a confirmed publish. The daily counter
// can never exceed the limit nor go negative.
func (t *Tracker) Commit(userID string) error {
	_, err := t.mutate(userID, func(a *model.UserAccount) error {
		if a.DailyCount >= t.limit {
			return ErrQuotaExceeded
		}
		a.DailyCount++
		a.TotalPosts++
		return nil
	})
	return err
}

// Ban flags a user. Banned users cannot start sessions or publish.
func (t *Tracker) Ban(userID, reason string) error {
	_, err := t.mutate(userID, func(a *model.UserAccount) error {
		a.Banned = true
		a.BanReason = reason
		return nil
	})
	return err
}

// Unban clears the ban flag.
func (t *Tracker) Unban(userID string) error {
	_, err := t.mutate(userID, func(a *model.UserAccount) error {
		a.Banned = false
		a.BanReason = ""
		return nil
	})
	return err
}

// Banned reports whether the user is currently flagged.
func (t *Tracker) Banned(userID string) (bool, error) {
	acct, err := t.Account(userID)
	if err != nil {
		return false, err
	}
	return acct.Banned, nil
}

// SetPM toggles private-message intake for a user.
func (t *Tracker) SetPM(userID string, enabled bool) error {
	_, err := t.mutate(userID, func(a *model.UserAccount) error {
		a.PMEnabled = enabled
		return nil
	})
	return err
}

// ListBanned returns all flagged accounts.
func (t *Tracker) ListBanned() ([]model.UserAccount, error) {
	accts, err := t.all()
	if err != nil {
		return nil, err
	}
	var banned []model.UserAccount
	for _, a := range accts {
		if a.Banned {
			banned = append(banned, a)
		}
	}
	sort.Slice(banned, func(i, j int) bool { return banned[i].UserID < banned[j].UserID })
	return banned, nil
}

// TopUsers returns up to limit accounts ordered by total publishes.
func (t *Tracker) TopUsers(limit int) ([]model.UserAccount, error) {
	accts, err := t.all()
	if err != nil {
		return nil, err
	}
	sort.Slice(accts, func(i, j int) bool {
		if accts[i].TotalPosts != accts[j].TotalPosts {
			return accts[i].TotalPosts > accts[j].TotalPosts
		}
		return accts[i].UserID < accts[j].UserID
	})
	if len(accts) > limit {
		accts = accts[:limit]
	}
	return accts, nil
}

// Stats aggregates publish totals across all known users.
func (t *Tracker) Stats() (users int, totalPosts int, err error) {
	accts, err := t.all()
	if err != nil {
		return 0, 0, err
	}
	for _, a := range accts {
		totalPosts += a.TotalPosts
	}
	return len(accts), totalPosts, nil
}

func (t *Tracker) all() ([]model.UserAccount, error) {
	raw, err := t.st.ListByPrefix(userKeyPrefix)
	if err != nil {
		return nil, err
	}
	accts := make([]model.UserAccount, 0, len(raw))
	for k, v := range raw {
		var a model.UserAccount
		if err := json.Unmarshal([]byte(v), &a); err != nil {
			return nil, fmt.Errorf("decode account %s: %w", k, err)
		}
		accts = append(accts, a)
	}
	return accts, nil
}
