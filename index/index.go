// Package index stores published posts and answers browse/search queries.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"postmaker/model"
	"postmaker/store"

	"go.uber.org/zap"
)

// ErrRebuildInProgress rejects a second concurrent rebuild.
var ErrRebuildInProgress = errors.New("index rebuild already in progress")

const postKeyPrefix = "post:"

// HistorySource enumerates previously published entries, typically the
// broadcast channel's message history. Used only by Rebuild.
type HistorySource interface {
	EnumerateHistory(ctx context.Context) ([]model.Post, error)
}

// Index keeps all posts in memory keyed by composite identity, with a
// write-through copy in the store. A single mutex serializes writers, which
// keeps concurrent upserts from losing updates.
type Index struct {
	st  store.Store
	log *zap.Logger

	mu         sync.RWMutex
	posts      map[string]model.Post
	rebuilding bool
	pending    []model.Post
}

// New loads the persisted posts into memory.
func New(st store.Store, log *zap.Logger) (*Index, error) {
	ix := &Index{st: st, log: log, posts: make(map[string]model.Post)}
	raw, err := st.ListByPrefix(postKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	for k, v := range raw {
		var p model.Post
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			return nil, fmt.Errorf("decode post %s: %w", k, err)
		}
		ix.posts[p.Identity()] = p
	}
	return ix, nil
}

// Upsert inserts or replaces the post with the same composite identity.
// Applying the same record twice yields exactly one stored entry.
func (ix *Index) Upsert(p model.Post) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.persist(p); err != nil {
		return err
	}
	ix.posts[p.Identity()] = p
	if ix.rebuilding {
		// replayed onto the rebuilt map before the swap
		ix.pending = append(ix.pending, p)
	}
	return nil
}

func (ix *Index) persist(p model.Post) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return ix.st.Put(postKeyPrefix+p.Identity(), string(raw))
}

// Len returns the number of indexed posts.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.posts)
}

// Browse returns posts ordered by publish timestamp descending. page is
// 1-based; the second return value is the total number of posts.
func (ix *Index) Browse(page, pageSize int) ([]model.Post, int) {
	all := ix.sorted()
	if page < 1 || pageSize < 1 {
		return nil, len(all)
	}
	start := (page - 1) * pageSize
	if start >= len(all) {
		return nil, len(all)
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all)
}

// Devices returns the distinct device codenames, alphabetically.
func (ix *Index) Devices() []string {
	ix.mu.RLock()
	seen := make(map[string]string)
	for _, p := range ix.posts {
		seen[strings.ToLower(p.Device)] = p.Device
	}
	ix.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out
}

// PostsForDevice returns all posts for one device, newest first.
func (ix *Index) PostsForDevice(device string) []model.Post {
	device = strings.ToLower(device)
	var out []model.Post
	for _, p := range ix.sorted() {
		if strings.ToLower(p.Device) == device {
			out = append(out, p)
		}
	}
	return out
}

const (
	tierExact = iota
	tierPrefix
	tierSubstring
	tierNone
)

// Search matches the query against lowercase tokens of each post's device,
// rom name and maintainer. Exact token matches rank first, then prefix, then
// substring; ties order by publish timestamp descending. No match is an empty
// result, not an error.
func (ix *Index) Search(query string) []model.Post {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	type ranked struct {
		post model.Post
		tier int
	}
	var hits []ranked

	ix.mu.RLock()
	for _, p := range ix.posts {
		if t := matchTier(p, query); t != tierNone {
			hits = append(hits, ranked{post: p, tier: t})
		}
	}
	ix.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].tier != hits[j].tier {
			return hits[i].tier < hits[j].tier
		}
		return hits[i].post.PublishedAt.After(hits[j].post.PublishedAt)
	})

	out := make([]model.Post, len(hits))
	for i, h := range hits {
		out[i] = h.post
	}
	return out
}

func matchTier(p model.Post, query string) int {
	best := tierNone
	for _, tok := range tokens(p) {
		switch {
		case tok == query:
			return tierExact
		case strings.HasPrefix(tok, query):
			if tierPrefix < best {
				best = tierPrefix
			}
		case strings.Contains(tok, query):
			if tierSubstring < best {
				best = tierSubstring
			}
		}
	}
	return best
}

// tokens derives the lowercase token set from a post; it is recomputed per
// query and never stored.
func tokens(p model.Post) []string {
	fields := p.Device + " " + p.RomName + " " + p.Maintainer
	return strings.FieldsFunc(strings.ToLower(fields), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// Rebuild re-derives the whole index from src. Upserts from in-flight
// publishes keep landing in the live map while the history is enumerated and
// are replayed onto the rebuilt map before it is swapped in, so they are never
// lost and, being identity upserts, never duplicated.
func (ix *Index) Rebuild(ctx context.Context, src HistorySource) (int, error) {
	ix.mu.Lock()
	if ix.rebuilding {
		ix.mu.Unlock()
		return 0, ErrRebuildInProgress
	}
	ix.rebuilding = true
	ix.pending = nil
	ix.mu.Unlock()

	finish := func() {
		ix.mu.Lock()
		ix.rebuilding = false
		ix.pending = nil
		ix.mu.Unlock()
	}

	entries, err := src.EnumerateHistory(ctx)
	if err != nil {
		finish()
		return 0, fmt.Errorf("enumerate history: %w", err)
	}

	fresh := make(map[string]model.Post, len(entries))
	for _, p := range entries {
		fresh[p.Identity()] = p
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, p := range ix.pending {
		fresh[p.Identity()] = p
	}

	stale, err := ix.st.ListByPrefix(postKeyPrefix)
	if err != nil {
		ix.rebuilding = false
		ix.pending = nil
		return 0, err
	}
	for k := range stale {
		if _, keep := fresh[strings.TrimPrefix(k, postKeyPrefix)]; !keep {
			if err := ix.st.Delete(k); err != nil {
				ix.rebuilding = false
				ix.pending = nil
				return 0, err
			}
		}
	}
	for _, p := range fresh {
		if err := ix.persist(p); err != nil {
			ix.rebuilding = false
			ix.pending = nil
			return 0, err
		}
	}

	ix.posts = fresh
	ix.rebuilding = false
	ix.pending = nil
	ix.log.Info("index rebuilt", zap.Int("posts", len(fresh)))
	return len(fresh), nil
}

func (ix *Index) sorted() []model.Post {
	ix.mu.RLock()
	all := make([]model.Post, 0, len(ix.posts))
	for _, p := range ix.posts {
		all = append(all, p)
	}
	ix.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].PublishedAt.Equal(all[j].PublishedAt) {
			return all[i].PublishedAt.After(all[j].PublishedAt)
		}
		return all[i].Identity() < all[j].Identity()
	})
	return all
}
