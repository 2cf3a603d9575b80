package index

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"postmaker/model"
	"postmaker/store"

	"go.uber.org/zap"
)

func testIndex(t *testing.T) (*Index, *store.SQLite) {
	t.Helper()
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	ix, err := New(st, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ix, st
}

func post(device, rom, version string, at time.Time) model.Post {
	return model.Post{
		Device:      device,
		RomName:     rom,
		Version:     version,
		Maintainer:  "ayan",
		PublishedAt: at,
	}
}

var base = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

func TestUpsertIsIdempotent(t *testing.T) {
	ix, st := testIndex(t)

	p := post("OnePlus9", "LineageOS", "20.0", base)
	if err := ix.Upsert(p); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := ix.Upsert(p); err != nil {
		t.Fatalf("Upsert twice: %v", err)
	}
	if ix.Len() != 1 {
		t.Fatalf("Len = %d, want 1", ix.Len())
	}

	// replacement by identity, not duplication
	p.MessageID = "42"
	if err := ix.Upsert(p); err != nil {
		t.Fatalf("Upsert replace: %v", err)
	}
	if ix.Len() != 1 {
		t.Fatalf("Len after replace = %d, want 1", ix.Len())
	}

	// survives a reload from the store
	ix2, err := New(st, zap.NewNop())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if ix2.Len() != 1 {
		t.Fatalf("reloaded Len = %d, want 1", ix2.Len())
	}
	got, _ := ix2.Browse(1, 10)
	if got[0].MessageID != "42" {
		t.Fatalf("reloaded post = %+v", got[0])
	}
}

func TestBrowseOrderAndPagination(t *testing.T) {
	ix, _ := testIndex(t)

	for i := 0; i < 5; i++ {
		p := post("dev", "Rom", string(rune('a'+i)), base.Add(time.Duration(i)*time.Hour))
		if err := ix.Upsert(p); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	page, total := ix.Browse(1, 2)
	if total != 5 || len(page) != 2 {
		t.Fatalf("page1 len=%d total=%d", len(page), total)
	}
	if !page[0].PublishedAt.After(page[1].PublishedAt) {
		t.Fatal("browse not timestamp descending")
	}
	page, _ = ix.Browse(3, 2)
	if len(page) != 1 {
		t.Fatalf("page3 len=%d, want 1", len(page))
	}
	page, _ = ix.Browse(4, 2)
	if len(page) != 0 {
		t.Fatalf("page4 len=%d, want 0", len(page))
	}
}

func TestSearchRanking(t *testing.T) {
	ix, _ := testIndex(t)

	exact := post("OnePlus9", "LineageOS", "20.0", base)
	prefix := post("lineab", "Other", "1.0", base.Add(time.Hour))
	substr := post("xlineagey", "Other", "2.0", base.Add(2*time.Hour))
	none := post("munch", "Evolution", "9", base)
	for _, p := range []model.Post{substr, none, prefix, exact} {
		if err := ix.Upsert(p); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	got := ix.Search("LineageOS")
	if len(got) == 0 || got[0].Device != "OnePlus9" {
		t.Fatalf("exact match not ranked first: %+v", got)
	}

	got = ix.Search("linea")
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	// prefix tier: lineageos (exact? no — "linea" is a prefix of lineageos and lineab)
	if got[len(got)-1].Device != "xlineagey" {
		t.Fatalf("substring match should rank last: %+v", got)
	}

	if got := ix.Search("nomatch"); len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
	if got := ix.Search("  "); len(got) != 0 {
		t.Fatalf("blank query should return nothing, got %v", got)
	}
}

func TestSearchTiesOrderByTimestamp(t *testing.T) {
	ix, _ := testIndex(t)

	old := post("vayu", "crDroid", "10", base)
	newer := post("vayu", "crDroid", "11", base.Add(time.Hour))
	if err := ix.Upsert(old); err != nil {
		t.Fatal(err)
	}
	if err := ix.Upsert(newer); err != nil {
		t.Fatal(err)
	}
	got := ix.Search("vayu")
	if len(got) != 2 || got[0].Version != "11" {
		t.Fatalf("same-tier results not timestamp descending: %+v", got)
	}
}

func TestDevices(t *testing.T) {
	ix, _ := testIndex(t)

	for _, p := range []model.Post{
		post("vayu", "A", "1", base),
		post("vayu", "B", "2", base.Add(time.Hour)),
		post("munch", "A", "1", base),
	} {
		if err := ix.Upsert(p); err != nil {
			t.Fatal(err)
		}
	}
	devs := ix.Devices()
	if len(devs) != 2 || devs[0] != "munch" || devs[1] != "vayu" {
		t.Fatalf("Devices = %v", devs)
	}
	roms := ix.PostsForDevice("VAYU")
	if len(roms) != 2 || roms[0].RomName != "B" {
		t.Fatalf("PostsForDevice = %+v", roms)
	}
}

type stubSource struct {
	posts []model.Post
	block chan struct{} // closed to release EnumerateHistory
	enter chan struct{} // signalled when EnumerateHistory starts
}

func (s *stubSource) EnumerateHistory(ctx context.Context) ([]model.Post, error) {
	if s.enter != nil {
		close(s.enter)
	}
	if s.block != nil {
		<-s.block
	}
	return s.posts, nil
}

func TestRebuildIdempotent(t *testing.T) {
	ix, _ := testIndex(t)

	// a live entry that history no longer contains gets dropped
	if err := ix.Upsert(post("gone", "Old", "1", base)); err != nil {
		t.Fatal(err)
	}

	src := &stubSource{posts: []model.Post{
		post("vayu", "crDroid", "10", base),
		post("munch", "Evolution", "9", base),
	}}
	for i := 0; i < 2; i++ {
		n, err := ix.Rebuild(context.Background(), src)
		if err != nil {
			t.Fatalf("Rebuild %d: %v", i, err)
		}
		if n != 2 || ix.Len() != 2 {
			t.Fatalf("Rebuild %d: n=%d len=%d, want 2", i, n, ix.Len())
		}
	}
	if len(ix.PostsForDevice("gone")) != 0 {
		t.Fatal("stale entry survived rebuild")
	}
}

func TestRebuildKeepsConcurrentUpserts(t *testing.T) {
	ix, _ := testIndex(t)

	src := &stubSource{
		posts: []model.Post{post("vayu", "crDroid", "10", base)},
		block: make(chan struct{}),
		enter: make(chan struct{}),
	}

	done := make(chan error, 1)
	go func() {
		_, err := ix.Rebuild(context.Background(), src)
		done <- err
	}()

	<-src.enter
	// a publish lands while history is being enumerated
	live := post("munch", "Evolution", "9", base.Add(time.Hour))
	if err := ix.Upsert(live); err != nil {
		t.Fatalf("Upsert during rebuild: %v", err)
	}
	close(src.block)

	if err := <-done; err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if ix.Len() != 2 {
		t.Fatalf("Len = %d, want 2 (in-flight publish lost)", ix.Len())
	}
	if got := ix.PostsForDevice("munch"); len(got) != 1 {
		t.Fatalf("in-flight publish missing: %v", got)
	}
}
