package store

import (
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) *SQLite {
	t.Helper()
	st, err := OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestPutGetDelete(t *testing.T) {
	st := testStore(t)

	if _, found, err := st.Get("missing"); err != nil || found {
		t.Fatalf("Get missing: found=%v err=%v", found, err)
	}
	if err := st.Put("a", "1"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := st.Put("a", "2"); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	v, found, err := st.Get("a")
	if err != nil || !found || v != "2" {
		t.Fatalf("Get after overwrite: v=%q found=%v err=%v", v, found, err)
	}
	if err := st.Delete("a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, found, _ := st.Get("a"); found {
		t.Fatal("key survived Delete")
	}
}

func TestListByPrefix(t *testing.T) {
	st := testStore(t)

	for k, v := range map[string]string{"post:a": "1", "post:b": "2", "user:a": "3"} {
		if err := st.Put(k, v); err != nil {
			t.Fatalf("Put %s: %v", k, err)
		}
	}
	got, err := st.ListByPrefix("post:")
	if err != nil {
		t.Fatalf("ListByPrefix: %v", err)
	}
	if len(got) != 2 || got["post:a"] != "1" || got["post:b"] != "2" {
		t.Fatalf("unexpected prefix result: %v", got)
	}
}

func TestCompareAndSwap(t *testing.T) {
	st := testStore(t)

	// create-if-absent
	ok, err := st.CompareAndSwap("k", "", "v1")
	if err != nil || !ok {
		t.Fatalf("CAS create: ok=%v err=%v", ok, err)
	}
	// create again must fail
	ok, err = st.CompareAndSwap("k", "", "v2")
	if err != nil || ok {
		t.Fatalf("CAS duplicate create: ok=%v err=%v", ok, err)
	}
	// wrong expectation
	ok, err = st.CompareAndSwap("k", "stale", "v2")
	if err != nil || ok {
		t.Fatalf("CAS stale: ok=%v err=%v", ok, err)
	}
	// correct expectation
	ok, err = st.CompareAndSwap("k", "v1", "v2")
	if err != nil || !ok {
		t.Fatalf("CAS swap: ok=%v err=%v", ok, err)
	}
	v, _, _ := st.Get("k")
	if v != "v2" {
		t.Fatalf("value after CAS = %q, want v2", v)
	}
}
