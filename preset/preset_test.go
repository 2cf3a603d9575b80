package preset

import (
	"errors"
	"path/filepath"
	"testing"

	"postmaker/model"
	"postmaker/store"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st)
}

func TestRegistryCRUD(t *testing.T) {
	r := testRegistry(t)

	if _, err := r.Get("lineage"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing: err=%v, want ErrNotFound", err)
	}
	p := model.Preset{Name: "Lineage", Fields: map[string]string{"support_group": "https://t.me/lineage"}}
	if err := r.Upsert(p); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	// lookup is case-insensitive
	got, err := r.Get("LINEAGE")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Fields["support_group"] != "https://t.me/lineage" {
		t.Fatalf("unexpected preset: %v", got)
	}

	p.Fields["notes"] = "clean flash"
	if err := r.Upsert(p); err != nil {
		t.Fatalf("Upsert update: %v", err)
	}
	list, err := r.List()
	if err != nil || len(list) != 1 {
		t.Fatalf("List = %v err=%v, want one preset", list, err)
	}
	if list[0].Fields["notes"] != "clean flash" {
		t.Fatal("update not stored")
	}

	if err := r.Delete("lineage"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := r.Delete("lineage"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete missing: err=%v, want ErrNotFound", err)
	}
}

func TestApplyNeverOverwritesUserInput(t *testing.T) {
	p := model.Preset{Name: "x", Fields: map[string]string{
		"support_group": "https://t.me/group",
		"notes":         "wipe data",
		"banner_style":  "modern",
	}}
	f := model.Fields{Notes: "user notes", BannerStyle: ""}

	Apply(p, &f)

	if f.Notes != "user notes" {
		t.Fatalf("Notes = %q, preset overwrote direct input", f.Notes)
	}
	if f.SupportGroup != "https://t.me/group" {
		t.Fatalf("SupportGroup = %q, empty field not filled", f.SupportGroup)
	}
	if f.BannerStyle != "modern" {
		t.Fatalf("BannerStyle = %q, empty field not filled", f.BannerStyle)
	}
}
