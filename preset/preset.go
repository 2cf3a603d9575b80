package preset

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"postmaker/model"
	"postmaker/store"
)

// ErrNotFound is returned when no preset exists under the given name.
var ErrNotFound = errors.New("preset not found")

const keyPrefix = "preset:"

// Registry stores named field templates. Writes are owner-only; the command
// layer enforces that before calling Upsert or Delete.
type Registry struct {
	st store.Store
}

func New(st store.Store) *Registry {
	return &Registry{st: st}
}

func (r *Registry) Get(name string) (model.Preset, error) {
	raw, found, err := r.st.Get(keyPrefix + normalize(name))
	if err != nil {
		return model.Preset{}, err
	}
	if !found {
		return model.Preset{}, ErrNotFound
	}
	var p model.Preset
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return model.Preset{}, fmt.Errorf("decode preset %s: %w", name, err)
	}
	return p, nil
}

func (r *Registry) List() ([]model.Preset, error) {
	raw, err := r.st.ListByPrefix(keyPrefix)
	if err != nil {
		return nil, err
	}
	presets := make([]model.Preset, 0, len(raw))
	for k, v := range raw {
		var p model.Preset
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			return nil, fmt.Errorf("decode preset %s: %w", k, err)
		}
		presets = append(presets, p)
	}
	sort.Slice(presets, func(i, j int) bool { return presets[i].Name < presets[j].Name })
	return presets, nil
}

func (r *Registry) Upsert(p model.Preset) error {
	p.Name = normalize(p.Name)
	if p.Name == "" {
		return errors.New("preset name is required")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.st.Put(keyPrefix+p.Name, string(raw))
}

func (r *Registry) Delete(name string) error {
	key := keyPrefix + normalize(name)
	_, found, err := r.st.Get(key)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return r.st.Delete(key)
}

// Apply merges preset defaults into fields the user has not supplied yet.
// Direct input always wins on conflict.
func Apply(p model.Preset, f *model.Fields) {
	set := func(dst *string, key string) {
		if *dst == "" {
			if v, ok := p.Fields[key]; ok {
				*dst = v
			}
		}
	}
	set(&f.RomName, "rom_name")
	set(&f.Version, "version")
	set(&f.AndroidVersion, "android_version")
	set(&f.Changelog, "changelog")
	set(&f.BannerStyle, "banner_style")
	set(&f.SupportGroup, "support_group")
	set(&f.Notes, "notes")
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
