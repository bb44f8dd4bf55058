package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"BetSentinel/internal/model"
)

// ErrPresetNotFound is returned for unknown preset names.
var ErrPresetNotFound = errors.New("preset not found")

// PresetRegistry keeps the named presets of every account, backed by
// <account dir>/presets.json.
type PresetRegistry struct {
	templateDir string
	locks       *KeyedLock
	log         *zap.Logger

	mu    sync.RWMutex
	cache map[string]map[string]model.Preset
}

func NewPresetRegistry(templateDir string, locks *KeyedLock, log *zap.Logger) *PresetRegistry {
	if log == nil {
		log = zap.NewNop()
	}
	return &PresetRegistry{
		templateDir: templateDir,
		locks:       locks,
		log:         log,
		cache:       make(map[string]map[string]model.Preset),
	}
}

// Get returns the preset called name. Names are case-sensitive.
func (r *PresetRegistry) Get(dir, name string) (model.Preset, error) {
	set, err := r.load(dir)
	if err != nil {
		return model.Preset{}, err
	}
	p, ok := set[name]
	if !ok {
		return model.Preset{}, fmt.Errorf("%w: %q", ErrPresetNotFound, name)
	}
	return p, nil
}

// List returns the sorted preset names of an account.
func (r *PresetRegistry) List(dir string) ([]string, error) {
	set, err := r.load(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// All returns a copy of every preset of an account.
func (r *PresetRegistry) All(dir string) (map[string]model.Preset, error) {
	set, err := r.load(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Preset, len(set))
	for k, v := range set {
		out[k] = v
	}
	return out, nil
}

// Upsert stores p under name, replacing any previous value.
func (r *PresetRegistry) Upsert(ctx context.Context, dir, name string, p model.Preset) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return r.mutate(ctx, dir, func(set map[string]model.Preset) error {
		set[name] = p
		return nil
	})
}

// Delete removes name. Deleting an unknown preset is ErrPresetNotFound.
func (r *PresetRegistry) Delete(ctx context.Context, dir, name string) error {
	return r.mutate(ctx, dir, func(set map[string]model.Preset) error {
		if _, ok := set[name]; !ok {
			return fmt.Errorf("%w: %q", ErrPresetNotFound, name)
		}
		delete(set, name)
		return nil
	})
}

func (r *PresetRegistry) mutate(ctx context.Context, dir string, fn func(map[string]model.Preset) error) error {
	release, err := r.locks.Acquire(ctx, dir)
	if err != nil {
		return err
	}
	defer release()

	current, err := r.load(dir)
	if err != nil {
		return err
	}
	next := make(map[string]model.Preset, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	if err := fn(next); err != nil {
		return err
	}
	if err := WriteJSON(filepath.Join(dir, PresetsFile), next); err != nil {
		return err
	}

	r.mu.Lock()
	r.cache[dir] = next
	r.mu.Unlock()
	return nil
}

func (r *PresetRegistry) load(dir string) (map[string]model.Preset, error) {
	r.mu.RLock()
	set, ok := r.cache[dir]
	r.mu.RUnlock()
	if ok {
		return set, nil
	}

	set, found, err := readPresets(filepath.Join(dir, PresetsFile))
	if err != nil {
		return nil, err
	}
	if !found && r.templateDir != "" {
		set, found, err = readPresets(filepath.Join(r.templateDir, PresetsFile))
		if err != nil {
			r.log.Warn("template presets unreadable", zap.Error(err))
			found = false
		}
	}
	if !found {
		set = model.DefaultPresets()
	}

	r.mu.Lock()
	if cached, ok := r.cache[dir]; ok {
		set = cached
	} else {
		r.cache[dir] = set
	}
	r.mu.Unlock()
	return set, nil
}

// readPresets accepts both the object form and the legacy 7-number array
// form [continuous, lose_stop, m1, m2, m3, m4, initial].
func readPresets(path string) (map[string]model.Preset, bool, error) {
	var raw map[string]jsoniter.RawMessage
	found, err := ReadJSON(path, &raw)
	if err != nil || !found {
		return nil, found, err
	}
	out := make(map[string]model.Preset, len(raw))
	for name, msg := range raw {
		p, err := decodePreset(msg)
		if err != nil {
			return nil, true, fmt.Errorf("preset %q: %w", name, err)
		}
		out[name] = p
	}
	return out, true, nil
}

func decodePreset(msg []byte) (model.Preset, error) {
	var legacy []float64
	if err := json.Unmarshal(msg, &legacy); err == nil {
		return PresetFromValues(legacy)
	}
	var p model.Preset
	if err := json.Unmarshal(msg, &p); err != nil {
		return model.Preset{}, err
	}
	return p, nil
}

// PresetFromValues builds a preset from the 7 positional parameters.
func PresetFromValues(v []float64) (model.Preset, error) {
	if len(v) != 7 {
		return model.Preset{}, fmt.Errorf("want 7 values, got %d", len(v))
	}
	p := model.Preset{
		Continuous:  int(v[0]),
		LoseStop:    int(v[1]),
		Multipliers: [4]float64{v[2], v[3], v[4], v[5]},
		Initial:     decimal.NewFromFloat(v[6]),
	}
	return p, p.Validate()
}
