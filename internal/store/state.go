package store

import (
	"context"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"BetSentinel/internal/model"
)

const (
	StateFile   = "state.json"
	PresetsFile = "presets.json"
)

// StateStore persists AccountState under <account dir>/state.json.
type StateStore struct {
	templateDir string
	locks       *KeyedLock
	log         *zap.Logger
}

// NewStateStore creates a store. templateDir may be empty.
func NewStateStore(templateDir string, locks *KeyedLock, log *zap.Logger) *StateStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &StateStore{templateDir: templateDir, locks: locks, log: log}
}

// Load reads the account state. A missing file is seeded from the template,
// or a fresh active state when there is no template.
func (s *StateStore) Load(dir string) (model.AccountState, error) {
	st := model.NewAccountState()
	found, err := ReadJSON(filepath.Join(dir, StateFile), &st)
	if err != nil {
		return model.AccountState{}, err
	}
	if found {
		if !st.Mode.Valid() {
			s.log.Warn("unknown persisted mode, using active", zap.String("dir", dir), zap.String("mode", string(st.Mode)))
			st.Mode = model.ModeActive
		}
		return st, nil
	}
	if s.templateDir != "" {
		seed := model.NewAccountState()
		ok, err := ReadJSON(filepath.Join(s.templateDir, StateFile), &seed)
		if err != nil {
			s.log.Warn("template state unreadable", zap.Error(err))
		} else if ok {
			s.log.Info("state seeded from template", zap.String("dir", dir))
			if !seed.Mode.Valid() {
				seed.Mode = model.ModeActive
			}
			return seed, nil
		}
	}
	return model.NewAccountState(), nil
}

// Save writes st atomically while holding the account lock.
func (s *StateStore) Save(ctx context.Context, dir string, st model.AccountState) error {
	release, err := s.locks.Acquire(ctx, dir)
	if err != nil {
		return err
	}
	defer release()

	st.UpdatedAt = time.Now()
	return WriteJSON(filepath.Join(dir, StateFile), st)
}
