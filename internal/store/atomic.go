package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"BetSentinel/internal/errs"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// WriteFileAtomic writes data to a temp file in the target directory, syncs it
// and renames it over path. On failure the previous file is left untouched.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

// WriteJSON marshals v with indentation and writes it atomically.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", errs.ErrStorage, filepath.Base(path), err)
	}
	if err := WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", errs.ErrStorage, path, err)
	}
	return nil
}

// ReadJSON decodes path into v. It returns false when the file does not exist.
func ReadJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: read %s: %v", errs.ErrStorage, path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("%w: decode %s: %v", errs.ErrStorage, path, err)
	}
	return true, nil
}

// KeyedLock hands out one exclusive lock per key with a bounded wait.
type KeyedLock struct {
	mu      sync.Mutex
	locks   map[string]chan struct{}
	timeout time.Duration
}

// NewKeyedLock creates a KeyedLock. timeout <= 0 means wait for ctx only.
func NewKeyedLock(timeout time.Duration) *KeyedLock {
	return &KeyedLock{locks: make(map[string]chan struct{}), timeout: timeout}
}

func (k *KeyedLock) slot(key string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	ch, ok := k.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.locks[key] = ch
	}
	return ch
}

// Acquire takes the lock for key and returns its release func. It fails with
// ErrStorage when the wait exceeds the timeout or ctx ends.
func (k *KeyedLock) Acquire(ctx context.Context, key string) (func(), error) {
	ch := k.slot(key)
	if k.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.timeout)
		defer cancel()
	}
	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: lock %s: %v", errs.ErrStorage, filepath.Base(key), ctx.Err())
	}
}
