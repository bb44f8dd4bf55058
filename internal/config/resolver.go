package config

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"BetSentinel/internal/errs"
)

// RequiredSharedKeys must be present at the top level of the shared config.
var RequiredSharedKeys = []string{"proxy", "ai", "groups", "notification"}

// RequiredAccountKeys must be non-empty in every effective account config.
var RequiredAccountKeys = []string{"account.name", "telegram.session_name", "site.cookie"}

// KnownKeys are the top-level sections accepted in strict mode.
var KnownKeys = []string{
	"account", "telegram", "site", "notification", "betting",
	"risk", "proxy", "ai", "groups",
}

// Resolver loads the shared config and layers account configs on top of it.
type Resolver struct {
	candidates []string
	strict     bool
	log        *zap.Logger
}

type Option func(*Resolver)

// WithStrict makes ResolveAccount reject unknown top-level keys.
func WithStrict(strict bool) Option {
	return func(r *Resolver) { r.strict = strict }
}

func WithLogger(log *zap.Logger) Option {
	return func(r *Resolver) { r.log = log }
}

// NewResolver creates a Resolver trying candidates in order.
func NewResolver(candidates []string, opts ...Option) *Resolver {
	r := &Resolver{
		candidates: append([]string(nil), candidates...),
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadShared returns the first existing shared candidate and its path.
func (r *Resolver) LoadShared() (Value, string, error) {
	for _, path := range r.candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		v, err := ReadFile(path)
		if err != nil {
			return Null(), path, err
		}
		if isExample(path) {
			r.log.Warn("using example shared config, copy it to a local file", zap.String("path", path))
		}
		if err := checkShared(v); err != nil {
			return Null(), path, fmt.Errorf("%s: %w", path, err)
		}
		r.log.Info("shared config loaded", zap.String("path", path))
		return v, path, nil
	}
	return Null(), "", fmt.Errorf("%w: no shared config found in %s", errs.ErrConfig, strings.Join(r.candidates, ", "))
}

// ResolveAccount reads an account file and merges it over shared.
func (r *Resolver) ResolveAccount(shared Value, path string) (AccountConfig, Value, error) {
	account, err := ReadFile(path)
	if err != nil {
		return AccountConfig{}, Null(), err
	}
	return r.Resolve(shared, account)
}

// Resolve merges account over shared, decodes and validates the result.
func (r *Resolver) Resolve(shared, account Value) (AccountConfig, Value, error) {
	if account.IsNull() {
		account = EmptyObject()
	}
	if !account.IsObject() {
		return AccountConfig{}, Null(), fmt.Errorf("%w: account config must be an object, got %s", errs.ErrConfig, account.Kind())
	}
	merged := Merge(shared, account)

	if r.strict {
		if err := checkKnown(merged); err != nil {
			return AccountConfig{}, Null(), err
		}
	}
	for _, key := range RequiredAccountKeys {
		v, ok := merged.Lookup(key)
		if !ok || v.IsNull() || strings.TrimSpace(v.String()) == "" {
			return AccountConfig{}, Null(), fmt.Errorf("%w: missing %s", errs.ErrConfig, key)
		}
	}

	var cfg AccountConfig
	if err := merged.Decode(&cfg); err != nil {
		return AccountConfig{}, Null(), fmt.Errorf("%w: decode account config: %v", errs.ErrConfig, err)
	}
	return cfg, merged, nil
}

// ReadFile parses a YAML or JSON config file.
func ReadFile(path string) (Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Null(), fmt.Errorf("%w: read %s: %v", errs.ErrConfig, path, err)
	}
	v, err := Parse(data)
	if err != nil {
		return Null(), fmt.Errorf("%w: parse %s: %v", errs.ErrConfig, path, err)
	}
	return v, nil
}

func checkShared(v Value) error {
	if !v.IsObject() {
		return fmt.Errorf("%w: shared config must be an object", errs.ErrConfig)
	}
	var missing []string
	for _, key := range RequiredSharedKeys {
		if _, ok := v.Field(key); !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: shared config missing %s", errs.ErrConfig, strings.Join(missing, ", "))
	}
	return nil
}

func checkKnown(v Value) error {
	known := make(map[string]bool, len(KnownKeys))
	for _, k := range KnownKeys {
		known[k] = true
	}
	for _, k := range v.Keys() {
		if !known[k] {
			return fmt.Errorf("%w: unknown key %q", errs.ErrConfig, k)
		}
	}
	return nil
}

func isExample(path string) bool {
	return strings.Contains(path, ".example.")
}
