// Package account discovers the configured accounts under the users directory.
package account

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"BetSentinel/internal/config"
	"BetSentinel/internal/errs"
)

// ConfigFiles are tried in order inside each account directory.
var ConfigFiles = []string{"config.yaml", "config.yml", "config.json"}

// Account is one discovered account with its effective configuration.
type Account struct {
	Name   string
	ID     string
	Dir    string
	Config config.AccountConfig
	Tree   config.Value
}

// Registry is the immutable set of accounts found at startup.
type Registry struct {
	accounts []*Account
	byName   map[string]*Account
}

// NewRegistry indexes accounts by name. Later duplicates are rejected.
func NewRegistry(accounts ...*Account) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Account, len(accounts))}
	for _, a := range accounts {
		key := strings.ToLower(a.Name)
		if _, dup := r.byName[key]; dup {
			return nil, fmt.Errorf("%w: duplicate account name %q", errs.ErrConfig, a.Name)
		}
		r.byName[key] = a
		r.accounts = append(r.accounts, a)
	}
	sort.Slice(r.accounts, func(i, j int) bool { return r.accounts[i].Name < r.accounts[j].Name })
	return r, nil
}

// All returns the accounts sorted by name.
func (r *Registry) All() []*Account {
	return append([]*Account(nil), r.accounts...)
}

func (r *Registry) Len() int { return len(r.accounts) }

// ByName looks an account up, ignoring case.
func (r *Registry) ByName(name string) (*Account, bool) {
	a, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return a, ok
}

// ByChat returns the account bound to a chat origin: its telegram chat,
// its notification chat or its telegram user id.
func (r *Registry) ByChat(chatID string) (*Account, bool) {
	if chatID == "" {
		return nil, false
	}
	for _, a := range r.accounts {
		c := a.Config
		if c.Telegram.ChatID == chatID || c.Notification.ChatID == chatID {
			return a, true
		}
		if c.Telegram.UserID != 0 && strconv.FormatInt(c.Telegram.UserID, 10) == chatID {
			return a, true
		}
	}
	return nil, false
}

// ChatIDs lists every chat bound to an account plus each account's admin
// chat, without duplicates.
func (r *Registry) ChatIDs() []string {
	var ids []string
	seen := make(map[string]bool)
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, a := range r.accounts {
		c := a.Config
		add(c.Telegram.ChatID)
		add(c.Notification.ChatID)
		add(c.Groups.AdminChat)
		if c.Telegram.UserID != 0 {
			add(strconv.FormatInt(c.Telegram.UserID, 10))
		}
	}
	return ids
}

// Discover scans usersDir for account directories. Directories starting with
// "_" are templates and skipped. An account whose config fails to resolve is
// logged and skipped; the others still load.
func Discover(usersDir string, resolver *config.Resolver, shared config.Value, log *zap.Logger) (*Registry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	entries, err := os.ReadDir(usersDir)
	if err != nil {
		return nil, fmt.Errorf("%w: read users dir: %v", errs.ErrConfig, err)
	}

	var accounts []*Account
	seen := make(map[string]bool)
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), "_") || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dir := filepath.Join(usersDir, e.Name())
		a, err := load(dir, resolver, shared)
		if err != nil {
			if errors.Is(err, errNoConfig) {
				log.Debug("directory without config skipped", zap.String("dir", dir))
				continue
			}
			log.Error("account skipped", zap.String("dir", dir), zap.Error(err))
			continue
		}
		key := strings.ToLower(a.Name)
		if seen[key] {
			log.Error("account skipped: duplicate name", zap.String("dir", dir), zap.String("account", a.Name))
			continue
		}
		seen[key] = true
		accounts = append(accounts, a)
		log.Info("account loaded", zap.String("account", a.Name), zap.String("id", a.ID))
	}
	return NewRegistry(accounts...)
}

var errNoConfig = errors.New("no config file")

func load(dir string, resolver *config.Resolver, shared config.Value) (*Account, error) {
	path := ""
	for _, name := range ConfigFiles {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			path = p
			break
		}
	}
	if path == "" {
		return nil, errNoConfig
	}
	cfg, tree, err := resolver.ResolveAccount(shared, path)
	if err != nil {
		return nil, err
	}
	return &Account{
		Name:   cfg.Account.Name,
		ID:     stableID(cfg, filepath.Base(dir)),
		Dir:    dir,
		Config: cfg,
		Tree:   tree,
	}, nil
}

// stableID prefers the configured id, then the telegram user id, then a
// numeric directory name, then a name-based UUID of the directory.
func stableID(cfg config.AccountConfig, dirName string) string {
	if id := strings.TrimSpace(cfg.Account.ID); id != "" {
		return id
	}
	if cfg.Telegram.UserID != 0 {
		return strconv.FormatInt(cfg.Telegram.UserID, 10)
	}
	if _, err := strconv.ParseInt(dirName, 10, 64); err == nil {
		return dirName
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("betsentinel:"+dirName)).String()
}
