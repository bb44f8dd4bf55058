package account

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"BetSentinel/internal/config"
)

const sharedYAML = `
proxy: {enabled: false}
ai: {}
groups: {}
notification: {chat_id: "-100"}
telegram: {session_name: shared}
`

func writeAccount(t *testing.T, users, dir, file, body string) {
	t.Helper()
	p := filepath.Join(users, dir)
	if err := os.MkdirAll(p, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(p, file), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscover(t *testing.T) {
	users := t.TempDir()
	writeAccount(t, users, "alice", "config.yaml", "account: {name: alice}\ntelegram: {chat_id: '42'}\nsite: {cookie: c1}\n")
	writeAccount(t, users, "12345", "config.json", `{"account": {"name": "bob"}, "groups": {"admin_chat": "-200"}, "site": {"cookie": "c2"}}`)
	writeAccount(t, users, "carol", "config.yml", "account: {name: carol}\n") // no cookie
	writeAccount(t, users, "_template", "config.yaml", "account: {name: tpl}\nsite: {cookie: x}\n")
	if err := os.MkdirAll(filepath.Join(users, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	shared, err := config.Parse([]byte(sharedYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	reg, err := Discover(users, config.NewResolver(nil), shared, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if reg.Len() != 2 {
		t.Fatalf("accounts=%d want=2", reg.Len())
	}
	all := reg.All()
	if all[0].Name != "alice" || all[1].Name != "bob" {
		t.Fatalf("order=%s,%s", all[0].Name, all[1].Name)
	}

	bob, ok := reg.ByName("BOB")
	if !ok {
		t.Fatal("ByName is case-insensitive")
	}
	if bob.ID != "12345" {
		t.Fatalf("bob id=%s want=12345", bob.ID)
	}
	if bob.Config.Telegram.SessionName != "shared" {
		t.Fatalf("shared value not inherited: %q", bob.Config.Telegram.SessionName)
	}

	alice, _ := reg.ByName("alice")
	want := uuid.NewSHA1(uuid.NameSpaceURL, []byte("betsentinel:alice")).String()
	if alice.ID != want {
		t.Fatalf("alice id=%s want=%s", alice.ID, want)
	}
	if a, ok := reg.ByChat("42"); !ok || a.Name != "alice" {
		t.Fatalf("ByChat(42)=%v,%v", a, ok)
	}
	if _, ok := reg.ByChat("999"); ok {
		t.Fatal("unknown chat must not match")
	}
	if got := strings.Join(reg.ChatIDs(), ","); got != "42,-100,-200" {
		t.Fatalf("ChatIDs=%s want=42,-100,-200", got)
	}
}

func TestStableID(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.AccountConfig
		dir  string
		want string
	}{
		{"configured", config.AccountConfig{Account: config.AccountSection{ID: "acc-1"}}, "x", "acc-1"},
		{"telegram user", config.AccountConfig{Telegram: config.TelegramSection{UserID: 77}}, "x", "77"},
		{"numeric dir", config.AccountConfig{}, "9001", "9001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stableID(tt.cfg, tt.dir); got != tt.want {
				t.Fatalf("id=%s want=%s", got, tt.want)
			}
		})
	}
	if a, b := stableID(config.AccountConfig{}, "zed"), stableID(config.AccountConfig{}, "zed"); a != b {
		t.Fatalf("uuid id not stable: %s vs %s", a, b)
	}
}

func TestNewRegistry_Duplicate(t *testing.T) {
	if _, err := NewRegistry(&Account{Name: "a"}, &Account{Name: "A"}); err == nil {
		t.Fatal("expected duplicate error")
	}
}
