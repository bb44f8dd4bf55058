package recorder

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists history to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string, log *zap.Logger) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// WAL lets dashboards read while workers write.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	r, err := NewWithDB(db, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	r.log.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

// NewWithDB wraps an open database and runs migrations.
func NewWithDB(db *sql.DB, log *zap.Logger) (*SQLiteRecorder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &SQLiteRecorder{db: db, log: log}
	if err := r.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS cycles (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp      INTEGER NOT NULL,
		account        TEXT NOT NULL,
		stake          TEXT,
		profit         TEXT,
		win            INTEGER,
		loss_streak    INTEGER,
		session_profit TEXT,
		balance        TEXT,
		mode           TEXT,
		decision       TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cycles_account_ts ON cycles(account, timestamp)`,

	`CREATE TABLE IF NOT EXISTS commands (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		origin    TEXT,
		verb      TEXT,
		target    TEXT,
		args      TEXT,
		ok        INTEGER,
		error     TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_commands_ts ON commands(timestamp)`,

	`CREATE TABLE IF NOT EXISTS update_events (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		action    TEXT,
		from_ref  TEXT,
		to_ref    TEXT,
		state     TEXT,
		error     TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_update_ts ON update_events(timestamp)`,
}

func (r *SQLiteRecorder) migrate() error {
	for _, s := range migrations {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordCycle(evt *CycleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO cycles
		(timestamp, account, stake, profit, win, loss_streak, session_profit, balance, mode, decision)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), evt.Account, evt.Stake.String(), evt.Profit.String(), boolInt(evt.Win),
		evt.LossStreak, evt.SessionProfit.String(), evt.Balance.String(), evt.Mode, evt.Decision,
	)
	return err
}

func (r *SQLiteRecorder) RecordCommand(evt *CommandEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO commands
		(timestamp, origin, verb, target, args, ok, error)
		VALUES (?,?,?,?,?,?,?)`,
		time.Now().Unix(), evt.Origin, evt.Verb, evt.Target, evt.Args, boolInt(evt.OK), evt.Error,
	)
	return err
}

func (r *SQLiteRecorder) RecordUpdate(evt *UpdateEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO update_events
		(timestamp, action, from_ref, to_ref, state, error)
		VALUES (?,?,?,?,?,?)`,
		time.Now().Unix(), evt.Action, evt.From, evt.To, evt.State, evt.Error,
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info("closing sqlite recorder")
	return r.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
