package recorder

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
)

func expectMigrations(mock sqlmock.Sqlmock) {
	for range migrations {
		mock.ExpectExec(`CREATE (TABLE|INDEX) IF NOT EXISTS`).WillReturnResult(sqlmock.NewResult(0, 0))
	}
}

func newMocked(t *testing.T) (*SQLiteRecorder, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	expectMigrations(mock)
	r, err := NewWithDB(db, nil)
	if err != nil {
		t.Fatalf("NewWithDB: %v", err)
	}
	return r, mock
}

func TestNewWithDB_MigrationFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS cycles`).WillReturnError(errors.New("disk full"))

	if _, err := NewWithDB(db, nil); err == nil {
		t.Fatal("expected migration error")
	}
}

func TestRecordCycle(t *testing.T) {
	r, mock := newMocked(t)
	mock.ExpectExec(`INSERT INTO cycles`).
		WithArgs(sqlmock.AnyArg(), "alice", "1000", "-1000", 0, 2, "-1500", "48500", "active", "continue").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := r.RecordCycle(&CycleEvent{
		Account:       "alice",
		Stake:         decimal.NewFromInt(1000),
		Profit:        decimal.NewFromInt(-1000),
		LossStreak:    2,
		SessionProfit: decimal.NewFromInt(-1500),
		Balance:       decimal.NewFromInt(48500),
		Mode:          "active",
		Decision:      "continue",
	})
	if err != nil {
		t.Fatalf("RecordCycle: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecordCommandAndUpdate(t *testing.T) {
	r, mock := newMocked(t)
	mock.ExpectExec(`INSERT INTO commands`).
		WithArgs(sqlmock.AnyArg(), "chat:1", "pause", "bob", "", 1, "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO update_events`).
		WithArgs(sqlmock.AnyArg(), "apply", "v1.0.0", "v1.1.0", "failed", "fetch failed").
		WillReturnError(errors.New("locked"))

	if err := r.RecordCommand(&CommandEvent{Origin: "chat:1", Verb: "pause", Target: "bob", OK: true}); err != nil {
		t.Fatalf("RecordCommand: %v", err)
	}
	err := r.RecordUpdate(&UpdateEvent{Action: "apply", From: "v1.0.0", To: "v1.1.0", State: "failed", Error: "fetch failed"})
	if err == nil {
		t.Fatal("expected insert error to surface")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	if err := r.RecordCycle(&CycleEvent{}); err != nil {
		t.Fatalf("RecordCycle: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
