package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"BetSentinel/internal/config"
	"BetSentinel/internal/model"
	"BetSentinel/internal/notifier"
)

type recordNotifier struct {
	msgs []string
}

func (r *recordNotifier) Notify(_ context.Context, text string) error {
	r.msgs = append(r.msgs, text)
	return nil
}

type fakeReleases struct {
	calls int
	sent  bool
	err   error
}

func (f *fakeReleases) NotifyNewRelease(ctx context.Context, n notifier.Notifier) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	if f.sent {
		return true, n.Notify(ctx, "new release")
	}
	return false, nil
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ScheduleConfig
		jobs    int
		wantErr bool
	}{
		{"both", config.ScheduleConfig{ReleaseCheck: "0 */30 * * * *", DailySummary: "0 0 23 * * *"}, 2, false},
		{"summary only", config.ScheduleConfig{DailySummary: "0 0 23 * * *"}, 1, false},
		{"bad schedule", config.ScheduleConfig{ReleaseCheck: "every tuesday"}, 0, true},
	}
	for _, tt := range tests {
		s := New(context.Background(), &recordNotifier{}, nil)
		err := s.Register(tt.cfg, &fakeReleases{}, func() []notifier.AccountLine { return nil })
		if (err != nil) != tt.wantErr {
			t.Fatalf("%s: err=%v wantErr=%v", tt.name, err, tt.wantErr)
		}
		if !tt.wantErr && s.Jobs() != tt.jobs {
			t.Fatalf("%s: jobs=%d want=%d", tt.name, s.Jobs(), tt.jobs)
		}
	}
}

func TestRunReleaseCheck(t *testing.T) {
	n := &recordNotifier{}
	rel := &fakeReleases{sent: true}
	s := New(context.Background(), n, nil)
	if err := s.Register(config.ScheduleConfig{}, rel, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	s.RunReleaseCheck()
	if rel.calls != 1 || len(n.msgs) != 1 {
		t.Fatalf("calls=%d msgs=%d", rel.calls, len(n.msgs))
	}

	rel.err = errors.New("github down")
	s.RunReleaseCheck()
	if len(n.msgs) != 1 {
		t.Fatalf("failed check sent a message: %v", n.msgs)
	}
}

func TestRunDailySummary(t *testing.T) {
	n := &recordNotifier{}
	st := model.NewAccountState()
	st.Rounds = 4
	st.Wins = 3
	st.TotalProfit = decimal.NewFromInt(1500)
	lines := []notifier.AccountLine{{Name: "alice", State: st}}

	s := New(context.Background(), n, nil)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC) }
	if err := s.Register(config.ScheduleConfig{}, nil, func() []notifier.AccountLine { return lines }); err != nil {
		t.Fatalf("Register: %v", err)
	}
	s.RunDailySummary()
	if len(n.msgs) != 1 {
		t.Fatalf("msgs=%d want=1", len(n.msgs))
	}
	for _, want := range []string{"2026-03-01", "alice", "1500"} {
		if !strings.Contains(n.msgs[0], want) {
			t.Errorf("summary missing %q: %s", want, n.msgs[0])
		}
	}

	lines = nil
	s.RunDailySummary()
	if len(n.msgs) != 1 {
		t.Fatalf("empty summary was sent")
	}
}
