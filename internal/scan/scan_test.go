package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openaddresses/batch-sub000/internal/db"
	"github.com/openaddresses/batch-sub000/internal/dispatch"
	"github.com/openaddresses/batch-sub000/internal/models"
	"github.com/openaddresses/batch-sub000/internal/moderation"
	"github.com/robfig/cron/v3"
)

func newTestScanner(t *testing.T) (*Scanner, *dispatch.Local) {
	t.Helper()
	gormDB, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	local := &dispatch.Local{}
	return &Scanner{DB: gormDB, Dispatcher: local}, local
}

func TestParseSchedule(t *testing.T) {
	if _, err := ParseSchedule("0 0 * * 0"); err != nil {
		t.Errorf("weekly: %v", err)
	}
	if _, err := ParseSchedule("not a cron expr"); err == nil {
		t.Error("expected error for invalid expression")
	}
}

func TestNextDuration(t *testing.T) {
	sched, _ := ParseSchedule("0 9 * * *")
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	if d := nextDuration(sched, now); d != time.Hour {
		t.Errorf("nextDuration = %v, want 1h", d)
	}

	every, _ := ParseSchedule("* * * * *")
	if d := nextDuration(every, time.Now()); d <= 0 || d > 61*time.Second {
		t.Errorf("every minute = %v", d)
	}
}

func TestTrigger_ClearsLedgerAndDispatches(t *testing.T) {
	s, local := newTestScanner(t)
	j := models.Job{RunID: 1, Source: "s", Layer: "l", Name: "n", Status: models.StatusWarn}
	s.DB.Create(&j)
	if err := moderation.Record(context.Background(), s.DB, nil, nil, &j, "old failure"); err != nil {
		t.Fatal(err)
	}

	handle, err := s.Trigger(context.Background())
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if handle == "" {
		t.Error("empty handle")
	}
	if n, _ := moderation.Count(s.DB); n != 0 {
		t.Errorf("ledger count = %d, want 0", n)
	}
	subs := local.Submissions()
	if len(subs) != 1 || subs[0].Kind != dispatch.KindSources {
		t.Errorf("submissions = %+v", subs)
	}
}

func TestTrigger_DispatchError(t *testing.T) {
	s, local := newTestScanner(t)
	local.FailFor = map[dispatch.Kind]error{dispatch.KindSources: errors.New("down")}
	if _, err := s.Trigger(context.Background()); err == nil {
		t.Error("expected error")
	}
}

// everyTick fires 10ms after any time.
type everyTick struct{}

func (everyTick) Next(t time.Time) time.Time { return t.Add(10 * time.Millisecond) }

var _ cron.Schedule = everyTick{}

func TestRun_FiresUntilCancelled(t *testing.T) {
	s, local := newTestScanner(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, everyTick{})
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(local.Submissions()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("only %d scans fired", len(local.Submissions()))
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
