// Package scan schedules full source scans. Each scan clears the error
// ledger and submits a "sources" task that re-runs every source.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openaddresses/batch-sub000/internal/dispatch"
	"github.com/openaddresses/batch-sub000/internal/moderation"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule validates a 5-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("scan: parse schedule %q: %w", expr, err)
	}
	return sched, nil
}

// nextDuration returns the time from now until sched next fires.
func nextDuration(sched cron.Schedule, now time.Time) time.Duration {
	d := sched.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Scanner triggers full scans.
type Scanner struct {
	DB         *gorm.DB
	Dispatcher dispatch.Dispatcher
	Logger     *slog.Logger
}

func (s *Scanner) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Trigger starts one full scan: the ledger is cleared first so the inbox
// only holds failures from the new scan.
func (s *Scanner) Trigger(ctx context.Context) (string, error) {
	if err := moderation.Clear(s.DB); err != nil {
		return "", err
	}
	handle, err := s.Dispatcher.Submit(ctx, dispatch.KindSources, dispatch.Payload{})
	if err != nil {
		return "", err
	}
	s.logger().Info("full scan started", "handle", handle)
	return handle, nil
}

// Run triggers a scan every time sched fires until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context, sched cron.Schedule) {
	timer := time.NewTimer(nextDuration(sched, time.Now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if _, err := s.Trigger(ctx); err != nil {
				s.logger().Error("full scan failed", "error", err)
			}
			timer.Reset(nextDuration(sched, time.Now()))
		}
	}
}
