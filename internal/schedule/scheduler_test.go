package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAddJobValidatesSpec(t *testing.T) {
	s := New(nil)
	job := FuncJob{JobName: "backfill", Fn: func(context.Context) error { return nil }}

	if err := s.AddJob(job, "not a spec"); err == nil {
		t.Fatalf("expected an error for an invalid spec")
	}
	if err := s.AddJob(job, "*/15 * * * *"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AddJob(job, "0 * * * *"); err == nil {
		t.Fatalf("expected an error for a duplicate job name")
	}

	if _, ok := s.Next("missing"); ok {
		t.Fatalf("expected no entry for an unknown job")
	}
}

func TestWrapSkipsOverlappingRuns(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := New(zap.New(core))

	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})
	job := FuncJob{JobName: "slow", Fn: func(context.Context) error {
		calls.Add(1)
		close(started)
		<-release
		return nil
	}}

	fn := s.wrap(job, "* * * * *")
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()

	<-started
	fn()
	close(release)
	<-done

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 run, got %d", got)
	}
	if logs.FilterMessage("job skipped: still running").Len() != 1 {
		t.Fatalf("expected a skip log entry")
	}
}

func TestWrapLogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := New(zap.New(core))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.ctx = ctx

	var seen context.Context
	job := FuncJob{JobName: "failing", Fn: func(ctx context.Context) error {
		seen = ctx
		return errors.New("boom")
	}}
	s.wrap(job, "* * * * *")()

	if seen != ctx {
		t.Fatalf("expected the start context to reach the job")
	}
	entries := logs.FilterMessage("job finished").All()
	if len(entries) != 1 || entries[0].Level != zapcore.ErrorLevel {
		t.Fatalf("expected one error entry, got %+v", entries)
	}
}

func TestStartStop(t *testing.T) {
	s := New(nil)
	if err := s.AddJob(FuncJob{JobName: "noop", Fn: func(context.Context) error { return nil }}, "0 3 * * *"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.Start(context.Background())
	next, ok := s.Next("noop")
	if !ok || next.IsZero() {
		t.Fatalf("expected a next activation after start")
	}
	if next.Hour() != 3 || next.Before(time.Now()) {
		t.Fatalf("unexpected next activation %s", next)
	}
	s.Stop()
}
