package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/justcook/justcook-backend/pkg/logger"
)

type fakeLock struct {
	acquired bool
	failWith error
	released int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.failWith != nil {
		return false, f.failWith
	}
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.released++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

type recordingMetrics struct {
	observed  []string
	successes []string
	failures  []string
}

func (r *recordingMetrics) ObserveDuration(job string, _ time.Duration) {
	r.observed = append(r.observed, job)
}
func (r *recordingMetrics) IncSuccess(job string) { r.successes = append(r.successes, job) }
func (r *recordingMetrics) IncFailure(job string) { r.failures = append(r.failures, job) }

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	ok := &testJob{name: "success"}
	failing := &testJob{name: "fail", err: errors.New("boom")}
	lock := &fakeLock{}
	rec := &recordingMetrics{}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(failing, ok),
		Lock:     lock,
		Metrics:  rec,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if ok.runs != 1 || failing.runs != 1 {
		t.Fatalf("expected each job to run once, got success=%d fail=%d", ok.runs, failing.runs)
	}
	if len(rec.observed) != 2 || len(rec.successes) != 1 || len(rec.failures) != 1 {
		t.Fatalf("unexpected metrics %+v", rec)
	}
	if rec.failures[0] != "fail" {
		t.Fatalf("expected failure recorded for fail job, got %v", rec.failures)
	}
	if lock.released != 1 || lock.acquired {
		t.Fatalf("expected lock released after cycle")
	}
}

func TestServiceRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "outbox-retention"}
	lock := &fakeLock{acquired: true}
	service, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: NewRegistry(job), Lock: lock})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job ran without the lock")
	}
	if lock.released != 0 {
		t.Fatalf("released a lock this replica never held")
	}
}

func TestServiceRunCycleSurfacesLockErrors(t *testing.T) {
	lockErr := errors.New("redis down")
	service, err := NewService(ServiceParams{Logger: logger.Nop(), Lock: &fakeLock{failWith: lockErr}})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); !errors.Is(err, lockErr) {
		t.Fatalf("expected lock error, got %v", err)
	}
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "outbox-parked-report"}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(job),
		Lock:     &fakeLock{},
		Interval: time.Hour,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected the initial cycle to run once, ran %d", job.runs)
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{Lock: &fakeLock{}}); err == nil {
		t.Fatalf("expected error without logger")
	}
	if _, err := NewService(ServiceParams{Logger: logger.Nop()}); err == nil {
		t.Fatalf("expected error without lock")
	}
}
