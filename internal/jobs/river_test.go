package jobs

import (
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

func TestExpirationSweepArgs_Kind(t *testing.T) {
	if kind := (ExpirationSweepArgs{}).Kind(); kind != JobKindExpirationSweep {
		t.Errorf("Kind() = %q, want %q", kind, JobKindExpirationSweep)
	}
}

func TestExpiryNoticeArgs_Kind(t *testing.T) {
	if kind := (ExpiryNoticeArgs{}).Kind(); kind != JobKindExpiryNotice {
		t.Errorf("Kind() = %q, want %q", kind, JobKindExpiryNotice)
	}
}

func TestRetryPolicy_NextRetryBacksOff(t *testing.T) {
	policy := NewRetryPolicy()
	attemptedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	job := &rivertype.JobRow{
		Kind:        JobKindExpirationSweep,
		Attempt:     1,
		AttemptedAt: &attemptedAt,
	}
	first := policy.NextRetry(job)
	if got, want := first.Sub(attemptedAt), 1*time.Minute; got != want {
		t.Errorf("attempt 1 delay = %v, want %v", got, want)
	}

	job.Attempt = 2
	second := policy.NextRetry(job)
	if got, want := second.Sub(attemptedAt), 2*time.Minute; got != want {
		t.Errorf("attempt 2 delay = %v, want %v", got, want)
	}
}

func TestRetryPolicy_NextRetryCapsAtMaxDelay(t *testing.T) {
	policy := NewRetryPolicy()
	attemptedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	job := &rivertype.JobRow{
		Kind:        JobKindExpirationSweep,
		Attempt:     20,
		AttemptedAt: &attemptedAt,
	}
	next := policy.NextRetry(job)
	if got, want := next.Sub(attemptedAt), 10*time.Minute; got != want {
		t.Errorf("capped delay = %v, want %v", got, want)
	}
}

func TestRetryPolicy_UnknownKindUsesDefault(t *testing.T) {
	policy := NewRetryPolicy()
	config := policy.configFor("something_else")
	if config != policy.Default {
		t.Errorf("configFor unknown kind = %+v, want default %+v", config, policy.Default)
	}
}

func TestInsertOptsForKind(t *testing.T) {
	opts := InsertOptsForKind(JobKindExpiryNotice)
	if opts.MaxAttempts != ExpiryNoticeMaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", opts.MaxAttempts, ExpiryNoticeMaxAttempts)
	}
	if opts.Queue != QueueMaintenance {
		t.Errorf("Queue = %q, want %q", opts.Queue, QueueMaintenance)
	}
}

func TestNewClientConfig_Queues(t *testing.T) {
	config := NewClientConfig(river.NewWorkers(), nil, nil, nil)

	maintenance, ok := config.Queues[QueueMaintenance]
	if !ok {
		t.Fatal("maintenance queue not configured")
	}
	// Overlapping sweeps must not run concurrently.
	if maintenance.MaxWorkers != 1 {
		t.Errorf("maintenance MaxWorkers = %d, want 1", maintenance.MaxWorkers)
	}
	if _, ok := config.Queues[river.QueueDefault]; !ok {
		t.Error("default queue not configured")
	}
	if config.ErrorHandler != nil {
		t.Error("expected no error handler without a logger")
	}
}

func TestNewPeriodicJobs(t *testing.T) {
	if got := len(NewPeriodicJobs()); got != 2 {
		t.Errorf("periodic job count = %d, want 2", got)
	}
}
