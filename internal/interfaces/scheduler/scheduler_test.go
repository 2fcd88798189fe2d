package scheduler

import (
	"context"
	"testing"
	"time"
)

type fakeJob struct {
	executeFunc func(ctx context.Context) error
	target      string
}

func (j *fakeJob) Execute(ctx context.Context) error {
	if j.executeFunc != nil {
		return j.executeFunc(ctx)
	}
	return nil
}

func (j *fakeJob) Target() string { return j.target }

func (j *fakeJob) Description() string { return "fake job " + j.target }

func TestParseScheduleTime(t *testing.T) {
	tests := []struct {
		input   string
		want    ScheduleTime
		wantErr bool
	}{
		{input: "05:00", want: ScheduleTime{Hour: 5, Minute: 0}},
		{input: "20:30", want: ScheduleTime{Hour: 20, Minute: 30}},
		{input: "23:59", want: ScheduleTime{Hour: 23, Minute: 59}},
		{input: "00:00", want: ScheduleTime{Hour: 0, Minute: 0}},
		{input: "24:00", wantErr: true},
		{input: "12:60", wantErr: true},
		{input: "-1:30", wantErr: true},
		{input: "noon", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseScheduleTime(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseScheduleTime(%q) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseScheduleTime(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseScheduleTime(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestScheduleTimeString(t *testing.T) {
	st := ScheduleTime{Hour: 5, Minute: 7}
	if got := st.String(); got != "05:07" {
		t.Errorf("String() = %q, want %q", got, "05:07")
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(Config{ScheduleTimes: []string{"25:00"}}); err == nil {
		t.Error("expected error for invalid schedule time")
	}
	if _, err := New(Config{ScheduleTimes: nil}); err == nil {
		t.Error("expected error for empty schedule times")
	}
}

func TestShouldRunDeduplicatesMinute(t *testing.T) {
	s, err := New(Config{
		ScheduleTimes: []string{"05:00", "20:00"},
		WorkerCount:   1,
		QueueSize:     1,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	at := time.Date(2025, time.March, 10, 5, 0, 0, 0, time.UTC)

	if !s.shouldRun(at) {
		t.Fatal("expected first tick at 05:00 to fire")
	}
	if s.shouldRun(at.Add(30 * time.Second)) {
		t.Error("expected second tick in the same minute to be deduplicated")
	}
	if s.shouldRun(at.Add(time.Minute)) {
		t.Error("expected 05:01 not to fire")
	}
	if !s.shouldRun(at.Add(15 * time.Hour)) {
		t.Error("expected 20:00 to fire")
	}
	if !s.shouldRun(at.AddDate(0, 0, 1)) {
		t.Error("expected 05:00 the next day to fire again")
	}
}

func TestNextScheduledTime(t *testing.T) {
	s, err := New(Config{
		ScheduleTimes: []string{"05:00", "20:00"},
		WorkerCount:   1,
		QueueSize:     1,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	next := s.NextScheduledTime()
	if next.Before(time.Now().Add(-time.Minute)) {
		t.Errorf("NextScheduledTime() = %v, expected a future time", next)
	}

	matches := false
	for _, st := range s.scheduleTimes {
		if next.Hour() == st.Hour && next.Minute() == st.Minute {
			matches = true
		}
	}
	if !matches {
		t.Errorf("NextScheduledTime() = %v, does not match any configured time", next)
	}
}

func TestWorkerPoolExecutesJobs(t *testing.T) {
	pool := NewWorkerPool(2, 0, 10)
	pool.Start()

	executed := make(chan string, 3)
	jobs := []Job{
		&fakeJob{target: "a", executeFunc: func(ctx context.Context) error { executed <- "a"; return nil }},
		&fakeJob{target: "b", executeFunc: func(ctx context.Context) error { executed <- "b"; return nil }},
		&fakeJob{target: "c", executeFunc: func(ctx context.Context) error { executed <- "c"; return nil }},
	}
	pool.SubmitBatch(jobs)

	seen := map[string]bool{}
	for i := 0; i < len(jobs); i++ {
		select {
		case target := <-executed:
			seen[target] = true
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for jobs, got %d of %d", i, len(jobs))
		}
	}
	for _, want := range []string{"a", "b", "c"} {
		if !seen[want] {
			t.Errorf("job %s was never executed", want)
		}
	}

	pool.ShutdownWithTimeout(time.Second)
}

func TestWorkerPoolQueueFull(t *testing.T) {
	pool := NewWorkerPool(1, 0, 1)

	if err := pool.Submit(&fakeJob{target: "first"}); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	if err := pool.Submit(&fakeJob{target: "second"}); err == nil {
		t.Error("expected error when queue is full")
	}
}

func TestSchedulerRunOnStartup(t *testing.T) {
	ran := make(chan struct{}, 1)
	s, err := New(Config{
		ScheduleTimes: []string{"05:00"},
		WorkerCount:   1,
		QueueSize:     10,
		RunOnStartup:  true,
		JobProvider: func(ctx context.Context) ([]Job, error) {
			return []Job{&fakeJob{target: "startup", executeFunc: func(ctx context.Context) error {
				ran <- struct{}{}
				return nil
			}}}, nil
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	s.Start()
	defer s.Shutdown(time.Second)

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for startup run")
	}
}
