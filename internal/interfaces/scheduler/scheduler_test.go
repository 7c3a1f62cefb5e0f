package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestParseScheduleTime(t *testing.T) {
	tests := []struct {
		input   string
		want    ScheduleTime
		wantErr bool
	}{
		{"06:00", ScheduleTime{Hour: 6}, false},
		{"23:59", ScheduleTime{Hour: 23, Minute: 59}, false},
		{"0:5", ScheduleTime{Hour: 0, Minute: 5}, false},
		{"24:00", ScheduleTime{}, true},
		{"12:60", ScheduleTime{}, true},
		{"noon", ScheduleTime{}, true},
	}
	for _, tt := range tests {
		got, err := ParseScheduleTime(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseScheduleTime(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseScheduleTime(%q) = %+v, want %+v", tt.input, got, tt.want)
		}
	}
}

func TestShouldRun_FiresOncePerMinute(t *testing.T) {
	s, err := New(Config{
		ScheduleTimes: []string{"06:00"},
		WorkerCount:   1,
		QueueSize:     1,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	at := time.Date(2026, 8, 23, 6, 0, 30, 0, time.UTC)
	if !s.shouldRun(at) {
		t.Error("first check at the scheduled minute must fire")
	}
	if s.shouldRun(at.Add(10 * time.Second)) {
		t.Error("second check within the same minute must not fire again")
	}
	if !s.shouldRun(at.AddDate(0, 0, 1)) {
		t.Error("the same slot on the next day must fire")
	}
	if s.shouldRun(time.Date(2026, 8, 23, 7, 0, 0, 0, time.UTC)) {
		t.Error("an unscheduled minute must not fire")
	}
}

func TestNew_RejectsEmptyAndInvalidTimes(t *testing.T) {
	if _, err := New(Config{WorkerCount: 1, QueueSize: 1}); err == nil {
		t.Error("New() with no schedule times must fail")
	}
	if _, err := New(Config{ScheduleTimes: []string{"99:00"}, WorkerCount: 1, QueueSize: 1}); err == nil {
		t.Error("New() with an invalid schedule time must fail")
	}
}

type countingJob struct {
	mu    sync.Mutex
	count int
	done  chan struct{}
}

func (j *countingJob) Execute(ctx context.Context) error {
	j.mu.Lock()
	j.count++
	j.mu.Unlock()
	select {
	case j.done <- struct{}{}:
	default:
	}
	return nil
}

func (j *countingJob) Description() string { return "counting job" }

func TestWorkerPool_ProcessesSubmittedJobs(t *testing.T) {
	pool := NewWorkerPool(1, 0, 4)
	pool.Start()

	job := &countingJob{done: make(chan struct{}, 1)}
	if err := pool.Submit(job); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	select {
	case <-job.done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed in time")
	}

	pool.Shutdown()

	job.mu.Lock()
	defer job.mu.Unlock()
	if job.count != 1 {
		t.Errorf("job executed %d times, want 1", job.count)
	}
}

func TestWorkerPool_SubmitFailsWhenQueueFull(t *testing.T) {
	// No workers started, so nothing drains the single-slot queue.
	pool := NewWorkerPool(1, 0, 1)

	first := &countingJob{done: make(chan struct{}, 1)}
	second := &countingJob{done: make(chan struct{}, 1)}

	if err := pool.Submit(first); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
	if err := pool.Submit(second); err == nil {
		t.Error("second Submit() must fail when the queue is full")
	}
}
