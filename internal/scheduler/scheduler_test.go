package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run(context.Context) error {
	j.runs.Add(1)
	return j.err
}

type blockingJob struct {
	started chan struct{}
	stopped chan error
}

func (j *blockingJob) Name() string { return "blocking" }

func (j *blockingJob) Run(ctx context.Context) error {
	close(j.started)
	<-ctx.Done()
	j.stopped <- ctx.Err()
	return ctx.Err()
}

func TestAddJobRejectsBadSpec(t *testing.T) {
	s := New(0, nil)
	assert.Error(t, s.AddJob("not a cron spec", &countingJob{}))
	assert.NoError(t, s.AddJob("@daily", &countingJob{}))
	assert.NoError(t, s.AddJob("0 6 * * *", &countingJob{}))
}

func TestRunNow(t *testing.T) {
	s := New(time.Second, nil)
	ok := &countingJob{}
	bad := &countingJob{err: errors.New("nope")}

	s.RunNow(ok)
	s.RunNow(bad)
	assert.Equal(t, int32(1), ok.runs.Load())
	assert.Equal(t, int32(1), bad.runs.Load())
}

func TestScheduledRuns(t *testing.T) {
	s := New(0, nil)
	job := &countingJob{}
	require.NoError(t, s.AddJob("@every 1s", job))
	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return job.runs.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
}

func TestStopCancelsRunningJob(t *testing.T) {
	s := New(0, nil)
	job := &blockingJob{started: make(chan struct{}), stopped: make(chan error, 1)}
	go s.RunNow(job)
	<-job.started

	s.Stop()
	select {
	case err := <-job.stopped:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("job was not cancelled")
	}
}

func TestRunAfterStopIsSkipped(t *testing.T) {
	s := New(0, nil)
	s.Stop()

	job := &countingJob{}
	s.RunNow(job)
	assert.Zero(t, job.runs.Load())
}

func TestConcurrentRunNowAndStop(t *testing.T) {
	s := New(0, nil)
	job := &countingJob{}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RunNow(job)
		}()
	}
	s.Stop()
	wg.Wait()

	// Nothing starts once Stop has returned.
	before := job.runs.Load()
	s.RunNow(job)
	assert.Equal(t, before, job.runs.Load())
}
