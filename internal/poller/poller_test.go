package poller_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/comfforts/logger"
	"github.com/stretchr/testify/require"

	"github.com/hankgalt/load-orchestra/internal/poller"
	"github.com/hankgalt/load-orchestra/pkg/domain"
)

func jobWith(states ...domain.BatchState) *domain.JobInfo {
	job := &domain.JobInfo{ID: "750-job", State: domain.JobStateInProgress}
	for i, st := range states {
		job.Batches = append(job.Batches, domain.BatchInfo{ID: batchID(i), State: st})
	}
	return job
}

func batchID(i int) string {
	return string(rune('a'+i)) + "-batch"
}

func orderFor(n int) map[string]int {
	order := map[string]int{}
	for i := range n {
		order[batchID(i)] = i
	}
	return order
}

func TestPollingCeiling(t *testing.T) {
	fetches, sleeps := 0, 0
	var slept time.Duration
	p := poller.New(
		poller.Config{},
		func() (*domain.JobInfo, error) {
			fetches++
			return jobWith(domain.BatchStateInProgress), nil
		},
		func(d time.Duration) error {
			sleeps++
			slept = d
			return nil
		},
		nil,
		logger.GetSlogLogger(),
	)

	res, err := p.Run(orderFor(1))
	require.ErrorIs(t, err, poller.ErrPollBudgetExhausted)
	require.Equal(t, 200, fetches)
	require.Equal(t, 199, sleeps)
	require.Equal(t, 3000*time.Millisecond, slept)
	require.Equal(t, 200, res.Attempts)
	require.NotNil(t, res.Job)
}

func TestPollingCompletes(t *testing.T) {
	fetches := 0
	observed := []int{}
	p := poller.New(
		poller.Config{Interval: time.Millisecond, MaxAttempts: 10},
		func() (*domain.JobInfo, error) {
			fetches++
			if fetches < 3 {
				return jobWith(domain.BatchStateCompleted, domain.BatchStateQueued), nil
			}
			return jobWith(domain.BatchStateCompleted, domain.BatchStateNotProcessed), nil
		},
		func(time.Duration) error { return nil },
		func(job *domain.JobInfo, attempt int) { observed = append(observed, attempt) },
		nil,
	)

	res, err := p.Run(orderFor(2))
	require.NoError(t, err)
	require.Equal(t, 3, res.Attempts)
	require.Equal(t, []int{1, 2, 3}, observed)
}

func TestPollingFetchErrorConsumesAttempt(t *testing.T) {
	fetches := 0
	p := poller.New(
		poller.Config{MaxAttempts: 3},
		func() (*domain.JobInfo, error) {
			fetches++
			return nil, errors.New("connection reset")
		},
		func(time.Duration) error { return nil },
		nil,
		nil,
	)
	res, err := p.Run(orderFor(1))
	require.ErrorIs(t, err, poller.ErrPollBudgetExhausted)
	require.Equal(t, 3, fetches)
	require.Nil(t, res.Job)
}

func TestPollingStopped(t *testing.T) {
	fetches := 0
	stop := errors.New("cancelled")
	p := poller.New(
		poller.Config{MaxAttempts: 50},
		func() (*domain.JobInfo, error) {
			fetches++
			return jobWith(domain.BatchStateQueued), nil
		},
		func(time.Duration) error {
			if fetches == 2 {
				return stop
			}
			return nil
		},
		nil,
		nil,
	)
	_, err := p.Run(orderFor(1))
	require.ErrorIs(t, err, poller.ErrPollStopped)
	require.ErrorIs(t, err, stop)
	require.Equal(t, 2, fetches)
}

func TestReconcileOrder(t *testing.T) {
	order := map[string]int{"x": 0, "y": 1, "z": 2}
	job := &domain.JobInfo{Batches: []domain.BatchInfo{
		{ID: "z"}, {ID: "extra-1"}, {ID: "x"}, {ID: "extra-2"}, {ID: "y"},
	}}

	got := poller.Reconcile(job, order)
	ids := []string{}
	for _, b := range got.Batches {
		ids = append(ids, b.ID)
	}
	require.Equal(t, []string{"x", "y", "z", "extra-1", "extra-2"}, ids)
	// input untouched
	require.Equal(t, "z", job.Batches[0].ID)

	again := poller.Reconcile(got, order)
	require.Equal(t, got, again)
}

func TestIsJobDone(t *testing.T) {
	order := orderFor(3)
	require.True(t, poller.IsJobDone(jobWith(domain.BatchStateCompleted, domain.BatchStateFailed, domain.BatchStateNotProcessed), order))
	require.False(t, poller.IsJobDone(jobWith(domain.BatchStateCompleted, domain.BatchStateQueued, domain.BatchStateCompleted), order))
	require.False(t, poller.IsJobDone(jobWith(domain.BatchStateCompleted, domain.BatchStateInProgress, domain.BatchStateCompleted), order))

	// a submitted batch missing from the remote list
	require.False(t, poller.IsJobDone(jobWith(domain.BatchStateCompleted, domain.BatchStateCompleted), order))

	// empty batch list is not done unless the job failed
	require.False(t, poller.IsJobDone(&domain.JobInfo{State: domain.JobStateInProgress}, nil))
	require.True(t, poller.IsJobDone(&domain.JobInfo{State: domain.JobStateFailed}, order))
	require.False(t, poller.IsJobDone(nil, order))
}

func TestContextSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sleep := poller.ContextSleep(ctx)
	require.NoError(t, sleep(time.Millisecond))
	cancel()
	require.ErrorIs(t, sleep(time.Hour), context.Canceled)
}
