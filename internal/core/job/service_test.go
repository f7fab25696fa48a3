package job

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusCreated, StatusWaiting, true},
		{StatusWaiting, StatusActive, true},
		{StatusActive, StatusCompleted, true},
		{StatusActive, StatusFailed, true},
		{StatusWaiting, StatusCancelled, true},
		{StatusWaiting, StatusDelayed, true},
		{StatusDelayed, StatusWaiting, true},
		{StatusCreated, StatusCompleted, true},

		{StatusActive, StatusCreated, false},
		{StatusActive, StatusWaiting, false},
		{StatusCompleted, StatusActive, false},
		{StatusCompleted, StatusFailed, false},
		{StatusCancelled, StatusWaiting, false},
		{StatusWaiting, StatusCreated, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestNewJobIDCarriesModePrefix(t *testing.T) {
	require.Regexp(t, `^manual_[0-9a-f-]{36}$`, NewJobID(ModeManual))
	require.Regexp(t, `^auto_`, NewJobID(ModeAuto))
	require.NotEqual(t, NewJobID(ModeTest), NewJobID(ModeTest))
}

func TestServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), nil)

	start, end := 1, 3
	j, err := svc.Create(ctx, "seller-1", ModeTest, CreateParams{StartPage: &start, EndPage: &end})
	require.NoError(t, err)
	require.Equal(t, StatusCreated, j.Status)
	require.Equal(t, &start, j.StartPage)

	require.NoError(t, svc.MarkWaiting(ctx, j.JobID))
	require.NoError(t, svc.MarkActive(ctx, j.JobID))

	got, err := svc.Get(ctx, j.JobID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, got.Status)
	require.NotNil(t, got.StartTime)
	require.Nil(t, got.EndTime)

	svc.Progress(ctx, j.JobID, Progress{CurrentPage: 2, TotalPages: 3, ProductsScraped: 40})
	got, _ = svc.Get(ctx, j.JobID)
	require.Equal(t, 2, got.CurrentPage)
	require.Equal(t, 40, got.ProductsScraped)

	require.NoError(t, svc.Complete(ctx, j.JobID, Progress{CurrentPage: 3, TotalPages: 3, ProductsScraped: 61, Errors: 2}))
	got, _ = svc.Get(ctx, j.JobID)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, 2, got.Errors, "completed with errors is a valid terminal state")
	require.NotNil(t, got.EndTime)

	// Terminal jobs never move again.
	err = svc.MarkActive(ctx, j.JobID)
	require.ErrorIs(t, err, ErrBadTransition)
}

func TestServiceProgressSwallowsStoreErrors(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil)
	// Unknown job id: the advisory write fails inside the store but the
	// caller sees nothing.
	svc.Progress(context.Background(), "missing", Progress{CurrentPage: 1})
}

func TestCancelActiveAutoJobs(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), nil)

	auto1, err := svc.Create(ctx, "seller-1", ModeAuto, CreateParams{})
	require.NoError(t, err)
	require.NoError(t, svc.MarkWaiting(ctx, auto1.JobID))

	manual, err := svc.Create(ctx, "seller-1", ModeManual, CreateParams{})
	require.NoError(t, err)

	done, err := svc.Create(ctx, "seller-1", ModeAuto, CreateParams{})
	require.NoError(t, err)
	require.NoError(t, svc.MarkWaiting(ctx, done.JobID))
	require.NoError(t, svc.MarkActive(ctx, done.JobID))
	require.NoError(t, svc.Complete(ctx, done.JobID, Progress{}))

	ids, err := svc.CancelActiveAutoJobs(ctx, "seller-1")
	require.NoError(t, err)
	require.Equal(t, []string{auto1.JobID}, ids)

	got, _ := svc.Get(ctx, auto1.JobID)
	require.Equal(t, StatusCancelled, got.Status)

	// Manual jobs and finished auto jobs are untouched.
	got, _ = svc.Get(ctx, manual.JobID)
	require.Equal(t, StatusCreated, got.Status)
	got, _ = svc.Get(ctx, done.JobID)
	require.Equal(t, StatusCompleted, got.Status)
}

func TestGetUnknownJob(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil)
	_, err := svc.Get(context.Background(), "nope")
	require.True(t, errors.Is(err, ErrNotFound))
}
