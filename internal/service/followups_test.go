package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/aquaflow/internal/database/repository"
)

func TestSendQuoteFollowUps(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	quoted := h.submit(t, customer)
	h.quote(t, quoted.ID, 10000)
	h.submit(t, customer) // still new, never chased

	res, err := h.svc.FollowUps.SendQuoteFollowUps(ctx, h.now)
	require.NoError(t, err)
	require.Equal(t, SweepResult{Sent: 1}, res)
	require.Contains(t, h.mailer.subjects(), "Following up on your quote for leak repair")

	// inside the quiet period nothing is resent
	res, err = h.svc.FollowUps.SendQuoteFollowUps(ctx, h.now.Add(24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, SweepResult{}, res)

	res, err = h.svc.FollowUps.SendQuoteFollowUps(ctx, h.now.Add(73*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, res.Sent)

	got, err := repository.NewRequestRepo(h.deps.DB).Get(ctx, quoted.ID)
	require.NoError(t, err)
	require.True(t, h.now.Add(73*time.Hour).Equal(*got.LastFollowUpSentAt))
}

func TestFollowUpFailuresCounted(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	req := h.submit(t, customer)
	h.quote(t, req.ID, 10000)
	h.notifier.Wait()

	h.mailer.mu.Lock()
	h.mailer.fail = true
	h.mailer.mu.Unlock()

	res, err := h.svc.FollowUps.SendQuoteFollowUps(ctx, h.now)
	require.NoError(t, err)
	require.Equal(t, SweepResult{Failed: 1}, res)

	_, err = h.svc.FollowUps.Sweep(ctx, customer)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestFollowUpSkipsRequestsWithoutEmail(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	repo := repository.NewRequestRepo(h.deps.DB)
	created := h.now.Add(-96 * time.Hour)
	require.NoError(t, repo.Insert(ctx, repository.Request{
		ID:              "phone-only",
		UserID:          "walk-in",
		CustomerName:    "Walk In",
		ServiceAddress:  "9 Orchard Way",
		ContactInfo:     "call 250-555-0101",
		ProblemCategory: "drain_cleaning",
		Status:          "quoted",
		CreatedAt:       created,
		UpdatedAt:       created,
	}))

	res, err := h.svc.FollowUps.SendQuoteFollowUps(ctx, h.now)
	require.NoError(t, err)
	require.Equal(t, SweepResult{Skipped: 1}, res)

	got, err := repo.Get(ctx, "phone-only")
	require.NoError(t, err)
	require.Nil(t, got.LastFollowUpSentAt)
}
