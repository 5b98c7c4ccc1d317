package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanupTestData(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	testReq := h.submit(t, customer, func(in *SubmitInput) { in.ServiceAddress = "123 Test St, Kelowna V1V1V1" })
	h.quote(t, testReq.ID, 10000)
	_, err := h.svc.Requests.AddNote(ctx, customer, testReq.ID, "note")
	require.NoError(t, err)
	_, err = h.svc.Attachments.Upload(ctx, customer, testReq.ID, "", []FileUpload{{Name: "a.txt", Body: strings.NewReader("a")}})
	require.NoError(t, err)
	keep := h.submit(t, customer)

	_, err = h.svc.Maintenance.CleanupTestData(ctx, customer, CleanupOptions{Confirm: true})
	require.ErrorIs(t, err, ErrForbidden)

	dry, err := h.svc.Maintenance.CleanupTestData(ctx, admin, CleanupOptions{})
	require.NoError(t, err)
	require.True(t, dry.DryRun)
	require.Equal(t, []string{testReq.ID}, dry.RequestIDs)
	require.Equal(t, map[string]int{"requests": 1, "quotes": 1, "quote_attachments": 1, "request_notes": 1, "invoices": 0}, dry.Counts)
	_, err = h.svc.Requests.Get(ctx, admin, testReq.ID)
	require.NoError(t, err)

	res, err := h.svc.Maintenance.CleanupTestData(ctx, admin, CleanupOptions{Confirm: true})
	require.NoError(t, err)
	require.False(t, res.DryRun)
	_, err = h.svc.Requests.Get(ctx, admin, testReq.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = h.svc.Requests.Get(ctx, admin, keep.ID)
	require.NoError(t, err)

	_, err = h.store.Open(testReq.ID + "/a.txt")
	require.Error(t, err)
}

func TestCleanupInProductionNeedsTestMode(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(d *Deps) { d.Production = true })
	ctx := context.Background()

	_, err := h.svc.Maintenance.CleanupTestData(ctx, admin, CleanupOptions{Confirm: true})
	require.ErrorIs(t, err, ErrForbidden)

	res, err := h.svc.Maintenance.CleanupTestData(ctx, admin, CleanupOptions{Confirm: true, TestMode: true})
	require.NoError(t, err)
	require.Empty(t, res.RequestIDs)
}
