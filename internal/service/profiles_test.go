package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func TestProfiles(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	newcomer := Actor{UserID: "new-1", Role: "customer"}

	_, err := h.svc.Profiles.Get(ctx, newcomer)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = h.svc.Profiles.Create(ctx, newcomer, ProfileInput{Role: ptr("admin")})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = h.svc.Profiles.Create(ctx, newcomer, ProfileInput{Email: ptr("not-an-email")})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	p, err := h.svc.Profiles.Create(ctx, newcomer, ProfileInput{Name: ptr("Sam"), Email: ptr("sam@example.com"), Phone: ptr("250 555 0101")})
	require.NoError(t, err)
	require.Equal(t, "customer", p.Role)

	_, err = h.svc.Profiles.Create(ctx, newcomer, ProfileInput{})
	require.ErrorIs(t, err, ErrConflict)

	_, err = h.svc.Profiles.Update(ctx, newcomer, ProfileInput{Role: ptr("admin")})
	require.ErrorIs(t, err, ErrForbidden)

	p, err = h.svc.Profiles.Update(ctx, newcomer, ProfileInput{Name: ptr("Samantha"), Role: ptr("customer")})
	require.NoError(t, err)
	require.Equal(t, "Samantha", p.Name)
	require.Equal(t, "sam@example.com", p.Email)

	role, err := h.svc.Profiles.Role(ctx, "nobody")
	require.NoError(t, err)
	require.Equal(t, "customer", role)

	created, err := h.svc.Profiles.Create(ctx, Actor{UserID: "admin-2", Role: "admin"}, ProfileInput{Role: ptr("admin")})
	require.NoError(t, err)
	require.Equal(t, "admin", created.Role)
}
