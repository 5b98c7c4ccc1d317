package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/aquaflow/internal/database"
	"github.com/jask/aquaflow/internal/database/dbtest"
	"github.com/jask/aquaflow/internal/database/repository"
)

func TestProfileRoleDefaultsToCustomer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := dbtest.Open(t)
	repo := repository.NewProfileRepo(db)

	role, err := repo.Role(ctx, "unknown")
	require.NoError(t, err)
	require.Equal(t, repository.RoleCustomer, role)

	now := database.Now()
	require.NoError(t, repo.Upsert(ctx, repository.Profile{UserID: "a1", Name: "Ada", Phone: "604-555-0101", Role: repository.RoleAdmin, CreatedAt: now, UpdatedAt: now}))
	role, err = repo.Role(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, repository.RoleAdmin, role)

	admins, err := repo.ListByRole(ctx, repository.RoleAdmin)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	require.Equal(t, "604-555-0101", admins[0].Phone)
}
