package database

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jask/aquaflow/internal/database/repository"
)

// SeedDefaults ensures the configured admin user IDs have admin profiles.
// It is idempotent and safe to run on every startup. Existing profiles keep
// their contact details and are only promoted.
func SeedDefaults(ctx context.Context, db *sql.DB, adminUserIDs []string) error {
	profiles := repository.NewProfileRepo(db)
	now := Now()
	for _, raw := range adminUserIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		existing, err := profiles.Get(ctx, id)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Role == repository.RoleAdmin {
				continue
			}
			existing.Role = repository.RoleAdmin
			existing.UpdatedAt = now
			if err := profiles.Upsert(ctx, *existing); err != nil {
				return err
			}
			continue
		}
		p := repository.Profile{UserID: id, Role: repository.RoleAdmin, CreatedAt: now, UpdatedAt: now}
		if err := profiles.Upsert(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
