package service

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/jask/aquaflow/internal/realtime"
	"github.com/jask/aquaflow/internal/storage"
)

// testAddressPatterns match the addresses used by automated test runs.
var testAddressPatterns = []string{"%Test St%", "%V1V1V1%", "%Admin Test%", "%Test Address%"}

// MaintenanceService houses destructive ops actions.
type MaintenanceService struct {
	*base
	production bool
}

type CleanupOptions struct {
	DryRun bool
	// Confirm must be set for anything to be deleted.
	Confirm bool
	// TestMode reflects the x-test-mode header; production requires it.
	TestMode bool
}

type CleanupResult struct {
	DryRun     bool           `json:"dryRun"`
	RequestIDs []string       `json:"requestIds"`
	Counts     map[string]int `json:"counts"`
}

// CleanupTestData removes requests created by test runs along with their
// quotes, attachments, notes, invoices and stored files.
func (s *MaintenanceService) CleanupTestData(ctx context.Context, actor Actor, opts CleanupOptions) (CleanupResult, error) {
	if err := actor.requireAdmin(); err != nil {
		return CleanupResult{}, err
	}
	if s.db == nil {
		return CleanupResult{}, fmt.Errorf("maintenance: db not configured")
	}
	if s.production && !opts.TestMode {
		return CleanupResult{}, fmt.Errorf("%w: cleanup in production requires test mode", ErrForbidden)
	}

	matches, err := s.requests.MatchAddresses(ctx, testAddressPatterns)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("match test requests: %w", err)
	}
	res := CleanupResult{
		DryRun:     opts.DryRun || !opts.Confirm,
		RequestIDs: make([]string, 0, len(matches)),
	}
	for _, r := range matches {
		res.RequestIDs = append(res.RequestIDs, r.ID)
	}
	if res.Counts, err = s.count(ctx, res.RequestIDs); err != nil {
		return CleanupResult{}, err
	}
	if res.DryRun || len(matches) == 0 {
		return res, nil
	}

	err = s.tx(ctx, func(tx *sql.Tx) error {
		repo := s.requests.WithTx(tx)
		for _, id := range res.RequestIDs {
			if err := repo.Delete(ctx, id); err != nil {
				return fmt.Errorf("delete request %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return CleanupResult{}, err
	}
	for i := range matches {
		r := &matches[i]
		if s.store != nil {
			if err := s.store.DeletePrefix(storage.Key(r.ID)); err != nil {
				s.log.Warn("delete request blobs", zap.String("request_id", r.ID), zap.Error(err))
			}
		}
		s.publish("requests", realtime.ActionDelete, r.ID, r)
	}
	s.log.Info("test data cleaned up", zap.Int("requests", len(matches)))
	return res, nil
}

func (s *MaintenanceService) count(ctx context.Context, ids []string) (map[string]int, error) {
	counts := map[string]int{"requests": len(ids)}
	counters := []struct {
		table string
		fn    func(context.Context, []string) (int, error)
	}{
		{"quotes", s.quotes.CountForRequests},
		{"quote_attachments", s.attachments.CountForRequests},
		{"request_notes", s.notes.CountForRequests},
		{"invoices", s.invoices.CountForRequests},
	}
	for _, c := range counters {
		n, err := c.fn(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", c.table, err)
		}
		counts[c.table] = n
	}
	return counts, nil
}
