package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jask/aquaflow/internal/api"
	"github.com/jask/aquaflow/internal/database"
	"github.com/jask/aquaflow/internal/database/repository"
	"github.com/jask/aquaflow/internal/ratelimit"
	"github.com/jask/aquaflow/internal/secrets"
	"github.com/jask/aquaflow/internal/service"
	"github.com/jask/aquaflow/internal/testdata"
	"github.com/jask/aquaflow/internal/tui"
)

// operator is the actor for commands run from the shell.
var operator = service.Actor{UserID: "cli", Role: repository.RoleAdmin}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		// background loops stop before the database closes
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		if cfg.Server.JWTSecret == "" {
			cfg.Server.JWTSecret = os.Getenv("AQUAFLOW_JWT_SECRET")
		}
		srv := api.New(api.Options{
			Addr:        cfg.Server.Addr,
			Services:    a.svc,
			Hub:         a.hub,
			Metrics:     a.metrics,
			Limiter:     ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 10*time.Minute),
			Logger:      logger,
			JWTSecret:   cfg.Server.JWTSecret,
			CORSOrigins: cfg.Server.CORSOrigins,
			AdminIDs:    cfg.Admins.UserIDs,
		})

		if cfg.FollowUp.Interval > 0 {
			go a.svc.FollowUps.Loop(ctx, cfg.FollowUp.Interval)
		}
		go refreshStatusGauge(ctx, a)

		err = srv.Run(ctx)
		logger.Info("server stopped; draining notifications")
		return err
	},
}

func refreshStatusGauge(ctx context.Context, a *app) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		if _, err := a.svc.Requests.StatusCounts(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("refresh status counts", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		db.Close()
		v, dirty, err := database.MigrationVersion(cfg.Database.Path)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%v)\n", v, dirty)
		return nil
	},
}

var followUpsCmd = &cobra.Command{
	Use:   "followups",
	Short: "Send quote follow-up emails once",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		res, err := a.svc.FollowUps.Sweep(cmd.Context(), operator)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent %d, failed %d, skipped %d\n", res.Sent, res.Failed, res.Skipped)
		return nil
	},
}

var triageCmd = &cobra.Command{
	Use:   "triage <request-id>",
	Short: "Run AI triage for one request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		req, err := a.svc.Triage.Run(cmd.Context(), operator, args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(req.Triage)
	},
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage provider API keys in the local key store",
}

var keysSetCmd = &cobra.Command{
	Use:   "set <provider>",
	Short: "Store a key read from stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := knownProvider(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s key: ", provider)
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && strings.TrimSpace(line) == "" {
			return fmt.Errorf("read key: %w", err)
		}
		s, err := secrets.Default()
		if err != nil {
			return err
		}
		if err := s.Set(provider, line); err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "stored")
		return nil
	},
}

var keysDeleteCmd = &cobra.Command{
	Use:   "delete <provider>",
	Short: "Remove a stored key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := knownProvider(args[0])
		if err != nil {
			return err
		}
		s, err := secrets.Default()
		if err != nil {
			return err
		}
		return s.Delete(provider)
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List providers with a stored key",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Default()
		if err != nil {
			return err
		}
		names, err := s.Names()
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Fprintln(cmd.OutOrStdout(), n)
		}
		return nil
	},
}

func knownProvider(raw string) (string, error) {
	p := strings.ToLower(strings.TrimSpace(raw))
	if !slices.Contains(secrets.Providers, p) {
		return "", fmt.Errorf("unknown provider %q (want one of %s)", raw, strings.Join(secrets.Providers, ", "))
	}
	return p, nil
}

var seedCount int

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert demo requests (removable with cleanup-test-data)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Server.Production {
			return fmt.Errorf("refusing to seed demo data in production")
		}
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		res, err := testdata.Seed(cmd.Context(), a.svc, operator, seedCount, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d requests (%d quoted)\n", len(res.RequestIDs), res.Quoted)
		return nil
	},
}

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Open the operator board",
	RunE: func(cmd *cobra.Command, args []string) error {
		// the board owns the terminal; keep logs out of it
		quiet := zap.NewNop()
		a, err := newApp(cmd.Context(), cfg, quiet)
		if err != nil {
			return err
		}
		defer a.Close()
		p := tea.NewProgram(tui.New(cmd.Context(), a.svc, operator), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
		_, err = p.Run()
		return err
	},
}
