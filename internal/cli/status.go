package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/omnipost/publisher/internal/core/config"
	"github.com/omnipost/publisher/internal/storage/postgres"
)

var statusTenant string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connections that need attention",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusTenant, "tenant", "", "tenant to inspect (required)")
	_ = statusCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	conns, err := postgres.NewConnectionRepo(db).ListPaused(ctx, statusTenant)
	if err != nil {
		slog.Error("Failed to list paused connections", "error", err)
		os.Exit(1)
	}

	if len(conns) == 0 {
		fmt.Println("All connections healthy.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CONNECTION\tPLATFORM\tSTATUS\tREASON\tPAUSED AT")
	for _, conn := range conns {
		reason := ""
		if conn.PauseReason != nil {
			reason = string(*conn.PauseReason)
		}
		pausedAt := ""
		if conn.PausedAt != nil {
			pausedAt = conn.PausedAt.Format("2006-01-02 15:04:05")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", conn.ID, conn.Platform, conn.Status, reason, pausedAt)
	}
	_ = w.Flush()
}
