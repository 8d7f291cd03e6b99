package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/omnipost/publisher/internal/core/config"
	"github.com/omnipost/publisher/internal/resilience/pause"
	"github.com/omnipost/publisher/internal/storage/postgres"
)

var (
	resumeTenant     string
	resumeConnection string
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused connection after the underlying issue is fixed",
	Run:   runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeTenant, "tenant", "", "tenant owning the connection (required)")
	resumeCmd.Flags().StringVar(&resumeConnection, "connection", "", "connection to resume (required)")
	_ = resumeCmd.MarkFlagRequired("tenant")
	_ = resumeCmd.MarkFlagRequired("connection")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) {
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

	connections := postgres.NewConnectionRepo(db)
	conn, err := connections.Get(ctx, resumeTenant, resumeConnection)
	if err != nil {
		slog.Error("Failed to load connection", "error", err)
		os.Exit(1)
	}
	if conn == nil {
		fmt.Printf("Connection %s not found for tenant %s\n", resumeConnection, resumeTenant)
		os.Exit(1)
	}

	pauser := pause.NewManager(connections, postgres.NewAuditRepo(db))
	if err := pauser.ResumeConnection(ctx, resumeTenant, resumeConnection); err != nil {
		slog.Error("Failed to resume connection", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Connection %s resumed (was %s)\n", resumeConnection, conn.Status)
}
