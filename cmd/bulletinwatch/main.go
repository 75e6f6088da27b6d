package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/BulletinWatch/internal/config"
	"github.com/TobiSchelling/BulletinWatch/internal/database"
	"github.com/TobiSchelling/BulletinWatch/internal/logger"
	"github.com/TobiSchelling/BulletinWatch/internal/metrics"
	"github.com/TobiSchelling/BulletinWatch/internal/pipeline"
	"github.com/TobiSchelling/BulletinWatch/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "bulletinwatch",
	Short:   "Epidemiological bulletin watcher",
	Long:    "BulletinWatch detects new bulletins on a listing page, summarizes their documents and sends one email per run.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			logger.SetupDefault(os.Stderr, config.Logging{}, verbose)
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logger.SetupDefault(os.Stderr, cfg.Logging, verbose)
		if path != "" {
			slog.Debug("config loaded", "path", path)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("bulletinwatch", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/bulletinwatch/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to set the listing URL, SendGrid credentials and LLM provider.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Bulletins:")
		fmt.Printf("  Seen: %d\n", stats.SeenBulletins)
		fmt.Println("\nDeliveries:")
		fmt.Printf("  Sent: %d\n", stats.DeliveriesSent)
		fmt.Printf("  Skipped: %d\n", stats.DeliveriesSkipped)
		fmt.Printf("  Failed: %d\n", stats.DeliveriesFailed)
		fmt.Println("\nRuns:")
		fmt.Printf("  Total: %d\n", stats.Runs)
		if stats.LastRunAt != nil {
			fmt.Printf("  Last: %s\n", stats.LastRunAt.Local().Format("2006-01-02 15:04"))
		} else {
			fmt.Println("  Last: never")
		}
		return nil
	},
}

// --- run command ---

var dryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Check the listing once: detect -> persist -> enrich -> notify -> record",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		pipe, err := pipeline.New(cfg, db, metrics.NewCollector(reg))
		if err != nil {
			return fmt.Errorf("building pipeline: %w", err)
		}

		var result *pipeline.Result
		var runErr error
		if dryRun {
			result, runErr = pipe.DryRun(ctx)
		} else {
			result, runErr = pipe.Run(ctx)
		}

		printSteps(result)

		if dryRun && result != nil {
			for _, item := range result.Pending {
				fmt.Printf("  new: %s (%s)\n", item.Title, item.DetailURL)
			}
		}

		if !dryRun && cfg.Metrics.Textfile != "" {
			if err := metrics.WriteTextfile(reg, cfg.Metrics.Textfile); err != nil {
				slog.Warn("writing metrics textfile", "path", cfg.Metrics.Textfile, "error", err)
			}
		}

		if runErr != nil {
			return runErr
		}
		if !dryRun {
			fmt.Println("\nRun complete! Run 'bulletinwatch serve' to browse the archive.")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show new bulletins without enriching, sending or recording")
}

func printSteps(result *pipeline.Result) {
	if result == nil {
		return
	}
	for i, step := range result.Steps {
		fmt.Printf("\nStep %d: %s\n", i+1, step.Name)
		if step.Err != nil {
			fmt.Printf("  Error: %v\n", step.Err)
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local archive server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// The archive exposes process metrics; run metrics live with each run.
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		err = server.Serve(ctx, db, port, reg)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

func openDB() (*database.DB, error) {
	dbPath := cfg.GetDBPath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(dbPath)
}
