package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/didanchor/didanchor/internal/alert"
	"github.com/didanchor/didanchor/internal/api"
	"github.com/didanchor/didanchor/internal/cache"
	"github.com/didanchor/didanchor/internal/cas"
	"github.com/didanchor/didanchor/internal/config"
	"github.com/didanchor/didanchor/internal/document"
	"github.com/didanchor/didanchor/internal/ledger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "didanchor",
	Short: "didanchor - DID version-chain resolver",
	Long:  `Replays DID operations anchored in an external ledger and resolves identifiers to documents`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "didanchor.yaml", "config file path")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resolveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("didanchor v0.1.0-alpha")
		fmt.Println("DID version-chain resolver")
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize didanchor node",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := os.MkdirAll(cfg.Node.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}

		dbPath := filepath.Join(cfg.Node.DataDir, "didanchor.db")
		store, err := cas.New(dbPath)
		if err != nil {
			return fmt.Errorf("failed to initialize CAS: %w", err)
		}
		defer store.Close()

		if err := store.SetMetadata("node_id", cfg.Node.ID); err != nil {
			return fmt.Errorf("failed to write node metadata: %w", err)
		}

		fmt.Printf("Initialized didanchor node: %s\n", cfg.Node.ID)
		fmt.Printf("Data directory: %s\n", cfg.Node.DataDir)
		fmt.Printf("CAS path: %s\n", dbPath)

		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start didanchor node",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		fmt.Printf("Starting didanchor node: %s\n", cfg.Node.ID)
		fmt.Printf("Anchor ledger: %s:%d/%s\n",
			cfg.Ledger.Host, cfg.Ledger.Port, cfg.Ledger.Database)

		dbPath := filepath.Join(cfg.Node.DataDir, "didanchor.db")
		store, err := cas.New(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open CAS: %w", err)
		}
		defer store.Close()

		engine := cache.NewEngine(store, document.NewProjector())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		reader, err := ledger.NewPGReader(ctx, cfg.Ledger.ConnectionString())
		if err != nil {
			return fmt.Errorf("failed to connect to ledger: %w", err)
		}
		defer reader.Close(context.Background())

		manager := ledger.NewManager(reader, cfg.Ledger.PollDuration())
		manager.AddHandler(ledger.NewBatchApplier(store, engine))

		if cfg.Alerts.Enabled {
			manager.SetAlertManager(alert.NewManager(cfg.Alerts.Enabled, cfg.Alerts.SlackWebhook))
		}

		fmt.Println("Replaying anchor ledger...")
		if err := manager.Sync(ctx); err != nil {
			return fmt.Errorf("initial ledger replay failed: %w", err)
		}
		if cursor := manager.Cursor(); cursor != nil {
			fmt.Printf("Caught up to ledger position %d (%d operations indexed)\n",
				cursor.SequencePosition, engine.Size())
		} else {
			fmt.Println("Ledger is empty, waiting for anchors")
		}

		if err := manager.Start(ctx); err != nil {
			return fmt.Errorf("failed to start ledger observer: %w", err)
		}
		defer manager.Stop()

		srv := &http.Server{
			Addr:              cfg.API.ListenAddr,
			Handler:           api.NewServer(engine),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			fmt.Printf("Resolution API listening on %s\n", cfg.API.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintf(os.Stderr, "API server failed: %v\n", err)
			}
		}()

		fmt.Println("didanchor node is running. Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nShutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to stop API server: %w", err)
		}
		manager.Stop()

		fmt.Println("didanchor node stopped")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display node status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		dbPath := filepath.Join(cfg.Node.DataDir, "didanchor.db")
		store, err := cas.New(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open CAS: %w", err)
		}
		defer store.Close()

		fmt.Printf("Node ID: %s\n", cfg.Node.ID)
		fmt.Printf("Data Directory: %s\n", cfg.Node.DataDir)

		if nodeID, err := store.GetMetadata("node_id"); err == nil {
			fmt.Printf("Initialized As: %s\n", nodeID)
		}

		count, err := store.BatchCount()
		if err != nil {
			return fmt.Errorf("failed to count batches: %w", err)
		}
		fmt.Printf("Stored Batches: %d\n", count)

		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [did]",
	Short: "Replay the ledger and resolve a DID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		dbPath := filepath.Join(cfg.Node.DataDir, "didanchor.db")
		store, err := cas.New(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open CAS: %w", err)
		}
		defer store.Close()

		engine := cache.NewEngine(store, document.NewProjector())

		ctx := context.Background()
		reader, err := ledger.NewPGReader(ctx, cfg.Ledger.ConnectionString())
		if err != nil {
			return fmt.Errorf("failed to connect to ledger: %w", err)
		}
		defer reader.Close(ctx)

		manager := ledger.NewManager(reader, cfg.Ledger.PollDuration())
		manager.AddHandler(ledger.NewBatchApplier(store, engine))

		if err := manager.Sync(ctx); err != nil {
			return fmt.Errorf("ledger replay failed: %w", err)
		}

		doc, err := engine.Resolve(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", args[0], err)
		}

		fmt.Println(string(doc))
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
