package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"fiscus/internal/domain/connection"
	"fiscus/internal/domain/provider"
	"fiscus/internal/infrastructure/crypto"
	"fiscus/internal/infrastructure/plaid"
	"fiscus/internal/infrastructure/postgres"
	"fiscus/internal/infrastructure/sandbox"
	"fiscus/internal/shared/config"
)

const usage = `Fiscus Admin CLI - Management commands for the Fiscus API

Usage:
  admin <command> [options]

Commands:
  list-connections   List persisted connections and their status
  sync               Run a sync for one connection or the whole portfolio
  purge              Delete a connection record without calling the provider

Examples:
  # List all persisted connections
  admin list-connections

  # Sync a single connection
  admin sync --connection-id=conn-1a2b3c4d

  # Sync every active connection
  admin sync --all

  # Sync with a custom timeout
  admin sync --all --timeout=10m

  # Remove a record whose provider item is already gone
  admin purge --connection-id=conn-1a2b3c4d`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "list-connections":
		runListConnections(os.Args[2:])
	case "sync":
		runSync(os.Args[2:])
	case "purge":
		runPurge(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Println(usage)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Println(usage)
		os.Exit(1)
	}
}

func runListConnections(args []string) {
	fs := flag.NewFlagSet("list-connections", flag.ExitOnError)

	timeoutStr := fs.String("timeout", "1m", "Timeout for the operation (e.g., 30s, 5m)")

	fs.Usage = func() {
		fmt.Println("Usage: admin list-connections [options]")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		log.Fatalf("Invalid timeout format: %v", err)
	}

	cfg := loadConfig()
	db, store := connectStore(cfg)
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	records, err := store.LoadAll(ctx)
	if err != nil {
		log.Fatalf("Failed to load connections: %v", err)
	}

	if len(records) == 0 {
		fmt.Println("No connections found")
		return
	}

	for _, rec := range records {
		printConnection(rec)
	}
	fmt.Printf("\n%d connection(s)\n", len(records))
}

func runSync(args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)

	connectionID := fs.String("connection-id", "", "Connection ID to sync")
	all := fs.Bool("all", false, "Sync all active connections")
	timeoutStr := fs.String("timeout", "30m", "Timeout for the operation (e.g., 5m, 1h)")

	fs.Usage = func() {
		fmt.Println("Usage: admin sync [options]")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Println("  admin sync --connection-id=conn-1a2b3c4d")
		fmt.Println("  admin sync --all")
		fmt.Println("  admin sync --all --timeout=1h")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *connectionID == "" && !*all {
		fmt.Println("Error: must specify --connection-id or --all")
		fs.Usage()
		os.Exit(1)
	}

	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		log.Fatalf("Invalid timeout format: %v", err)
	}

	cfg := loadConfig()
	db, store := connectStore(cfg)
	defer db.Close()

	manager := buildManager(cfg, store)
	defer manager.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := manager.Restore(ctx); err != nil {
		log.Fatalf("Failed to restore connections: %v", err)
	}

	startTime := time.Now()

	if *all {
		results := manager.SyncAll(ctx)
		if len(results) == 0 {
			log.Println("No active connections to sync")
			return
		}

		failed := 0
		for _, result := range results {
			if !result.Success() {
				failed++
			}
			printSyncResult(result)
		}
		log.Printf("Synced %d connection(s), %d failed, in %v", len(results), failed, time.Since(startTime))
		return
	}

	result, err := manager.SyncConnection(ctx, *connectionID)
	if err != nil {
		log.Fatalf("Sync failed: %v", err)
	}
	printSyncResult(result)
	log.Printf("Sync completed in %v", time.Since(startTime))
}

func runPurge(args []string) {
	fs := flag.NewFlagSet("purge", flag.ExitOnError)

	connectionID := fs.String("connection-id", "", "Connection ID to purge")
	timeoutStr := fs.String("timeout", "1m", "Timeout for the operation (e.g., 30s, 5m)")

	fs.Usage = func() {
		fmt.Println("Usage: admin purge [options]")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Println("  admin purge --connection-id=conn-1a2b3c4d")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *connectionID == "" {
		fmt.Println("Error: must specify --connection-id")
		fs.Usage()
		os.Exit(1)
	}

	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		log.Fatalf("Invalid timeout format: %v", err)
	}

	cfg := loadConfig()
	db, store := connectStore(cfg)
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := store.Delete(ctx, *connectionID); err != nil {
		log.Fatalf("Failed to purge connection: %v", err)
	}
	fmt.Printf("Purged connection %s\n", *connectionID)
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if !cfg.Database.Enabled {
		log.Fatalf("Database is not enabled; set DATABASE_URL or DB_ENABLED=true")
	}
	return cfg
}

func connectStore(cfg *config.Config) (*postgres.DB, *postgres.ConnectionStore) {
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("Connected to database")

	encryptor, err := crypto.NewEncryptorFromSecret(cfg.Encryption.Secret)
	if err != nil {
		db.Close()
		log.Fatalf("Failed to create encryptor: %v", err)
	}

	return db, postgres.NewConnectionStore(db, encryptor)
}

// buildManager assembles a connection manager with providers configured from
// the environment. No notifier or event publisher; admin runs are silent.
func buildManager(cfg *config.Config, store connection.Store) *connection.Manager {
	factories := map[string]provider.Factory{
		"plaid": plaid.New,
	}
	if cfg.Sandbox.Enabled {
		factories["sandbox"] = sandbox.New
	}

	manager := connection.NewManager(factories, store, nil, nil, connection.Callbacks{}, connection.SyncOptions{
		IncludeInvestments: cfg.Sync.IncludeInvestments,
		IncludeLiabilities: cfg.Sync.IncludeLiabilities,
		IncludeIncome:      cfg.Sync.IncludeIncome,
		IncludeRecurring:   cfg.Sync.IncludeRecurring,
		TransactionDays:    cfg.Sync.TransactionDays,
	})
	manager.SetSyncLimits(cfg.Sync.ProviderTimeout, cfg.Sync.MaxPages, cfg.Sync.BatchSize)

	if cfg.Plaid.Configured() {
		err := manager.ConfigureProvider(provider.Config{
			Provider:    "plaid",
			ClientID:    cfg.Plaid.ClientID,
			Secret:      cfg.Plaid.Secret,
			Environment: cfg.Plaid.Environment,
		})
		if err != nil {
			log.Fatalf("Failed to configure plaid provider: %v", err)
		}
	}
	if cfg.Sandbox.Enabled {
		err := manager.ConfigureProvider(provider.Config{
			Provider:    "sandbox",
			ClientID:    "sandbox",
			Secret:      "sandbox",
			Environment: provider.EnvSandbox,
		})
		if err != nil {
			log.Fatalf("Failed to configure sandbox provider: %v", err)
		}
	}

	return manager
}

func printConnection(rec connection.Record) {
	fmt.Printf("\n=== %s (%s) ===\n", rec.ID, rec.Provider)
	if rec.InstitutionName != "" {
		fmt.Printf("  Institution:  %s\n", rec.InstitutionName)
	}
	fmt.Printf("  Status:       %s\n", rec.Status)
	fmt.Printf("  Accounts:     %d\n", len(rec.Accounts))
	fmt.Printf("  Created:      %s\n", rec.CreatedAt.Format(time.RFC3339))
	if rec.LastSuccessfulSyncAt != nil {
		fmt.Printf("  Last sync:    %s\n", rec.LastSuccessfulSyncAt.Format(time.RFC3339))
	} else {
		fmt.Printf("  Last sync:    never\n")
	}
	if rec.ErrorCode != "" {
		fmt.Printf("  Error:        %s (%s)\n", rec.ErrorCode, rec.ErrorDetail)
	}
}

func printSyncResult(result *connection.SyncResult) {
	fmt.Printf("\n=== Connection %s ===\n", result.ConnectionID)
	fmt.Printf("  Accounts found:  %d\n", result.AccountsFound)
	fmt.Printf("  Added:           %d\n", result.Added)
	fmt.Printf("  Modified:        %d\n", result.Modified)
	fmt.Printf("  Removed:         %d\n", result.Removed)
	fmt.Printf("  Duration:        %v\n", result.Duration)

	if len(result.Errors) > 0 {
		fmt.Printf("  Errors:          %d\n", len(result.Errors))
		for i, e := range result.Errors {
			if i >= 5 {
				fmt.Printf("    ... and %d more errors\n", len(result.Errors)-5)
				break
			}
			fmt.Printf("    - %s\n", e)
		}
	}
}
