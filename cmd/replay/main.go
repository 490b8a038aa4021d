package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"share-vault/internal/domain"
	"share-vault/internal/registry"
	"share-vault/internal/storage/migrations"
	pgstore "share-vault/internal/storage/postgres"
	"share-vault/internal/vault"
	"share-vault/internal/verification"
)

func main() {
	// Parse flags
	ticker := flag.String("ticker", "", "Vault ticker to replay (default: every vault)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	programID := flag.String("program-id", registry.DefaultProgramID.String(), "Vault program ID")
	showEvents := flag.Bool("events", false, "Print every replayed event")
	outputJSON := flag.Bool("json", false, "Output as JSON")

	flag.Parse()

	logger := log.New(os.Stderr, "[replay] ", log.LstdFlags)

	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}
	program, err := domain.ParseAddress(*programID)
	if err != nil {
		logger.Fatalf("--program-id: %v", err)
	}

	// Create context with cancellation
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := pgstore.NewPool(ctx, *postgresDSN, pgstore.WithMaxConns(2))
	if err != nil {
		logger.Fatalf("connect to postgres: %v", err)
	}
	defer pool.Close()
	if _, err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		logger.Fatalf("migrations: %v", err)
	}

	svc := vault.NewService(vault.Options{
		Backend:  pgstore.NewBackend(pool),
		Registry: registry.New(program),
		Logger:   logger,
	})
	verifier := verification.NewVerifier(svc)

	var report *verification.VerificationReport
	if *ticker != "" {
		t, err := registry.ParseTicker(*ticker)
		if err != nil {
			logger.Fatalf("--ticker: %v", err)
		}
		if *showEvents && !*outputJSON {
			printEvents(ctx, svc, t, logger)
		}
		result, err := verifier.VerifyVault(ctx, t)
		if err != nil {
			logger.Fatalf("replay failed: %v", err)
		}
		report = &verification.VerificationReport{TotalVaults: 1, Results: []verification.VerificationResult{*result}}
		if result.Match {
			report.MatchedVaults = 1
		} else {
			report.DivergentVaults = 1
		}
	} else {
		logger.Printf("Replaying every vault")
		report, err = verifier.VerifyAll(ctx)
		if err != nil {
			logger.Fatalf("replay failed: %v", err)
		}
	}

	// Output summary
	if *outputJSON {
		output, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(output))
	} else {
		fmt.Printf("\n=== Replay Summary ===\n")
		fmt.Printf("Vaults:     %d\n", report.TotalVaults)
		fmt.Printf("Matched:    %d\n", report.MatchedVaults)
		fmt.Printf("Divergent:  %d\n", report.DivergentVaults)
		for _, r := range report.Results {
			status := "OK"
			if !r.Match {
				status = "DIVERGENT"
			}
			fmt.Printf("\n%s (%s): %s\n", r.Ticker, r.Vault, status)
			fmt.Printf("  Events:            %d\n", r.EventsReplayed)
			fmt.Printf("  Total Base Assets: %d\n", r.TotalBaseAssets)
			fmt.Printf("  Shares Minted:     %d\n", r.SharesMinted)
			for _, d := range r.Divergences {
				fmt.Printf("  - %s\n", d)
			}
		}
	}

	if report.DivergentVaults > 0 {
		os.Exit(2)
	}
}

// printEvents logs the event log of one vault in sequence order.
func printEvents(ctx context.Context, svc *vault.Service, ticker domain.Ticker, logger *log.Logger) {
	events, err := svc.Events(ctx, ticker)
	if err != nil {
		logger.Fatalf("load events: %v", err)
	}
	for _, e := range events {
		fmt.Printf("[%s] seq=%d type=%s actor=%s base=%d shares=%d total=%d\n",
			time.UnixMilli(e.TimestampMs).UTC().Format(time.RFC3339Nano),
			e.Sequence,
			e.Type,
			e.Actor,
			e.BaseAmount,
			e.SharesAmount,
			e.TotalBaseAssets,
		)
	}
}
