// Package main runs the vault service:
// - HTTP API over a memory or PostgreSQL backend
// - Optional ClickHouse event analytics
// - Optional reconciliation of watched vaults against Solana custody accounts
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"share-vault/internal/api"
	"share-vault/internal/domain"
	"share-vault/internal/reconcile"
	"share-vault/internal/registry"
	"share-vault/internal/solana"
	"share-vault/internal/storage"
	chstore "share-vault/internal/storage/clickhouse"
	"share-vault/internal/storage/memory"
	"share-vault/internal/storage/migrations"
	pgstore "share-vault/internal/storage/postgres"
	"share-vault/internal/vault"
)

const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 10 * time.Second
	idleTimeout     = 30 * time.Second
	shutdownTimeout = 15 * time.Second
)

// config holds parsed command-line configuration.
type config struct {
	httpAddr      string
	programID     string
	postgresDSN   string
	clickhouseDSN string
	rpcEndpoint   string
	wsEndpoint    string
	watch         string
	watchGap      time.Duration
	useMemory     bool
	localAssets   bool
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	cfg := config{}
	flag.StringVar(&cfg.httpAddr, "http-addr", envOr("HTTP_ADDR", ":8080"), "HTTP listen address")
	flag.StringVar(&cfg.programID, "program-id", envOr("VAULT_PROGRAM_ID", registry.DefaultProgramID.String()), "Vault program ID used for address derivation")
	flag.StringVar(&cfg.postgresDSN, "postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	flag.StringVar(&cfg.clickhouseDSN, "clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional analytics)")
	flag.StringVar(&cfg.rpcEndpoint, "rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	flag.StringVar(&cfg.wsEndpoint, "ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint")
	flag.StringVar(&cfg.watch, "watch", os.Getenv("VAULT_WATCH"), "Comma-separated tickers to reconcile against on-chain custody")
	flag.DurationVar(&cfg.watchGap, "watch-gap", 5*time.Second, "Minimum interval between reconciliations of one vault")
	flag.BoolVar(&cfg.useMemory, "use-memory", false, "Use in-memory storage instead of PostgreSQL")
	flag.BoolVar(&cfg.localAssets, "local-assets", false, "Expose /api/assets for minting base assets in the backend ledger (always on with --use-memory)")
	configPath := flag.String("config", os.Getenv("VAULT_CONFIG"), "Optional YAML config file; explicit flags override it")
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if *configPath != "" {
		fc, err := loadConfigFile(*configPath)
		if err != nil {
			logger.Fatalf("Config error: %v", err)
		}
		explicit := make(map[string]bool)
		flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
		if err := fc.apply(&cfg, explicit); err != nil {
			logger.Fatalf("Config error: %v", err)
		}
		logger.Printf("Loaded config from %s", *configPath)
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatalf("Server error: %v", err)
	}
	logger.Println("Shutdown complete")
}

func run(cfg config, logger *log.Logger) error {
	if !cfg.useMemory && cfg.postgresDSN == "" {
		return errors.New("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}
	programID, err := domain.ParseAddress(cfg.programID)
	if err != nil {
		return fmt.Errorf("--program-id: %w", err)
	}
	watch, err := parseTickers(cfg.watch)
	if err != nil {
		return fmt.Errorf("--watch: %w", err)
	}
	if len(watch) > 0 && (cfg.rpcEndpoint == "" || cfg.wsEndpoint == "") {
		return errors.New("--watch requires --rpc-endpoint and --ws-endpoint")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, cleanup, err := createBackend(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create backend: %w", err)
	}
	defer cleanup()

	var analytics *chstore.EventStore
	if cfg.clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.clickhouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse: %w", err)
		}
		defer conn.Close()
		analytics = chstore.NewEventStore(conn)
		logger.Println("ClickHouse analytics enabled")
	}

	reg := registry.New(programID)
	opts := vault.Options{
		Backend:  backend,
		Registry: reg,
		Logger:   log.New(os.Stdout, "[vault] ", log.LstdFlags|log.Lshortfile),
	}
	routerOpts := api.Options{
		LocalAssets: cfg.localAssets || cfg.useMemory,
		Logger:      log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lshortfile),
	}
	if analytics != nil {
		opts.Analytics = analytics
		routerOpts.Flows = analytics
	}
	svc := vault.NewService(opts)
	routerOpts.Service = svc

	logger.Printf("Program %s, default vault %s", programID, mustVaultAddress(reg))

	if len(watch) > 0 {
		if err := startWatchers(ctx, cfg, svc, watch); err != nil {
			return err
		}
	}

	server := &http.Server{
		Addr:         cfg.httpAddr,
		Handler:      api.NewRouter(routerOpts),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("Starting HTTP server on %s", cfg.httpAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		logger.Println("Received signal, initiating graceful shutdown...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// createBackend opens the configured storage backend.
func createBackend(ctx context.Context, cfg config, logger *log.Logger) (storage.Backend, func(), error) {
	if cfg.useMemory {
		return memory.NewBackend(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.postgresDSN, pgstore.WithHealthCheckPeriod(30*time.Second))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	applied, err := migrations.RunPostgresMigrations(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}
	for _, name := range applied {
		logger.Printf("Applied migration %s", name)
	}
	return pgstore.NewBackend(pool), pool.Close, nil
}

// startWatchers subscribes to the custody account of each watched vault and
// reconciles the local record against on-chain balances.
func startWatchers(ctx context.Context, cfg config, svc *vault.Service, tickers []domain.Ticker) error {
	logger := log.New(os.Stdout, "[watch] ", log.LstdFlags|log.Lshortfile)

	rpc := solana.NewHTTPClient(cfg.rpcEndpoint)
	slot, err := rpc.GetSlot(ctx)
	if err != nil {
		return fmt.Errorf("rpc: %w", err)
	}
	logger.Printf("RPC reachable at slot %d", slot)

	wsCfg := solana.DefaultWSConfig()
	wsCfg.Logger = logger
	ws, err := solana.NewWSClient(ctx, cfg.wsEndpoint, wsCfg)
	if err != nil {
		return fmt.Errorf("create websocket client: %w", err)
	}
	go func() {
		<-ctx.Done()
		ws.Close()
	}()

	watcher := reconcile.NewWatcher(reconcile.WatcherOptions{
		Subscriber: ws,
		Reader:     solana.NewLedgerReader(rpc),
		Refresh:    svc.Get,
		MinGap:     cfg.watchGap,
		Logger:     logger,
	})

	for _, ticker := range tickers {
		rec, err := svc.Get(ctx, ticker)
		if err != nil {
			return fmt.Errorf("watch %s: %w", ticker, err)
		}
		go func() {
			if err := watcher.Watch(ctx, rec); err != nil && !errors.Is(err, context.Canceled) {
				logger.Printf("Watcher for %s stopped: %v", rec.Ticker, err)
			}
		}()
	}
	return nil
}

func parseTickers(s string) ([]domain.Ticker, error) {
	var tickers []domain.Ticker
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t, err := registry.ParseTicker(part)
		if err != nil {
			return nil, err
		}
		tickers = append(tickers, t)
	}
	return tickers, nil
}

func mustVaultAddress(reg *registry.Registry) domain.Address {
	addr, err := reg.VaultAddress(registry.DefaultTicker)
	if err != nil {
		panic(err)
	}
	return addr
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"`)

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
