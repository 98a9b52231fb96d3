// Package main provides the one-shot attribution entry point.
// Executes: window resolution → engine run → persistence → reporting
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"defi-revenue-lab/internal/attribution"
	"defi-revenue-lab/internal/config"
	"defi-revenue-lab/internal/domain"
	"defi-revenue-lab/internal/evmrpc"
	"defi-revenue-lab/internal/idhash"
	"defi-revenue-lab/internal/report"
	"defi-revenue-lab/internal/storage"
	chstore "defi-revenue-lab/internal/storage/clickhouse"
	"defi-revenue-lab/internal/storage/memory"
	"defi-revenue-lab/internal/storage/migrations"
	pgstore "defi-revenue-lab/internal/storage/postgres"
)

func main() {
	// Parse flags (env vars as defaults)
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("EVM_RPC_ENDPOINT"), "EVM JSON-RPC HTTP endpoint")
	protocolName := flag.String("protocol", "", "Protocol name (e.g. shadow-legacy)")
	chainName := flag.String("chain", "", "Chain name (e.g. sonic)")
	configPath := flag.String("config", "", "Optional protocol config JSON (overrides built-ins)")
	date := flag.String("date", "", "UTC day to attribute, YYYY-MM-DD (default: yesterday)")
	fromBlock := flag.Uint64("from-block", 0, "Explicit window start block (overrides --date)")
	toBlock := flag.Uint64("to-block", 0, "Explicit window end block (overrides --date)")
	outputDir := flag.String("output-dir", "output", "Output directory for generated reports")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	if *rpcEndpoint == "" {
		fmt.Fprintln(os.Stderr, "--rpc-endpoint is required")
		os.Exit(1)
	}
	if *protocolName == "" || *chainName == "" {
		fmt.Fprintln(os.Stderr, "--protocol and --chain are required")
		os.Exit(1)
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		fmt.Fprintln(os.Stderr, "--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
		os.Exit(1)
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("\nReceived signal %v, cancelling run...\n", sig)
		cancel()
	}()

	proto, err := resolveProtocol(*configPath, *protocolName, *chainName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving protocol: %v\n", err)
		os.Exit(1)
	}

	client := evmrpc.NewHTTPClient(*rpcEndpoint)

	window, err := resolveWindow(ctx, client, *date, *fromBlock, *toBlock)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving window: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("=== Attribution Run: %s (%s) ===\n", proto.Name, proto.Chain)
	fmt.Printf("Window: blocks %d-%d (%s to %s)\n",
		window.FromBlock, window.ToBlock,
		time.Unix(window.FromTime, 0).UTC().Format(time.RFC3339),
		time.Unix(window.ToTime, 0).UTC().Format(time.RFC3339))

	engine := attribution.New(attribution.Options{
		Chain:   client,
		Config:  proto,
		Verbose: *verbose,
	})

	result, err := engine.Run(ctx, window)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Engine error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Engine completed:\n")
	fmt.Printf("  Venues classified: %d\n", result.VenuesClassified)
	fmt.Printf("  Swaps fetched: %d\n", result.SwapsFetched)
	fmt.Printf("  Vaults observed: %d\n", result.VaultsObserved)
	fmt.Printf("  Vaults skipped: %d\n", result.VaultsSkipped)
	if len(result.Errors) > 0 {
		fmt.Printf("  Errors: %d\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}

	runID := idhash.ComputeRunID(proto.Name, proto.Chain, window.FromBlock, window.ToBlock)

	runStore, metricStore, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating stores: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := persist(ctx, runStore, metricStore, runID, proto, window, result); err != nil {
		fmt.Fprintf(os.Stderr, "Error persisting run: %v\n", err)
		os.Exit(1)
	}

	rep := report.Build(runID, proto.Name, proto.Chain, window, result)
	if err := writeReports(*outputDir, rep); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing reports: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nAttribution run completed successfully:")
	fmt.Printf("  Run ID: %s\n", runID)
	fmt.Printf("  - %s/%s.md\n", *outputDir, reportBase(rep))
	fmt.Printf("  - %s/%s.csv\n", *outputDir, reportBase(rep))
}

// resolveProtocol loads the protocol from a config file when given, falling
// back to the built-in registry.
func resolveProtocol(path, name, chain string) (config.Protocol, error) {
	if path != "" {
		protocols, err := config.Load(path)
		if err != nil {
			return config.Protocol{}, err
		}
		for _, p := range protocols {
			if p.Name == name && p.Chain == chain {
				return p, nil
			}
		}
		return config.Protocol{}, fmt.Errorf("protocol %s (%s) not found in %s", name, chain, path)
	}

	p, ok := config.Lookup(name, chain)
	if !ok {
		return config.Protocol{}, fmt.Errorf("unknown protocol %s (%s)", name, chain)
	}
	return p, nil
}

// resolveWindow maps either explicit blocks or a UTC day onto a block window.
func resolveWindow(ctx context.Context, client *evmrpc.HTTPClient, date string, fromBlock, toBlock uint64) (domain.Window, error) {
	if fromBlock != 0 || toBlock != 0 {
		if fromBlock == 0 || toBlock == 0 || toBlock <= fromBlock {
			return domain.Window{}, fmt.Errorf("invalid block range %d-%d", fromBlock, toBlock)
		}
		fromTime, err := client.BlockTimestamp(ctx, fromBlock)
		if err != nil {
			return domain.Window{}, fmt.Errorf("timestamp of block %d: %w", fromBlock, err)
		}
		toTime, err := client.BlockTimestamp(ctx, toBlock)
		if err != nil {
			return domain.Window{}, fmt.Errorf("timestamp of block %d: %w", toBlock, err)
		}
		return domain.Window{FromBlock: fromBlock, ToBlock: toBlock, FromTime: fromTime, ToTime: toTime}, nil
	}

	day := time.Now().UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)
	if date != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return domain.Window{}, fmt.Errorf("invalid --date %q: %w", date, err)
		}
		day = parsed
	}
	from := day.Unix()
	return client.ResolveWindow(ctx, from, from+86400)
}

// createStores creates run and metric stores, either in-memory or backed by
// PostgreSQL and ClickHouse with migrations applied.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (storage.RunStore, storage.MetricStore, func(), error) {
	if useMemory {
		return memory.NewRunStore(), memory.NewMetricStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	conn, err := chstore.NewConn(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("clickhouse: %w", err)
	}
	if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
		pool.Close()
		conn.Close()
		return nil, nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	cleanup := func() {
		pool.Close()
		conn.Close()
	}
	return pgstore.NewRunStore(pool), chstore.NewMetricStore(conn), cleanup, nil
}

// persist stores the run record and its metric rows.
func persist(ctx context.Context, runs storage.RunStore, rows storage.MetricStore, runID string, proto config.Protocol, window domain.Window, result *attribution.RunResult) error {
	run := &domain.AttributionRun{
		RunID:     runID,
		Protocol:  proto.Name,
		Chain:     proto.Chain,
		FromBlock: window.FromBlock,
		ToBlock:   window.ToBlock,
		FromTime:  window.FromTime,
		ToTime:    window.ToTime,
		CreatedAt: time.Now().Unix(),
	}
	if err := runs.Insert(ctx, run); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	metricRows := result.Bundle.Rows(runID)
	if len(metricRows) == 0 {
		return nil
	}
	if err := rows.InsertBulk(ctx, metricRows); err != nil {
		return fmt.Errorf("insert metric rows: %w", err)
	}
	return nil
}

func reportBase(r *report.Report) string {
	return fmt.Sprintf("attribution_%s_%d-%d", r.Protocol, r.Window.FromBlock, r.Window.ToBlock)
}

// writeReports renders the Markdown and CSV reports into outputDir.
func writeReports(outputDir string, r *report.Report) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}

	base := reportBase(r)
	md := filepath.Join(outputDir, base+".md")
	if err := os.WriteFile(md, []byte(report.RenderMarkdown(r)), 0o644); err != nil {
		return err
	}
	csv := filepath.Join(outputDir, base+".csv")
	return os.WriteFile(csv, []byte(report.RenderCSV(r)), 0o644)
}
