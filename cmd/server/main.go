// Package main provides the unified attribution server:
// - Scheduled runs: one attribution window per protocol per interval
// - Head watching (optional): WebSocket newHeads feed for chain liveness
// - HTTP: health, Prometheus metrics, status, stored run listing
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"defi-revenue-lab/internal/attribution"
	"defi-revenue-lab/internal/config"
	"defi-revenue-lab/internal/domain"
	"defi-revenue-lab/internal/evmrpc"
	"defi-revenue-lab/internal/idhash"
	"defi-revenue-lab/internal/observability"
	"defi-revenue-lab/internal/report"
	"defi-revenue-lab/internal/storage"
	chstore "defi-revenue-lab/internal/storage/clickhouse"
	"defi-revenue-lab/internal/storage/memory"
	"defi-revenue-lab/internal/storage/migrations"
	pgstore "defi-revenue-lab/internal/storage/postgres"
)

// Server holds all components of the attribution service.
type Server struct {
	// Configuration
	rpcEndpoint   string
	wsEndpoint    string
	postgresDSN   string
	clickhouseDSN string
	useMemory     bool
	protocols     []config.Protocol
	outputDir     string
	runInterval   time.Duration
	verbose       bool

	// Components
	client      *evmrpc.HTTPClient
	runStore    storage.RunStore
	metricStore storage.MetricStore
	metrics     *observability.Metrics
	logger      *log.Logger

	// State
	mu          sync.Mutex
	started     time.Time
	lastRun     time.Time
	runRunning  bool
	currentHead uint64
	headSeenAt  time.Time

	// Stats
	runsCompleted int
	runsFailed    int
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("EVM_RPC_ENDPOINT"), "EVM JSON-RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("EVM_WS_ENDPOINT"), "EVM WebSocket endpoint (optional, enables head watching)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	protocols := flag.String("protocols", "", "Comma-separated protocol names (default: all built-ins for --chain)")
	chainName := flag.String("chain", "sonic", "Chain the server attributes")
	configPath := flag.String("config", "", "Optional protocol config JSON (overrides built-ins)")
	outputDir := flag.String("output-dir", "output", "Output directory for reports")
	runInterval := flag.Duration("run-interval", 24*time.Hour, "Attribution run interval")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	verbose := flag.Bool("verbose", false, "Verbose engine output")
	addr := flag.String("addr", ":9090", "HTTP address for health/metrics/status")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	protocolList, err := resolveProtocols(*configPath, *protocols, *chainName)
	if err != nil {
		logger.Fatalf("Failed to resolve protocols: %v", err)
	}
	if len(protocolList) == 0 {
		logger.Fatal("No protocols to attribute. Use --protocols or --config")
	}
	names := make([]string, 0, len(protocolList))
	for _, p := range protocolList {
		names = append(names, p.Name)
	}
	logger.Printf("Attributing protocols: %v", names)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create stores
	runStore, metricStore, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Create server
	server := &Server{
		rpcEndpoint:   *rpcEndpoint,
		wsEndpoint:    *wsEndpoint,
		postgresDSN:   *postgresDSN,
		clickhouseDSN: *clickhouseDSN,
		useMemory:     *useMemory,
		protocols:     protocolList,
		outputDir:     *outputDir,
		runInterval:   *runInterval,
		verbose:       *verbose,
		client:        evmrpc.NewHTTPClient(*rpcEndpoint),
		runStore:      runStore,
		metricStore:   metricStore,
		metrics:       observability.NewMetrics(""),
		logger:        logger,
		started:       time.Now(),
	}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Start HTTP server
	go server.startHTTPServer(*addr)

	// Run the server
	err = server.Run(ctx)
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// resolveProtocols builds the protocol list from a config file or from the
// built-in registry filtered by name and chain.
func resolveProtocols(configPath, protocols, chain string) ([]config.Protocol, error) {
	all := config.Known()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		all = loaded
	}

	wanted := make(map[string]bool)
	if protocols != "" {
		for _, name := range strings.Split(protocols, ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				wanted[name] = true
			}
		}
	}

	var list []config.Protocol
	for _, p := range all {
		if p.Chain != chain {
			continue
		}
		if len(wanted) > 0 && !wanted[p.Name] {
			continue
		}
		list = append(list, p)
	}
	return list, nil
}

// createStores creates run and metric stores.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (storage.RunStore, storage.MetricStore, func(), error) {
	if useMemory {
		return memory.NewRunStore(), memory.NewMetricStore(), func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	// ClickHouse
	chConn, err := chstore.NewConn(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	if err := migrations.RunClickhouseMigrations(ctx, chConn); err != nil {
		pool.Close()
		chConn.Close()
		return nil, nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return pgstore.NewRunStore(pool), chstore.NewMetricStore(chConn), cleanup, nil
}

// Run starts the scheduled attribution loop and the optional head watcher.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Println("Starting attribution server...")

	errCh := make(chan error, 2)

	if s.wsEndpoint != "" {
		go func() {
			err := s.watchHeads(ctx)
			if err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("head watcher: %w", err)
			}
		}()
	}

	go func() {
		err := s.runScheduler(ctx)
		if err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("run scheduler: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// watchHeads consumes the newHeads stream and records the latest block.
func (s *Server) watchHeads(ctx context.Context) error {
	s.logger.Printf("Starting head watcher on %s", s.wsEndpoint)

	ws, err := evmrpc.NewWSClient(ctx, s.wsEndpoint, nil)
	if err != nil {
		return fmt.Errorf("create websocket client: %w", err)
	}
	defer ws.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case head, ok := <-ws.Heads():
			if !ok {
				return fmt.Errorf("head stream closed")
			}
			s.mu.Lock()
			s.currentHead = head.Number
			s.headSeenAt = time.Now()
			s.mu.Unlock()
		}
	}
}

// runScheduler runs attribution on schedule.
func (s *Server) runScheduler(ctx context.Context) error {
	s.logger.Printf("Starting run scheduler (interval: %v)...", s.runInterval)

	// Run immediately on start
	s.runAll(ctx)

	ticker := time.NewTicker(s.runInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

// runAll attributes the previous UTC day for every configured protocol.
func (s *Server) runAll(ctx context.Context) {
	s.mu.Lock()
	if s.runRunning {
		s.mu.Unlock()
		s.logger.Println("Attribution already running, skipping...")
		return
	}
	s.runRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.runRunning = false
		s.lastRun = time.Now()
		s.mu.Unlock()
	}()

	day := time.Now().UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)
	window, err := s.client.ResolveWindow(ctx, day.Unix(), day.Unix()+86400)
	if err != nil {
		s.logger.Printf("Window resolution error: %v", err)
		return
	}

	for _, proto := range s.protocols {
		if ctx.Err() != nil {
			return
		}
		s.runProtocol(ctx, proto, window)
	}
}

// runProtocol executes one attribution run and persists its output.
func (s *Server) runProtocol(ctx context.Context, proto config.Protocol, window domain.Window) {
	s.logger.Printf("Running attribution for %s (blocks %d-%d)...", proto.Name, window.FromBlock, window.ToBlock)
	start := time.Now()

	engine := attribution.New(attribution.Options{
		Chain:   s.client,
		Config:  proto,
		Verbose: s.verbose,
	})

	result, err := engine.Run(ctx, window)
	elapsed := time.Since(start)
	s.metrics.RunDuration.WithLabelValues(proto.Name).Observe(elapsed.Seconds())
	if err != nil {
		s.logger.Printf("Attribution error for %s: %v", proto.Name, err)
		s.metrics.RunsTotal.WithLabelValues(proto.Name, "error").Inc()
		s.mu.Lock()
		s.runsFailed++
		s.mu.Unlock()
		return
	}

	s.metrics.RunsTotal.WithLabelValues(proto.Name, "success").Inc()
	s.metrics.VenuesClassified.WithLabelValues(proto.Name).Set(float64(result.VenuesClassified))
	s.metrics.SwapsAttributed.Add(float64(result.SwapsFetched))
	s.metrics.VaultsObserved.Add(float64(result.VaultsObserved))
	s.metrics.VaultsSkipped.Add(float64(result.VaultsSkipped))
	for _, e := range result.Errors {
		s.metrics.PipelineErrors.WithLabelValues(errorStage(e)).Inc()
	}

	runID := idhash.ComputeRunID(proto.Name, proto.Chain, window.FromBlock, window.ToBlock)
	if err := s.persist(ctx, runID, proto, window, result); err != nil {
		s.logger.Printf("Persistence error for %s: %v", proto.Name, err)
		s.mu.Lock()
		s.runsFailed++
		s.mu.Unlock()
		return
	}

	if err := s.writeReports(runID, proto, window, result); err != nil {
		s.logger.Printf("Report error for %s: %v", proto.Name, err)
	}

	s.metrics.LastSuccessfulRun.SetToCurrentTime()
	s.mu.Lock()
	s.runsCompleted++
	s.mu.Unlock()

	s.logger.Printf("Attribution for %s completed in %v: %d venues, %d swaps, %d vaults (%d skipped), %d errors",
		proto.Name, elapsed, result.VenuesClassified, result.SwapsFetched,
		result.VaultsObserved, result.VaultsSkipped, len(result.Errors))
}

// persist stores the run and its metric rows. A run already stored for the
// same window is not an error: the window was attributed before.
func (s *Server) persist(ctx context.Context, runID string, proto config.Protocol, window domain.Window, result *attribution.RunResult) error {
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
	if err := s.runStore.Insert(ctx, run); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.logger.Printf("Run %s already stored, skipping persistence", runID)
			return nil
		}
		s.metrics.DBQueryErrors.WithLabelValues("postgres").Inc()
		return fmt.Errorf("insert run: %w", err)
	}
	s.metrics.RunsStored.Inc()

	rows := result.Bundle.Rows(runID)
	if len(rows) == 0 {
		return nil
	}
	if err := s.metricStore.InsertBulk(ctx, rows); err != nil {
		s.metrics.DBQueryErrors.WithLabelValues("clickhouse").Inc()
		return fmt.Errorf("insert metric rows: %w", err)
	}
	s.metrics.MetricRowsStored.Add(float64(len(rows)))
	return nil
}

// writeReports renders Markdown and CSV reports into the output directory.
func (s *Server) writeReports(runID string, proto config.Protocol, window domain.Window, result *attribution.RunResult) error {
	if err := os.MkdirAll(s.outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	rep := report.Build(runID, proto.Name, proto.Chain, window, result)
	base := fmt.Sprintf("%s/attribution_%s_%d-%d", s.outputDir, proto.Name, window.FromBlock, window.ToBlock)
	if err := os.WriteFile(base+".md", []byte(report.RenderMarkdown(rep)), 0644); err != nil {
		return err
	}
	return os.WriteFile(base+".csv", []byte(report.RenderCSV(rep)), 0644)
}

// errorStage extracts the pipeline stage from a localized failure message.
func errorStage(msg string) string {
	if i := strings.Index(msg, ":"); i > 0 {
		return msg[:i]
	}
	return "unknown"
}

// startHTTPServer starts the HTTP server for health/metrics/status.
func (s *Server) startHTTPServer(addr string) {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	// Status endpoint
	mux.HandleFunc("/status", s.handleStatus)

	// Stored runs listing
	mux.HandleFunc("/runs", s.handleRuns)

	s.logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		s.logger.Printf("HTTP server error: %v", err)
	}
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status        string    `json:"status"`
	Uptime        string    `json:"uptime"`
	Protocols     []string  `json:"protocols"`
	LastRun       time.Time `json:"last_run,omitempty"`
	RunRunning    bool      `json:"run_running"`
	RunsCompleted int       `json:"runs_completed"`
	RunsFailed    int       `json:"runs_failed"`
	CurrentHead   uint64    `json:"current_head,omitempty"`
	HeadSeenAt    time.Time `json:"head_seen_at,omitempty"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.protocols))
	for _, p := range s.protocols {
		names = append(names, p.Name)
	}

	resp := StatusResponse{
		Status:        "running",
		Uptime:        time.Since(s.started).String(),
		Protocols:     names,
		LastRun:       s.lastRun,
		RunRunning:    s.runRunning,
		RunsCompleted: s.runsCompleted,
		RunsFailed:    s.runsFailed,
		CurrentHead:   s.currentHead,
		HeadSeenAt:    s.headSeenAt,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleRuns returns stored runs for ?protocol=&chain= as JSON.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	protocol := r.URL.Query().Get("protocol")
	chain := r.URL.Query().Get("chain")
	if protocol == "" || chain == "" {
		http.Error(w, "protocol and chain query parameters are required", http.StatusBadRequest)
		return
	}

	runs, err := s.runStore.GetByProtocol(r.Context(), protocol, chain)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(runs)
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

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
