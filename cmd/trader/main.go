package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/levanduc-dev/tick-trader/internal/config"
	"github.com/levanduc-dev/tick-trader/internal/engine"
	"github.com/levanduc-dev/tick-trader/internal/feed"
	"github.com/levanduc-dev/tick-trader/internal/journal"
	"github.com/levanduc-dev/tick-trader/internal/ledger"
	"github.com/levanduc-dev/tick-trader/internal/logger"
	"github.com/levanduc-dev/tick-trader/internal/monitoring"
	"github.com/levanduc-dev/tick-trader/internal/risk"
	"github.com/levanduc-dev/tick-trader/internal/router"
	"github.com/levanduc-dev/tick-trader/internal/venue"
	"github.com/levanduc-dev/tick-trader/internal/venue/bybit"
	"github.com/levanduc-dev/tick-trader/pkg/reporting"
	"github.com/levanduc-dev/tick-trader/pkg/types"
)

const pollInterval = time.Second

func main() {
	configPath := flag.String("config", "config.json", "path to the engine configuration file")
	envFile := flag.String("env", ".env", "path to the env file holding venue credentials")
	flag.Parse()

	// Credentials come from the environment, optionally seeded from a
	// local env file. A missing file is not an error.
	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: could not load %s: %v\n", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Dir = cfg.Logging.Dir
	log, err := logger.New(logCfg, strings.Join(cfg.Symbols, "_"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("engine exited with error: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	// The journal is opened before the ledger so every applied fill is
	// durable; existing records are replayed first to rebuild state
	// from the previous session.
	jnl, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("failed to open fill journal: %w", err)
	}
	defer jnl.Close()

	book := ledger.NewLedger(cfg.Risk.InitialCash, jnl)
	recovered, err := journal.Replay(cfg.Journal.Path, func(fill types.Fill) error {
		book.Recover(fill)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replay fill journal: %w", err)
	}
	if recovered > 0 {
		log.Info("recovered %d fills from %s", recovered, cfg.Journal.Path)
	}

	exec, quoteSink, quoteSource, err := buildVenue(cfg, log)
	if err != nil {
		return err
	}
	defer exec.Close()

	marketData, err := buildFeed(cfg, quoteSource, log)
	if err != nil {
		return err
	}

	gate := risk.NewGate(risk.Limits{
		MaxPositionPerInstrument: cfg.Risk.MaxPositionPerInstrument,
		MaxOrderNotional:         cfg.Risk.MaxOrderNotional,
		LossFloor:                cfg.Risk.LossFloor,
		RateLimitWindow:          cfg.Risk.RateLimitWindow.Duration,
		RateLimitCount:           cfg.Risk.RateLimitCount,
	})
	rtr := router.NewRouter(exec, book, cfg.Execution.AckTimeout.Duration, log)
	health := monitoring.NewHealthChecker()

	eng := engine.New(engine.Config{
		Symbols:         cfg.Symbols,
		LookbackLength:  cfg.Strategy.LookbackLength,
		SignalThreshold: cfg.Strategy.SignalThreshold,
		Deadband:        cfg.Strategy.Deadband,
		BaseQuantity:    cfg.Strategy.BaseQuantity,
		PriceOffset:     cfg.Strategy.PriceOffset,
	}, engine.Deps{
		Feed:      marketData,
		Gate:      gate,
		Ledger:    book,
		Router:    rtr,
		QuoteSink: quoteSink,
		Health:    health,
	}, log)

	startMonitoringServers(cfg, health, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting engine: venue=%s symbols=%v", exec.Name(), cfg.Symbols)
	runErr := eng.Run(ctx)

	// Drain the fill pipeline before the final snapshot
	exec.Close()
	rtr.Wait()

	printSessionSummary(cfg, book, log)
	return runErr
}

// buildVenue wires the configured execution venue. The sim venue also
// acts as a quote sink so engine ticks drive its market; the Bybit
// venue doubles as a quote source for the polling feed.
func buildVenue(cfg *config.Config, log *logger.Logger) (venue.Venue, engine.QuoteSink, feed.QuoteSource, error) {
	switch cfg.Venue.Name {
	case "sim":
		sim := venue.NewSimVenue(log)
		return sim, sim, nil, nil
	case "bybit":
		bb := bybit.New(bybit.Config{
			APIKey:    cfg.Venue.APIKey,
			APISecret: cfg.Venue.APISecret,
			Category:  cfg.Venue.Category,
			Demo:      cfg.Venue.Demo,
		}, log)
		return bb, nil, bb, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown venue %q", cfg.Venue.Name)
	}
}

func buildFeed(cfg *config.Config, quoteSource feed.QuoteSource, log *logger.Logger) (feed.Feed, error) {
	if cfg.Venue.WSEndpoint != "" {
		return feed.NewWebSocketFeed(cfg.Venue.WSEndpoint, cfg.Symbols, log), nil
	}
	if quoteSource != nil {
		return feed.NewPollFeed(quoteSource, cfg.Symbols, pollInterval, log), nil
	}
	return nil, fmt.Errorf("venue %q provides no quotes; set venue.ws_endpoint for market data", cfg.Venue.Name)
}

func startMonitoringServers(cfg *config.Config, health *monitoring.HealthChecker, log *logger.Logger) {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", monitoring.NewMetricsHandler())
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Monitoring.MetricsPort)
		if err := http.ListenAndServe(addr, metricsMux); err != nil {
			log.Warning("metrics server stopped: %v", err)
		}
	}()

	healthMux := http.NewServeMux()
	healthMux.Handle("/healthz", health)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Monitoring.HealthPort)
		if err := http.ListenAndServe(addr, healthMux); err != nil {
			log.Warning("health server stopped: %v", err)
		}
	}()
}

func printSessionSummary(cfg *config.Config, book *ledger.Ledger, log *logger.Logger) {
	var fills []types.Fill
	if _, err := journal.Replay(cfg.Journal.Path, func(fill types.Fill) error {
		fills = append(fills, fill)
		return nil
	}); err != nil {
		log.Warning("could not read back fill journal for the summary: %v", err)
	}

	report := reporting.NewSessionReport(book.Snapshot(), fills)
	reporting.NewConsoleReporter(os.Stdout).Render(report)
}
