package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cadrefs/api/schemas"
	"github.com/xkilldash9x/cadrefs/internal/config"
	"github.com/xkilldash9x/cadrefs/internal/discovery"
	"github.com/xkilldash9x/cadrefs/internal/engine"
	"github.com/xkilldash9x/cadrefs/internal/observability"
	"github.com/xkilldash9x/cadrefs/internal/orchestrator"
	"github.com/xkilldash9x/cadrefs/internal/reporting"
	"github.com/xkilldash9x/cadrefs/internal/resolver"
	"github.com/xkilldash9x/cadrefs/internal/store"
)

// scanDeps holds the constructors runScan needs from the outside world, so
// tests can swap in fixtures and pgxmock.
type scanDeps struct {
	newEngine func(cfg config.EngineConfig, logger *zap.Logger) (schemas.DocumentEngine, error)
	connectDB func(ctx context.Context, url string) (store.DBPool, func(), error)
	newRunID  func() uuid.UUID
	now       func() time.Time
}

func defaultScanDeps() scanDeps {
	return scanDeps{
		newEngine: engine.New,
		connectDB: connectPostgres,
		newRunID:  uuid.New,
		now:       time.Now,
	}
}

func connectPostgres(ctx context.Context, url string) (store.DBPool, func(), error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, pool.Close, nil
}

// runScan wires the components for one scan and runs it. args are
// <base-dir> <out-file> <license-key>.
func runScan(ctx context.Context, logger *zap.Logger, cfg *config.Config, args []string, deps scanDeps) (*orchestrator.Summary, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("expected <base-dir> <out-file> <license-key>, got %d arguments", len(args))
	}
	basePath, err := resolvePath(args[0])
	if err != nil {
		return nil, fmt.Errorf("invalid base directory: %w", err)
	}
	outPath := args[1]
	if !reporting.IsStdout(outPath) {
		if outPath, err = resolvePath(outPath); err != nil {
			return nil, fmt.Errorf("invalid output path: %w", err)
		}
	}
	licenseKey := args[2]

	runID := deps.newRunID()
	logger = logger.With(zap.Stringer("run_id", runID))

	docEngine, err := deps.newEngine(cfg.Engine, logger)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewScanMetrics()
	orch, err := orchestrator.New(orchestrator.Dependencies{
		Engine:     docEngine,
		Enumerator: discovery.NewEnumerator(discovery.Config{SkipDirs: cfg.Scan.SkipDirs}, logger),
		Resolver: resolver.New(logger, schemas.SearchOptions{
			SearchPaths: cfg.Engine.SearchPaths,
			Filters:     cfg.Engine.SearchFilters,
		}),
		Metrics: metrics,
	}, orchestrator.Options{
		Concurrency: cfg.Scan.Concurrency,
		Format:      cfg.Report.Format,
		Reporting:   reportOptions(cfg),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	summary, err := orch.Run(ctx, basePath, outPath, licenseKey)
	if err != nil {
		return nil, err
	}

	if cfg.Database.URL != "" {
		if err := persistEdges(ctx, logger, cfg.Database, runID, summary.Edges, deps); err != nil {
			return summary, err
		}
	}

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Warn("Failed to export metrics", zap.Error(err))
		}
	}

	if summary.Partial() {
		logger.Warn("Some files could not be resolved",
			zap.Int("failed", summary.Failed),
			zap.Strings("paths", summary.FailedPaths),
		)
		if cfg.Scan.FailOnError {
			return summary, fmt.Errorf("%w: %d of %d files failed", schemas.ErrPartialScan, summary.Failed, summary.Files)
		}
	}
	return summary, nil
}

func persistEdges(ctx context.Context, logger *zap.Logger, dbCfg config.DatabaseConfig, runID uuid.UUID, edges []schemas.DependencyEdge, deps scanDeps) error {
	pool, closePool, err := deps.connectDB(ctx, dbCfg.URL)
	if err != nil {
		return err
	}
	defer closePool()

	edgeStore, err := store.New(ctx, pool, dbCfg.Table, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize edge store: %w", err)
	}
	if err := edgeStore.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := edgeStore.PersistEdges(ctx, runID, edges, deps.now()); err != nil {
		return fmt.Errorf("failed to persist edges: %w", err)
	}
	return nil
}

func reportOptions(cfg *config.Config) reporting.Options {
	return reporting.Options{
		Quoting:     reporting.QuoteMode(cfg.Report.Quoting),
		ToolVersion: Version,
	}
}

func resolvePath(p string) (string, error) {
	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", err
	}
	return filepath.Abs(expanded)
}
