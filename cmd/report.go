package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cadrefs/api/schemas"
	"github.com/xkilldash9x/cadrefs/internal/config"
	"github.com/xkilldash9x/cadrefs/internal/observability"
	"github.com/xkilldash9x/cadrefs/internal/reporting"
	"github.com/xkilldash9x/cadrefs/internal/store"
)

// newReportCmd creates the `report` command, which re-renders the edge list of
// a persisted run without touching the CAD engine.
func newReportCmd() *cobra.Command {
	var runID string
	var outputPath string

	reportCmd := &cobra.Command{
		Use:   "report --run-id <uuid>",
		Short: "Render the report of a scan persisted in the database",
		Long: `Reads the edges stored for --run-id (database.url must be set) and writes them
in the configured format. A base directory literally named "report" can still be
scanned as ./report.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			_, err = runReport(cmd.Context(), observability.GetLogger(), cfg, runID, outputPath, defaultScanDeps())
			return err
		},
	}

	reportCmd.Flags().StringVar(&runID, "run-id", "", "ID of the persisted run (required)")
	_ = reportCmd.MarkFlagRequired("run-id")
	reportCmd.Flags().StringVarP(&outputPath, "output", "o", "-", `output file path; "-" writes to stdout`)
	reportCmd.Flags().StringP("format", "f", "csv", "report format: csv, json or graphml")
	reportCmd.Flags().String("quoting", "escape", "CSV quote handling: escape or legacy")
	return reportCmd
}

// runReport loads the edges of a persisted run and writes them to outputPath.
// It returns the number of edges written.
func runReport(ctx context.Context, logger *zap.Logger, cfg *config.Config, rawRunID, outputPath string, deps scanDeps) (int, error) {
	runID, err := uuid.Parse(rawRunID)
	if err != nil {
		return 0, fmt.Errorf("invalid run id %q: %w", rawRunID, err)
	}
	if cfg.Database.URL == "" {
		return 0, errors.New("database URL is not configured (CADREFS_DATABASE_URL)")
	}
	opts := reportOptions(cfg)
	if err := reporting.ValidateFormat(cfg.Report.Format, opts.Quoting); err != nil {
		return 0, err
	}
	if !reporting.IsStdout(outputPath) {
		if outputPath, err = resolvePath(outputPath); err != nil {
			return 0, fmt.Errorf("invalid output path: %w", err)
		}
	}
	logger = logger.With(zap.Stringer("run_id", runID))

	pool, closePool, err := deps.connectDB(ctx, cfg.Database.URL)
	if err != nil {
		return 0, err
	}
	defer closePool()

	edgeStore, err := store.New(ctx, pool, cfg.Database.Table, logger)
	if err != nil {
		return 0, fmt.Errorf("failed to initialize edge store: %w", err)
	}
	edges, err := edgeStore.EdgesForRun(ctx, runID)
	if err != nil {
		return 0, err
	}
	if len(edges) == 0 {
		logger.Warn("No edges stored for run")
	}

	reporter, err := reporting.New(cfg.Report.Format, outputPath, opts)
	if err != nil {
		return 0, err
	}
	if err := reporter.Write(edges); err != nil {
		_ = reporter.Close()
		return 0, err
	}
	if err := reporter.Close(); err != nil {
		return 0, fmt.Errorf("%w: failed to close %s: %w", schemas.ErrReportWriteFailed, outputPath, err)
	}

	logger.Info("Report rendered from stored run", zap.String("path", outputPath), zap.Int("edges", len(edges)))
	return len(edges), nil
}
