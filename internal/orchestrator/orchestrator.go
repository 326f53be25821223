// Package orchestrator drives one scan: enumerate the base directory, resolve
// every CAD document through the engine, collect the edges and write the
// report.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/cadrefs/api/schemas"
	"github.com/xkilldash9x/cadrefs/internal/classify"
	"github.com/xkilldash9x/cadrefs/internal/collector"
	"github.com/xkilldash9x/cadrefs/internal/observability"
	"github.com/xkilldash9x/cadrefs/internal/reporting"
	"github.com/xkilldash9x/cadrefs/internal/resolver"
)

// Enumerator lists the candidate files below a base directory.
type Enumerator interface {
	Enumerate(ctx context.Context, root string) ([]string, error)
}

// Dependencies are the collaborators of an Orchestrator. Engine and
// Enumerator are required.
type Dependencies struct {
	Engine     schemas.DocumentEngine
	Enumerator Enumerator
	Resolver   *resolver.Resolver
	Metrics    *observability.ScanMetrics
}

// Options tune a scan.
type Options struct {
	// Concurrency is the number of engine handles used in parallel.
	Concurrency int
	Format      string
	Reporting   reporting.Options
}

// Summary describes a finished scan.
type Summary struct {
	Files             int
	Resolved          int
	Skipped           int
	Failed            int
	References        int
	VirtualReferences int
	Workers           int
	FailedPaths       []string
	Edges             []schemas.DependencyEdge
	Duration          time.Duration
}

// Partial reports whether any document failed.
func (s *Summary) Partial() bool {
	return s.Failed > 0
}

// Orchestrator runs scans. It holds no per-run state and may be reused.
type Orchestrator struct {
	deps   Dependencies
	opts   Options
	logger *zap.Logger
}

// New validates the dependencies and returns an Orchestrator.
func New(deps Dependencies, opts Options, logger *zap.Logger) (*Orchestrator, error) {
	if deps.Engine == nil {
		return nil, errors.New("document engine cannot be nil")
	}
	if deps.Enumerator == nil {
		return nil, errors.New("enumerator cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Resolver == nil {
		deps.Resolver = resolver.New(logger, schemas.SearchOptions{})
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Format == "" {
		opts.Format = reporting.FormatCSV
	}
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		logger: logger.Named("orchestrator"),
	}, nil
}

type fileResult struct {
	outcome    string
	edges      []schemas.DependencyEdge
	references int
	virtual    int
}

// Run scans basePath and writes the report to outPath. Per-file failures are
// logged and counted; they never stop the scan. A cancelled ctx aborts the
// scan without writing anything.
func (o *Orchestrator) Run(ctx context.Context, basePath, outPath, licenseKey string) (*Summary, error) {
	start := time.Now()
	if err := reporting.ValidateFormat(o.opts.Format, o.opts.Reporting.Quoting); err != nil {
		return nil, err
	}

	first, err := o.obtainHandle(ctx, licenseKey)
	if err != nil {
		return nil, err
	}
	handles := []schemas.EngineHandle{first}
	defer func() {
		for _, h := range handles {
			if rerr := h.Release(); rerr != nil {
				o.logger.Warn("Failed to release engine handle", zap.Error(rerr))
			}
		}
	}()

	paths, err := o.deps.Enumerator.Enumerate(ctx, basePath)
	if err != nil {
		return nil, err
	}
	targets := make([]schemas.ScanTarget, len(paths))
	known := 0
	for i, p := range paths {
		targets[i] = classify.Target(p)
		if targets[i].Kind.Known() {
			known++
		}
	}

	workers := o.workers(known)
	for len(handles) < workers {
		h, err := o.obtainHandle(ctx, licenseKey)
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	o.logger.Info("Scanning",
		zap.String("base_path", basePath),
		zap.Int("files", len(paths)),
		zap.Int("documents", known),
		zap.Int("workers", workers),
	)

	slots := make([]fileResult, len(targets))
	if workers == 1 {
		err = o.runSequential(ctx, handles[0], targets, slots)
	} else {
		err = o.runPooled(ctx, handles, targets, slots)
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		o.logger.Warn("Scan cancelled; no report written", zap.Error(err))
		return nil, err
	}

	summary := o.merge(targets, slots)
	summary.Workers = workers
	if err := o.writeReport(outPath, summary.Edges); err != nil {
		return nil, err
	}

	summary.Duration = time.Since(start)
	o.deps.Metrics.RecordEdges(len(summary.Edges))
	o.deps.Metrics.RecordRun(summary.Duration, time.Now())
	o.logger.Info("Scan complete",
		zap.Int("files", summary.Files),
		zap.Int("resolved", summary.Resolved),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("edges", len(summary.Edges)),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

func (o *Orchestrator) obtainHandle(ctx context.Context, licenseKey string) (schemas.EngineHandle, error) {
	h, err := o.deps.Engine.ObtainHandle(ctx, licenseKey)
	if err != nil {
		if errors.Is(err, schemas.ErrEngineUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", schemas.ErrEngineUnavailable, err)
	}
	if h == nil {
		return nil, fmt.Errorf("%w: engine returned no handle", schemas.ErrEngineUnavailable)
	}
	return h, nil
}

// workers picks the pool size: the configured concurrency, capped by the
// number of documents, and 1 when the engine cannot share handles.
func (o *Orchestrator) workers(documents int) int {
	n := o.opts.Concurrency
	if n <= 1 {
		return 1
	}
	if !o.deps.Engine.SupportsConcurrentHandles() {
		o.logger.Warn("Engine does not support concurrent handles; scanning sequentially",
			zap.Int("requested_concurrency", n))
		return 1
	}
	if documents < n {
		n = documents
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (o *Orchestrator) runSequential(ctx context.Context, h schemas.EngineHandle, targets []schemas.ScanTarget, slots []fileResult) error {
	for i, target := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		slots[i] = o.processFile(ctx, h, target)
	}
	return nil
}

// runPooled resolves documents on len(handles) goroutines. Each goroutine
// borrows a handle for one document, so a handle never has two documents
// open. Results land in slots by index, which keeps the merged report in
// enumeration order.
func (o *Orchestrator) runPooled(ctx context.Context, handles []schemas.EngineHandle, targets []schemas.ScanTarget, slots []fileResult) error {
	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(len(handles))

	free := make(chan schemas.EngineHandle, len(handles))
	for _, h := range handles {
		free <- h
	}

	for i, target := range targets {
		if groupCtx.Err() != nil {
			break
		}
		if !target.Kind.Known() {
			slots[i] = o.processFile(groupCtx, nil, target)
			continue
		}
		g.Go(func() error {
			h := <-free
			defer func() { free <- h }()
			if err := groupCtx.Err(); err != nil {
				return err
			}
			slots[i] = o.processFile(groupCtx, h, target)
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) processFile(ctx context.Context, h schemas.EngineHandle, target schemas.ScanTarget) fileResult {
	if !target.Kind.Known() {
		o.logger.Info("Skipping unknown file", zap.String("path", target.Path))
		o.deps.Metrics.RecordFile(observability.OutcomeSkipped)
		return fileResult{outcome: observability.OutcomeSkipped}
	}

	start := time.Now()
	records, err := o.deps.Resolver.Resolve(ctx, h, target)
	o.deps.Metrics.ObserveDocument(time.Since(start))
	if err != nil {
		if ctx.Err() == nil {
			o.logFailure(target, err)
		}
		o.deps.Metrics.RecordFile(observability.OutcomeFailed)
		return fileResult{outcome: observability.OutcomeFailed}
	}

	res := fileResult{
		outcome:    observability.OutcomeResolved,
		edges:      collector.Collect(target.Path, records),
		references: len(records),
	}
	for _, rec := range records {
		if rec.IsVirtual {
			res.virtual++
		}
		o.deps.Metrics.RecordReference(rec.IsVirtual)
	}
	o.deps.Metrics.RecordFile(observability.OutcomeResolved)
	o.logger.Debug("Resolved document",
		zap.String("path", target.Path),
		zap.Int("references", res.references),
		zap.Int("edges", len(res.edges)),
	)
	return res
}

func (o *Orchestrator) logFailure(target schemas.ScanTarget, err error) {
	fields := []zap.Field{zap.String("path", target.Path), zap.Error(err)}
	var docErr *schemas.DocumentError
	if errors.As(err, &docErr) && docErr.Status != schemas.OpenStatusOK {
		fields = append(fields, zap.Stringer("status", docErr.Status))
	}
	if errors.Is(err, schemas.ErrDocumentOpenFailed) {
		o.logger.Warn("Failed to open document", fields...)
		return
	}
	o.logger.Warn("Failed to read document references", fields...)
}

func (o *Orchestrator) merge(targets []schemas.ScanTarget, slots []fileResult) *Summary {
	report := collector.NewReport()
	summary := &Summary{Files: len(slots)}
	for i, res := range slots {
		switch res.outcome {
		case observability.OutcomeResolved:
			summary.Resolved++
		case observability.OutcomeSkipped:
			summary.Skipped++
		case observability.OutcomeFailed:
			summary.Failed++
			summary.FailedPaths = append(summary.FailedPaths, targets[i].Path)
		}
		summary.References += res.references
		summary.VirtualReferences += res.virtual
		report.Append(res.edges...)
	}
	summary.Edges = report.Edges()
	return summary
}

func (o *Orchestrator) writeReport(outPath string, edges []schemas.DependencyEdge) error {
	r, err := reporting.New(o.opts.Format, outPath, o.opts.Reporting)
	if err != nil {
		return err
	}
	if err := r.Write(edges); err != nil {
		_ = r.Close()
		return err
	}
	if err := r.Close(); err != nil {
		return fmt.Errorf("%w: failed to close %s: %w", schemas.ErrReportWriteFailed, outPath, err)
	}
	o.logger.Debug("Report written", zap.String("path", outPath), zap.String("format", o.opts.Format))
	return nil
}
