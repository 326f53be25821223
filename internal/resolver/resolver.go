// File: internal/resolver/resolver.go
// Description: Runs one open/query/close cycle against the document engine and
// turns the raw reference table into ReferenceRecords.

package resolver

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cadrefs/api/schemas"
)

// Resolver queries the direct external references of classified documents.
type Resolver struct {
	logger *zap.Logger
	opts   schemas.SearchOptions
}

// New creates a Resolver that queries with the given search options.
func New(logger *zap.Logger, opts schemas.SearchOptions) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		logger: logger.Named("resolver"),
		opts:   opts,
	}
}

// Resolve opens target read-only through handle, reads its direct references
// and closes it again. The document is closed on every path that opened it.
//
// An engine that refuses the document yields a *schemas.DocumentError wrapping
// schemas.ErrDocumentOpenFailed. An absent reference table yields an empty,
// non-nil slice.
func (r *Resolver) Resolve(ctx context.Context, handle schemas.EngineHandle, target schemas.ScanTarget) ([]schemas.ReferenceRecord, error) {
	if !target.Kind.Known() {
		return nil, &schemas.DocumentError{Path: target.Path, Kind: schemas.ErrUnknownDocumentKind}
	}

	doc, status, err := handle.OpenDocument(ctx, target.Path, target.Kind, true)
	if err != nil {
		return nil, &schemas.DocumentError{
			Path:   target.Path,
			Status: schemas.OpenStatusFailed,
			Kind:   schemas.ErrDocumentOpenFailed,
			Cause:  err,
		}
	}
	if status != schemas.OpenStatusOK {
		return nil, &schemas.DocumentError{Path: target.Path, Status: status, Kind: schemas.ErrDocumentOpenFailed}
	}

	defer func() {
		// Close with a fresh context so a cancelled scan still releases the document.
		if cerr := handle.CloseDocument(context.WithoutCancel(ctx), doc); cerr != nil {
			r.logger.Warn("Failed to close document", zap.String("path", target.Path), zap.Error(cerr))
		}
	}()

	refs, err := handle.QueryExternalReferences(ctx, doc, r.opts)
	if err != nil {
		return nil, &schemas.DocumentError{
			Path:  target.Path,
			Kind:  schemas.ErrReferenceQueryFailed,
			Cause: fmt.Errorf("query external references: %w", err),
		}
	}

	records := make([]schemas.ReferenceRecord, 0, len(refs))
	for _, ref := range refs {
		if ref.Broken {
			r.logger.Debug("Broken reference",
				zap.String("parent", target.Path),
				zap.String("child", ref.Path),
				zap.Time("timestamp", ref.Timestamp),
			)
		}
		records = append(records, schemas.ReferenceRecord{Path: ref.Path, IsVirtual: ref.IsVirtual})
	}
	return records, nil
}
