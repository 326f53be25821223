package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cadrefs/api/schemas"
)

// DBPool abstracts pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// edgeColumns is the column order used by PersistEdges.
var edgeColumns = []string{"run_id", "seq", "parent_path", "child_path", "recorded_at"}

var identPart = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store keeps the edge lists of scan runs in PostgreSQL, one row per edge.
type Store struct {
	pool  DBPool
	table pgx.Identifier
	log   *zap.Logger
}

// New verifies the connection and returns a Store writing to table, which may
// be schema-qualified ("inventory.cad_references").
func New(ctx context.Context, pool DBPool, table string, logger *zap.Logger) (*Store, error) {
	ident, err := parseTable(table)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pool:  pool,
		table: ident,
		log:   logger.Named("store"),
	}, nil
}

func parseTable(table string) (pgx.Identifier, error) {
	parts := strings.Split(strings.TrimSpace(table), ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	for _, p := range parts {
		if !identPart.MatchString(p) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return pgx.Identifier(parts), nil
}

// EnsureSchema creates the edge table if it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            run_id      UUID        NOT NULL,
            seq         INTEGER     NOT NULL,
            parent_path TEXT        NOT NULL,
            child_path  TEXT        NOT NULL,
            recorded_at TIMESTAMPTZ NOT NULL,
            PRIMARY KEY (run_id, seq)
        );
    `, s.table.Sanitize())
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table.Sanitize(), err)
	}
	return nil
}

// PersistEdges copies the edges of one run in a single transaction. seq keeps
// the report order so EdgesForRun can reproduce it.
func (s *Store) PersistEdges(ctx context.Context, runID uuid.UUID, edges []schemas.DependencyEdge, recordedAt time.Time) error {
	if len(edges) == 0 {
		s.log.Debug("No edges to persist", zap.Stringer("run_id", runID))
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	recordedAt = recordedAt.UTC()
	source := pgx.CopyFromSlice(len(edges), func(i int) ([]any, error) {
		return []any{runID, i, edges[i].Parent, edges[i].Child, recordedAt}, nil
	})
	copied, err := tx.CopyFrom(ctx, s.table, edgeColumns, source)
	if err != nil {
		return fmt.Errorf("failed to copy edges: %w", err)
	}
	if int(copied) != len(edges) {
		return fmt.Errorf("mismatch in copied edge count: expected %d, got %d", len(edges), copied)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Persisted edges", zap.Stringer("run_id", runID), zap.Int64("count", copied))
	return nil
}

// EdgesForRun returns the edges stored for runID in report order.
func (s *Store) EdgesForRun(ctx context.Context, runID uuid.UUID) ([]schemas.DependencyEdge, error) {
	query := fmt.Sprintf(`
        SELECT parent_path, child_path
        FROM %s
        WHERE run_id = $1
        ORDER BY seq ASC;
    `, s.table.Sanitize())
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	edges := []schemas.DependencyEdge{}
	for rows.Next() {
		var e schemas.DependencyEdge
		if err := rows.Scan(&e.Parent, &e.Child); err != nil {
			return nil, fmt.Errorf("failed to scan edge row: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return edges, nil
}
