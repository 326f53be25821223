package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/cadrefs/api/schemas"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

var sampleEdges = []schemas.DependencyEdge{
	{Parent: "/cad/b.sldasm", Child: "/cad/a.sldprt"},
	{Parent: "/cad/b.sldasm", Child: "/cad/a.sldprt"},
}

func newMockStore(t *testing.T, table string) (*Store, pgxmock.PgxPoolIface, *observer.ObservedLogs) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	core, logs := observer.New(zapcore.ErrorLevel)
	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, table, zap.New(core))
	require.NoError(t, err)
	return s, mockPool, logs
}

// -- Test Cases --

func TestNewStore(t *testing.T) {
	t.Run("ping failure is propagated", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, "cad_references", zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("invalid table names are rejected before connecting", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		for _, table := range []string{"", "refs; DROP TABLE x", "a.b.c", "1refs", `"quoted"`} {
			_, err := New(context.Background(), mockPool, table, nil)
			require.Error(t, err, table)
			assert.Contains(t, err.Error(), "invalid table name")
		}
		assert.NoError(t, mockPool.ExpectationsWereMet(), "no ping is sent for a bad table name")
	})
}

func TestEnsureSchema(t *testing.T) {
	ctx := context.Background()

	t.Run("creates the table", func(t *testing.T) {
		s, mockPool, _ := newMockStore(t, "inventory.cad_references")
		mockPool.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "inventory"."cad_references"`)).
			WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

		require.NoError(t, s.EnsureSchema(ctx))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("surfaces DDL errors", func(t *testing.T) {
		s, mockPool, _ := newMockStore(t, "cad_references")
		mockPool.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))

		err := s.EnsureSchema(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `failed to create table "cad_references"`)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPersistEdges(t *testing.T) {
	ctx := context.Background()
	runID := uuid.New()
	recordedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("copies every edge in one transaction", func(t *testing.T) {
		s, mockPool, logs := newMockStore(t, "cad_references")

		mockPool.ExpectBegin()
		mockPool.ExpectCopyFrom(pgx.Identifier{"cad_references"}, edgeColumns).
			WillReturnResult(int64(len(sampleEdges)))
		// Commit closes the transaction; the deferred Rollback then sees ErrTxClosed.
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.PersistEdges(ctx, runID, sampleEdges, recordedAt))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Empty(t, logs.All(), "no errors are logged on a successful commit")
	})

	t.Run("schema-qualified table", func(t *testing.T) {
		s, mockPool, _ := newMockStore(t, "inventory.cad_references")

		mockPool.ExpectBegin()
		mockPool.ExpectCopyFrom(pgx.Identifier{"inventory", "cad_references"}, edgeColumns).WillReturnResult(2)
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.PersistEdges(ctx, runID, sampleEdges, recordedAt))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("empty edge list is a no-op", func(t *testing.T) {
		s, mockPool, _ := newMockStore(t, "cad_references")
		require.NoError(t, s.PersistEdges(ctx, runID, nil, recordedAt))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("copy failure rolls back", func(t *testing.T) {
		s, mockPool, logs := newMockStore(t, "cad_references")

		mockPool.ExpectBegin()
		mockPool.ExpectCopyFrom(pgx.Identifier{"cad_references"}, edgeColumns).
			WillReturnError(errors.New("disk full"))
		mockPool.ExpectRollback()

		err := s.PersistEdges(ctx, runID, sampleEdges, recordedAt)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to copy edges: disk full")
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Empty(t, logs.All())
	})

	t.Run("short copy is an error", func(t *testing.T) {
		s, mockPool, _ := newMockStore(t, "cad_references")

		mockPool.ExpectBegin()
		mockPool.ExpectCopyFrom(pgx.Identifier{"cad_references"}, edgeColumns).WillReturnResult(1)
		mockPool.ExpectRollback()

		err := s.PersistEdges(ctx, runID, sampleEdges, recordedAt)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected 2, got 1")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("failed rollback is logged", func(t *testing.T) {
		s, mockPool, logs := newMockStore(t, "cad_references")

		mockPool.ExpectBegin()
		mockPool.ExpectCopyFrom(pgx.Identifier{"cad_references"}, edgeColumns).
			WillReturnError(errors.New("connection reset"))
		mockPool.ExpectRollback().WillReturnError(errors.New("connection reset"))

		require.Error(t, s.PersistEdges(ctx, runID, sampleEdges, recordedAt))
		require.Equal(t, 1, logs.FilterMessage("Failed to rollback transaction").Len())
	})

	t.Run("begin failure", func(t *testing.T) {
		s, mockPool, _ := newMockStore(t, "cad_references")
		mockPool.ExpectBegin().WillReturnError(errors.New("too many connections"))

		err := s.PersistEdges(ctx, runID, sampleEdges, recordedAt)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to begin transaction")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestEdgesForRun(t *testing.T) {
	ctx := context.Background()
	runID := uuid.New()
	query := flexibleSQLMatcher(`
        SELECT parent_path, child_path
        FROM "cad_references"
        WHERE run_id = $1
        ORDER BY seq ASC;
    `)

	t.Run("returns edges in report order", func(t *testing.T) {
		s, mockPool, _ := newMockStore(t, "cad_references")
		rows := pgxmock.NewRows([]string{"parent_path", "child_path"}).
			AddRow("/cad/b.sldasm", "/cad/a.sldprt").
			AddRow("/cad/d.slddrw", "/cad/b.sldasm")
		mockPool.ExpectQuery(query).WithArgs(runID).WillReturnRows(rows)

		edges, err := s.EdgesForRun(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, []schemas.DependencyEdge{
			{Parent: "/cad/b.sldasm", Child: "/cad/a.sldprt"},
			{Parent: "/cad/d.slddrw", Child: "/cad/b.sldasm"},
		}, edges)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("unknown run yields an empty list", func(t *testing.T) {
		s, mockPool, _ := newMockStore(t, "cad_references")
		mockPool.ExpectQuery(query).WithArgs(runID).
			WillReturnRows(pgxmock.NewRows([]string{"parent_path", "child_path"}))

		edges, err := s.EdgesForRun(ctx, runID)
		require.NoError(t, err)
		assert.NotNil(t, edges)
		assert.Empty(t, edges)
	})

	t.Run("query failure", func(t *testing.T) {
		s, mockPool, _ := newMockStore(t, "cad_references")
		mockPool.ExpectQuery(query).WithArgs(runID).WillReturnError(errors.New("relation does not exist"))

		_, err := s.EdgesForRun(ctx, runID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to query edges")
	})
}
