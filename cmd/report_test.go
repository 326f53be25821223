package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/cadrefs/internal/config"
	"github.com/xkilldash9x/cadrefs/internal/store"
)

var edgesQuery = regexp.QuoteMeta("SELECT parent_path, child_path")

func reportConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Database.URL = "postgres://cadrefs@localhost/cadrefs"
	return cfg
}

func mockDeps(t *testing.T) (scanDeps, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	deps := testDeps()
	deps.connectDB = func(context.Context, string) (store.DBPool, func(), error) {
		return mockPool, func() {}, nil
	}
	return deps, mockPool
}

func TestRunReport_RendersStoredRun(t *testing.T) {
	deps, mockPool := mockDeps(t)
	out := filepath.Join(t.TempDir(), "refs.csv")

	mockPool.ExpectPing()
	mockPool.ExpectQuery(edgesQuery).WithArgs(fixedRunID).
		WillReturnRows(pgxmock.NewRows([]string{"parent_path", "child_path"}).
			AddRow("/cad/b.sldasm", "/cad/a.sldprt").
			AddRow("/cad/d.slddrw", "/cad/b.sldasm"))

	n, err := runReport(context.Background(), zap.NewNop(), reportConfig(), fixedRunID.String(), out, deps)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mockPool.ExpectationsWereMet())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "\"/cad/b.sldasm\",\"/cad/a.sldprt\"\n\"/cad/d.slddrw\",\"/cad/b.sldasm\"\n", string(data))
}

func TestRunReport_UnknownRunWritesEmptyReport(t *testing.T) {
	deps, mockPool := mockDeps(t)
	out := filepath.Join(t.TempDir(), "refs.csv")
	core, logs := observer.New(zapcore.WarnLevel)

	mockPool.ExpectPing()
	mockPool.ExpectQuery(edgesQuery).WithArgs(fixedRunID).
		WillReturnRows(pgxmock.NewRows([]string{"parent_path", "child_path"}))

	n, err := runReport(context.Background(), zap.New(core), reportConfig(), fixedRunID.String(), out, deps)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, logs.FilterMessage("No edges stored for run").Len())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestRunReport_Failures(t *testing.T) {
	out := filepath.Join(t.TempDir(), "refs.csv")

	t.Run("invalid run id", func(t *testing.T) {
		_, err := runReport(context.Background(), zap.NewNop(), reportConfig(), "last-tuesday", out, testDeps())
		require.Error(t, err)
		assert.Contains(t, err.Error(), `invalid run id "last-tuesday"`)
	})

	t.Run("no database configured", func(t *testing.T) {
		_, err := runReport(context.Background(), zap.NewNop(), config.NewDefaultConfig(), fixedRunID.String(), out, testDeps())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database URL is not configured")
	})

	t.Run("query failure writes nothing", func(t *testing.T) {
		deps, mockPool := mockDeps(t)
		mockPool.ExpectPing()
		mockPool.ExpectQuery(edgesQuery).WithArgs(fixedRunID).WillReturnError(errors.New("relation does not exist"))

		_, err := runReport(context.Background(), zap.NewNop(), reportConfig(), fixedRunID.String(), out, deps)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to query edges")
		assert.NoFileExists(t, out)
	})
}

func TestReportCmd_RequiresRunID(t *testing.T) {
	_, err := executeRoot(t, "report")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "run-id" not set`)
}

func TestReportCmd_ValidatesRunID(t *testing.T) {
	_, err := executeRoot(t, "report", "--run-id", "nope", "-o", filepath.Join(t.TempDir(), "refs.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid run id "nope"`)
}
