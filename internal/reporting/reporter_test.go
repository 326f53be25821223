// internal/reporting/reporter_test.go
package reporting_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/cadrefs/api/schemas"
	"github.com/xkilldash9x/cadrefs/internal/reporting"
)

const testToolVersion = "v1.0.0-test"

var sampleEdges = []schemas.DependencyEdge{
	{Parent: "/cad/b.sldasm", Child: "/cad/a.sldprt"},
	{Parent: "/cad/b.sldasm", Child: "/cad/c.sldprt"},
}

func writeReport(t *testing.T, format string, opts reporting.Options, edges []schemas.DependencyEdge) string {
	t.Helper()
	out := filepath.Join(t.TempDir(), "report."+format)
	r, err := reporting.New(format, out, opts)
	require.NoError(t, err)
	require.NoError(t, r.Write(edges))
	require.NoError(t, r.Close())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	return string(data)
}

// TestNew_Success_CSV_File covers the default format and the reference example.
func TestNew_Success_CSV_File(t *testing.T) {
	got := writeReport(t, reporting.FormatCSV, reporting.Options{}, sampleEdges[:1])
	assert.Equal(t, "\"/cad/b.sldasm\",\"/cad/a.sldprt\"\n", got)
}

func TestNew_OverwritesExistingFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "refs.csv")
	require.NoError(t, os.WriteFile(out, []byte("stale content that is much longer than the report\n"), 0o644))

	r, err := reporting.New(reporting.FormatCSV, out, reporting.Options{})
	require.NoError(t, err)
	require.NoError(t, r.Write(sampleEdges[:1]))
	require.NoError(t, r.Close())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "\"/cad/b.sldasm\",\"/cad/a.sldprt\"\n", string(data))
}

func TestNew_EmptyEdgeListWritesEmptyFile(t *testing.T) {
	assert.Equal(t, "", writeReport(t, reporting.FormatCSV, reporting.Options{}, nil))
}

// TestNew_Success_Stdout tests creating reporters writing to stdout.
func TestNew_Success_Stdout(t *testing.T) {
	r, err := reporting.New(reporting.FormatCSV, "-", reporting.Options{})
	require.NoError(t, err)
	assert.NotNil(t, r)
	// Close is a no-op for the stdout wrapper.
	assert.NoError(t, r.Close())

	assert.True(t, reporting.IsStdout("-"))
	assert.False(t, reporting.IsStdout("/tmp/out.csv"))
	assert.False(t, reporting.IsStdout("stdout"))
}

// TestNew_FileNamedStdout makes sure "stdout" is an ordinary file name.
func TestNew_FileNamedStdout(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	r, err := reporting.New(reporting.FormatCSV, "stdout", reporting.Options{})
	require.NoError(t, err)
	require.NoError(t, r.Write(sampleEdges[:1]))
	require.NoError(t, r.Close())

	data, err := os.ReadFile(filepath.Join(dir, "stdout"))
	require.NoError(t, err)
	assert.Equal(t, "\"/cad/b.sldasm\",\"/cad/a.sldprt\"\n", string(data))
}

// TestNew_Failure_UnsupportedFormat ensures no file is created for unknown formats.
func TestNew_Failure_UnsupportedFormat(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "output.txt")
	r, err := reporting.New("sarif", tmpFile, reporting.Options{})
	assert.Error(t, err)
	assert.Nil(t, r)
	assert.Contains(t, err.Error(), "unsupported output format: sarif")

	_, statErr := os.Stat(tmpFile)
	assert.True(t, os.IsNotExist(statErr), "File should not be created for an invalid format")
}

func TestNew_Failure_UnsupportedQuoting(t *testing.T) {
	_, err := reporting.New(reporting.FormatCSV, filepath.Join(t.TempDir(), "x.csv"), reporting.Options{Quoting: "smart"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported quoting mode")
}

// TestNew_Failure_FileCreation tests errors during output file creation.
func TestNew_Failure_FileCreation(t *testing.T) {
	// A directory cannot be opened as the output file.
	invalidPath := t.TempDir()

	r, err := reporting.New(reporting.FormatCSV, invalidPath, reporting.Options{})
	assert.Error(t, err)
	assert.Nil(t, r)
	assert.True(t, errors.Is(err, schemas.ErrReportWriteFailed))
	assert.Contains(t, err.Error(), "failed to create output file")

	_, err = reporting.New(reporting.FormatCSV, "", reporting.Options{})
	assert.ErrorIs(t, err, schemas.ErrReportWriteFailed)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }
func (failingWriter) Close() error              { return nil }

func TestReporters_WriteFailureIsReportWriteFailed(t *testing.T) {
	reporters := map[string]reporting.Reporter{
		"csv":     reporting.NewCSVReporter(failingWriter{}, reporting.QuoteEscape),
		"json":    reporting.NewJSONReporter(failingWriter{}, testToolVersion),
		"graphml": reporting.NewGraphMLReporter(failingWriter{}),
	}
	for name, r := range reporters {
		t.Run(name, func(t *testing.T) {
			err := r.Write(sampleEdges)
			require.Error(t, err)
			assert.ErrorIs(t, err, schemas.ErrReportWriteFailed)
		})
	}
}
