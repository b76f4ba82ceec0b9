package exporters_test

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/comfforts/logger"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/hankgalt/load-orchestra/internal/exporters"
)

var (
	testHeaders = []string{"_id", "_success", "_errors", "Name"}
	testRows    = [][]string{
		{"001", "true", "", "Acme"},
		{"", "false", "REQUIRED_FIELD_MISSING: Name, missing", "Comma, Inc"},
	}
)

func testContext() context.Context {
	return logger.WithLogger(context.Background(), logger.GetSlogLogger())
}

func TestLocalCSVExporter(t *testing.T) {
	ctx := testContext()
	dir := filepath.Join(t.TempDir(), "exports")

	exp, err := exporters.LocalCSVExporterConfig{Dir: dir}.BuildExporter(ctx)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, exp.Close(ctx))
	}()
	require.Equal(t, exporters.LocalCSVExporter, exp.Name())

	fp, err := exp.Export(ctx, "run-1-failures", testHeaders, testRows)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "run-1-failures.csv"), fp)

	f, err := os.Open(fp)
	require.NoError(t, err)
	defer f.Close()
	got, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Equal(t, append([][]string{testHeaders}, testRows...), got)
}

func TestLocalCSVExporter_Errors(t *testing.T) {
	ctx := testContext()

	_, err := exporters.LocalCSVExporterConfig{}.BuildExporter(ctx)
	require.ErrorIs(t, err, exporters.ErrLocalCSVDirRequired)

	exp, err := exporters.LocalCSVExporterConfig{Dir: t.TempDir()}.BuildExporter(ctx)
	require.NoError(t, err)

	_, err = exp.Export(ctx, "", testHeaders, testRows)
	require.ErrorIs(t, err, exporters.ErrExportKeyRequired)

	_, err = exp.Export(ctx, "../escape", testHeaders, testRows)
	require.ErrorIs(t, err, exporters.ErrExportInvalidKey)
}

func TestXLSXExporter(t *testing.T) {
	ctx := testContext()
	dir := t.TempDir()

	exp, err := exporters.XLSXExporterConfig{Dir: dir}.BuildExporter(ctx)
	require.NoError(t, err)
	require.Equal(t, exporters.XLSXExporter, exp.Name())

	fp, err := exp.Export(ctx, "run-1-all", testHeaders, testRows)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "run-1-all.xlsx"), fp)

	f, err := excelize.OpenFile(fp)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, f.Close())
	}()

	rows, err := f.GetRows(exporters.XLSXSheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, testHeaders, rows[0])
	require.Equal(t, "Acme", rows[1][3])
	require.Equal(t, "Comma, Inc", rows[2][3])
}

func TestXLSXExporter_Cancelled(t *testing.T) {
	exp, err := exporters.XLSXExporterConfig{Dir: t.TempDir()}.BuildExporter(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(testContext())
	cancel()
	_, err = exp.Export(ctx, "cancelled", testHeaders, testRows)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCloudCSVExporterConfig(t *testing.T) {
	ctx := context.Background()

	_, err := exporters.CloudCSVExporterConfig{}.BuildExporter(ctx)
	require.ErrorIs(t, err, exporters.ErrCloudCSVExporterBucketRequired)

	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err = exporters.CloudCSVExporterConfig{Bucket: "results"}.BuildExporter(ctx)
	require.ErrorIs(t, err, exporters.ErrCloudCSVExporterMissingCreds)
}

func TestCloudCSVExporter(t *testing.T) {
	bucket := os.Getenv("GCS_TEST_BUCKET")
	if bucket == "" || os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		t.Skip("GCS_TEST_BUCKET and GOOGLE_APPLICATION_CREDENTIALS are required")
	}
	ctx := testContext()

	exp, err := exporters.CloudCSVExporterConfig{Bucket: bucket, Prefix: "load-orchestra-test"}.BuildExporter(ctx)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, exp.Close(ctx))
	}()

	url, err := exp.Export(ctx, "results", testHeaders, testRows)
	require.NoError(t, err)
	require.Equal(t, "gs://"+bucket+"/load-orchestra-test/results.csv", url)
}
