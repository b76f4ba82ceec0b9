package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hankgalt/load-orchestra/pkg/domain"
)

const testMapping = `{"mapping":[{"csvField":"Name","targetField":"LastName","required":true},{"csvField":"Email","targetField":"Email"}]}`

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadOptionsValidate(t *testing.T) {
	dir := t.TempDir()
	mapping := writeTestFile(t, dir, "mapping.json", testMapping)

	opts := &LoadOptions{
		Source:      "contacts.csv",
		Delimiter:   "|",
		MappingFile: mapping,
		Object:      "Contact",
		Operation:   "upsert",
		Mode:        "bulk",
		ExternalID:  "Email",
		Serial:      true,
	}
	plan, err := opts.validate()
	require.NoError(t, err)
	require.Equal(t, '|', plan.delimiter)
	require.Equal(t, domain.OperationUpsert, plan.operation)
	require.Equal(t, domain.LoadModeBulk, plan.options.Mode)
	require.Equal(t, domain.ConcurrencySerial, plan.options.ConcurrencyMode)
	require.Len(t, plan.mapping, 2)

	bad := *opts
	bad.Operation = "merge"
	_, err = bad.validate()
	require.ErrorIs(t, err, ErrInvalidOperation)

	bad = *opts
	bad.Mode = "stream"
	_, err = bad.validate()
	require.ErrorIs(t, err, ErrInvalidMode)

	bad = *opts
	bad.Delimiter = "||"
	_, err = bad.validate()
	require.ErrorIs(t, err, ErrInvalidDelimiter)

	bad = *opts
	bad.DateFormat = "YY-MM-DD"
	_, err = bad.validate()
	require.ErrorIs(t, err, ErrInvalidDateFormat)

	_, err = (&LoadOptions{}).validate()
	require.ErrorIs(t, err, ErrSourceRequired)
}

func TestRunLoadSQLite(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	t.Setenv("STORE_KIND", "sqlite")
	t.Setenv("EXPORT_KIND", "local")
	t.Setenv("POLL_INTERVAL", "10ms")

	source := writeTestFile(t, dir, "contacts.csv", "Name,Email\nLovelace,ada@example.com\n,blank@example.com\nHopper,grace@example.com\n")
	mapping := writeTestFile(t, dir, "mapping.json", testMapping)

	for _, mode := range []string{"BATCH", "BULK"} {
		err := runLoad(context.Background(), &LoadOptions{
			Source:      source,
			Delimiter:   ",",
			MappingFile: mapping,
			Object:      "Contact",
			Operation:   "insert",
			Mode:        mode,
			RunID:       "run-" + strings.ToLower(mode),
		})
		require.NoError(t, err)

		failures, err := os.ReadFile(filepath.Join(dir, "exports", "run-"+strings.ToLower(mode)+"-failures.csv"))
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(failures)), "\n")
		require.Len(t, lines, 2)
		require.Contains(t, lines[1], "blank@example.com")
	}
}
