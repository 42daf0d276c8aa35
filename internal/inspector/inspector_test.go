package inspector

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspect(t *testing.T) {
	ctx := context.Background()
	conn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	defer conn.Close()
	dir := t.TempDir()

	_, err = conn.Exec(`CREATE TABLE p AS SELECT * FROM (VALUES
		('1', DATE '2020-01-10'),
		('2', DATE '2020-03-01')) v(purchase, purchase_date);`)
	require.NoError(t, err)
	_, err = conn.Exec(fmt.Sprintf(`COPY p TO %s (FORMAT PARQUET);`, quotePath(filepath.Join(dir, "purchases.parquet"))))
	require.NoError(t, err)
	_, err = conn.Exec(fmt.Sprintf(`COPY (SELECT 'Moskva' AS name) TO %s (FORMAT PARQUET);`, quotePath(filepath.Join(dir, "regions.parquet"))))
	require.NoError(t, err)

	summaries, err := Inspect(ctx, conn, dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	p := summaries[0]
	assert.Equal(t, "purchases.parquet", filepath.Base(p.Path))
	assert.Equal(t, int64(2), p.Rows)
	assert.Equal(t, "2020-01-10", p.MinDate.String)
	assert.Equal(t, "2020-03-01", p.MaxDate.String)
	require.Len(t, p.Columns, 2)
	assert.Equal(t, "purchase_date", p.Columns[1].Name)

	r := summaries[1]
	assert.Equal(t, int64(1), r.Rows)
	assert.False(t, r.MinDate.Valid)

	var buf bytes.Buffer
	Print(&buf, summaries)
	assert.Contains(t, buf.String(), "=== regions.parquet ===")
	assert.Contains(t, buf.String(), "2020-03-01")
}

func TestInspectBrokenAndEmpty(t *testing.T) {
	conn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	defer conn.Close()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	summaries, err := Inspect(context.Background(), conn, t.TempDir(), logger)
	require.NoError(t, err)
	assert.Empty(t, summaries)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.parquet"), []byte("not parquet"), 0o644))
	summaries, err = Inspect(context.Background(), conn, dir, logger)
	assert.Error(t, err)
	require.Len(t, summaries, 1)
	assert.Error(t, summaries[0].Err)
}
