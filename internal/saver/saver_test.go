package saver

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/mishka251/goszakupki-parces/internal/db"
)

func newSeededDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	conn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.InitializeSchema(conn))

	store := db.NewStore(conn, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err = store.SaveTaxonomy(ctx, "ПО", []string{"58.29.11.000"})
	require.NoError(t, err)

	err = store.InSession(ctx, func(s *db.Session) error {
		region, _, err := s.UpsertRegion(ctx, "Moskva")
		if err != nil {
			return err
		}
		product, _, err := s.UpsertProduct(ctx, "Astra Linux", "58.29.11.000", true)
		if err != nil {
			return err
		}
		for i, price := range []string{"1500.00", "99.99"} {
			_, _, err := s.UpsertPurchase(ctx, db.PurchaseInput{
				Name:              []string{"0373100000120000001", "0373100000120000002"}[i],
				Region:            region,
				Date:              time.Date(2020, 1, 10+i, 0, 0, 0, 0, time.UTC),
				Price:             decimal.RequireFromString(price),
				Product:           product,
				ObjectDescription: "Лицензия «Astra Linux»",
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return conn
}

func TestExportPurchases(t *testing.T) {
	conn := newSeededDB(t)
	path := filepath.Join(t.TempDir(), "out", "purchases.parquet")

	n, err := ExportPurchases(context.Background(), conn, path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, nil, 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	assert.Equal(t, int64(2), pr.GetNumRows())
	assert.Len(t, pr.SchemaHandler.ValueColumns, len(purchaseSchema))
}

func TestExportPurchasesEmpty(t *testing.T) {
	conn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, db.InitializeSchema(conn))

	path := filepath.Join(t.TempDir(), "empty.parquet")
	n, err := ExportPurchases(context.Background(), conn, path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestSaveTablesToParquet(t *testing.T) {
	conn := newSeededDB(t)
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	err := SaveTablesToParquet(context.Background(), conn, dir, []string{"regions", "purchases"}, logger)
	require.NoError(t, err)
	for _, name := range []string{"regions.parquet", "purchases.parquet"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	err = SaveTablesToParquet(context.Background(), conn, dir, []string{"no_such_table"}, logger)
	assert.ErrorContains(t, err, "no_such_table")
}
