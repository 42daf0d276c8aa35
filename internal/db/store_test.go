package db

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	conn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, InitializeSchema(conn))
	// Idempotent
	require.NoError(t, InitializeSchema(conn))
	return NewStore(conn, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestUpsertRegionAndProduct(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	var first, second RegionRef
	var p1, p2 ProductRef
	err := store.InSession(ctx, func(s *Session) error {
		var created bool
		var err error
		first, created, err = s.UpsertRegion(ctx, "Moskva")
		require.NoError(t, err)
		assert.True(t, created)

		second, created, err = s.UpsertRegion(ctx, "Moskva")
		require.NoError(t, err)
		assert.False(t, created)

		p1, created, err = s.UpsertProduct(ctx, "Astra Linux", "58.29.11.000", true)
		require.NoError(t, err)
		assert.True(t, created)

		p2, created, err = s.UpsertProduct(ctx, "Astra Linux", "62.01.29.000", false)
		require.NoError(t, err)
		assert.False(t, created)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, p1.ID, p2.ID)
	assert.Equal(t, "58.29.11.000", p2.ClassificationCode)
	assert.True(t, p2.IsRussian)

	regions, err := store.ListRegions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Moskva"}, regions)

	found, ok, err := store.FindProduct(ctx, "Astra Linux")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, p1, found)
	_, ok, err = store.FindProduct(ctx, "Windows 10")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpsertPurchase(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	in := PurchaseInput{
		Name:              "0373100064620000012",
		Date:              time.Date(2020, 3, 15, 10, 30, 0, 0, time.UTC),
		Price:             decimal.RequireFromString("12345.6"),
		ObjectDescription: "Поставка ПО «Astra Linux»",
	}
	for i := 0; i < 2; i++ {
		err := store.InSession(ctx, func(s *Session) error {
			region, _, err := s.UpsertRegion(ctx, "Moskva")
			require.NoError(t, err)
			product, _, err := s.UpsertProduct(ctx, "Astra Linux", "58.29.11.000", true)
			require.NoError(t, err)
			in.Region, in.Product = region, product
			_, created, err := s.UpsertPurchase(ctx, in)
			require.NoError(t, err)
			assert.Equal(t, i == 0, created)
			return nil
		})
		require.NoError(t, err)
	}

	exists, err := store.PurchaseExists(ctx, in.Name)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = store.PurchaseExists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, exists)

	var count int
	var price, date string
	require.NoError(t, store.DB().QueryRowContext(ctx,
		`SELECT count(*), CAST(max(price) AS VARCHAR), CAST(max(purchase_date) AS VARCHAR) FROM purchases;`,
	).Scan(&count, &price, &date))
	assert.Equal(t, 1, count)
	assert.True(t, decimal.RequireFromString(price).Equal(decimal.RequireFromString("12345.60")))
	assert.Equal(t, "2020-03-15", date)
}

func TestInSessionRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	boom := errors.New("boom")
	err := store.InSession(ctx, func(s *Session) error {
		_, _, err := s.UpsertRegion(ctx, "Tverskaja_obl")
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	regions, err := store.ListRegions(ctx)
	require.NoError(t, err)
	assert.Empty(t, regions)

	assert.Panics(t, func() {
		_ = store.InSession(ctx, func(s *Session) error {
			_, _, _ = s.UpsertRegion(ctx, "Tverskaja_obl")
			panic("boom")
		})
	})
	regions, err = store.ListRegions(ctx)
	require.NoError(t, err)
	assert.Empty(t, regions)
}

func TestSaveRegions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	n, err := store.SaveRegions(ctx, []string{"Moskva", "Adygeja_Resp"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = store.SaveRegions(ctx, []string{"Moskva", "Altajskij_kraj"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	regions, err := store.ListRegions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Adygeja_Resp", "Altajskij_kraj", "Moskva"}, regions)
}

func TestTaxonomyRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	n, err := store.SaveTaxonomy(ctx, "Программное обеспечение", []string{"58.29.11.000", "62.01.29.000", " "})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = store.SaveTaxonomy(ctx, "Программное обеспечение", []string{"58.29.11.000", "58.29.29.000"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = store.SaveTaxonomy(ctx, "Оборудование", []string{"26.20.11.110"})
	require.NoError(t, err)

	tax, err := store.LoadTaxonomy(ctx, "Программное обеспечение")
	require.NoError(t, err)
	assert.Equal(t, 3, tax.Len())
	assert.True(t, tax.Contains("58.29.29.000"))
	assert.False(t, tax.Contains("26.20.11.110"))

	_, err = store.SaveTaxonomy(ctx, "  ", nil)
	assert.Error(t, err)
}

func TestTaxonomyRejectsCodesOfAnotherClassifier(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.SaveTaxonomy(ctx, "Оборудование", []string{"26.20.11.110"})
	require.NoError(t, err)

	_, err = store.SaveTaxonomy(ctx, "Программное обеспечение", []string{"58.29.11.000", "26.20.11.110"})
	var conflict *ClassifierConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, map[string]string{"26.20.11.110": "Оборудование"}, conflict.Codes)
	assert.Contains(t, err.Error(), "26.20.11.110 (Оборудование)")

	// The rejected load leaves nothing behind.
	tax, err := store.LoadTaxonomy(ctx, "Программное обеспечение")
	require.NoError(t, err)
	assert.Equal(t, 0, tax.Len())
	tax, err = store.LoadTaxonomy(ctx, "Оборудование")
	require.NoError(t, err)
	assert.True(t, tax.Contains("26.20.11.110"))
}

func TestEventLog(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	d := 1500 * time.Millisecond
	events := []Event{
		{RunID: "run-1", Region: "Moskva", Filename: "a.zip", FileType: FileTypeArchive, Event: EventProcessStart},
		{RunID: "run-1", Region: "Moskva", Filename: "a.zip", FileType: FileTypeArchive, Event: EventProcessEnd, Duration: &d},
		{RunID: "run-1", Region: "Moskva", Filename: "b.zip", FileType: FileTypeArchive, Event: EventError, Message: "corrupt"},
		{RunID: "run-1", Region: "Adygeja_Resp", Filename: "c.zip", FileType: FileTypeArchive, Event: EventProcessEnd},
	}
	for _, e := range events {
		require.NoError(t, store.LogEvent(ctx, e))
	}

	done, err := store.CompletedArchives(ctx, "Moskva")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a.zip": true}, done)

	event, _, found, err := store.LatestEvent(ctx, "Moskva", "b.zip")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, EventError, event)

	_, _, found, err = store.LatestEvent(ctx, "Moskva", "zzz.zip")
	require.NoError(t, err)
	assert.False(t, found)

	var buf bytes.Buffer
	require.NoError(t, store.DisplayHistory(ctx, &buf, "Moskva", "", 10))
	assert.Contains(t, buf.String(), "corrupt")
	assert.Contains(t, buf.String(), "Displayed 3 records.")
	assert.NotContains(t, buf.String(), "c.zip")
}
