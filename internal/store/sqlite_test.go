package store

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/airquality-monitor/internal/telemetry"
)

func openTestDB(t *testing.T, path string) *SQLitePersister {
	t.Helper()
	p, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := p.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
	})
	return p
}

func TestOpenSQLite_AbsentFileInitializesEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "aq.db")

	p := openTestDB(t, path)

	readings, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, readings)

	_, err = os.Stat(path)
	assert.NoError(t, err, "store file should be created")
}

func TestSQLite_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "aq.db")

	want := []telemetry.SensorReading{readingAt(0), readingAt(1), readingAt(2), readingAt(3)}
	want[1].AQI = nil
	want[2].IndoorTemp = nil

	p, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, p.Save(ctx, want))
	require.NoError(t, p.Close())

	reopened := openTestDB(t, path)
	got, err := reopened.Load(ctx)
	require.NoError(t, err)

	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Equal(got[i]), "reading %d: want %+v got %+v", i, want[i], got[i])
	}
	assert.Nil(t, got[1].AQI)
	assert.Nil(t, got[2].IndoorTemp)
	assert.Nil(t, got[0].OutdoorTemp)
}

func TestSQLite_SaveReplacesPreviousSnapshot(t *testing.T) {
	ctx := context.Background()
	p := openTestDB(t, filepath.Join(t.TempDir(), "aq.db"))

	require.NoError(t, p.Save(ctx, []telemetry.SensorReading{readingAt(0), readingAt(1), readingAt(2)}))
	require.NoError(t, p.Save(ctx, []telemetry.SensorReading{readingAt(1), readingAt(2)}))

	got, err := p.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Equal(readingAt(1)))
}

func TestStore_ReloadAfterRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "aq.db")

	p, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	s, err := Open(ctx, 3, p)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, readingAt(i)))
	}
	before := s.Snapshot()
	require.NoError(t, s.Close())

	p2 := openTestDB(t, path)
	s2, err := Open(ctx, 3, p2)
	require.NoError(t, err)

	after := s2.Snapshot()
	require.Len(t, after, len(before))
	for i := range before {
		assert.True(t, before[i].Equal(after[i]))
	}
}

func TestOpenSQLite_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aq.db")
	garbage := bytes.Repeat([]byte("not a sqlite database "), 512)
	require.NoError(t, os.WriteFile(path, garbage, 0o644))

	_, err := OpenSQLite(context.Background(), path)
	var cerr *telemetry.CorruptStoreError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, path, cerr.Path)
}

func TestOpenSQLite_ForeignDatabaseIsCorrupt(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "aq.db")

	p, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	_, err = p.db.ExecContext(ctx, `DROP TABLE store_meta`)
	require.NoError(t, err)
	require.NoError(t, p.Close())

	_, err = OpenSQLite(ctx, path)
	var cerr *telemetry.CorruptStoreError
	assert.ErrorAs(t, err, &cerr)
}

func TestOpenSQLite_EmptyFileInitializes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aq.db")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	p := openTestDB(t, path)
	readings, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, readings)
}
