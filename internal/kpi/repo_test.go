package kpi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"configurateur/pkg/database"
	"configurateur/pkg/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "kpi.sqlite3")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

func seed(t *testing.T, r *Repo, ts, event string) {
	t.Helper()
	require.NoError(t, r.Insert(context.Background(), models.KPIEvent{TS: ts, Event: event, SessionID: "s1", IP: "10.0.0.1"}))
}

func TestRepo_InsertAndList(t *testing.T) {
	r := NewRepo(openTestDB(t))
	r.now = func() time.Time { return time.Date(2025, 5, 2, 8, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, models.KPIEvent{Event: "open", Payload: json.RawMessage(`{"step":1}`), Path: "/cfg", UA: "ua", IP: "1.2.3.4"}))
	require.NoError(t, r.Insert(ctx, models.KPIEvent{Event: "export", SessionID: "abc"}))

	rows, err := r.List(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "export", rows[0].Event, "newest first")
	assert.Equal(t, "abc", rows[0].SessionID)
	assert.JSONEq(t, `{}`, string(rows[0].Payload))

	assert.Equal(t, "2025-05-02T08:00:00Z", rows[1].TS)
	assert.JSONEq(t, `{"step":1}`, string(rows[1].Payload))
	assert.Equal(t, "/cfg", rows[1].Path)
	assert.Equal(t, "1.2.3.4", rows[1].IP)
	assert.Empty(t, rows[1].SessionID)
	assert.Empty(t, rows[1].UA, "list does not return user agents")

	rows, err = r.List(ctx, "open", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows, err = r.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "limit is clamped to at least one")
}

func TestRepo_Summary(t *testing.T) {
	r := NewRepo(openTestDB(t))
	ctx := context.Background()

	s, err := r.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Total)
	assert.Empty(t, s.Top)
	assert.Empty(t, s.ByDay)

	seed(t, r, "2025-01-01T10:00:00Z", "open")
	seed(t, r, "2025-01-01T11:00:00Z", "open")
	seed(t, r, "2025-01-03T09:00:00Z", "export")
	seed(t, r, "2025-01-02T09:00:00Z", "open")

	s, err = r.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, []models.EventCount{{Event: "open", Count: 3}, {Event: "export", Count: 1}}, s.Top)
	assert.Equal(t, []models.DayCount{
		{Date: "2025-01-01", Count: 2},
		{Date: "2025-01-02", Count: 1},
		{Date: "2025-01-03", Count: 1},
	}, s.ByDay)
}

func TestRepo_SummaryKeepsRecentDays(t *testing.T) {
	r := NewRepo(openTestDB(t))
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 100; i++ {
		seed(t, r, start.AddDate(0, 0, i).Format(time.RFC3339), "e")
	}

	s, err := r.Summary(context.Background())
	require.NoError(t, err)
	require.Len(t, s.ByDay, 90)
	assert.Equal(t, start.AddDate(0, 0, 10).Format("2006-01-02"), s.ByDay[0].Date)
	assert.Equal(t, start.AddDate(0, 0, 99).Format("2006-01-02"), s.ByDay[89].Date)
}

func TestRepo_ExportCSV(t *testing.T) {
	r := NewRepo(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, r.Insert(ctx, models.KPIEvent{TS: "2025-02-01T00:00:00Z", Event: "a", Payload: json.RawMessage(`{"x":"1;2"}`), UA: "Mozilla", IP: "ip"}))
	seed(t, r, "2025-02-02T00:00:00Z", "b")

	var buf bytes.Buffer
	n, err := r.ExportCSV(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t,
		"ts_utc;session_id;event;payload_json;path;ua;ip\n"+
			"2025-02-02T00:00:00Z;s1;b;{};;;10.0.0.1\n"+
			"2025-02-01T00:00:00Z;;a;\"{\"\"x\"\":\"\"1;2\"\"}\";;Mozilla;ip\n",
		buf.String())
}

func TestRepo_DeleteMonth(t *testing.T) {
	r := NewRepo(openTestDB(t))
	ctx := context.Background()
	seed(t, r, "2024-12-31T23:59:59Z", "e")
	seed(t, r, "2025-01-01T00:00:00Z", "e")
	seed(t, r, "2025-01-31T23:59:59Z", "e")
	seed(t, r, "2025-02-01T00:00:00Z", "e")

	n, err := r.DeleteMonth(ctx, Month{Year: 2025, Month: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = r.DeleteMonth(ctx, Month{Year: 2024, Month: 12})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	s, err := r.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Total)
}

func TestParseMonth(t *testing.T) {
	m, err := ParseMonth("2025-03")
	require.NoError(t, err)
	assert.Equal(t, Month{Year: 2025, Month: 3}, m)
	start, end := m.Range()
	assert.Equal(t, "2025-03-01", start)
	assert.Equal(t, "2025-04-01", end)

	_, end = Month{Year: 2030, Month: 12}.Range()
	assert.Equal(t, "2031-01-01", end)

	for _, bad := range []string{"", "2025-3", "2025/03", "2019-12", "2101-01", "2025-00", "2025-13", "abcd-ef"} {
		_, err := ParseMonth(bad)
		assert.ErrorIs(t, err, ErrBadMonth, bad)
	}
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 1, ClampLimit(-5))
	assert.Equal(t, 200, ClampLimit(200))
	assert.Equal(t, MaxListLimit, ClampLimit(1_000_000))
}
