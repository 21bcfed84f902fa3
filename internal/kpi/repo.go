package kpi

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"configurateur/pkg/models"
)

const (
	MaxListLimit     = 5000
	DefaultListLimit = 200
	topEvents        = 20
	recentDays       = 90
)

// ExportHeader is the column order of the CSV export.
var ExportHeader = []string{"ts_utc", "session_id", "event", "payload_json", "path", "ua", "ip"}

type Repo struct {
	DB  *sql.DB
	now func() time.Time
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db, now: time.Now}
}

func (r *Repo) Insert(ctx context.Context, ev models.KPIEvent) error {
	if ev.TS == "" {
		ev.TS = r.now().UTC().Format(time.RFC3339Nano)
	}
	if len(ev.Payload) == 0 {
		ev.Payload = json.RawMessage(`{}`)
	}

	var session any
	if ev.SessionID != "" {
		session = ev.SessionID
	}

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO kpi_events (ts_utc, session_id, event, payload_json, path, ua, ip)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.TS, session, ev.Event, string(ev.Payload), ev.Path, ev.UA, ev.IP)
	if err != nil {
		return fmt.Errorf("insert kpi event: %w", err)
	}
	return nil
}

// Summary returns the total count, the most frequent events and the daily
// counts of the most recent days, oldest first.
func (r *Repo) Summary(ctx context.Context) (*models.KPISummary, error) {
	out := &models.KPISummary{Top: []models.EventCount{}, ByDay: []models.DayCount{}}

	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM kpi_events`).Scan(&out.Total); err != nil {
		return nil, fmt.Errorf("count kpi events: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT event, COUNT(*) AS c
		FROM kpi_events
		GROUP BY event
		ORDER BY c DESC, event ASC
		LIMIT ?
	`, topEvents)
	if err != nil {
		return nil, fmt.Errorf("top kpi events: %w", err)
	}
	for rows.Next() {
		var ec models.EventCount
		if err := rows.Scan(&ec.Event, &ec.Count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan top kpi events: %w", err)
		}
		out.Top = append(out.Top, ec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate top kpi events: %w", err)
	}
	rows.Close()

	rows, err = r.DB.QueryContext(ctx, `
		SELECT substr(ts_utc, 1, 10) AS d, COUNT(*)
		FROM kpi_events
		GROUP BY d
		ORDER BY d DESC
		LIMIT ?
	`, recentDays)
	if err != nil {
		return nil, fmt.Errorf("kpi events by day: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dc models.DayCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, fmt.Errorf("scan kpi events by day: %w", err)
		}
		out.ByDay = append(out.ByDay, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kpi events by day: %w", err)
	}

	for i, j := 0, len(out.ByDay)-1; i < j; i, j = i+1, j-1 {
		out.ByDay[i], out.ByDay[j] = out.ByDay[j], out.ByDay[i]
	}
	return out, nil
}

// List returns the newest events, optionally of one type. limit is clamped
// to 1..MaxListLimit.
func (r *Repo) List(ctx context.Context, event string, limit int) ([]models.KPIEvent, error) {
	limit = ClampLimit(limit)

	query := `
		SELECT id, ts_utc, session_id, event, payload_json, path, ip
		FROM kpi_events`
	args := []any{}
	if event != "" {
		query += ` WHERE event = ?`
		args = append(args, event)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list kpi events: %w", err)
	}
	defer rows.Close()

	out := make([]models.KPIEvent, 0, min(limit, 256))
	for rows.Next() {
		var ev models.KPIEvent
		var session, payload, path, ip sql.NullString
		if err := rows.Scan(&ev.ID, &ev.TS, &session, &ev.Event, &payload, &path, &ip); err != nil {
			return nil, fmt.Errorf("scan kpi event: %w", err)
		}
		ev.SessionID = session.String
		ev.Path = path.String
		ev.IP = ip.String
		ev.Payload = json.RawMessage(`{}`)
		if payload.Valid && json.Valid([]byte(payload.String)) {
			ev.Payload = json.RawMessage(payload.String)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kpi events: %w", err)
	}
	return out, nil
}

// ExportCSV streams every event, newest first, as ";" separated CSV.
func (r *Repo) ExportCSV(ctx context.Context, w io.Writer) (int, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT ts_utc, session_id, event, payload_json, path, ua, ip
		FROM kpi_events
		ORDER BY id DESC
	`)
	if err != nil {
		return 0, fmt.Errorf("export kpi events: %w", err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write(ExportHeader); err != nil {
		return 0, fmt.Errorf("write kpi header: %w", err)
	}

	n := 0
	vals := make([]sql.NullString, len(ExportHeader))
	ptrs := make([]any, len(vals))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	rec := make([]string, len(vals))
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return n, fmt.Errorf("scan kpi event: %w", err)
		}
		for i, v := range vals {
			rec[i] = v.String
		}
		if err := cw.Write(rec); err != nil {
			return n, fmt.Errorf("write kpi row: %w", err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("iterate kpi events: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return n, fmt.Errorf("flush kpi csv: %w", err)
	}
	return n, nil
}

// DeleteMonth removes the events of one calendar month.
func (r *Repo) DeleteMonth(ctx context.Context, m Month) (int64, error) {
	start, end := m.Range()
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM kpi_events
		WHERE ts_utc >= ? AND ts_utc < ?
	`, start, end)
	if err != nil {
		return 0, fmt.Errorf("delete kpi month: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete kpi month rows: %w", err)
	}
	return n, nil
}

func ClampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
