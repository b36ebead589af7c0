// Package store provides the SQL backends of the fleet record store and the
// registry that builds a backend from configuration.
package store

import (
	"fmt"
	"strings"
	"time"

	corestore "github.com/kilianp07/ridefleet/core/store"
)

// upsertSQL writes one record, replacing the stored version. Both SQLite and
// PostgreSQL accept the ON CONFLICT form.
func upsertSQL(ph func(int) string) string {
	return fmt.Sprintf(`INSERT INTO records (kind, id, driver_id, ride_id, passenger_id, status, created_at, body)
VALUES (%s, %s, %s, %s, %s, %s, %s, %s)
ON CONFLICT (kind, id) DO UPDATE SET
    driver_id = excluded.driver_id,
    ride_id = excluded.ride_id,
    passenger_id = excluded.passenger_id,
    status = excluded.status,
    created_at = excluded.created_at,
    body = excluded.body`,
		ph(1), ph(2), ph(3), ph(4), ph(5), ph(6), ph(7), ph(8))
}

func upsertArgs(rec corestore.Record) []any {
	return []any{string(rec.Kind), rec.ID, rec.DriverID, rec.RideID, rec.PassengerID, rec.Status, rec.CreatedAt.UnixNano(), string(rec.Body)}
}

func getSQL(ph func(int) string) string {
	return fmt.Sprintf(`SELECT kind, id, driver_id, ride_id, passenger_id, status, created_at, body
FROM records WHERE kind = %s AND id = %s`, ph(1), ph(2))
}

// findSQL builds the filtered select for q, ordered like corestore.SortRecords.
func findSQL(q corestore.Query, ph func(int) string) (string, []any) {
	args := []any{string(q.Kind)}
	var b strings.Builder
	b.WriteString(`SELECT kind, id, driver_id, ride_id, passenger_id, status, created_at, body FROM records WHERE kind = `)
	b.WriteString(ph(1))
	add := func(col, v string) {
		args = append(args, v)
		fmt.Fprintf(&b, " AND %s = %s", col, ph(len(args)))
	}
	if q.DriverID != "" {
		add("driver_id", q.DriverID)
	}
	if q.RideID != "" {
		add("ride_id", q.RideID)
	}
	if q.PassengerID != "" {
		add("passenger_id", q.PassengerID)
	}
	if len(q.Statuses) > 0 {
		marks := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			args = append(args, s)
			marks[i] = ph(len(args))
		}
		fmt.Fprintf(&b, " AND status IN (%s)", strings.Join(marks, ", "))
	}
	b.WriteString(" ORDER BY created_at, id")
	return b.String(), args
}

const schemaSQL = `CREATE TABLE IF NOT EXISTS records (
    kind TEXT NOT NULL,
    id TEXT NOT NULL,
    driver_id TEXT NOT NULL DEFAULT '',
    ride_id TEXT NOT NULL DEFAULT '',
    passenger_id TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT '',
    created_at BIGINT NOT NULL,
    body TEXT NOT NULL,
    PRIMARY KEY (kind, id)
)`

var indexSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_records_driver ON records(kind, driver_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_records_ride ON records(kind, ride_id)`,
	`CREATE INDEX IF NOT EXISTS idx_records_passenger ON records(kind, passenger_id)`,
}

// scanner is satisfied by *sql.Row, *sql.Rows and pgx.Row.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (corestore.Record, error) {
	var (
		rec     corestore.Record
		kind    string
		created int64
		body    string
	)
	if err := s.Scan(&kind, &rec.ID, &rec.DriverID, &rec.RideID, &rec.PassengerID, &rec.Status, &created, &body); err != nil {
		return corestore.Record{}, err
	}
	rec.Kind = corestore.Kind(kind)
	rec.CreatedAt = time.Unix(0, created).UTC()
	rec.Body = []byte(body)
	return rec, nil
}
