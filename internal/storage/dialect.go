package storage

import (
	"errors"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Dialect identifies the SQL flavour spoken by the underlying driver
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect maps a database/sql driver name to its dialect
func ParseDialect(driver string) (Dialect, error) {
	switch Dialect(driver) {
	case DialectSQLite, DialectPostgres:
		return Dialect(driver), nil
	}
	return "", ErrUnsupportedDriver
}

// rebind rewrites ? placeholders into the dialect's bind syntax
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) schema() string {
	if d == DialectPostgres {
		return postgresSchema
	}
	return sqliteSchema
}

// isUniqueViolation reports whether err comes from a unique index
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS vitals (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		vital_type TEXT NOT NULL,
		value REAL NOT NULL,
		unit TEXT NOT NULL DEFAULT '',
		recorded_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_vitals_patient_type_time ON vitals(patient_id, vital_type, recorded_at);
	CREATE INDEX IF NOT EXISTS idx_vitals_recorded_at ON vitals(recorded_at);

	CREATE TABLE IF NOT EXISTS medication_logs (
		id TEXT PRIMARY KEY,
		medication_id TEXT NOT NULL,
		patient_id TEXT NOT NULL,
		scheduled_at TIMESTAMP NOT NULL,
		taken_at TIMESTAMP,
		status TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_medication_logs_patient_time ON medication_logs(patient_id, scheduled_at, status);

	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		rule_id TEXT NOT NULL,
		rule_name TEXT NOT NULL,
		severity TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		evidence TEXT,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		resolved_at TIMESTAMP,
		resolved_by TEXT,
		resolution_note TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_patient ON alerts(patient_id, created_at);
	CREATE UNIQUE INDEX IF NOT EXISTS uq_alerts_active ON alerts(patient_id, rule_id) WHERE status = 'active';
`

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS vitals (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		vital_type TEXT NOT NULL,
		value DOUBLE PRECISION NOT NULL,
		unit TEXT NOT NULL DEFAULT '',
		recorded_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_vitals_patient_type_time ON vitals(patient_id, vital_type, recorded_at);
	CREATE INDEX IF NOT EXISTS idx_vitals_recorded_at ON vitals(recorded_at);

	CREATE TABLE IF NOT EXISTS medication_logs (
		id TEXT PRIMARY KEY,
		medication_id TEXT NOT NULL,
		patient_id TEXT NOT NULL,
		scheduled_at TIMESTAMPTZ NOT NULL,
		taken_at TIMESTAMPTZ,
		status TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_medication_logs_patient_time ON medication_logs(patient_id, scheduled_at, status);

	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		rule_id TEXT NOT NULL,
		rule_name TEXT NOT NULL,
		severity TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		evidence JSONB,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		resolved_at TIMESTAMPTZ,
		resolved_by TEXT,
		resolution_note TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_patient ON alerts(patient_id, created_at);
	CREATE UNIQUE INDEX IF NOT EXISTS uq_alerts_active ON alerts(patient_id, rule_id) WHERE status = 'active';
`
