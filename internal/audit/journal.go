// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LexGate Contributors

package audit

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lexgate-dev/lexgate/internal/provider"
	lexerr "github.com/lexgate-dev/lexgate/pkg/errors"
)

// Journal is the append-only sqlite event log. It records what happened,
// never pool state: replaying it cannot resurrect cooldowns or counters.
type Journal struct {
	db *sql.DB
}

// OpenJournal opens (or creates) the journal database at path and applies
// the schema.
func OpenJournal(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, lexerr.Wrapf(err, lexerr.CodeAuditJournalOpenFailure, "opening audit journal %s", path)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, lexerr.Wrapf(err, lexerr.CodeAuditJournalOpenFailure, "pinging audit journal %s", path)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, lexerr.Wrapf(err, lexerr.CodeAuditJournalOpenFailure, "migrating audit journal %s", path)
	}

	return &Journal{db: db}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	time        TEXT    NOT NULL,
	run_id      TEXT    NOT NULL DEFAULT '',
	type        TEXT    NOT NULL,
	provider    TEXT    NOT NULL DEFAULT '',
	credential  TEXT    NOT NULL DEFAULT '',
	category    TEXT    NOT NULL DEFAULT '',
	cooldown_ms INTEGER NOT NULL DEFAULT 0,
	attempt     INTEGER NOT NULL DEFAULT 0,
	detail      TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_events_time ON events(time);
CREATE INDEX IF NOT EXISTS idx_events_run  ON events(run_id);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
`
	_, err := db.Exec(ddl)
	return err
}

// Append writes one event.
func (j *Journal) Append(ctx context.Context, ev Event) error {
	const q = `INSERT INTO events (time, run_id, type, provider, credential, category, cooldown_ms, attempt, detail)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := j.db.ExecContext(ctx, q,
		formatTime(ev.Time), ev.RunID, string(ev.Type), string(ev.Provider),
		ev.Credential, ev.Category, ev.Cooldown.Milliseconds(), ev.Attempt, ev.Detail,
	)
	if err != nil {
		return lexerr.Wrapf(err, lexerr.CodeAuditJournalWriteFailure,
			"appending %s event", ev.Type)
	}
	return nil
}

// Filter narrows a Query. Zero fields match everything.
type Filter struct {
	RunID    string
	Provider provider.Name
	Type     EventType
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

// Query returns matching events, oldest first.
func (j *Journal) Query(ctx context.Context, filter Filter) ([]Event, error) {
	var qb strings.Builder
	qb.WriteString(`SELECT time, run_id, type, provider, credential, category, cooldown_ms, attempt, detail FROM events`)

	var conditions []string
	var args []any

	if filter.RunID != "" {
		conditions = append(conditions, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if filter.Provider != "" {
		conditions = append(conditions, "provider = ?")
		args = append(args, string(filter.Provider))
	}
	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, string(filter.Type))
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "time >= ?")
		args = append(args, formatTime(filter.From))
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "time < ?")
		args = append(args, formatTime(filter.To))
	}

	if len(conditions) > 0 {
		qb.WriteString(" WHERE ")
		qb.WriteString(strings.Join(conditions, " AND "))
	}

	qb.WriteString(" ORDER BY id ASC")

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	qb.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, limit, filter.Offset)

	rows, err := j.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, lexerr.Wrap(err, lexerr.CodeAuditJournalQueryFailure, "querying audit journal")
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var events []Event
	for rows.Next() {
		var (
			ev         Event
			ts         string
			typ        string
			prov       string
			cooldownMS int64
		)
		if err := rows.Scan(&ts, &ev.RunID, &typ, &prov, &ev.Credential, &ev.Category, &cooldownMS, &ev.Attempt, &ev.Detail); err != nil {
			return nil, lexerr.Wrap(err, lexerr.CodeAuditJournalQueryFailure, "scanning event row")
		}
		ev.Time = parseTime(ts)
		ev.Type = EventType(typ)
		ev.Provider = provider.Name(prov)
		ev.Cooldown = time.Duration(cooldownMS) * time.Millisecond
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, lexerr.Wrap(err, lexerr.CodeAuditJournalQueryFailure, "iterating event rows")
	}
	return events, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
