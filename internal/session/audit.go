package session

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// AuditEvent is one entry appended to the audit ledger. The Manager records
// every authentication outcome and every session invalidated by the
// IP-change policy; token issuance, revocation, authorization failures and
// rate-limit violations are not recorded.
type AuditEvent struct {
	Timestamp time.Time
	Subject   string
	ClientID  string
	IPAddress string
	Action    string
	Result    string
	Detail    string
}

// AuditLogger records AuditEvents to a durable ledger.
type AuditLogger interface {
	Record(ctx context.Context, event AuditEvent) error
	Recent(ctx context.Context, limit int) ([]AuditEvent, error)
	Close() error
}

// SQLiteAuditLogger persists the audit ledger in an embedded SQLite database,
// migrated with goose. This is bookkeeping about the service itself, not a
// second copy of the YAML content store.
type SQLiteAuditLogger struct {
	db *sql.DB
}

// NewSQLiteAuditLogger opens (creating if necessary) the audit database at
// path and applies pending migrations. path may be ":memory:" for tests.
func NewSQLiteAuditLogger(path string) (*SQLiteAuditLogger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return nil, fmt.Errorf("run audit migrations: %w", err)
	}

	return &SQLiteAuditLogger{db: db}, nil
}

func (a *SQLiteAuditLogger) Record(ctx context.Context, event AuditEvent) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO audit_log (timestamp, subject, client_id, ip_address, action, result, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.Timestamp, event.Subject, event.ClientID, event.IPAddress, event.Action, event.Result, event.Detail,
	)
	if err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	return nil
}

func (a *SQLiteAuditLogger) Recent(ctx context.Context, limit int) ([]AuditEvent, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT timestamp, subject, client_id, ip_address, action, result, detail
		 FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		if err := rows.Scan(&e.Timestamp, &e.Subject, &e.ClientID, &e.IPAddress, &e.Action, &e.Result, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (a *SQLiteAuditLogger) Close() error {
	return a.db.Close()
}

// NoopAuditLogger discards events; used when audit_logging.enabled is false.
type NoopAuditLogger struct{}

func (NoopAuditLogger) Record(context.Context, AuditEvent) error         { return nil }
func (NoopAuditLogger) Recent(context.Context, int) ([]AuditEvent, error) { return nil, nil }
func (NoopAuditLogger) Close() error                                      { return nil }
