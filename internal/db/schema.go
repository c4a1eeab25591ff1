package db

import (
	"context"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS senders (
        id SERIAL PRIMARY KEY,
        email TEXT NOT NULL UNIQUE,
        full_name TEXT NOT NULL DEFAULT '',
        is_paused BOOLEAN NOT NULL DEFAULT FALSE,
        daily_cap INTEGER NOT NULL DEFAULT 0,
        min_delay_seconds INTEGER NOT NULL DEFAULT 0,
        max_delay_seconds INTEGER NOT NULL DEFAULT 0,
        email_template TEXT NOT NULL DEFAULT '',
        followup_template TEXT NOT NULL DEFAULT '',
        email_subject TEXT NOT NULL DEFAULT '',
        resume_link TEXT NOT NULL DEFAULT '',
        ledger_id TEXT NOT NULL DEFAULT '',
        ledger_tab TEXT NOT NULL DEFAULT '',
        mail_token TEXT NOT NULL DEFAULT '',
        created_at BIGINT NOT NULL,
        updated_at BIGINT
    );`,
	`CREATE TABLE IF NOT EXISTS email_logs (
        id BIGSERIAL PRIMARY KEY,
        sender_id INTEGER NOT NULL REFERENCES senders(id) ON DELETE CASCADE,
        to_email TEXT NOT NULL,
        status TEXT NOT NULL,
        error TEXT NOT NULL DEFAULT '',
        sent_at BIGINT NOT NULL
    );`,
	`CREATE INDEX IF NOT EXISTS idx_email_logs_sender_sent ON email_logs(sender_id, sent_at);`,
	`CREATE TABLE IF NOT EXISTS contacts (
        sender_id INTEGER NOT NULL REFERENCES senders(id) ON DELETE CASCADE,
        position INTEGER NOT NULL,
        email TEXT NOT NULL DEFAULT '',
        name TEXT NOT NULL DEFAULT '',
        company TEXT NOT NULL DEFAULT '',
        status TEXT NOT NULL DEFAULT '',
        replied BOOLEAN NOT NULL DEFAULT FALSE,
        bounced BOOLEAN NOT NULL DEFAULT FALSE,
        followup_count INTEGER NOT NULL DEFAULT 0,
        last_sent_date TEXT NOT NULL DEFAULT '',
        next_send_date TEXT NOT NULL DEFAULT '',
        last_error TEXT NOT NULL DEFAULT '',
        PRIMARY KEY (sender_id, position)
    );`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS senders (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        email TEXT NOT NULL UNIQUE,
        full_name TEXT NOT NULL DEFAULT '',
        is_paused BOOLEAN NOT NULL DEFAULT 0,
        daily_cap INTEGER NOT NULL DEFAULT 0,
        min_delay_seconds INTEGER NOT NULL DEFAULT 0,
        max_delay_seconds INTEGER NOT NULL DEFAULT 0,
        email_template TEXT NOT NULL DEFAULT '',
        followup_template TEXT NOT NULL DEFAULT '',
        email_subject TEXT NOT NULL DEFAULT '',
        resume_link TEXT NOT NULL DEFAULT '',
        ledger_id TEXT NOT NULL DEFAULT '',
        ledger_tab TEXT NOT NULL DEFAULT '',
        mail_token TEXT NOT NULL DEFAULT '',
        created_at INTEGER NOT NULL,
        updated_at INTEGER
    );`,
	`CREATE TABLE IF NOT EXISTS email_logs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        sender_id INTEGER NOT NULL,
        to_email TEXT NOT NULL,
        status TEXT NOT NULL,
        error TEXT NOT NULL DEFAULT '',
        sent_at INTEGER NOT NULL,
        FOREIGN KEY(sender_id) REFERENCES senders(id) ON DELETE CASCADE
    );`,
	`CREATE INDEX IF NOT EXISTS idx_email_logs_sender_sent ON email_logs(sender_id, sent_at);`,
	`CREATE TABLE IF NOT EXISTS contacts (
        sender_id INTEGER NOT NULL,
        position INTEGER NOT NULL,
        email TEXT NOT NULL DEFAULT '',
        name TEXT NOT NULL DEFAULT '',
        company TEXT NOT NULL DEFAULT '',
        status TEXT NOT NULL DEFAULT '',
        replied BOOLEAN NOT NULL DEFAULT 0,
        bounced BOOLEAN NOT NULL DEFAULT 0,
        followup_count INTEGER NOT NULL DEFAULT 0,
        last_sent_date TEXT NOT NULL DEFAULT '',
        next_send_date TEXT NOT NULL DEFAULT '',
        last_error TEXT NOT NULL DEFAULT '',
        PRIMARY KEY (sender_id, position),
        FOREIGN KEY(sender_id) REFERENCES senders(id) ON DELETE CASCADE
    );`,
}

// EnsureSchema creates the tables the engine needs if they do not exist.
func (d *DB) EnsureSchema(ctx context.Context) error {
	statements := postgresSchema
	if d.Driver == DriverSQLite {
		statements = sqliteSchema
	}
	for _, statement := range statements {
		if _, err := d.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
