package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepo appends audit events to the audit_events table.
// The table is INSERT-only; nothing in this repo updates or deletes rows.
//
// Schema:
//
//	CREATE TABLE IF NOT EXISTS audit_events (
//	    id         UUID PRIMARY KEY,
//	    type       TEXT NOT NULL,
//	    actor      TEXT NOT NULL DEFAULT '',
//	    actor_role TEXT NOT NULL DEFAULT '',
//	    ip_address TEXT NOT NULL DEFAULT '',
//	    case_id    TEXT NOT NULL DEFAULT '',
//	    message    TEXT NOT NULL DEFAULT '',
//	    metadata   TEXT NOT NULL DEFAULT '',
//	    created_at TIMESTAMPTZ NOT NULL
//	);

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
		INSERT INTO audit_events
			(id, type, actor, actor_role, ip_address, case_id, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, q,
		e.ID, string(e.Type), e.Actor, e.ActorRole, e.IPAddress, e.CaseID, e.Message, e.Metadata, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}
