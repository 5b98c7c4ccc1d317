package repository

import (
	"context"
	"database/sql"
)

// EmailAuditRepo handles email_audit.
type EmailAuditRepo struct {
	db DBTX
}

func NewEmailAuditRepo(db DBTX) *EmailAuditRepo { return &EmailAuditRepo{db: db} }

func (r *EmailAuditRepo) Insert(ctx context.Context, a EmailAudit) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO email_audit(id, request_id, recipient, subject, message_id, status, provider_response, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.RequestID, a.Recipient, a.Subject, a.MessageID, a.Status, a.ProviderResponse, a.CreatedAt)
	return err
}

func (r *EmailAuditRepo) ListForRequest(ctx context.Context, requestID string) ([]EmailAudit, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, request_id, recipient, subject, message_id, status, provider_response, created_at
	 FROM email_audit WHERE request_id = ? ORDER BY created_at, id`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EmailAudit
	for rows.Next() {
		var a EmailAudit
		var reqID, msgID sql.NullString
		if err := rows.Scan(&a.ID, &reqID, &a.Recipient, &a.Subject, &msgID, &a.Status, &a.ProviderResponse, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.RequestID = stringPtr(reqID)
		a.MessageID = stringPtr(msgID)
		out = append(out, a)
	}
	return out, rows.Err()
}
