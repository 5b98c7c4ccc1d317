package repository

import (
	"context"
	"database/sql"
	"errors"
)

const attachmentColumns = `id, request_id, quote_id, file_name, mime_type, file_url, size_bytes, content_hash, created_at`

// AttachmentRepo handles quote_attachments.
type AttachmentRepo struct {
	db DBTX
}

func NewAttachmentRepo(db DBTX) *AttachmentRepo { return &AttachmentRepo{db: db} }

func (r *AttachmentRepo) WithTx(tx *sql.Tx) *AttachmentRepo { return &AttachmentRepo{db: tx} }

func (r *AttachmentRepo) Insert(ctx context.Context, a Attachment) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO quote_attachments(id, request_id, quote_id, file_name, mime_type, file_url, size_bytes, content_hash, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.RequestID, a.QuoteID, a.FileName, a.MimeType, a.FileURL, a.SizeBytes, a.ContentHash, a.CreatedAt)
	return err
}

func (r *AttachmentRepo) Get(ctx context.Context, id string) (*Attachment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+attachmentColumns+` FROM quote_attachments WHERE id = ?`, id)
	a, err := scanAttachment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AttachmentRepo) ListForRequest(ctx context.Context, requestID string) ([]Attachment, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+attachmentColumns+` FROM quote_attachments WHERE request_id = ? ORDER BY created_at, id`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AttachmentRepo) CountForRequests(ctx context.Context, requestIDs []string) (int, error) {
	return countIn(ctx, r.db, "quote_attachments", requestIDs)
}

func scanAttachment(row scanner) (Attachment, error) {
	var a Attachment
	var quoteID sql.NullString
	if err := row.Scan(&a.ID, &a.RequestID, &quoteID, &a.FileName, &a.MimeType, &a.FileURL, &a.SizeBytes, &a.ContentHash, &a.CreatedAt); err != nil {
		return Attachment{}, err
	}
	a.QuoteID = stringPtr(quoteID)
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}
