package repository

import (
	"context"
	"database/sql"
)

// NoteRepo handles request_notes.
type NoteRepo struct {
	db DBTX
}

func NewNoteRepo(db DBTX) *NoteRepo { return &NoteRepo{db: db} }

func (r *NoteRepo) WithTx(tx *sql.Tx) *NoteRepo { return &NoteRepo{db: tx} }

func (r *NoteRepo) Insert(ctx context.Context, n Note) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO request_notes(id, request_id, user_id, author_role, note, created_at) VALUES(?, ?, ?, ?, ?, ?)`,
		n.ID, n.RequestID, n.UserID, n.AuthorRole, n.Note, n.CreatedAt)
	return err
}

func (r *NoteRepo) ListForRequest(ctx context.Context, requestID string) ([]Note, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, request_id, user_id, author_role, note, created_at FROM request_notes WHERE request_id = ? ORDER BY created_at, id`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.RequestID, &n.UserID, &n.AuthorRole, &n.Note, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.CreatedAt = n.CreatedAt.UTC()
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *NoteRepo) CountForRequests(ctx context.Context, requestIDs []string) (int, error) {
	return countIn(ctx, r.db, "request_notes", requestIDs)
}
