package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const quoteColumns = `id, request_id, quote_number, details, labor_items, material_items, subtotal, gst, pst,
 quote_amount, status, accepted_at, created_at, updated_at`

// QuoteRepo handles quotes.
type QuoteRepo struct {
	db DBTX
}

func NewQuoteRepo(db DBTX) *QuoteRepo { return &QuoteRepo{db: db} }

func (r *QuoteRepo) WithTx(tx *sql.Tx) *QuoteRepo { return &QuoteRepo{db: tx} }

func (r *QuoteRepo) Insert(ctx context.Context, q Quote) error {
	labor, materials, err := encodeItems(q.LaborItems, q.MaterialItems)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
	INSERT INTO quotes(id, request_id, quote_number, details, labor_items, material_items, subtotal, gst, pst,
	 quote_amount, status, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`, q.ID, q.RequestID, q.QuoteNumber, q.Details, labor, materials, q.SubtotalCents, q.GSTCents, q.PSTCents,
		q.TotalCents, q.Status, q.CreatedAt, q.UpdatedAt)
	return err
}

// NextNumber returns the next sequential quote number for a request.
func (r *QuoteRepo) NextNumber(ctx context.Context, requestID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(quote_number), 0) + 1 FROM quotes WHERE request_id = ?`, requestID).Scan(&n)
	return n, err
}

// UpdatePricing rewrites the priced content of a quote that is not accepted
// and resets its status to sent.
func (r *QuoteRepo) UpdatePricing(ctx context.Context, q Quote) error {
	labor, materials, err := encodeItems(q.LaborItems, q.MaterialItems)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
	UPDATE quotes SET details = ?, labor_items = ?, material_items = ?, subtotal = ?, gst = ?, pst = ?,
	 quote_amount = ?, status = 'sent', accepted_at = NULL, updated_at = ?
	WHERE id = ? AND request_id = ? AND status <> 'accepted'`,
		q.Details, labor, materials, q.SubtotalCents, q.GSTCents, q.PSTCents, q.TotalCents, q.UpdatedAt, q.ID, q.RequestID)
	return affectedOne(res, err)
}

func (r *QuoteRepo) Get(ctx context.Context, requestID, id string) (*Quote, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = ? AND request_id = ?`, id, requestID)
	q, err := scanQuote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *QuoteRepo) ListForRequest(ctx context.Context, requestID string) ([]Quote, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE request_id = ? ORDER BY quote_number`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// Accept marks one quote accepted and then every sibling rejected. Callers
// run it inside a transaction. sql.ErrNoRows means the quote is missing or
// already accepted; a second accepted quote trips the partial unique index.
func (r *QuoteRepo) Accept(ctx context.Context, requestID, id string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE quotes SET status = 'accepted', accepted_at = ?, updated_at = ? WHERE id = ? AND request_id = ? AND status <> 'accepted'`, now, now, id, requestID)
	if err := affectedOne(res, err); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `UPDATE quotes SET status = 'rejected', accepted_at = NULL, updated_at = ? WHERE request_id = ? AND id <> ?`, now, requestID, id); err != nil {
		return fmt.Errorf("reject siblings: %w", err)
	}
	return nil
}

// Reopen puts the request's accepted quote back to sent. It reports whether
// one was accepted.
func (r *QuoteRepo) Reopen(ctx context.Context, requestID string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE quotes SET status = 'sent', accepted_at = NULL, updated_at = ? WHERE request_id = ? AND status = 'accepted'`, now, requestID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *QuoteRepo) Delete(ctx context.Context, requestID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM quotes WHERE id = ? AND request_id = ?`, id, requestID)
	return affectedOne(res, err)
}

func (r *QuoteRepo) CountForRequests(ctx context.Context, requestIDs []string) (int, error) {
	return countIn(ctx, r.db, "quotes", requestIDs)
}

func scanQuote(row scanner) (Quote, error) {
	var q Quote
	var labor, materials sql.NullString
	var accepted sql.NullTime
	if err := row.Scan(&q.ID, &q.RequestID, &q.QuoteNumber, &q.Details, &labor, &materials, &q.SubtotalCents,
		&q.GSTCents, &q.PSTCents, &q.TotalCents, &q.Status, &accepted, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return Quote{}, err
	}
	if err := decodeJSON(labor, &q.LaborItems); err != nil {
		return Quote{}, fmt.Errorf("decode labor items: %w", err)
	}
	if err := decodeJSON(materials, &q.MaterialItems); err != nil {
		return Quote{}, fmt.Errorf("decode material items: %w", err)
	}
	q.AcceptedAt = timePtr(accepted)
	q.CreatedAt = q.CreatedAt.UTC()
	q.UpdatedAt = q.UpdatedAt.UTC()
	return q, nil
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// countIn counts rows of table whose request_id is in ids.
func countIn(ctx context.Context, db DBTX, table string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE request_id IN (`+placeholders(len(ids))+`)`, args...).Scan(&n)
	return n, err
}
