package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const invoiceColumns = `id, request_id, user_id, invoice_number, labor_items, material_items, subtotal, gst, pst, total,
 status, notes, due_date, payment_method, paid_at, created_at, updated_at`

// InvoiceRepo handles invoices.
type InvoiceRepo struct {
	db DBTX
}

func NewInvoiceRepo(db DBTX) *InvoiceRepo { return &InvoiceRepo{db: db} }

func (r *InvoiceRepo) WithTx(tx *sql.Tx) *InvoiceRepo { return &InvoiceRepo{db: tx} }

func (r *InvoiceRepo) Insert(ctx context.Context, inv Invoice) error {
	labor, materials, err := encodeItems(inv.LaborItems, inv.MaterialItems)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
	INSERT INTO invoices(id, request_id, user_id, invoice_number, labor_items, material_items, subtotal, gst, pst, total,
	 status, notes, due_date, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.RequestID, inv.UserID, inv.InvoiceNumber, labor, materials, inv.SubtotalCents, inv.GSTCents,
		inv.PSTCents, inv.TotalCents, inv.Status, inv.Notes, inv.DueDate, inv.CreatedAt, inv.UpdatedAt)
	return err
}

// Update rewrites the priced content, notes and due date.
func (r *InvoiceRepo) Update(ctx context.Context, inv Invoice) error {
	labor, materials, err := encodeItems(inv.LaborItems, inv.MaterialItems)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
	UPDATE invoices SET labor_items = ?, material_items = ?, subtotal = ?, gst = ?, pst = ?, total = ?,
	 notes = ?, due_date = ?, updated_at = ?
	WHERE id = ?`,
		labor, materials, inv.SubtotalCents, inv.GSTCents, inv.PSTCents, inv.TotalCents, inv.Notes, inv.DueDate,
		inv.UpdatedAt, inv.ID)
	return affectedOne(res, err)
}

// MarkPaid settles an unpaid invoice. sql.ErrNoRows means it is missing or
// already paid.
func (r *InvoiceRepo) MarkPaid(ctx context.Context, id, method string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE invoices SET status = 'paid', payment_method = ?, paid_at = ?, updated_at = ? WHERE id = ? AND status <> 'paid'`,
		method, now, now, id)
	return affectedOne(res, err)
}

func (r *InvoiceRepo) Get(ctx context.Context, id string) (*Invoice, error) {
	return r.getBy(ctx, "id", id)
}

func (r *InvoiceRepo) GetForRequest(ctx context.Context, requestID string) (*Invoice, error) {
	return r.getBy(ctx, "request_id", requestID)
}

func (r *InvoiceRepo) getBy(ctx context.Context, column, value string) (*Invoice, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE `+column+` = ?`, value)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// List returns invoices newest first; an empty userID lists all.
func (r *InvoiceRepo) List(ctx context.Context, userID string) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	var args []interface{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// NextNumber returns a sequential invoice number like INV-000042.
func (r *InvoiceRepo) NextNumber(ctx context.Context) (string, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(CAST(SUBSTR(invoice_number, 5) AS INTEGER)), 0) + 1 FROM invoices`).Scan(&n); err != nil {
		return "", err
	}
	return fmt.Sprintf("INV-%06d", n), nil
}

func (r *InvoiceRepo) CountForRequests(ctx context.Context, requestIDs []string) (int, error) {
	return countIn(ctx, r.db, "invoices", requestIDs)
}

func scanInvoice(row scanner) (Invoice, error) {
	var inv Invoice
	var labor, materials, method sql.NullString
	var due, paid sql.NullTime
	if err := row.Scan(&inv.ID, &inv.RequestID, &inv.UserID, &inv.InvoiceNumber, &labor, &materials, &inv.SubtotalCents,
		&inv.GSTCents, &inv.PSTCents, &inv.TotalCents, &inv.Status, &inv.Notes, &due, &method, &paid,
		&inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return Invoice{}, err
	}
	if err := decodeJSON(labor, &inv.LaborItems); err != nil {
		return Invoice{}, fmt.Errorf("decode labor items: %w", err)
	}
	if err := decodeJSON(materials, &inv.MaterialItems); err != nil {
		return Invoice{}, fmt.Errorf("decode material items: %w", err)
	}
	inv.DueDate = timePtr(due)
	inv.PaymentMethod = stringPtr(method)
	inv.PaidAt = timePtr(paid)
	inv.CreatedAt = inv.CreatedAt.UTC()
	inv.UpdatedAt = inv.UpdatedAt.UTC()
	return inv, nil
}
