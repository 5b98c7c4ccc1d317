package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const requestColumns = `id, user_id, customer_name, service_address, contact_info, problem_category,
 is_emergency, property_type, is_homeowner, problem_description, preferred_timing, additional_notes,
 answers, latitude, longitude, geocoded_address, status, scheduled_start_date, quote_viewed_at,
 triage_summary, priority_score, priority_explanation, profitability_score, profitability_explanation,
 required_expertise, complexity_score, urgency_score, triaged_at, actual_cost, completion_notes,
 completed_at, invoice_id, last_follow_up_sent_at, created_at, updated_at`

// RequestFilters narrows List. Empty fields do not filter.
type RequestFilters struct {
	UserID   string
	Statuses []string
}

// DetailsPatch holds the request fields a customer may edit after submission.
type DetailsPatch struct {
	ServiceAddress  *string
	Latitude        *float64
	Longitude       *float64
	GeocodedAddress *string
}

// RequestRepo handles requests.
type RequestRepo struct {
	db DBTX
}

func NewRequestRepo(db DBTX) *RequestRepo { return &RequestRepo{db: db} }

func (r *RequestRepo) WithTx(tx *sql.Tx) *RequestRepo { return &RequestRepo{db: tx} }

func (r *RequestRepo) Insert(ctx context.Context, req Request) error {
	answers, err := encodeJSON(nonNilAnswers(req.Answers))
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
	INSERT INTO requests(
	 id, user_id, customer_name, service_address, contact_info, problem_category, is_emergency,
	 property_type, is_homeowner, problem_description, preferred_timing, additional_notes, answers,
	 latitude, longitude, geocoded_address, status, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`,
		req.ID, req.UserID, req.CustomerName, req.ServiceAddress, req.ContactInfo, req.ProblemCategory,
		req.IsEmergency, req.PropertyType, req.IsHomeowner, req.ProblemDescription, req.PreferredTiming,
		req.AdditionalNotes, answers, req.Latitude, req.Longitude, req.GeocodedAddress, req.Status,
		req.CreatedAt, req.UpdatedAt)
	return err
}

// Get returns nil when the request does not exist.
func (r *RequestRepo) Get(ctx context.Context, id string) (*Request, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// List returns requests newest first.
func (r *RequestRepo) List(ctx context.Context, f RequestFilters) ([]Request, error) {
	var where []string
	var args []interface{}
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}
	query := "SELECT " + requestColumns + " FROM requests"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	return r.query(ctx, query, args...)
}

// DueForFollowUp returns quoted requests never followed up or last followed up before cutoff.
func (r *RequestRepo) DueForFollowUp(ctx context.Context, cutoff time.Time) ([]Request, error) {
	return r.query(ctx, `SELECT `+requestColumns+` FROM requests
	 WHERE status = 'quoted' AND (last_follow_up_sent_at IS NULL OR last_follow_up_sent_at < ?)
	 ORDER BY created_at`, cutoff)
}

// MatchAddresses returns requests whose service address is LIKE any pattern.
func (r *RequestRepo) MatchAddresses(ctx context.Context, patterns []string) ([]Request, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	clauses := make([]string, len(patterns))
	args := make([]interface{}, len(patterns))
	for i, p := range patterns {
		clauses[i] = "service_address LIKE ?"
		args[i] = p
	}
	return r.query(ctx, `SELECT `+requestColumns+` FROM requests WHERE `+strings.Join(clauses, " OR ")+` ORDER BY created_at`, args...)
}

func (r *RequestRepo) query(ctx context.Context, query string, args ...interface{}) ([]Request, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// SwapStatus moves the request to status only while it is still in from.
// sql.ErrNoRows means the row is gone or another writer moved it first.
func (r *RequestRepo) SwapStatus(ctx context.Context, id, from, status string, now time.Time) error {
	return r.exec(ctx, `UPDATE requests SET status = ?, updated_at = ? WHERE id = ? AND status = ?`, status, now, id, from)
}

func (r *RequestRepo) SetScheduledStart(ctx context.Context, id string, start time.Time, now time.Time) error {
	return r.exec(ctx, `UPDATE requests SET scheduled_start_date = ?, updated_at = ? WHERE id = ?`, start.UTC(), now, id)
}

func (r *RequestRepo) MarkQuoteViewed(ctx context.Context, id string, now time.Time) error {
	return r.exec(ctx, `UPDATE requests SET quote_viewed_at = ?, updated_at = ? WHERE id = ?`, now, now, id)
}

func (r *RequestRepo) UpdateDetails(ctx context.Context, id string, p DetailsPatch, now time.Time) error {
	sets := []string{"updated_at = ?"}
	args := []interface{}{now}
	if p.ServiceAddress != nil {
		sets = append(sets, "service_address = ?")
		args = append(args, *p.ServiceAddress)
	}
	if p.Latitude != nil {
		sets = append(sets, "latitude = ?")
		args = append(args, *p.Latitude)
	}
	if p.Longitude != nil {
		sets = append(sets, "longitude = ?")
		args = append(args, *p.Longitude)
	}
	if p.GeocodedAddress != nil {
		sets = append(sets, "geocoded_address = ?")
		args = append(args, *p.GeocodedAddress)
	}
	args = append(args, id)
	return r.exec(ctx, `UPDATE requests SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
}

func (r *RequestRepo) SaveTriage(ctx context.Context, id string, t Triage) error {
	var expertise interface{}
	if t.RequiredExpertise != nil {
		enc, err := encodeJSON(t.RequiredExpertise)
		if err != nil {
			return fmt.Errorf("encode expertise: %w", err)
		}
		expertise = enc
	}
	return r.exec(ctx, `
	UPDATE requests SET
	 triage_summary = ?, priority_score = ?, priority_explanation = ?,
	 profitability_score = ?, profitability_explanation = ?, required_expertise = ?,
	 complexity_score = ?, urgency_score = ?, triaged_at = ?, updated_at = ?
	WHERE id = ?`,
		t.Summary, t.PriorityScore, t.PriorityExplanation, t.ProfitabilityScore, t.ProfitabilityExplanation,
		expertise, t.ComplexityScore, t.UrgencyScore, t.TriagedAt, t.TriagedAt, id)
}

// Complete closes out a request that is still in status from.
func (r *RequestRepo) Complete(ctx context.Context, id, from string, actualCostCents *int64, notes *string, now time.Time) error {
	return r.exec(ctx, `UPDATE requests SET status = 'completed', actual_cost = ?, completion_notes = ?, completed_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		actualCostCents, notes, now, now, id, from)
}

func (r *RequestRepo) SetInvoice(ctx context.Context, id, invoiceID string, now time.Time) error {
	return r.exec(ctx, `UPDATE requests SET invoice_id = ?, updated_at = ? WHERE id = ?`, invoiceID, now, id)
}

func (r *RequestRepo) MarkFollowUpSent(ctx context.Context, id string, now time.Time) error {
	return r.exec(ctx, `UPDATE requests SET last_follow_up_sent_at = ? WHERE id = ?`, now, id)
}

// Delete removes a request; quotes, notes, attachments and invoices cascade.
func (r *RequestRepo) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, `DELETE FROM requests WHERE id = ?`, id)
}

// CountByStatus is used by the board and metrics.
func (r *RequestRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM requests GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

// exec returns sql.ErrNoRows when no row matched.
func (r *RequestRepo) exec(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	return affectedOne(res, err)
}

func scanRequest(row scanner) (Request, error) {
	var req Request
	var answers, geocoded, summary, priorityExpl, profitExpl, expertise, completionNotes, invoiceID sql.NullString
	var lat, lng sql.NullFloat64
	var scheduled, quoteViewed, triagedAt, completedAt, lastFollowUp sql.NullTime
	var priority, profit, complexity, urgency, actualCost sql.NullInt64
	if err := row.Scan(&req.ID, &req.UserID, &req.CustomerName, &req.ServiceAddress, &req.ContactInfo,
		&req.ProblemCategory, &req.IsEmergency, &req.PropertyType, &req.IsHomeowner, &req.ProblemDescription,
		&req.PreferredTiming, &req.AdditionalNotes, &answers, &lat, &lng, &geocoded, &req.Status,
		&scheduled, &quoteViewed, &summary, &priority, &priorityExpl, &profit, &profitExpl, &expertise,
		&complexity, &urgency, &triagedAt, &actualCost, &completionNotes, &completedAt, &invoiceID,
		&lastFollowUp, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return Request{}, err
	}
	if err := decodeJSON(answers, &req.Answers); err != nil {
		return Request{}, fmt.Errorf("decode answers for %s: %w", req.ID, err)
	}
	if lat.Valid {
		req.Latitude = &lat.Float64
	}
	if lng.Valid {
		req.Longitude = &lng.Float64
	}
	req.GeocodedAddress = stringPtr(geocoded)
	req.ScheduledStartDate = timePtr(scheduled)
	req.QuoteViewedAt = timePtr(quoteViewed)
	if triagedAt.Valid {
		t := &Triage{
			Summary:                  summary.String,
			PriorityScore:            int(priority.Int64),
			PriorityExplanation:      priorityExpl.String,
			ProfitabilityScore:       int(profit.Int64),
			ProfitabilityExplanation: profitExpl.String,
			ComplexityScore:          int(complexity.Int64),
			UrgencyScore:             int(urgency.Int64),
			TriagedAt:                triagedAt.Time.UTC(),
		}
		if expertise.Valid {
			t.RequiredExpertise = &Expertise{}
			if err := decodeJSON(expertise, t.RequiredExpertise); err != nil {
				return Request{}, fmt.Errorf("decode expertise for %s: %w", req.ID, err)
			}
		}
		req.Triage = t
	}
	if actualCost.Valid {
		req.ActualCostCents = &actualCost.Int64
	}
	req.CompletionNotes = stringPtr(completionNotes)
	req.CompletedAt = timePtr(completedAt)
	req.InvoiceID = stringPtr(invoiceID)
	req.LastFollowUpSentAt = timePtr(lastFollowUp)
	req.CreatedAt = req.CreatedAt.UTC()
	req.UpdatedAt = req.UpdatedAt.UTC()
	return req, nil
}

func nonNilAnswers(a []Answer) []Answer {
	if a == nil {
		return []Answer{}
	}
	return a
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
