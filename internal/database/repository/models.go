package repository

import (
	"time"

	"github.com/jask/aquaflow/internal/pricing"
)

const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

// Profile represents a user_profiles row.
type Profile struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Answer is one intake question and the customer's reply.
type Answer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Expertise is the skill assessment attached by triage.
type Expertise struct {
	SkillLevel        string   `json:"skill_level"`
	SpecializedSkills []string `json:"specialized_skills"`
	Reasoning         string   `json:"reasoning"`
}

// Triage holds the AI annotation of a request.
type Triage struct {
	Summary                  string     `json:"triage_summary"`
	PriorityScore            int        `json:"priority_score"`
	PriorityExplanation      string     `json:"priority_explanation"`
	ProfitabilityScore       int        `json:"profitability_score"`
	ProfitabilityExplanation string     `json:"profitability_explanation"`
	RequiredExpertise        *Expertise `json:"required_expertise,omitempty"`
	ComplexityScore          int        `json:"complexity_score"`
	UrgencyScore             int        `json:"urgency_score"`
	TriagedAt                time.Time  `json:"triaged_at"`
}

// Request represents a requests row plus optional enrichment.
type Request struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	CustomerName       string     `json:"customer_name"`
	ServiceAddress     string     `json:"service_address"`
	ContactInfo        string     `json:"contact_info"`
	ProblemCategory    string     `json:"problem_category"`
	IsEmergency        bool       `json:"is_emergency"`
	PropertyType       string     `json:"property_type"`
	IsHomeowner        bool       `json:"is_homeowner"`
	ProblemDescription string     `json:"problem_description"`
	PreferredTiming    string     `json:"preferred_timing"`
	AdditionalNotes    string     `json:"additional_notes"`
	Answers            []Answer   `json:"answers"`
	Latitude           *float64   `json:"latitude"`
	Longitude          *float64   `json:"longitude"`
	GeocodedAddress    *string    `json:"geocoded_address"`
	Status             string     `json:"status"`
	ScheduledStartDate *time.Time `json:"scheduled_start_date"`
	QuoteViewedAt      *time.Time `json:"quote_viewed_at"`
	Triage             *Triage    `json:"triage,omitempty"`
	ActualCostCents    *int64     `json:"actual_cost_cents"`
	CompletionNotes    *string    `json:"completion_notes"`
	CompletedAt        *time.Time `json:"completed_at"`
	InvoiceID          *string    `json:"invoice_id"`
	LastFollowUpSentAt *time.Time `json:"last_follow_up_sent_at"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	Profile     *Profile     `json:"user_profiles,omitempty"`
	Quotes      []Quote      `json:"quotes,omitempty"`
	Attachments []Attachment `json:"quote_attachments,omitempty"`
	Notes       []Note       `json:"request_notes,omitempty"`
}

// Quote represents a quotes row.
type Quote struct {
	ID            string             `json:"id"`
	RequestID     string             `json:"request_id"`
	QuoteNumber   int                `json:"quote_number"`
	Details       string             `json:"details"`
	LaborItems    []pricing.LineItem `json:"labor_items"`
	MaterialItems []pricing.LineItem `json:"material_items"`
	SubtotalCents int64              `json:"subtotal_cents"`
	GSTCents      int64              `json:"gst_cents"`
	PSTCents      int64              `json:"pst_cents"`
	TotalCents    int64              `json:"quote_amount_cents"`
	Status        string             `json:"status"`
	AcceptedAt    *time.Time         `json:"accepted_at"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Note represents a request_notes row.
type Note struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id"`
	UserID     string    `json:"user_id"`
	AuthorRole string    `json:"author_role"`
	Note       string    `json:"note"`
	CreatedAt  time.Time `json:"created_at"`
}

// Attachment represents a quote_attachments row. FileURL is the storage key.
type Attachment struct {
	ID          string    `json:"id"`
	RequestID   string    `json:"request_id"`
	QuoteID     *string   `json:"quote_id"`
	FileName    string    `json:"file_name"`
	MimeType    string    `json:"mime_type"`
	FileURL     string    `json:"file_url"`
	SizeBytes   int64     `json:"size_bytes"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// Invoice represents an invoices row.
type Invoice struct {
	ID            string             `json:"id"`
	RequestID     string             `json:"request_id"`
	UserID        string             `json:"user_id"`
	InvoiceNumber string             `json:"invoice_number"`
	LaborItems    []pricing.LineItem `json:"labor_items"`
	MaterialItems []pricing.LineItem `json:"material_items"`
	SubtotalCents int64              `json:"subtotal_cents"`
	GSTCents      int64              `json:"gst_cents"`
	PSTCents      int64              `json:"pst_cents"`
	TotalCents    int64              `json:"total_cents"`
	Status        string             `json:"status"`
	Notes         string             `json:"notes"`
	DueDate       *time.Time         `json:"due_date"`
	PaymentMethod *string            `json:"payment_method"`
	PaidAt        *time.Time         `json:"paid_at"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// EmailAudit records one outbound email attempt.
type EmailAudit struct {
	ID               string    `json:"id"`
	RequestID        *string   `json:"request_id"`
	Recipient        string    `json:"recipient"`
	Subject          string    `json:"subject"`
	MessageID        *string   `json:"message_id"`
	Status           string    `json:"status"`
	ProviderResponse string    `json:"provider_response"`
	CreatedAt        time.Time `json:"created_at"`
}
