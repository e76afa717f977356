// Package payments provides access to payment records and the QR-code /
// payment-proof upload flow backing them.
package payments

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/telegig/marketplace/pkg/errs"
	"github.com/telegig/marketplace/pkg/logger"
	"github.com/telegig/marketplace/services/jobs"
	"github.com/telegig/marketplace/services/profiles"
	"github.com/telegig/marketplace/supabase"
)

const table = "payments"

// expansion joins the client, freelancer, and job onto a payment row.
const expansion = "*,client:profiles!payments_client_id_fkey(*),freelancer:profiles!payments_freelancer_id_fkey(*),job:jobs(*)"

// DefaultBucket is the storage bucket holding QR codes and proofs.
const DefaultBucket = "payments"

// DefaultCurrency is applied when a payment is created without one.
const DefaultCurrency = "USD"

// Status is a payment's lifecycle state. Forward-only:
// pending → uploaded (QR code) → verified (proof) → completed (external).
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploaded  Status = "uploaded"
	StatusVerified  Status = "verified"
	StatusCompleted Status = "completed"
)

// Payment tracks the QR-code-based payment proof exchange for an accepted
// application.
type Payment struct {
	ID              string    `json:"id"`
	JobID           string    `json:"job_id"`
	ApplicationID   string    `json:"application_id"`
	ClientID        string    `json:"client_id"`
	FreelancerID    string    `json:"freelancer_id"`
	Amount          float64   `json:"amount"`
	Currency        string    `json:"currency"`
	QRCodeURL       string    `json:"qr_code_url,omitempty"`
	PaymentProofURL string    `json:"payment_proof_url,omitempty"`
	Status          Status    `json:"status"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	// Expansions.
	Client     *profiles.Profile `json:"client,omitempty"`
	Freelancer *profiles.Profile `json:"freelancer,omitempty"`
	Job        *jobs.Job         `json:"job,omitempty"`
}

// CreateParams is the writable field set for a new payment.
type CreateParams struct {
	JobID         string  `json:"job_id"`
	ApplicationID string  `json:"application_id"`
	ClientID      string  `json:"client_id"`
	FreelancerID  string  `json:"freelancer_id"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency,omitempty"`
}

// File is a binary upload: the original filename supplies the extension
// under which the object is stored.
type File struct {
	Name string
	Data []byte
}

// Service provides payment access.
type Service struct {
	db     *supabase.Client
	bucket string
	log    *logger.Logger
}

// New creates a payment service writing uploads into bucket; an empty
// bucket name selects DefaultBucket.
func New(db *supabase.Client, bucket string, log *logger.Logger) *Service {
	if bucket == "" {
		bucket = DefaultBucket
	}
	if log == nil {
		log = logger.NewDefault("payments")
	}
	return &Service{db: db, bucket: bucket, log: log}
}

// Create inserts a payment record. Currency defaults when omitted; the
// server assigns the initial pending status.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Payment, error) {
	switch {
	case params.JobID == "":
		return nil, errs.RequiredError("job_id")
	case params.ApplicationID == "":
		return nil, errs.RequiredError("application_id")
	case params.ClientID == "":
		return nil, errs.RequiredError("client_id")
	case params.FreelancerID == "":
		return nil, errs.RequiredError("freelancer_id")
	case params.Amount <= 0:
		return nil, errs.RequiredError("amount")
	}
	if params.Currency == "" {
		params.Currency = DefaultCurrency
	}

	var payment Payment
	err := s.db.From(table).
		Select(expansion).
		Single().
		Insert(ctx, params, &payment)
	if err != nil {
		return nil, err
	}

	s.log.Info("payment created", "payment_id", payment.ID, "job_id", payment.JobID)
	return &payment, nil
}

// UploadQRCode stores the freelancer's QR code and links it into the
// payment: phase one writes the object at a path derived from the payment
// id, overwriting any previous object there; phase two patches the row
// with the public URL and the uploaded status. A phase-two failure leaves
// the object stored but the row unchanged; callers detect the
// inconsistency by re-fetching.
func (s *Service) UploadQRCode(ctx context.Context, file File, paymentID string) (*Payment, error) {
	return s.uploadAndLink(ctx, file, paymentID, "qr-codes", "qr_code_url", StatusUploaded)
}

// UploadPaymentProof stores the client's payment proof and links it into
// the payment, moving it to verified. Same two-phase shape and
// partial-failure exposure as UploadQRCode.
func (s *Service) UploadPaymentProof(ctx context.Context, file File, paymentID string) (*Payment, error) {
	return s.uploadAndLink(ctx, file, paymentID, "payment-proofs", "payment_proof_url", StatusVerified)
}

func (s *Service) uploadAndLink(ctx context.Context, file File, paymentID, prefix, urlField string, status Status) (*Payment, error) {
	if paymentID == "" {
		return nil, errs.RequiredError("payment_id")
	}
	if len(file.Data) == 0 {
		return nil, errs.RequiredError("file")
	}

	ext := strings.TrimPrefix(path.Ext(file.Name), ".")
	if ext == "" {
		ext = "bin"
	}
	objectPath := fmt.Sprintf("%s/%s.%s", prefix, paymentID, ext)

	bucket := s.db.Storage().From(s.bucket)
	if err := bucket.Upload(ctx, objectPath, file.Data, contentTypeFor(ext), true); err != nil {
		return nil, err
	}

	var payment Payment
	err := s.db.From(table).
		Select(expansion).
		Eq("id", paymentID).
		Single().
		Update(ctx, map[string]any{
			urlField: bucket.PublicURL(objectPath),
			"status": status,
		}, &payment)
	if err != nil {
		s.log.Warn("object stored but payment row not linked",
			"payment_id", paymentID, "path", objectPath, "error", err)
		return nil, err
	}

	s.log.Info("payment file linked", "payment_id", payment.ID, "status", payment.Status)
	return &payment, nil
}

func contentTypeFor(ext string) string {
	if ct := mime.TypeByExtension("." + ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// ListByUser returns payments where the user acts in the given role,
// newest first, each enriched with client, freelancer, and job.
func (s *Service) ListByUser(ctx context.Context, userID string, role profiles.Role) ([]Payment, error) {
	column := "freelancer_id"
	if role == profiles.RoleClient {
		column = "client_id"
	}

	var out []Payment
	err := s.db.From(table).
		Select(expansion).
		Eq(column, userID).
		Order("created_at", false).
		Get(ctx, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetStatus applies a status change with optional notes.
func (s *Service) SetStatus(ctx context.Context, paymentID string, status Status, notes string) (*Payment, error) {
	fields := map[string]any{"status": status}
	if notes != "" {
		fields["notes"] = notes
	}

	var payment Payment
	err := s.db.From(table).
		Select(expansion).
		Eq("id", paymentID).
		Single().
		Update(ctx, fields, &payment)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}
