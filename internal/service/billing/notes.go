package billing

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dentara/clinic-api/internal/model"
)

// The notes columns on payments and invoices carry machine-readable signals
// embedded in free text: a proof-of-payment URL after a literal marker, at
// most one approval/rejection annotation, and doctor tags on invoices. The
// column has no schema enforcement and historically accumulated several
// annotation formats, so every extractor here is total: malformed input
// yields "not found", never an error.

const (
	proofMarker = "Payment proof: "

	// ApprovedAnnotation is the normalized annotation appended on approval.
	ApprovedAnnotation = "(Approved by doctor)"

	placeholderProofPrefix = "data:image/svg+xml;base64,"

	// GenericRejectionMessage is surfaced when a payment is known to be
	// rejected but its notes carry no parseable rejection message.
	GenericRejectionMessage = "Your payment was rejected. Please submit a new payment with valid proof."
)

// annotationMarkers lists every legacy annotation format still found in
// stored notes. Parenthesized forms come first so stripping them does not
// leave orphaned parentheses behind.
var annotationMarkers = []string{
	"(Approved by doctor)",
	"(Rejected by doctor)",
	"(Approved)",
	"(Rejected)",
	"Approved by doctor",
	"Rejected by doctor",
}

var rejectionPattern = regexp.MustCompile(`Dr\. .+? rejected your payment\. You need to pay again and attach valid proof of payment\.`)

var (
	doctorIDPattern       = regexp.MustCompile(`DoctorId:\s*([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})`)
	doctorTagPattern      = regexp.MustCompile(`Doctor:\s*(Dr\.\s?[^|\n]+)`)
	assignedDoctorPattern = regexp.MustCompile(`Assigned Doctor:\s*(Dr\.\s?[^|\n]+)`)
	dashDoctorPattern     = regexp.MustCompile(`-\s*Doctor:\s*(Dr\.\s?[^|\n]+)`)
	bareDoctorPattern     = regexp.MustCompile(`Dr\.\s?[^|\n]+`)
)

// ExtractProofURL returns the proof-of-payment URL embedded in a payment's
// notes. The URL runs from the proof marker up to the first annotation or
// rejection message, with surrounding whitespace trimmed.
func ExtractProofURL(notes string) (string, bool) {
	idx := strings.Index(notes, proofMarker)
	if idx < 0 {
		return "", false
	}
	tail := notes[idx+len(proofMarker):]

	cut := len(tail)
	for _, marker := range annotationMarkers {
		if i := strings.Index(tail, marker); i >= 0 && i < cut {
			cut = i
		}
	}
	if loc := rejectionPattern.FindStringIndex(tail); loc != nil && loc[0] < cut {
		cut = loc[0]
	}

	url := strings.TrimSpace(tail[:cut])
	if url == "" {
		return "", false
	}
	return url, true
}

// IsPlaceholderProof reports whether a proof URL is the synthetic inline SVG
// generated for cash payments without an uploaded receipt.
func IsPlaceholderProof(url string) bool {
	return strings.HasPrefix(url, placeholderProofPrefix)
}

// StripAnnotations removes every approval/rejection annotation and rejection
// message from notes. Stripping is idempotent: at most one annotation exists
// after an Annotate, and stripping already-clean notes is a no-op.
func StripAnnotations(notes string) string {
	out := rejectionPattern.ReplaceAllString(notes, "")
	for _, marker := range annotationMarkers {
		out = strings.ReplaceAll(out, marker, "")
	}
	return strings.TrimSpace(out)
}

// Annotate replaces any existing annotation in notes with the given one, so
// only a single annotation string is ever present.
func Annotate(notes, annotation string) string {
	stripped := StripAnnotations(notes)
	if stripped == "" {
		return annotation
	}
	return stripped + " " + annotation
}

// RejectionMessage builds the structured message appended to a payment's
// notes on rejection. The exact wording is parsed back out by other
// surfaces, so it must not change.
func RejectionMessage(doctorName string) string {
	name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(doctorName), "Dr."))
	return fmt.Sprintf("Dr. %s rejected your payment. You need to pay again and attach valid proof of payment.", name)
}

// ExtractRejectionMessage returns the first rejection message found in notes.
func ExtractRejectionMessage(notes string) (string, bool) {
	if m := rejectionPattern.FindString(notes); m != "" {
		return m, true
	}
	return "", false
}

// RejectionMessageFor returns the human-readable rejection message for a
// payment known to be rejected, falling back to a generic string when the
// notes carry nothing parseable.
func RejectionMessageFor(p *model.Payment) string {
	if msg, ok := ExtractRejectionMessage(p.Notes); ok {
		return msg
	}
	return GenericRejectionMessage
}

// DoctorRef is the typed form of the doctor tags embedded in invoice notes.
type DoctorRef struct {
	ID   *uuid.UUID `json:"id,omitempty"`
	Name string     `json:"name,omitempty"`
}

// ExtractDoctor resolves the doctor referenced by an invoice's notes.
// Priority order: DoctorId tag (authoritative), Doctor tag, then the fuzzy
// legacy formats. Matches stop at a '|' delimiter or newline.
func ExtractDoctor(notes string) (DoctorRef, bool) {
	if m := doctorIDPattern.FindStringSubmatch(notes); m != nil {
		if id, err := uuid.Parse(m[1]); err == nil {
			ref := DoctorRef{ID: &id}
			if dm := doctorTagPattern.FindStringSubmatch(notes); dm != nil {
				ref.Name = strings.TrimSpace(dm[1])
			}
			return ref, true
		}
	}
	for _, pattern := range []*regexp.Regexp{doctorTagPattern, assignedDoctorPattern, dashDoctorPattern} {
		if m := pattern.FindStringSubmatch(notes); m != nil {
			return DoctorRef{Name: strings.TrimSpace(m[1])}, true
		}
	}
	if m := bareDoctorPattern.FindString(notes); m != "" {
		return DoctorRef{Name: strings.TrimSpace(m)}, true
	}
	return DoctorRef{}, false
}

// FormatDoctorTag renders the doctor tags written into invoice notes on
// creation, kept in the legacy wire format for compatibility.
func FormatDoctorTag(name string, id uuid.UUID) string {
	name = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), "Dr."))
	return fmt.Sprintf("Doctor: Dr. %s | DoctorId: %s", name, id)
}

// Proof is one entry in an invoice's proof gallery.
type Proof struct {
	PaymentID   uuid.UUID `json:"payment_id"`
	URL         string    `json:"url"`
	Placeholder bool      `json:"placeholder"`
}

// RelatedProofs builds the deduplicated proof gallery for one invoice's
// payments. Real URLs are deduplicated by exact string equality; placeholder
// proofs are unique per payment and are never deduplicated, even when
// byte-identical.
func RelatedProofs(payments []*model.Payment) []Proof {
	seen := make(map[string]struct{})
	var proofs []Proof
	for _, p := range payments {
		url, ok := ExtractProofURL(p.Notes)
		if !ok {
			continue
		}
		if IsPlaceholderProof(url) {
			proofs = append(proofs, Proof{PaymentID: p.ID, URL: url, Placeholder: true})
			continue
		}
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}
		proofs = append(proofs, Proof{PaymentID: p.ID, URL: url})
	}
	return proofs
}

// ProofNotes renders the notes written on payment submission.
func ProofNotes(proofURL string) string {
	return proofMarker + proofURL
}

// CashReference synthesizes the reference number for cash payments, which
// have no external transaction reference.
func CashReference(t time.Time) string {
	return fmt.Sprintf("CASH-%d", t.UnixMilli())
}

// PlaceholderProof builds the synthetic receipt for a cash payment without
// an uploaded proof. Embedding the reference keeps each placeholder distinct
// per payment.
func PlaceholderProof(reference string) string {
	svg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="240" height="120"><rect width="240" height="120" fill="#f4f4f5"/><text x="16" y="56" font-family="sans-serif" font-size="14">Cash payment</text><text x="16" y="80" font-family="sans-serif" font-size="11">%s</text></svg>`, reference)
	return placeholderProofPrefix + base64.StdEncoding.EncodeToString([]byte(svg))
}

// PaymentSignals is the typed form of everything machine-readable inside a
// payment's notes, parsed once at the boundary.
type PaymentSignals struct {
	ProofURL         string `json:"proof_url,omitempty"`
	HasProof         bool   `json:"has_proof"`
	Placeholder      bool   `json:"placeholder"`
	RejectionMessage string `json:"rejection_message,omitempty"`
}

// ParsePaymentSignals extracts the structured signals from a payment.
func ParsePaymentSignals(p *model.Payment) PaymentSignals {
	var sig PaymentSignals
	if url, ok := ExtractProofURL(p.Notes); ok {
		sig.ProofURL = url
		sig.HasProof = true
		sig.Placeholder = IsPlaceholderProof(url)
	}
	if p.ApprovalStatus == model.ApprovalStatusRejected {
		sig.RejectionMessage = RejectionMessageFor(p)
	}
	return sig
}

// FormatInvoiceNumber renders the human-readable invoice number for the
// given issue date and per-day sequence, e.g. INV-240115-003.
func FormatInvoiceNumber(date time.Time, seq int) string {
	return fmt.Sprintf("INV-%s-%03d", date.Format("060102"), seq)
}
