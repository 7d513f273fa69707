package models

import (
	"time"

	"github.com/google/uuid"
)

// Draft status constants. Transitions are monotonic: a terminal draft is
// never revived.
const (
	DraftStatusDraft         = "draft"
	DraftStatusPendingReview = "pending_review"
	DraftStatusApproved      = "approved"
	DraftStatusRejected      = "rejected"
	DraftStatusMerged        = "merged"
)

// Draft source constants (provenance).
const (
	DraftSourceWebForm    = "web_form"
	DraftSourceBulkImport = "bulk_import"
	DraftSourceAPI        = "api"
)

// draftTransitions is the closed set of legal status moves.
var draftTransitions = map[string][]string{
	DraftStatusDraft:         {DraftStatusPendingReview},
	DraftStatusPendingReview: {DraftStatusApproved, DraftStatusRejected, DraftStatusMerged},
}

// CanTransitionDraftStatus reports whether a draft may move from one status
// to another. Terminal statuses (approved, rejected, merged) allow nothing.
func CanTransitionDraftStatus(from, to string) bool {
	for _, allowed := range draftTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminalDraftStatus reports whether a status ends the draft lifecycle.
func IsTerminalDraftStatus(status string) bool {
	return status == DraftStatusApproved || status == DraftStatusRejected || status == DraftStatusMerged
}

// Draft is a proposal to create or update a ClinicRecord, with its own
// lifecycle. Clinic fields are all optional; DuplicateOf links the draft to
// an existing clinic and routes approval down the merge path.
type Draft struct {
	ID          uuid.UUID  `json:"id"`
	Status      string     `json:"status"`
	Source      string     `json:"source"`
	Name        string     `json:"name"`
	Category    *string    `json:"category,omitempty"`
	Description *string    `json:"description,omitempty"`
	Address     *string    `json:"address,omitempty"`
	City        *string    `json:"city,omitempty"`
	State       *string    `json:"state,omitempty"`
	Zip         *string    `json:"zip,omitempty"`
	Phone       *string    `json:"phone,omitempty"`
	Email       *string    `json:"email,omitempty"`
	Website     *string    `json:"website,omitempty"`
	PlaceRef    *string    `json:"place_ref,omitempty"`
	Rating      *float64   `json:"rating,omitempty"`
	ReviewCount *int       `json:"review_count,omitempty"`
	DuplicateOf *int64     `json:"duplicate_of,omitempty"`
	Flagged     bool       `json:"flagged"`
	FlagReason  *string    `json:"flag_reason,omitempty"`
	SubmittedBy *string    `json:"submitted_by,omitempty"`
	ReviewedBy  *string    `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Providers  []*DraftProvider  `json:"providers,omitempty"`
	Procedures []*DraftProcedure `json:"procedures,omitempty"`
	Photos     []*DraftPhoto     `json:"photos,omitempty"`
}

// DraftProvider is a submitted practitioner, resolved to a Provider at
// approval time.
type DraftProvider struct {
	ID        int64     `json:"id"`
	DraftID   uuid.UUID `json:"draft_id"`
	Name      string    `json:"name"`
	Specialty *string   `json:"specialty,omitempty"`
	PhotoURL  *string   `json:"photo_url,omitempty"`
}

// DraftProcedure is a submitted service. ProviderName may be empty, in
// which case resolution falls back to the draft's first provider.
type DraftProcedure struct {
	ID           int64     `json:"id"`
	DraftID      uuid.UUID `json:"draft_id"`
	ProviderName *string   `json:"provider_name,omitempty"`
	Name         string    `json:"name"`
	Category     *string   `json:"category,omitempty"`
	Description  *string   `json:"description,omitempty"`
	PriceMin     *float64  `json:"price_min,omitempty"`
	PriceMax     *float64  `json:"price_max,omitempty"`
	PriceAvg     *float64  `json:"price_avg,omitempty"`
	DurationMin  *int      `json:"duration_minutes,omitempty"`
}

// DraftPhoto is a submitter-supplied photo URL in submission order.
type DraftPhoto struct {
	ID           int64     `json:"id"`
	DraftID      uuid.UUID `json:"draft_id"`
	URL          string    `json:"url"`
	DisplayOrder int       `json:"display_order"`
}
