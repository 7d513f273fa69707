package models

import "time"

// Rating source selects where a clinic's rating snapshot comes from at
// approval time.
type RatingSource string

const (
	// RatingSourceGoogle fetches live values from the place-data provider,
	// falling back to the draft's cached values when the provider degrades.
	RatingSourceGoogle RatingSource = "google"
	// RatingSourceManual uses operator-supplied values.
	RatingSourceManual RatingSource = "manual"
)

// Valid reports whether s is a known rating source.
func (s RatingSource) Valid() bool {
	return s == RatingSourceGoogle || s == RatingSourceManual
}

// Photo source selects which photo set a newly approved clinic receives.
type PhotoSource string

const (
	// PhotoSourceUser keeps submitter photos only.
	PhotoSourceUser PhotoSource = "user"
	// PhotoSourceGoogle fetches photos from the place-data provider, capped.
	PhotoSourceGoogle PhotoSource = "google"
	// PhotoSourceBoth keeps submitter photos first and fills the remaining
	// slots with provider photos up to a smaller combined cap.
	PhotoSourceBoth PhotoSource = "both"
)

// Valid reports whether s is a known photo source.
func (s PhotoSource) Valid() bool {
	return s == PhotoSourceUser || s == PhotoSourceGoogle || s == PhotoSourceBoth
}

// Photo origin constants recorded on stored clinic photos.
const (
	PhotoOriginUser   = "user"
	PhotoOriginGoogle = "google"
)

// Clinic is the canonical catalog entity. ClinicID is externally stable and
// explicitly allocated as max+1 inside the allocating transaction, never by
// an auto-increment column.
type Clinic struct {
	ClinicID    int64      `json:"clinic_id"`
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	Address     *string    `json:"address,omitempty"`
	City        *string    `json:"city,omitempty"`
	State       *string    `json:"state,omitempty"`
	Zip         *string    `json:"zip,omitempty"`
	Phone       *string    `json:"phone,omitempty"`
	Email       *string    `json:"email,omitempty"`
	Website     *string    `json:"website,omitempty"`
	Latitude    *float64   `json:"latitude,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
	PlaceRef    *string    `json:"place_ref,omitempty"`
	Rating      *float64   `json:"rating,omitempty"`
	ReviewCount *int       `json:"review_count,omitempty"`
	Category    *string    `json:"category,omitempty"`
	LocationID  *int64     `json:"location_id,omitempty"`
	PhotoCount  int        `json:"photo_count"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Location is a lookup-or-create row keyed by (city, state).
type Location struct {
	ID        int64     `json:"id"`
	City      string    `json:"city"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// Category is a lookup-or-create row keyed by exact name.
type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Specialty is a lookup-or-create row keyed by exact name.
type Specialty struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Provider is a practitioner working at a clinic.
type Provider struct {
	ID          int64     `json:"id"`
	ClinicID    int64     `json:"clinic_id"`
	Name        string    `json:"name"`
	SpecialtyID *int64    `json:"specialty_id,omitempty"`
	PhotoURL    *string   `json:"photo_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Procedure is a service offered by a provider at a clinic. PriceAvg is
// computed as (min+max)/2 when absent and both ends are present.
type Procedure struct {
	ID          int64    `json:"id"`
	ClinicID    int64    `json:"clinic_id"`
	ProviderID  int64    `json:"provider_id"`
	CategoryID  int64    `json:"category_id"`
	Name        string   `json:"name"`
	Description *string  `json:"description,omitempty"`
	PriceMin    *float64 `json:"price_min,omitempty"`
	PriceMax    *float64 `json:"price_max,omitempty"`
	PriceAvg    *float64 `json:"price_avg,omitempty"`
	DurationMin *int     `json:"duration_minutes,omitempty"`
}

// ClinicPhoto is one stored photo. The photo with IsPrimary set is the one
// place_metadata points at; display_order is the gallery order.
type ClinicPhoto struct {
	ID           int64     `json:"id"`
	ClinicID     int64     `json:"clinic_id"`
	URL          string    `json:"url"`
	Origin       string    `json:"origin"`
	IsPrimary    bool      `json:"is_primary"`
	DisplayOrder int       `json:"display_order"`
	CreatedAt    time.Time `json:"created_at"`
}

// PlaceMetadata mirrors contact/category fields from the external place
// record for a clinic.
type PlaceMetadata struct {
	ClinicID       int64      `json:"clinic_id"`
	PlaceRef       *string    `json:"place_ref,omitempty"`
	Phone          *string    `json:"phone,omitempty"`
	Website        *string    `json:"website,omitempty"`
	Category       *string    `json:"category,omitempty"`
	PrimaryPhotoID *int64     `json:"primary_photo_id,omitempty"`
	FetchedAt      *time.Time `json:"fetched_at,omitempty"`
}
