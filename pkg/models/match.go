package models

// Confidence tier constants, coarse buckets summarizing match strength.
// Distinct from the numeric similarity score.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// confidenceRank orders tiers for ranking; lower ranks sort first.
var confidenceRank = map[string]int{
	ConfidenceHigh:   0,
	ConfidenceMedium: 1,
	ConfidenceLow:    2,
}

// ConfidenceRank returns the sort rank of a confidence tier. Unknown tiers
// rank last.
func ConfidenceRank(confidence string) int {
	if rank, ok := confidenceRank[confidence]; ok {
		return rank
	}
	return len(confidenceRank)
}

// MatchCandidate is one potential duplicate of a submission. Transient:
// candidates are computed per duplicate check and never persisted.
type MatchCandidate struct {
	ClinicID   int64   `json:"clinic_id"`
	ClinicName string  `json:"clinic_name"`
	Reason     string  `json:"reason"`
	Confidence string  `json:"confidence"`
	Similarity float64 `json:"similarity"`
	Strategy   string  `json:"strategy"`
}

// MatchTarget is the comparison projection of a catalog clinic, the only
// fields duplicate detection reads.
type MatchTarget struct {
	ClinicID int64
	Name     string
	Address  string
	City     string
	State    string
	Phone    string
	Website  string
	PlaceRef string
}
