package services

import (
	"fmt"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/clinicgrid/intake-engine/pkg/models"
)

// ScreeningFinding identifies one free-text submission field carrying
// injection-shaped content.
type ScreeningFinding struct {
	Field       string `json:"field"`
	Kind        string `json:"kind"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// Screening finding kinds.
const (
	FindingSQLi = "sqli"
	FindingXSS  = "xss"
)

// IntakeScreener inspects free-text submission fields for injection patterns.
// Findings flag the draft for review; they never reject the submission.
type IntakeScreener interface {
	Screen(draft *models.Draft) []ScreeningFinding
}

type intakeScreener struct{}

// NewIntakeScreener creates a libinjection-backed screener.
func NewIntakeScreener() IntakeScreener {
	return &intakeScreener{}
}

// Screen checks every free-text field of the draft and its children. Only
// string content is checked; numeric and enumerated fields cannot carry
// injection patterns.
func (s *intakeScreener) Screen(draft *models.Draft) []ScreeningFinding {
	var findings []ScreeningFinding

	check := func(field, value string) {
		if value == "" {
			return
		}
		if isSQLi, fingerprint := libinjection.IsSQLi(value); isSQLi {
			findings = append(findings, ScreeningFinding{
				Field:       field,
				Kind:        FindingSQLi,
				Fingerprint: string(fingerprint),
			})
			return
		}
		if libinjection.IsXSS(value) {
			findings = append(findings, ScreeningFinding{Field: field, Kind: FindingXSS})
		}
	}
	checkPtr := func(field string, value *string) {
		if value != nil {
			check(field, *value)
		}
	}

	check("name", draft.Name)
	checkPtr("description", draft.Description)
	checkPtr("address", draft.Address)
	checkPtr("city", draft.City)
	checkPtr("state", draft.State)
	checkPtr("category", draft.Category)

	for i, provider := range draft.Providers {
		check(fmt.Sprintf("providers[%d].name", i), provider.Name)
		checkPtr(fmt.Sprintf("providers[%d].specialty", i), provider.Specialty)
	}
	for i, procedure := range draft.Procedures {
		check(fmt.Sprintf("procedures[%d].name", i), procedure.Name)
		checkPtr(fmt.Sprintf("procedures[%d].description", i), procedure.Description)
	}

	return findings
}

// FlagReason renders findings as the draft's flag_reason text.
func FlagReason(findings []ScreeningFinding) string {
	if len(findings) == 0 {
		return ""
	}
	parts := make([]string, len(findings))
	for i, f := range findings {
		parts[i] = fmt.Sprintf("%s pattern in %s", f.Kind, f.Field)
	}
	return "screening: " + strings.Join(parts, "; ")
}

// Ensure intakeScreener implements IntakeScreener at compile time.
var _ IntakeScreener = (*intakeScreener)(nil)
