package matching

import (
	"context"
	"errors"
	"strings"

	"github.com/clinicgrid/intake-engine/pkg/apperrors"
	"github.com/clinicgrid/intake-engine/pkg/models"
	"github.com/clinicgrid/intake-engine/pkg/normalize"
)

const (
	// Name+address: weighted combination emitted at 0.75, high at 0.90.
	nameWeight           = 0.6
	addressWeight        = 0.4
	nameAddressEmitFloor = 0.75
	nameAddressHighFloor = 0.90

	// Fixed similarity reported for the exact-signal strategies.
	phoneSimilarity  = 0.9
	domainSimilarity = 0.7

	// Name+city/state: city gate on the 0-100 scale, name floors on 0-1.
	cityScoreFloor       = 80
	nameScoreFloor       = 0.70
	nameScoreMediumFloor = 0.85
)

// placeRefStrategy matches on the stable provider place reference. A hit
// is identity, not similarity.
type placeRefStrategy struct {
	catalog CatalogReader
}

func (s *placeRefStrategy) name() string { return StrategyPlaceRef }

func (s *placeRefStrategy) match(ctx context.Context, q Query) ([]models.MatchCandidate, error) {
	if q.PlaceRef == "" {
		return nil, nil
	}
	target, err := s.catalog.GetMatchTargetByPlaceRef(ctx, q.PlaceRef)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return []models.MatchCandidate{{
		ClinicID:   target.ClinicID,
		ClinicName: target.Name,
		Reason:     "Exact place reference match",
		Confidence: models.ConfidenceHigh,
		Similarity: 1.0,
		Strategy:   StrategyPlaceRef,
	}}, nil
}

// nameAddressStrategy scores every catalog clinic on normalized name and
// address similarity, weighted 60/40.
type nameAddressStrategy struct {
	catalog CatalogReader
}

func (s *nameAddressStrategy) name() string { return StrategyNameAddress }

func (s *nameAddressStrategy) match(ctx context.Context, q Query) ([]models.MatchCandidate, error) {
	if q.Name == "" || q.Address == "" {
		return nil, nil
	}
	targets, err := s.catalog.ListMatchTargets(ctx)
	if err != nil {
		return nil, err
	}

	name := normalize.Name(q.Name)
	addr := normalize.Address(q.Address)

	var out []models.MatchCandidate
	for _, t := range targets {
		if t.Address == "" {
			continue
		}
		nameScore := Ratio(name, normalize.Name(t.Name))
		addrScore := Ratio(addr, normalize.Address(t.Address))
		combined := (nameWeight*float64(nameScore) + addressWeight*float64(addrScore)) / 100
		if combined < nameAddressEmitFloor {
			continue
		}
		confidence := models.ConfidenceMedium
		if combined >= nameAddressHighFloor {
			confidence = models.ConfidenceHigh
		}
		out = append(out, models.MatchCandidate{
			ClinicID:   t.ClinicID,
			ClinicName: t.Name,
			Reason:     "Fuzzy name + address match",
			Confidence: confidence,
			Similarity: combined,
			Strategy:   StrategyNameAddress,
		})
	}
	return out, nil
}

// phoneStrategy matches on phone digits. Shared lines (front desks,
// franchises) keep this at medium confidence.
type phoneStrategy struct {
	catalog CatalogReader
}

func (s *phoneStrategy) name() string { return StrategyPhone }

func (s *phoneStrategy) match(ctx context.Context, q Query) ([]models.MatchCandidate, error) {
	if q.Phone == "" {
		return nil, nil
	}
	digits := normalize.Phone(q.Phone)
	if digits == "" {
		return nil, nil
	}
	targets, err := s.catalog.FindMatchTargetsByPhone(ctx, digits)
	if err != nil {
		return nil, err
	}

	var out []models.MatchCandidate
	for _, t := range targets {
		out = append(out, models.MatchCandidate{
			ClinicID:   t.ClinicID,
			ClinicName: t.Name,
			Reason:     "Exact phone match",
			Confidence: models.ConfidenceMedium,
			Similarity: phoneSimilarity,
			Strategy:   StrategyPhone,
		})
	}
	return out, nil
}

// websiteDomainStrategy matches on the registrable host of the website
// URL. Chains share domains, so a hit is only low confidence.
type websiteDomainStrategy struct {
	catalog CatalogReader
}

func (s *websiteDomainStrategy) name() string { return StrategyWebsiteDomain }

func (s *websiteDomainStrategy) match(ctx context.Context, q Query) ([]models.MatchCandidate, error) {
	if q.Website == "" {
		return nil, nil
	}
	domain := normalize.Domain(q.Website)
	if domain == "" {
		return nil, nil
	}
	targets, err := s.catalog.ListMatchTargets(ctx)
	if err != nil {
		return nil, err
	}

	var out []models.MatchCandidate
	for _, t := range targets {
		if t.Website == "" || normalize.Domain(t.Website) != domain {
			continue
		}
		out = append(out, models.MatchCandidate{
			ClinicID:   t.ClinicID,
			ClinicName: t.Name,
			Reason:     "Website domain match",
			Confidence: models.ConfidenceLow,
			Similarity: domainSimilarity,
			Strategy:   StrategyWebsiteDomain,
		})
	}
	return out, nil
}

// nameCityStateStrategy catches same-name clinics in the same city when
// the submission has no street address to compare.
type nameCityStateStrategy struct {
	catalog CatalogReader
}

func (s *nameCityStateStrategy) name() string { return StrategyNameCityState }

func (s *nameCityStateStrategy) match(ctx context.Context, q Query) ([]models.MatchCandidate, error) {
	if q.Name == "" || q.City == "" || q.State == "" {
		return nil, nil
	}
	targets, err := s.catalog.ListMatchTargets(ctx)
	if err != nil {
		return nil, err
	}

	name := normalize.Name(q.Name)
	city := normalize.Address(q.City)
	state := strings.TrimSpace(q.State)

	var out []models.MatchCandidate
	for _, t := range targets {
		if t.City == "" || t.State == "" {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(t.State), state) {
			continue
		}
		if Ratio(city, normalize.Address(t.City)) < cityScoreFloor {
			continue
		}
		nameScore := float64(Ratio(name, normalize.Name(t.Name))) / 100
		if nameScore < nameScoreFloor {
			continue
		}
		confidence := models.ConfidenceLow
		if nameScore >= nameScoreMediumFloor {
			confidence = models.ConfidenceMedium
		}
		out = append(out, models.MatchCandidate{
			ClinicID:   t.ClinicID,
			ClinicName: t.Name,
			Reason:     "Fuzzy name + city/state match",
			Confidence: confidence,
			Similarity: nameScore,
			Strategy:   StrategyNameCityState,
		})
	}
	return out, nil
}
