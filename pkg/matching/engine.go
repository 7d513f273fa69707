// Package matching detects likely duplicates between an intake submission
// and the clinic catalog. Five strategies run concurrently against the
// catalog's comparison projection; their results are unioned in strategy
// priority order and ranked by confidence. Detection is advisory, so a
// failing strategy degrades to zero matches instead of failing the check.
package matching

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clinicgrid/intake-engine/pkg/models"
)

// Strategy tags carried on every candidate so callers can tell which
// signal produced it.
const (
	StrategyPlaceRef      = "place_ref"
	StrategyNameAddress   = "name_address"
	StrategyPhone         = "phone"
	StrategyWebsiteDomain = "website_domain"
	StrategyNameCityState = "name_city_state"
)

// CatalogReader is the catalog access the engine needs. The clinic
// repository satisfies it.
type CatalogReader interface {
	// GetMatchTargetByPlaceRef returns the clinic holding the given place
	// reference, or apperrors.ErrNotFound when no clinic has it.
	GetMatchTargetByPlaceRef(ctx context.Context, placeRef string) (*models.MatchTarget, error)

	// FindMatchTargetsByPhone returns every clinic whose stored phone
	// number reduces to the given digit string.
	FindMatchTargetsByPhone(ctx context.Context, digits string) ([]*models.MatchTarget, error)

	// ListMatchTargets returns the comparison projection of the whole
	// catalog.
	ListMatchTargets(ctx context.Context) ([]*models.MatchTarget, error)
}

// Query carries the identity signals of one submission. Empty fields
// disable the strategies that need them.
type Query struct {
	Name     string
	Address  string
	City     string
	State    string
	Phone    string
	Website  string
	PlaceRef string
}

func (q Query) hasSignal() bool {
	return q.Name != "" || q.Address != "" || q.Phone != "" || q.Website != "" || q.PlaceRef != ""
}

type strategy interface {
	name() string
	match(ctx context.Context, q Query) ([]models.MatchCandidate, error)
}

// Engine runs the duplicate detection strategies.
type Engine struct {
	strategies []strategy
	logger     *zap.Logger
}

// NewEngine builds an engine over the given catalog. Strategy order is
// priority order: when two strategies hit the same clinic, the earlier
// one's candidate wins.
func NewEngine(catalog CatalogReader, logger *zap.Logger) *Engine {
	return &Engine{
		strategies: []strategy{
			&placeRefStrategy{catalog: catalog},
			&nameAddressStrategy{catalog: catalog},
			&phoneStrategy{catalog: catalog},
			&websiteDomainStrategy{catalog: catalog},
			&nameCityStateStrategy{catalog: catalog},
		},
		logger: logger.Named("matching"),
	}
}

// Detect runs every strategy against the query and returns the ranked
// union of their candidates. A query with no usable signal returns no
// candidates without touching the catalog.
func (e *Engine) Detect(ctx context.Context, q Query) ([]models.MatchCandidate, error) {
	if !q.hasSignal() {
		return nil, nil
	}

	results := make([][]models.MatchCandidate, len(e.strategies))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range e.strategies {
		g.Go(func() error {
			candidates, err := s.match(gctx, q)
			if err != nil {
				e.logger.Warn("matching strategy degraded",
					zap.String("strategy", s.name()),
					zap.Error(err))
				return nil
			}
			results[i] = candidates
			return nil
		})
	}
	// Strategies swallow their own errors, so Wait only orders the writes.
	_ = g.Wait()

	seen := make(map[int64]bool)
	var merged []models.MatchCandidate
	for _, candidates := range results {
		for _, c := range candidates {
			if seen[c.ClinicID] {
				continue
			}
			seen[c.ClinicID] = true
			merged = append(merged, c)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		ri, rj := models.ConfidenceRank(merged[i].Confidence), models.ConfidenceRank(merged[j].Confidence)
		if ri != rj {
			return ri < rj
		}
		if merged[i].Similarity != merged[j].Similarity {
			return merged[i].Similarity > merged[j].Similarity
		}
		return merged[i].ClinicID < merged[j].ClinicID
	})
	return merged, nil
}
