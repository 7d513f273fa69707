// Package places fetches clinic details and photos from the place-data
// provider (Google Places API v1 wire format). Calls are guarded by a
// circuit breaker and retried with backoff; callers treat every failure
// as degradation, never as a fatal condition.
package places

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clinicgrid/intake-engine/pkg/config"
	"github.com/clinicgrid/intake-engine/pkg/retry"
)

const (
	detailsFieldMask = "displayName,formattedAddress,internationalPhoneNumber,websiteUri,rating,userRatingCount,primaryTypeDisplayName,photos"
	photosFieldMask  = "photos"
	photoMaxWidthPx  = 1200
)

// PlaceDetails is the provider's view of one clinic. JSON tags support
// the Redis cache encoding.
type PlaceDetails struct {
	PlaceRef         string  `json:"place_ref"`
	Name             string  `json:"name"`
	FormattedAddress string  `json:"formatted_address"`
	Phone            string  `json:"phone"`
	Website          string  `json:"website"`
	Rating           float64 `json:"rating"`
	ReviewCount      int     `json:"review_count"`
	Category         string  `json:"category"`
	PhotoCount       int     `json:"photo_count"`
}

// Photo is one resolved provider photo.
type Photo struct {
	Ref      string `json:"ref"`
	URL      string `json:"url"`
	WidthPx  int    `json:"width_px"`
	HeightPx int    `json:"height_px"`
}

// Source is the provider surface consumed by duplicate detection and
// draft resolution.
type Source interface {
	// FetchDetails returns rating, review count and contact fields for
	// the place reference.
	FetchDetails(ctx context.Context, placeRef string) (*PlaceDetails, error)

	// FetchPhotos resolves up to max photo URLs for the place reference.
	FetchPhotos(ctx context.Context, placeRef string, max int) ([]Photo, error)
}

// Client calls the provider over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	breaker    *CircuitBreaker
	retryCfg   *retry.Config
	logger     *zap.Logger
}

var _ Source = (*Client)(nil)

// NewClient creates a provider client from configuration.
func NewClient(cfg *config.PlacesConfig, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	return &Client{
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		breaker: NewCircuitBreaker(CircuitBreakerConfig{
			Threshold:  cfg.BreakerThreshold,
			ResetAfter: time.Duration(cfg.BreakerResetSeconds) * time.Second,
		}),
		retryCfg: &retry.Config{
			MaxRetries:   cfg.MaxRetries,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		logger: logger.Named("places"),
	}, nil
}

type localizedText struct {
	Text string `json:"text"`
}

type photoPayload struct {
	Name     string `json:"name"`
	WidthPx  int    `json:"widthPx"`
	HeightPx int    `json:"heightPx"`
}

type detailsPayload struct {
	DisplayName              localizedText  `json:"displayName"`
	FormattedAddress         string         `json:"formattedAddress"`
	InternationalPhoneNumber string         `json:"internationalPhoneNumber"`
	WebsiteURI               string         `json:"websiteUri"`
	Rating                   float64        `json:"rating"`
	UserRatingCount          int            `json:"userRatingCount"`
	PrimaryTypeDisplayName   localizedText  `json:"primaryTypeDisplayName"`
	Photos                   []photoPayload `json:"photos"`
}

type mediaPayload struct {
	Name     string `json:"name"`
	PhotoURI string `json:"photoUri"`
}

// FetchDetails returns rating, review count and contact fields for the
// place reference.
func (c *Client) FetchDetails(ctx context.Context, placeRef string) (*PlaceDetails, error) {
	if allowed, err := c.breaker.Allow(); !allowed {
		return nil, &Error{Type: ErrorTypeBreaker, Message: err.Error(), Retryable: false}
	}

	endpoint := fmt.Sprintf("%s/places/%s", c.baseURL, url.PathEscape(placeRef))

	start := time.Now()
	var payload detailsPayload
	if err := retry.DoIfRetryable(ctx, c.retryCfg, func() error {
		return c.getJSON(ctx, endpoint, detailsFieldMask, &payload)
	}); err != nil {
		c.breaker.RecordFailure()
		c.logger.Warn("place details fetch failed",
			zap.String("place_ref", placeRef),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, err
	}
	c.breaker.RecordSuccess()

	c.logger.Debug("place details fetched",
		zap.String("place_ref", placeRef),
		zap.Duration("elapsed", time.Since(start)))

	return &PlaceDetails{
		PlaceRef:         placeRef,
		Name:             payload.DisplayName.Text,
		FormattedAddress: payload.FormattedAddress,
		Phone:            payload.InternationalPhoneNumber,
		Website:          payload.WebsiteURI,
		Rating:           payload.Rating,
		ReviewCount:      payload.UserRatingCount,
		Category:         payload.PrimaryTypeDisplayName.Text,
		PhotoCount:       len(payload.Photos),
	}, nil
}

// FetchPhotos resolves up to max photo URLs for the place reference. A
// photo whose media URL cannot be resolved is skipped, not fatal.
func (c *Client) FetchPhotos(ctx context.Context, placeRef string, max int) ([]Photo, error) {
	if max <= 0 {
		return nil, nil
	}
	if allowed, err := c.breaker.Allow(); !allowed {
		return nil, &Error{Type: ErrorTypeBreaker, Message: err.Error(), Retryable: false}
	}

	endpoint := fmt.Sprintf("%s/places/%s", c.baseURL, url.PathEscape(placeRef))

	var payload detailsPayload
	if err := retry.DoIfRetryable(ctx, c.retryCfg, func() error {
		return c.getJSON(ctx, endpoint, photosFieldMask, &payload)
	}); err != nil {
		c.breaker.RecordFailure()
		c.logger.Warn("place photo listing failed",
			zap.String("place_ref", placeRef),
			zap.Error(err))
		return nil, err
	}
	c.breaker.RecordSuccess()

	photos := make([]Photo, 0, min(max, len(payload.Photos)))
	for _, p := range payload.Photos {
		if len(photos) == max {
			break
		}
		// Photo names are paths ("places/X/photos/Y") and must keep
		// their slashes.
		mediaEndpoint := fmt.Sprintf("%s/%s/media?maxWidthPx=%d&skipHttpRedirect=true",
			c.baseURL, p.Name, photoMaxWidthPx)

		var media mediaPayload
		if err := retry.DoIfRetryable(ctx, c.retryCfg, func() error {
			return c.getJSON(ctx, mediaEndpoint, "", &media)
		}); err != nil {
			c.logger.Warn("photo media resolution failed",
				zap.String("photo", p.Name),
				zap.Error(err))
			continue
		}
		if media.PhotoURI == "" {
			continue
		}
		photos = append(photos, Photo{
			Ref:      p.Name,
			URL:      media.PhotoURI,
			WidthPx:  p.WidthPx,
			HeightPx: p.HeightPx,
		})
	}
	return photos, nil
}

// getJSON performs one authenticated GET and decodes the response body.
func (c *Client) getJSON(ctx context.Context, endpoint, fieldMask string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	if fieldMask != "" {
		req.Header.Set("X-Goog-FieldMask", fieldMask)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ClassifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return newStatusError(resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Type: ErrorTypeUnknown, Message: "failed to decode response", Retryable: false, Cause: err}
	}
	return nil
}
