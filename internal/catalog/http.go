package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"example.com/moodsync/internal/domain"
)

// HTTPCatalog queries an external recommendation service:
// GET {base}/recommendations?state=<state>&limit=<n> -> {"tracks": [...]}.
type HTTPCatalog struct {
	client *resty.Client
}

type recommendationResponse struct {
	Tracks []string `json:"tracks"`
}

// NewHTTPCatalog constructs an HTTPCatalog.
func NewHTTPCatalog(endpoint, token string, timeout time.Duration) *HTTPCatalog {
	client := resty.New().
		SetBaseURL(strings.TrimRight(endpoint, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &HTTPCatalog{client: client}
}

// Recommend implements Catalog.
func (c *HTTPCatalog) Recommend(ctx context.Context, state domain.MentalState, limit int) ([]string, error) {
	var body recommendationResponse
	req := c.client.R().
		SetContext(ctx).
		SetQueryParam("state", string(state)).
		SetResult(&body)
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}

	resp, err := req.Get("/recommendations")
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	if resp.IsError() {
		return nil, &RequestError{Status: resp.StatusCode()}
	}
	return truncate(body.Tracks, limit), nil
}

// RequestError represents a non-successful catalog response.
type RequestError struct {
	Status int
}

func (e *RequestError) Error() string {
	return "catalog request failed with status " + strconv.Itoa(e.Status)
}
