package client

import (
	"context"
	"fmt"
	"time"

	"sarraf_go/internal/domain"

	"github.com/go-resty/resty/v2"
)

// Puller is the request/response bootstrap channel: it answers "give me
// the current list now" without waiting for a push.
type Puller interface {
	PullPrices(ctx context.Context) ([]domain.PriceRecord, error)
}

// cachedResponse mirrors GET /api/prices/cached
type cachedResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Prices []domain.PriceRecord `json:"prices"`
		Meta   domain.PriceMeta     `json:"meta"`
	} `json:"data"`
}

// sourcesResponse mirrors GET /api/prices/sources
type sourcesResponse struct {
	Success bool                 `json:"success"`
	Data    []domain.PriceRecord `json:"data"`
}

// HTTPPuller pulls the fallback chain over plain HTTP: the calculated
// snapshot endpoint first, then the raw source endpoint filtered to
// non-custom records. The first non-empty result wins.
type HTTPPuller struct {
	http    *resty.Client
	baseURL string
}

// NewHTTPPuller creates a puller against the given server base URL
func NewHTTPPuller(baseURL string, timeout time.Duration) *HTTPPuller {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPPuller{
		http:    resty.New().SetTimeout(timeout),
		baseURL: baseURL,
	}
}

// PullPrices walks the pull chain and returns the first non-empty list.
func (p *HTTPPuller) PullPrices(ctx context.Context) ([]domain.PriceRecord, error) {
	if records, err := p.pullCached(ctx); err == nil && len(records) > 0 {
		return records, nil
	}

	records, err := p.pullSources(ctx)
	if err != nil {
		return nil, err
	}
	return domain.FilterNonCustom(records), nil
}

func (p *HTTPPuller) pullCached(ctx context.Context) ([]domain.PriceRecord, error) {
	var out cachedResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get(p.baseURL + "/api/prices/cached")
	if err != nil {
		return nil, domain.NewNetworkError("pull cached", err)
	}
	if !resp.IsSuccess() || !out.Success {
		return nil, domain.NewNetworkError("pull cached",
			fmt.Errorf("unexpected status code: %d", resp.StatusCode()))
	}
	return out.Data.Prices, nil
}

func (p *HTTPPuller) pullSources(ctx context.Context) ([]domain.PriceRecord, error) {
	var out sourcesResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get(p.baseURL + "/api/prices/sources")
	if err != nil {
		return nil, domain.NewNetworkError("pull sources", err)
	}
	if !resp.IsSuccess() || !out.Success {
		return nil, domain.NewNetworkError("pull sources",
			fmt.Errorf("unexpected status code: %d", resp.StatusCode()))
	}
	return out.Data, nil
}
