package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"sarraf_go/internal/domain"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// DefaultUserAgent is a browser-like user agent string to avoid bot detection
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// flexNumber holds a quote that may arrive as a JSON number or a
// numeric string, keeping full precision until the decimal conversion.
type flexNumber string

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	*n = flexNumber(strings.Trim(string(data), `"`))
	return nil
}

// feedItem is one raw instrument as delivered by the upstream provider
type feedItem struct {
	Code  string     `json:"code"`
	Name  string     `json:"name"`
	Alis  flexNumber `json:"alis"`
	Satis flexNumber `json:"satis"`
}

// feedEnvelope covers providers that wrap the list in a data field
type feedEnvelope struct {
	Data []feedItem `json:"data"`
}

// Client polls the upstream market-data provider for raw prices.
type Client struct {
	http *resty.Client
	url  string
}

// NewClient creates a feed client with bounded retries per fetch.
func NewClient(url string, timeout time.Duration) *Client {
	httpClient := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(4 * time.Second).
		SetHeader("User-Agent", DefaultUserAgent)

	return &Client{http: httpClient, url: url}
}

// Fetch retrieves the current raw instrument list. A transport or decode
// failure is reported as a retriable network error; the cycle runner
// turns it into a skipped cycle.
func (c *Client) Fetch(ctx context.Context) ([]domain.PriceRecord, error) {
	resp, err := c.http.R().SetContext(ctx).Get(c.url)
	if err != nil {
		return nil, domain.NewNetworkError("fetch", err)
	}
	if !resp.IsSuccess() {
		return nil, domain.NewNetworkError("fetch",
			fmt.Errorf("unexpected status code: %d", resp.StatusCode()))
	}

	items, err := decodeItems(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFeedUnavailable, err)
	}
	if len(items) == 0 {
		return nil, domain.ErrEmptyFeed
	}

	records := make([]domain.PriceRecord, 0, len(items))
	for _, item := range items {
		if item.Code == "" {
			continue
		}
		alis, errA := decimal.NewFromString(string(item.Alis))
		satis, errS := decimal.NewFromString(string(item.Satis))
		if errA != nil || errS != nil {
			// Non-numeric quotes are excluded here rather than carried
			// forward as zero values.
			continue
		}
		records = append(records, domain.PriceRecord{
			Code:     item.Code,
			Name:     item.Name,
			RawAlis:  alis,
			RawSatis: satis,
		})
	}
	return records, nil
}

// decodeItems accepts either a bare array or a {"data": [...]} envelope
func decodeItems(body []byte) ([]feedItem, error) {
	var items []feedItem
	if err := json.Unmarshal(body, &items); err == nil {
		return items, nil
	}

	var env feedEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}
