package upstream

import (
	"context"
	"fmt"
	"strings"

	drepo "RateGate/internal/domain/repository"
	xhttp "RateGate/pkg/http"
)

// Client implements Upstream against the external quote API.
type Client struct {
	baseURL string
	apiKey  string
	http    *xhttp.Client
}

// New creates an upstream client. apiKey is sent as X-API-Key when set.
func New(baseURL, apiKey string, httpClient *xhttp.Client) drepo.Upstream {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
	}
}

// Quote fetches the raw JSON quote for symbol.
func (c *Client) Quote(ctx context.Context, symbol string) ([]byte, error) {
	headers := map[string]string{"Accept": "application/json"}
	if c.apiKey != "" {
		headers["X-API-Key"] = c.apiKey
	}

	var body []byte
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL + "/quote",
		Headers:     headers,
		QueryParams: map[string][]string{"symbol": {symbol}},
	}, &body)
	if err != nil {
		return nil, fmt.Errorf("upstream quote %s: %w", symbol, err)
	}
	return body, nil
}
