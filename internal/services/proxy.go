package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/desertthunder/viewsync/internal/shared"
)

// ProxyService posts update requests as JSON to an asynchronous proxy endpoint.
//
// Any non-error status is success. The proxy's reply body is discarded and the returned [Response] carries no
// record, so callers keep their optimistic record.
type ProxyService struct {
	url        string
	httpClient *http.Client
}

// NewProxyService creates a proxy client for url.
func NewProxyService(url string, client *http.Client) *ProxyService {
	if client == nil {
		client = http.DefaultClient
	}
	return &ProxyService{url: url, httpClient: client}
}

// Do posts the request body {ks, service, action, id, userEntry:*}.
func (p *ProxyService) Do(ctx context.Context, req *Request) (*Response, error) {
	fields := req.Fields()
	fields["service"] = strings.ToLower(req.Service)
	fields["ks"] = req.KS

	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode proxy request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: proxy: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: proxy status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	return &Response{}, nil
}

// Router sends update requests to Proxy when one is configured and everything else to Direct.
type Router struct {
	Direct Client
	Proxy  Client
}

// NewRouter builds the client used by the engine: direct api_v3 calls plus, when proxyURL is set, proxied updates.
func NewRouter(serviceURL, proxyURL string, client *http.Client) *Router {
	r := &Router{Direct: NewHistoryService(serviceURL, client)}
	if proxyURL != "" {
		r.Proxy = NewProxyService(proxyURL, client)
	}
	return r
}

func (r *Router) Do(ctx context.Context, req *Request) (*Response, error) {
	if r.Proxy != nil && req.Action == ActionUpdate {
		return r.Proxy.Do(ctx, req)
	}
	return r.Direct.Do(ctx, req)
}
