// api_v3 record service [Client] implementation
//
// Requests are form-encoded POSTs carrying service, action, ks and the flattened userEntry fields.
// Responses are JSON; a body whose objectType is KalturaAPIException is a [RemoteError].
package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/desertthunder/viewsync/internal/models"
	"github.com/desertthunder/viewsync/internal/shared"
)

const defaultServiceURL string = "http://127.0.0.1:3000/api_v3/"

// HistoryService implements [Client] against an api_v3 endpoint.
type HistoryService struct {
	baseURL    string
	httpClient *http.Client
}

// NewHistoryService creates a record service client. Empty arguments fall back to the local development service
// and [http.DefaultClient].
func NewHistoryService(baseURL string, client *http.Client) *HistoryService {
	if baseURL == "" {
		baseURL = defaultServiceURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &HistoryService{
		baseURL:    baseURL,
		httpClient: client,
	}
}

// Do sends the request and decodes the reply according to the request's action.
func (s *HistoryService) Do(ctx context.Context, req *Request) (*Response, error) {
	body, err := s.post(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := decodeException(body); err != nil {
		return nil, err
	}

	switch req.Action {
	case ActionList:
		var list struct {
			Objects    []models.Record `json:"objects"`
			TotalCount int             `json:"totalCount"`
		}
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("%w: failed to decode list response: %v", shared.ErrUnexpectedResponse, err)
		}
		return &Response{Objects: list.Objects, TotalCount: list.TotalCount}, nil
	default:
		if len(strings.TrimSpace(string(body))) == 0 {
			return &Response{}, nil
		}
		var rec models.Record
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, fmt.Errorf("%w: failed to decode %s response: %v", shared.ErrUnexpectedResponse, req.Action, err)
		}
		return &Response{Record: &rec}, nil
	}
}

func (s *HistoryService) post(ctx context.Context, req *Request) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, strings.NewReader(req.Params().Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", shared.ErrAPIRequest, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if err := decodeException(body); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	return body, nil
}

// decodeException returns a [*RemoteError] when body is a service exception, nil otherwise.
func decodeException(body []byte) error {
	var probe struct {
		ObjectType string `json:"objectType"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || probe.ObjectType != ObjectTypeException {
		return nil
	}

	var remote RemoteError
	if err := json.Unmarshal(body, &remote); err != nil {
		return fmt.Errorf("%w: malformed exception: %v", shared.ErrUnexpectedResponse, err)
	}
	return &remote
}
