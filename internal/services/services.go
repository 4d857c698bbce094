// package services defines the Client interface for talking to the view-history record service
//
// api_v3 (form-encoded requests), proxy (JSON update requests)
package services

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/desertthunder/viewsync/internal/models"
)

const (
	ServiceUserEntry = "userEntry"

	ObjectTypeViewHistory       = "KalturaViewHistoryUserEntry"
	ObjectTypeViewHistoryFilter = "KalturaViewHistoryUserEntryFilter"
	ObjectTypeException         = "KalturaAPIException"
	ObjectTypeListResponse      = "KalturaUserEntryListResponse"
)

// Action is the operation requested from the record service.
type Action string

const (
	ActionList   Action = "list"
	ActionAdd    Action = "add"
	ActionUpdate Action = "update"
)

// Client sends one request to the record service and returns one response or a failure.
//
// A structured service exception is returned as a [*RemoteError]; transport failures wrap [shared.ErrAPIRequest].
type Client interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// ClientFunc adapts a function to [Client].
type ClientFunc func(ctx context.Context, req *Request) (*Response, error)

func (f ClientFunc) Do(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// EntryParams are the userEntry fields sent with add and update requests.
type EntryParams struct {
	ObjectType      string
	EntryID         string
	PlaybackContext string
	LastUpdateTime  int
	ExtendedStatus  models.Status
	LastTimeReached *float64
}

// Filter selects records for a list request.
type Filter struct {
	ObjectType   string
	EntryIDEqual string
}

// Request describes one record service call.
type Request struct {
	Service string
	Action  Action
	KS      string
	ID      string       // record id, update only
	Entry   *EntryParams // add and update
	Filter  *Filter      // list only
}

// NewListRequest builds the read request for an entry's view-history record.
func NewListRequest(entryID string) *Request {
	return &Request{
		Service: ServiceUserEntry,
		Action:  ActionList,
		Filter:  &Filter{ObjectType: ObjectTypeViewHistoryFilter, EntryIDEqual: entryID},
	}
}

// Fields flattens the request into the service's "object:field" parameter names, without the session.
func (r *Request) Fields() map[string]any {
	fields := map[string]any{
		"service": r.Service,
		"action":  string(r.Action),
	}
	if r.ID != "" {
		fields["id"] = r.ID
	}
	if e := r.Entry; e != nil {
		fields["userEntry:objectType"] = e.ObjectType
		fields["userEntry:playbackContext"] = e.PlaybackContext
		fields["userEntry:lastUpdateTime"] = e.LastUpdateTime
		if e.EntryID != "" {
			fields["userEntry:entryId"] = e.EntryID
		}
		if e.ExtendedStatus != models.StatusNone {
			fields["userEntry:extendedStatus"] = string(e.ExtendedStatus)
		}
		if e.LastTimeReached != nil {
			fields["userEntry:lastTimeReached"] = *e.LastTimeReached
		}
	}
	if f := r.Filter; f != nil {
		fields["filter:objectType"] = f.ObjectType
		fields["filter:entryIdEqual"] = f.EntryIDEqual
	}
	return fields
}

// Params encodes the request as form values, including the session and JSON output format.
func (r *Request) Params() url.Values {
	values := url.Values{}
	fields := r.Fields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		values.Set(k, formatParam(fields[k]))
	}
	if r.KS != "" {
		values.Set("ks", r.KS)
	}
	values.Set("format", "1")
	return values
}

func formatParam(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// Response is a successful record service reply.
//
// List requests fill Objects; add and update fill Record. Record is nil when the transport does not return one
// (the proxy path), in which case callers fall back to their optimistic record.
type Response struct {
	Objects    []models.Record
	TotalCount int
	Record     *models.Record
}

// First returns the first listed record or nil.
func (r *Response) First() *models.Record {
	if r == nil || len(r.Objects) == 0 {
		return nil
	}
	rec := r.Objects[0]
	return &rec
}

// RemoteError is a structured exception returned by the record service.
type RemoteError struct {
	ObjectType string `json:"objectType"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Args       []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"args,omitempty"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote exception %s: %s", e.Code, e.Message)
}
