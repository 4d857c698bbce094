package server

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	json "github.com/goccy/go-json"

	"github.com/desertthunder/viewsync/internal/models"
	"github.com/desertthunder/viewsync/internal/repositories"
	"github.com/desertthunder/viewsync/internal/services"
	"github.com/desertthunder/viewsync/internal/shared"
)

// Exception codes returned by the record service.
const (
	CodeMissingKS        = "MISSING_KS"
	CodeInvalidKS        = "INVALID_KS"
	CodeServiceNotFound  = "SERVICE_DOES_NOT_EXISTS"
	CodeActionNotFound   = "SERVICE_ACTION_DOES_NOT_EXISTS"
	CodeMissingParameter = "MISSING_MANDATORY_PARAMETER"
	CodeInvalidValue     = "INVALID_FIELD_VALUE"
	CodeInvalidObjectID  = "INVALID_OBJECT_ID"
	CodeAlreadyExists    = "USER_ENTRY_ALREADY_EXISTS"
	CodeInternal         = "INTERNAL_SERVER_ERROR"
)

// ListResponse is the reply to a list request.
type ListResponse struct {
	ObjectType string          `json:"objectType"`
	Objects    []models.Record `json:"objects"`
	TotalCount int             `json:"totalCount"`
}

// RecordHandler serves the api_v3 userEntry service from sqlite.
type RecordHandler struct {
	entries  *repositories.UserEntryRepository
	sessions *repositories.SessionRepository
	logger   *log.Logger

	// autoSession accepts unknown ks values, treating each one as its own user.
	autoSession bool
}

// NewRecordHandler creates a handler backed by db. With autoSession, unknown ks values are accepted.
func NewRecordHandler(db *sql.DB, logger *log.Logger, autoSession bool) *RecordHandler {
	return &RecordHandler{
		entries:     repositories.NewUserEntryRepository(db),
		sessions:    repositories.NewSessionRepository(db),
		logger:      logger,
		autoSession: autoSession,
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *RecordHandler) Routes() []string {
	return []string{"/api_v3/"}
}

// ServeHTTP handles form-encoded api_v3 requests. Service and action may also be given as path segments
// (/api_v3/service/userEntry/action/list).
func (h *RecordHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeException(w, http.StatusOK, &services.RemoteError{Code: CodeInvalidValue, Message: err.Error()})
		return
	}

	fields := make(map[string]string, len(r.Form))
	for k, v := range r.Form {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}
	pathFields(r.URL.Path, fields)

	result, err := h.Call(fields)
	if err != nil {
		writeException(w, http.StatusOK, toRemote(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// pathFields copies "service" and "action" path segments into fields when the form does not set them.
func pathFields(path string, fields map[string]string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		switch parts[i] {
		case "service", "action":
			if _, ok := fields[parts[i]]; !ok {
				fields[parts[i]] = parts[i+1]
			}
		}
	}
}

// Call runs one userEntry request described by flattened fields and returns the value to encode.
func (h *RecordHandler) Call(fields map[string]string) (any, error) {
	userID, err := h.user(fields["ks"])
	if err != nil {
		return nil, err
	}

	if !strings.EqualFold(fields["service"], services.ServiceUserEntry) {
		return nil, &services.RemoteError{Code: CodeServiceNotFound, Message: fmt.Sprintf("Service %q does not exist", fields["service"])}
	}

	switch services.Action(strings.ToLower(fields["action"])) {
	case services.ActionList:
		return h.list(userID, fields)
	case services.ActionAdd:
		return h.add(userID, fields)
	case services.ActionUpdate:
		return h.update(userID, fields)
	default:
		return nil, &services.RemoteError{Code: CodeActionNotFound, Message: fmt.Sprintf("Action %q does not exist", fields["action"])}
	}
}

func (h *RecordHandler) user(ks string) (string, error) {
	if ks == "" {
		return "", &services.RemoteError{Code: CodeMissingKS, Message: "Missing KS, session not established"}
	}
	userID, err := h.sessions.Resolve(ks)
	switch {
	case err == nil:
		return userID, nil
	case errors.Is(err, shared.ErrNoCredentials) && h.autoSession:
		return ks, nil
	case errors.Is(err, shared.ErrNoCredentials):
		return "", &services.RemoteError{Code: CodeInvalidKS, Message: "Invalid KS"}
	default:
		return "", err
	}
}

func (h *RecordHandler) list(userID string, fields map[string]string) (*ListResponse, error) {
	criteria := map[string]any{
		"user_id":  userID,
		"entry_id": fields["filter:entryIdEqual"],
	}
	if ft := fields["filter:objectType"]; ft != "" {
		criteria["object_type"] = strings.TrimSuffix(ft, "Filter")
	}

	records, err := h.entries.List(criteria)
	if err != nil {
		return nil, err
	}

	resp := &ListResponse{ObjectType: services.ObjectTypeListResponse, Objects: make([]models.Record, 0, len(records))}
	for _, rec := range records {
		resp.Objects = append(resp.Objects, *rec)
	}
	resp.TotalCount = len(resp.Objects)
	return resp, nil
}

func (h *RecordHandler) add(userID string, fields map[string]string) (*models.Record, error) {
	rec := &models.Record{
		EntryID:    fields["userEntry:entryId"],
		ObjectType: fields["userEntry:objectType"],
	}
	if rec.EntryID == "" {
		return nil, &services.RemoteError{Code: CodeMissingParameter, Message: "Missing parameter \"userEntry:entryId\""}
	}
	if rec.ObjectType == "" {
		rec.ObjectType = services.ObjectTypeViewHistory
	}
	if err := applyFields(rec, fields); err != nil {
		return nil, err
	}

	if _, err := h.entries.GetByEntry(userID, rec.EntryID, rec.ObjectType); err == nil {
		return nil, &services.RemoteError{Code: CodeAlreadyExists, Message: fmt.Sprintf("User entry for %s already exists", rec.EntryID)}
	}
	if err := h.entries.Create(userID, rec); err != nil {
		return nil, err
	}

	h.logger.Debug("added user entry", "user", userID, "entry", rec.EntryID, "status", rec.ExtendedStatus)
	return rec, nil
}

func (h *RecordHandler) update(userID string, fields map[string]string) (*models.Record, error) {
	id := fields["id"]
	if id == "" {
		return nil, &services.RemoteError{Code: CodeMissingParameter, Message: "Missing parameter \"id\""}
	}

	rec, err := h.entries.Get(id)
	if errors.Is(err, shared.ErrRecordNotFound) || (err == nil && rec.UserID != userID) {
		return nil, &services.RemoteError{Code: CodeInvalidObjectID, Message: fmt.Sprintf("Invalid object id [%s]", id)}
	}
	if err != nil {
		return nil, err
	}

	if err := applyFields(rec, fields); err != nil {
		return nil, err
	}
	if err := h.entries.Update(rec); err != nil {
		return nil, err
	}

	h.logger.Debug("updated user entry", "user", userID, "entry", rec.EntryID, "status", rec.ExtendedStatus)
	return rec, nil
}

// applyFields copies the writable userEntry fields present in fields onto rec.
func applyFields(rec *models.Record, fields map[string]string) error {
	if v, ok := fields["userEntry:extendedStatus"]; ok && v != "" {
		rec.ExtendedStatus = models.Status(v)
	}
	if v, ok := fields["userEntry:playbackContext"]; ok {
		rec.PlaybackContext = v
	}
	if v, ok := fields["userEntry:lastTimeReached"]; ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return &services.RemoteError{Code: CodeInvalidValue, Message: fmt.Sprintf("Invalid value %q for \"userEntry:lastTimeReached\"", v)}
		}
		rec.LastTimeReached = f
	}
	return nil
}

func toRemote(err error) *services.RemoteError {
	var remote *services.RemoteError
	if errors.As(err, &remote) {
		return remote
	}
	return &services.RemoteError{Code: CodeInternal, Message: err.Error()}
}

func writeException(w http.ResponseWriter, status int, remote *services.RemoteError) {
	remote.ObjectType = services.ObjectTypeException
	writeJSON(w, status, remote)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
