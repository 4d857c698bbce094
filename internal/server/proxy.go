package server

import (
	"fmt"
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/desertthunder/viewsync/internal/services"
)

// ProxyHandler accepts JSON update requests, the format clients send to an asynchronous proxy.
//
// The body is the flattened request plus "ks". Accepted requests are answered with a short acknowledgement;
// rejected ones with an error status and an exception body.
type ProxyHandler struct {
	records *RecordHandler
}

// NewProxyHandler creates a proxy endpoint that applies requests through records.
func NewProxyHandler(records *RecordHandler) *ProxyHandler {
	return &ProxyHandler{records: records}
}

// Routes returns the HTTP routes this handler serves. Both spellings of the endpoint are accepted.
func (h *ProxyHandler) Routes() []string {
	return []string{"/proxy", "/proxy/{$}"}
}

func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeException(w, http.StatusBadRequest, &services.RemoteError{Code: CodeInvalidValue, Message: "malformed JSON body"})
		return
	}

	fields := make(map[string]string, len(body))
	for k, v := range body {
		fields[k] = stringify(v)
	}

	if _, err := h.records.Call(fields); err != nil {
		remote := toRemote(err)
		status := http.StatusBadRequest
		if remote.Code == CodeInternal {
			status = http.StatusInternalServerError
		}
		writeException(w, status, remote)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
