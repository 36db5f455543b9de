package handler

import (
	"encoding/json"
	"net/http"
	"strings"
)

// APIVersion is reported by the info, health and docs endpoints and in
// response metadata.
const APIVersion = "1.0.0"

// Envelope is the body of every JSON response.
//
// Data is always present and is null on errors.
type Envelope struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message,omitempty"`
	Data     any            `json:"data"`
	Error    map[string]any `json:"error,omitempty"`
	Metadata any            `json:"metadata,omitempty"`
}

// JSONResponse writes a successful envelope.
func JSONResponse(w http.ResponseWriter, status int, message string, data, metadata any) {
	writeJSON(w, status, Envelope{
		Success:  true,
		Message:  message,
		Data:     data,
		Metadata: metadata,
	})
}

// writeJSON encodes v with the JSON content type.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestOrigin rebuilds scheme://host for the request, honouring the
// forwarding header set by the gateway.
func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	return scheme + "://" + r.Host
}
