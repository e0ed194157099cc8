package api

import (
	"encoding/json"
	"net/http"
)

// Error is the JSON body of every non-SOAP error response.
type Error struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Error codes, keyed by the status they are sent with.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeMethodNotAllowed   = "method_not_allowed"
	ErrCodePreconditionFailed = "precondition_failed"
	ErrCodeInternal           = "internal_error"
	ErrCodeUnavailable        = "unavailable"
)

var errorCodes = map[int]string{
	http.StatusBadRequest:          ErrCodeBadRequest,
	http.StatusNotFound:            ErrCodeNotFound,
	http.StatusMethodNotAllowed:    ErrCodeMethodNotAllowed,
	http.StatusPreconditionFailed:  ErrCodePreconditionFailed,
	http.StatusInternalServerError: ErrCodeInternal,
	http.StatusServiceUnavailable:  ErrCodeUnavailable,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // the client may already be gone
		json.NewEncoder(w).Encode(v)
	}
}

// writeError answers r with status. The code is derived from the status
// and the request ID is echoed so clients can quote it.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	code, ok := errorCodes[status]
	if !ok {
		code = ErrCodeInternal
	}
	writeJSON(w, status, Error{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: requestIDFrom(r),
	})
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusNotFound, message)
}

// writePreconditionFailed answers with 412, which GENA uses for unknown
// SIDs and incomplete subscriptions.
func writePreconditionFailed(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusPreconditionFailed, message)
}
