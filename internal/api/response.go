package api

import (
	"encoding/json"
	"net/http"

	"github.com/loungeskip/loungeskip/internal/apperrors"
)

// ErrorResponse wraps an error payload.
// Format: {"request_id": "...", "error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	RequestID string              `json:"request_id,omitempty"`
	Error     apperrors.ErrorBody `json:"error"`
}

// WriteJSON sends a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}

// WriteError serializes an AppError into the standard error envelope,
// tagging it with the request id when one is present.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.EnsureAppError(err)
	_ = WriteJSON(w, appErr.StatusCode, ErrorResponse{
		RequestID: GetRequestID(r),
		Error:     appErr.ErrorBody(),
	})
}

// SingleResponse writes a single resource response with a dynamic resource key.
// Example: SingleResponse(w, r, http.StatusOK, "device", device)
// Produces: {"request_id": "...", "device": {...}}
func SingleResponse(w http.ResponseWriter, r *http.Request, status int, key string, resource any) error {
	resp := map[string]any{
		"request_id": GetRequestID(r),
		key:          resource,
	}
	return WriteJSON(w, status, resp)
}

// ListResponse writes a collection response with a dynamic collection key.
// Example: ListResponse(w, r, http.StatusOK, "devices", devices)
// Produces: {"request_id": "...", "devices": [...]}
func ListResponse(w http.ResponseWriter, r *http.Request, status int, key string, items any) error {
	resp := map[string]any{
		"request_id": GetRequestID(r),
		key:          items,
	}
	return WriteJSON(w, status, resp)
}
