// Package httpx provides HTTP response utilities shared by every handler.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/apperror"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/logging"
)

// RespondJSON writes a JSON response with the given status code and data.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Error("Failed to encode JSON response", "error", err)
	}
}

// ErrorBody is the machine-readable part of an error response.
type ErrorBody struct {
	Code    apperror.Kind `json:"code"`
	Message string        `json:"message"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// RespondError writes err as {"error":{"code","message"}} with the status
// its kind maps to. Unclassified errors are logged and rendered with a
// generic message.
func RespondError(w http.ResponseWriter, err error) {
	status := apperror.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.Error("Request failed", "code", apperror.KindOf(err), "error", err)
	}
	RespondJSON(w, status, ErrorResponse{Error: ErrorBody{
		Code:    apperror.KindOf(err),
		Message: apperror.MessageOf(err),
	}})
}

// RespondErrorString writes a classified error built from kind and message.
func RespondErrorString(w http.ResponseWriter, kind apperror.Kind, message string) {
	RespondError(w, apperror.New(kind, message))
}

// RespondMethodNotAllowed writes a 405 with the standard error shape.
func RespondMethodNotAllowed(w http.ResponseWriter) {
	RespondJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: ErrorBody{
		Code:    apperror.KindInvalidRequest,
		Message: "method not allowed",
	}})
}
