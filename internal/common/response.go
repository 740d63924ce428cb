package common

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorBody is the payload under "error" in every failed response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Kind    Kind   `json:"kind,omitempty"`
	Details any    `json:"details,omitempty"`
}

// JSON encodes v before touching the writer, so an unencodable value still
// yields a clean 500 instead of a truncated body behind a success status.
func JSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":{"code":"INTERNAL","message":"response encoding failed"}}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// Data writes v wrapped in the {"data": ...} envelope.
func Data(w http.ResponseWriter, status int, v any) {
	JSON(w, status, map[string]any{"data": v})
}

// JSONError writes an error envelope.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, map[string]any{"error": ErrorBody{Code: code, Message: message, Details: details}})
}

// WriteAppError renders the first AppError in err's chain with its own status,
// code and kind. It reports false, writing nothing, when the chain holds none.
// fallback replaces a zero HTTPStatus.
func WriteAppError(w http.ResponseWriter, err error, fallback int) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	status := appErr.HTTPStatus
	if status == 0 {
		status = fallback
	}
	code := appErr.Code
	if code == "" {
		code = http.StatusText(status)
	}
	JSON(w, status, map[string]any{"error": ErrorBody{Code: code, Message: appErr.Message, Kind: appErr.Kind, Details: appErr.Details}})
	return true
}
