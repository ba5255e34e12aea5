package web

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/pricesheet/internal/importer"
	"github.com/JonMunkholm/pricesheet/internal/logging"
)

// ErrorResponse is the JSON body of every error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err with the request ID and writes its mapped message.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := importer.MapError(err)
	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err,
		"code", msg.Code,
	)
	writeJSONStatus(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSONStatus(w, status, ErrorResponse{Error: message, Code: code})
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode", "error", err)
	}
}
