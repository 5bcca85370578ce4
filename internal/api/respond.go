package api

import (
	"encoding/json"
	"net/http"

	xerrors "github.com/loudmantrade/RealEstatesAntiFraud/internal/errors"
)

// errorResponse is the admin API's uniform error body.
type errorResponse struct {
	ErrorKind string            `json:"error_kind"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{
		ErrorKind: string(xerrors.CodeOf(err)),
		Message:   err.Error(),
	}
	if e, ok := xerrors.From(err); ok {
		resp.Message = e.Message()
		resp.Details = e.Metadata()
	}
	writeJSON(w, status, resp)
}
