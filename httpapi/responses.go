package httpapi

import (
	"errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/mhartlev/lending-ledger-go/ledger"
	"github.com/mhartlev/lending-ledger-go/rental"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const contentTypeJSON = "application/json; charset=utf-8"

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes the payload; an encoding failure after the header was
// sent can only be logged.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logError("failed to encode response body", err)
	}
}

// writeError maps domain errors onto HTTP status codes:
// business rejections are 422, unknown identifiers 404, exhausted
// contention retries 409, everything else 500 with a generic body.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rental.ErrOutOfStock),
		errors.Is(err, rental.ErrNoActiveLoan),
		errors.Is(err, ledger.ErrInvalidCopyCounts):
		h.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})

	case errors.Is(err, ledger.ErrItemNotFound),
		errors.Is(err, ledger.ErrBorrowerNotFound),
		errors.Is(err, ledger.ErrLoanNotFound),
		errors.Is(err, ledger.ErrNoStatistics):
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})

	case errors.Is(err, rental.ErrResourceContention):
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: rental.ErrResourceContention.Error()})

	default:
		h.logError("request failed", err)
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}
