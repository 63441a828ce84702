package services

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flashbots/richest-revealer/coprocessor"
	"github.com/flashbots/richest-revealer/protocol"
)

const (
	codeBadRequest = "bad_request"
	codeForbidden  = "forbidden"
	codeNotFound   = "not_found"
)

// statusFor maps round errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, protocol.ErrDuplicateSubmission),
		errors.Is(err, protocol.ErrCapacityExceeded),
		errors.Is(err, protocol.ErrAlreadyComputed),
		errors.Is(err, protocol.ErrAlreadyRequested),
		errors.Is(err, protocol.ErrInsufficientParticipants),
		errors.Is(err, protocol.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, protocol.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, protocol.ErrUnknownJob):
		return http.StatusNotFound
	case errors.Is(err, protocol.ErrInvalidInput),
		errors.Is(err, protocol.ErrInvalidHandle),
		errors.Is(err, protocol.ErrResultOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, protocol.ErrCoprocessor):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&coprocessor.ErrorResponse{Error: msg, Code: code})
}

func writeRoundError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), protocol.ErrorCode(err), err.Error())
}
