// Package response writes the JSON envelope every endpoint answers with.
package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"vidfetch/internal/errs"
)

type Response struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Data    any    `json:"data"`
}

func WriteJSON(w http.ResponseWriter, status int, message string, data any, err error) {
	r := Response{
		Message: message,
		Data:    data,
	}

	if err != nil {
		r.Error = errs.MessageOf(err)

		var e *errs.Error
		if errors.As(err, &e) {
			r.Kind = string(e.Kind)
		}
	}

	bytes, err := json.Marshal(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(bytes)
}

func OK(w http.ResponseWriter, message string, res any, err error) {
	WriteJSON(w, http.StatusOK, message, res, err)
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func Accepted(w http.ResponseWriter, message string, res any, err error) {
	WriteJSON(w, http.StatusAccepted, message, res, err)
}

func BadRequest(w http.ResponseWriter, message string, err error) {
	WriteJSON(w, http.StatusBadRequest, message, nil, err)
}

func InternalServerError(w http.ResponseWriter, message string, res any, err error) {
	WriteJSON(w, http.StatusInternalServerError, message, res, err)
}

// Error answers with the status matching err. A failed listing still
// carries data, so clients get an empty menu next to the reason.
func Error(w http.ResponseWriter, message string, res any, err error) {
	WriteJSON(w, Status(err), message, res, err)
}

// Status maps an error to its HTTP status code.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errs.ErrInvalidURL),
		errors.Is(err, errs.ErrInvalidRequestBody):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrInvalidDir),
		errors.Is(err, errs.ErrDirectory),
		errors.Is(err, errs.ErrInvalidFormatID),
		errors.Is(err, errs.ErrInvalidMergePolicy):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errs.ErrFormatNoLongerAvailable),
		errors.Is(err, errs.ErrJobNotCancellable):
		return http.StatusConflict
	case errors.Is(err, errs.ErrVideoUnavailable),
		errors.Is(err, errs.ErrNoFormatsAvailable),
		errors.Is(err, errs.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrMetadataUnavailable),
		errors.Is(err, errs.ErrNetworkOrExtraction),
		errors.Is(err, errs.ErrMergeTool):
		return http.StatusBadGateway
	case errors.Is(err, errs.ErrJobQueueFull),
		errors.Is(err, errs.ErrServiceClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, errs.ErrCancelled):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
