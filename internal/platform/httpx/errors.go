package httpx

import (
	"errors"
	"net/http"

	"github.com/dawaly/dawaly/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrDuplicatePrimary):
		Problem(w, http.StatusConflict, "Duplicate Primary Assignment", err.Error())
	case errors.Is(err, shared.ErrInvalidTransition):
		Problem(w, http.StatusConflict, "Invalid Status Transition", err.Error())
	case errors.Is(err, shared.ErrInvalidReferrer):
		Problem(w, http.StatusUnprocessableEntity, "Invalid Referrer", err.Error())
	case errors.Is(err, shared.ErrPartialUpdate):
		Problem(w, http.StatusUnprocessableEntity, "Partial Update Rejected", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
