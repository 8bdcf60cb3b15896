package api

import (
	"errors"
	"net/http"

	"github.com/zjrosen/playbook/internal/log"
	"github.com/zjrosen/playbook/internal/onboarding"
	"github.com/zjrosen/playbook/internal/playbook"
)

// ErrorResponse is the response body for errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message, details string) {
	writeJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// writeOpError maps an operation error onto a status code.
func writeOpError(w http.ResponseWriter, err error) {
	var (
		tnf       *playbook.TemplateNotFoundError
		pnf       *playbook.ProgressNotFoundError
		snf       *playbook.StepNotFoundError
		ite       *playbook.InvalidTransitionError
		ambiguous *onboarding.AmbiguousOnboardingError
		wrongCat  *onboarding.NotOnboardingTemplateError
	)
	switch {
	case errors.As(err, &tnf):
		writeError(w, http.StatusNotFound, "template_not_found", "Template not found", err.Error())
	case errors.As(err, &pnf):
		writeError(w, http.StatusNotFound, "progress_not_found", "Journey not found", err.Error())
	case errors.As(err, &snf):
		writeError(w, http.StatusNotFound, "step_not_found", "Step not found", err.Error())
	case errors.Is(err, onboarding.ErrNoOnboardingTemplate):
		writeError(w, http.StatusNotFound, "onboarding_not_configured", "No onboarding template", err.Error())
	case errors.As(err, &ite):
		writeError(w, http.StatusConflict, "invalid_transition", "Invalid transition", err.Error())
	case errors.Is(err, playbook.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "concurrent_modification", "Journey was modified concurrently", err.Error())
	case errors.As(err, &ambiguous), errors.As(err, &wrongCat):
		writeError(w, http.StatusUnprocessableEntity, "onboarding_misconfigured", "Onboarding template is misconfigured", err.Error())
	default:
		log.ErrorErr(log.CatAPI, "operation failed", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal error", err.Error())
	}
}
