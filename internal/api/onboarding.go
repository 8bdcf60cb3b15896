package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/zjrosen/playbook/internal/onboarding"
	"github.com/zjrosen/playbook/internal/presentation"
)

// onboardingService returns the service, writing a 404 when none is configured.
func (h *Handler) onboardingService(w http.ResponseWriter) (*onboarding.Service, bool) {
	if h.onboarding == nil {
		writeOpError(w, onboarding.ErrNoOnboardingTemplate)
		return nil, false
	}
	return h.onboarding, true
}

// StartOnboarding starts the caller's onboarding journey.
// POST /onboarding/start
func (h *Handler) StartOnboarding(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.onboardingService(w)
	if !ok {
		return
	}
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req struct {
		Metadata map[string]any `json:"metadata,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	h.respondProgress(w)(svc.Start(r.Context(), id.userID, id.organizationID, req.Metadata))
}

// CheckOnboarding auto-completes onboarding steps.
// POST /onboarding/check
func (h *Handler) CheckOnboarding(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.onboardingService(w)
	if !ok {
		return
	}
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	h.respondProgress(w)(svc.Check(r.Context(), id.userID, id.organizationID))
}

// OnboardingStatus reports every onboarding step.
// GET /onboarding/status
func (h *Handler) OnboardingStatus(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.onboardingService(w)
	if !ok {
		return
	}
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	report, err := svc.Status(r.Context(), id.userID, id.organizationID)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, presentation.FromStatusReport(report))
}

// CompleteOnboardingStep submits an onboarding step.
// POST /onboarding/steps/{stepId}/complete
func (h *Handler) CompleteOnboardingStep(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.onboardingService(w)
	if !ok {
		return
	}
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req CompleteStepRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respondProgress(w)(svc.CompleteStep(r.Context(), id.userID, id.organizationID, mux.Vars(r)["stepId"], req.ResponseData))
}
