package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/zjrosen/playbook/internal/playbook"
	"github.com/zjrosen/playbook/internal/presentation"
)

// StartJourneyRequest is the request body for POST /journeys.
type StartJourneyRequest struct {
	PlaybookID string         `json:"playbook_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// CompleteStepRequest is the request body for step completion.
type CompleteStepRequest struct {
	ResponseData map[string]any `json:"response_data,omitempty"`
}

// ListTemplatesResponse is the response body for listing templates.
type ListTemplatesResponse struct {
	Templates []presentation.TemplateDTO `json:"templates"`
	Total     int                        `json:"total"`
}

// ListJourneysResponse is the response body for listing journeys.
type ListJourneysResponse struct {
	Journeys []presentation.ProgressDTO `json:"journeys"`
	Total    int                        `json:"total"`
}

// ListResponsesResponse is the response body for a journey's audit trail.
type ListResponsesResponse struct {
	Responses []presentation.StepResponseDTO `json:"responses"`
	Total     int                            `json:"total"`
}

type identity struct {
	userID         string
	organizationID string
}

// requireIdentity reads the caller identity headers, writing a 422 when
// either is missing.
func requireIdentity(w http.ResponseWriter, r *http.Request) (identity, bool) {
	id := identity{
		userID:         r.Header.Get(HeaderUserID),
		organizationID: r.Header.Get(HeaderOrganizationID),
	}
	if id.userID == "" || id.organizationID == "" {
		writeError(w, http.StatusUnprocessableEntity, "missing_identity",
			HeaderUserID+" and "+HeaderOrganizationID+" headers are required", "")
		return identity{}, false
	}
	return id, true
}

// decodeBody decodes an optional JSON body into v. An empty body is allowed.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body", err.Error())
	return false
}

// ownedJourney loads the journey named in the path and checks it belongs to
// the caller. Journeys of other callers are reported as not found.
func (h *Handler) ownedJourney(w http.ResponseWriter, r *http.Request) (*playbook.Progress, bool) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return nil, false
	}
	progressID := mux.Vars(r)["id"]
	progress, err := h.journeys.GetProgressByID(r.Context(), progressID)
	if err != nil {
		writeOpError(w, err)
		return nil, false
	}
	if progress.UserID() != id.userID || progress.OrganizationID() != id.organizationID {
		writeOpError(w, &playbook.ProgressNotFoundError{ID: progressID})
		return nil, false
	}
	return progress, true
}

// ListTemplates lists every template.
// GET /templates
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.journeys.ListTemplates(r.Context())
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListTemplatesResponse{
		Templates: presentation.FromTemplates(templates),
		Total:     len(templates),
	})
}

// GetTemplate returns one template.
// GET /templates/{id}
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.journeys.GetTemplate(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, presentation.FromTemplate(tpl))
}

// StartJourney starts, or returns, the caller's journey on a playbook.
// POST /journeys
func (h *Handler) StartJourney(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req StartJourneyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PlaybookID == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "playbook_id is required", "")
		return
	}

	progress, err := h.journeys.StartPlaybook(r.Context(), playbook.Key{
		UserID:         id.userID,
		OrganizationID: id.organizationID,
		PlaybookID:     req.PlaybookID,
	}, req.Metadata)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, presentation.FromProgress(progress))
}

// ListJourneys lists the caller's journeys.
// GET /journeys
func (h *Handler) ListJourneys(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	list, err := h.journeys.ListProgress(r.Context(), id.userID, id.organizationID)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListJourneysResponse{
		Journeys: presentation.FromProgressList(list),
		Total:    len(list),
	})
}

// GetJourney returns one of the caller's journeys.
// GET /journeys/{id}
func (h *Handler) GetJourney(w http.ResponseWriter, r *http.Request) {
	progress, ok := h.ownedJourney(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, presentation.FromProgress(progress))
}

// CheckJourney auto-completes steps already satisfied by records.
// POST /journeys/{id}/check
func (h *Handler) CheckJourney(w http.ResponseWriter, r *http.Request) {
	progress, ok := h.ownedJourney(w, r)
	if !ok {
		return
	}
	h.respondProgress(w)(h.journeys.CheckAndUpdateStepCompletion(r.Context(), progress.Key()))
}

// PauseJourney pauses an in-progress journey.
// POST /journeys/{id}/pause
func (h *Handler) PauseJourney(w http.ResponseWriter, r *http.Request) {
	progress, ok := h.ownedJourney(w, r)
	if !ok {
		return
	}
	h.respondProgress(w)(h.journeys.Pause(r.Context(), progress.Key()))
}

// ResumeJourney resumes a paused journey.
// POST /journeys/{id}/resume
func (h *Handler) ResumeJourney(w http.ResponseWriter, r *http.Request) {
	progress, ok := h.ownedJourney(w, r)
	if !ok {
		return
	}
	h.respondProgress(w)(h.journeys.Resume(r.Context(), progress.Key()))
}

// JourneySteps reports every step with its completion and verification status.
// GET /journeys/{id}/steps
func (h *Handler) JourneySteps(w http.ResponseWriter, r *http.Request) {
	progress, ok := h.ownedJourney(w, r)
	if !ok {
		return
	}
	report, err := h.journeys.GetStepCompletionStatus(r.Context(), progress.Key())
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, presentation.FromStatusReport(report))
}

// CompleteJourneyStep submits a step.
// POST /journeys/{id}/steps/{stepId}/complete
func (h *Handler) CompleteJourneyStep(w http.ResponseWriter, r *http.Request) {
	progress, ok := h.ownedJourney(w, r)
	if !ok {
		return
	}
	var req CompleteStepRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respondProgress(w)(h.journeys.CompletePlaybookItem(r.Context(), progress.ID(), mux.Vars(r)["stepId"], req.ResponseData))
}

// JourneyResponses lists the audit trail of a journey.
// GET /journeys/{id}/responses
func (h *Handler) JourneyResponses(w http.ResponseWriter, r *http.Request) {
	progress, ok := h.ownedJourney(w, r)
	if !ok {
		return
	}
	responses, err := h.journeys.ListStepResponses(r.Context(), progress.ID())
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponsesResponse{
		Responses: presentation.FromStepResponses(responses),
		Total:     len(responses),
	})
}

// respondProgress writes the result of an operation returning a journey.
func (h *Handler) respondProgress(w http.ResponseWriter) func(*playbook.Progress, error) {
	return func(progress *playbook.Progress, err error) {
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, presentation.FromProgress(progress))
	}
}
