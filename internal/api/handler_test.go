package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/playbook/internal/engine"
	"github.com/zjrosen/playbook/internal/infrastructure/records"
	"github.com/zjrosen/playbook/internal/metrics"
	"github.com/zjrosen/playbook/internal/onboarding"
	"github.com/zjrosen/playbook/internal/presentation"
	"github.com/zjrosen/playbook/internal/recordstore"
	"github.com/zjrosen/playbook/internal/templates"
	"github.com/zjrosen/playbook/internal/verification"
)

type testAPI struct {
	store   *recordstore.Memory
	engine  *engine.Engine
	handler http.Handler
}

func newTestAPI(t *testing.T, withOnboarding bool) *testAPI {
	t.Helper()
	catalog, err := templates.NewCatalog(templates.CatalogFS(), "")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	store := recordstore.NewMemory()
	e, err := engine.New(engine.Config{
		Templates: catalog,
		Progress:  records.NewProgressRepository(store),
		Responses: records.NewStepResponseRepository(store),
		Verifier:  verification.NewDefaultRegistry(store),
		Metrics:   m,
	})
	require.NoError(t, err)

	cfg := HandlerConfig{Journeys: e, Gatherer: reg, Heartbeat: 50 * time.Millisecond}
	if withOnboarding {
		svc, err := onboarding.New(onboarding.Config{Engine: e})
		require.NoError(t, err)
		cfg.Onboarding = svc
	}
	h, err := NewHandler(cfg)
	require.NoError(t, err)
	return &testAPI{store: store, engine: e, handler: h.Routes()}
}

func (a *testAPI) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	if user != "" {
		req.Header.Set(HeaderUserID, user)
		req.Header.Set(HeaderOrganizationID, "o1")
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (a *testAPI) start(t *testing.T, user, playbookID string) presentation.ProgressDTO {
	t.Helper()
	w := a.do(t, http.MethodPost, "/journeys", user, `{"playbook_id":"`+playbookID+`"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[presentation.ProgressDTO](t, w)
}

func TestNewHandler_RequiresJourneys(t *testing.T) {
	_, err := NewHandler(HandlerConfig{})
	require.Error(t, err)
}

func TestHandler_Health(t *testing.T) {
	a := newTestAPI(t, false)

	w := a.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[HealthResponse](t, w)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Templates)
}

func TestHandler_Templates(t *testing.T) {
	a := newTestAPI(t, false)

	w := a.do(t, http.MethodGet, "/templates", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[ListTemplatesResponse](t, w)
	assert.Equal(t, 2, list.Total)

	w = a.do(t, http.MethodGet, "/templates/onboarding-v1", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	tpl := decode[presentation.TemplateDTO](t, w)
	assert.Len(t, tpl.Steps, 5)
	assert.Equal(t, 3, tpl.RequiredSteps)

	w = a.do(t, http.MethodGet, "/templates/nope", "", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "template_not_found", decode[ErrorResponse](t, w).Code)
}

func TestHandler_StartJourney(t *testing.T) {
	a := newTestAPI(t, false)

	first := a.start(t, "u1", "onboarding-v1")
	assert.Equal(t, "not_started", first.Status)
	assert.Equal(t, 0, first.Percentage)

	second := a.start(t, "u1", "onboarding-v1")
	assert.Equal(t, first.ID, second.ID)
}

func TestHandler_StartJourney_Validation(t *testing.T) {
	a := newTestAPI(t, false)

	w := a.do(t, http.MethodPost, "/journeys", "", `{"playbook_id":"onboarding-v1"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "missing_identity", decode[ErrorResponse](t, w).Code)

	w = a.do(t, http.MethodPost, "/journeys", "u1", `not json`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_json", decode[ErrorResponse](t, w).Code)

	w = a.do(t, http.MethodPost, "/journeys", "u1", `{}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "validation_error", decode[ErrorResponse](t, w).Code)

	w = a.do(t, http.MethodPost, "/journeys", "u1", `{"playbook_id":"missing"}`)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "template_not_found", decode[ErrorResponse](t, w).Code)
}

func TestHandler_JourneyLifecycle(t *testing.T) {
	a := newTestAPI(t, false)
	p := a.start(t, "u1", "onboarding-v1")
	base := "/journeys/" + p.ID

	w := a.do(t, http.MethodPost, base+"/pause", "u1", "")
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_transition", decode[ErrorResponse](t, w).Code)

	w = a.do(t, http.MethodPost, base+"/steps/welcome-introduction/complete", "u1", `{"response_data":{"goal":"grow"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[presentation.ProgressDTO](t, w)
	assert.Equal(t, 20, got.Percentage)
	assert.Equal(t, "in_progress", got.Status)
	assert.Equal(t, "grow", got.StepResponses["welcome-introduction"].ResponseData["goal"])

	w = a.do(t, http.MethodPost, base+"/steps/nope/complete", "u1", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "step_not_found", decode[ErrorResponse](t, w).Code)

	_, err := a.store.Insert(context.Background(), verification.TableTeamMembers, recordstore.Record{
		verification.FieldOrganizationID: "o1",
	})
	require.NoError(t, err)
	w = a.do(t, http.MethodPost, base+"/check", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	got = decode[presentation.ProgressDTO](t, w)
	assert.Equal(t, 40, got.Percentage)
	assert.True(t, got.StepResponses["invite-team"].AutoCompleted)

	w = a.do(t, http.MethodPost, base+"/pause", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "paused", decode[presentation.ProgressDTO](t, w).Status)

	w = a.do(t, http.MethodPost, base+"/resume", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "in_progress", decode[presentation.ProgressDTO](t, w).Status)

	w = a.do(t, http.MethodGet, base+"/steps", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[presentation.StatusDTO](t, w)
	assert.Equal(t, 2, status.CompletedCount)
	assert.Equal(t, 5, status.TotalCount)
	assert.Len(t, status.Steps, 5)

	w = a.do(t, http.MethodGet, base+"/responses", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	responses := decode[ListResponsesResponse](t, w)
	assert.Equal(t, 1, responses.Total)
	assert.Equal(t, "welcome-introduction", responses.Responses[0].StepID)

	w = a.do(t, http.MethodGet, "/journeys", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[ListJourneysResponse](t, w).Total)

	w = a.do(t, http.MethodGet, base, "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, p.ID, decode[presentation.ProgressDTO](t, w).ID)
}

func TestHandler_JourneyOfAnotherUserIsNotFound(t *testing.T) {
	a := newTestAPI(t, false)
	p := a.start(t, "u1", "onboarding-v1")

	w := a.do(t, http.MethodGet, "/journeys/"+p.ID, "u2", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "progress_not_found", decode[ErrorResponse](t, w).Code)

	w = a.do(t, http.MethodPost, "/journeys/"+p.ID+"/steps/invite-team/complete", "u2", "")
	require.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodGet, "/journeys/unknown", "u1", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_Onboarding(t *testing.T) {
	a := newTestAPI(t, true)

	w := a.do(t, http.MethodPost, "/onboarding/steps/welcome-introduction/complete", "u1", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "progress_not_found", decode[ErrorResponse](t, w).Code)

	w = a.do(t, http.MethodPost, "/onboarding/start", "u1", `{"metadata":{"source":"signup"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	p := decode[presentation.ProgressDTO](t, w)
	assert.Equal(t, "onboarding-v1", p.PlaybookID)
	assert.Equal(t, "signup", p.Metadata["source"])

	w = a.do(t, http.MethodPost, "/onboarding/steps/welcome-introduction/complete", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 20, decode[presentation.ProgressDTO](t, w).Percentage)

	w = a.do(t, http.MethodPost, "/onboarding/check", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, "/onboarding/status", "u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[presentation.StatusDTO](t, w)
	assert.Equal(t, p.ID, status.ProgressID)
	assert.Equal(t, 1, status.CompletedCount)
}

func TestHandler_OnboardingNotConfigured(t *testing.T) {
	a := newTestAPI(t, false)

	w := a.do(t, http.MethodPost, "/onboarding/start", "u1", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "onboarding_not_configured", decode[ErrorResponse](t, w).Code)
}

func TestHandler_Metrics(t *testing.T) {
	a := newTestAPI(t, false)
	a.start(t, "u1", "onboarding-v1")

	w := a.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `playbook_engine_operation_duration_seconds_count{operation="start",result="ok"} 1`)
}

func TestHandler_UnknownRoute(t *testing.T) {
	a := newTestAPI(t, false)

	w := a.do(t, http.MethodGet, "/nope", "", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "route_not_found", decode[ErrorResponse](t, w).Code)

	w = a.do(t, http.MethodDelete, "/journeys", "u1", "")
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandler_StreamEvents(t *testing.T) {
	a := newTestAPI(t, false)
	srv := httptest.NewServer(a.handler)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderUserID, "u1")
	req.Header.Set(HeaderOrganizationID, "o1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 64)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	waitFor := func(prefix string) string {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				require.True(t, ok, "stream closed before %q", prefix)
				if strings.HasPrefix(line, prefix) {
					return line
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %q", prefix)
			}
		}
	}

	waitFor("event: connected")

	// Another user's journey is not streamed.
	a.start(t, "u2", "onboarding-v1")
	p := a.start(t, "u1", "onboarding-v1")

	require.Equal(t, "event: journey.started", waitFor("event: "))
	data := strings.TrimPrefix(waitFor("data: "), "data: ")
	var ev presentation.EventDTO
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, p.ID, ev.ProgressID)
	assert.Equal(t, "u1", ev.UserID)

	waitFor(": heartbeat")
}
