package playbook

import (
	"maps"
	"math"
	"time"
)

// Status represents the lifecycle state of a journey.
type Status string

const (
	// StatusNotStarted indicates no step has been completed yet.
	StatusNotStarted Status = "not_started"

	// StatusInProgress indicates at least one step is completed.
	StatusInProgress Status = "in_progress"

	// StatusCompleted indicates every step is completed. Terminal.
	StatusCompleted Status = "completed"

	// StatusPaused indicates the user set the journey aside.
	StatusPaused Status = "paused"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsValid returns true if the status is recognized.
func (s Status) IsValid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted, StatusPaused:
		return true
	default:
		return false
	}
}

// StepStatus is the completion state of a single step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepCompleted StepStatus = "completed"
)

// StepState records how far a step has progressed within a journey.
type StepState struct {
	Status        StepStatus
	CompletedAt   *time.Time
	AutoCompleted bool
	ResponseData  map[string]any
}

// Key identifies a journey: one progress record per (user, organization, playbook).
type Key struct {
	UserID         string
	OrganizationID string
	PlaybookID     string
}

// Percentage returns round(100*completed/total) with halves rounded away
// from zero. A zero total yields 0. Only a finished total reports 100; a value
// that would round up to 100 with steps remaining is reported as 99.
func Percentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	pct := int(math.Round(100 * float64(completed) / float64(total)))
	if pct == 100 && completed < total {
		return 99
	}
	return pct
}

// Progress is one user and organization scoped execution of a template.
// Fields are unexported; status and percentage only change through the
// transition methods.
type Progress struct {
	id             string
	userID         string
	organizationID string
	playbookID     string
	status         Status
	percentage     int
	steps          map[string]StepState
	metadata       map[string]any

	// Optimistic concurrency token, incremented on every persisted write.
	version int

	createdAt   time.Time
	updatedAt   time.Time
	startedAt   *time.Time
	pausedAt    *time.Time
	completedAt *time.Time
}

// NewProgress creates a not-started journey for key. The ID is assigned by
// the persistence layer.
func NewProgress(key Key, metadata map[string]any, now time.Time) *Progress {
	return &Progress{
		userID:         key.UserID,
		organizationID: key.OrganizationID,
		playbookID:     key.PlaybookID,
		status:         StatusNotStarted,
		percentage:     0,
		steps:          make(map[string]StepState),
		metadata:       metadata,
		createdAt:      now,
		updatedAt:      now,
	}
}

// ReconstituteProgress creates a Progress from persisted data.
func ReconstituteProgress(
	id string,
	key Key,
	status Status,
	percentage int,
	steps map[string]StepState,
	metadata map[string]any,
	version int,
	createdAt, updatedAt time.Time,
	startedAt, pausedAt, completedAt *time.Time,
) *Progress {
	if steps == nil {
		steps = make(map[string]StepState)
	}
	return &Progress{
		id:             id,
		userID:         key.UserID,
		organizationID: key.OrganizationID,
		playbookID:     key.PlaybookID,
		status:         status,
		percentage:     percentage,
		steps:          steps,
		metadata:       metadata,
		version:        version,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
		startedAt:      startedAt,
		pausedAt:       pausedAt,
		completedAt:    completedAt,
	}
}

// ID returns the persisted identifier, empty until created.
func (p *Progress) ID() string {
	return p.id
}

// Key returns the (user, organization, playbook) triple.
func (p *Progress) Key() Key {
	return Key{UserID: p.userID, OrganizationID: p.organizationID, PlaybookID: p.playbookID}
}

// UserID returns the owning user.
func (p *Progress) UserID() string {
	return p.userID
}

// OrganizationID returns the owning organization.
func (p *Progress) OrganizationID() string {
	return p.organizationID
}

// PlaybookID returns the template this journey executes.
func (p *Progress) PlaybookID() string {
	return p.playbookID
}

// Status returns the lifecycle state.
func (p *Progress) Status() Status {
	return p.status
}

// Percentage returns the derived completion percentage.
func (p *Progress) Percentage() int {
	return p.percentage
}

// Steps returns a copy of the step state map.
func (p *Progress) Steps() map[string]StepState {
	return maps.Clone(p.steps)
}

// StepState returns the state of a step. Steps never touched are pending.
func (p *Progress) StepState(stepID string) StepState {
	if s, ok := p.steps[stepID]; ok {
		return s
	}
	return StepState{Status: StepPending}
}

// IsStepCompleted reports whether the step is completed.
func (p *Progress) IsStepCompleted(stepID string) bool {
	return p.steps[stepID].Status == StepCompleted
}

// Metadata returns caller supplied metadata from the first start.
func (p *Progress) Metadata() map[string]any {
	return p.metadata
}

// Version returns the optimistic concurrency token.
func (p *Progress) Version() int {
	return p.version
}

// CreatedAt returns when the journey was first started.
func (p *Progress) CreatedAt() time.Time {
	return p.createdAt
}

// UpdatedAt returns when the journey last changed.
func (p *Progress) UpdatedAt() time.Time {
	return p.updatedAt
}

// StartedAt returns when the first step was completed, or nil.
func (p *Progress) StartedAt() *time.Time {
	return p.startedAt
}

// PausedAt returns when the journey was paused, or nil if it is not paused.
func (p *Progress) PausedAt() *time.Time {
	return p.pausedAt
}

// CompletedAt returns when the journey reached 100%, or nil.
func (p *Progress) CompletedAt() *time.Time {
	return p.completedAt
}

// IsCompleted returns true if the journey reached its terminal state.
func (p *Progress) IsCompleted() bool {
	return p.status == StatusCompleted
}

// SetID sets the identifier assigned by the persistence layer.
func (p *Progress) SetID(id string) {
	p.id = id
}

// SetVersion sets the concurrency token after a persisted write.
func (p *Progress) SetVersion(version int) {
	p.version = version
}

// CompletedCount returns the number of the template's steps that are completed.
// Step states for ids outside the template are ignored. A nil template counts
// every completed state.
func (p *Progress) CompletedCount(t *Template) int {
	return countCompleted(p.steps, t)
}

func countCompleted(steps map[string]StepState, t *Template) int {
	n := 0
	if t == nil {
		for _, s := range steps {
			if s.Status == StepCompleted {
				n++
			}
		}
		return n
	}
	for _, step := range t.Steps {
		if steps[step.ID].Status == StepCompleted {
			n++
		}
	}
	return n
}

// CompleteStep marks a step completed. Completing an already completed step
// is a no-op and reports false; completion is never reverted.
func (p *Progress) CompleteStep(stepID string, auto bool, responseData map[string]any, now time.Time) bool {
	if p.IsStepCompleted(stepID) {
		return false
	}
	completedAt := now
	p.steps[stepID] = StepState{
		Status:        StepCompleted,
		CompletedAt:   &completedAt,
		AutoCompleted: auto,
		ResponseData:  responseData,
	}
	p.updatedAt = now
	return true
}

// Recompute derives percentage and status from the step map and reports
// whether anything changed. A completed journey is terminal and is left as is.
// A paused journey stays paused unless every step is done.
func (p *Progress) Recompute(t *Template, now time.Time) bool {
	if p.status == StatusCompleted {
		return false
	}

	completed := p.CompletedCount(t)
	done := len(t.Steps) > 0 && completed == len(t.Steps)
	pct := Percentage(completed, len(t.Steps))

	changed := false
	if pct != p.percentage {
		p.percentage = pct
		changed = true
	}

	switch {
	case done:
		if p.startedAt == nil {
			p.startedAt = &now
		}
		p.status = StatusCompleted
		p.completedAt = &now
		changed = true
	case completed > 0 && p.status == StatusNotStarted:
		p.status = StatusInProgress
		p.startedAt = &now
		changed = true
	}

	if changed {
		p.updatedAt = now
	}
	return changed
}

// Pause moves an in-progress journey to paused.
func (p *Progress) Pause(now time.Time) error {
	if p.status != StatusInProgress {
		return &InvalidTransitionError{From: p.status, Action: "pause"}
	}
	p.status = StatusPaused
	p.pausedAt = &now
	p.updatedAt = now
	return nil
}

// Resume moves a paused journey back to in progress.
func (p *Progress) Resume(now time.Time) error {
	if p.status != StatusPaused {
		return &InvalidTransitionError{From: p.status, Action: "resume"}
	}
	p.status = StatusInProgress
	p.pausedAt = nil
	p.updatedAt = now
	return nil
}

// Clone returns an independent copy.
func (p *Progress) Clone() *Progress {
	c := *p
	c.steps = make(map[string]StepState, len(p.steps))
	for id, s := range p.steps {
		s.ResponseData = maps.Clone(s.ResponseData)
		c.steps[id] = s
	}
	c.metadata = maps.Clone(p.metadata)
	return &c
}
