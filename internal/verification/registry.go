// Package verification decides whether a step is satisfied by looking at
// external business records.
//
// Rules are keyed by step type. Lookups fail closed: an unknown step type, a
// rule error or a panicking rule all count as "not satisfied", so a step can
// still be completed by hand but never auto-completes by accident.
package verification

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"
	"sync"

	"github.com/zjrosen/playbook/internal/log"
	"github.com/zjrosen/playbook/internal/playbook"
)

// Subject is the step being verified and whose data to check.
type Subject struct {
	UserID         string
	OrganizationID string
	PlaybookID     string
	StepID         string
	StepType       playbook.StepType
	Metadata       map[string]any
}

// Outcome is the result of a single rule lookup.
type Outcome string

const (
	OutcomeSatisfied   Outcome = "satisfied"
	OutcomeUnsatisfied Outcome = "unsatisfied"
	// OutcomeReadFailure means the rule errored or panicked.
	OutcomeReadFailure Outcome = "read_failure"
	// OutcomeUnknownType means no rule is registered for the step type.
	OutcomeUnknownType Outcome = "unknown_type"
	// OutcomeManualOnly means the step type is only completed by hand.
	OutcomeManualOnly Outcome = "manual_only"
)

// Satisfied reports whether the step should auto-complete.
func (o Outcome) Satisfied() bool {
	return o == OutcomeSatisfied
}

// Rule checks whether the records behind a step exist. Rules must only read.
type Rule interface {
	Verify(ctx context.Context, s Subject) (bool, error)
	// Criteria describes what the rule looks for, for display.
	Criteria() []string
}

// RuleFunc adapts a function into a Rule.
type RuleFunc struct {
	criteria []string
	fn       func(ctx context.Context, s Subject) (bool, error)
}

// NewRule creates a Rule from fn.
func NewRule(fn func(ctx context.Context, s Subject) (bool, error), criteria ...string) *RuleFunc {
	return &RuleFunc{criteria: criteria, fn: fn}
}

func (r *RuleFunc) Verify(ctx context.Context, s Subject) (bool, error) {
	return r.fn(ctx, s)
}

func (r *RuleFunc) Criteria() []string {
	return slices.Clone(r.criteria)
}

// Registry maps step types to rules.
type Registry struct {
	mu     sync.RWMutex
	rules  map[playbook.StepType]Rule
	manual map[playbook.StepType]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rules:  make(map[playbook.StepType]Rule),
		manual: make(map[playbook.StepType]bool),
	}
}

// Register adds a rule. Registering a step type twice is an error.
func (r *Registry) Register(stepType playbook.StepType, rule Rule) error {
	if stepType == "" {
		return errors.New("step type is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rules[stepType]; exists {
		return fmt.Errorf("rule already registered for step type %s", stepType)
	}
	r.rules[stepType] = rule
	delete(r.manual, stepType)
	return nil
}

// MustRegister is Register for wiring code; it panics on error.
func (r *Registry) MustRegister(stepType playbook.StepType, rule Rule) {
	if err := r.Register(stepType, rule); err != nil {
		panic(err)
	}
}

// MarkManualOnly declares step types that never auto-complete. Marking a
// type that has a rule is ignored.
func (r *Registry) MarkManualOnly(stepTypes ...playbook.StepType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range stepTypes {
		if _, ok := r.rules[st]; ok {
			log.Warn(log.CatVerify, "ignoring manual-only marker for step type with a rule", "stepType", st)
			continue
		}
		r.manual[st] = true
	}
}

// Known reports whether the step type has a rule or a manual-only marker.
func (r *Registry) Known(stepType playbook.StepType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rules[stepType]
	return ok || r.manual[stepType]
}

// StepTypes returns the step types with rules, sorted.
func (r *Registry) StepTypes() []playbook.StepType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]playbook.StepType, 0, len(r.rules))
	for st := range r.rules {
		types = append(types, st)
	}
	slices.Sort(types)
	return types
}

// Criteria returns what the rule for stepType looks for. Manual-only and
// unknown types have no criteria.
func (r *Registry) Criteria(stepType playbook.StepType) []string {
	r.mu.RLock()
	rule, ok := r.rules[stepType]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return rule.Criteria()
}

// Verify reports whether the subject's step is satisfied.
func (r *Registry) Verify(ctx context.Context, s Subject) bool {
	return r.Check(ctx, s).Satisfied()
}

// Check runs the rule for the subject's step type. It never returns an error
// and never panics; failures are logged and reported as outcomes.
func (r *Registry) Check(ctx context.Context, s Subject) Outcome {
	r.mu.RLock()
	rule, ok := r.rules[s.StepType]
	manual := r.manual[s.StepType]
	r.mu.RUnlock()

	if !ok {
		if manual {
			return OutcomeManualOnly
		}
		log.Warn(log.CatVerify, "no verification rule for step type",
			"stepType", s.StepType, "stepID", s.StepID, "playbookID", s.PlaybookID)
		return OutcomeUnknownType
	}

	satisfied, err := safeVerify(ctx, rule, s)
	if err != nil {
		log.Warn(log.CatVerify, "verification read failed",
			"stepType", s.StepType, "stepID", s.StepID, "organizationID", s.OrganizationID, "error", err.Error())
		return OutcomeReadFailure
	}
	if satisfied {
		return OutcomeSatisfied
	}
	return OutcomeUnsatisfied
}

func safeVerify(ctx context.Context, rule Rule, s Subject) (satisfied bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error(log.CatVerify, "verification rule panic recovered",
				"stepType", s.StepType, "panic", rec, "stack", string(debug.Stack()))
			satisfied = false
			err = fmt.Errorf("rule panicked: %v", rec)
		}
	}()
	return rule.Verify(ctx, s)
}

// UnmappedStepTypesError lists template steps whose type has neither a rule
// nor a manual-only marker.
type UnmappedStepTypesError struct {
	// Steps are "template/step (type)" entries, sorted.
	Steps []string
}

func (e *UnmappedStepTypesError) Error() string {
	return fmt.Sprintf("step types without a verification rule: %s", strings.Join(e.Steps, ", "))
}

// ValidateTemplates checks that every step type used by templates is known.
// With strict unset, problems are logged and nil is returned.
func (r *Registry) ValidateTemplates(templates []*playbook.Template, strict bool) error {
	var unmapped []string
	for _, t := range templates {
		for _, step := range t.Steps {
			if r.Known(step.StepType) {
				continue
			}
			unmapped = append(unmapped, fmt.Sprintf("%s/%s (%s)", t.ID, step.ID, step.StepType))
		}
	}
	if len(unmapped) == 0 {
		return nil
	}
	slices.Sort(unmapped)
	err := &UnmappedStepTypesError{Steps: unmapped}
	if strict {
		return err
	}
	log.Warn(log.CatVerify, "templates use unmapped step types; those steps can only be completed by hand",
		"steps", strings.Join(unmapped, ", "))
	return nil
}
