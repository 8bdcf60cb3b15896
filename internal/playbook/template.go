// Package playbook provides the domain layer for playbook templates and the
// per-user journey progress through them.
//
// The package has no infrastructure dependencies:
//   - Template and Step describe immutable multi-step playbooks
//   - Progress is the mutable journey entity with encapsulated state transitions
//   - ProgressRepository and StepResponseRepository abstract persistence
//   - Typed errors describe the failure taxonomy of journey operations
package playbook

import (
	"fmt"
	"slices"
	"sort"
	"time"
)

// Category classifies a playbook template.
type Category string

const (
	CategoryOnboarding  Category = "onboarding"
	CategoryBusiness    Category = "business"
	CategoryOperational Category = "operational"
	CategoryStrategic   Category = "strategic"
	CategoryTactical    Category = "tactical"
)

// IsValid returns true if the category is recognized.
func (c Category) IsValid() bool {
	switch c {
	case CategoryOnboarding, CategoryBusiness, CategoryOperational, CategoryStrategic, CategoryTactical:
		return true
	default:
		return false
	}
}

// StepType selects the verification rule for a step.
type StepType string

func (t StepType) String() string {
	return string(t)
}

// Step is one unit of work within a template.
type Step struct {
	ID                string
	Title             string
	Description       string
	StepType          StepType
	IsRequired        bool
	Order             int
	EstimatedDuration time.Duration
	// Metadata is passed through to the verification rule.
	Metadata map[string]any
}

// Template is the immutable definition of an ordered playbook.
type Template struct {
	ID          string
	Name        string
	Description string
	Category    Category
	Version     string
	Steps       []Step
}

// Normalize sorts steps by Order and validates the template.
func (t *Template) Normalize() error {
	sort.SliceStable(t.Steps, func(i, j int) bool {
		return t.Steps[i].Order < t.Steps[j].Order
	})
	return t.Validate()
}

// Validate checks template structure. Steps must already be sorted by Order.
func (t *Template) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("template id is required")
	}
	if !t.Category.IsValid() {
		return fmt.Errorf("template %s: invalid category %q", t.ID, t.Category)
	}
	if len(t.Steps) == 0 {
		return fmt.Errorf("template %s: at least one step is required", t.ID)
	}

	seen := make(map[string]bool, len(t.Steps))
	for i, step := range t.Steps {
		if step.ID == "" {
			return fmt.Errorf("template %s: step %d: id is required", t.ID, i)
		}
		if seen[step.ID] {
			return fmt.Errorf("template %s: duplicate step id %q", t.ID, step.ID)
		}
		seen[step.ID] = true

		if step.StepType == "" {
			return fmt.Errorf("template %s: step %s: step_type is required", t.ID, step.ID)
		}
		if step.EstimatedDuration < 0 {
			return fmt.Errorf("template %s: step %s: estimated_duration must not be negative", t.ID, step.ID)
		}
		if i > 0 && step.Order <= t.Steps[i-1].Order {
			if step.Order == t.Steps[i-1].Order {
				return fmt.Errorf("template %s: steps %s and %s share order %d", t.ID, t.Steps[i-1].ID, step.ID, step.Order)
			}
			return fmt.Errorf("template %s: steps are not sorted by order", t.ID)
		}
	}
	return nil
}

// Step returns the step with the given id.
func (t *Template) Step(id string) (Step, bool) {
	for _, s := range t.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// StepIDs returns step ids in order.
func (t *Template) StepIDs() []string {
	ids := make([]string, len(t.Steps))
	for i, s := range t.Steps {
		ids[i] = s.ID
	}
	return ids
}

// RequiredCount returns the number of required steps.
func (t *Template) RequiredCount() int {
	n := 0
	for _, s := range t.Steps {
		if s.IsRequired {
			n++
		}
	}
	return n
}

// StepTypes returns the distinct step types used by the template, sorted.
func (t *Template) StepTypes() []StepType {
	var types []StepType
	for _, s := range t.Steps {
		if !slices.Contains(types, s.StepType) {
			types = append(types, s.StepType)
		}
	}
	slices.Sort(types)
	return types
}

// EstimatedDuration sums the estimates of every step.
func (t *Template) EstimatedDuration() time.Duration {
	var total time.Duration
	for _, s := range t.Steps {
		total += s.EstimatedDuration
	}
	return total
}
