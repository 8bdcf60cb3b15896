package testutil

import (
	"github.com/zjrosen/playbook/internal/recordstore"
	"github.com/zjrosen/playbook/internal/verification"
)

// recordData holds one record to be inserted.
type recordData struct {
	table  string
	fields recordstore.Record
}

// RecordOption configures a record during builder setup.
type RecordOption func(recordstore.Record)

// Field sets an arbitrary field.
func Field(name string, value any) RecordOption {
	return func(r recordstore.Record) {
		r[name] = value
	}
}

// Org sets the owning organization.
func Org(organizationID string) RecordOption {
	return Field(verification.FieldOrganizationID, organizationID)
}

// User sets the submitting user.
func User(userID string) RecordOption {
	return Field(verification.FieldUserID, userID)
}

// Step sets the step a form submission answers.
func Step(stepID string) RecordOption {
	return Field(verification.FieldStepID, stepID)
}

// Status sets the record status.
func Status(status string) RecordOption {
	return Field(verification.FieldStatus, status)
}

// Provider sets the integration provider.
func Provider(provider string) RecordOption {
	return Field(verification.FieldProvider, provider)
}

// Entries sets listField to one entry per amount, each carrying the amount
// under amountField.
func Entries(listField, amountField string, amounts ...float64) RecordOption {
	return func(r recordstore.Record) {
		list := make([]any, len(amounts))
		for i, a := range amounts {
			list[i] = map[string]any{amountField: a}
		}
		r[listField] = list
	}
}
