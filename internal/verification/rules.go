package verification

import (
	"context"
	"fmt"

	"github.com/zjrosen/playbook/internal/playbook"
	"github.com/zjrosen/playbook/internal/recordstore"
)

// Built-in step types.
const (
	StepTypeIdentitySetup       playbook.StepType = "identity_setup"
	StepTypeBusinessProfile     playbook.StepType = "business_profile"
	StepTypeRevenueSetup        playbook.StepType = "revenue_setup"
	StepTypeCashFlowSetup       playbook.StepType = "cash_flow_setup"
	StepTypeDeliverySystems     playbook.StepType = "delivery_systems"
	StepTypeTeamSetup           playbook.StepType = "team_setup"
	StepTypeKnowledgeManagement playbook.StepType = "knowledge_management"
	StepTypeBusinessSystems     playbook.StepType = "business_systems"
	StepTypeForm                playbook.StepType = "form"
	StepTypeIntegration         playbook.StepType = "integration"
	StepTypeDataEntry           playbook.StepType = "data_entry"

	// StepTypeManualReview steps are confirmed by a person, never by data.
	StepTypeManualReview playbook.StepType = "manual_review"
)

// Tables read by the built-in rules.
const (
	TableBusinessIdentity    = "business_identity"
	TableBusinessProfiles    = "business_profiles"
	TableRevenueModels       = "revenue_models"
	TableCashFlowProjections = "cash_flow_projections"
	TableDeliveryProcesses   = "delivery_processes"
	TableTeamMembers         = "team_members"
	TableKnowledgeArticles   = "knowledge_articles"
	TableBusinessTools       = "business_tools"
	TableFormSubmissions     = "form_submissions"
	TableIntegrations        = "integrations"
)

// Record fields shared by the built-in rules.
const (
	FieldOrganizationID = "organization_id"
	FieldUserID         = "user_id"
	FieldStepID         = "step_id"
	FieldStatus         = "status"
	FieldProvider       = "provider"
)

// Step metadata keys understood by the built-in rules.
const (
	MetaMinItems = "min_items"
	MetaTable    = "table"
	MetaProvider = "provider"
)

// NewDefaultRegistry returns a registry with every built-in rule reading
// from store, and manual_review marked manual-only.
func NewDefaultRegistry(store recordstore.Store) *Registry {
	r := NewRegistry()
	r.MustRegister(StepTypeIdentitySetup, fieldsRule(store, TableBusinessIdentity,
		"company_name", "mission", "vision", "industry"))
	r.MustRegister(StepTypeBusinessProfile, fieldsRule(store, TableBusinessProfiles,
		"description", "target_market", "value_proposition", "business_model"))
	r.MustRegister(StepTypeRevenueSetup, entriesRule(store, TableRevenueModels, "streams", "amount", 1))
	r.MustRegister(StepTypeCashFlowSetup, entriesRule(store, TableCashFlowProjections, "months", "inflow", 3))
	r.MustRegister(StepTypeDeliverySystems, countRule(store, TableDeliveryProcesses, 1))
	r.MustRegister(StepTypeTeamSetup, countRule(store, TableTeamMembers, 1))
	r.MustRegister(StepTypeKnowledgeManagement, countRule(store, TableKnowledgeArticles, 1))
	r.MustRegister(StepTypeBusinessSystems, countRule(store, TableBusinessTools, 1))
	r.MustRegister(StepTypeForm, formRule(store))
	r.MustRegister(StepTypeIntegration, integrationRule(store))
	r.MustRegister(StepTypeDataEntry, dataEntryRule(store))
	r.MarkManualOnly(StepTypeManualReview)
	return r
}

// minItems returns the step's min_items override, or def.
func minItems(metadata map[string]any, def int) int {
	if n, ok := recordstore.Record(metadata).Int(MetaMinItems); ok && n > 0 {
		return n
	}
	return def
}

func orgFilter(s Subject) recordstore.Filter {
	return recordstore.Filter{FieldOrganizationID: s.OrganizationID}
}

// fieldsRule is satisfied when the organization's record in table has every
// field populated.
func fieldsRule(store recordstore.Store, table string, fields ...string) Rule {
	criteria := make([]string, len(fields))
	for i, f := range fields {
		criteria[i] = fmt.Sprintf("%s.%s is filled in", table, f)
	}
	return NewRule(func(ctx context.Context, s Subject) (bool, error) {
		rec, err := store.SelectOne(ctx, table, orgFilter(s))
		if err != nil || rec == nil {
			return false, err
		}
		for _, f := range fields {
			if !rec.NonEmpty(f) {
				return false, nil
			}
		}
		return true, nil
	}, criteria...)
}

// entriesRule is satisfied when the organization's record in table lists at
// least min_items entries under listField with a positive amountField.
func entriesRule(store recordstore.Store, table, listField, amountField string, def int) Rule {
	return NewRule(func(ctx context.Context, s Subject) (bool, error) {
		rec, err := store.SelectOne(ctx, table, orgFilter(s))
		if err != nil || rec == nil {
			return false, err
		}
		want := minItems(s.Metadata, def)
		n := 0
		for _, item := range rec.List(listField) {
			entry, ok := recordstore.AsRecord(item)
			if !ok {
				continue
			}
			if amount, ok := entry.Float(amountField); ok && amount > 0 {
				n++
			}
		}
		return n >= want, nil
	}, fmt.Sprintf("%s.%s has at least %d entries with a positive %s", table, listField, def, amountField))
}

// countRule is satisfied when table holds at least min_items rows for the
// organization.
func countRule(store recordstore.Store, table string, def int) Rule {
	return NewRule(func(ctx context.Context, s Subject) (bool, error) {
		recs, err := store.SelectMany(ctx, table, orgFilter(s))
		if err != nil {
			return false, err
		}
		return len(recs) >= minItems(s.Metadata, def), nil
	}, fmt.Sprintf("at least %d %s record(s) exist", def, table))
}

func formRule(store recordstore.Store) Rule {
	return NewRule(func(ctx context.Context, s Subject) (bool, error) {
		rec, err := store.SelectOne(ctx, TableFormSubmissions, recordstore.Filter{
			FieldOrganizationID: s.OrganizationID,
			FieldUserID:         s.UserID,
			FieldStepID:         s.StepID,
		})
		return rec != nil, err
	}, "the form for this step has been submitted")
}

func integrationRule(store recordstore.Store) Rule {
	return NewRule(func(ctx context.Context, s Subject) (bool, error) {
		filter := orgFilter(s)
		filter[FieldStatus] = "active"
		if provider := recordstore.Record(s.Metadata).String(MetaProvider); provider != "" {
			filter[FieldProvider] = provider
		}
		recs, err := store.SelectMany(ctx, TableIntegrations, filter)
		if err != nil {
			return false, err
		}
		return len(recs) > 0, nil
	}, "an active integration is connected")
}

// dataEntryRule checks the table named by the step's metadata. A step without
// a table is never satisfied automatically.
func dataEntryRule(store recordstore.Store) Rule {
	return NewRule(func(ctx context.Context, s Subject) (bool, error) {
		table := recordstore.Record(s.Metadata).String(MetaTable)
		if table == "" {
			return false, nil
		}
		recs, err := store.SelectMany(ctx, table, orgFilter(s))
		if err != nil {
			return false, err
		}
		return len(recs) >= minItems(s.Metadata, 1), nil
	}, "records have been entered for this step")
}
