package testutil

import (
	"github.com/zjrosen/playbook/internal/verification"
)

// WithIdentity adds a fully filled in business identity for the organization.
func (b *Builder) WithIdentity(organizationID string) *Builder {
	return b.WithRecord(verification.TableBusinessIdentity,
		Org(organizationID),
		Field("company_name", "Acme"),
		Field("mission", "Make books easy"),
		Field("vision", "Every shop solvent"),
		Field("industry", "Retail"))
}

// WithFormSubmission adds a submitted form for a user's step.
func (b *Builder) WithFormSubmission(organizationID, userID, stepID string) *Builder {
	return b.WithRecord(verification.TableFormSubmissions,
		Org(organizationID), User(userID), Step(stepID))
}

// WithRevenueStreams adds a revenue model with one stream per amount.
func (b *Builder) WithRevenueStreams(organizationID string, amounts ...float64) *Builder {
	return b.WithRecord(verification.TableRevenueModels,
		Org(organizationID), Entries("streams", "amount", amounts...))
}

// WithTeamMembers adds n team members.
func (b *Builder) WithTeamMembers(organizationID string, n int) *Builder {
	for i := 0; i < n; i++ {
		b.WithRecord(verification.TableTeamMembers, Org(organizationID))
	}
	return b
}

// WithIntegration adds an integration in the given status.
func (b *Builder) WithIntegration(organizationID, provider, status string) *Builder {
	return b.WithRecord(verification.TableIntegrations,
		Org(organizationID), Provider(provider), Status(status))
}

// WithCompleteOnboarding adds every record the built-in onboarding-v1 steps
// verify for the user in the organization.
func (b *Builder) WithCompleteOnboarding(organizationID, userID string) *Builder {
	return b.
		WithFormSubmission(organizationID, userID, "welcome-introduction").
		WithIdentity(organizationID).
		WithRevenueStreams(organizationID, 5000).
		WithTeamMembers(organizationID, 1).
		WithIntegration(organizationID, "quickbooks", "active")
}
