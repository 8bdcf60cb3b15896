package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/playbook/internal/playbook"
	"github.com/zjrosen/playbook/internal/recordstore"
	"github.com/zjrosen/playbook/internal/verification"
)

// seeders make one onboarding-v1 step verifiable each.
var seeders = []func(t *testing.T, h *harness){
	func(t *testing.T, h *harness) {
		h.insert(t, verification.TableFormSubmissions, recordstore.Record{
			verification.FieldOrganizationID: "o1",
			verification.FieldUserID:         "u1",
			verification.FieldStepID:         "welcome-introduction",
		})
	},
	func(t *testing.T, h *harness) { h.seedIdentity(t) },
	func(t *testing.T, h *harness) {
		h.insert(t, verification.TableRevenueModels, recordstore.Record{
			verification.FieldOrganizationID: "o1",
			"streams":                        []any{map[string]any{"name": "Services", "amount": 1200}},
		})
	},
	func(t *testing.T, h *harness) {
		h.insert(t, verification.TableTeamMembers, recordstore.Record{verification.FieldOrganizationID: "o1"})
	},
	func(t *testing.T, h *harness) {
		h.insert(t, verification.TableIntegrations, recordstore.Record{
			verification.FieldOrganizationID: "o1",
			verification.FieldStatus:         "active",
		})
	},
}

func TestJourneyProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		h := newHarness(t)
		ctx := context.Background()
		key := onboardingKey()
		tpl, err := h.engine.GetTemplate(ctx, key.PlaybookID)
		require.NoError(rt, err)

		p, err := h.engine.StartPlaybook(ctx, key, nil)
		require.NoError(rt, err)
		id := p.ID()
		stepIDs := tpl.StepIDs()

		steps := rapid.IntRange(1, 12).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			prev, err := h.engine.GetProgress(ctx, key)
			require.NoError(rt, err)

			switch rapid.IntRange(0, 4).Draw(rt, "op") {
			case 0:
				stepID := rapid.SampledFrom(stepIDs).Draw(rt, "step")
				_, err = h.engine.CompletePlaybookItem(ctx, id, stepID, map[string]any{"i": i})
				require.NoError(rt, err)
			case 1:
				_, err = h.engine.CheckAndUpdateStepCompletion(ctx, key)
				require.NoError(rt, err)
			case 2:
				_, _ = h.engine.Pause(ctx, key)
			case 3:
				_, _ = h.engine.Resume(ctx, key)
			case 4:
				rapid.SampledFrom(seeders).Draw(rt, "seed")(t, h)
			}

			cur, err := h.engine.GetProgress(ctx, key)
			require.NoError(rt, err)

			completed := cur.CompletedCount(tpl)
			require.Equal(rt, playbook.Percentage(completed, len(tpl.Steps)), cur.Percentage())
			require.Equal(rt, cur.Percentage() == 100, cur.Status() == playbook.StatusCompleted)

			for _, sid := range stepIDs {
				if prev.IsStepCompleted(sid) {
					require.True(rt, cur.IsStepCompleted(sid), "step %s reverted", sid)
					require.Equal(rt, prev.StepState(sid).AutoCompleted, cur.StepState(sid).AutoCompleted)
				}
			}
			if prev.IsCompleted() {
				require.True(rt, cur.IsCompleted())
				require.Equal(rt, prev.Version(), cur.Version())
			}
		}
	})
}

func TestCheckAndUpdate_IdempotentProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		h := newHarness(t)
		ctx := context.Background()
		key := onboardingKey()

		_, err := h.engine.StartPlaybook(ctx, key, nil)
		require.NoError(rt, err)
		for _, seed := range seeders {
			if rapid.Bool().Draw(rt, "seed") {
				seed(t, h)
			}
		}

		first, err := h.engine.CheckAndUpdateStepCompletion(ctx, key)
		require.NoError(rt, err)
		second, err := h.engine.CheckAndUpdateStepCompletion(ctx, key)
		require.NoError(rt, err)

		require.Equal(rt, first.Version(), second.Version())
		require.Equal(rt, first.Percentage(), second.Percentage())
		require.Equal(rt, first.Status(), second.Status())
		require.Equal(rt, first.Steps(), second.Steps())
	})
}
