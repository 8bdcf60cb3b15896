package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/playbook/internal/playbook"
	"github.com/zjrosen/playbook/internal/presentation"
)

var (
	startMetadata string
	completeData  string
)

var startCmd = &cobra.Command{
	Use:   "start <playbook-id>",
	Short: "Start a journey through a playbook",
	Long: `Start a journey for the current user and organization. Starting an existing
journey returns it unchanged. Steps already satisfied by business data are
completed immediately.

Examples:
  playbook start onboarding-v1 --user u1 --org o1
  playbook start onboarding-v1 --metadata '{"source":"signup"}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		metadata, err := parseJSONObject("metadata", startMetadata)
		if err != nil {
			return err
		}
		return runKeyed(cmd, args[0], func(ctx context.Context, rt *runtime, key playbook.Key) (*playbook.Progress, error) {
			return rt.engine.StartPlaybook(ctx, key, metadata)
		})
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <playbook-id>",
	Short: "Re-verify pending steps of a journey",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runKeyed(cmd, args[0], func(ctx context.Context, rt *runtime, key playbook.Key) (*playbook.Progress, error) {
			return rt.engine.CheckAndUpdateStepCompletion(ctx, key)
		})
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete <playbook-id> <step-id>",
	Short: "Submit a step of a journey",
	Long: `Mark a step completed. The submission is always recorded in the audit trail,
even when the step was already completed.

Examples:
  playbook complete onboarding-v1 welcome-introduction
  playbook complete onboarding-v1 business-identity --data '{"company_name":"Acme"}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := parseJSONObject("data", completeData)
		if err != nil {
			return err
		}
		stepID := args[1]
		return runKeyed(cmd, args[0], func(ctx context.Context, rt *runtime, key playbook.Key) (*playbook.Progress, error) {
			progress, err := rt.engine.GetProgress(ctx, key)
			if err != nil {
				return nil, err
			}
			return rt.engine.CompletePlaybookItem(ctx, progress.ID(), stepID, data)
		})
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause <playbook-id>",
	Short: "Pause an in-progress journey",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runKeyed(cmd, args[0], func(ctx context.Context, rt *runtime, key playbook.Key) (*playbook.Progress, error) {
			return rt.engine.Pause(ctx, key)
		})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <playbook-id>",
	Short: "Resume a paused journey",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runKeyed(cmd, args[0], func(ctx context.Context, rt *runtime, key playbook.Key) (*playbook.Progress, error) {
			return rt.engine.Resume(ctx, key)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <playbook-id>",
	Short: "Show per-step verification status without changing anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := journeyKey(args[0])
		if err != nil {
			return err
		}
		return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
			report, err := rt.engine.GetStepCompletionStatus(ctx, key)
			if err != nil {
				return err
			}
			return presentation.NewFormatter(cmd.OutOrStdout()).FormatStatus(presentation.FromStatusReport(report))
		})
	},
}

var journeysListCmd = &cobra.Command{
	Use:   "journeys:list",
	Short: "List the journeys of the current user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		userID, orgID, err := identity()
		if err != nil {
			return err
		}
		return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
			list, err := rt.engine.ListProgress(ctx, userID, orgID)
			if err != nil {
				return err
			}
			return presentation.NewFormatter(cmd.OutOrStdout()).FormatProgressList(presentation.FromProgressList(list))
		})
	},
}

var responsesListCmd = &cobra.Command{
	Use:   "responses:list <playbook-id>",
	Short: "List the step submissions of a journey, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := journeyKey(args[0])
		if err != nil {
			return err
		}
		return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
			progress, err := rt.engine.GetProgress(ctx, key)
			if err != nil {
				return err
			}
			responses, err := rt.engine.ListStepResponses(ctx, progress.ID())
			if err != nil {
				return err
			}
			return presentation.NewFormatter(cmd.OutOrStdout()).FormatStepResponses(presentation.FromStepResponses(responses))
		})
	},
}

func init() {
	startCmd.Flags().StringVar(&startMetadata, "metadata", "", "JSON object stored with the journey on first start")
	completeCmd.Flags().StringVar(&completeData, "data", "", "JSON object submitted with the step")

	rootCmd.AddCommand(startCmd, checkCmd, completeCmd, pauseCmd, resumeCmd,
		statusCmd, journeysListCmd, responsesListCmd)
}

// runKeyed resolves the journey key, runs op and prints the journey.
func runKeyed(cmd *cobra.Command, playbookID string, op func(context.Context, *runtime, playbook.Key) (*playbook.Progress, error)) error {
	key, err := journeyKey(playbookID)
	if err != nil {
		return err
	}
	return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
		progress, err := op(ctx, rt, key)
		if err != nil {
			return err
		}
		return presentation.NewFormatter(cmd.OutOrStdout()).FormatProgress(presentation.FromProgress(progress))
	})
}

func journeyKey(playbookID string) (playbook.Key, error) {
	userID, orgID, err := identity()
	if err != nil {
		return playbook.Key{}, err
	}
	return playbook.Key{UserID: userID, OrganizationID: orgID, PlaybookID: playbookID}, nil
}

// parseJSONObject decodes a flag value into a map. Empty input yields nil.
func parseJSONObject(flag, raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("--%s must be a JSON object: %w", flag, err)
	}
	return out, nil
}
