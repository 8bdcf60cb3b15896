package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/playbook/internal/config"
	"github.com/zjrosen/playbook/internal/log"
	"github.com/zjrosen/playbook/internal/playbook"
	"github.com/zjrosen/playbook/internal/presentation"
)

var onboardingData string

var onboardingStartCmd = &cobra.Command{
	Use:   "onboarding:start",
	Short: "Start the onboarding journey",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runOnboarding(cmd, func(ctx context.Context, rt *runtime, userID, orgID string) (*playbook.Progress, error) {
			return rt.onboarding.Start(ctx, userID, orgID, nil)
		})
	},
}

var onboardingCompleteCmd = &cobra.Command{
	Use:   "onboarding:complete <step-id>",
	Short: "Submit an onboarding step",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := parseJSONObject("data", onboardingData)
		if err != nil {
			return err
		}
		return runOnboarding(cmd, func(ctx context.Context, rt *runtime, userID, orgID string) (*playbook.Progress, error) {
			return rt.onboarding.CompleteStep(ctx, userID, orgID, args[0], data)
		})
	},
}

var onboardingCheckCmd = &cobra.Command{
	Use:   "onboarding:check",
	Short: "Re-verify pending onboarding steps",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runOnboarding(cmd, func(ctx context.Context, rt *runtime, userID, orgID string) (*playbook.Progress, error) {
			return rt.onboarding.Check(ctx, userID, orgID)
		})
	},
}

var onboardingStatusCmd = &cobra.Command{
	Use:   "onboarding:status",
	Short: "Show onboarding step status without changing anything",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		userID, orgID, err := identity()
		if err != nil {
			return err
		}
		return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
			report, err := rt.onboarding.Status(ctx, userID, orgID)
			if err != nil {
				return err
			}
			return presentation.NewFormatter(cmd.OutOrStdout()).FormatStatus(presentation.FromStatusReport(report))
		})
	},
}

var onboardingPinCmd = &cobra.Command{
	Use:   "onboarding:pin <template-id>",
	Short: "Pin the onboarding template in the config file",
	Long: `Pin the onboarding template when more than one template has the onboarding
category. The template must exist and be an onboarding template.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		templateID := args[0]
		err := withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
			t, err := rt.engine.GetTemplate(ctx, templateID)
			if err != nil {
				return err
			}
			if t.Category != playbook.CategoryOnboarding {
				return fmt.Errorf("template %s has category %s, not onboarding", t.ID, t.Category)
			}
			return nil
		})
		if err != nil {
			return err
		}

		path := configFilePath()
		if err := config.SaveOnboardingTemplateID(path, templateID); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		log.Info(log.CatConfig, "Pinned onboarding template", "template", templateID, "config", path)
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Pinned onboarding template %s in %s\n", templateID, path)
		return err
	},
}

func init() {
	onboardingCompleteCmd.Flags().StringVar(&onboardingData, "data", "", "JSON object submitted with the step")

	rootCmd.AddCommand(onboardingStartCmd, onboardingCompleteCmd, onboardingCheckCmd,
		onboardingStatusCmd, onboardingPinCmd)
}

func runOnboarding(cmd *cobra.Command, op func(ctx context.Context, rt *runtime, userID, orgID string) (*playbook.Progress, error)) error {
	userID, orgID, err := identity()
	if err != nil {
		return err
	}
	return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
		progress, err := op(ctx, rt, userID, orgID)
		if err != nil {
			return err
		}
		return presentation.NewFormatter(cmd.OutOrStdout()).FormatProgress(presentation.FromProgress(progress))
	})
}
