package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/glowus/planpress/internal/app"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage business plans",
}

var planNewCmd = &cobra.Command{
	Use:   "new <title>",
	Short: "Create a plan from a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		templateKey, _ := cmd.Flags().GetString("template")
		briefFile, _ := cmd.Flags().GetString("brief")

		var brief string
		if briefFile != "" {
			data, err := os.ReadFile(briefFile)
			if err != nil {
				return fmt.Errorf("read brief: %w", err)
			}
			brief = string(data)
		}

		application, _, cleanup, err := buildApp()
		if err != nil {
			return err
		}
		defer cleanup()

		plan, err := application.CreatePlan(app.CreatePlanOptions{
			Title:       args[0],
			TemplateKey: templateKey,
			Brief:       brief,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created plan %s (%s, %d sections)\n", plan.ID, plan.TemplateKey, len(plan.Sections))
		return nil
	},
}

var planListCmd = &cobra.Command{
	Use:   "list",
	Short: "List plans",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, _, cleanup, err := buildApp()
		if err != nil {
			return err
		}
		defer cleanup()

		plans, err := application.ListPlans()
		if err != nil {
			return err
		}
		if len(plans) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No plans found. Create one with 'planpress plan new'.")
			return nil
		}
		for _, p := range plans {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %3d%%  %s\n", p.ID, p.Completion, p.Title)
		}
		return nil
	},
}

var planShowCmd = &cobra.Command{
	Use:   "show <planID>",
	Short: "Show a plan with its sections",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, _, cleanup, err := buildApp()
		if err != nil {
			return err
		}
		defer cleanup()

		plan, err := application.GetPlan(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (%s)\n", plan.Title, plan.ID)
		fmt.Fprintf(out, "Template: %s  Completion: %d%%  Tokens: %d\n\n", plan.TemplateKey, plan.Completion, plan.Usage.Tokens)
		for _, sec := range plan.Sections {
			marker := ""
			if len(sec.Placeholders) > 0 {
				marker = fmt.Sprintf("  [%d open facts]", len(sec.Placeholders))
			}
			fmt.Fprintf(out, "%2d. %-24s %-8s %6d chars%s\n", sec.Order, sec.Title, sec.ValidationStatus, sec.CharCount, marker)
			for _, msg := range sec.ValidationMessages {
				fmt.Fprintf(out, "      %s: %s\n", msg.Severity, msg.Message)
			}
		}
		if plan.Document != "" {
			fmt.Fprintf(out, "\nDocument: %d chars assembled\n", len(plan.Document))
		}
		return nil
	},
}

var planDeleteCmd = &cobra.Command{
	Use:   "delete <planID>",
	Short: "Delete a plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, _, cleanup, err := buildApp()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := application.DeletePlan(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted plan %s\n", args[0])
		return nil
	},
}

var planTemplatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List available plan templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, library, cleanup, err := buildApp()
		if err != nil {
			return err
		}
		defer cleanup()

		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(library.Keys(), "\n"))
		return nil
	},
}

func init() {
	planNewCmd.Flags().String("template", "", "template key (default: built-in business plan)")
	planNewCmd.Flags().String("brief", "", "path to a company brief file ('name: value' lines)")

	planCmd.AddCommand(planNewCmd, planListCmd, planShowCmd, planDeleteCmd, planTemplatesCmd)
	rootCmd.AddCommand(planCmd)
}
