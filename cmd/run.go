package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glowus/planpress/internal/event"
)

var runCmd = &cobra.Command{
	Use:   "run <planID>",
	Short: "Run the generation pipeline for a plan",
	Long: `Starts the eight-stage pipeline for the plan and streams stage
progress to stdout until the job reaches a terminal status.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, _, cleanup, err := buildApp()
		if err != nil {
			return err
		}
		defer cleanup()

		j, err := application.StartPipeline(args[0])
		if err != nil {
			return err
		}

		events, cancel, err := application.Jobs.Subscribe(j.ID)
		if err != nil {
			return err
		}
		defer cancel()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Job %s started\n", j.ID)
		for ev := range events {
			switch ev.Type {
			case event.TypeStageProgress:
				fmt.Fprintf(out, "  stage %d %-10s %3d%%  %s\n", ev.Stage, ev.Status, ev.Progress, ev.Message)
			case event.TypeJobCompleted:
				fmt.Fprintln(out, "Job completed")
			case event.TypeJobFailed:
				fmt.Fprintf(out, "Job failed: %s\n", ev.Error)
			case event.TypeJobCancelled:
				fmt.Fprintln(out, "Job cancelled")
			}
		}

		final, err := application.GetJob(j.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Final status: %s (%d%%)\n", final.Status, final.Progress)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
