package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var questionCmd = &cobra.Command{
	Use:   "question",
	Short: "Manage open fact questions",
}

var questionListCmd = &cobra.Command{
	Use:   "list <planID>",
	Short: "List a plan's questions, most urgent first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, _, cleanup, err := buildApp()
		if err != nil {
			return err
		}
		defer cleanup()

		questions, err := application.ListQuestions(args[0])
		if err != nil {
			return err
		}
		if len(questions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No open questions.")
			return nil
		}
		for _, q := range questions {
			status := " "
			if q.Status == "answered" {
				status = "x"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s  (p%d, %s)\n      %s\n", status, q.ID, q.Priority, q.SectionKey, q.Text)
		}
		return nil
	},
}

var questionAnswerCmd = &cobra.Command{
	Use:   "answer <questionID> <answer>",
	Short: "Answer a question and resolve its placeholder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, _, cleanup, err := buildApp()
		if err != nil {
			return err
		}
		defer cleanup()

		q, err := application.AnswerQuestion(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Answered question %s in section %s\n", q.ID, q.SectionKey)
		return nil
	},
}

func init() {
	questionCmd.AddCommand(questionListCmd, questionAnswerCmd)
	rootCmd.AddCommand(questionCmd)
}
