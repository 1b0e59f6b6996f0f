package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/resolution-cli/internal/model"
)

var promptFlags jobFlags

var promptCmd = &cobra.Command{
	Use:   "prompt <question>",
	Short: "Compile a question into a prompt spec and tool plan",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := newRunContext(cmd.Context())
		defer stop()

		env, err := initResolve(ctx, "gateway")
		if err != nil {
			return err
		}
		defer env.Close()

		job := promptFlags.apply(cmd, defaultJob())
		job.Prompt.UserInput = strings.Join(args, " ")

		st, err := env.NewOrchestrator().RunPrompt(ctx, job.Prompt)
		if err != nil {
			formatStages(os.Stderr, st)
			return err
		}

		return writeJSON(os.Stdout, struct {
			RunID      string            `json:"run_id"`
			PromptSpec *model.PromptSpec `json:"prompt_spec"`
			ToolPlan   *model.ToolPlan   `json:"tool_plan"`
		}{st.RunID, st.PromptSpec, st.ToolPlan})
	},
}

func init() {
	promptFlags.register(promptCmd, false)
	rootCmd.AddCommand(promptCmd)
}
