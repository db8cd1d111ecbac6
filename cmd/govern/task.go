package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/regsuite/governance/internal/storage"
	"github.com/regsuite/governance/internal/types"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: "cycles",
	Short:   "Manage human tasks on cycles",
	Long: `Manage human tasks attached to report cycles.

Completed approval tasks feed the current phase's checkpoint; a completed
attestation task with an approved outcome gates cycle completion. Every
completion requires a rationale of at least 20 characters.

Examples:
  govern task create cyc-a1b2c3 --type approval --title "Validate Q2 figures" --role data_quality_lead
  govern task complete task-x9y8 approved --rationale "Reviewed against the GL, totals reconcile"
  govern task list --cycle cyc-a1b2c3`,
}

var (
	taskCreateType  string
	taskCreateTitle string
	taskCreateRole  string
	taskCreateUser  string
)

var taskCreateCmd = &cobra.Command{
	Use:   "create <cycle-id>",
	Short: "Create a human task on a cycle",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		task, err := engine.CreateHumanTask(rootCtx, &types.HumanTask{
			CycleID:      args[0],
			Type:         taskCreateType,
			Title:        taskCreateTitle,
			AssignedRole: taskCreateRole,
			AssignedTo:   taskCreateUser,
		}, actorFlag)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(task)
			return
		}
		fmt.Printf("Created %s task %s on %s\n", task.Type, task.ID, task.CycleID)
	},
}

var taskCompleteRationale string

var taskCompleteCmd = &cobra.Command{
	Use:   "complete <task-id> <outcome>",
	Short: "Complete a task with a decision",
	Long: `Complete a task with a decision.

Outcomes: approved, rejected, approved_with_changes. The rationale must be
at least 20 characters; it is stored with the decision and audited.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		task, err := engine.CompleteHumanTask(rootCtx, args[0], types.TaskOutcome(args[1]), taskCompleteRationale, actorFlag)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(task)
			return
		}
		fmt.Printf("Task %s completed: %s\n", task.ID, task.Decision.Outcome)
	},
}

var taskListCycle string

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List human tasks",
	Run: func(cmd *cobra.Command, args []string) {
		tasks, err := engine.ListHumanTasks(rootCtx, storage.TaskFilter{CycleID: taskListCycle})
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(tasks)
			return
		}
		for _, t := range tasks {
			outcome := "-"
			if t.Decision != nil {
				outcome = string(t.Decision.Outcome)
			}
			fmt.Printf("  %-20s %-12s %-11s %-22s %s\n", t.ID, t.Type, t.Status, outcome, t.Title)
		}
	},
}

func init() {
	taskCreateCmd.Flags().StringVar(&taskCreateType, "type", types.TaskTypeApproval, "Task type (approval, attestation, review, remediation)")
	taskCreateCmd.Flags().StringVar(&taskCreateTitle, "title", "", "Task title")
	taskCreateCmd.Flags().StringVar(&taskCreateRole, "role", "", "Role whose checkpoint approval this task carries")
	taskCreateCmd.Flags().StringVar(&taskCreateUser, "assign", "", "User the task is assigned to")
	_ = taskCreateCmd.MarkFlagRequired("title")
	taskCompleteCmd.Flags().StringVar(&taskCompleteRationale, "rationale", "", "Decision rationale (minimum 20 characters)")
	_ = taskCompleteCmd.MarkFlagRequired("rationale")
	taskListCmd.Flags().StringVar(&taskListCycle, "cycle", "", "Filter by cycle id")

	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskCompleteCmd)
	taskCmd.AddCommand(taskListCmd)
	rootCmd.AddCommand(taskCmd)
}
