package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/regsuite/governance/internal/storage"
	"github.com/regsuite/governance/internal/types"
	"github.com/regsuite/governance/internal/workflow"
)

var cycleCmd = &cobra.Command{
	Use:     "cycle",
	GroupID: "cycles",
	Short:   "Manage report cycles",
	Long: `Manage report cycles.

A cycle runs one report through the phase pipeline (data_gathering ->
validation -> review -> approval -> submission). Each phase has a
checkpoint of required role approvals that must be satisfied before
advancing. Completion additionally requires an approved attestation task.

Examples:
  govern cycle start ffiec-031 --period-end 2026-06-30
  govern cycle advance cyc-a1b2c3 --rationale "All validation checks green"
  govern cycle trigger cyc-a1b2c3 data_quality_rule
  govern cycle pause cyc-a1b2c3 --reason "Upstream feed outage"`,
}

var cyclePeriodEnd string

var cycleStartCmd = &cobra.Command{
	Use:   "start <report-id>",
	Short: "Start a cycle for a report",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		periodEnd, err := time.Parse("2006-01-02", cyclePeriodEnd)
		if err != nil {
			fail(fmt.Errorf("invalid --period-end (want YYYY-MM-DD): %w", err))
		}
		cycle, err := engine.StartCycle(rootCtx, args[0], periodEnd, actorFlag)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(cycle)
			return
		}
		fmt.Printf("Started cycle %s for %s (period ending %s)\n", cycle.ID, cycle.ReportID, cyclePeriodEnd)
	},
}

var cycleShowCmd = &cobra.Command{
	Use:   "show <cycle-id>",
	Short: "Show a cycle and its checkpoints",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cycle, err := engine.GetCycle(rootCtx, args[0])
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(cycle)
			return
		}
		printCycle(cycle)
	},
}

var cycleListReport string

var cycleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cycles",
	Run: func(cmd *cobra.Command, args []string) {
		cycles, err := engine.ListCycles(rootCtx, storage.CycleFilter{ReportID: cycleListReport})
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(cycles)
			return
		}
		for _, c := range cycles {
			fmt.Printf("  %-20s %-12s %-16s %s\n", c.ID, c.Status, c.CurrentPhase, c.ReportID)
		}
	},
}

var cyclePauseReason string

var cyclePauseCmd = &cobra.Command{
	Use:   "pause <cycle-id>",
	Short: "Pause an active cycle",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cycle, err := engine.PauseCycle(rootCtx, args[0], cyclePauseReason, actorFlag)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(cycle)
			return
		}
		fmt.Printf("Paused %s in %s\n", cycle.ID, cycle.CurrentPhase)
	},
}

var cycleResumeRationale string

var cycleResumeCmd = &cobra.Command{
	Use:   "resume <cycle-id>",
	Short: "Resume a paused cycle",
	Long: `Resume a paused cycle.

Resumption is blocked while an open critical issue impacts the cycle's
report.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cycle, err := engine.ResumeCycle(rootCtx, args[0], actorFlag, cycleResumeRationale)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(cycle)
			return
		}
		fmt.Printf("Resumed %s in %s\n", cycle.ID, cycle.CurrentPhase)
	},
}

var cycleAdvanceRationale string

var cycleAdvanceCmd = &cobra.Command{
	Use:   "advance <cycle-id>",
	Short: "Advance a cycle to the next phase",
	Long: `Advance a cycle to the next phase.

The current phase's checkpoint must have gathered every required role
approval. Advancing out of submission completes the cycle and requires
an approved attestation task.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cycle, err := engine.AdvancePhase(rootCtx, args[0], actorFlag, cycleAdvanceRationale)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(cycle)
			return
		}
		if cycle.Status == types.CycleCompleted {
			fmt.Printf("Cycle %s completed\n", cycle.ID)
		} else {
			fmt.Printf("Cycle %s advanced to %s\n", cycle.ID, cycle.CurrentPhase)
		}
	},
}

var cycleTriggerCmd = &cobra.Command{
	Use:   "trigger <cycle-id> <agent-type>",
	Short: "Trigger a governance agent for a cycle",
	Long: `Trigger a governance agent for a cycle.

Agent types: regulatory_intelligence, data_requirements,
cde_identification, lineage_mapping, data_quality_rule, issue_management,
documentation. Some agents require the cycle to have passed a prerequisite
phase; all are blocked by open critical issues on the cycle's report.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if err := engine.TriggerAgent(rootCtx, args[0], workflow.AgentType(args[1]), actorFlag); err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"cycle_id": args[0], "agent_type": args[1], "status": "triggered"})
			return
		}
		fmt.Printf("Triggered %s for %s\n", args[1], args[0])
	},
}

func printCycle(c *types.CycleInstance) {
	fmt.Printf("%s  report=%s  status=%s  phase=%s\n", c.ID, c.ReportID, c.Status, c.CurrentPhase)
	if c.PauseReason != "" {
		fmt.Printf("  paused: %s\n", c.PauseReason)
	}
	for _, cp := range c.Checkpoints {
		fmt.Printf("  [%s] %-16s required=%v completed=%v\n", cp.Status, cp.Phase, cp.RequiredApprovals, cp.CompletedApprovals)
	}
}

func init() {
	cycleStartCmd.Flags().StringVar(&cyclePeriodEnd, "period-end", "", "Reporting period end date (YYYY-MM-DD)")
	_ = cycleStartCmd.MarkFlagRequired("period-end")
	cycleListCmd.Flags().StringVar(&cycleListReport, "report", "", "Filter by report id")
	cyclePauseCmd.Flags().StringVar(&cyclePauseReason, "reason", "", "Pause reason")
	cycleResumeCmd.Flags().StringVar(&cycleResumeRationale, "rationale", "", "Resume rationale recorded in the audit trail")
	cycleAdvanceCmd.Flags().StringVar(&cycleAdvanceRationale, "rationale", "", "Advance rationale recorded in the audit trail")

	cycleCmd.AddCommand(cycleStartCmd)
	cycleCmd.AddCommand(cycleShowCmd)
	cycleCmd.AddCommand(cycleListCmd)
	cycleCmd.AddCommand(cyclePauseCmd)
	cycleCmd.AddCommand(cycleResumeCmd)
	cycleCmd.AddCommand(cycleAdvanceCmd)
	cycleCmd.AddCommand(cycleTriggerCmd)
	rootCmd.AddCommand(cycleCmd)
}
