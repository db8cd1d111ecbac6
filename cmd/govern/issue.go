package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/regsuite/governance/internal/types"
)

var issueCmd = &cobra.Command{
	Use:     "issue",
	GroupID: "issues",
	Short:   "Manage data governance issues",
	Long: `Manage data governance issues.

Issues track data quality and process problems impacting reports or CDEs.
Critical open issues block agent triggering and cycle resumption for the
reports they impact. Resolution is four-eyes: the verifier must differ
from the implementer.

Examples:
  govern issue create --title "FX rates stale" --severity critical --report ffiec-031
  govern issue escalate iss-a1b2 --reason "No movement for 3 days"
  govern issue resolve iss-a1b2 --type data_correction --implemented-by analyst1 --verified-by lead2
  govern issue list --open`,
}

var (
	issueCreateTitle    string
	issueCreateDesc     string
	issueCreateSeverity string
	issueCreateReports  []string
	issueCreateCDEs     []string
)

var issueCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an issue",
	Run: func(cmd *cobra.Command, args []string) {
		issue, err := issueMgr.Create(rootCtx, &types.Issue{
			Title:           issueCreateTitle,
			Description:     issueCreateDesc,
			Severity:        types.Severity(issueCreateSeverity),
			ImpactedReports: issueCreateReports,
			ImpactedCDEs:    issueCreateCDEs,
		}, actorFlag)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(issue)
			return
		}
		fmt.Printf("Created %s issue %s\n", issue.Severity, issue.ID)
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "Show an issue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		issue, err := issueMgr.Get(rootCtx, args[0])
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(issue)
			return
		}
		fmt.Printf("%s [%s/%s] %s\n", issue.ID, issue.Severity, issue.Status, issue.Title)
		if len(issue.ImpactedReports) > 0 {
			fmt.Printf("  impacts reports: %v\n", issue.ImpactedReports)
		}
		if issue.EscalationLevel > 0 {
			fmt.Printf("  escalation level: %d\n", issue.EscalationLevel)
		}
		if issue.Resolution != nil {
			fmt.Printf("  resolved: %s (implemented by %s, verified by %s)\n",
				issue.Resolution.Type, issue.Resolution.ImplementedBy, issue.Resolution.VerifiedBy)
		}
	},
}

var issueEscalateReason string

var issueEscalateCmd = &cobra.Command{
	Use:   "escalate <issue-id>",
	Short: "Escalate an issue one level",
	Long: `Escalate an issue one level.

Escalating a critical issue also records a senior management notification
in the audit trail.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		issue, err := issueMgr.Escalate(rootCtx, args[0], actorFlag, issueEscalateReason)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(issue)
			return
		}
		fmt.Printf("Issue %s escalated to level %d\n", issue.ID, issue.EscalationLevel)
	},
}

var (
	issueResolveType        string
	issueResolveDesc        string
	issueResolveImplementer string
	issueResolveVerifier    string
)

var issueResolveCmd = &cobra.Command{
	Use:   "resolve <issue-id>",
	Short: "Resolve an issue (four-eyes)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		issue, err := issueMgr.Resolve(rootCtx, args[0], issueResolveType, issueResolveDesc,
			issueResolveImplementer, issueResolveVerifier)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(issue)
			return
		}
		fmt.Printf("Issue %s resolved (%s)\n", issue.ID, issue.Resolution.Type)
	},
}

var (
	issueListOpen     bool
	issueListSeverity string
	issueListReport   string
)

var issueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List issues",
	Run: func(cmd *cobra.Command, args []string) {
		filter := types.IssueFilter{OpenOnly: issueListOpen}
		if issueListSeverity != "" {
			sev := types.Severity(issueListSeverity)
			filter.Severity = &sev
		}
		if issueListReport != "" {
			filter.ImpactedReport = &issueListReport
		}
		list, err := issueMgr.List(rootCtx, filter)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(list)
			return
		}
		for _, i := range list {
			fmt.Printf("  %-16s %-9s %-21s %s\n", i.ID, i.Severity, i.Status, i.Title)
		}
	},
}

var issueMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show aggregate issue metrics",
	Run: func(cmd *cobra.Command, args []string) {
		metrics, err := issueMgr.Metrics(rootCtx)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(metrics)
			return
		}
		fmt.Printf("Open: %d  Resolved: %d  Total: %d\n", metrics.OpenCount, metrics.ResolvedCount, metrics.TotalCount)
		for _, sev := range types.Severities {
			if n := metrics.OpenBySeverity[sev]; n > 0 {
				fmt.Printf("  %-9s %d\n", sev, n)
			}
		}
		if metrics.AvgResolutionTime > 0 {
			fmt.Printf("Avg resolution time: %s\n", metrics.AvgResolutionTime)
		}
	},
}

func init() {
	issueCreateCmd.Flags().StringVar(&issueCreateTitle, "title", "", "Issue title")
	issueCreateCmd.Flags().StringVar(&issueCreateDesc, "description", "", "Issue description")
	issueCreateCmd.Flags().StringVar(&issueCreateSeverity, "severity", string(types.SeverityMedium), "Severity (critical, high, medium, low)")
	issueCreateCmd.Flags().StringSliceVar(&issueCreateReports, "report", nil, "Impacted report id (repeatable)")
	issueCreateCmd.Flags().StringSliceVar(&issueCreateCDEs, "cde", nil, "Impacted CDE id (repeatable)")
	_ = issueCreateCmd.MarkFlagRequired("title")

	issueEscalateCmd.Flags().StringVar(&issueEscalateReason, "reason", "", "Escalation reason")

	issueResolveCmd.Flags().StringVar(&issueResolveType, "type", "", "Resolution type (e.g. data_correction, process_change)")
	issueResolveCmd.Flags().StringVar(&issueResolveDesc, "description", "", "Resolution description")
	issueResolveCmd.Flags().StringVar(&issueResolveImplementer, "implemented-by", "", "Actor who implemented the fix")
	issueResolveCmd.Flags().StringVar(&issueResolveVerifier, "verified-by", "", "Actor who verified the fix (must differ)")
	_ = issueResolveCmd.MarkFlagRequired("type")
	_ = issueResolveCmd.MarkFlagRequired("implemented-by")
	_ = issueResolveCmd.MarkFlagRequired("verified-by")

	issueListCmd.Flags().BoolVar(&issueListOpen, "open", false, "Only open issues")
	issueListCmd.Flags().StringVar(&issueListSeverity, "severity", "", "Filter by severity")
	issueListCmd.Flags().StringVar(&issueListReport, "report", "", "Filter by impacted report")

	issueCmd.AddCommand(issueCreateCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueEscalateCmd)
	issueCmd.AddCommand(issueResolveCmd)
	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueMetricsCmd)
	rootCmd.AddCommand(issueCmd)
}
