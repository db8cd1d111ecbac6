package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/regsuite/governance/internal/types"
	"github.com/regsuite/governance/internal/workflow"
)

var catalogCmd = &cobra.Command{
	Use:     "catalog",
	GroupID: "catalog",
	Short:   "Manage the report catalog",
	Long: `Manage the tenant's report catalog.

The catalog is the reviewed inventory of regulatory filing obligations.
It moves through draft -> pending_review -> approved; cycles can only be
started against an approved catalog. Any modification of an approved
catalog resets it to draft and clears the approval.

Examples:
  govern catalog show
  govern catalog add report.yaml
  govern catalog submit
  govern catalog approve --rationale "Q3 obligations reviewed"
  govern catalog remove ffiec-031`,
}

var catalogShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the catalog and its review state",
	Run: func(cmd *cobra.Command, args []string) {
		catalog, err := engine.GetCatalog(rootCtx)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(catalog)
			return
		}
		fmt.Printf("Catalog v%d (%s)\n", catalog.Version, catalog.Status)
		if catalog.ApprovedBy != "" {
			fmt.Printf("Approved by %s at %s\n", catalog.ApprovedBy, catalog.ApprovedAt.Format("2006-01-02 15:04"))
		}
		for _, r := range catalog.Reports {
			fmt.Printf("  %-16s %-30s %s/%s\n", r.ID, r.Name, r.Jurisdiction, r.Regulator)
		}
	},
}

var catalogAddCmd = &cobra.Command{
	Use:   "add <report.yaml>",
	Short: "Add a report definition to the catalog",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		report, err := readReportFile(args[0])
		if err != nil {
			fail(err)
		}
		applyCatalogChange(&workflow.ReportChange{Type: workflow.ChangeAdded, Report: report})
	},
}

var catalogUpdateCmd = &cobra.Command{
	Use:   "update <report.yaml>",
	Short: "Update a report definition in the catalog",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		report, err := readReportFile(args[0])
		if err != nil {
			fail(err)
		}
		applyCatalogChange(&workflow.ReportChange{Type: workflow.ChangeUpdated, Report: report})
	},
}

var catalogRemoveCmd = &cobra.Command{
	Use:   "remove <report-id>",
	Short: "Remove a report from the catalog",
	Long: `Remove a report from the catalog.

Removal is rejected while any active or paused cycle references the
report.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		applyCatalogChange(&workflow.ReportChange{Type: workflow.ChangeRemoved, ReportID: args[0]})
	},
}

var catalogSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit the draft catalog for review",
	Run: func(cmd *cobra.Command, args []string) {
		catalog, err := engine.SubmitForReview(rootCtx, actorFlag, tokenFlag)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(catalog)
			return
		}
		fmt.Printf("Catalog v%d submitted for review\n", catalog.Version)
	},
}

var catalogApproveRationale string

var catalogApproveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Approve the catalog under review",
	Run: func(cmd *cobra.Command, args []string) {
		catalog, err := engine.ApproveCatalog(rootCtx, actorFlag, catalogApproveRationale, tokenFlag)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(catalog)
			return
		}
		fmt.Printf("Catalog v%d approved by %s\n", catalog.Version, catalog.ApprovedBy)
	},
}

func readReportFile(path string) (*types.RegulatoryReport, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied
	if err != nil {
		return nil, fmt.Errorf("read report file: %w", err)
	}
	var report types.RegulatoryReport
	if err := yaml.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("parse report file: %w", err)
	}
	return &report, nil
}

func applyCatalogChange(change *workflow.ReportChange) {
	catalog, err := engine.ModifyCatalog(rootCtx, change, actorFlag, tokenFlag)
	if err != nil {
		fail(err)
	}
	if jsonOutput {
		outputJSON(catalog)
		return
	}
	fmt.Printf("Catalog now v%d (%s), %d reports\n", catalog.Version, catalog.Status, len(catalog.Reports))
}

func init() {
	catalogApproveCmd.Flags().StringVar(&catalogApproveRationale, "rationale", "", "Approval rationale recorded in the audit trail")

	catalogCmd.AddCommand(catalogShowCmd)
	catalogCmd.AddCommand(catalogAddCmd)
	catalogCmd.AddCommand(catalogUpdateCmd)
	catalogCmd.AddCommand(catalogRemoveCmd)
	catalogCmd.AddCommand(catalogSubmitCmd)
	catalogCmd.AddCommand(catalogApproveCmd)
	rootCmd.AddCommand(catalogCmd)
}
