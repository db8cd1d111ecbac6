package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/regsuite/governance/internal/auditchain"
	"github.com/regsuite/governance/internal/types"
)

var auditCmd = &cobra.Command{
	Use:     "audit",
	GroupID: "audit",
	Short:   "Inspect and verify the audit trail",
	Long: `Inspect and verify the hash-chained audit trail.

Every governance mutation appends an immutable entry whose hash covers the
entry and links to its predecessor. Verification recomputes every hash;
exports carry a Merkle root so a slice of the chain can be checked without
access to the live store.

The chain persists to .governance/audit.yaml between invocations and is
re-verified every time it loads; a tampered file is rejected outright.

Examples:
  govern audit list --action approve_catalog
  govern audit verify
  govern audit export --out chain.json
  govern audit verify-export chain.json
  govern audit proof aud-x1y2z3`,
}

var (
	auditListActor  string
	auditListAction string
	auditListEntity string
	auditListLimit  int
)

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit entries",
	Run: func(cmd *cobra.Command, args []string) {
		entries, err := auditLog.List(rootCtx, types.AuditFilter{
			Actor:    auditListActor,
			Action:   auditListAction,
			EntityID: auditListEntity,
			Limit:    auditListLimit,
		})
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(entries)
			return
		}
		for _, e := range entries {
			fmt.Printf("  #%-4d %s  %-24s %-12s %s/%s\n",
				e.SequenceNumber, e.Timestamp.Format("2006-01-02 15:04:05"),
				e.Action, e.Actor, e.EntityType, e.EntityID)
		}
	},
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify chain integrity",
	Run: func(cmd *cobra.Command, args []string) {
		result := auditLog.VerifyChain(rootCtx, 0, -1)
		if jsonOutput {
			outputJSON(result)
			return
		}
		printVerification(result)
	},
}

var auditExportOut string

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the chain with its Merkle root",
	Run: func(cmd *cobra.Command, args []string) {
		export, err := auditLog.Export(rootCtx, 0, -1)
		if err != nil {
			fail(err)
		}
		if auditExportOut == "" {
			outputJSON(export)
			return
		}
		data, err := json.MarshalIndent(export, "", "  ")
		if err != nil {
			fail(err)
		}
		if err := os.WriteFile(auditExportOut, data, 0o644); err != nil {
			fail(err)
		}
		fmt.Printf("Exported %d entries to %s (merkle root %s)\n",
			len(export.Entries), auditExportOut, export.MerkleRoot)
	},
}

var auditVerifyExportCmd = &cobra.Command{
	Use:   "verify-export <export.json>",
	Short: "Verify a previously exported chain slice",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		data, err := os.ReadFile(args[0]) //nolint:gosec // path is operator-supplied
		if err != nil {
			fail(err)
		}
		var export auditchain.Export
		if err := json.Unmarshal(data, &export); err != nil {
			fail(fmt.Errorf("parse export: %w", err))
		}
		result := auditchain.VerifyExport(&export)
		if jsonOutput {
			outputJSON(result)
			return
		}
		printVerification(result)
	},
}

var auditProofCmd = &cobra.Command{
	Use:   "proof <entry-id>",
	Short: "Produce a Merkle inclusion proof for an entry",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		proof, err := auditLog.Proof(rootCtx, args[0])
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(proof)
			return
		}
		fmt.Printf("Entry %s\n  hash: %s\n  root: %s\n  path: %d steps\n",
			proof.EntryID, proof.EntryHash, proof.MerkleRoot, len(proof.Path))
		if auditchain.VerifyProof(proof) {
			fmt.Println("  proof verifies")
		} else {
			fmt.Println("  PROOF DOES NOT VERIFY")
			os.Exit(1)
		}
	},
}

func printVerification(result auditchain.VerificationResult) {
	if result.IsValid {
		fmt.Printf("Chain valid: %d entries checked (merkle root %s)\n", result.EntriesChecked, result.MerkleRoot)
		return
	}
	fmt.Printf("CHAIN INVALID after %d entries", result.EntriesChecked)
	if result.FirstInvalidSequence != nil {
		fmt.Printf(" (first invalid sequence %d)", *result.FirstInvalidSequence)
	}
	if result.Error != "" {
		fmt.Printf(": %s", result.Error)
	}
	fmt.Println()
	os.Exit(1)
}

func init() {
	auditListCmd.Flags().StringVar(&auditListActor, "actor", "", "Filter by actor")
	auditListCmd.Flags().StringVar(&auditListAction, "action", "", "Filter by action")
	auditListCmd.Flags().StringVar(&auditListEntity, "entity", "", "Filter by entity id")
	auditListCmd.Flags().IntVar(&auditListLimit, "limit", 0, "Maximum entries returned")
	auditExportCmd.Flags().StringVar(&auditExportOut, "out", "", "Write the export to a file instead of stdout")

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditExportCmd)
	auditCmd.AddCommand(auditVerifyExportCmd)
	auditCmd.AddCommand(auditProofCmd)
	rootCmd.AddCommand(auditCmd)
}
