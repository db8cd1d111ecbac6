package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/regsuite/governance/internal/types"
)

var cdeCmd = &cobra.Command{
	Use:     "cde",
	GroupID: "data",
	Short:   "Score data elements and manage the CDE inventory",
	Long: `Score data elements and manage the critical data element inventory.

Scoring is a deterministic weighted sum of four factors (regulatory
impact, financial impact, usage breadth, data sensitivity), each in
[0, 1]. Elements scoring at or above the threshold enter the inventory,
from which per-dimension data quality rules are generated.

Examples:
  govern cde score elements.yaml
  govern cde inventory elements.yaml --threshold 0.7 --rationale
  govern cde show-inventory
  govern cde rules cde-a1b2 --name "Gross loan balance" --dimensions completeness,accuracy`,
}

var cdeWeightsFile string

var cdeScoreCmd = &cobra.Command{
	Use:   "score <elements.yaml>",
	Short: "Score data elements",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		elements, err := readElementsFile(args[0])
		if err != nil {
			fail(err)
		}
		weights, err := readWeightsFile(cdeWeightsFile)
		if err != nil {
			fail(err)
		}
		scores, err := cdeSvc.ScoreElements(elements, weights)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(scores)
			return
		}
		for _, s := range scores {
			fmt.Printf("  %-20s %-30s %.3f\n", s.ElementID, s.ElementName, s.Overall)
		}
	},
}

var (
	cdeInventoryThreshold float64
	cdeInventoryRationale bool
)

var cdeInventoryCmd = &cobra.Command{
	Use:   "inventory <elements.yaml>",
	Short: "Score elements and generate the CDE inventory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		elements, err := readElementsFile(args[0])
		if err != nil {
			fail(err)
		}
		weights, err := readWeightsFile(cdeWeightsFile)
		if err != nil {
			fail(err)
		}
		scores, err := cdeSvc.ScoreElements(elements, weights)
		if err != nil {
			fail(err)
		}
		inv, err := cdeSvc.GenerateInventory(rootCtx, scores, cdeInventoryThreshold, cdeInventoryRationale)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(inv)
			return
		}
		fmt.Printf("Inventory: %d of %d elements at threshold %.3f\n", len(inv.Entries), len(scores), inv.Threshold)
		printInventory(inv)
	},
}

var cdeShowInventoryCmd = &cobra.Command{
	Use:   "show-inventory",
	Short: "Show the saved CDE inventory",
	Run: func(cmd *cobra.Command, args []string) {
		inv, err := cdeSvc.Inventory(rootCtx)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(inv)
			return
		}
		printInventory(inv)
	},
}

var (
	cdeRulesName       string
	cdeRulesDimensions []string
	cdeRulesOwner      string
	cdeRulesThresholds []string
)

var cdeRulesCmd = &cobra.Command{
	Use:   "rules <cde-id>",
	Short: "Generate data quality rules for a CDE",
	Long: `Generate data quality rules for a CDE.

One rule is generated per requested dimension (all seven by default):
completeness, accuracy, validity, consistency, timeliness, uniqueness,
integrity. Thresholds can be overridden per dimension with
--threshold dimension=value.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var dims []types.DQDimension
		for _, d := range cdeRulesDimensions {
			dims = append(dims, types.DQDimension(d))
		}
		custom, err := parseThresholdOverrides(cdeRulesThresholds)
		if err != nil {
			fail(err)
		}
		rules, err := cdeSvc.GenerateDQRules(rootCtx, args[0], cdeRulesName, dims, custom, cdeRulesOwner)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(rules)
			return
		}
		for _, r := range rules {
			fmt.Printf("  %-22s %-13s %-12s %s >= %.3f (%s)\n",
				r.ID, r.Dimension, r.Severity, r.Threshold.Type, r.Threshold.Value, r.Logic.Type)
		}
	},
}

func readElementsFile(path string) ([]*types.DataElement, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied
	if err != nil {
		return nil, fmt.Errorf("read elements file: %w", err)
	}
	var elements []*types.DataElement
	if err := yaml.Unmarshal(data, &elements); err != nil {
		return nil, fmt.Errorf("parse elements file: %w", err)
	}
	return elements, nil
}

func readWeightsFile(path string) (*types.ScoreWeights, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied
	if err != nil {
		return nil, fmt.Errorf("read weights file: %w", err)
	}
	var weights types.ScoreWeights
	if err := yaml.Unmarshal(data, &weights); err != nil {
		return nil, fmt.Errorf("parse weights file: %w", err)
	}
	return &weights, nil
}

func parseThresholdOverrides(pairs []string) (map[types.DQDimension]float64, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[types.DQDimension]float64, len(pairs))
	for _, p := range pairs {
		dim, val, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid threshold override %q (want dimension=value)", p)
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid threshold value in %q: %w", p, err)
		}
		out[types.DQDimension(dim)] = f
	}
	return out, nil
}

func printInventory(inv *types.CDEInventory) {
	for _, e := range inv.Entries {
		fmt.Printf("  %-16s %-30s %.3f\n", e.ID, e.Name, e.Score)
		if e.CriticalityRationale != "" {
			fmt.Printf("    %s\n", e.CriticalityRationale)
		}
	}
}

func init() {
	cdeScoreCmd.Flags().StringVar(&cdeWeightsFile, "weights", "", "YAML file overriding the default factor weights")
	cdeInventoryCmd.Flags().StringVar(&cdeWeightsFile, "weights", "", "YAML file overriding the default factor weights")
	cdeInventoryCmd.Flags().Float64Var(&cdeInventoryThreshold, "threshold", 0.7, "Inclusion threshold (inclusive)")
	cdeInventoryCmd.Flags().BoolVar(&cdeInventoryRationale, "rationale", false, "Record a criticality rationale per entry")

	cdeRulesCmd.Flags().StringVar(&cdeRulesName, "name", "", "CDE display name used in rule names")
	cdeRulesCmd.Flags().StringSliceVar(&cdeRulesDimensions, "dimensions", nil, "Dimensions to generate rules for (default all seven)")
	cdeRulesCmd.Flags().StringVar(&cdeRulesOwner, "owner", "", "Rule owner")
	cdeRulesCmd.Flags().StringArrayVar(&cdeRulesThresholds, "threshold", nil, "Per-dimension threshold override (dimension=value, repeatable)")

	cdeCmd.AddCommand(cdeScoreCmd)
	cdeCmd.AddCommand(cdeInventoryCmd)
	cdeCmd.AddCommand(cdeShowInventoryCmd)
	cdeCmd.AddCommand(cdeRulesCmd)
	rootCmd.AddCommand(cdeCmd)
}
