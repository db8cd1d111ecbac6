// Command govern is the CLI for the regulatory data governance engine.
//
// It manages the report catalog, report cycles, governance issues, the
// audit trail, CDE scoring and the background task queue. State is held in
// the in-memory reference store and snapshotted to .governance/state.yaml
// between invocations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/regsuite/governance/internal/auditchain"
	"github.com/regsuite/governance/internal/cde"
	"github.com/regsuite/governance/internal/config"
	"github.com/regsuite/governance/internal/eventbus"
	"github.com/regsuite/governance/internal/issues"
	"github.com/regsuite/governance/internal/metering"
	"github.com/regsuite/governance/internal/storage/memory"
	"github.com/regsuite/governance/internal/telemetry"
	"github.com/regsuite/governance/internal/tenant"
	"github.com/regsuite/governance/internal/types"
	"github.com/regsuite/governance/internal/workflow"
)

// Version and Build are set at link time.
var (
	Version = "dev"
	Build   = "unknown"
)

var (
	jsonOutput bool
	tenantFlag string
	actorFlag  string
	tokenFlag  string

	rootCtx    context.Context
	rootCancel context.CancelFunc

	store    *memory.Store
	auditLog *auditchain.Store
	bus      *eventbus.Bus
	engine   *workflow.Engine
	issueMgr *issues.Manager
	cdeSvc   *cde.Service
	meterSvc *metering.Service
	guard    *metering.Guard
)

var rootCmd = &cobra.Command{
	Use:   "govern",
	Short: "govern - Regulatory data governance engine",
	Long:  `Report catalog, phased report cycles, issue management and a hash-chained audit trail for regulatory data governance.`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("govern version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := config.Initialize(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		setupSignalContext()

		if err := telemetry.Init(rootCtx, "govern", Version); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: telemetry init failed: %v\n", err)
		}

		if !cmd.Flags().Changed("json") {
			jsonOutput = config.GetBool("json")
		}
		rootCtx = tenant.WithBinding(rootCtx, tenant.NewBinding(
			resolveTenant(), resolveActor(), types.ActorHuman,
		))

		openServices()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		saveState()
		if store != nil {
			_ = store.Close()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		telemetry.Shutdown(shutdownCtx)
		cancel()
		if rootCancel != nil {
			rootCancel()
		}
	},
}

// setupSignalContext installs a context cancelled on SIGINT/SIGTERM so
// long-running commands (serve) shut down cleanly.
func setupSignalContext() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func resolveTenant() string {
	if tenantFlag != "" {
		return tenantFlag
	}
	if t := config.GetString("tenant"); t != "" {
		return t
	}
	return "default"
}

func resolveActor() string {
	if actorFlag != "" {
		return actorFlag
	}
	return config.GetString("actor")
}

// openServices wires the store, audit chain, event bus and domain services,
// restoring state from the snapshot when one exists.
func openServices() {
	store = memory.New()
	if path := statePath(); path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := store.LoadSnapshot(path); err != nil {
				fmt.Fprintf(os.Stderr, "Error loading state: %v\n", err)
				os.Exit(1)
			}
		}
	}

	st := telemetry.WrapStorage(store)
	auditLog = auditchain.NewStore()
	if path := auditPath(); path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := auditLog.LoadSnapshot(path); err != nil {
				fmt.Fprintf(os.Stderr, "Error loading audit trail: %v\n", err)
				os.Exit(1)
			}
		}
	}
	bus = eventbus.New()
	meterSvc = metering.NewService()
	guard = metering.NewGuard(meterSvc, config.QuotaLimits())
	issueMgr = issues.New(st, auditLog, bus)

	opts := []workflow.Option{
		workflow.WithBus(bus),
		workflow.WithGuard(guard),
	}
	if secret := config.GetString("identity.secret"); secret != "" {
		opts = append(opts, workflow.WithVerifier(tenant.NewVerifier(secret)))
	}
	engine = workflow.New(st, auditLog, issueMgr, opts...)
	cdeSvc = cde.New(st, auditLog)
}

// governanceDir returns the nearest .governance directory, or "" when the
// command runs outside a governance workspace.
func governanceDir() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for dir := cwd; ; dir = filepath.Dir(dir) {
		govDir := filepath.Join(dir, ".governance")
		if info, err := os.Stat(govDir); err == nil && info.IsDir() {
			return govDir
		}
		if dir == filepath.Dir(dir) {
			return ""
		}
	}
}

func statePath() string {
	if dir := governanceDir(); dir != "" {
		return filepath.Join(dir, "state.yaml")
	}
	return ""
}

func auditPath() string {
	if dir := governanceDir(); dir != "" {
		return filepath.Join(dir, "audit.yaml")
	}
	return ""
}

func saveState() {
	if store == nil {
		return
	}
	path := statePath()
	if path == "" {
		return
	}
	if err := store.SaveSnapshot(path); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving state: %v\n", err)
		os.Exit(1)
	}
	if err := auditLog.SaveSnapshot(auditPath()); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving audit trail: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&tenantFlag, "tenant", "", "Tenant id (default from config)")
	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "Actor recorded in the audit trail")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "Signed identity token for privileged operations")
	rootCmd.Flags().BoolP("version", "v", false, "Show version")

	rootCmd.AddGroup(&cobra.Group{ID: "catalog", Title: "Report Catalog:"})
	rootCmd.AddGroup(&cobra.Group{ID: "cycles", Title: "Report Cycles:"})
	rootCmd.AddGroup(&cobra.Group{ID: "issues", Title: "Governance Issues:"})
	rootCmd.AddGroup(&cobra.Group{ID: "data", Title: "Data Elements & Quality:"})
	rootCmd.AddGroup(&cobra.Group{ID: "audit", Title: "Audit Trail:"})
	rootCmd.AddGroup(&cobra.Group{ID: "ops", Title: "Operations:"})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
