package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/regsuite/governance/internal/config"
	"github.com/regsuite/governance/internal/scheduler"
	"github.com/regsuite/governance/internal/taskqueue"
	"github.com/regsuite/governance/internal/types"
	"github.com/regsuite/governance/internal/workflow"
)

var (
	serveWorkers      int
	servePollInterval time.Duration
	serveNoScale      bool
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "ops",
	Short:   "Run queue workers and the scheduler until interrupted",
	Long: `Run the background processing loop: a worker pool consuming the task
queue, the auto-scaler adjusting pool size from queue depth, and the
priority scheduler for recurring maintenance work.

Task handlers:
  trigger_agent       payload: cycle_id, agent_type
  escalate_issue      payload: issue_id, reason
  generate_dq_rules   payload: cde_id, cde_name, owner

Stops cleanly on SIGINT/SIGTERM.

Examples:
  govern serve
  govern serve --workers 4 --no-scale`,
	Run: func(cmd *cobra.Command, args []string) {
		if serveWorkers == 0 {
			serveWorkers = config.ScalerConfig().MinWorkers
		}
		provider := openQueueProvider()
		defer provider.Close()

		queueName := config.GetString("queue.name")
		if err := provider.CreateQueue(rootCtx, queueName); err != nil {
			fail(err)
		}

		pool := taskqueue.NewPool(provider, queueName, servePollInterval)
		registerHandlers(pool)
		pool.Start(rootCtx, serveWorkers)

		// Quota limits hot-reload with the config file.
		config.Watch(func() {
			guard.SetLimits(config.QuotaLimits())
		})

		group, ctx := errgroup.WithContext(rootCtx)

		if !serveNoScale {
			scaler := taskqueue.NewAutoScaler(config.ScalerConfig(), pool)
			group.Go(func() error {
				return scaler.Run(ctx, 10*time.Second)
			})
		}

		sched := scheduler.New(scheduler.DefaultConfig())
		if _, err := sched.AddSchedule(&scheduler.ScheduledTask{
			Name:     "verify_audit_chain",
			Priority: 2,
			Interval: time.Hour,
		}); err != nil {
			fail(err)
		}
		group.Go(func() error {
			return sched.Run(ctx, runScheduledTask)
		})

		fmt.Printf("Serving queue %q with %d workers (scaling %v)\n", queueName, serveWorkers, !serveNoScale)
		<-ctx.Done()

		if err := pool.Stop(); err != nil {
			log.Printf("pool shutdown: %v", err)
		}
		_ = group.Wait()
	},
}

// registerHandlers binds the governance task types the workers execute.
func registerHandlers(pool *taskqueue.Pool) {
	pool.RegisterHandler("trigger_agent", func(ctx context.Context, msg *types.TaskMessage) (map[string]any, error) {
		cycleID, _ := msg.Payload["cycle_id"].(string)
		agentType, _ := msg.Payload["agent_type"].(string)
		if err := engine.TriggerAgent(ctx, cycleID, workflow.AgentType(agentType), "worker"); err != nil {
			return nil, err
		}
		return map[string]any{"cycle_id": cycleID, "agent_type": agentType}, nil
	})
	pool.RegisterHandler("escalate_issue", func(ctx context.Context, msg *types.TaskMessage) (map[string]any, error) {
		issueID, _ := msg.Payload["issue_id"].(string)
		reason, _ := msg.Payload["reason"].(string)
		issue, err := issueMgr.Escalate(ctx, issueID, "worker", reason)
		if err != nil {
			return nil, err
		}
		return map[string]any{"issue_id": issue.ID, "escalation_level": issue.EscalationLevel}, nil
	})
	pool.RegisterHandler("generate_dq_rules", func(ctx context.Context, msg *types.TaskMessage) (map[string]any, error) {
		cdeID, _ := msg.Payload["cde_id"].(string)
		cdeName, _ := msg.Payload["cde_name"].(string)
		owner, _ := msg.Payload["owner"].(string)
		rules, err := cdeSvc.GenerateDQRules(ctx, cdeID, cdeName, nil, nil, owner)
		if err != nil {
			return nil, err
		}
		return map[string]any{"cde_id": cdeID, "rule_count": len(rules)}, nil
	})
}

// runScheduledTask executes recurring maintenance work from the scheduler.
func runScheduledTask(ctx context.Context, task *scheduler.ScheduledTask) error {
	switch task.Name {
	case "verify_audit_chain":
		result := auditLog.VerifyChain(ctx, 0, -1)
		if !result.IsValid {
			log.Printf("audit chain verification FAILED: %s", result.Error)
		}
		return nil
	default:
		return fmt.Errorf("unknown scheduled task %q", task.Name)
	}
}

func init() {
	serveCmd.Flags().IntVar(&serveWorkers, "workers", 0, "Initial worker count (default from scaler min_workers)")
	serveCmd.Flags().DurationVar(&servePollInterval, "poll-interval", time.Second, "Worker poll interval")
	serveCmd.Flags().BoolVar(&serveNoScale, "no-scale", false, "Disable the auto-scaler")

	rootCmd.AddCommand(serveCmd)
}
