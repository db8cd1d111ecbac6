package main

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/regsuite/governance/internal/config"
	"github.com/regsuite/governance/internal/taskqueue"
	"github.com/regsuite/governance/internal/types"
)

var queueCmd = &cobra.Command{
	Use:     "queue",
	GroupID: "ops",
	Short:   "Inspect and feed the task queue",
	Long: `Inspect and feed the background task queue.

Tasks are delivered in priority order (critical, high, normal, low) with
per-message delays and visibility timeouts. Failed tasks are redelivered
with exponential backoff and land in the dead-letter queue after retry
exhaustion. Requires a running NATS server (see nats-url in config).

Examples:
  govern queue create governance
  govern queue send governance --type generate_dq_rules --priority 2 --payload '{"cde_id":"cde-a1b2"}'
  govern queue stats governance`,
}

// openQueueProvider connects to the configured NATS server.
func openQueueProvider() taskqueue.Provider {
	nc, err := nats.Connect(config.GetString("nats-url"), nats.Name("govern"))
	if err != nil {
		fail(fmt.Errorf("connect to NATS: %w", err))
	}
	provider, err := taskqueue.NewNATSProvider(nc)
	if err != nil {
		fail(err)
	}
	return provider
}

var queueCreateCmd = &cobra.Command{
	Use:   "create <queue>",
	Short: "Create a queue and its dead-letter companion",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		provider := openQueueProvider()
		defer provider.Close()
		if err := provider.CreateQueue(rootCtx, args[0]); err != nil {
			fail(err)
		}
		fmt.Printf("Created queue %s (and %s%s)\n", args[0], args[0], taskqueue.DLQSuffix)
	},
}

var (
	queueSendType     string
	queueSendPriority int
	queueSendPayload  string
	queueSendDelay    int
)

var queueSendCmd = &cobra.Command{
	Use:   "send <queue>",
	Short: "Enqueue a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var payload map[string]any
		if queueSendPayload != "" {
			if err := json.Unmarshal([]byte(queueSendPayload), &payload); err != nil {
				fail(fmt.Errorf("invalid --payload: %w", err))
			}
		}
		if err := guard.Check(rootCtx, taskqueue.MeterTaskSends, 1); err != nil {
			fail(err)
		}
		provider := openQueueProvider()
		defer provider.Close()
		msg := &types.TaskMessage{
			TaskType:     queueSendType,
			Priority:     types.TaskPriority(queueSendPriority),
			Payload:      payload,
			DelaySeconds: queueSendDelay,
			Retry:        config.RetryPolicy(),
		}
		if err := provider.SendTask(rootCtx, args[0], msg); err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(msg)
			return
		}
		fmt.Printf("Enqueued %s task on %s (%s)\n", msg.TaskType, args[0], msg.Priority)
	},
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats <queue>",
	Short: "Show queue depth and in-flight count",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		provider := openQueueProvider()
		defer provider.Close()
		stats, err := provider.Stats(rootCtx, args[0])
		if err != nil {
			fail(err)
		}
		dlq, err := provider.Stats(rootCtx, args[0]+taskqueue.DLQSuffix)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			outputJSON(map[string]taskqueue.QueueStats{args[0]: stats, args[0] + taskqueue.DLQSuffix: dlq})
			return
		}
		fmt.Printf("%s: %d queued, %d in flight; dlq: %d\n",
			args[0], stats.ApproximateMessageCount, stats.InFlight, dlq.ApproximateMessageCount)
	},
}

func init() {
	queueSendCmd.Flags().StringVar(&queueSendType, "type", "", "Task type")
	queueSendCmd.Flags().IntVar(&queueSendPriority, "priority", int(types.PriorityNormal), "Priority 1 (critical) to 4 (low)")
	queueSendCmd.Flags().StringVar(&queueSendPayload, "payload", "", "JSON payload")
	queueSendCmd.Flags().IntVar(&queueSendDelay, "delay", 0, "Delay in seconds before the task becomes visible")
	_ = queueSendCmd.MarkFlagRequired("type")

	queueCmd.AddCommand(queueCreateCmd)
	queueCmd.AddCommand(queueSendCmd)
	queueCmd.AddCommand(queueStatsCmd)
	rootCmd.AddCommand(queueCmd)
}
