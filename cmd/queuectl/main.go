package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/saxslab/sasjobs-backend/internal/config"
	"github.com/saxslab/sasjobs-backend/internal/logger"
	"github.com/saxslab/sasjobs-backend/internal/queue"
)

// queuectl is the operator CLI for poking at the broker directly:
// inspecting queue depths, pausing intake during maintenance and
// draining stuck queues.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openHandle(name string) (queue.Handle, func(), error) {
	_ = godotenv.Load()

	log, err := logger.New("prod")
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(log)
	if err != nil {
		return nil, nil, err
	}
	rdb, err := queue.NewRedisClient(cfg.RedisAddr)
	if err != nil {
		return nil, nil, err
	}
	h := queue.NewRedisHandle(log, rdb, cfg.RedisPrefix, name, cfg.AttemptsFor(name))
	cleanup := func() {
		_ = h.Close()
		_ = rdb.Close()
		log.Sync()
	}
	return h, cleanup, nil
}

func validQueue(name string) error {
	for _, q := range queue.KnownQueues() {
		if q == name {
			return nil
		}
	}
	return fmt.Errorf("unknown queue %q (known: %v)", name, queue.KnownQueues())
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "queuectl",
		Short:        "Inspect and manage the job queues",
		SilenceUsage: true,
	}
	root.AddCommand(newListCmd(), newPauseCmd(), newResumeCmd(), newDrainCmd(), newJobsCmd(), newLogsCmd())
	return root
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show waiting/active counts for every queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			for _, name := range queue.KnownQueues() {
				h, cleanup, err := openHandle(name)
				if err != nil {
					return err
				}
				waiting, werr := h.WaitingCount(ctx)
				active, aerr := h.ActiveCount(ctx)
				paused, perr := h.Paused(ctx)
				cleanup()
				if werr != nil || aerr != nil || perr != nil {
					return fmt.Errorf("queue %s: %v %v %v", name, werr, aerr, perr)
				}
				state := ""
				if paused {
					state = " [paused]"
				}
				fmt.Printf("%-16s waiting=%-4d active=%-4d%s\n", name, waiting, active, state)
			}
			return nil
		},
	}
}

func queueOp(use, short string, op func(ctx context.Context, h queue.Handle) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <queue>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validQueue(args[0]); err != nil {
				return err
			}
			h, cleanup, err := openHandle(args[0])
			if err != nil {
				return err
			}
			defer cleanup()
			if err := op(context.Background(), h); err != nil {
				return err
			}
			fmt.Printf("%s: %s done\n", args[0], use)
			return nil
		},
	}
}

func newPauseCmd() *cobra.Command {
	return queueOp("pause", "Stop workers from claiming new jobs", func(ctx context.Context, h queue.Handle) error {
		return h.Pause(ctx)
	})
}

func newResumeCmd() *cobra.Command {
	return queueOp("resume", "Let workers claim jobs again", func(ctx context.Context, h queue.Handle) error {
		return h.Resume(ctx)
	})
}

func newDrainCmd() *cobra.Command {
	return queueOp("drain", "Discard all waiting jobs", func(ctx context.Context, h queue.Handle) error {
		return h.Drain(ctx)
	})
}

func newJobsCmd() *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "jobs <queue>",
		Short: "List jobs on a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validQueue(args[0]); err != nil {
				return err
			}
			h, cleanup, err := openHandle(args[0])
			if err != nil {
				return err
			}
			defer cleanup()

			states := []queue.JobState{queue.StateWaiting, queue.StateActive, queue.StateCompleted, queue.StateFailed}
			if state != "" {
				states = []queue.JobState{queue.JobState(state)}
			}
			jobs, err := h.Jobs(context.Background(), states...)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(jobs)
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "filter by state (waiting|active|completed|failed)")
	return cmd
}

func newLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs <queue> <job-id>",
		Short: "Print a job's log lines",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validQueue(args[0]); err != nil {
				return err
			}
			h, cleanup, err := openHandle(args[0])
			if err != nil {
				return err
			}
			defer cleanup()

			lines, err := h.JobLogs(context.Background(), args[1])
			if err != nil {
				return err
			}
			for _, line := range lines {
				fmt.Println(line)
			}
			return nil
		},
	}
}
