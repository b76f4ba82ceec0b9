package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/comfforts/logger"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	lo "github.com/hankgalt/load-orchestra"
	"github.com/hankgalt/load-orchestra/internal/config"
)

func dialTemporal(cfg *config.Config) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
		Logger:    logger.GetSlogLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("error connecting to temporal at %s: %w", cfg.Temporal.Host, err)
	}
	return c, nil
}

func NewWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run a Temporal worker for load workflows",
		RunE: func(c *cobra.Command, args []string) error {
			return runWorker(c.Context())
		},
	}
}

func runWorker(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	l := logger.GetSlogLogger()
	ctx = logger.WithLogger(ctx, l)

	cfg, err := config.LoadConfig(lo.ApplicationName)
	if err != nil {
		return err
	}

	storeCfg, err := cfg.StoreConfig()
	if err != nil {
		return err
	}
	store, err := storeCfg.BuildStore(ctx)
	if err != nil {
		return fmt.Errorf("error building %s: %w", storeCfg.Name(), err)
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			l.Error("runWorker - error closing store", "store", store.Name(), "error", err.Error())
		}
	}()
	ctx = context.WithValue(ctx, lo.StoreClientContextKey, store)

	expCfg, err := cfg.ExporterConfig()
	if err != nil {
		return err
	}
	if expCfg != nil {
		exp, err := expCfg.BuildExporter(ctx)
		if err != nil {
			return fmt.Errorf("error building %s: %w", expCfg.Name(), err)
		}
		defer func() {
			if err := exp.Close(context.Background()); err != nil {
				l.Error("runWorker - error closing exporter", "exporter", exp.Name(), "error", err.Error())
			}
		}()
		ctx = context.WithValue(ctx, lo.ExporterContextKey, exp)
	}

	c, err := dialTemporal(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{
		BackgroundActivityContext: ctx, // global worker context for activities
	})
	lo.Register(w)

	l.Info("runWorker - worker starting", "task-queue", cfg.Temporal.TaskQueue, "store", store.Name())
	return w.Run(worker.InterruptCh())
}

type StartOptions struct {
	LoadOptions
	Wait bool
}

func NewStartCmd() *cobra.Command {
	opts := &StartOptions{}

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a load workflow through the Temporal service",
		RunE: func(c *cobra.Command, args []string) error {
			return runStart(c.Context(), opts)
		},
	}
	opts.bind(cmd)
	cmd.Flags().BoolVarP(&opts.Wait, "wait", "w", false, "Wait for the workflow result")
	return cmd
}

func runStart(ctx context.Context, opts *StartOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	plan, err := opts.validate()
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfig(lo.ApplicationName)
	if err != nil {
		return err
	}

	source := opts.Source
	if !strings.HasPrefix(source, "gs://") {
		if source, err = filepath.Abs(source); err != nil {
			return err
		}
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	req := &lo.LoadRequest{
		RunID:       runID,
		Object:      opts.Object,
		Operation:   plan.operation,
		Source:      source,
		Delimiter:   plan.delimiter,
		RowLimit:    opts.RowLimit,
		Mapping:     plan.mapping,
		InsertNulls: opts.InsertNulls,
		DateFormat:  plan.dateFormat,
		Options:     plan.options,
		Poll: lo.PollSettings{
			IntervalMillis: int(cfg.Poll.Interval / time.Millisecond),
			MaxAttempts:    cfg.Poll.MaxAttempts,
		},
		ExportKey: opts.ExportKey,
	}

	c, err := dialTemporal(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	we, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                    workflowID(runID),
		TaskQueue:             cfg.Temporal.TaskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}, lo.LoadRecordsWorkflowName, req)
	if err != nil {
		return fmt.Errorf("error starting load workflow: %w", err)
	}
	fmt.Printf("started workflow %s (run %s)\n", we.GetID(), we.GetRunID())

	if !opts.Wait {
		return nil
	}
	var sum lo.LoadSummary
	if err := we.Get(ctx, &sum); err != nil {
		return err
	}
	return printJSON(sum)
}

func workflowID(runID string) string {
	return "load-" + runID
}

func NewAbortCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "abort <run-id>",
		Short: "Signal a running load workflow to abort",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(lo.ApplicationName)
			if err != nil {
				return err
			}
			tc, err := dialTemporal(cfg)
			if err != nil {
				return err
			}
			defer tc.Close()
			return tc.SignalWorkflow(c.Context(), workflowID(args[0]), "", lo.AbortSignalName, reason)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "aborted from cli", "Abort reason")
	return cmd
}

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Query the status of a load workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(lo.ApplicationName)
			if err != nil {
				return err
			}
			tc, err := dialTemporal(cfg)
			if err != nil {
				return err
			}
			defer tc.Close()

			val, err := tc.QueryWorkflow(c.Context(), workflowID(args[0]), "", lo.LoadStatusQueryName)
			if err != nil {
				return err
			}
			var st map[string]any
			if err := val.Get(&st); err != nil {
				return err
			}
			return printJSON(st)
		},
	}
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
