package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/comfforts/logger"
	"github.com/spf13/cobra"

	"github.com/hankgalt/load-orchestra/internal/config"
	"github.com/hankgalt/load-orchestra/internal/controller"
	"github.com/hankgalt/load-orchestra/internal/results"
	"github.com/hankgalt/load-orchestra/pkg/domain"
)

func NewLoadCmd() *cobra.Command {
	opts := &LoadOptions{}

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Run a load in-process; an interrupt aborts it",
		RunE: func(c *cobra.Command, args []string) error {
			return runLoad(c.Context(), opts)
		},
	}
	opts.bind(cmd)
	return cmd
}

func runLoad(ctx context.Context, opts *LoadOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	l := logger.GetSlogLogger()
	ctx = logger.WithLogger(ctx, l)

	plan, err := opts.validate()
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfig("")
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
		if err := store.Close(ctx); err != nil {
			l.Error("runLoad - error closing store", "store", store.Name(), "error", err.Error())
		}
	}()

	src, err := config.SourceConfig(opts.Source, plan.delimiter).BuildSource(ctx)
	if err != nil {
		return err
	}
	rows, err := src.Rows(ctx, opts.RowLimit)
	if cerr := src.Close(ctx); cerr != nil {
		l.Error("runLoad - error closing source", "source", src.Name(), "error", cerr.Error())
	}
	if err != nil {
		return err
	}

	ctrl := controller.New(
		store,
		controller.WithConfig(controller.Config{
			PollInterval:    cfg.Poll.Interval,
			MaxPollAttempts: cfg.Poll.MaxAttempts,
		}),
		controller.WithLogger(l),
		controller.WithListener(func(st domain.LoadStatus) {
			l.Info(
				"load status",
				"run-id", st.RunID,
				"state", st.State,
				"completed", st.Completed,
				"total", st.Total,
				"poll-attempts", st.PollAttempts,
			)
		}),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigCh:
			l.Info("runLoad - interrupt received, aborting load")
			if err := ctrl.Abort(ctx); err != nil {
				l.Error("runLoad - abort failed", "error", err.Error())
			}
		case <-done:
		}
	}()

	out, err := ctrl.Run(ctx, controller.Request{
		RunID:       opts.RunID,
		Object:      opts.Object,
		Operation:   plan.operation,
		Rows:        rows,
		Mapping:     plan.mapping,
		InsertNulls: opts.InsertNulls,
		DateFormat:  plan.dateFormat,
		Options:     plan.options,
	})
	if err != nil {
		return err
	}

	success, failure := out.Results.Counts()
	l.Info("load finished", "run-id", out.Status.RunID, "success", success, "failure", failure)

	expCfg, err := cfg.ExporterConfig()
	if err != nil {
		return err
	}
	if expCfg == nil {
		return nil
	}
	exp, err := expCfg.BuildExporter(ctx)
	if err != nil {
		return fmt.Errorf("error building %s: %w", expCfg.Name(), err)
	}
	defer func() {
		if err := exp.Close(ctx); err != nil {
			l.Error("runLoad - error closing exporter", "exporter", exp.Name(), "error", err.Error())
		}
	}()

	key := opts.ExportKey
	if key == "" {
		key = out.Status.RunID
	}
	for _, view := range []results.View{results.ViewAll, results.ViewFailures} {
		loc, err := exp.Export(ctx, fmt.Sprintf("%s-%s", key, view), out.Results.Headers(), out.Results.ExportRows(view))
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", view, loc)
	}
	return nil
}
