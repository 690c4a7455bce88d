package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"

	"github.com/samirrijal/houselocator/internal/adapters/houseapi"
	"github.com/samirrijal/houselocator/internal/adapters/postgres"
	"github.com/samirrijal/houselocator/internal/core/ports"
	"github.com/samirrijal/houselocator/internal/core/usecases"
	"github.com/samirrijal/houselocator/internal/pkg/config"
	"github.com/samirrijal/houselocator/internal/pkg/logging"
	"github.com/samirrijal/houselocator/internal/workflows"
)

type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func rootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "importer",
		Short:        "Import houses from a legacy export",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := config.Load("houselocator-importer")
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
			return nil
		},
	}

	root.AddCommand(
		workerCommand(a),
		startCommand(a),
	)
	return root
}

func (a *app) dialTemporal() (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  a.cfg.Temporal.HostPort,
		Namespace: a.cfg.Temporal.Namespace,
		Logger:    tlog.NewStructuredLogger(a.logger),
	})
	if err != nil {
		return nil, fmt.Errorf("temporal client: %w", err)
	}
	return c, nil
}

func workerCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the import workflow worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			conf, logger := a.cfg, a.logger

			var transports []ports.PropertyTransport
			if conf.Gateway.APIBaseURL != "" {
				api := houseapi.New(conf.Gateway.APIBaseURL, conf.Gateway.Timeout)
				defer api.Close()
				transports = append(transports, api)
			}
			if conf.Gateway.Direct {
				db, err := postgres.New(ctx, conf.Database.DSN(), conf.Database.MaxConns)
				if err != nil {
					logger.Warn("direct transport unavailable", "error", err)
				} else {
					defer db.Close()
					transports = append(transports, postgres.NewDirectTransport(postgres.NewPropertyRepo(db)))
				}
			}
			if len(transports) == 0 {
				return errors.New("no gateway transport available")
			}

			c, err := a.dialTemporal()
			if err != nil {
				return err
			}
			defer c.Close()

			w := worker.New(c, conf.Temporal.TaskQueue, worker.Options{})
			w.RegisterWorkflow(workflows.ImportWorkflow)
			w.RegisterActivity(&workflows.ImportActivities{
				Houses: usecases.NewGateway(logger, transports...),
			})

			logger.Info("import worker started", "task_queue", conf.Temporal.TaskQueue)
			stop := make(chan any)
			go func() {
				<-ctx.Done()
				close(stop)
			}()
			return w.Run(stop)
		},
	}
}

func startCommand(a *app) *cobra.Command {
	var (
		file         string
		allOrNothing bool
		wait         bool
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start an import of a legacy export file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			conf, logger := a.cfg, a.logger

			f, err := os.Open(file)
			if err != nil {
				return err
			}
			items, err := workflows.DecodeLegacyExport(f)
			f.Close()
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to import.")
				return nil
			}

			c, err := a.dialTemporal()
			if err != nil {
				return err
			}
			defer c.Close()

			opts := client.StartWorkflowOptions{
				ID:                       "house-import-" + filepath.Base(file) + "-" + uuid.NewString()[:8],
				TaskQueue:                conf.Temporal.TaskQueue,
				WorkflowExecutionTimeout: timeout,
			}
			run, err := c.ExecuteWorkflow(ctx, opts, workflows.ImportWorkflow, workflows.ImportInput{
				Items:        items,
				AllOrNothing: allOrNothing,
			})
			if err != nil {
				return fmt.Errorf("start import: %w", err)
			}
			logger.Info("import started", "workflow_id", run.GetID(), "run_id", run.GetRunID(), "items", len(items))
			fmt.Fprintf(cmd.OutOrStdout(), "Started %s with %d houses\n", run.GetID(), len(items))

			if !wait {
				return nil
			}
			var result workflows.ImportResult
			if err := run.Get(ctx, &result); err != nil {
				return fmt.Errorf("import %s: %w", run.GetID(), err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Legacy export (JSON array)")
	cmd.Flags().BoolVar(&allOrNothing, "all-or-nothing", false, "Remove imported houses again if any item fails")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the import to finish and print the result")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Hour, "Workflow execution timeout")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
