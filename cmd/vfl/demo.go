package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/vfl/internal/agent"
	"github.com/GriffinCanCode/vfl/internal/domain/model"
	"github.com/GriffinCanCode/vfl/internal/flow"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run sample traces",
	Long: `Run a set of sample traces through a fully configured agent: a root block
with a synchronous child, a spawned goroutine, an event with two listeners and
an in-process remote call. Data is delivered to the configured flush handler.`,
	Args: cobra.NoArgs,
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().String("handler", "", "override the flush handler (hub, spool, log, nop)")
	demoCmd.Flags().Bool("serve", false, "keep the admin server running until interrupted")
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if h, _ := cmd.Flags().GetString("handler"); h != "" {
		cfg.Flush.Handler = h
	}
	serve, _ := cmd.Flags().GetBool("serve")
	if serve {
		cfg.Admin.Enabled = true
	}

	a, err := agent.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := runScenarios(ctx, a.Tracer)
	if runErr != nil {
		a.Logger.Warn("Scenario failed", zap.Error(runErr))
	}

	if serve {
		fmt.Fprintf(cmd.OutOrStdout(), "admin server listening on http://%s\n", a.AdminAddr())
		<-ctx.Done()
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Buffer.DrainTimeout+time.Second)
	defer cancel()
	shutdownErr := a.Shutdown(drainCtx)

	snap := a.Metrics.Snapshot()
	fmt.Fprintf(cmd.OutOrStdout(), "pushed %d items, delivered %d in %d batches (%d failed)\n",
		snap.ItemsPushed, snap.ItemsFlushed, snap.BatchesOK+snap.BatchesFailed, snap.BatchesFailed)

	return errors.Join(runErr, shutdownErr)
}

// runScenarios exercises every tracer scope once
func runScenarios(ctx context.Context, tr *flow.Tracer) error {
	errSimulated := errors.New("simulated failure")

	return tr.Root(ctx, "demo", func(ctx context.Context) error {
		tr.Info(ctx, "starting demo")

		// Synchronous child
		if err := tr.Sub(ctx, "load-config", func(ctx context.Context) error {
			tr.Info(ctx, "settings loaded")
			return nil
		}); err != nil {
			return err
		}

		// Spawned child on another goroutine
		wait := tr.Go(ctx, "background-index", "spawn indexer", func(ctx context.Context) error {
			tr.Info(ctx, "working")
			return nil
		})

		// Event with two listeners
		handle := tr.Publish(ctx, "order.created", "order 42 created")
		listeners := make([]func() error, 0, 2)
		for _, name := range []string{"email-listener", "audit-listener"} {
			done := make(chan error, 1)
			go func() {
				done <- tr.Listen(context.Background(), handle, name, func(ctx context.Context) error {
					tr.Infof(ctx, "%s handled order 42", name)
					return nil
				})
			}()
			listeners = append(listeners, func() error { return <-done })
		}

		// Remote call entered by the callee side in-process
		_ = tr.Remote(ctx, "inventory.reserve", func(_ context.Context, remote model.BlockID) error {
			return tr.EnterRemote(context.Background(), remote, "inventory-service", func(ctx context.Context) error {
				tr.Warn(ctx, "stock low")
				return errSimulated
			})
		})

		errs := []error{wait()}
		for _, l := range listeners {
			errs = append(errs, l())
		}
		tr.Info(ctx, "demo finished")
		return errors.Join(errs...)
	})
}
