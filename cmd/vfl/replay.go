package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/vfl/internal/flush"
	"github.com/GriffinCanCode/vfl/internal/logging"
)

var replayCmd = &cobra.Command{
	Use:   "replay [dir]",
	Short: "Re-deliver spooled batches to the hub",
	Long: `Read every batch file in the spool directory (default: the configured
VFL_SPOOL_DIR), deliver it to the configured hub and remove the files that were
delivered. Files that fail stay in place for the next run. Files that cannot be
decoded are reported, skipped and left in place.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().Bool("keep", false, "keep files after successful delivery")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dir := cfg.Flush.SpoolDir
	if len(args) == 1 {
		dir = args[0]
	}
	keep, _ := cmd.Flags().GetBool("keep")

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	if err != nil {
		return err
	}
	defer logger.Close()

	hub := flush.NewHubHandler(flush.HubConfig{
		BaseURL:   cfg.Flush.HubURL,
		Timeout:   cfg.Flush.Timeout,
		Retries:   cfg.Flush.Retries,
		Gzip:      cfg.Flush.Gzip,
		RateLimit: cfg.Flush.RateLimit,
		Strict:    true,
		Logger:    logger.Component("hub"),
	})

	res, err := replay(cmd.Context(), dir, hub, keep, logger.Component("replay"))
	fmt.Fprintf(cmd.OutOrStdout(), "replayed %d of %d batches (%d items) to %s, %d unreadable\n",
		res.Delivered, res.Delivered+res.Failed, res.Items, cfg.Flush.HubURL, res.Skipped)
	return err
}

type replayResult struct {
	Delivered int
	Failed    int
	Skipped   int // files that could not be decoded
	Items     int
}

// replay delivers every spooled batch in dir to h, oldest first. Delivered
// files are removed unless keep is set. Undecodable files are counted as
// skipped and reported in the returned error.
func replay(ctx context.Context, dir string, h flush.Handler, keep bool, logger *zap.Logger) (replayResult, error) {
	var res replayResult

	spool, err := flush.ReadSpool(dir)
	if err != nil {
		return res, err
	}

	var errs []error
	for _, bad := range spool.Bad {
		res.Skipped++
		logger.Warn("Skipping unreadable spool file",
			zap.String("file", bad.Path),
			zap.Error(bad.Err))
		errs = append(errs, fmt.Errorf("%s: %w", bad.Path, bad.Err))
	}

	for _, f := range spool.Files {
		if err := ctx.Err(); err != nil {
			return res, errors.Join(append(errs, err)...)
		}

		if err := f.Batch.Deliver(ctx, h); err != nil {
			res.Failed++
			logger.Warn("Replay failed",
				zap.String("file", f.Path),
				zap.String("category", f.Batch.Category.String()),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", f.Path, err))
			continue
		}

		res.Delivered++
		res.Items += f.Batch.Len()
		if keep {
			continue
		}
		if err := os.Remove(f.Path); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", f.Path, err))
		}
	}
	return res, errors.Join(errs...)
}

