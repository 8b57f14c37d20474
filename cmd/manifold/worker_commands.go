package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"manifold/internal/blobstore"
	"manifold/internal/config"
	"manifold/internal/ingest"
	"manifold/internal/logging"
	"manifold/internal/manifest"
	"manifold/internal/missing"
	"manifold/internal/mqueue"
	"manifold/internal/notifications"
	"manifold/internal/orchestrator"
	"manifold/internal/records"
	"manifold/internal/scheduler"
	"manifold/internal/tracker"
	"manifold/internal/watermark"
	"manifold/internal/worker"
)

// workerMain runs a worker's poll loop once the process scaffolding
// (config, logger, lock, store) is in place.
type workerMain func(ctx context.Context, cfg *config.Config, store *records.Store, logger *slog.Logger) error

func newWorkerCommands(ctx *commandContext) []*cobra.Command {
	specs := []struct {
		use   string
		short string
		main  workerMain
	}{
		{
			use:   "validation-worker",
			short: "Run the asset validation worker",
			main: func(runCtx context.Context, cfg *config.Config, store *records.Store, logger *slog.Logger) error {
				queue := mqueue.New(store)
				blobs := blobstore.NewFS()
				svc := ingest.NewService(store, blobs, cfg, logger)
				return worker.NewValidationWorker(queue, svc, cfg, logger).Run(runCtx)
			},
		},
		{
			use:   "manifest-worker",
			short: "Run the manifest generation worker",
			main: func(runCtx context.Context, cfg *config.Config, store *records.Store, logger *slog.Logger) error {
				queue := mqueue.New(store)
				blobs := blobstore.NewFS()
				sched := scheduler.New(store, queue, logger)
				generator := manifest.NewGenerator(store, blobs, cfg, logger)
				cache := watermark.NewCache(store, blobs, watermark.NewClient(cfg.Watermark), cfg, logger)
				return worker.NewManifestWorker(store, queue, sched, generator, cache, cfg, logger).Run(runCtx)
			},
		},
		{
			use:   "delivery-worker",
			short: "Run the delivery tracking worker",
			main: func(runCtx context.Context, cfg *config.Config, store *records.Store, logger *slog.Logger) error {
				queue := mqueue.New(store)
				blobs := blobstore.NewFS()
				trk := tracker.NewService(store, logger)
				generator := manifest.NewGenerator(store, blobs, cfg, logger)
				orch := orchestrator.NewService(store, generator, trk, queue, cfg, logger)
				return worker.NewDeliveryWorker(queue, orch, cfg, logger).Run(runCtx)
			},
		},
		{
			use:   "exception-worker",
			short: "Run the missing-assets exception worker",
			main: func(runCtx context.Context, cfg *config.Config, store *records.Store, logger *slog.Logger) error {
				queue := mqueue.New(store)
				blobs := blobstore.NewFS()
				sched := scheduler.New(store, queue, logger)
				trk := tracker.NewService(store, logger)
				svc := missing.NewService(store, blobs, trk, cfg, logger)
				notifier := notifications.NewService(cfg)
				return worker.NewExceptionWorker(queue, svc, notifier, sched, cfg, logger).Run(runCtx)
			},
		},
	}

	commands := make([]*cobra.Command, 0, len(specs))
	for _, spec := range specs {
		spec := spec
		commands = append(commands, &cobra.Command{
			Use:   spec.use,
			Short: spec.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWorkerProcess(cmd.Context(), ctx, spec.use, spec.main)
			},
		})
	}
	return commands
}

func runWorkerProcess(cmdCtx context.Context, ctx *commandContext, name string, main workerMain) error {
	if ctx == nil {
		return fmt.Errorf("command context is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logPath := filepath.Join(cfg.Paths.LogDir, name+".log")
	logger, err := logging.New(logging.Options{
		Level:            cfg.Logging.Level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	lock := flock.New(filepath.Join(cfg.Paths.LogDir, name+".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire %s lock: %w", name, err)
	}
	if !locked {
		return fmt.Errorf("%s is already running", name)
	}
	defer lock.Unlock()

	pidPath := filepath.Join(cfg.Paths.LogDir, name+".pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := records.Open(cfg)
	if err != nil {
		logger.Error("open record store", logging.Error(err))
		return err
	}
	defer store.Close()

	logger.Info("worker starting", logging.String("worker", name))
	err = main(signalCtx, cfg, store, logger)
	if err == nil || errors.Is(err, context.Canceled) {
		logger.Info("worker shutting down", logging.String("worker", name))
		return nil
	}
	return err
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
