package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"portfolio-advisor/pkg/common"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run only the job worker against a shared queue backend",
	Run:   StartWorker,
}

func StartWorker(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appDep, err := NewAppDependency(ctx)
	if err != nil {
		log.Fatalf("Failed to create app dependency: %v", err)
	}
	if appDep.cfg.Queue.Backend == common.QUEUE_BACKEND_MEMORY || appDep.cfg.Queue.Backend == "" {
		log.Fatalf("worker needs a shared queue backend (%s or %s), got %q",
			common.QUEUE_BACKEND_REDIS, common.QUEUE_BACKEND_POSTGRES, appDep.cfg.Queue.Backend)
	}
	appDep.StartNotifier(ctx)

	_, services, err := appDep.Services(ctx)
	if err != nil {
		log.Fatalf("Failed to create services: %v", err)
	}

	if err := services.Worker.Start(ctx); err != nil {
		log.Fatalf("Failed to start worker: %v", err)
	}

	<-ctx.Done()
	log.Println("Shutting down worker...")
	services.Worker.Stop()

	if err := appDep.Close(); err != nil {
		log.Fatalf("Failed to close app dependency: %v", err)
	}
}
