package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mkka7944/billing-system/internal/config"
	"github.com/mkka7944/billing-system/internal/logger"
	"github.com/mkka7944/billing-system/internal/service"

	"go.uber.org/zap"
)

const usage = `Usage: billing-sync <command>

Commands:
  units     upload survey units from the survey workbook directory
  bills     upload bills from the biller export directory
  extract   extract PSIDs from the PDF input directory
  all       extract, then upload units, then upload bills
  stats     report cumulative table totals
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "billing-sync")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting billing-sync", zap.String("command", command))

	pipeline, err := service.NewPipeline(cfg, log)
	if err != nil {
		log.Fatal("Failed to create pipeline", zap.Error(err))
	}
	defer pipeline.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- run(ctx, pipeline, command)
	}()

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
		<-errChan
	case err := <-errChan:
		if err != nil {
			log.Error("Run failed", zap.Error(err))
			pipeline.Close()
			log.Sync()
			os.Exit(1)
		}
	}

	log.Info("Done")
}

func run(ctx context.Context, pipeline *service.Pipeline, command string) error {
	switch command {
	case "units":
		stats, err := pipeline.UploadSurveyUnits(ctx)
		if err != nil {
			return err
		}
		pipeline.ReportStats(ctx, *stats)
		return nil

	case "bills":
		stats, err := pipeline.UploadBills(ctx)
		if err != nil {
			return err
		}
		pipeline.ReportStats(ctx, *stats)
		return nil

	case "extract":
		return pipeline.ExtractPSIDs(ctx)

	case "all":
		if err := pipeline.ExtractPSIDs(ctx); err != nil {
			return err
		}
		unitStats, err := pipeline.UploadSurveyUnits(ctx)
		if err != nil {
			return err
		}
		billStats, err := pipeline.UploadBills(ctx)
		if err != nil {
			return err
		}
		pipeline.ReportStats(ctx, *unitStats, *billStats)
		return nil

	case "stats":
		pipeline.ReportStats(ctx)
		return nil

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}
