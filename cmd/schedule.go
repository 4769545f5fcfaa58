package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rhysr01/jobping/internal/delivery"
	"github.com/rhysr01/jobping/internal/schedule"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run embedding backfill and sends on their cron schedules until interrupted",
	Run: func(_ *cobra.Command, _ []string) {
		runSchedule()
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config, logger := setup()
	if config.Schedule == nil {
		logger.Fatal("schedule section is required")
	}
	// Scheduled sends follow each tier's digest days.
	config.Delivery.RespectSendDays = true

	a, err := newApplication(ctx, config, logger)
	if err != nil {
		logger.Fatal("initializing", zap.Error(err))
	}
	defer a.Close()

	scheduler := schedule.New(logger)
	jobs := scheduledJobs(a, config.Schedule)
	if len(jobs) == 0 {
		logger.Fatal("nothing to schedule", zap.String("hint", "set schedule.backfill or schedule.delivery"))
	}
	for _, sj := range jobs {
		if err := scheduler.AddJob(sj.job, sj.spec); err != nil {
			logger.Fatal("scheduling", zap.Error(err))
		}
	}

	scheduler.Start(ctx)
	for _, sj := range jobs {
		if next, ok := scheduler.Next(sj.job.Name()); ok {
			logger.Info("next run", zap.String("job", sj.job.Name()), zap.Time("at", next))
		}
	}

	<-ctx.Done()
	logger.Info("stopping scheduler, waiting for running jobs")
	scheduler.Stop()
}

type scheduledJob struct {
	spec string
	job  schedule.Job
}

// scheduledJobs lists the jobs with a non-empty cron spec.
func scheduledJobs(a *application, cfg *ScheduleConfig) []scheduledJob {
	var jobs []scheduledJob

	if spec := strings.TrimSpace(cfg.Backfill); spec != "" {
		jobs = append(jobs, scheduledJob{spec: spec, job: schedule.FuncJob{JobName: "embedding-backfill", Fn: func(ctx context.Context) error {
			report, err := a.embeddings.Backfill(ctx, cfg.BackfillLimit)
			a.logger.Info("embedding backfill",
				zap.Int("generated", report.Generation.Generated),
				zap.Int("stored", report.Storage.Stored),
				zap.Float64("coverage", report.Coverage),
			)
			return err
		}}})
	}

	if spec := strings.TrimSpace(cfg.Delivery); spec != "" {
		jobs = append(jobs, scheduledJob{spec: spec, job: schedule.FuncJob{JobName: "delivery", Fn: func(ctx context.Context) error {
			reports, err := a.runner.RunAll(ctx, delivery.Options{})
			if err != nil {
				return err
			}
			if failed := delivery.Summarize(reports)[delivery.StatusFailed]; failed > 0 {
				return fmt.Errorf("delivery failed for %d users", failed)
			}
			return nil
		}}})
	}

	return jobs
}
