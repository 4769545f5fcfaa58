package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rhysr01/jobping/internal/delivery"
)

const (
	PromptYes         = "Yes"
	PromptNo          = "No"
	PromptShowMatches = "Show matches"
	PromptDumpToFile  = "Dump matches to file"
)

var prompt = promptui.Select{
	Label: "Save matches and record the send?",
	Items: []string{PromptYes, PromptNo, PromptShowMatches, PromptDumpToFile},
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Compute matches for one user or every active user and record the send",
	Run: func(cmd *cobra.Command, _ []string) {
		match(cmd)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringP("email", "e", "", "email of the user to match")
	matchCmd.Flags().Bool("all", false, "match every active user")
	matchCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before saving matches")
	matchCmd.Flags().Bool("dry-run", false, "compute and report matches without saving them")
	matchCmd.Flags().Bool("respect-send-days", false, "skip users whose tier has no digest today")
}

func match(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config, logger := setup()

	email, _ := cmd.Flags().GetString("email")
	all, _ := cmd.Flags().GetBool("all")
	autoApprove, _ := cmd.Flags().GetBool("auto-approve")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	respectSendDays, _ := cmd.Flags().GetBool("respect-send-days")

	email = strings.TrimSpace(email)
	if (email == "") == !all {
		logger.Fatal("exactly one of --email or --all is required")
	}
	if respectSendDays {
		config.Delivery.RespectSendDays = true
	}

	a, err := newApplication(ctx, config, logger)
	if err != nil {
		logger.Fatal("initializing", zap.Error(err))
	}
	defer a.Close()

	opts := delivery.Options{DryRun: dryRun}
	if !autoApprove {
		opts.Confirm = func(report delivery.Report) (bool, error) {
			return confirm(logger, report)
		}
	}

	if all {
		reports, err := a.runner.RunAll(ctx, opts)
		for _, report := range reports {
			logReport(logger, report)
		}
		if err != nil {
			logger.Fatal("delivery run failed", zap.Error(err))
		}
		logger.Info("delivery summary", zap.Any("statuses", delivery.Summarize(reports)))
		return
	}

	pool, err := a.runner.LoadPool(ctx)
	if err != nil {
		logger.Fatal("loading job pool", zap.Error(err))
	}

	report, err := a.runner.RunUser(ctx, email, pool, opts)
	if err != nil {
		logger.Fatal("matching failed", zap.String("email", email), zap.Error(err))
	}
	logReport(logger, report)
}

func logReport(logger *zap.Logger, report delivery.Report) {
	meta := report.Outcome.Metadata
	metrics := report.Outcome.Metrics

	fields := []zap.Field{
		zap.String("email", report.Email),
		zap.String("status", string(report.Status)),
		zap.String("tier", string(report.Tier)),
	}
	if meta.RunID != "" {
		fields = append(fields,
			zap.String("run_id", meta.RunID),
			zap.String("matching_method", string(meta.MatchingMethod)),
			zap.String("relaxation_level", string(meta.RelaxationLevel)),
			zap.Int("matches", len(report.Outcome.Matches)),
			zap.Int("total_jobs", metrics.TotalJobs),
			zap.Int("valid_jobs", metrics.ValidJobCount),
			zap.Any("tier_distribution", metrics.TierDistribution),
			zap.Duration("processing_time", meta.ProcessingTime),
		)
	}
	if report.Err != nil {
		fields = append(fields, zap.Error(report.Err))
	}

	logger.Info("match report", fields...)
}

// confirm asks on the terminal until the user approves or declines the send.
func confirm(logger *zap.Logger, report delivery.Report) (bool, error) {
	logReport(logger, report)

	for {
		_, action, err := prompt.Run()
		if err != nil {
			return false, err
		}

		switch action {
		case PromptYes:
			return true, nil
		case PromptNo:
			logger.Info("skipping", zap.String("email", report.Email), zap.String("reason", "got no from prompt"))
			return false, nil
		case PromptShowMatches:
			for i, m := range report.Outcome.Matches {
				fmt.Printf("%d. %s / %s / %s (%.1f) %s\n", i+1, m.Job.Title, m.Job.Company, m.Job.City, m.MatchScore, m.MatchReason)
			}
		case PromptDumpToFile:
			filename, err := dumpToTmpFile(report)
			if err != nil {
				return false, fmt.Errorf("dump matches to file: %w", err)
			}
			logger.Info("dumping matches to file", zap.String("filename", filename))
		default:
			return false, errors.New("invalid action: " + action)
		}
	}
}

func dumpToTmpFile(report delivery.Report) (string, error) {
	f, err := os.CreateTemp("", app+"-matches-*.json")
	if err != nil {
		return "", err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report.Outcome.Matches); err != nil {
		return "", err
	}
	return f.Name(), nil
}
