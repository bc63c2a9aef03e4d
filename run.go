package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivebackup/internal/config"
	"github.com/tonimelisma/drivebackup/internal/job"
	"github.com/tonimelisma/drivebackup/internal/notify"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [schedule]",
		Short: "Run the configured backup schedules",
		Long: `Run the [[schedule]] entries of the config file on their cron expressions
until interrupted. A schedule never overlaps with itself.

With a schedule name and --once, run that schedule immediately and exit.
Failures are published to the SNS topic in [notify] when one is configured.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRun,
	}

	cmd.Flags().Bool("once", false, "run the named schedule now and exit")
	cmd.Flags().Bool("utc", false, "evaluate cron expressions in UTC instead of local time")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	parent, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	ctx := shutdownContext(parent, cc.Logger)

	once, _ := cmd.Flags().GetBool("once")
	utc, _ := cmd.Flags().GetBool("utc")

	schedules, err := selectSchedules(cc.Cfg, args)
	if err != nil {
		return err
	}

	if once && len(args) == 0 {
		return fmt.Errorf("--once needs a schedule name")
	}

	release, err := lockPIDFile(config.PIDPath())
	if err != nil {
		return err
	}
	defer release()

	notifier, err := buildNotifier(ctx, cc)
	if err != nil {
		return err
	}

	env, err := openBackupEnv(ctx, cc, 0)
	if err != nil {
		return err
	}
	defer env.close()

	loc := time.Local
	if utc {
		loc = time.UTC
	}

	sched := job.NewScheduler(env.runner, notifier, loc, cc.Logger)
	sched.SetFolderName(cc.Cfg.Folder)

	if once {
		report, runErr := sched.RunNow(ctx, schedules[0])
		if report != nil {
			printReport(os.Stdout, cc, report)
		}

		if runErr != nil {
			return runErr
		}

		if report.Failed > 0 {
			return fmt.Errorf("%w: %w", errBackupIncomplete, report.Err())
		}

		return nil
	}

	for _, sc := range schedules {
		if err := sched.Add(sc); err != nil {
			return err
		}
	}

	sched.Start(ctx)
	defer sched.Stop()

	cc.Statusf("Running %d schedule(s). Press Ctrl-C to stop.\n", len(schedules))

	<-ctx.Done()

	cc.Logger.Info("scheduler stopping")

	return nil
}

// selectSchedules returns the named schedule, or all of them.
func selectSchedules(cfg *config.Resolved, args []string) ([]job.Schedule, error) {
	if len(args) == 1 {
		sc, ok := cfg.Schedule(args[0])
		if !ok {
			return nil, fmt.Errorf("no schedule named %q in %s", args[0], cfg.Path)
		}

		return []job.Schedule{toJobSchedule(sc)}, nil
	}

	if len(cfg.Schedules) == 0 {
		return nil, fmt.Errorf("no [[schedule]] entries in %s", cfg.Path)
	}

	out := make([]job.Schedule, 0, len(cfg.Schedules))
	for _, sc := range cfg.Schedules {
		out = append(out, toJobSchedule(sc))
	}

	return out, nil
}

func toJobSchedule(sc config.Schedule) job.Schedule {
	return job.Schedule{Name: sc.Name, Cron: sc.Cron, Paths: sc.Paths}
}

// notifierFactory builds the failure notifier. Replaced in tests.
var notifierFactory = func(ctx context.Context, opts notify.Options) (notify.Notifier, error) {
	return notify.NewSNSNotifier(ctx, opts)
}

// buildNotifier returns nil when no topic is configured.
func buildNotifier(ctx context.Context, cc *CLIContext) (notify.Notifier, error) {
	if !cc.Cfg.NotifyEnabled() {
		return nil, nil //nolint:nilnil // no notifier configured
	}

	n, err := notifierFactory(ctx, notify.Options{
		Topic:   cc.Cfg.Notify.SNSTopic,
		Region:  cc.Cfg.Notify.Region,
		Profile: cc.Cfg.Notify.Profile,
	})
	if err != nil {
		return nil, err
	}

	cc.Logger.Info("failure notifications enabled", slog.String("topic", cc.Cfg.Notify.SNSTopic))

	return n, nil
}
