package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/robfig/cron/v3"

	"github.com/tonimelisma/drivebackup/internal/notify"
)

// Schedule is one named backup with a cron expression (five fields or a
// descriptor such as "@daily").
type Schedule struct {
	Name  string
	Cron  string
	Paths []string
}

// Scheduler runs schedules on their cron expressions. A schedule never
// overlaps with itself; a tick that arrives while the previous run is still
// going is skipped.
type Scheduler struct {
	runner   *Runner
	notifier notify.Notifier
	logger   *slog.Logger
	cron     *gocron.Scheduler
	ctx      context.Context //nolint:containedctx // bound by Start for scheduled callbacks
	folder   string
}

// NewScheduler creates a Scheduler evaluating cron expressions in loc.
// notifier may be nil.
func NewScheduler(r *Runner, notifier notify.Notifier, loc *time.Location, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	if loc == nil {
		loc = time.Local
	}

	return &Scheduler{
		runner:   r,
		notifier: notifier,
		logger:   logger,
		cron:     gocron.NewScheduler(loc),
		ctx:      context.Background(),
	}
}

// SetFolderName labels notifications with the backup folder's name.
func (s *Scheduler) SetFolderName(name string) {
	s.folder = name
}

// Add registers a schedule. It must be called before Start.
func (s *Scheduler) Add(sc Schedule) error {
	if _, err := cron.ParseStandard(sc.Cron); err != nil {
		return fmt.Errorf("job: schedule %q: invalid cron %q: %w", sc.Name, sc.Cron, err)
	}

	if len(sc.Paths) == 0 {
		return fmt.Errorf("job: schedule %q: no paths", sc.Name)
	}

	_, err := s.cron.Cron(sc.Cron).Tag(sc.Name).SingletonMode().Do(s.runScheduled, sc)
	if err != nil {
		return fmt.Errorf("job: registering schedule %q: %w", sc.Name, err)
	}

	s.logger.Info("schedule registered",
		slog.String("name", sc.Name),
		slog.String("cron", sc.Cron),
		slog.Int("paths", len(sc.Paths)),
	)

	return nil
}

// Start begins firing schedules in the background. ctx is passed to every
// run; cancelling it aborts runs in progress but does not stop the
// scheduler, use Stop for that.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.StartAsync()
}

// Stop stops firing schedules. Runs already in progress continue until
// their context ends.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) runScheduled(sc Schedule) {
	if _, err := s.RunNow(s.ctx, sc); err != nil {
		s.logger.Error("scheduled backup failed",
			slog.String("schedule", sc.Name),
			slog.String("error", err.Error()),
		)
	}
}

// RunNow runs one schedule immediately and notifies about failures.
func (s *Scheduler) RunNow(ctx context.Context, sc Schedule) (*Report, error) {
	s.logger.Info("scheduled backup starting", slog.String("schedule", sc.Name))

	report, err := s.runner.Run(ctx, sc.Paths)

	summary := notify.RunSummary{Schedule: sc.Name, Folder: s.folder, Err: err}

	if report != nil {
		summary.Uploaded = report.Uploaded
		summary.Updated = report.Updated
		summary.Unchanged = report.Unchanged

		if summary.Folder == "" {
			summary.Folder = report.FolderID
		}

		for _, res := range report.Results {
			if res.Err != nil {
				summary.Failures = append(summary.Failures, notify.Failure{Path: res.Path, Err: res.Err})
			}
		}
	}

	if s.notifier != nil && summary.Failed() {
		// The run's own context may be what failed it.
		if nerr := s.notifier.NotifyRun(context.WithoutCancel(ctx), summary); nerr != nil {
			s.logger.Warn("could not send failure notification",
				slog.String("schedule", sc.Name),
				slog.String("error", nerr.Error()),
			)
		}
	}

	return report, err
}
