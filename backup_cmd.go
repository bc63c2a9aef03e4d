package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivebackup/internal/backup"
	"github.com/tonimelisma/drivebackup/internal/config"
	"github.com/tonimelisma/drivebackup/internal/job"
	"github.com/tonimelisma/drivebackup/internal/ledger"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup <path>...",
		Short: "Back up files and directories into the backup folder",
		Long: `Back up files and directories into the backup folder.

Directories are walked recursively. New files are uploaded, files backed up
before are updated in place, and files unchanged since their last backup are
skipped. When a remembered object was deleted or trashed remotely, the file is
uploaded again.

With --watch, keep running after the first pass and back up files as they are
created or modified.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runBackup,
	}

	cmd.Flags().Bool("watch", false, "keep watching the paths and back up changes")
	cmd.Flags().Int("workers", 0, "parallel uploads (default from config)")

	return cmd
}

// backupEnv bundles what a backup run needs; close releases it.
type backupEnv struct {
	session *backup.Session
	ledger  *ledger.Ledger
	runner  *job.Runner
}

func (e *backupEnv) close() {
	e.ledger.Close()
}

func openBackupEnv(ctx context.Context, cc *CLIContext, workers int) (*backupEnv, error) {
	session, err := openSession(ctx, cc)
	if err != nil {
		return nil, err
	}

	l, err := openLedger(ctx, cc)
	if err != nil {
		return nil, err
	}

	if workers <= 0 {
		workers = cc.Cfg.ParallelUploads
	}

	runner := job.NewRunner(session, l, job.RunnerConfig{
		Workers:     workers,
		Description: cc.Cfg.Description,
		NewRevision: cc.Cfg.NewRevision,
	}, cc.Logger)

	return &backupEnv{session: session, ledger: l, runner: runner}, nil
}

func runBackup(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	parent, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	ctx := shutdownContext(parent, cc.Logger)

	watch, _ := cmd.Flags().GetBool("watch")
	workers, _ := cmd.Flags().GetInt("workers")

	if watch {
		release, err := lockPIDFile(config.PIDPath())
		if err != nil {
			return err
		}
		defer release()
	}

	env, err := openBackupEnv(ctx, cc, workers)
	if err != nil {
		return err
	}
	defer env.close()

	report, err := env.runner.Run(ctx, args)
	if report != nil {
		printReport(os.Stdout, cc, report)
	}

	if err != nil {
		return err
	}

	if !watch {
		if report.Failed > 0 {
			return fmt.Errorf("%w: %w", errBackupIncomplete, report.Err())
		}

		return nil
	}

	cc.Statusf("Watching %d path(s) for changes. Press Ctrl-C to stop.\n", len(args))

	w := job.NewWatcher(env.runner, cc.Logger)

	return w.Watch(ctx, args, func(res job.Result) {
		if res.Outcome == job.Unchanged {
			return
		}

		printResult(os.Stdout, cc, res)
	})
}

// reportJSON is the JSON schema for `backup --json`.
type reportJSON struct {
	FolderID      string       `json:"folder_id"`
	Uploaded      int          `json:"uploaded"`
	Updated       int          `json:"updated"`
	Unchanged     int          `json:"unchanged"`
	Failed        int          `json:"failed"`
	BytesUploaded int64        `json:"bytes_uploaded"`
	Files         []resultJSON `json:"files"`
}

type resultJSON struct {
	Path     string `json:"path"`
	Outcome  string `json:"outcome"`
	ObjectID string `json:"object_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

func toResultJSON(res job.Result) resultJSON {
	out := resultJSON{Path: res.Path, Outcome: res.Outcome.String(), ObjectID: res.ObjectID}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}

	return out
}

func printReport(w io.Writer, cc *CLIContext, r *job.Report) {
	if cc.Flags.JSON {
		out := reportJSON{
			FolderID:      r.FolderID,
			Uploaded:      r.Uploaded,
			Updated:       r.Updated,
			Unchanged:     r.Unchanged,
			Failed:        r.Failed,
			BytesUploaded: r.BytesUploaded,
			Files:         make([]resultJSON, 0, len(r.Results)),
		}

		for _, res := range r.Results {
			out.Files = append(out.Files, toResultJSON(res))
		}

		if err := printJSON(w, out); err != nil {
			cc.Logger.Warn("writing report", slog.String("error", err.Error()))
		}

		return
	}

	for _, res := range r.Results {
		if res.Err != nil {
			fmt.Fprintf(os.Stderr, "failed: %s: %v\n", res.Path, res.Err)
		}
	}

	cc.Statusf("Uploaded %d, updated %d, unchanged %d, failed %d (%s sent).\n",
		r.Uploaded, r.Updated, r.Unchanged, r.Failed, formatSize(r.BytesUploaded))
}

func printResult(w io.Writer, cc *CLIContext, res job.Result) {
	if cc.Flags.JSON {
		if err := printJSON(w, toResultJSON(res)); err != nil {
			cc.Logger.Warn("writing result", slog.String("error", err.Error()))
		}

		return
	}

	if res.Err != nil {
		fmt.Fprintf(os.Stderr, "failed: %s: %v\n", res.Path, res.Err)
		return
	}

	cc.Statusf("%s: %s\n", res.Outcome, res.Path)
}
