package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivebackup/internal/backup"
	"github.com/tonimelisma/drivebackup/internal/ledger"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the files recorded as backed up to the backup folder",
		Long: `Show every local file the upload ledger maps to an object in the backup
folder, with the size and modification time it had when it was sent.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	return withSession(cmd, func(ctx context.Context, cc *CLIContext, s *backup.Session) error {
		h, err := s.WaitUntilReady(ctx)
		if err != nil {
			return err
		}

		l, err := openLedger(ctx, cc)
		if err != nil {
			return err
		}
		defer l.Close()

		entries, err := l.List(ctx, h.ID)
		if err != nil {
			return err
		}

		if !cc.Flags.JSON && len(entries) == 0 {
			cc.Statusf("Nothing backed up to %s yet.\n", h.Title)
			return nil
		}

		return printLedger(os.Stdout, cc.Flags.JSON, entries)
	})
}

// ledgerJSON is the JSON schema for one `status --json` entry.
type ledgerJSON struct {
	Path       string    `json:"path"`
	ObjectID   string    `json:"object_id"`
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"mtime,omitzero"`
	Revision   string    `json:"revision,omitempty"`
	UploadedAt time.Time `json:"uploaded_at,omitzero"`
}

func printLedger(w io.Writer, asJSON bool, entries []ledger.Entry) error {
	if asJSON {
		out := make([]ledgerJSON, 0, len(entries))
		for _, e := range entries {
			out = append(out, ledgerJSON{
				Path:       e.Path,
				ObjectID:   e.ObjectID,
				Size:       e.Size,
				ModTime:    e.ModTime,
				Revision:   e.Revision,
				UploadedAt: e.UploadedAt,
			})
		}

		return printJSON(w, out)
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.ObjectID, formatSize(e.Size), formatTime(e.UploadedAt), e.Path})
	}

	printTable(w, []string{"OBJECT", "SIZE", "UPLOADED", "PATH"}, rows)

	return nil
}
